// Package memstore is an in-memory Store used by the in-process transport
// mode and by tests. It mirrors the status semantics of the SQL store but
// keeps everything under one mutex.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

const (
	statusNew        = 0
	statusSent       = 1
	statusRetry      = 2
	statusError      = 3
	statusProcessing = 4
)

type MemStore struct {
	mu          sync.Mutex
	nextID      int64
	events      map[int64]*storage.EventRecord
	deadLetters map[int64]*storage.EventRecord
	updatedAt   map[int64]time.Time
}

func New() *MemStore {
	return &MemStore{
		events:      make(map[int64]*storage.EventRecord),
		deadLetters: make(map[int64]*storage.EventRecord),
		updatedAt:   make(map[int64]time.Time),
	}
}

func (s *MemStore) CreateEvent(_ context.Context, _ storage.DBTX, event *storage.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.events {
		if existing.EventID == event.EventID {
			return storage.ErrDuplicateEventID
		}
	}

	s.nextID++
	stored := *event
	stored.ID = s.nextID
	stored.Status = statusNew
	stored.OccurredAt = time.Now().UTC()
	s.events[stored.ID] = &stored
	s.updatedAt[stored.ID] = stored.OccurredAt

	event.ID = stored.ID
	event.OccurredAt = stored.OccurredAt
	return nil
}

func (s *MemStore) FetchNewEvents(_ context.Context, batchSize int) ([]storage.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var due []storage.EventRecord
	for _, e := range s.events {
		if e.Status != statusNew && e.Status != statusRetry {
			continue
		}
		if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, *e)
	}

	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if len(due) > batchSize {
		due = due[:batchSize]
	}
	return due, nil
}

func (s *MemStore) FetchStuckEvents(_ context.Context, batchSize int, stuckTimeout time.Duration) ([]storage.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().UTC().Add(-stuckTimeout)
	var stuck []storage.EventRecord
	for id, e := range s.events {
		if e.Status != statusProcessing {
			continue
		}
		if s.updatedAt[id].After(threshold) {
			continue
		}
		stuck = append(stuck, *e)
	}

	sort.Slice(stuck, func(i, j int) bool { return stuck[i].ID < stuck[j].ID })
	if len(stuck) > batchSize {
		stuck = stuck[:batchSize]
	}
	return stuck, nil
}

func (s *MemStore) FetchEventsToMoveToDeadLetter(_ context.Context, batchSize int, _ int) ([]storage.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []storage.EventRecord
	for _, e := range s.events {
		if e.Status == statusError {
			failed = append(failed, *e)
		}
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].ID < failed[j].ID })
	if len(failed) > batchSize {
		failed = failed[:batchSize]
	}
	return failed, nil
}

func (s *MemStore) MarkAsSent(_ context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return storage.ErrEventNotFound
	}
	now := time.Now().UTC()
	e.Status = statusSent
	e.ProcessedAt = &now
	s.updatedAt[eventID] = now
	return nil
}

func (s *MemStore) MarkAsProcessing(_ context.Context, eventIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range eventIDs {
		if e, ok := s.events[id]; ok {
			e.Status = statusProcessing
			s.updatedAt[id] = now
		}
	}
	return nil
}

func (s *MemStore) UpdateForRetry(_ context.Context, eventID int64, nextAttemptAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return storage.ErrEventNotFound
	}
	e.Status = statusRetry
	e.AttemptCount++
	e.NextAttemptAt = &nextAttemptAt
	e.LastError = lastError
	s.updatedAt[eventID] = time.Now().UTC()
	return nil
}

func (s *MemStore) MarkAsFailed(_ context.Context, eventID int64, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return storage.ErrEventNotFound
	}
	e.Status = statusError
	e.AttemptCount++
	e.LastError = lastError
	s.updatedAt[eventID] = time.Now().UTC()
	return nil
}

func (s *MemStore) MoveToDeadLetter(_ context.Context, record storage.EventRecord, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[record.ID]
	if !ok {
		return storage.ErrEventNotFound
	}
	dead := *e
	dead.LastError = lastError
	s.deadLetters[dead.ID] = &dead
	delete(s.events, record.ID)
	delete(s.updatedAt, record.ID)
	return nil
}

func (s *MemStore) ResetStuckEvents(_ context.Context, eventIDs []int64, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range eventIDs {
		if e, ok := s.events[id]; ok {
			e.Status = statusRetry
			e.NextAttemptAt = &nextAttemptAt
			s.updatedAt[id] = now
		}
	}
	return nil
}

func (s *MemStore) DeleteSentEvents(_ context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().UTC().Add(-retention)
	var deleted int64
	for id, e := range s.events {
		if e.Status == statusSent && e.ProcessedAt != nil && e.ProcessedAt.Before(threshold) {
			delete(s.events, id)
			delete(s.updatedAt, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemStore) DeleteDeadLetterEvents(_ context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().UTC().Add(-retention)
	var deleted int64
	for id, e := range s.deadLetters {
		if e.OccurredAt.Before(threshold) {
			delete(s.deadLetters, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemStore) EnsureTables(context.Context) error {
	return nil
}

// Snapshot helpers for tests and operational inspection.

// PendingCount returns the number of events not yet marked sent.
func (s *MemStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.events {
		if e.Status != statusSent {
			n++
		}
	}
	return n
}

// Get returns a copy of the stored event, if present.
func (s *MemStore) Get(eventID int64) (storage.EventRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return storage.EventRecord{}, false
	}
	return *e, true
}

// DeadLetterCount returns the number of dead-lettered events.
func (s *MemStore) DeadLetterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deadLetters)
}
