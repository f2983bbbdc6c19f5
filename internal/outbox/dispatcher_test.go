package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubWorker struct {
	name        string
	startCalled chan bool
	stopCalled  chan bool
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func newStubWorker(name string) *stubWorker {
	return &stubWorker{
		name:        name,
		startCalled: make(chan bool, 1),
		stopCalled:  make(chan bool, 1),
		stopChan:    make(chan struct{}),
	}
}

func (m *stubWorker) Name() string {
	return m.name
}

func (m *stubWorker) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()
	m.startCalled <- true

	select {
	case <-ctx.Done():
	case <-m.stopChan:
	}
}

func (m *stubWorker) Stop() {
	m.stopCalled <- true
	close(m.stopChan)
	m.wg.Wait()
}

func TestDispatcher_StartAndStop(t *testing.T) {
	worker1 := newStubWorker("worker1")
	worker2 := newStubWorker("worker2")

	dispatcher := NewDispatcher(zap.NewNop(), worker1, worker2)

	assert.False(t, dispatcher.IsStarted(), "Dispatcher should not be started initially")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx)
	}()

	for _, w := range []*stubWorker{worker1, worker2} {
		select {
		case <-w.startCalled:
		case <-time.After(1 * time.Second):
			t.Fatalf("%s.Start was not called", w.name)
		}
	}

	assert.True(t, dispatcher.IsStarted(), "Dispatcher should be in started state")

	dispatcher.Stop()

	for _, w := range []*stubWorker{worker1, worker2} {
		select {
		case <-w.stopCalled:
		case <-time.After(1 * time.Second):
			t.Fatalf("%s.Stop was not called", w.name)
		}
	}

	wg.Wait()
	assert.False(t, dispatcher.IsStarted(), "Dispatcher should be in stopped state after Stop()")
}

func TestDispatcher_ContextCancellation(t *testing.T) {
	worker := newStubWorker("test-worker")
	dispatcher := NewDispatcher(zap.NewNop(), worker)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	dispatcher.Start(ctx)

	select {
	case <-worker.stopCalled:
	case <-time.After(1 * time.Second):
		t.Fatal("worker.Stop was not called after context cancellation")
	}
}

func TestDispatcher_MultipleStartAndStop(t *testing.T) {
	worker := newStubWorker("test-worker")
	dispatcher := NewDispatcher(zap.NewNop(), worker)

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)
	<-worker.startCalled
	assert.True(t, dispatcher.IsStarted())

	// A second Start is a no-op.
	dispatcher.Start(ctx)
	assert.True(t, dispatcher.IsStarted())

	dispatcher.Stop()
	<-worker.stopCalled
	time.Sleep(10 * time.Millisecond)
	assert.False(t, dispatcher.IsStarted())

	dispatcher.Stop()
	assert.False(t, dispatcher.IsStarted())

	cancel()
}
