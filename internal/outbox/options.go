package outbox

import (
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	defaultBatchSize           = 20
	defaultMaxAttempts         = 5
	defaultBaseDelay           = 30 * time.Second
	defaultMaxDelay            = 30 * time.Minute
	defaultStuckEventTimeout   = 10 * time.Minute
	defaultSentEventsRetention = 24 * time.Hour
	defaultDeadLetterRetention = 7 * 24 * time.Hour
)

//
// Relay options
//

type RelayOption func(*Relay)

func WithRelayBatchSize(size int) RelayOption {
	return func(r *Relay) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

func WithRelayMaxAttempts(attempts int) RelayOption {
	return func(r *Relay) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

func WithRelayBackoffStrategy(strategy BackoffStrategy) RelayOption {
	return func(r *Relay) {
		if strategy != nil {
			r.backoffStrategy = strategy
		}
	}
}

//
// KafkaPublisher options
//

type KafkaPublisherOption func(*KafkaPublisher)

func WithKafkaProducerProps(props kafka.ConfigMap) KafkaPublisherOption {
	return func(p *KafkaPublisher) {
		for k, v := range props {
			p.producerProps[k] = v
		}
	}
}

func WithKafkaDefaultTopic(topic string) KafkaPublisherOption {
	return func(p *KafkaPublisher) {
		p.defaultTopic = topic
	}
}

func WithKafkaHeaderBuilder(builder KafkaHeaderBuilder) KafkaPublisherOption {
	return func(p *KafkaPublisher) {
		p.headerBuilder = builder
	}
}

//
// StuckEventRecovery options
//

type StuckRecoveryOption func(*StuckEventRecovery)

func WithStuckRecoveryBatchSize(size int) StuckRecoveryOption {
	return func(s *StuckEventRecovery) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func WithStuckRecoveryTimeout(timeout time.Duration) StuckRecoveryOption {
	return func(s *StuckEventRecovery) {
		if timeout > 0 {
			s.stuckTimeout = timeout
		}
	}
}

func WithStuckRecoveryMaxAttempts(attempts int) StuckRecoveryOption {
	return func(s *StuckEventRecovery) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

//
// CleanupService options
//

type CleanupOption func(*CleanupService)

func WithSentRetention(retention time.Duration) CleanupOption {
	return func(c *CleanupService) {
		if retention > 0 {
			c.sentRetention = retention
		}
	}
}

func WithDeadLetterRetention(retention time.Duration) CleanupOption {
	return func(c *CleanupService) {
		if retention > 0 {
			c.deadLetterRetention = retention
		}
	}
}
