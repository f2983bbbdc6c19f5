package outbox

import "go.opentelemetry.io/otel/propagation"

// MessageCarrier adapts an Event's headers to the OpenTelemetry text map
// carrier so trace context survives the outbox hop.
type MessageCarrier struct {
	event *Event
}

var _ propagation.TextMapCarrier = MessageCarrier{}

func NewMessageCarrier(event *Event) MessageCarrier {
	if event.Headers == nil {
		event.Headers = make(map[string]string)
	}
	return MessageCarrier{event: event}
}

func (c MessageCarrier) Get(key string) string {
	return c.event.Headers[key]
}

func (c MessageCarrier) Set(key, value string) {
	c.event.Headers[key] = value
}

func (c MessageCarrier) Keys() []string {
	keys := make([]string, 0, len(c.event.Headers))
	for k := range c.event.Headers {
		keys = append(keys, k)
	}
	return keys
}
