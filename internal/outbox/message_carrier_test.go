package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageCarrier_GetSetKeys(t *testing.T) {
	event := Event{Headers: map[string]string{"traceparent": "00-abc-def-01"}}
	carrier := NewMessageCarrier(&event)

	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Empty(t, carrier.Get("tracestate"))

	carrier.Set("tracestate", "vendor=1")
	assert.Equal(t, "vendor=1", event.Headers["tracestate"])
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, carrier.Keys())
}

func TestMessageCarrier_InitializesHeaders(t *testing.T) {
	event := Event{}
	carrier := NewMessageCarrier(&event)

	carrier.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", event.Headers["traceparent"])
}
