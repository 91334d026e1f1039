package metrics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePrometheus_IncludesCollectors(t *testing.T) {
	DispatchTotal.WithLabelValues("gemini", "ok").Inc()
	RelayEventsTotal.WithLabelValues("ignored").Inc()

	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, "clawlink_dispatch_total")
	assert.Contains(t, out, `model_key="gemini"`)
	assert.Contains(t, out, "clawlink_relay_events_total")
}
