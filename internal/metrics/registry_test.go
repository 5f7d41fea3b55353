package metrics

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RenderExactText(t *testing.T) {
	reg := NewRegistry(LabelSet{{Key: LabelNetwork, Value: "test"}})
	reg.Gauge("stellar_core_a", "help a", 1.5)
	reg.Histogram("stellar_core_b", "help b", "0.5", 3, Label{Key: "x", Value: "y"})
	reg.Counter("stellar_core_c", "help c", 1648807200)

	want := "# HELP stellar_core_a help a\n" +
		"# TYPE stellar_core_a gauge\n" +
		"stellar_core_a{network=\"test\"} 1.5\n" +
		"# HELP stellar_core_b_bucket help b\n" +
		"# TYPE stellar_core_b_bucket histogram\n" +
		"stellar_core_b_bucket{network=\"test\",x=\"y\",le=\"0.5\"} 3\n" +
		"# HELP stellar_core_c help c\n" +
		"# TYPE stellar_core_c counter\n" +
		"stellar_core_c{network=\"test\"} 1648807200\n"

	assert.Equal(t, want, string(reg.Render()))
}

func TestRegistry_RepeatsHeadersPerRecord(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Summary("stellar_core_timer_seconds", "libmedida metric type: timer", 4, 0.01)
	reg.Gauge("stellar_core_timer_seconds", "libmedida metric type: timer", 0.003, Label{Key: "quantile", Value: "0.75"})
	reg.Gauge("stellar_core_timer_seconds", "libmedida metric type: timer", 0.005, Label{Key: "quantile", Value: "0.99"})

	out := string(reg.Render())
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("# TYPE stellar_core_timer_seconds gauge\n")))
	assert.Contains(t, out, "stellar_core_timer_seconds_count 4\n")
	assert.Contains(t, out, "stellar_core_timer_seconds_sum 0.01\n")
	assert.Contains(t, out, "stellar_core_timer_seconds{quantile=\"0.99\"} 0.005\n")
}

func TestRegistry_EmptyRendersNothing(t *testing.T) {
	reg := NewRegistry(UnknownLabels())
	assert.Zero(t, reg.Len())
	assert.Empty(t, reg.Render())
}

func TestRegistry_EscapesLabelValues(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Gauge("stellar_core_x", "line\nbreak", 1, Label{Key: "id", Value: "a\"b\\c"})

	out := string(reg.Render())
	assert.Contains(t, out, "# HELP stellar_core_x line\\nbreak\n")
	assert.Contains(t, out, `stellar_core_x{id="a\"b\\c"} 1`)
}

func TestRegistry_RecordsAreCopies(t *testing.T) {
	reg := NewRegistry(LabelSet{{Key: "a", Value: "1"}})
	reg.Gauge("m", "h", 1)

	records := reg.Records()
	require.Len(t, records, 1)
	records[0].Labels[0].Value = "mutated"

	assert.Equal(t, "1", reg.Records()[0].Labels[0].Value)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "0", FormatValue(0))
	assert.Equal(t, "-3", FormatValue(-3))
	assert.Equal(t, "0.000001", FormatValue(0.000001))
	assert.Equal(t, "+Inf", FormatValue(math.Inf(1)))
	assert.Equal(t, "-Inf", FormatValue(math.Inf(-1)))
	assert.Equal(t, "NaN", FormatValue(math.NaN()))
}
