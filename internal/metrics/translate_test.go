package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellarexporter/internal/match"
)

func strPtr(v string) *string {
	return &v
}

func recordNames(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Name)
	}
	return out
}

func TestTranslator_MetricName(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})

	assert.Equal(t, "stellar_core_ledger_transaction_apply", tr.MetricName("ledger.transaction.apply"))
	assert.Equal(t, "stellar_core_scp_envelope_emit_nomination", tr.MetricName("scp.envelope.emit-NOMINATION"))
	assert.Equal(t, "stellar_core_overlay_byte_read", tr.MetricName("overlay.byte read"))
	assert.Equal(t, "stellar_core_bucket_batch_add_time_p_", tr.MetricName("bucket.batch.add-time(p)"))

	custom := NewTranslator(TranslatorOptions{Namespace: "validator_"})
	assert.Equal(t, "validator_ledger_age", custom.MetricName("ledger.age"))
}

func TestTranslator_CounterIsGaugeMeterIsCounter(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})

	records, err := tr.Translate("overlay.memory.flood-known", RawMetric{Kind: KindCounter, Count: f64(7)}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, TypeGauge, records[0].Type)
	assert.Equal(t, 7.0, records[0].Value)
	assert.Equal(t, "libmedida metric type: counter", records[0].Help)

	records, err = tr.Translate("overlay.message.read", RawMetric{Kind: KindMeter, Count: f64(42)}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, TypeCounter, records[0].Type)
	assert.Equal(t, "stellar_core_overlay_message_read", records[0].Name)
}

func TestTranslator_TimerConvertsToSeconds(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})
	raw := RawMetric{
		Kind:         KindTimer,
		Count:        f64(4),
		Mean:         f64(2.5),
		P75:          f64(3),
		P99:          f64(5),
		DurationUnit: strPtr("ms"),
	}

	records, err := tr.Translate("ledger.ledger.close", raw, LabelSet{{Key: LabelNetwork, Value: "test"}})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"stellar_core_ledger_ledger_close_seconds_count",
		"stellar_core_ledger_ledger_close_seconds_sum",
		"stellar_core_ledger_ledger_close_seconds",
		"stellar_core_ledger_ledger_close_seconds",
	}, recordNames(records))
	assert.Equal(t, 4.0, records[0].Value)
	assert.Equal(t, 0.01, records[1].Value)
	assert.Equal(t, 0.003, records[2].Value)
	assert.Equal(t, 0.005, records[3].Value)

	quantile, ok := records[3].Labels.Get("quantile")
	require.True(t, ok)
	assert.Equal(t, "0.99", quantile)
	network, _ := records[3].Labels.Get(LabelNetwork)
	assert.Equal(t, "test", network)
}

func TestTranslator_TimerWithSumAndMax(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})
	raw := RawMetric{
		Kind:         KindTimer,
		Count:        f64(2),
		Sum:          f64(3),
		Mean:         f64(100),
		P100:         f64(2),
		DurationUnit: strPtr("s"),
	}

	records, err := tr.Translate("herder.pending", raw, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 3.0, records[1].Value)
	quantile, _ := records[2].Labels.Get("quantile")
	assert.Equal(t, "1.0", quantile)
}

func TestTranslator_TimerErrors(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})

	_, err := tr.Translate("t", RawMetric{Kind: KindTimer, Count: f64(1), Sum: f64(1)}, nil)
	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))

	_, err = tr.Translate("t", RawMetric{Kind: KindTimer, Count: f64(1), Sum: f64(1), DurationUnit: strPtr("weeks")}, nil)
	var unitErr *UnsupportedUnitError
	require.True(t, errors.As(err, &unitErr))

	_, err = tr.Translate("t", RawMetric{Kind: KindTimer, Count: f64(1), DurationUnit: strPtr("s")}, nil)
	require.True(t, errors.As(err, &shapeErr))
}

func TestTranslator_HistogramIsDimensionless(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})

	records, err := tr.Translate("herder.txset.size", RawMetric{Kind: KindHistogram, Count: f64(2), Sum: f64(300), P75: f64(200)}, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "stellar_core_herder_txset_size_count", records[0].Name)
	assert.Equal(t, 300.0, records[1].Value)
	assert.Equal(t, 200.0, records[2].Value)

	records, err = tr.Translate("herder.txset.size", RawMetric{Kind: KindHistogram, Mean: f64(3)}, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTranslator_Buckets(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})
	raw := RawMetric{
		Kind:         KindBuckets,
		BoundaryUnit: strPtr("s"),
		Buckets:      []RawBucket{bucket(10, 5, 50)},
	}

	records, err := tr.Translate("scp.timing.nominated", raw, LabelSet{{Key: LabelNetwork, Value: "test"}})
	require.NoError(t, err)

	reg := NewRegistry(nil)
	for _, rec := range records {
		reg.Append(rec)
	}
	want := "# HELP stellar_core_scp_timing_nominated_bucket libmedida metric type: buckets\n" +
		"# TYPE stellar_core_scp_timing_nominated_bucket histogram\n" +
		"stellar_core_scp_timing_nominated_bucket{network=\"test\",le=\"10\"} 5\n" +
		"# HELP stellar_core_scp_timing_nominated_count libmedida metric type: buckets\n" +
		"# TYPE stellar_core_scp_timing_nominated_count summary\n" +
		"stellar_core_scp_timing_nominated_count{network=\"test\"} 5\n" +
		"# HELP stellar_core_scp_timing_nominated_sum libmedida metric type: buckets\n" +
		"# TYPE stellar_core_scp_timing_nominated_sum summary\n" +
		"stellar_core_scp_timing_nominated_sum{network=\"test\"} 50\n"
	assert.Equal(t, want, string(reg.Render()))
}

func TestTranslator_BucketsEmptyAndMissing(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})

	records, err := tr.Translate("b", RawMetric{Kind: KindBuckets, BoundaryUnit: strPtr("s"), Buckets: []RawBucket{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"stellar_core_b_count", "stellar_core_b_sum"}, recordNames(records))
	assert.Zero(t, records[0].Value)
	assert.Zero(t, records[1].Value)

	_, err = tr.Translate("b", RawMetric{Kind: KindBuckets, BoundaryUnit: strPtr("s")}, nil)
	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
}

func TestTranslator_UnknownKindSkipped(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})

	records, err := tr.Translate("x", RawMetric{Kind: MetricKind("gauge"), Count: f64(1)}, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTranslateMetrics_DocumentOrderAndIsolation(t *testing.T) {
	payload := []byte(`{"metrics":{
		"zeta.meter":{"type":"meter","count":3},
		"bad.timer":{"type":"timer","count":1,"sum":1,"duration_unit":"fortnight"},
		"alpha.counter":{"type":"counter","count":2},
		"skip.me":{"type":"counter","count":9},
		"old.histogram":{"type":"histogram","mean":1}
	}}`)

	var dropped []string
	tr := NewTranslator(TranslatorOptions{
		Filter: match.NewNameFilter(nil, []string{"skip.*"}),
		OnDrop: func(name string, err error) {
			dropped = append(dropped, name)
		},
	})
	reg := NewRegistry(UnknownLabels())

	translated, err := tr.TranslateMetrics(payload, reg)
	require.NoError(t, err)

	assert.Equal(t, 2, translated)
	assert.Equal(t, []string{"stellar_core_zeta_meter", "stellar_core_alpha_counter"}, recordNames(reg.Records()))
	assert.Equal(t, []string{"bad.timer"}, dropped)

	out := string(reg.Render())
	assert.False(t, strings.Contains(out, "bad_timer"))
	assert.Contains(t, out, `stellar_core_alpha_counter{ver_major="unknown",ver_minor="unknown",ver_patch="unknown",build="unknown",network="unknown"} 2`)
}

func TestTranslateMetrics_ShapeErrors(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})

	for _, payload := range []string{`not json`, `{"other":{}}`, `{"metrics":[]}`} {
		_, err := tr.TranslateMetrics([]byte(payload), NewRegistry(nil))
		var shapeErr *ShapeError
		require.True(t, errors.As(err, &shapeErr), payload)
	}
}
