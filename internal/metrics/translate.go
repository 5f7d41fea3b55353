package metrics

import (
	"encoding/json"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"stellarexporter/internal/match"
)

// DefaultNamespace prefixes every exported series name.
const DefaultNamespace = "stellar_core"

// MetricKind is the libmedida metric type reported in the "type" field.
type MetricKind string

const (
	KindCounter   MetricKind = "counter"
	KindMeter     MetricKind = "meter"
	KindTimer     MetricKind = "timer"
	KindHistogram MetricKind = "histogram"
	KindBuckets   MetricKind = "buckets"
)

// RawMetric is one entry of the node's /metrics snapshot.
// Every field except Kind is optional: presence depends on the metric kind and on the node version.
type RawMetric struct {
	Kind         MetricKind  `json:"type"`
	Count        *float64    `json:"count"`
	Sum          *float64    `json:"sum"`
	Mean         *float64    `json:"mean"`
	P75          *float64    `json:"75%"`
	P99          *float64    `json:"99%"`
	P100         *float64    `json:"100%"`
	DurationUnit *string     `json:"duration_unit"`
	BoundaryUnit *string     `json:"boundary_unit"`
	Buckets      []RawBucket `json:"buckets"`
}

// quantile pairs a reported percentile field with its Prometheus quantile label value.
type quantile struct {
	label string
	value *float64
}

func (m RawMetric) quantiles() []quantile {
	return []quantile{
		{label: "0.75", value: m.P75},
		{label: "0.99", value: m.P99},
		// 100% is only reported by newer nodes and is the max over the recent sampling window.
		{label: "1.0", value: m.P100},
	}
}

// DropFunc is notified about a metric left out of the registry because it could not be translated.
type DropFunc func(name string, err error)

// TranslatorOptions configures metric naming and selection.
type TranslatorOptions struct {
	Namespace string
	Filter    match.NameFilter
	OnDrop    DropFunc
	Logger    *slog.Logger
}

// Translator maps libmedida metrics onto Prometheus records.
// It keeps no per-scrape state and may be shared by concurrent requests.
type Translator struct {
	namespace string
	filter    match.NameFilter
	onDrop    DropFunc
	logger    *slog.Logger
}

// NewTranslator creates a translator.
// Params: opts naming, filter and drop notification settings.
// Returns: translator instance.
func NewTranslator(opts TranslatorOptions) *Translator {
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Translator{
		namespace: strings.TrimSuffix(namespace, "_"),
		filter:    opts.Filter,
		onDrop:    opts.OnDrop,
		logger:    logger,
	}
}

var (
	nameSeparatorPattern = regexp.MustCompile(`[.\-\s]`)
	nameInvalidPattern   = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// MetricName converts a node metric name into a namespaced Prometheus name.
// Params: raw node name such as "ledger.transaction.apply".
// Returns: sanitized name such as "stellar_core_ledger_transaction_apply".
func (t *Translator) MetricName(raw string) string {
	name := nameSeparatorPattern.ReplaceAllString(raw, "_")
	name = strings.ToLower(name)
	name = nameInvalidPattern.ReplaceAllString(name, "_")
	return t.namespace + "_" + name
}

// SeriesName prefixes an already valid suffix with the namespace.
func (t *Translator) SeriesName(suffix string) string {
	return t.namespace + "_" + suffix
}

// TranslateMetrics translates the /metrics snapshot into reg in node document order.
// Params: payload raw JSON body; reg request registry.
// Returns: number of translated metrics, or ShapeError when the snapshot has no metrics object.
func (t *Translator) TranslateMetrics(payload []byte, reg *Registry) (int, error) {
	if !gjson.ValidBytes(payload) {
		return 0, &ShapeError{Subject: "metrics", Reason: "invalid JSON"}
	}
	root := gjson.GetBytes(payload, "metrics")
	if !root.IsObject() {
		return 0, &ShapeError{Subject: "metrics", Reason: "missing metrics object"}
	}

	translated := 0
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if !t.filter.Allow(name) {
			return true
		}

		var raw RawMetric
		if err := json.Unmarshal([]byte(value.Raw), &raw); err != nil {
			t.drop(name, shapeErrorf(name, "decode metric: %v", err))
			return true
		}

		records, err := t.Translate(name, raw, reg.Defaults())
		if err != nil {
			t.drop(name, err)
			return true
		}
		for _, rec := range records {
			reg.Append(rec)
		}
		if len(records) > 0 {
			translated++
		}
		return true
	})

	return translated, nil
}

// Translate converts one node metric into Prometheus records.
// Params: name node metric name; raw decoded metric; labels default label set for the records.
// Returns: records (possibly none for skipped metrics) or an error scoped to this metric only.
func (t *Translator) Translate(name string, raw RawMetric, labels LabelSet) ([]Record, error) {
	reg := NewRegistry(labels)
	metricName := t.MetricName(name)
	help := "libmedida metric type: " + string(raw.Kind)

	var err error
	switch raw.Kind {
	case KindCounter:
		// libmedida counters are levels that go up and down.
		err = translateLevel(reg, name, metricName, help, raw, TypeGauge)
	case KindMeter:
		err = translateLevel(reg, name, metricName, help, raw, TypeCounter)
	case KindTimer:
		err = translateTimer(reg, name, metricName, help, raw)
	case KindHistogram:
		err = translateHistogram(reg, name, metricName, help, raw)
	case KindBuckets:
		err = translateBuckets(reg, name, metricName, help, raw)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reg.Records(), nil
}

func (t *Translator) drop(name string, err error) {
	t.logger.Debug("metric dropped", slog.String("metric", name), slog.String("error", err.Error()))
	if t.onDrop != nil {
		t.onDrop(name, err)
	}
}

func translateLevel(reg *Registry, name, metricName, help string, raw RawMetric, promType PromType) error {
	if raw.Count == nil {
		return shapeErrorf(name, "%s requires count", raw.Kind)
	}
	if promType == TypeCounter {
		reg.Counter(metricName, help, *raw.Count)
		return nil
	}
	reg.Gauge(metricName, help, *raw.Count)
	return nil
}

// translateTimer exposes a timer as a Summary in seconds plus node-calculated quantile gauges.
func translateTimer(reg *Registry, name, metricName, help string, raw RawMetric) error {
	if raw.Count == nil {
		return shapeErrorf(name, "timer requires count")
	}
	if raw.DurationUnit == nil {
		return shapeErrorf(name, "timer requires duration_unit")
	}
	unit, err := ParseDurationUnit(*raw.DurationUnit)
	if err != nil {
		return err
	}

	total, err := summarySum(name, raw)
	if err != nil {
		return err
	}
	sumSeconds, err := ToSeconds(total, unit)
	if err != nil {
		return err
	}

	metricName += "_seconds"
	reg.Summary(metricName, help, *raw.Count, sumSeconds)
	for _, q := range raw.quantiles() {
		if q.value == nil {
			continue
		}
		seconds, err := ToSeconds(*q.value, unit)
		if err != nil {
			return err
		}
		reg.Gauge(metricName, help, seconds, Label{Key: "quantile", Value: q.label})
	}
	return nil
}

// translateHistogram exposes a dimensionless histogram as a Summary plus quantile gauges.
func translateHistogram(reg *Registry, name, metricName, help string, raw RawMetric) error {
	if raw.Count == nil {
		// Old nodes do not report count; nothing useful to export.
		return nil
	}
	total, err := summarySum(name, raw)
	if err != nil {
		return err
	}

	reg.Summary(metricName, help, *raw.Count, total)
	for _, q := range raw.quantiles() {
		if q.value == nil {
			continue
		}
		reg.Gauge(metricName, help, *q.value, Label{Key: "quantile", Value: q.label})
	}
	return nil
}

// translateBuckets exposes a bucket set as a cumulative Histogram plus a Summary.
func translateBuckets(reg *Registry, name, metricName, help string, raw RawMetric) error {
	if raw.BoundaryUnit == nil {
		return shapeErrorf(name, "buckets requires boundary_unit")
	}
	if raw.Buckets == nil {
		return shapeErrorf(name, "buckets requires buckets list")
	}
	unit, err := ParseDurationUnit(*raw.BoundaryUnit)
	if err != nil {
		return err
	}

	histogram, err := AggregateBuckets(BucketSet{Type: string(raw.Kind), Unit: unit, Buckets: raw.Buckets})
	if err != nil {
		return err
	}
	for _, bucket := range histogram.Buckets {
		reg.Histogram(metricName, help, bucket.Le, bucket.Count)
	}
	reg.Summary(metricName, help, histogram.Count, histogram.Sum)
	return nil
}

// summarySum returns the reported sum, or mean*count on nodes that do not report it.
func summarySum(name string, raw RawMetric) (float64, error) {
	if raw.Sum != nil {
		return *raw.Sum, nil
	}
	if raw.Mean != nil && raw.Count != nil {
		return *raw.Mean * *raw.Count, nil
	}
	return 0, shapeErrorf(name, "%s requires sum or mean", raw.Kind)
}
