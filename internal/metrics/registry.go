package metrics

import (
	"bytes"
	"io"
	"math"
	"strconv"
	"strings"
)

// ContentType is the Prometheus text exposition content type produced by Registry.Render.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// PromType is a Prometheus metric type rendered into '# TYPE' lines.
type PromType string

const (
	TypeCounter   PromType = "counter"
	TypeGauge     PromType = "gauge"
	TypeSummary   PromType = "summary"
	TypeHistogram PromType = "histogram"
)

// Record is one rendered sample line with its HELP/TYPE header.
type Record struct {
	Name   string
	Help   string
	Labels LabelSet
	Type   PromType
	Value  float64
}

// Registry collects records for one scrape in insertion order.
// It never deduplicates: equal names with different label sets are expected.
// A Registry belongs to a single request and is not safe for concurrent use.
type Registry struct {
	defaults LabelSet
	records  []Record
}

// NewRegistry creates an empty registry.
// Params: defaults label set applied to records appended without labels.
// Returns: registry instance.
func NewRegistry(defaults LabelSet) *Registry {
	return &Registry{defaults: defaults.With()}
}

// Defaults returns a copy of the default label set.
func (r *Registry) Defaults() LabelSet {
	return r.defaults.With()
}

// Append adds one record; nil labels are replaced with the registry defaults.
// Params: rec record to store; its label set is copied.
// Returns: none.
func (r *Registry) Append(rec Record) {
	if rec.Labels == nil {
		rec.Labels = r.defaults
	}
	rec.Labels = rec.Labels.With()
	r.records = append(r.records, rec)
}

// Gauge appends a gauge record with default labels plus extra.
func (r *Registry) Gauge(name string, help string, value float64, extra ...Label) {
	r.Append(Record{Name: name, Help: help, Labels: r.defaults.With(extra...), Type: TypeGauge, Value: value})
}

// Counter appends a counter record with default labels plus extra.
func (r *Registry) Counter(name string, help string, value float64, extra ...Label) {
	r.Append(Record{Name: name, Help: help, Labels: r.defaults.With(extra...), Type: TypeCounter, Value: value})
}

// Summary appends <name>_count and <name>_sum summary records.
// Params: name base metric name; help description; count and sum totals; extra labels.
// Returns: none.
func (r *Registry) Summary(name string, help string, count float64, sum float64, extra ...Label) {
	labels := r.defaults.With(extra...)
	r.Append(Record{Name: name + "_count", Help: help, Labels: labels, Type: TypeSummary, Value: count})
	r.Append(Record{Name: name + "_sum", Help: help, Labels: labels, Type: TypeSummary, Value: sum})
}

// Histogram appends one <name>_bucket record with le label added after the other labels.
// Params: name base metric name; help description; le bucket bound; value cumulative count; extra labels.
// Returns: none.
func (r *Registry) Histogram(name string, help string, le string, value float64, extra ...Label) {
	labels := r.defaults.With(extra...).With(Label{Key: "le", Value: le})
	r.Append(Record{Name: name + "_bucket", Help: help, Labels: labels, Type: TypeHistogram, Value: value})
}

// Len returns number of appended records.
func (r *Registry) Len() int {
	return len(r.records)
}

// Records returns a copy of appended records in insertion order.
func (r *Registry) Records() []Record {
	out := make([]Record, len(r.records))
	for idx, rec := range r.records {
		rec.Labels = rec.Labels.With()
		out[idx] = rec
	}
	return out
}

// Render produces Prometheus text exposition for all records.
// Params: none.
// Returns: payload bytes; empty (nil) when registry holds no records.
func (r *Registry) Render() []byte {
	if len(r.records) == 0 {
		return nil
	}
	var buf bytes.Buffer
	_, _ = r.WriteTo(&buf)
	return buf.Bytes()
}

// WriteTo streams the text exposition into w.
// Params: w destination writer.
// Returns: bytes written and first write error.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var written int64
	var line strings.Builder
	for _, rec := range r.records {
		line.Reset()
		writeRecord(&line, rec)
		n, err := io.WriteString(w, line.String())
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// writeRecord renders HELP, TYPE and sample lines for one record.
func writeRecord(b *strings.Builder, rec Record) {
	b.WriteString("# HELP ")
	b.WriteString(rec.Name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(rec.Help))
	b.WriteString("\n# TYPE ")
	b.WriteString(rec.Name)
	b.WriteByte(' ')
	b.WriteString(string(rec.Type))
	b.WriteByte('\n')

	b.WriteString(rec.Name)
	if len(rec.Labels) > 0 {
		b.WriteByte('{')
		for idx, label := range rec.Labels {
			if idx > 0 {
				b.WriteByte(',')
			}
			b.WriteString(label.Key)
			b.WriteString(`="`)
			b.WriteString(escapeLabelValue(label.Value))
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(FormatValue(rec.Value))
	b.WriteByte('\n')
}

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}

func escapeLabelValue(value string) string {
	return labelEscaper.Replace(value)
}

// FormatValue renders a sample value or bucket bound as a plain decimal.
// Params: value float sample.
// Returns: shortest decimal representation; NaN/+Inf/-Inf per exposition format.
func FormatValue(value float64) string {
	switch {
	case math.IsNaN(value):
		return "NaN"
	case math.IsInf(value, 1):
		return "+Inf"
	case math.IsInf(value, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
