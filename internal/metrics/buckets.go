package metrics

import (
	"sort"
)

// InfinityBoundSeconds is the bucket bound above which a bucket is rendered as le="+Inf" (30 days).
const InfinityBoundSeconds = 30 * 86400

// InfLabelValue is the le label value of the infinity bucket.
const InfLabelValue = "+Inf"

// RawBucket is one disjoint range of a libmedida bucket set.
// Count and Sum cover only observations that fell inside this bucket's own range.
type RawBucket struct {
	Boundary *float64 `json:"boundary"`
	Count    *float64 `json:"count"`
	Sum      *float64 `json:"sum"`
}

// BucketSet is a validated bucket metric payload.
type BucketSet struct {
	Type    string
	Unit    DurationUnit
	Buckets []RawBucket
}

// CumulativeBucket is one Prometheus histogram bucket.
type CumulativeBucket struct {
	UpperBound float64
	Le         string
	Count      float64
}

// CumulativeHistogram is the reconstructed histogram plus overall summary totals.
type CumulativeHistogram struct {
	Buckets []CumulativeBucket
	Count   float64
	Sum     float64
}

type convertedBucket struct {
	boundary float64
	count    float64
	sum      float64
}

// AggregateBuckets converts disjoint per-range buckets into cumulative "<= bound" buckets.
// Params: set bucket payload with declared boundary/sum unit.
// Returns: buckets in ascending bound order with running counts, totals in seconds, or a unit/shape error.
func AggregateBuckets(set BucketSet) (CumulativeHistogram, error) {
	converted := make([]convertedBucket, 0, len(set.Buckets))
	for idx, bucket := range set.Buckets {
		if bucket.Boundary == nil || bucket.Count == nil || bucket.Sum == nil {
			return CumulativeHistogram{}, shapeErrorf("buckets", "bucket[%d] requires boundary, count and sum", idx)
		}
		boundary, err := ToSeconds(*bucket.Boundary, set.Unit)
		if err != nil {
			return CumulativeHistogram{}, err
		}
		sum, err := ToSeconds(*bucket.Sum, set.Unit)
		if err != nil {
			return CumulativeHistogram{}, err
		}
		converted = append(converted, convertedBucket{boundary: boundary, count: *bucket.Count, sum: sum})
	}

	sort.SliceStable(converted, func(i, j int) bool {
		return converted[i].boundary < converted[j].boundary
	})

	out := CumulativeHistogram{Buckets: make([]CumulativeBucket, 0, len(converted))}
	for _, bucket := range converted {
		out.Count += bucket.count
		out.Sum += bucket.sum

		le := FormatValue(bucket.boundary)
		if bucket.boundary > InfinityBoundSeconds {
			le = InfLabelValue
		}
		out.Buckets = append(out.Buckets, CumulativeBucket{
			UpperBound: bucket.boundary,
			Le:         le,
			Count:      out.Count,
		})
	}

	return out, nil
}
