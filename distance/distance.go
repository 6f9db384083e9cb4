// Package distance provides the vector math shared by every backend:
// distance kernels, L2 normalization and the conversion from a
// lower-is-better distance to a higher-is-better score.
package distance

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var s0, s1, s2, s3 float32

	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}

	return s0 + s1 + s2 + s3
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var s0, s1, s2, s3 float32

	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		s0 += d * d
	}

	return s0 + s1 + s2 + s3
}

// CosineDistance returns 1 - <a,b> for vectors that are already unit length.
// Rounding can push the raw value a hair below zero; it is clamped.
func CosineDistance(a, b []float32) float32 {
	d := 1 - Dot(a, b)
	if d < 0 {
		return 0
	}
	return d
}

// NegativeDot returns -<a,b> so that larger inner products sort first.
func NegativeDot(a, b []float32) float32 {
	return -Dot(a, b)
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// IsFinite reports whether v has no NaN or infinite component.
func IsFinite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm := Norm(v)
	if norm == 0 || math.IsNaN(float64(norm)) || math.IsInf(float64(norm), 0) {
		return false
	}
	inv := 1 / norm
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric uint8

const (
	// MetricCosine compares unit-normalized vectors by 1 - cosine similarity.
	MetricCosine Metric = iota
	// MetricL2 compares vectors by squared Euclidean distance.
	MetricL2
	// MetricDot compares vectors by negative inner product.
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricL2:
		return "l2"
	case MetricDot:
		return "dot"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// ParseMetric parses the stable metric name used in configs and manifests.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "":
		return MetricCosine, nil
	case "l2", "euclidean", "squared_l2":
		return MetricL2, nil
	case "dot", "ip", "inner_product":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("distance: unknown metric %q", s)
	}
}

// NormalizesVectors reports whether stored vectors and queries are
// unit-normalized before use.
func (m Metric) NormalizesVectors() bool {
	return m == MetricCosine
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return CosineDistance, nil
	case MetricL2:
		return SquaredL2, nil
	case MetricDot:
		return NegativeDot, nil
	default:
		return nil, fmt.Errorf("distance: unsupported metric %v", m)
	}
}

// Score converts a distance produced under m into a similarity where larger
// is better: cosine similarity for cosine, the inner product for dot and
// 1/(1+d) for L2. An exact match scores 1 under cosine and L2.
func Score(m Metric, d float32) float32 {
	switch m {
	case MetricCosine:
		return 1 - d
	case MetricDot:
		return -d
	default:
		return 1 / (1 + d)
	}
}
