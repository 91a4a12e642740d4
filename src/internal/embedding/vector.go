package embedding

import (
	"errors"
	"math"
)

// ErrZeroVector is returned when a vector cannot be normalized.
var ErrZeroVector = errors.New("zero vector cannot be normalized")

// Dot returns the inner product of a and b over their common length.
func Dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

func Norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float32) ([]float32, error) {
	n := Norm(v)
	if n == 0 || math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
		return nil, ErrZeroVector
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out, nil
}

// IsNormalized reports whether v has unit length within tolerance.
func IsNormalized(v []float32) bool {
	return math.Abs(float64(Norm(v))-1) < 1e-4
}

// Blend returns normalize((1-alpha)*a + alpha*b).
func Blend(a, b []float32, alpha float32) ([]float32, error) {
	if len(a) != len(b) {
		return nil, errors.New("blend: dimension mismatch")
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = (1-alpha)*a[i] + alpha*b[i]
	}
	return Normalize(out)
}
