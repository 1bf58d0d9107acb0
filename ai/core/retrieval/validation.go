package retrieval

import (
	"fmt"
	"math"

	"github.com/hrygo/embedcore/ai/core/embedding"
	"github.com/hrygo/embedcore/internal/errs"
)

const (
	zeroTolerance = 1e-10
	minStdDev     = 1e-6
)

// ValidateVector checks that vec is fit to store. Failures wrap
// errs.ErrValidationFailed and carry a human-readable reason.
func ValidateVector(vec []float64) error {
	if len(vec) != embedding.Dimensions {
		return rejection("dimension %d, want %d", len(vec), embedding.Dimensions)
	}

	allZero := true
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return rejection("non-finite value at index %d", i)
		}
		if math.Abs(v) >= zeroTolerance {
			allZero = false
		}
	}
	if allZero {
		return rejection("all values are zero")
	}

	uniform := true
	for _, v := range vec[1:] {
		if math.Abs(v-vec[0]) >= zeroTolerance {
			uniform = false
			break
		}
	}
	if uniform {
		return rejection("all values are identical")
	}

	if sd := stdDev(vec); sd < minStdDev {
		return rejection("standard deviation %.3g below %.0e", sd, minStdDev)
	}
	return nil
}

func rejection(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errs.ErrValidationFailed, fmt.Sprintf(format, args...))
}

// stdDev is the population standard deviation.
func stdDev(vec []float64) float64 {
	var mean float64
	for _, v := range vec {
		mean += v
	}
	mean /= float64(len(vec))

	var variance float64
	for _, v := range vec {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(vec)))
}
