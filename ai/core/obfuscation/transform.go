// Package obfuscation implements the reversible per-user vector transform.
//
// The transform shifts every component by one scalar derived from the user
// key. It hides raw vectors from casual inspection only: the shift can be
// estimated by averaging many vectors under the same key. Stored vectors
// depend on this exact scheme, so it must not be replaced by a stronger
// cipher without migrating existing records.
package obfuscation

import (
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"math"
	"unicode/utf8"

	"github.com/hrygo/embedcore/internal/errs"
)

// Offset returns the scalar added to every component for key.
// The result lies in [-0.05, 0.05).
func Offset(key string) float64 {
	sum := sha256.Sum256([]byte(key))
	seed := binary.BigEndian.Uint32(sum[:4])
	return float64(seed%1000)/10000.0 - 0.05
}

// Obfuscate returns a copy of vec shifted by the key offset.
func Obfuscate(vec []float64, key string) ([]float64, error) {
	if err := check(vec, key); err != nil {
		return nil, err
	}
	offset := Offset(key)
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v + offset
	}
	slog.Debug("obfuscated vector", "dims", len(vec))
	return out, nil
}

// Deobfuscate reverses Obfuscate for the same key.
func Deobfuscate(vec []float64, key string) ([]float64, error) {
	if err := check(vec, key); err != nil {
		return nil, err
	}
	offset := Offset(key)
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v - offset
	}
	slog.Debug("deobfuscated vector", "dims", len(vec))
	return out, nil
}

func check(vec []float64, key string) error {
	if !utf8.ValidString(key) {
		return errs.InvalidArgument("key must be valid UTF-8 text")
	}
	if len(vec) == 0 {
		return errs.InvalidArgument("vector cannot be empty")
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.InvalidArgument("vector[%d] is not finite", i)
		}
	}
	return nil
}

// ToFloat64 widens a float32 vector.
func ToFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

// ToFloat32 narrows a float64 vector for index backends that store float32.
func ToFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
