// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package biometric

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Match thresholds. A live descriptor matches when its distance to the enrolled
// descriptor is strictly below the threshold for the context.
const (
	ThresholdLogin          = 0.55
	ThresholdExplicitVerify = 0.45
)

// Context selects the threshold applied to a comparison.
type Context int

const (
	ContextLogin Context = iota
	ContextExplicitVerify
)

var (
	// ErrCorruptBiometricData means a stored descriptor could not be decoded.
	ErrCorruptBiometricData = errors.New("corrupt biometric data")

	// ErrMismatch means the live descriptor was too far from the enrolled descriptor.
	ErrMismatch = errors.New("face does not match")

	// ErrEmptyDescriptor means no descriptor values were supplied.
	ErrEmptyDescriptor = errors.New("empty face descriptor")
)

// ThresholdFor returns the match threshold for ctx.
func ThresholdFor(ctx Context) float64 {
	if ctx == ContextExplicitVerify {
		return ThresholdExplicitVerify
	}
	return ThresholdLogin
}

// Distance is the Euclidean distance between two descriptors. Descriptors of
// different length can never match and report a distance of 1.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match reports whether distance d is under threshold.
func Match(d, threshold float64) bool {
	return d < threshold
}

// Compare returns the distance between live and enrolled and ErrMismatch
// when it does not clear the threshold for ctx.
func Compare(live, enrolled []float64, ctx Context) (float64, error) {
	d := Distance(live, enrolled)
	if !Match(d, ThresholdFor(ctx)) {
		return d, ErrMismatch
	}
	return d, nil
}

// Validate checks that a live descriptor is present and holds only finite
// values.
func Validate(desc []float64) error {
	if len(desc) == 0 {
		return ErrEmptyDescriptor
	}
	for i, v := range desc {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("descriptor value %d is not finite", i)
		}
	}
	return nil
}

// ParseDescriptor decodes a stored descriptor. Anything other than a
// non-empty JSON array of finite numbers is ErrCorruptBiometricData.
func ParseDescriptor(raw string) ([]float64, error) {
	var desc []float64
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBiometricData, err)
	}
	if err := Validate(desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBiometricData, err)
	}
	return desc, nil
}

// EncodeDescriptor serializes a descriptor for storage.
func EncodeDescriptor(desc []float64) (string, error) {
	if err := Validate(desc); err != nil {
		return "", err
	}
	b, err := json.Marshal(desc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
