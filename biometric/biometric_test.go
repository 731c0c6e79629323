// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package biometric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offset returns a 128-value descriptor whose distance from the zero vector is d.
func offset(d float64) []float64 {
	desc := make([]float64, 128)
	desc[0] = d
	return desc
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{0.1, 0.2}, []float64{0.1, 0.2}, 0},
		{"three four five", []float64{0, 0}, []float64{3, 4}, 5},
		{"length mismatch", []float64{0, 0}, []float64{0, 0, 0}, 1},
		{"both empty", nil, nil, 1},
		{"128 dims", make([]float64, 128), offset(0.4), 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), 1e-9)
		})
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := []float64{0.3, -0.1, 0.7}
	b := []float64{-0.2, 0.4, 0.1}
	assert.Equal(t, Distance(a, b), Distance(b, a))
}

func TestMatchThresholds(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		ctx      Context
		want     bool
	}{
		{"login well under", 0.30, ContextLogin, true},
		{"login just under", 0.5499, ContextLogin, true},
		{"login at threshold", 0.55, ContextLogin, false},
		{"login over", 0.60, ContextLogin, false},
		{"verify under", 0.40, ContextExplicitVerify, true},
		{"verify at threshold", 0.45, ContextExplicitVerify, false},
		{"verify between thresholds", 0.50, ContextExplicitVerify, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.distance, ThresholdFor(tt.ctx)))
		})
	}
}

func TestCompare(t *testing.T) {
	enrolled := make([]float64, 128)

	d, err := Compare(offset(0.40), enrolled, ContextExplicitVerify)
	require.NoError(t, err)
	assert.InDelta(t, 0.40, d, 1e-9)

	d, err = Compare(offset(0.50), enrolled, ContextExplicitVerify)
	assert.ErrorIs(t, err, ErrMismatch)
	assert.InDelta(t, 0.50, d, 1e-9)

	// Same descriptor passes the looser login threshold
	_, err = Compare(offset(0.50), enrolled, ContextLogin)
	assert.NoError(t, err)
}

func TestParseDescriptor(t *testing.T) {
	desc, err := ParseDescriptor("[0.1,0.2,0.3]")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, desc)

	corrupt := []string{
		"",
		"not json",
		"{}",
		"[]",
		`["a","b"]`,
		"[0.1,",
	}
	for _, raw := range corrupt {
		_, err := ParseDescriptor(raw)
		assert.ErrorIs(t, err, ErrCorruptBiometricData, "input %q", raw)
	}
}

func TestEncodeDescriptor(t *testing.T) {
	raw, err := EncodeDescriptor([]float64{0.5, -0.25})
	require.NoError(t, err)
	assert.Equal(t, "[0.5,-0.25]", raw)

	back, err := ParseDescriptor(raw)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.25}, back)

	_, err = EncodeDescriptor(nil)
	assert.ErrorIs(t, err, ErrEmptyDescriptor)

	_, err = EncodeDescriptor([]float64{math.NaN()})
	assert.Error(t, err)
}
