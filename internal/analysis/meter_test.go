// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeterLevels(t *testing.T) {
	m := NewMeter(0.2, 1.5)
	b := []float32{0.5, -0.5, 0.5, -0.5}
	m.Apply(b, 1)
	assert.InDelta(t, 0.5, m.RMS(), 1e-9)
	assert.Equal(t, float32(0.5), m.Peak())
	assert.Equal(t, []float32{0.5, -0.5, 0.5, -0.5}, b, "meter must not modify the signal")
}

func TestMeterOnsets(t *testing.T) {
	m := NewMeter(0.2, 1.5)
	quiet := []float32{0.01, -0.01}
	loud := []float32{0.6, -0.6}

	m.Apply(quiet, 1)
	assert.Equal(t, uint64(0), m.Onsets(), "below threshold")
	m.Apply(loud, 1)
	assert.Equal(t, uint64(1), m.Onsets())
	m.Apply(loud, 1)
	assert.Equal(t, uint64(1), m.Onsets(), "sustained level is no onset")
	m.Apply(quiet, 1)
	m.Apply(loud, 1)
	assert.Equal(t, uint64(2), m.Onsets())
}

func TestCalculateRMS(t *testing.T) {
	assert.Equal(t, 0.0, calculateRMS(nil))
	assert.InDelta(t, 1/math.Sqrt2, calculateRMS([]float32{1, 0}), 1e-9)
}
