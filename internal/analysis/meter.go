// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sync/atomic"
)

// Meter measures the level of every block and counts onsets, blocks whose
// RMS exceeds a threshold and rises by more than a ratio over the previous
// block. It never modifies the signal.
type Meter struct {
	threshold float64
	ratio     float64
	lastRMS   float64 // worker goroutine only

	rms    atomic.Uint64 // float64 bits
	peak   atomic.Uint32 // float32 bits
	onsets atomic.Uint64
}

func NewMeter(onsetThreshold, onsetRatio float64) *Meter {
	return &Meter{threshold: onsetThreshold, ratio: onsetRatio}
}

func (m *Meter) Apply(block []float32, channels int) {
	rms := calculateRMS(block)
	if rms > m.threshold && (m.lastRMS == 0 || rms/m.lastRMS > m.ratio) {
		m.onsets.Add(1)
	}
	m.lastRMS = rms
	m.rms.Store(math.Float64bits(rms))
	m.peak.Store(math.Float32bits(peak(block)))
}

// RMS returns the level of the last block.
func (m *Meter) RMS() float64 { return math.Float64frombits(m.rms.Load()) }

// Peak returns the peak amplitude of the last block.
func (m *Meter) Peak() float32 { return math.Float32frombits(m.peak.Load()) }

func (m *Meter) Onsets() uint64 { return m.onsets.Load() }

func calculateRMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, v := range block {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(block)))
}
