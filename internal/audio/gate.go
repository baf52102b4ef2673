// SPDX-License-Identifier: MIT
package audio

import "rtbuffer/internal/analysis"

func (e *Engine) EnableGate() {
	e.updateGate(func(g *analysis.GateSettings) { g.Enabled = true })
}

func (e *Engine) DisableGate() {
	e.updateGate(func(g *analysis.GateSettings) { g.Enabled = false })
}

// SetGateThreshold adjusts the noise gate threshold, a linear peak
// amplitude clamped to [0, 1] where 0 is always open.
func (e *Engine) SetGateThreshold(threshold float64) {
	e.updateGate(func(g *analysis.GateSettings) {
		g.Threshold = float32(min(max(threshold, 0), 1))
	})
}

// GateThreshold returns the current noise gate threshold.
func (e *Engine) GateThreshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(e.gate.Threshold)
}

func (e *Engine) GateEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.Enabled
}

// updateGate changes the settings of the current snapshot's gate. The
// worker sees them at its next block.
func (e *Engine) updateGate(update func(*analysis.GateSettings)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	update(&e.gate)
	if s := e.runtime.Peek(); s != nil {
		s.gate.Configure(e.gate)
	}
}
