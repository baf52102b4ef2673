// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sync"

	"rtbuffer/pkg/rtcfg"
)

// GateSettings is one immutable gate configuration.
type GateSettings struct {
	Enabled   bool    `json:"enabled"`
	Threshold float32 `json:"threshold"` // linear peak amplitude in [0, 1]
}

// Gate silences blocks whose peak amplitude stays below the threshold.
// Settings are changed from any goroutine with Configure and picked up by
// Apply at the start of the next block without locking.
type Gate struct {
	mu sync.Mutex // serialises writers
	rt *rtcfg.Runtime[GateSettings]
}

func NewGate(s GateSettings) *Gate {
	g := &Gate{rt: rtcfg.New[GateSettings](nil)}
	g.Configure(s)
	return g
}

// Configure publishes new settings. The threshold is clamped to [0, 1].
func (g *Gate) Configure(s GateSettings) {
	s.Threshold = min(max(s.Threshold, 0), 1)
	g.mu.Lock()
	g.rt.Push(&s)
	g.mu.Unlock()
}

// Settings returns the most recently configured settings.
func (g *Gate) Settings() GateSettings {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s := g.rt.Peek(); s != nil {
		return *s
	}
	return GateSettings{}
}

func (g *Gate) Apply(block []float32, channels int) {
	s, err := g.rt.Poll()
	if err != nil || !s.Enabled {
		return
	}
	if peak(block) < s.Threshold {
		clear(block)
	}
}

func peak(block []float32) float32 {
	var p float32
	for _, v := range block {
		// clear the sign bit
		a := math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
		if a > p {
			p = a
		}
	}
	return p
}
