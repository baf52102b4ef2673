// SPDX-License-Identifier: MIT
package analysis

import "math"

// Band is a named frequency range. HighHz of 0 extends the band to the top
// of the spectrum.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

var DefaultBands = []Band{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000},
}

// BandEnergy is the level of one band, the RMS of its bin magnitudes
// clamped to 1.
type BandEnergy struct {
	Name  string  `json:"name"`
	Level float64 `json:"level"`
}

// BandLevels computes the level of every band from a magnitude spectrum
// with bins binHz apart. The result is appended to dst[:0].
func BandLevels(mags []float64, binHz float64, bands []Band, dst []BandEnergy) []BandEnergy {
	dst = dst[:0]
	for _, b := range bands {
		var energy float64
		var n int
		for i, m := range mags {
			f := float64(i) * binHz
			if f < b.LowHz || (b.HighHz > 0 && f >= b.HighHz) {
				continue
			}
			energy += m * m
			n++
		}
		level := 0.0
		if n > 0 {
			level = math.Min(1, math.Sqrt(energy/float64(n)))
		}
		dst = append(dst, BandEnergy{Name: b.Name, Level: level})
	}
	return dst
}
