// SPDX-License-Identifier: MIT

// Package utils provides deterministic test signals and test doubles.
package utils

import "math"

// Amplitude of the generated waves, a little below full scale.
const Amplitude = 0.9

// GenerateComplexWave returns a 440 Hz tone with its second and third
// harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * Amplitude)
	}
	return buffer
}

func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	FillSineWave(buffer, 0, sampleRate, frequency)
	return buffer
}

// FillSineWave writes a sine starting at sample offset into buffer and
// returns the offset of the next sample, so consecutive blocks join up.
func FillSineWave(buffer []float32, offset int, sampleRate, frequency float64) int {
	for i := range buffer {
		t := float64(offset+i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * Amplitude)
	}
	return offset + len(buffer)
}

// Ramp returns 1, 2, ... n. Every sample is distinct, which makes lost,
// duplicated or reordered samples visible.
func Ramp(n int) []float32 {
	buffer := make([]float32, n)
	for i := range buffer {
		buffer[i] = float32(i + 1)
	}
	return buffer
}

// Interleave combines equally long channel buffers into frames.
func Interleave(channels ...[]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	frames := len(channels[0])
	out := make([]float32, frames*len(channels))
	for c, ch := range channels {
		for f := range frames {
			out[f*len(channels)+c] = ch[f]
		}
	}
	return out
}

func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
