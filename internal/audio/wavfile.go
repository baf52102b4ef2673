// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrNotWAV = errors.New("not a valid WAV file")

// PCM is an interleaved float32 signal in [-1, 1].
type PCM struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of frames in p.
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// ReadWAV decodes an integer PCM WAV file.
func ReadWAV(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrNotWAV, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	pcm := &PCM{
		Samples:    make([]float32, len(buf.Data)),
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}
	pcmToFloat(pcm.Samples, buf.Data, int(dec.BitDepth))
	return pcm, nil
}

// WriteWAV encodes p as integer PCM with the given bit depth.
func WriteWAV(path string, p *PCM, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, p.SampleRate, bitDepth, p.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
		Data:           make([]int, len(p.Samples)),
		SourceBitDepth: bitDepth,
	}
	floatToPCM(buf.Data, p.Samples, bitDepth)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finish %s: %w", path, err)
	}
	return f.Close()
}

func fullScale(bitDepth int) float64 {
	return float64(int64(1)<<(bitDepth-1) - 1)
}

// floatToPCM converts and clips src to integers of bitDepth bits.
func floatToPCM(dst []int, src []float32, bitDepth int) {
	scale := fullScale(bitDepth)
	for i, v := range src {
		x := math.Round(float64(v) * scale)
		dst[i] = int(min(max(x, -scale-1), scale))
	}
}

func pcmToFloat(dst []float32, src []int, bitDepth int) {
	scale := 1 / fullScale(bitDepth)
	for i, v := range src {
		dst[i] = float32(float64(v) * scale)
	}
}
