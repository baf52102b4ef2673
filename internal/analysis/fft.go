// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math/cmplx"
	"strings"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"rtbuffer/internal/log"
	"rtbuffer/pkg/bitint"
)

// WindowFunc selects the window applied before the FFT.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = [...]string{"BartlettHann", "Blackman", "BlackmanNuttall", "Hann", "Hamming", "Lanczos", "Nuttall"}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

var ErrUnknownWindow = errors.New("unknown window function")

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. Unknown
// names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("%w: %q", ErrUnknownWindow, name)
	}
}

// applyWindow fills coeffs with the window. Unknown types get Hann.
func applyWindow(coeffs []float64, w WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch w {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}

// Spectrum computes the magnitude spectrum of every block, mixed down to
// mono. Magnitudes are scaled so that a full scale sine on a bin centre
// reads the window's coherent gain.
type Spectrum struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	windowType WindowFunc

	// worker goroutine only
	window []float64
	input  []float64
	coeffs []complex128

	mu        sync.RWMutex
	magnitude []float64
	blocks    atomic.Uint64
}

var _ Stage = (*Spectrum)(nil)

// NewSpectrum creates an analyser for size point transforms. Blocks shorter
// than size are zero padded, longer blocks are truncated.
func NewSpectrum(size int, sampleRate float64, w WindowFunc) (*Spectrum, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	coeffs := make([]float64, size)
	applyWindow(coeffs, w)
	bins := size/2 + 1

	log.For("analysis").Debugf("spectrum: size %d, sample rate %.1f Hz, window %v", size, sampleRate, w)

	return &Spectrum{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		windowType: w,
		window:     coeffs,
		input:      make([]float64, size),
		coeffs:     make([]complex128, bins),
		magnitude:  make([]float64, bins),
	}, nil
}

func (s *Spectrum) Apply(block []float32, channels int) {
	if channels <= 0 {
		return
	}
	frames := len(block) / channels
	gain := 1 / float64(channels)
	for i := range s.size {
		if i >= frames {
			s.input[i] = 0
			continue
		}
		var sum float64
		for _, v := range block[i*channels : (i+1)*channels] {
			sum += float64(v)
		}
		s.input[i] = sum * gain * s.window[i]
	}

	s.fft.Coefficients(s.coeffs, s.input)

	scale := 2 / float64(s.size)
	s.mu.Lock()
	for i, c := range s.coeffs {
		s.magnitude[i] = cmplx.Abs(c) * scale
	}
	s.mu.Unlock()
	s.blocks.Add(1)
}

// Magnitudes returns a copy of the latest spectrum.
func (s *Spectrum) Magnitudes() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.magnitude))
	copy(out, s.magnitude)
	return out
}

// MagnitudesInto copies the latest spectrum into dst, which must have Bins
// elements.
func (s *Spectrum) MagnitudesInto(dst []float64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(dst) != len(s.magnitude) {
		return fmt.Errorf("destination length %d does not match %d bins", len(dst), len(s.magnitude))
	}
	copy(dst, s.magnitude)
	return nil
}

// FrequencyForBin returns the centre frequency of bin in Hz, or 0 when bin
// is out of range.
func (s *Spectrum) FrequencyForBin(bin int) float64 {
	if bin < 0 || bin >= len(s.magnitude) {
		return 0
	}
	return float64(bin) * s.BinWidth()
}

func (s *Spectrum) BinWidth() float64   { return s.sampleRate / float64(s.size) }
func (s *Spectrum) Size() int           { return s.size }
func (s *Spectrum) Bins() int           { return s.size/2 + 1 }
func (s *Spectrum) SampleRate() float64 { return s.sampleRate }
func (s *Spectrum) Window() WindowFunc  { return s.windowType }

// Blocks returns the number of blocks analysed so far.
func (s *Spectrum) Blocks() uint64 { return s.blocks.Load() }

// SpectrumMessage is the JSON form of one spectrum sent to observers.
type SpectrumMessage struct {
	Type       string       `json:"type"`
	Session    string       `json:"session"`
	Block      uint64       `json:"block"`
	BinHz      float64      `json:"bin_hz"`
	Magnitudes []float64    `json:"magnitudes"`
	Bands      []BandEnergy `json:"bands"`
}

// Snapshot builds a message from the latest spectrum.
func (s *Spectrum) Snapshot(session string, bands []Band) SpectrumMessage {
	mags := s.Magnitudes()
	return SpectrumMessage{
		Type:       "spectrum",
		Session:    session,
		Block:      s.Blocks(),
		BinHz:      s.BinWidth(),
		Magnitudes: mags,
		Bands:      BandLevels(mags, s.BinWidth(), bands, nil),
	}
}
