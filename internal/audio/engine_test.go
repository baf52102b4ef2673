// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtbuffer/internal/analysis"
	"rtbuffer/internal/config"
	"rtbuffer/internal/dbasync"
	"rtbuffer/pkg/utils"
)

const (
	testSampleRate = 48000
	testFrameSize  = 64
	testInnerSize  = 128
)

// manualStream lets a test call the engine callback directly.
type manualStream struct {
	cb      Callback
	started bool
	closed  bool
}

func (m *manualStream) Start() error { m.started = true; return nil }
func (m *manualStream) Stop() error  { m.started = false; return nil }
func (m *manualStream) Close() error { m.closed = true; return nil }

func manualOpener(ms *manualStream) StreamOpener {
	return func(cfg config.AudioConfig, cb Callback) (Stream, error) {
		ms.cb = cb
		return ms, nil
	}
}

func newTestConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Audio.SampleRate = testSampleRate
	cfg.Audio.FramesPerBuffer = testFrameSize
	cfg.Audio.InputChannels = 1
	cfg.Audio.OutputChannels = 2
	cfg.Processing.InnerBlockSize = testInnerSize
	cfg.Processing.Gate.Enabled = false
	cfg.Transport.StatsInterval = 5 * time.Millisecond
	return cfg
}

func newManualEngine(t *testing.T, cfg *config.Config, opts ...Option) (*Engine, *manualStream) {
	t.Helper()
	ms := &manualStream{}
	e, err := NewEngine(cfg, append([]Option{WithStreamOpener(manualOpener(ms)), WithSession("test")}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.Start())
	return e, ms
}

// run feeds blocks of consecutive ramp samples and returns the left output
// channel.
func run(ms *manualStream, blocks int, next *float32) []float32 {
	in := make([]float32, testFrameSize)
	out := make([]float32, 2*testFrameSize)
	var left []float32
	for range blocks {
		for i := range in {
			in[i] = *next
			*next++
		}
		ms.cb(in, out)
		for f := range testFrameSize {
			left = append(left, out[2*f])
		}
	}
	return left
}

func TestEngineDelaysAndMapsChannels(t *testing.T) {
	cfg := newTestConfig()
	e, ms := newManualEngine(t, cfg)
	assert.True(t, ms.started)
	assert.ErrorIs(t, e.Start(), ErrRunning)

	next := float32(1)
	left := run(ms, 8, &next)

	delay := cfg.EffectiveDelay()
	require.Equal(t, testInnerSize-testFrameSize, delay)
	for k, v := range left {
		want := float32(0)
		if k >= delay {
			want = float32(k - delay + 1)
		}
		require.Equal(t, want, v, "frame %d", k)
	}

	st := e.Stats()
	assert.Equal(t, "stats", st.Type)
	assert.Equal(t, "test", st.Session)
	assert.Equal(t, uint64(8), st.Callbacks)
	assert.Zero(t, st.CallbackErrors)
	assert.Equal(t, uint64(1), st.Generation)
	assert.Equal(t, testInnerSize, st.Buffer.InnerSize)
	assert.Nil(t, st.Recorder)
}

func TestEngineReload(t *testing.T) {
	cfg := newTestConfig()
	e, ms := newManualEngine(t, cfg)
	next := float32(1)
	run(ms, 4, &next)
	first := e.runtime.Peek()

	updated := newTestConfig()
	updated.Processing.InnerBlockSize = 32
	require.NoError(t, e.Reload(updated))
	assert.Equal(t, uint64(2), e.Stats().Generation)
	assert.Equal(t, 32, e.Config().Processing.InnerBlockSize)

	// the first callback after the reload switches to the new buffer
	run(ms, 2, &next)
	e.publish()
	select {
	case <-first.buffer.Done():
	case <-time.After(time.Second):
		t.Fatal("old double buffer was not released")
	}
	assert.ErrorIs(t, first.buffer.Err(), dbasync.ErrTerminated)
}

func TestEngineReloadRejectsAudioChanges(t *testing.T) {
	cfg := newTestConfig()
	e, _ := newManualEngine(t, cfg)

	updated := newTestConfig()
	updated.Audio.FramesPerBuffer = 128
	assert.ErrorIs(t, e.Reload(updated), ErrRestartNeeded)
	assert.Equal(t, uint64(1), e.Stats().Generation)

	invalid := newTestConfig()
	invalid.Processing.InnerBlockSize = 0
	assert.ErrorIs(t, e.Reload(invalid), config.ErrInvalid)
}

func TestEngineCallbackAfterWorkerFailure(t *testing.T) {
	cfg := newTestConfig()
	e, ms := newManualEngine(t, cfg)
	s := e.runtime.Peek()
	require.NoError(t, s.buffer.Close())

	out := make([]float32, 2*testFrameSize)
	out[0] = 1
	ms.cb(make([]float32, testFrameSize), out)
	assert.Equal(t, make([]float32, 2*testFrameSize), out, "output is silenced")
	assert.Equal(t, uint64(1), e.Stats().CallbackErrors)
}

func TestEngineClose(t *testing.T) {
	cfg := newTestConfig()
	e, ms := newManualEngine(t, cfg)
	s := e.runtime.Peek()

	require.NoError(t, e.Close())
	assert.True(t, ms.closed)
	assert.False(t, ms.started)
	<-s.buffer.Done()
	assert.NoError(t, e.Close())
	assert.ErrorIs(t, e.Start(), errEngineShutdown)
	assert.ErrorIs(t, e.Reload(newTestConfig()), errEngineShutdown)
	assert.Zero(t, e.Stats().Generation)
}

func TestEngineRunPublishes(t *testing.T) {
	cfg := newTestConfig()
	cfg.Processing.Spectrum.Enabled = true
	mock := &utils.MockTransport{}

	var offset int
	source := func(in []float32) bool {
		offset = utils.FillSineWave(in, offset, testSampleRate, 1000)
		return true
	}
	open, opened := NewSimulatedOpener(source, nil)
	e, err := NewEngine(cfg, WithStreamOpener(open), WithTransport(mock))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.NotZero(t, opened().Blocks())

	var stats, spectra int
	for _, m := range mock.Messages() {
		switch msg := m.(type) {
		case Stats:
			stats++
			assert.Equal(t, e.Session(), msg.Session)
		case analysis.SpectrumMessage:
			spectra++
			assert.Len(t, msg.Magnitudes, testInnerSize/2+1)
		}
	}
	assert.NotZero(t, stats)
	assert.NotZero(t, spectra)
}

func TestEngineCallbackHotPath(t *testing.T) {
	cfg := newTestConfig()
	_, ms := newManualEngine(t, cfg)
	in := make([]float32, testFrameSize)
	out := make([]float32, 2*testFrameSize)
	ms.cb(in, out)

	allocs := testing.AllocsPerRun(100, func() {
		ms.cb(in, out)
	})
	if allocs > 0 {
		t.Errorf("engine callback allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func TestEngineRunWhileReloading(t *testing.T) {
	cfg := newTestConfig()
	open, _ := NewSimulatedOpener(func(in []float32) bool { return true }, nil)
	e, err := NewEngine(cfg, WithStreamOpener(open), WithTransport(&utils.MockTransport{}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// Reload replaces the configuration Run started from
	for i := range 20 {
		updated := newTestConfig()
		updated.Transport.StatsInterval = time.Duration(i+1) * time.Millisecond
		if err := e.Reload(updated); err != nil {
			assert.ErrorIs(t, err, errEngineShutdown)
			break
		}
	}
	require.NoError(t, <-done)
}
