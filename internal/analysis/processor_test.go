// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtbuffer/pkg/fifo"
	"rtbuffer/pkg/utils"
)

func TestPipelineChannelMapping(t *testing.T) {
	tests := []struct {
		name        string
		inCh, outCh int
		in          []float32
		want        []float32
	}{
		{"Mono to stereo", 1, 2, []float32{1, 2, 3}, []float32{1, 1, 2, 2, 3, 3}},
		{"Stereo to mono", 2, 1, []float32{1, 2, 3, 4}, []float32{1, 3}},
		{"Stereo to stereo", 2, 2, []float32{1, 2, 3, 4}, []float32{1, 2, 3, 4}},
		{"Stereo to three", 2, 3, []float32{1, 2}, []float32{1, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPipeline(tt.inCh, tt.outCh)
			require.NoError(t, err)
			out := make([]float32, len(tt.want))
			require.NoError(t, p.Process(tt.in, out))
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	double := StageFunc(func(block []float32, _ int) {
		for i := range block {
			block[i] *= 2
		}
	})
	inc := StageFunc(func(block []float32, _ int) {
		for i := range block {
			block[i]++
		}
	})
	p, err := NewPipeline(1, 1, double, inc)
	require.NoError(t, err)
	assert.Len(t, p.Stages(), 2)

	in := utils.Ramp(4)
	out := make([]float32, 4)
	require.NoError(t, p.Process(in, out))
	assert.Equal(t, []float32{3, 5, 7, 9}, out)
	assert.Equal(t, utils.Ramp(4), in, "input must not be modified")
}

func TestPipelineValidation(t *testing.T) {
	_, err := NewPipeline(0, 1)
	assert.ErrorIs(t, err, fifo.ErrConfiguration)

	p, err := NewPipeline(2, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Process(make([]float32, 3), make([]float32, 1)), fifo.ErrConfiguration)
	assert.ErrorIs(t, p.Process(make([]float32, 4), make([]float32, 4)), fifo.ErrConfiguration)
}

func TestPipelineHotPath(t *testing.T) {
	p, err := NewPipeline(1, 2, NewGate(GateSettings{Enabled: true, Threshold: 0.5}), NewMeter(0.1, 2))
	require.NoError(t, err)
	in := utils.GenerateSineWave(512, 48000, 440)
	out := make([]float32, 1024)
	require.NoError(t, p.Process(in, out))

	allocs := testing.AllocsPerRun(100, func() {
		_ = p.Process(in, out)
	})
	if allocs > 0 {
		t.Errorf("Pipeline.Process allocated memory: got %.1f allocs, want 0", allocs)
	}
}
