// SPDX-License-Identifier: MIT
package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtbuffer/internal/analysis"
	"rtbuffer/internal/audio"
	"rtbuffer/internal/dbasync"
	"rtbuffer/pkg/fifo"
)

type fakeSource struct {
	stats audio.Stats
}

func (f *fakeSource) Stats() audio.Stats { return f.stats }

func newFakeSource() *fakeSource {
	return &fakeSource{stats: audio.Stats{
		Callbacks:      120,
		CallbackErrors: 2,
		Generation:     3,
		Buffer:         dbasync.Stats{OuterSize: 256, InnerSize: 512, Delay: 256, InputFill: 300, OutputFill: 10},
		Gate:           analysis.GateSettings{Enabled: true, Threshold: 0.25},
		RMS:            0.5,
		Peak:           0.75,
		Onsets:         4,
	}}
}

func TestEngineCollector(t *testing.T) {
	src := newFakeSource()
	c := NewEngineCollector(src, "s1")

	expected := `
# HELP rtbuffer_buffer_fill_frames Frames queued in the double buffer.
# TYPE rtbuffer_buffer_fill_frames gauge
rtbuffer_buffer_fill_frames{queue="input",session="s1"} 300
rtbuffer_buffer_fill_frames{queue="output",session="s1"} 10
# HELP rtbuffer_callbacks_total Hardware callbacks handled.
# TYPE rtbuffer_callbacks_total counter
rtbuffer_callbacks_total{session="s1"} 120
# HELP rtbuffer_gate_threshold Noise gate threshold, 0 while the gate is disabled.
# TYPE rtbuffer_gate_threshold gauge
rtbuffer_gate_threshold{session="s1"} 0.25
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"rtbuffer_buffer_fill_frames", "rtbuffer_callbacks_total", "rtbuffer_gate_threshold"))

	// 12 engine series, no recorder
	assert.Equal(t, 12, testutil.CollectAndCount(c))
}

func TestEngineCollectorRecorder(t *testing.T) {
	src := newFakeSource()
	src.stats.Gate.Enabled = false
	src.stats.Recorder = &audio.RecorderStats{
		Recording:     true,
		FramesWritten: 4800,
		Fill:          1024,
		Xruns:         fifo.XrunStats{WriterTotal: 5, ReaderTotal: 7, Stops: 1},
	}
	c := NewEngineCollector(src, "s1")

	assert.Equal(t, 12+6, testutil.CollectAndCount(c))
	expected := `
# HELP rtbuffer_recorder_xruns_total Recorder queue xruns.
# TYPE rtbuffer_recorder_xruns_total counter
rtbuffer_recorder_xruns_total{session="s1",side="reader"} 7
rtbuffer_recorder_xruns_total{session="s1",side="writer"} 5
# HELP rtbuffer_gate_threshold Noise gate threshold, 0 while the gate is disabled.
# TYPE rtbuffer_gate_threshold gauge
rtbuffer_gate_threshold{session="s1"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"rtbuffer_recorder_xruns_total", "rtbuffer_gate_threshold"))
}

func TestHandler(t *testing.T) {
	m, err := New(newFakeSource(), "s1")
	require.NoError(t, err)
	require.NotNil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rtbuffer_config_generation{session="s1"} 3`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRegistryGather(t *testing.T) {
	m, err := New(newFakeSource(), "s1")
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	blocks := byName["rtbuffer_block_size_frames"]
	require.NotNil(t, blocks)
	assert.Equal(t, dto.MetricType_GAUGE, blocks.GetType())
	sizes := map[string]float64{}
	for _, metric := range blocks.GetMetric() {
		for _, l := range metric.GetLabel() {
			if l.GetName() == "side" {
				sizes[l.GetValue()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"outer": 256, "inner": 512}, sizes)

	onsets := byName["rtbuffer_onsets_total"]
	require.NotNil(t, onsets)
	assert.Equal(t, dto.MetricType_COUNTER, onsets.GetType())
	assert.Equal(t, 4.0, onsets.GetMetric()[0].GetCounter().GetValue())
}
