// SPDX-License-Identifier: MIT

// Package metrics exports engine statistics to Prometheus.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rtbuffer/internal/audio"
)

const namespace = "rtbuffer"

// Source provides the statistics to export. *audio.Engine implements it.
type Source interface {
	Stats() audio.Stats
}

// EngineCollector reads a fresh Stats snapshot on every scrape, so the
// real-time side never touches Prometheus.
type EngineCollector struct {
	src Source

	callbacks      *prometheus.Desc
	callbackErrors *prometheus.Desc
	generation     *prometheus.Desc
	bufferFill     *prometheus.Desc
	bufferDelay    *prometheus.Desc
	blockSize      *prometheus.Desc
	level          *prometheus.Desc
	onsets         *prometheus.Desc
	gateThreshold  *prometheus.Desc

	recording       *prometheus.Desc
	recorderFill    *prometheus.Desc
	recorderWritten *prometheus.Desc
	recorderXruns   *prometheus.Desc
	recorderStops   *prometheus.Desc
}

var _ prometheus.Collector = (*EngineCollector)(nil)

// NewEngineCollector labels every metric with the engine session.
func NewEngineCollector(src Source, session string) *EngineCollector {
	labels := prometheus.Labels{"session": session}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, variable, labels)
	}
	return &EngineCollector{
		src:            src,
		callbacks:      desc("callbacks_total", "Hardware callbacks handled."),
		callbackErrors: desc("callback_errors_total", "Hardware callbacks that output silence because the double buffer failed."),
		generation:     desc("config_generation", "Generation of the active processing configuration."),
		bufferFill:     desc("buffer_fill_frames", "Frames queued in the double buffer.", "queue"),
		bufferDelay:    desc("buffer_delay_frames", "Latency added by the double buffer."),
		blockSize:      desc("block_size_frames", "Block sizes of the double buffer.", "side"),
		level:          desc("signal_level", "Level of the last processed block.", "measure"),
		onsets:         desc("onsets_total", "Detected onsets."),
		gateThreshold:  desc("gate_threshold", "Noise gate threshold, 0 while the gate is disabled."),

		recording:       desc("recording", "1 while the recorder is writing a file."),
		recorderFill:    desc("recorder_fill_frames", "Frames queued in the recorder's drift tolerant queue."),
		recorderWritten: desc("recorder_frames_written_total", "Frames written to the current recording."),
		recorderXruns:   desc("recorder_xruns_total", "Recorder queue xruns.", "side"),
		recorderStops:   desc("recorder_stops_total", "Times the recorder queue stopped after too many xruns in a row."),
	}
}

func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.callbacks, float64(st.Callbacks))
	counter(c.callbackErrors, float64(st.CallbackErrors))
	gauge(c.generation, float64(st.Generation))
	gauge(c.bufferFill, float64(st.Buffer.InputFill), "input")
	gauge(c.bufferFill, float64(st.Buffer.OutputFill), "output")
	gauge(c.bufferDelay, float64(st.Buffer.Delay))
	gauge(c.blockSize, float64(st.Buffer.OuterSize), "outer")
	gauge(c.blockSize, float64(st.Buffer.InnerSize), "inner")
	gauge(c.level, st.RMS, "rms")
	gauge(c.level, float64(st.Peak), "peak")
	counter(c.onsets, float64(st.Onsets))
	threshold := 0.0
	if st.Gate.Enabled {
		threshold = float64(st.Gate.Threshold)
	}
	gauge(c.gateThreshold, threshold)

	if r := st.Recorder; r != nil {
		recording := 0.0
		if r.Recording {
			recording = 1
		}
		gauge(c.recording, recording)
		gauge(c.recorderFill, float64(r.Fill))
		counter(c.recorderWritten, float64(r.FramesWritten))
		counter(c.recorderXruns, float64(r.Xruns.WriterTotal), "writer")
		counter(c.recorderXruns, float64(r.Xruns.ReaderTotal), "reader")
		counter(c.recorderStops, float64(r.Xruns.Stops))
	}
}

// Metrics owns the registry served on /metrics.
type Metrics struct {
	registry *prometheus.Registry
}

// New registers the engine collector and the Go runtime collectors.
func New(src Source, session string) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		NewEngineCollector(src, session),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return &Metrics{registry: registry}, nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
