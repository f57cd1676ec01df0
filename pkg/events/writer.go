/*
Copyright 2022 The Nerfstudio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ignatpenshin/nerfstudio/pkg/config"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/files"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Well-known event names emitted by the training loop.
const (
	TotalTrainTime = "Train Total Time"
	IterLoadTime   = "Train Iter (Load) Time"
	IterTrainTime  = "Train Iter (Train) Time"
	RaysPerSec     = "Train Rays / Sec"
	TestPSNR       = "Test PSNR"
)

type Event struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Step      int     `json:"step"`
	RunID     string  `json:"run_id"`
	Timestamp int64   `json:"timestamp"`
}

// Writer buffers scalar events in memory and persists them on flush. It is
// constructed once per process and passed by reference to every component
// that emits events; there is no package-level writer state.
type Writer struct {
	mu      sync.Mutex
	backlog []Event

	runID      string
	eventsPath string
	log        *zap.SugaredLogger

	statsdClient statsd.ClientInterface
	pendingCount *atomic.Int64

	registry      *prometheus.Registry
	stepGauge     prometheus.Gauge
	scalarGauges  *prometheus.GaugeVec
	flushCounter  prometheus.Counter
	backlogLength prometheus.Gauge
}

type WriterOptions struct {
	RunID         string
	EventsDir     string
	StatsdAddress string
}

func NewWriter(opts WriterOptions, log *zap.SugaredLogger) (*Writer, error) {
	eventsPath := ""
	if opts.EventsDir != "" {
		if _, err := files.CreateDirIfMissing(opts.EventsDir); err != nil {
			return nil, err
		}
		eventsPath = filepath.Join(opts.EventsDir, "events.jsonl")
	}

	var statsdClient statsd.ClientInterface = &statsd.NoOpClient{}
	if opts.StatsdAddress != "" {
		client, err := statsd.New(opts.StatsdAddress)
		if err != nil {
			return nil, errors.Wrap(err, "unable to initialize statsd client")
		}
		statsdClient = client
	}

	registry := prometheus.NewRegistry()
	promFactory := promauto.With(registry)

	return &Writer{
		runID:        opts.RunID,
		eventsPath:   eventsPath,
		log:          log,
		statsdClient: statsdClient,
		pendingCount: atomic.NewInt64(0),
		registry:     registry,
		stepGauge: promFactory.NewGauge(prometheus.GaugeOpts{
			Name: "nerf_training_step",
			Help: "current training step",
		}),
		scalarGauges: promFactory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nerf_scalar_event",
			Help: "latest value of each named scalar event",
		}, []string{"name"}),
		flushCounter: promFactory.NewCounter(prometheus.CounterOpts{
			Name: "nerf_event_flushes_total",
			Help: "number of event storage flushes",
		}),
		backlogLength: promFactory.NewGauge(prometheus.GaugeOpts{
			Name: "nerf_event_backlog_length",
			Help: "number of buffered events awaiting flush",
		}),
	}, nil
}

func (w *Writer) PutScalar(name string, value float64, step int) {
	w.mu.Lock()
	w.backlog = append(w.backlog, Event{
		Name:      name,
		Value:     value,
		Step:      step,
		RunID:     w.runID,
		Timestamp: time.Now().UnixNano(),
	})
	backlogLen := len(w.backlog)
	w.mu.Unlock()

	w.pendingCount.Inc()
	w.backlogLength.Set(float64(backlogLen))
	w.stepGauge.Set(float64(step))
	w.scalarGauges.WithLabelValues(name).Set(value)

	if err := w.statsdClient.Gauge(statsdName(name), value, nil, 1); err != nil {
		w.log.Debugw("failed to emit statsd gauge", "name", name, "error", err)
	}
}

func (w *Writer) PutDict(name string, scalars map[string]float64, step int) {
	for key, value := range scalars {
		w.PutScalar(name+"/"+key, value, step)
	}
}

// WriteOutStorage appends the buffered backlog to the events file and clears
// it. The backlog is swapped out under the lock so a slow disk never blocks
// PutScalar callers for the duration of the write.
func (w *Writer) WriteOutStorage() error {
	w.mu.Lock()
	backlog := w.backlog
	w.backlog = nil
	w.mu.Unlock()

	w.flushCounter.Inc()
	w.backlogLength.Set(0)
	w.pendingCount.Store(0)

	if len(backlog) == 0 || w.eventsPath == "" {
		return nil
	}

	f, err := os.OpenFile(w.eventsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return ErrorWriteEvents(w.eventsPath, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := range backlog {
		if err := enc.Encode(&backlog[i]); err != nil {
			return ErrorWriteEvents(w.eventsPath, err)
		}
	}

	return nil
}

// PendingEvents reports the number of events buffered since the last flush.
func (w *Writer) PendingEvents() int64 {
	return w.pendingCount.Load()
}

// ServeMetrics exposes the writer's prometheus registry; it blocks, so run it
// in its own goroutine.
func (w *Writer) ServeMetrics(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(w.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

func (w *Writer) Close() {
	_ = w.WriteOutStorage()
	_ = w.statsdClient.Close()
}

func statsdName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c-'A'+'a')
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '.':
			out = append(out, c)
		case c == '/' || c == ' ' || c == '-' || c == '_':
			if len(out) > 0 && out[len(out)-1] != '_' {
				out = append(out, '_')
			}
		}
	}
	return "nerf." + string(out)
}

// NewWriterFromConfig wires the writer from the resolved training config.
func NewWriterFromConfig(cfg *config.Config, runID string, log *zap.SugaredLogger) (*Writer, error) {
	return NewWriter(WriterOptions{
		RunID:         runID,
		EventsDir:     cfg.Logging.EventsDir,
		StatsdAddress: cfg.Metrics.StatsdAddress,
	}, log)
}
