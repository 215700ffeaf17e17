// Copyright 2024 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"errors"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils/hwstats"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/config"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
)

// tickBuckets lists histogram buckets for tick processing time, in seconds.
var tickBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005,
}

// Monitor exports engine metrics. It implements dahdi.Observer.
type Monitor struct {
	nodeID string
	log    logger.Logger

	ticks         prometheus.Counter
	missedTicks   prometheus.Counter
	spanReceived  *prometheus.CounterVec
	events        *prometheus.CounterVec
	masterChanges prometheus.Counter
	master        *prometheus.GaugeVec
	durTick       prometheus.Histogram
	tickAvg       prometheus.GaugeFunc
	tickMax       prometheus.GaugeFunc
	ticksLate     prometheus.CounterFunc
	confsActive   prometheus.GaugeFunc
	cpuLoad       prometheus.Gauge

	cpu      *hwstats.CPUStats
	tickTime *TickStat

	mu         sync.Mutex
	lastMaster string
	confs      func() int

	metrics  []prometheus.Collector
	started  core.Fuse
	shutdown core.Fuse
}

func NewMonitor(conf *config.Config) (*Monitor, error) {
	interval := conf.TickInterval
	if interval <= 0 {
		interval = config.DefaultTickInterval
	}
	m := &Monitor{
		nodeID:   conf.NodeID,
		log:      logger.GetLogger(),
		tickTime: NewTickStat(interval),
	}
	cpu, err := hwstats.NewCPUStats(func(idle float64) {
		if m.started.IsBroken() {
			m.cpuLoad.Set(1 - idle/m.cpu.NumCPU())
		}
	})
	if err != nil {
		return nil, err
	}
	m.cpu = cpu
	return m, nil
}

func mustRegister[T prometheus.Collector](m *Monitor, c T) T {
	err := prometheus.Register(c)
	if err != nil {
		var e prometheus.AlreadyRegisteredError
		if errors.As(err, &e) {
			return e.ExistingCollector.(T)
		} else {
			panic(err)
		}
	}
	m.metrics = append(m.metrics, c)
	return c
}

// SetConfSource installs the function reporting the number of live conferences.
func (m *Monitor) SetConfSource(fn func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confs = fn
}

func (m *Monitor) Start(conf *config.Config) error {
	prometheus.Unregister(collectors.NewGoCollector())
	mustRegister(m, collectors.NewGoCollector(collectors.WithGoCollectorRuntimeMetrics(collectors.MetricsAll)))

	labels := prometheus.Labels{"node_id": conf.NodeID}

	m.ticks = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "dahdi",
		Subsystem:   "engine",
		Name:        "ticks",
		Help:        "Number of pipeline ticks run",
		ConstLabels: labels,
	}))

	m.missedTicks = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "dahdi",
		Subsystem:   "engine",
		Name:        "ticks_missed",
		Help:        "Number of ticks skipped because the pipeline fell behind",
		ConstLabels: labels,
	}))

	m.spanReceived = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "dahdi",
		Subsystem:   "span",
		Name:        "chunks_received",
		Help:        "Number of chunks received per span",
		ConstLabels: labels,
	}, []string{"span"}))

	m.events = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "dahdi",
		Subsystem:   "channel",
		Name:        "events",
		Help:        "Number of channel events, by kind and whether they were queued or dropped",
		ConstLabels: labels,
	}, []string{"event", "result"}))

	m.masterChanges = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "dahdi",
		Subsystem:   "engine",
		Name:        "master_changes",
		Help:        "Number of timing master elections that picked a new span",
		ConstLabels: labels,
	}))

	m.master = mustRegister(m, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "dahdi",
		Subsystem:   "engine",
		Name:        "master",
		Help:        "Set to 1 for the span providing timing",
		ConstLabels: labels,
	}, []string{"span"}))

	m.durTick = mustRegister(m, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "dahdi",
		Subsystem:   "engine",
		Name:        "dur_tick_sec",
		Help:        "Pipeline tick processing time",
		ConstLabels: labels,
		Buckets:     tickBuckets,
	}))

	m.tickAvg = mustRegister(m, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "dahdi",
		Subsystem:   "engine",
		Name:        "tick_avg_usec",
		Help:        "Average tick processing time",
		ConstLabels: labels,
	}, func() float64 {
		return m.tickTime.Snapshot().Average
	}))

	m.tickMax = mustRegister(m, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "dahdi",
		Subsystem:   "engine",
		Name:        "tick_max_usec",
		Help:        "Longest tick processing time",
		ConstLabels: labels,
	}, func() float64 {
		return float64(m.tickTime.Snapshot().Max)
	}))

	m.ticksLate = mustRegister(m, prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   "dahdi",
		Subsystem:   "engine",
		Name:        "ticks_late",
		Help:        "Number of ticks that took longer than the tick interval",
		ConstLabels: labels,
	}, func() float64 {
		return float64(m.tickTime.Late())
	}))

	m.confsActive = mustRegister(m, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "dahdi",
		Subsystem:   "conf",
		Name:        "active",
		Help:        "Number of conferences holding an alias",
		ConstLabels: labels,
	}, func() float64 {
		m.mu.Lock()
		fn := m.confs
		m.mu.Unlock()
		if fn == nil {
			return 0
		}
		return float64(fn())
	}))

	m.cpuLoad = mustRegister(m, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "dahdi",
		Subsystem:   "node",
		Name:        "cpu_load",
		ConstLabels: prometheus.Labels{"node_id": conf.NodeID, "node_type": "DAHDI"},
	}))

	m.started.Break()

	return nil
}

func (m *Monitor) Shutdown() {
	m.shutdown.Break()
}

func (m *Monitor) Stop() {
	for _, c := range m.metrics {
		prometheus.Unregister(c)
	}
	m.metrics = nil
}

// Running reports whether the monitor was started and not shut down.
func (m *Monitor) Running() bool {
	return m.started.IsBroken() && !m.shutdown.IsBroken()
}

func (m *Monitor) IdleCPU() float64 {
	return m.cpu.GetCPUIdle()
}

func (m *Monitor) TickDone(d time.Duration) {
	if !m.started.IsBroken() {
		return
	}
	m.ticks.Inc()
	m.durTick.Observe(d.Seconds())
	m.tickTime.Observe(d)
}

func (m *Monitor) MissedTick() {
	if !m.started.IsBroken() {
		return
	}
	m.missedTicks.Inc()
}

func (m *Monitor) SpanReceived(span string) {
	if !m.started.IsBroken() {
		return
	}
	m.spanReceived.WithLabelValues(span).Inc()
}

func (m *Monitor) EventQueued(e event.Event) {
	if !m.started.IsBroken() {
		return
	}
	m.events.WithLabelValues(e.KindName(), "queued").Inc()
}

func (m *Monitor) EventDropped(e event.Event) {
	if !m.started.IsBroken() {
		return
	}
	m.events.WithLabelValues(e.KindName(), "dropped").Inc()
}

func (m *Monitor) MasterChanged(span string) {
	m.mu.Lock()
	prev := m.lastMaster
	m.lastMaster = span
	m.mu.Unlock()
	if !m.started.IsBroken() {
		return
	}
	m.masterChanges.Inc()
	if prev != "" {
		m.master.DeleteLabelValues(prev)
	}
	if span != "" {
		m.master.WithLabelValues(span).Set(1)
	}
}

// TickStats returns tick processing times in microseconds.
func (m *Monitor) TickStats() Snapshot {
	return m.tickTime.Snapshot()
}
