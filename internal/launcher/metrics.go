// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"strconv"

	"github.com/gantryhq/gantry/internal/lifecycle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	registry *prometheus.Registry
	live     prometheus.Gauge
	ready    prometheus.Gauge
	state    prometheus.Gauge
	exits    *prometheus.CounterVec
	restarts prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gantry_workers_live",
			Help: "Worker processes currently running.",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gantry_workers_ready",
			Help: "Worker processes accepting connections.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gantry_launcher_state",
			Help: "Process manager lifecycle state (0 not-started, 1 starting, 2 ready, 3 draining, 4 stopped, 5 failed).",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_worker_exits_total",
			Help: "Worker process exits by exit code.",
		}, []string{"code"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gantry_worker_restarts_total",
			Help: "Workers respawned after an exit.",
		}),
	}
	m.registry.MustRegister(m.live, m.ready, m.state, m.exits, m.restarts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) observeState(s lifecycle.State) {
	m.state.Set(float64(s))
}

func (m *metrics) observeExit(code int) {
	m.exits.WithLabelValues(strconv.Itoa(code)).Inc()
}
