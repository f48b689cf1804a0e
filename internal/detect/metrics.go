// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package detect

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the detection loop collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	cycles        *prometheus.CounterVec
	eventsScanned *prometheus.CounterVec
	candidates    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	cursor        *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "autoir", Subsystem: "detect", Name: "cycles_total", Help: "Detection cycles by result (ok, error)."},
			[]string{"pipeline", "result"},
		),
		eventsScanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "autoir", Subsystem: "detect", Name: "events_scanned_total", Help: "Events returned by range scans."},
			[]string{"pipeline"},
		),
		candidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "autoir", Subsystem: "detect", Name: "candidates_total", Help: "Analyzer candidates by outcome (dropped, created, merged)."},
			[]string{"pipeline", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "autoir", Subsystem: "detect", Name: "cycle_duration_seconds", Help: "Wall time of one detection cycle.", Buckets: prometheus.DefBuckets},
			[]string{"pipeline"},
		),
		cursor: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: "autoir", Subsystem: "detect", Name: "cursor_position_ms", Help: "Last committed cursor position."},
			[]string{"pipeline"},
		),
	}
	reg.MustRegister(m.cycles, m.eventsScanned, m.candidates, m.duration, m.cursor)
	return m
}

func (m *Metrics) observeCycle(r CycleReport, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cycles.WithLabelValues(r.PipelineID, result).Inc()
	m.duration.WithLabelValues(r.PipelineID).Observe(r.Duration.Seconds())
	m.eventsScanned.WithLabelValues(r.PipelineID).Add(float64(r.EventsScanned))
	m.candidates.WithLabelValues(r.PipelineID, "dropped").Add(float64(r.Dropped))
	m.candidates.WithLabelValues(r.PipelineID, "created").Add(float64(r.Created))
	m.candidates.WithLabelValues(r.PipelineID, "merged").Add(float64(r.Merged))
	if err == nil {
		m.cursor.WithLabelValues(r.PipelineID).Set(float64(r.CursorMs))
	}
}

