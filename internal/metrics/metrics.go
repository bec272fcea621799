// Package metrics exposes Prometheus counters for ledger appends and
// imports on a private registry.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Import outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the ledger counters. A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	appends       *prometheus.CounterVec
	importObjects *prometheus.CounterVec
	imports       *prometheus.CounterVec
}

// New creates counters and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		appends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loreledger_appends_total",
				Help: "Total number of ledger append attempts by result.",
			},
			[]string{"result"},
		),
		importObjects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loreledger_import_objects_total",
				Help: "Total number of imported package objects by phase and action.",
			},
			[]string{"phase", "action"},
		),
		imports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loreledger_imports_total",
				Help: "Total number of package import runs by outcome.",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(m.appends, m.importObjects, m.imports)

	// Ensure label sets are visible before first increment.
	for _, result := range []string{"created", "reused", "conflict", "error"} {
		m.appends.WithLabelValues(result)
	}
	for _, outcome := range []string{OutcomeCompleted, OutcomeSkipped, OutcomeFailed} {
		m.imports.WithLabelValues(outcome)
	}
	return m
}

// Registry returns the registry holding the counters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAppend counts one append attempt. Satisfies store.Recorder.
func (m *Metrics) RecordAppend(result string) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues(result).Inc()
}

// RecordImportObject counts one object handled by an import phase; action
// is "created" or "skipped".
func (m *Metrics) RecordImportObject(phase, action string) {
	if m == nil {
		return
	}
	m.importObjects.WithLabelValues(phase, action).Inc()
}

// RecordImport counts one import run.
func (m *Metrics) RecordImport(outcome string) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(outcome).Inc()
}

// WriteText writes every registered metric in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
