// Package ledgermetrics defines the metrics sink injected into ledger
// components. The teacher registers Prometheus collectors globally via
// promauto at package init (see services/validator/metrics.go); Design
// Note 9 forbids that for library code ("pass a metrics sink as a
// dependency; never register globally from library code"), so Sink is
// built once by the collaborator and handed down, backed by a
// non-global prometheus.Registry.
package ledgermetrics

import "github.com/prometheus/client_golang/prometheus"

// Sink is the narrow metrics surface the ledger core writes to. It is
// satisfied by *Prometheus or by a no-op stub in tests.
type Sink interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// Prometheus is a Sink backed by an explicitly-constructed registry
// (never the global prometheus.DefaultRegisterer).
type Prometheus struct {
	registry    *prometheus.Registry
	counters    map[string]*prometheus.CounterVec
	histograms  map[string]*prometheus.HistogramVec
	gauges      map[string]*prometheus.GaugeVec
	labelByName map[string][]string
}

// NewPrometheus builds a Sink with its own registry. Pass the returned
// *Prometheus.Registry() to whatever HTTP handler exposes /metrics;
// the ledger core itself never starts a server.
func NewPrometheus() *Prometheus {
	return &Prometheus{
		registry:    prometheus.NewRegistry(),
		counters:    make(map[string]*prometheus.CounterVec),
		histograms:  make(map[string]*prometheus.HistogramVec),
		gauges:      make(map[string]*prometheus.GaugeVec),
		labelByName: make(map[string][]string),
	}
}

func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (p *Prometheus) IncCounter(name string, labels map[string]string) {
	c, ok := p.counters[name]
	if !ok {
		names := labelNames(labels)
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, names)
		p.registry.MustRegister(c)
		p.counters[name] = c
		p.labelByName[name] = names
	}
	c.With(prometheus.Labels(labels)).Inc()
}

func (p *Prometheus) ObserveHistogram(name string, value float64, labels map[string]string) {
	h, ok := p.histograms[name]
	if !ok {
		names := labelNames(labels)
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: name}, names)
		p.registry.MustRegister(h)
		p.histograms[name] = h
		p.labelByName[name] = names
	}
	h.With(prometheus.Labels(labels)).Observe(value)
}

func (p *Prometheus) SetGauge(name string, value float64, labels map[string]string) {
	g, ok := p.gauges[name]
	if !ok {
		names := labelNames(labels)
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, names)
		p.registry.MustRegister(g)
		p.gauges[name] = g
		p.labelByName[name] = names
	}
	g.With(prometheus.Labels(labels)).Set(value)
}

// Nop is a Sink that discards everything, for tests and components that
// don't care about metrics.
type Nop struct{}

func (Nop) IncCounter(string, map[string]string)             {}
func (Nop) ObserveHistogram(string, float64, map[string]string) {}
func (Nop) SetGauge(string, float64, map[string]string)       {}
