package observability

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const stageDurationName = "radio_burst_stage_duration_seconds"

// StageTiming is the observation count and total wall time of one stage.
type StageTiming struct {
	Count   uint64
	Seconds float64
}

// Metrics bundles the Prometheus collectors of the analysis engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Runs          *prometheus.CounterVec
	Bursts        *prometheus.CounterVec
	Anomalies     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Energy        *prometheus.GaugeVec
	Periodic      prometheus.Gauge
}

// NewMetrics registers analyzer metrics against reg, defaulting to the
// global registry when nil. Registering twice on the same registry reuses the
// existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_burst_runs_total",
		Help: "Analysis runs by technology and outcome.",
	}, []string{"technology", "status"}), "radio_burst_runs_total")
	if err != nil {
		return nil, err
	}
	bursts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_burst_bursts_total",
		Help: "Classified bursts by category.",
	}, []string{"category"}), "radio_burst_bursts_total")
	if err != nil {
		return nil, err
	}
	anomalies, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_burst_anomalies_total",
		Help: "Packet anomalies observed while building the timeline.",
	}, []string{"kind"}), "radio_burst_anomalies_total")
	if err != nil {
		return nil, err
	}
	stages, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    stageDurationName,
		Help:    "Wall time spent per pipeline stage.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"stage"}), stageDurationName)
	if err != nil {
		return nil, err
	}
	energy, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "radio_burst_energy_joules",
		Help: "Total radio energy of the latest run by technology.",
	}, []string{"technology"}), "radio_burst_energy_joules")
	if err != nil {
		return nil, err
	}
	periodic, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radio_burst_periodic_groups",
		Help: "Distinct host/application groups with periodic transfers in the latest run.",
	}), "radio_burst_periodic_groups")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:      gatherer,
		Runs:          runs,
		Bursts:        bursts,
		Anomalies:     anomalies,
		StageDuration: stages,
		Energy:        energy,
		Periodic:      periodic,
	}, nil
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(technology, status string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(technology, status).Inc()
}

// AddBursts adds per-category burst counts.
func (m *Metrics) AddBursts(counts map[string]int) {
	if m == nil {
		return
	}
	for category, n := range counts {
		m.Bursts.WithLabelValues(category).Add(float64(n))
	}
}

// AddAnomaly counts one anomaly of the given kind.
func (m *Metrics) AddAnomaly(kind string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(kind).Inc()
}

// SetRunTotals publishes the energy and periodic group count of a run.
func (m *Metrics) SetRunTotals(technology string, joules float64, periodicGroups int) {
	if m == nil {
		return
	}
	m.Energy.WithLabelValues(technology).Set(joules)
	m.Periodic.Set(float64(periodicGroups))
}

// StageTimings reads the stage histogram back from the gatherer, keyed by stage.
func (m *Metrics) StageTimings() (map[string]StageTiming, error) {
	out := make(map[string]StageTiming)
	if m == nil {
		return out, nil
	}
	families, err := m.gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if mf.GetName() != stageDurationName || mf.GetType() != dto.MetricType_HISTOGRAM {
			continue
		}
		for _, metric := range mf.GetMetric() {
			h := metric.GetHistogram()
			out[labelValue(metric.GetLabel(), "stage")] = StageTiming{
				Count:   h.GetSampleCount(),
				Seconds: h.GetSampleSum(),
			}
		}
	}
	return out, nil
}

func labelValue(pairs []*dto.LabelPair, name string) string {
	for _, pair := range pairs {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

// WriteText writes every gathered family in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
