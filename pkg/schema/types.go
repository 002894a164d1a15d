package schema

import (
	"time"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/energy"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/engine"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/timeline"
)

// ReportVersion is the contract version stamped on every report.
const ReportVersion = "v1"

// ProfileRef identifies the profile a report was produced with.
type ProfileRef struct {
	Name       string             `json:"name"`
	Technology profile.Technology `json:"technology"`
}

// BurstReport is the full analysis envelope written by burstctl.
type BurstReport struct {
	Version       string             `json:"version"`
	RunID         string             `json:"run_id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Source        string             `json:"source,omitempty"`
	Profile       ProfileRef         `json:"profile"`
	TraceStart    float64            `json:"trace_start"`
	TraceEnd      float64            `json:"trace_end"`
	Analysis      burst.AnalysisData `json:"analysis"`
	Energy        energy.Model       `json:"energy"`
	Anomalies     []timeline.Anomaly `json:"anomalies"`
	IntervalCount int                `json:"interval_count"`
}

// RunSummary is the compact record delivered to webhooks and stored per run.
type RunSummary struct {
	RunID          string         `json:"run_id"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Technology     string         `json:"technology"`
	Bursts         int            `json:"bursts"`
	LongBursts     int            `json:"long_bursts"`
	PeriodicGroups int            `json:"periodic_groups"`
	Anomalies      int            `json:"anomalies"`
	TotalEnergy    float64        `json:"total_energy"`
	TraceDuration  float64        `json:"trace_duration"`
	Categories     map[string]int `json:"categories"`
}

// BuildReport wraps an engine result in the report envelope.
func BuildReport(runID string, generatedAt time.Time, source string, prof profile.Profile, res engine.Result) BurstReport {
	return BurstReport{
		Version:       ReportVersion,
		RunID:         runID,
		GeneratedAt:   generatedAt.UTC(),
		Source:        source,
		Profile:       ProfileRef{Name: prof.Name, Technology: prof.Technology},
		TraceStart:    res.TraceStart,
		TraceEnd:      res.TraceEnd,
		Analysis:      res.Analysis,
		Energy:        res.Energy,
		Anomalies:     res.Anomalies,
		IntervalCount: len(res.Intervals),
	}
}

// Summary condenses a report.
func (r BurstReport) Summary() RunSummary {
	categories := make(map[string]int)
	for c, n := range r.Analysis.CountByCategory() {
		categories[string(c)] = n
	}
	return RunSummary{
		RunID:          r.RunID,
		GeneratedAt:    r.GeneratedAt,
		Technology:     string(r.Profile.Technology),
		Bursts:         len(r.Analysis.Bursts),
		LongBursts:     r.Analysis.LongBurstCount,
		PeriodicGroups: r.Analysis.Periodicity.DistinctGroups,
		Anomalies:      len(r.Anomalies),
		TotalEnergy:    r.Energy.Total,
		TraceDuration:  r.TraceEnd - r.TraceStart,
		Categories:     categories,
	}
}
