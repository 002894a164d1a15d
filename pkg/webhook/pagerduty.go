package webhook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/schema"
)

// PagerDuty Events API v2 payload.
type pagerDutyPayload struct {
	RoutingKey  string         `json:"routing_key"`
	EventAction string         `json:"event_action"`
	DedupKey    string         `json:"dedup_key"`
	Payload     pdEventPayload `json:"payload"`
}

type pdEventPayload struct {
	Summary       string            `json:"summary"`
	Source        string            `json:"source"`
	Severity      string            `json:"severity"`
	Timestamp     string            `json:"timestamp"`
	Component     string            `json:"component"`
	Group         string            `json:"group"`
	CustomDetails map[string]string `json:"custom_details"`
}

// BuildPagerDutyPayload formats a RunSummary as a PagerDuty Events v2 info
// event. Runs with input anomalies are raised as warnings.
func BuildPagerDutyPayload(summary schema.RunSummary) ([]byte, string, error) {
	severity := "info"
	if summary.Anomalies > 0 {
		severity = "warning"
	}

	categories := make([]string, 0, len(summary.Categories))
	for name := range summary.Categories {
		categories = append(categories, name)
	}
	sort.Strings(categories)
	counts := make([]string, 0, len(categories))
	for _, name := range categories {
		counts = append(counts, fmt.Sprintf("%s=%d", name, summary.Categories[name]))
	}

	payload := pagerDutyPayload{
		EventAction: "trigger",
		DedupKey:    summary.RunID,
		Payload: pdEventPayload{
			Summary:   fmt.Sprintf("[%s] %d bursts, %.2f J over %.1fs", summary.Technology, summary.Bursts, summary.TotalEnergy, summary.TraceDuration),
			Source:    "burstctl",
			Severity:  severity,
			Timestamp: summary.GeneratedAt.Format("2006-01-02T15:04:05.000+0000"),
			Component: summary.Technology,
			Group:     "radio-burst",
			CustomDetails: map[string]string{
				"run_id":          summary.RunID,
				"total_energy_j":  fmt.Sprintf("%.4f", summary.TotalEnergy),
				"long_bursts":     fmt.Sprintf("%d", summary.LongBursts),
				"periodic_groups": fmt.Sprintf("%d", summary.PeriodicGroups),
				"anomalies":       fmt.Sprintf("%d", summary.Anomalies),
				"categories":      strings.Join(counts, "; "),
			},
		},
	}

	data, err := json.Marshal(payload)
	return data, "application/json", err
}
