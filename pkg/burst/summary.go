package burst

// CategorySummary aggregates payload, energy and radio time for one category.
type CategorySummary struct {
	Category   Category `json:"category"`
	Count      int      `json:"count"`
	Payload    int      `json:"payload"`
	PayloadPct float64  `json:"payload_pct"`
	Energy     float64  `json:"energy"`
	EnergyPct  float64  `json:"energy_pct"`
	ActiveTime float64  `json:"active_time"`
	ActivePct  float64  `json:"active_pct"`
	// JPerKB is joules per kilobit of payload.
	JPerKB float64 `json:"j_per_kb"`
}

// Summarize builds per-category summaries in priority order, omitting empty categories.
func Summarize(bursts []Burst) []CategorySummary {
	byCategory := make(map[Category]*CategorySummary)
	totalPayload := 0
	totalEnergy := 0.0
	totalActive := 0.0
	for _, b := range bursts {
		s, ok := byCategory[b.Category]
		if !ok {
			s = &CategorySummary{Category: b.Category}
			byCategory[b.Category] = s
		}
		s.Count++
		s.Payload += b.Payload
		s.Energy += b.Energy
		s.ActiveTime += b.ActiveTime
		totalPayload += b.Payload
		totalEnergy += b.Energy
		totalActive += b.ActiveTime
	}

	out := make([]CategorySummary, 0, len(byCategory))
	for _, c := range AllCategories() {
		s, ok := byCategory[c]
		if !ok {
			continue
		}
		s.PayloadPct = percent(float64(s.Payload), float64(totalPayload))
		s.EnergyPct = percent(s.Energy, totalEnergy)
		s.ActivePct = percent(s.ActiveTime, totalActive)
		if s.Payload > 0 {
			s.JPerKB = s.Energy / (float64(s.Payload) * 8 / 1000)
		}
		out = append(out, *s)
	}
	return out
}

func percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part * 100 / total
}
