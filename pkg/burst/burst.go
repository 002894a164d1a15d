package burst

// Burst is one classified run of temporally adjacent packets.
type Burst struct {
	Index       int      `json:"index"`
	Begin       float64  `json:"begin"`
	End         float64  `json:"end"`
	FirstPacket int      `json:"first_packet"`
	PacketCount int      `json:"packet_count"`
	Category    Category `json:"category"`
	Periodic    bool     `json:"periodic"`
	Long        bool     `json:"long"`
	Payload     int      `json:"payload"`
	// UplinkSession is the session of the first uplink packet, -1 when the burst has none.
	UplinkSession int     `json:"uplink_session"`
	Energy        float64 `json:"energy"`
	ActiveTime    float64 `json:"active_time"`
}

// Duration returns End-Begin.
func (b Burst) Duration() float64 {
	return b.End - b.Begin
}

// Cluster is one repeating cycle found in a host/application group.
type Cluster struct {
	Group   string  `json:"group"`
	Cycle   float64 `json:"cycle"`
	Members int     `json:"members"`
	Bursts  []int   `json:"bursts"`
}

// Periodicity summarises the periodic transfers of a trace.
type Periodicity struct {
	Clusters       []Cluster `json:"clusters"`
	DistinctGroups int       `json:"distinct_groups"`
	ShortestCycle  float64   `json:"shortest_cycle"`
	// ShortestCycleBurst is the first burst of the shortest cycle, -1 when none.
	ShortestCycleBurst int `json:"shortest_cycle_burst"`
}

// AnalysisData is the burst collection result of one run.
type AnalysisData struct {
	Bursts         []Burst           `json:"bursts"`
	TotalEnergy    float64           `json:"total_energy"`
	LongBurstCount int               `json:"long_burst_count"`
	Categories     []CategorySummary `json:"categories"`
	Periodicity    Periodicity       `json:"periodicity"`
	Stats          Stats             `json:"stats"`
}

// CountByCategory returns the number of bursts per category.
func (d AnalysisData) CountByCategory() map[Category]int {
	counts := make(map[Category]int)
	for _, b := range d.Bursts {
		counts[b.Category]++
	}
	return counts
}
