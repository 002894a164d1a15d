package semconv

// Span attribute keys emitted by the analysis engine.
const (
	AttrTechnology     = "radio.technology"
	AttrSessions       = "radio.trace.sessions"
	AttrPackets        = "radio.trace.packets"
	AttrAnomalies      = "radio.trace.anomalies"
	AttrTraceStart     = "radio.trace.start_s"
	AttrTraceEnd       = "radio.trace.end_s"
	AttrBursts         = "radio.burst.count"
	AttrLongBursts     = "radio.burst.long_count"
	AttrPeriodicGroups = "radio.burst.periodic_groups"
	AttrEnergyJoules   = "radio.energy.joules"
	AttrIntervals      = "radio.rrc.intervals"
)
