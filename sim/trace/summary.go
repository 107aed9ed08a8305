package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalRoutes           int
	Fallbacks             int
	InterfaceDistribution map[int]int // egress interface → routes chosen
	ToServer              int
	ToClient              int
	Drops                 int
	ChannelDistribution   map[int]int // channel → client packets sent on it
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		InterfaceDistribution: make(map[int]int),
		ChannelDistribution:   make(map[int]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalRoutes = len(st.Routes)
	for _, r := range st.Routes {
		if r.Fallback {
			summary.Fallbacks++
			continue
		}
		summary.InterfaceDistribution[r.Interface]++
	}

	for _, f := range st.Forwards {
		switch {
		case f.Dropped:
			summary.Drops++
		case f.Direction == ToServer:
			summary.ToServer++
			summary.ChannelDistribution[f.Channel]++
		case f.Direction == ToClient:
			summary.ToClient++
		}
	}
	return summary
}
