package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every path selection and every rewrite.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether records should be collected at all.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelDecisions
}

// SimulationTrace collects decision records during one simulation.
type SimulationTrace struct {
	Config   TraceConfig
	Routes   []RouteRecord
	Forwards []ForwardRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:   config,
		Routes:   make([]RouteRecord, 0),
		Forwards: make([]ForwardRecord, 0),
	}
}

// RecordRoute appends a route-table decision.
func (st *SimulationTrace) RecordRoute(record RouteRecord) {
	st.Routes = append(st.Routes, record)
}

// RecordForward appends a link-layer rewrite decision.
func (st *SimulationTrace) RecordForward(record ForwardRecord) {
	st.Forwards = append(st.Forwards, record)
}
