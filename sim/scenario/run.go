package scenario

import (
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/multierr"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/trace"
)

// Result summarizes one run.
type Result struct {
	Mode   string
	Policy string

	Sent       int
	SendErrors int
	Received   int // replies back at the client
	Lost       int

	// ServerReceived counts probes at the server; ServerReordered those that
	// arrived after a probe with a higher sequence number.
	ServerReceived  int
	ServerReordered int
	ClientReordered int

	MeanRTT time.Duration
	MaxRTT  time.Duration

	// PathDistribution[i] is the number of probes that reached the server over path i.
	PathDistribution []int
	ReplySources     map[netip.Addr]int

	Events  uint64
	Elapsed time.Duration
	Trace   *trace.TraceSummary
}

// Run executes the scenario to its horizon. In NAT mode the interceptor is
// started first and always stopped before returning.
func (s *Scenario) Run() (res *Result, err error) {
	if s.Interceptor != nil {
		if err := s.Interceptor.Start(); err != nil {
			return nil, fmt.Errorf("start interceptor: %w", err)
		}
		defer func() {
			err = multierr.Append(err, s.Interceptor.Stop())
		}()
	}

	s.Sim.Run()
	return s.result(), nil
}

func (s *Scenario) result() *Result {
	p := s.probes
	r := &Result{
		Mode:             s.Config.Mode,
		Policy:           s.Config.Policy,
		Sent:             p.sent,
		SendErrors:       p.sendErrors,
		Received:         p.received,
		Lost:             p.sent - p.received,
		ServerReceived:   p.serverReceived,
		ServerReordered:  p.serverReordered,
		ClientReordered:  p.clientReorder,
		MaxRTT:           p.rttMax,
		PathDistribution: append([]int(nil), p.pathCounts...),
		ReplySources:     make(map[netip.Addr]int, len(p.replySources)),
		Events:           s.Sim.Executed(),
		Elapsed:          s.Sim.Elapsed(),
		Trace:            trace.Summarize(s.Trace),
	}
	if r.Policy == "" {
		r.Policy = sim.PolicyRandom
	}
	if p.received > 0 {
		r.MeanRTT = p.rttSum / time.Duration(p.received)
	}
	for k, v := range p.replySources {
		r.ReplySources[k] = v
	}
	return r
}
