package sim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/metrics"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/packet"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/trace"
)

// OutboundRouter resolves the route for an outgoing or forwarded packet.
// oif is an optional egress device hint and may be nil.
type OutboundRouter interface {
	ResolveOutboundRoute(pkt []byte, hdr packet.Header, oif Device) (*Route, error)
}

// Balancer spreads packets over every table entry covering the destination,
// one selection per packet. Packets with no covering entry go to the
// fallback router.
type Balancer struct {
	table    *RoutingTable
	policy   SelectionPolicy
	synth    *RouteSynthesizer
	layer    NetworkLayer
	fallback OutboundRouter
	trace    *trace.SimulationTrace
	metrics  *metrics.Collector
	clock    func() int64
}

// NewBalancer creates a balancer over table using policy.
func NewBalancer(table *RoutingTable, policy SelectionPolicy) *Balancer {
	if table == nil || policy == nil {
		panic("NewBalancer: table and policy are required")
	}
	return &Balancer{
		table:  table,
		policy: policy,
		synth:  NewRouteSynthesizer(table),
		clock:  func() int64 { return 0 },
	}
}

// NewRandomBalancer creates a balancer choosing uniformly at random from rng.
func NewRandomBalancer(table *RoutingTable, rng *PartitionedRNG) *Balancer {
	return NewBalancer(table, NewUniformRandom(rng.ForSubsystem(SubsystemBalancer)))
}

// NewRoundRobinBalancer creates a balancer cycling through candidates from cursor.
func NewRoundRobinBalancer(table *RoutingTable, cursor int) *Balancer {
	return NewBalancer(table, NewRoundRobin(cursor))
}

// SetNetworkLayer binds the node whose interfaces routes are built from.
func (b *Balancer) SetNetworkLayer(l NetworkLayer) { b.layer = l }

// SetFallback sets the router used when no entry covers the destination.
func (b *Balancer) SetFallback(r OutboundRouter) { b.fallback = r }

// SetTrace enables decision recording. nil disables it.
func (b *Balancer) SetTrace(t *trace.SimulationTrace) { b.trace = t }

// SetMetrics enables counters. nil disables them.
func (b *Balancer) SetMetrics(m *metrics.Collector) { b.metrics = m }

// SetClock sets the time source stamped on trace records.
func (b *Balancer) SetClock(now func() int64) { b.clock = now }

// Policy returns the selection policy.
func (b *Balancer) Policy() SelectionPolicy { return b.policy }

// Table returns the routing table the balancer reads.
func (b *Balancer) Table() *RoutingTable { return b.table }

// ResolveOutboundRoute implements OutboundRouter.
// The device hint is only passed on to the fallback.
func (b *Balancer) ResolveOutboundRoute(pkt []byte, hdr packet.Header, oif Device) (*Route, error) {
	dst := hdr.Destination
	candidates := b.table.ResolveCandidates(dst)
	if len(candidates) == 0 {
		return b.delegate(pkt, hdr, oif, fmt.Errorf("%w for %s", ErrNoCandidateRoutes, dst))
	}
	if b.layer == nil {
		return nil, fmt.Errorf("route to %s: %w", dst, ErrNoIPLayerBound)
	}

	idx, err := b.policy.Select(len(candidates))
	if err != nil {
		return b.delegate(pkt, hdr, oif, err)
	}
	route, err := b.synth.Synthesize(b.layer, candidates[idx], dst)
	if err != nil && !errors.Is(err, ErrNoInterfaceAddress) {
		return nil, err
	}
	if err != nil {
		b.metrics.ObserveMissingSource()
	}

	logrus.Debugf("[balancer] %s: picked %d of %d candidates, if%d gw %s", b.policy.Name(), idx, len(candidates), route.Interface, route.Gateway)
	b.metrics.ObserveSelection(b.policy.Name(), route.Interface)
	if b.trace != nil {
		b.trace.RecordRoute(trace.RouteRecord{
			Clock:       b.clock(),
			Destination: dst,
			Source:      route.Source,
			Gateway:     route.Gateway,
			Interface:   route.Interface,
			Candidates:  len(candidates),
			Chosen:      idx,
			Policy:      b.policy.Name(),
		})
	}
	return route, nil
}

func (b *Balancer) delegate(pkt []byte, hdr packet.Header, oif Device, cause error) (*Route, error) {
	b.metrics.ObserveFallback()
	if b.trace != nil {
		b.trace.RecordRoute(trace.RouteRecord{
			Clock:       b.clock(),
			Destination: hdr.Destination,
			Interface:   -1,
			Chosen:      -1,
			Policy:      b.policy.Name(),
			Fallback:    true,
			Reason:      cause.Error(),
		})
	}
	if b.fallback == nil {
		return nil, fmt.Errorf("%w: %w", cause, ErrNoRouteToHost)
	}
	logrus.Debugf("[balancer] %v, delegating to fallback", cause)
	return b.fallback.ResolveOutboundRoute(pkt, hdr, oif)
}

// StaticTable is the deterministic router: among covering entries on
// interfaces that are up it takes the lowest interface metric, ties broken
// by table order.
type StaticTable struct {
	table *RoutingTable
	synth *RouteSynthesizer
	layer NetworkLayer
}

// NewStaticTable creates a static router over table.
func NewStaticTable(table *RoutingTable) *StaticTable {
	return &StaticTable{table: table, synth: NewRouteSynthesizer(table)}
}

// SetNetworkLayer binds the node whose interfaces routes are built from.
func (s *StaticTable) SetNetworkLayer(l NetworkLayer) { s.layer = l }

// Table returns the routing table the router reads.
func (s *StaticTable) Table() *RoutingTable { return s.table }

// ResolveOutboundRoute implements OutboundRouter. When oif is set, only
// entries on that device are considered.
func (s *StaticTable) ResolveOutboundRoute(_ []byte, hdr packet.Header, oif Device) (*Route, error) {
	dst := hdr.Destination
	if s.layer == nil {
		return nil, fmt.Errorf("route to %s: %w", dst, ErrNoIPLayerBound)
	}

	best := -1
	var bestMetric uint16
	candidates := s.table.ResolveCandidates(dst)
	for i, c := range candidates {
		if !s.layer.IsUp(c.Interface) {
			continue
		}
		if oif != nil && s.layer.Device(c.Interface) != oif {
			continue
		}
		if m := s.layer.Metric(c.Interface); best < 0 || m < bestMetric {
			best, bestMetric = i, m
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("route to %s: %w", dst, ErrNoRouteToHost)
	}

	route, err := s.synth.Synthesize(s.layer, candidates[best], dst)
	if err != nil && !errors.Is(err, ErrNoInterfaceAddress) {
		return nil, err
	}
	return route, nil
}
