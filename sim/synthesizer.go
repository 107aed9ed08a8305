package sim

import (
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"
)

// RouteSynthesizer turns a chosen candidate into a Route using the node's
// interface configuration and the gateway entries of its table.
type RouteSynthesizer struct {
	table *RoutingTable
}

// NewRouteSynthesizer creates a synthesizer reading gateways from table.
func NewRouteSynthesizer(table *RoutingTable) *RouteSynthesizer {
	return &RouteSynthesizer{table: table}
}

// Synthesize builds the route for dst over candidate c.
//
// With no network layer it returns ErrNoIPLayerBound and no route. When the
// egress interface has no address the route is still returned, with an
// invalid Source, together with an error wrapping ErrNoInterfaceAddress;
// callers forward anyway.
func (s *RouteSynthesizer) Synthesize(l NetworkLayer, c PathCandidate, dst netip.Addr) (*Route, error) {
	if l == nil {
		return nil, fmt.Errorf("synthesize route to %s: %w", dst, ErrNoIPLayerBound)
	}

	route := &Route{
		Destination: dst,
		Gateway:     s.table.GatewayFor(c.Interface, dst),
		Interface:   c.Interface,
		Device:      l.Device(c.Interface),
	}

	addrs := l.Addresses(c.Interface)
	if len(addrs) == 0 {
		logrus.Warnf("[balancer] interface %d has no address, route to %s leaves source unset", c.Interface, dst)
		return route, fmt.Errorf("synthesize route to %s via if%d: %w", dst, c.Interface, ErrNoInterfaceAddress)
	}
	route.Source = addrs[0].Local
	return route, nil
}
