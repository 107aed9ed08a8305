package sim

import (
	"fmt"
	"net/netip"
)

// RouteEntry is one static forwarding entry. Entries are immutable once
// installed in a RoutingTable.
type RouteEntry struct {
	Destination netip.Addr
	PrefixLen   int
	Gateway     netip.Addr // unspecified or invalid means directly connected
	Interface   int
}

// Covers reports whether the entry matches dst: either the destination
// equals dst exactly, or both agree on the first PrefixLen bits.
// Addresses of different families never match.
func (e RouteEntry) Covers(dst netip.Addr) bool {
	dst = dst.Unmap()
	if !dst.IsValid() || !e.Destination.IsValid() || dst.BitLen() != e.Destination.BitLen() {
		return false
	}
	if e.Destination == dst {
		return true
	}
	a, err := e.Destination.Prefix(e.PrefixLen)
	if err != nil {
		return false
	}
	b, err := dst.Prefix(e.PrefixLen)
	if err != nil {
		return false
	}
	return a == b
}

func (e RouteEntry) String() string {
	gw := "direct"
	if e.Gateway.IsValid() && !e.Gateway.IsUnspecified() {
		gw = e.Gateway.String()
	}
	return fmt.Sprintf("%s/%d via %s if%d", e.Destination, e.PrefixLen, gw, e.Interface)
}

// PathCandidate is one usable path toward a destination, produced per lookup.
type PathCandidate struct {
	Interface int
	Gateway   netip.Addr
}

// RoutingTable is an ordered list of static entries.
type RoutingTable struct {
	entries []RouteEntry
}

// NewRoutingTable returns an empty table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{}
}

// AddNetworkRoute installs an entry for prefix reached through gateway on iface.
// Pass the zero netip.Addr as gateway for a directly connected network.
func (t *RoutingTable) AddNetworkRoute(prefix netip.Prefix, gateway netip.Addr, iface int) error {
	if !prefix.IsValid() {
		return fmt.Errorf("%w: invalid prefix %s", ErrConfiguration, prefix)
	}
	if iface < 0 {
		return fmt.Errorf("%w: negative interface index %d", ErrConfiguration, iface)
	}
	t.entries = append(t.entries, RouteEntry{
		Destination: prefix.Addr().Unmap(),
		PrefixLen:   prefix.Bits(),
		Gateway:     gateway.Unmap(),
		Interface:   iface,
	})
	return nil
}

// AddHostRoute installs a full-length entry for a single host.
func (t *RoutingTable) AddHostRoute(host, gateway netip.Addr, iface int) error {
	host = host.Unmap()
	if !host.IsValid() {
		return fmt.Errorf("%w: invalid host address", ErrConfiguration)
	}
	return t.AddNetworkRoute(netip.PrefixFrom(host, host.BitLen()), gateway, iface)
}

// Len returns the number of installed entries.
func (t *RoutingTable) Len() int {
	return len(t.entries)
}

// Route returns entry i in insertion order.
func (t *RoutingTable) Route(i int) RouteEntry {
	return t.entries[i]
}

// Entries returns a copy of the installed entries.
func (t *RoutingTable) Entries() []RouteEntry {
	out := make([]RouteEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// RemoveRoute withdraws entry i. Later entries keep their relative order.
func (t *RoutingTable) RemoveRoute(i int) error {
	if i < 0 || i >= len(t.entries) {
		return fmt.Errorf("%w: route index %d out of range [0, %d)", ErrConfiguration, i, len(t.entries))
	}
	t.entries = append(t.entries[:i:i], t.entries[i+1:]...)
	return nil
}

// ResolveCandidates returns one candidate per entry covering dst, in table
// order. Matching is flat: a /24 and a /16 that both cover dst are both
// returned. An empty result is not an error.
func (t *RoutingTable) ResolveCandidates(dst netip.Addr) []PathCandidate {
	var out []PathCandidate
	for _, e := range t.entries {
		if e.Covers(dst) {
			out = append(out, PathCandidate{Interface: e.Interface, Gateway: e.Gateway})
		}
	}
	return out
}

// GatewayFor returns the gateway of the first entry bound to iface that
// covers dst. Without such an entry the unspecified address of dst's family
// is returned, meaning direct delivery.
func (t *RoutingTable) GatewayFor(iface int, dst netip.Addr) netip.Addr {
	for _, e := range t.entries {
		if e.Interface == iface && e.Covers(dst) {
			if e.Gateway.IsValid() {
				return e.Gateway
			}
			break
		}
	}
	if dst.Unmap().Is6() {
		return netip.IPv6Unspecified()
	}
	return netip.IPv4Unspecified()
}
