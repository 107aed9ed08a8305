// Package trace records per-packet forwarding decisions for later analysis.
// It holds plain data only and does not depend on sim or its sub-packages.
package trace

import "net/netip"

// RouteRecord captures one route-table decision.
type RouteRecord struct {
	Clock       int64
	Destination netip.Addr
	Source      netip.Addr
	Gateway     netip.Addr
	Interface   int // -1 when the packet was delegated
	Candidates  int
	Chosen      int // index into the candidate list, -1 when delegated
	Policy      string
	Fallback    bool
	Reason      string
}

// Direction of a link-layer rewrite.
type Direction string

const (
	ToServer Direction = "to-server"
	ToClient Direction = "to-client"
)

// ForwardRecord captures one link-layer rewrite, or a drop.
type ForwardRecord struct {
	Clock     int64
	Direction Direction
	Channel   int // -1 when not tied to a channel
	Device    string
	Original  netip.Addr // address before rewrite
	Rewritten netip.Addr // address after rewrite
	Dropped   bool
	Reason    string
}
