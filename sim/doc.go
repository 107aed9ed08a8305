// Package sim provides the per-packet multipath load balancer.
//
// # Reading Guide
//
// Start with these files to understand a routing decision:
//   - routing_table.go: route entries and flat candidate resolution
//   - selection.go: path selection policies (uniform random, round-robin)
//   - router.go: the Balancer and its StaticTable fallback
//   - synthesizer.go: turning a chosen candidate into a Route
//
// # Architecture
//
// The sim package defines the balancer and the interfaces it consumes;
// collaborators live in sub-packages:
//   - sim/packet/: IPv4 parsing, address rewriting, checksum recomputation
//   - sim/nat/: link-layer interceptor that balances by address rewriting
//   - sim/engine/: discrete-event clock and scheduler
//   - sim/netdev/: nodes and point-to-point links implementing NetworkLayer and Device
//   - sim/scenario/: the client, balancer, routers and server experiment
//   - sim/metrics/: Prometheus counters for decisions and forwards
//   - sim/trace/: decision trace recording
//
// # Key Interfaces
//
//   - OutboundRouter: pick a Route for an outgoing packet
//   - SelectionPolicy: pick an index in [0, n)
//   - NetworkLayer: interface addresses, devices, state and metrics of a node
//   - Device: send frames and deliver them to promiscuous subscribers
//
// Nothing in this package is safe for concurrent use. The simulator runs every
// handler to completion on a single goroutine.
package sim
