// Package scenario rebuilds the multipath experiment: one client, one
// balancer, N parallel router paths and one server reachable at the virtual
// address 10.1.4.1. One path can be made slow to show how per-packet
// balancing reorders traffic.
//
// The client sends numbered UDP probes; the server echoes each one back on
// the path it arrived on. A Result reports loss, reordering at both ends,
// round-trip times and how probes were spread over the paths.
//
// Scenarios are YAML documents decoded strictly on top of DefaultConfig:
//
//	mode: nat
//	policy: round-robin
//	paths:
//	  - uplink: {data_rate: 1Gbps, delay: 1ms}
//	    downlink: {data_rate: 1Gbps, delay: 1ms}
//	traffic:
//	  packets: 100
//	  interval: 1ms
package scenario
