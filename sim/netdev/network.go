// Package netdev provides the simulated nodes and point-to-point links the
// balancer is exercised on. Links model serialization at a fixed data rate,
// a propagation delay and an optional transmit backlog limit.
package netdev

import (
	"fmt"
	"net"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/engine"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/metrics"
)

// Network creates nodes and links on one simulator.
type Network struct {
	sim     *engine.Simulator
	metrics *metrics.Collector
	nodes   []*Node
	nextMAC uint64
}

// NewNetwork creates an empty network.
func NewNetwork(s *engine.Simulator) *Network {
	return &Network{sim: s}
}

// SetMetrics enables drop counters. nil disables them.
func (nw *Network) SetMetrics(m *metrics.Collector) { nw.metrics = m }

func (nw *Network) Simulator() *engine.Simulator { return nw.sim }

// NewNode adds a node.
func (nw *Network) NewNode(name string) *Node {
	n := newNode(name, nw)
	nw.nodes = append(nw.nodes, n)
	return n
}

// Nodes returns the nodes in creation order.
func (nw *Network) Nodes() []*Node { return nw.nodes }

// Connect creates a link between a and b and returns the device on each side.
// The devices still have to be bound to node interfaces with AddInterface.
func (nw *Network) Connect(a, b *Node, cfg LinkConfig) (*Device, *Device) {
	da := nw.newDevice(fmt.Sprintf("%s-%s", a.name, b.name), cfg)
	db := nw.newDevice(fmt.Sprintf("%s-%s", b.name, a.name), cfg)
	da.peer, db.peer = db, da
	return da, db
}

func (nw *Network) newDevice(name string, cfg LinkConfig) *Device {
	nw.nextMAC++
	m := nw.nextMAC
	return &Device{
		name:    name,
		mac:     net.HardwareAddr{0x02, 0, byte(m >> 24), byte(m >> 16), byte(m >> 8), byte(m)},
		sim:     nw.sim,
		network: nw,
		config:  cfg,
	}
}
