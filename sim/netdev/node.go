package netdev

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/packet"
)

// LocalHandler receives packets addressed to the node. iface is the ingress
// interface index.
type LocalHandler func(pkt []byte, hdr packet.Header, iface int)

type nodeInterface struct {
	dev    *Device
	addrs  []sim.InterfaceAddress
	up     bool
	metric uint16
}

// Node is an IPv4 host or router. Interface 0 is the loopback, so devices
// are numbered from 1. Node implements sim.NetworkLayer.
type Node struct {
	name       string
	network    *Network
	ifaces     []*nodeInterface
	router     sim.OutboundRouter
	forwarding bool
	local      LocalHandler

	Delivered uint64
	Forwarded uint64
	Dropped   uint64
}

var _ sim.NetworkLayer = (*Node)(nil)

func newNode(name string, network *Network) *Node {
	lo := netip.MustParsePrefix("127.0.0.1/8")
	return &Node{
		name:    name,
		network: network,
		ifaces: []*nodeInterface{{
			addrs: []sim.InterfaceAddress{{Local: lo.Addr(), Prefix: lo.Masked()}},
			up:    true,
		}},
	}
}

func (n *Node) Name() string { return n.name }

// AddInterface binds dev to a new interface carrying addr (host address with
// its prefix length, e.g. 10.1.1.1/24) and returns its index.
func (n *Node) AddInterface(dev *Device, addr netip.Prefix) int {
	idx := len(n.ifaces)
	ni := &nodeInterface{dev: dev, up: true, metric: 1}
	if addr.IsValid() {
		ni.addrs = append(ni.addrs, sim.InterfaceAddress{Local: addr.Addr(), Prefix: addr.Masked()})
	}
	n.ifaces = append(n.ifaces, ni)
	dev.node = n
	dev.iface = idx
	return idx
}

// AddAddress adds a secondary address to an existing interface.
func (n *Node) AddAddress(iface int, addr netip.Prefix) error {
	if iface <= 0 || iface >= len(n.ifaces) {
		return fmt.Errorf("%s: no interface %d", n.name, iface)
	}
	n.ifaces[iface].addrs = append(n.ifaces[iface].addrs, sim.InterfaceAddress{Local: addr.Addr(), Prefix: addr.Masked()})
	return nil
}

// SetUp changes the administrative state of an interface.
func (n *Node) SetUp(iface int, up bool) { n.ifaces[iface].up = up }

// SetMetric changes the routing metric of an interface.
func (n *Node) SetMetric(iface int, metric uint16) { n.ifaces[iface].metric = metric }

func (n *Node) SetRouter(r sim.OutboundRouter) { n.router = r }

func (n *Node) Router() sim.OutboundRouter { return n.router }

func (n *Node) SetForwarding(on bool) { n.forwarding = on }

func (n *Node) SetLocalHandler(h LocalHandler) { n.local = h }

// NumInterfaces implements sim.NetworkLayer.
func (n *Node) NumInterfaces() int { return len(n.ifaces) }

// Addresses implements sim.NetworkLayer.
func (n *Node) Addresses(iface int) []sim.InterfaceAddress {
	if iface < 0 || iface >= len(n.ifaces) {
		return nil
	}
	return n.ifaces[iface].addrs
}

// Device implements sim.NetworkLayer. The loopback has no device.
func (n *Node) Device(iface int) sim.Device {
	if iface < 0 || iface >= len(n.ifaces) || n.ifaces[iface].dev == nil {
		return nil
	}
	return n.ifaces[iface].dev
}

// NetDevice returns the concrete device bound to iface, or nil.
func (n *Node) NetDevice(iface int) *Device {
	if iface < 0 || iface >= len(n.ifaces) {
		return nil
	}
	return n.ifaces[iface].dev
}

// IsUp implements sim.NetworkLayer.
func (n *Node) IsUp(iface int) bool {
	return iface >= 0 && iface < len(n.ifaces) && n.ifaces[iface].up
}

// Metric implements sim.NetworkLayer.
func (n *Node) Metric(iface int) uint16 {
	if iface < 0 || iface >= len(n.ifaces) {
		return 0
	}
	return n.ifaces[iface].metric
}

// IsLocal reports whether addr is configured on any interface of the node.
func (n *Node) IsLocal(addr netip.Addr) bool {
	for _, ni := range n.ifaces {
		for _, a := range ni.addrs {
			if a.Local == addr {
				return true
			}
		}
	}
	return false
}

// Send routes a locally originated packet through the node's router.
func (n *Node) Send(pkt []byte) error {
	hdr, err := packet.Parse(pkt)
	if err != nil {
		return fmt.Errorf("%s: send: %w", n.name, err)
	}
	if n.router == nil {
		return fmt.Errorf("%s: send to %s: %w", n.name, hdr.Destination, sim.ErrNoRouteToHost)
	}
	route, err := n.router.ResolveOutboundRoute(pkt, hdr, nil)
	if err != nil {
		n.drop("no-route")
		return fmt.Errorf("%s: send: %w", n.name, err)
	}
	return n.transmit(route.Device, pkt)
}

// SendVia transmits pkt out of iface without consulting the router.
func (n *Node) SendVia(iface int, pkt []byte) error {
	dev := n.NetDevice(iface)
	if dev == nil {
		return fmt.Errorf("%s: interface %d has no device", n.name, iface)
	}
	return n.transmit(dev, pkt)
}

func (n *Node) transmit(dev sim.Device, pkt []byte) error {
	if dev == nil {
		n.drop("no-device")
		return fmt.Errorf("%s: route has no device", n.name)
	}
	dst := dev.Broadcast()
	if d, ok := dev.(*Device); ok && d.peer != nil {
		dst = d.peer.mac
	}
	return dev.Send(pkt, dst, layers.EthernetTypeIPv4)
}

func (n *Node) receive(dev *Device, frame sim.Frame) {
	if frame.Protocol != layers.EthernetTypeIPv4 {
		n.drop("protocol")
		return
	}
	hdr, err := packet.Parse(frame.Payload)
	if err != nil {
		logrus.Debugf("[netdev] %s: undecodable packet on %s: %v", n.name, dev.name, err)
		n.drop("decode")
		return
	}

	if n.IsLocal(hdr.Destination) {
		n.Delivered++
		if n.local != nil {
			n.local(frame.Payload, hdr, dev.iface)
		}
		return
	}
	if !n.forwarding {
		n.drop("not-forwarding")
		return
	}

	pkt, err := packet.DecrementTTL(frame.Payload)
	if err != nil {
		n.drop("ttl")
		return
	}
	hdr.TTL--
	if n.router == nil {
		n.drop("no-route")
		return
	}
	route, err := n.router.ResolveOutboundRoute(pkt, hdr, nil)
	if err != nil {
		logrus.Debugf("[netdev] %s: cannot forward to %s: %v", n.name, hdr.Destination, err)
		n.drop("no-route")
		return
	}
	if err := n.transmit(route.Device, pkt); err != nil {
		logrus.Debugf("[netdev] %s: forward to %s: %v", n.name, hdr.Destination, err)
		return
	}
	n.Forwarded++
}

func (n *Node) drop(reason string) {
	n.Dropped++
	n.network.metrics.ObserveDrop(reason)
}
