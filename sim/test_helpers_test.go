package sim

import (
	"net"
	"net/netip"

	"github.com/google/gopacket/layers"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/packet"
)

type stubDevice struct {
	name string
}

func (d *stubDevice) Name() string                   { return d.name }
func (d *stubDevice) Address() net.HardwareAddr      { return net.HardwareAddr{0, 0, 0, 0, 0, 1} }
func (d *stubDevice) Broadcast() net.HardwareAddr    { return net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff} }
func (d *stubDevice) Send([]byte, net.HardwareAddr, layers.EthernetType) error { return nil }
func (d *stubDevice) SubscribePromiscuous(FrameHandler) (Subscription, error)  { return nil, nil }

type stubInterface struct {
	addrs  []InterfaceAddress
	device Device
	down   bool
	metric uint16
}

// stubLayer is a NetworkLayer with hand-configured interfaces.
type stubLayer struct {
	ifaces []stubInterface
}

func (l *stubLayer) NumInterfaces() int                    { return len(l.ifaces) }
func (l *stubLayer) Addresses(i int) []InterfaceAddress    { return l.ifaces[i].addrs }
func (l *stubLayer) Device(i int) Device                   { return l.ifaces[i].device }
func (l *stubLayer) IsUp(i int) bool                       { return !l.ifaces[i].down }
func (l *stubLayer) Metric(i int) uint16                   { return l.ifaces[i].metric }

// newStubLayer builds n interfaces; interface i carries 10.0.i.1/24.
func newStubLayer(n int) *stubLayer {
	l := &stubLayer{}
	for i := 0; i < n; i++ {
		local := netip.AddrFrom4([4]byte{10, 0, byte(i), 1})
		l.ifaces = append(l.ifaces, stubInterface{
			addrs:  []InterfaceAddress{{Local: local, Prefix: netip.PrefixFrom(local, 24)}},
			device: &stubDevice{name: "dev" + string(rune('0'+i))},
			metric: 1,
		})
	}
	return l
}

// countingPolicy records whether Select was invoked.
type countingPolicy struct {
	calls int
}

func (p *countingPolicy) Select(n int) (int, error) {
	p.calls++
	return 0, nil
}
func (p *countingPolicy) Name() string { return "counting" }

// fixedRouter always returns the same route.
type fixedRouter struct {
	route *Route
	calls int
}

func (r *fixedRouter) ResolveOutboundRoute([]byte, packet.Header, Device) (*Route, error) {
	r.calls++
	return r.route, nil
}

func headerTo(dst string) packet.Header {
	return packet.Header{
		Source:      netip.MustParseAddr("10.1.1.1"),
		Destination: netip.MustParseAddr(dst),
		Protocol:    layers.IPProtocolUDP,
		TTL:         64,
	}
}

func mustPrefix(s string) netip.Prefix { return netip.MustParsePrefix(s) }
func mustAddr(s string) netip.Addr     { return netip.MustParseAddr(s) }
