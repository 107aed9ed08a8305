package netdev

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/engine"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/metrics"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/packet"
)

func udp(t *testing.T, src, dst string, payload int) []byte {
	t.Helper()
	b, err := packet.BuildUDP(packet.UDPSpec{
		Source:          netip.MustParseAddr(src),
		Destination:     netip.MustParseAddr(dst),
		SourcePort:      4000,
		DestinationPort: 5000,
		Payload:         make([]byte, payload),
	})
	require.NoError(t, err)
	return b
}

// line builds a - r - b with static routing on every node.
func line(t *testing.T, cfg LinkConfig) (*engine.Simulator, *Node, *Node, *Node) {
	t.Helper()
	s := engine.NewSimulator(0)
	nw := NewNetwork(s)
	a, r, b := nw.NewNode("a"), nw.NewNode("r"), nw.NewNode("b")

	ar, ra := nw.Connect(a, r, cfg)
	rb, br := nw.Connect(r, b, cfg)
	a.AddInterface(ar, netip.MustParsePrefix("10.0.1.1/24"))
	r.AddInterface(ra, netip.MustParsePrefix("10.0.1.2/24"))
	r.AddInterface(rb, netip.MustParsePrefix("10.0.2.1/24"))
	b.AddInterface(br, netip.MustParsePrefix("10.0.2.2/24"))

	route := func(n *Node, entries ...sim.RouteEntry) {
		table := sim.NewRoutingTable()
		for _, e := range entries {
			require.NoError(t, table.AddNetworkRoute(netip.PrefixFrom(e.Destination, e.PrefixLen), e.Gateway, e.Interface))
		}
		st := sim.NewStaticTable(table)
		st.SetNetworkLayer(n)
		n.SetRouter(st)
	}
	route(a, sim.RouteEntry{Destination: netip.MustParseAddr("0.0.0.0"), Gateway: netip.MustParseAddr("10.0.1.2"), Interface: 1})
	route(r,
		sim.RouteEntry{Destination: netip.MustParseAddr("10.0.1.0"), PrefixLen: 24, Interface: 1},
		sim.RouteEntry{Destination: netip.MustParseAddr("10.0.2.0"), PrefixLen: 24, Interface: 2},
	)
	route(b, sim.RouteEntry{Destination: netip.MustParseAddr("0.0.0.0"), Gateway: netip.MustParseAddr("10.0.2.1"), Interface: 1})
	r.SetForwarding(true)
	return s, a, r, b
}

func TestNode_ForwardsAndDecrementsTTL(t *testing.T) {
	// GIVEN a three-node line with a forwarding router
	s, a, r, b := line(t, LinkConfig{Delay: time.Millisecond})
	var got []packet.Header
	var ingress []int
	b.SetLocalHandler(func(_ []byte, hdr packet.Header, iface int) {
		got = append(got, hdr)
		ingress = append(ingress, iface)
	})

	// WHEN a sends one packet to b
	require.NoError(t, a.Send(udp(t, "10.0.1.1", "10.0.2.2", 10)))
	s.Run()

	// THEN b receives it after two link delays with the TTL lowered by one
	require.Len(t, got, 1)
	assert.Equal(t, uint8(63), got[0].TTL)
	assert.Equal(t, []int{1}, ingress)
	assert.Equal(t, int64(2*time.Millisecond), s.Now())
	assert.Equal(t, uint64(1), r.Forwarded)
}

func TestDevice_SerializationDelay(t *testing.T) {
	// GIVEN a 1 Mbit/s link without propagation delay
	s, a, _, b := line(t, LinkConfig{DataRate: 1_000_000})
	var at []int64
	b.SetLocalHandler(func([]byte, packet.Header, int) { at = append(at, s.Now()) })

	// WHEN two 125-byte packets leave back to back
	pkt := udp(t, "10.0.1.1", "10.0.2.2", 125-28)
	require.NoError(t, a.Send(pkt))
	require.NoError(t, a.Send(pkt))
	s.Run()

	// THEN each takes 1ms per hop and the second queues behind the first
	require.Len(t, at, 2)
	assert.Equal(t, int64(2*time.Millisecond), at[0])
	assert.Equal(t, int64(3*time.Millisecond), at[1])
}

func TestDevice_BacklogLimitDrops(t *testing.T) {
	s := engine.NewSimulator(0)
	nw := NewNetwork(s)
	m := metrics.NewCollector()
	nw.SetMetrics(m)
	a, b := nw.NewNode("a"), nw.NewNode("b")
	da, _ := nw.Connect(a, b, LinkConfig{DataRate: 8000, MaxBacklog: 2})

	pkt := make([]byte, 100)
	require.NoError(t, da.Send(pkt, nil, layers.EthernetTypeIPv4))
	require.NoError(t, da.Send(pkt, nil, layers.EthernetTypeIPv4))
	err := da.Send(pkt, nil, layers.EthernetTypeIPv4)

	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, uint64(1), da.Drops)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedTotal.WithLabelValues("queue-full")))

	s.Run()
	require.NoError(t, da.Send(pkt, nil, layers.EthernetTypeIPv4))
}

func TestDevice_PromiscuousConsumeStopsDelivery(t *testing.T) {
	// GIVEN a handler on the router's ingress device that consumes everything
	s, a, r, b := line(t, LinkConfig{Delay: time.Microsecond})
	delivered := 0
	b.SetLocalHandler(func([]byte, packet.Header, int) { delivered++ })
	seen := 0
	sub, err := r.NetDevice(1).SubscribePromiscuous(func(dev sim.Device, f sim.Frame) sim.Verdict {
		seen++
		assert.Equal(t, sim.FrameHost, f.Type)
		assert.Equal(t, layers.EthernetTypeIPv4, f.Protocol)
		return sim.Consumed
	})
	require.NoError(t, err)

	// WHEN a packet crosses the router
	require.NoError(t, a.Send(udp(t, "10.0.1.1", "10.0.2.2", 1)))
	s.Run()

	// THEN the handler saw it and the router never forwarded it
	assert.Equal(t, 1, seen)
	assert.Equal(t, 0, delivered)
	assert.Equal(t, uint64(0), r.Forwarded)

	// AND after unsubscribing, traffic flows again
	require.NoError(t, sub.Unsubscribe())
	assert.ErrorIs(t, sub.Unsubscribe(), ErrNotSubscribed)
	assert.Equal(t, 0, r.NetDevice(1).Subscribers())
	require.NoError(t, a.Send(udp(t, "10.0.1.1", "10.0.2.2", 1)))
	s.Run()
	assert.Equal(t, 1, delivered)
}

func TestDevice_PassThroughContinuesToNode(t *testing.T) {
	s, a, r, b := line(t, LinkConfig{})
	delivered := 0
	b.SetLocalHandler(func([]byte, packet.Header, int) { delivered++ })
	_, err := r.NetDevice(1).SubscribePromiscuous(func(sim.Device, sim.Frame) sim.Verdict { return sim.PassThrough })
	require.NoError(t, err)

	require.NoError(t, a.Send(udp(t, "10.0.1.1", "10.0.2.2", 1)))
	s.Run()
	assert.Equal(t, 1, delivered)
}

func TestNode_DropsWithoutForwarding(t *testing.T) {
	s, a, r, _ := line(t, LinkConfig{})
	r.SetForwarding(false)
	require.NoError(t, a.Send(udp(t, "10.0.1.1", "10.0.2.2", 1)))
	s.Run()
	assert.Equal(t, uint64(1), r.Dropped)
}

func TestNode_TTLExpiry(t *testing.T) {
	s, a, r, b := line(t, LinkConfig{})
	delivered := 0
	b.SetLocalHandler(func([]byte, packet.Header, int) { delivered++ })
	pkt, err := packet.BuildUDP(packet.UDPSpec{
		Source:      netip.MustParseAddr("10.0.1.1"),
		Destination: netip.MustParseAddr("10.0.2.2"),
		TTL:         1,
	})
	require.NoError(t, err)

	require.NoError(t, a.Send(pkt))
	s.Run()

	assert.Equal(t, 0, delivered)
	assert.Equal(t, uint64(1), r.Dropped)
}

func TestNode_NetworkLayerView(t *testing.T) {
	_, a, r, _ := line(t, LinkConfig{})
	assert.Equal(t, 3, r.NumInterfaces())
	assert.Nil(t, r.Device(0))
	assert.NotNil(t, r.Device(2))
	assert.Equal(t, netip.MustParseAddr("10.0.2.1"), r.Addresses(2)[0].Local)
	assert.Equal(t, netip.MustParsePrefix("10.0.2.0/24"), r.Addresses(2)[0].Prefix)
	assert.True(t, r.IsUp(1))
	assert.False(t, r.IsUp(7))
	assert.True(t, a.IsLocal(netip.MustParseAddr("10.0.1.1")))

	require.NoError(t, a.AddAddress(1, netip.MustParsePrefix("10.1.4.1/24")))
	assert.True(t, a.IsLocal(netip.MustParseAddr("10.1.4.1")))
	assert.Error(t, a.AddAddress(0, netip.MustParsePrefix("10.1.4.1/24")))
}

func TestNode_SendVia(t *testing.T) {
	s, _, r, b := line(t, LinkConfig{})
	delivered := 0
	b.SetLocalHandler(func([]byte, packet.Header, int) { delivered++ })
	require.NoError(t, r.SendVia(2, udp(t, "10.0.2.1", "10.0.2.2", 1)))
	assert.Error(t, r.SendVia(0, udp(t, "10.0.2.1", "10.0.2.2", 1)))
	s.Run()
	assert.Equal(t, 1, delivered)
}
