package scenario

import (
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/engine"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/metrics"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/nat"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/netdev"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/trace"
)

// Addressing plan of the experiment.
var (
	ClientAddr   = netip.MustParseAddr("10.1.1.1")
	BalancerAddr = netip.MustParseAddr("10.1.1.2")
	VirtualAddr  = netip.MustParseAddr("10.1.4.1")
	serverNet    = netip.MustParsePrefix("10.1.4.0/24")
	clientNet    = netip.MustParsePrefix("10.1.1.0/24")
)

// uplinkAddrs returns the balancer and router addresses of path i (10.1.2.4i/30).
func uplinkAddrs(i int) (balancer, router netip.Prefix) {
	return netip.PrefixFrom(netip.AddrFrom4([4]byte{10, 1, 2, byte(4*i + 1)}), 30),
		netip.PrefixFrom(netip.AddrFrom4([4]byte{10, 1, 2, byte(4*i + 2)}), 30)
}

// downlinkAddrs returns the router and server addresses of path i (10.1.3.4i/30).
func downlinkAddrs(i int) (router, server netip.Prefix) {
	return netip.PrefixFrom(netip.AddrFrom4([4]byte{10, 1, 3, byte(4*i + 1)}), 30),
		netip.PrefixFrom(netip.AddrFrom4([4]byte{10, 1, 3, byte(4*i + 2)}), 30)
}

// ServerPathAddr is the server's own address on path i; in NAT mode client
// packets sent over channel i are rewritten to it.
func ServerPathAddr(i int) netip.Addr {
	_, s := downlinkAddrs(i)
	return s.Addr()
}

// Scenario is a built, runnable experiment.
type Scenario struct {
	Config  *Config
	Sim     *engine.Simulator
	Network *netdev.Network
	Metrics *metrics.Collector
	Trace   *trace.SimulationTrace
	RNG     *sim.PartitionedRNG

	Client   *netdev.Node
	Balancer *netdev.Node
	Routers  []*netdev.Node
	Server   *netdev.Node

	// BalancerRouter is set in route-table mode.
	BalancerRouter *sim.Balancer
	// Interceptor is set in NAT mode.
	Interceptor *nat.Interceptor

	probes *probeState
}

// Build validates cfg and wires the topology:
//
//	client ── balancer ─┬─ router 0 ─┬─ server
//	                    ├─ router 1 ─┤
//	                    └─ ...      ─┘
//
// Node interface 0 is the loopback, so the balancer's client link is
// interface 1 and path i leaves on interface i+2.
func Build(cfg *Config) (*Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrConfiguration, err)
	}

	s := &Scenario{
		Config:  cfg,
		Sim:     engine.NewSimulator(cfg.Horizon),
		Metrics: metrics.NewCollector(),
		RNG:     sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)),
	}
	s.Network = netdev.NewNetwork(s.Sim)
	s.Network.SetMetrics(s.Metrics)
	tc := trace.TraceConfig{Level: trace.TraceLevel(cfg.TraceLevel)}
	if tc.Enabled() {
		s.Trace = trace.NewSimulationTrace(tc)
	}

	s.Client = s.Network.NewNode("client")
	s.Balancer = s.Network.NewNode("balancer")
	s.Server = s.Network.NewNode("server")

	clientLink, err := linkConfig(cfg.ClientLink)
	if err != nil {
		return nil, err
	}
	cDev, bDev := s.Network.Connect(s.Client, s.Balancer, clientLink)
	s.Client.AddInterface(cDev, netip.PrefixFrom(ClientAddr, 24))
	s.Balancer.AddInterface(bDev, netip.PrefixFrom(BalancerAddr, 24))

	// The balancer holds two tables: the multipath entries toward the server
	// network, and its connected networks, which answer everything else
	// through the fallback router.
	balancerTable := sim.NewRoutingTable()
	baseTable := sim.NewRoutingTable()
	if err := baseTable.AddNetworkRoute(clientNet, netip.Addr{}, 1); err != nil {
		return nil, err
	}
	var bindings []nat.ChannelBinding

	for i, p := range cfg.Paths {
		up, err := linkConfig(p.Uplink)
		if err != nil {
			return nil, err
		}
		down, err := linkConfig(p.Downlink)
		if err != nil {
			return nil, err
		}
		router := s.Network.NewNode(fmt.Sprintf("router%d", i))
		s.Routers = append(s.Routers, router)

		balUp, rtrUp := uplinkAddrs(i)
		rtrDown, srvDown := downlinkAddrs(i)
		bDevUp, rDevUp := s.Network.Connect(s.Balancer, router, up)
		rDevDown, sDevDown := s.Network.Connect(router, s.Server, down)

		bIface := s.Balancer.AddInterface(bDevUp, balUp)
		router.AddInterface(rDevUp, rtrUp)
		router.AddInterface(rDevDown, rtrDown)
		sIface := s.Server.AddInterface(sDevDown, srvDown)
		if err := s.Server.AddAddress(sIface, netip.PrefixFrom(VirtualAddr, 24)); err != nil {
			return nil, err
		}

		if err := baseTable.AddNetworkRoute(balUp.Masked(), netip.Addr{}, bIface); err != nil {
			return nil, err
		}
		if err := balancerTable.AddNetworkRoute(serverNet, rtrUp.Addr(), bIface); err != nil {
			return nil, err
		}
		bindings = append(bindings, nat.ChannelBinding{Device: bDevUp, PeerAddress: srvDown.Addr()})

		// router: connected networks plus host routes to the server and the client
		rt := sim.NewRoutingTable()
		for _, err := range []error{
			rt.AddNetworkRoute(rtrUp.Masked(), netip.Addr{}, 1),
			rt.AddNetworkRoute(rtrDown.Masked(), netip.Addr{}, 2),
			rt.AddHostRoute(VirtualAddr, srvDown.Addr(), 2),
			rt.AddHostRoute(ClientAddr, balUp.Addr(), 1),
		} {
			if err != nil {
				return nil, err
			}
		}
		static := sim.NewStaticTable(rt)
		static.SetNetworkLayer(router)
		router.SetRouter(static)
		router.SetForwarding(true)
	}

	// client: everything through the balancer
	ct := sim.NewRoutingTable()
	if err := ct.AddNetworkRoute(netip.MustParsePrefix("0.0.0.0/0"), BalancerAddr, 1); err != nil {
		return nil, err
	}
	cs := sim.NewStaticTable(ct)
	cs.SetNetworkLayer(s.Client)
	s.Client.SetRouter(cs)

	// server: replies leave on the ingress interface, see echo
	st := sim.NewStaticTable(sim.NewRoutingTable())
	st.SetNetworkLayer(s.Server)
	s.Server.SetRouter(st)

	fallback := sim.NewStaticTable(baseTable)
	fallback.SetNetworkLayer(s.Balancer)
	s.Balancer.SetForwarding(true)

	policy := sim.NewSelectionPolicy(cfg.Policy, cfg.InitialCursor, s.RNG.ForSubsystem(sim.SubsystemBalancer))
	switch cfg.Mode {
	case ModeRouteTable:
		b := sim.NewBalancer(balancerTable, policy)
		b.SetNetworkLayer(s.Balancer)
		b.SetFallback(fallback)
		b.SetMetrics(s.Metrics)
		b.SetTrace(s.Trace)
		b.SetClock(s.Sim.Now)
		s.Balancer.SetRouter(b)
		s.BalancerRouter = b
	case ModeNAT:
		s.Balancer.SetRouter(fallback)
		table, err := nat.NewChannelTable(VirtualAddr, bindings...)
		if err != nil {
			return nil, err
		}
		ic := nat.NewInterceptor(bDev, table, policy)
		ic.SetMetrics(s.Metrics)
		ic.SetTrace(s.Trace)
		ic.SetClock(s.Sim.Now)
		s.Interceptor = ic
	}

	s.installTraffic()
	s.scheduleWithdrawals(balancerTable)
	logrus.Infof("[scenario] %s mode, policy %s, %d paths, %d probes", cfg.Mode, policy.Name(), len(cfg.Paths), cfg.Traffic.Packets)
	return s, nil
}

// Router returns router i.
func (s *Scenario) Router(i int) *netdev.Node { return s.Routers[i] }

func (s *Scenario) scheduleWithdrawals(table *sim.RoutingTable) {
	for _, w := range s.Config.Withdrawals {
		w := w
		iface := w.Path + 2
		s.Sim.Schedule(w.At, engine.EventTypeControl, func() {
			for i := 0; i < table.Len(); i++ {
				e := table.Route(i)
				if e.Interface == iface && e.Destination == serverNet.Addr() && e.PrefixLen == serverNet.Bits() {
					if err := table.RemoveRoute(i); err != nil {
						logrus.Warnf("[scenario] withdraw path %d: %v", w.Path, err)
					}
					logrus.Infof("[scenario] withdrew path %d at %s", w.Path, s.Sim.Elapsed())
					return
				}
			}
			logrus.Warnf("[scenario] path %d has no route left to withdraw", w.Path)
		})
	}
}

func linkConfig(l LinkSpec) (netdev.LinkConfig, error) {
	rate, err := ParseDataRate(l.DataRate)
	if err != nil {
		return netdev.LinkConfig{}, err
	}
	return netdev.LinkConfig{DataRate: rate, Delay: l.Delay, MaxBacklog: l.MaxBacklog}, nil
}
