package scenario

import (
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/engine"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/packet"
)

const clientPort = 49153

// probeState tracks the probe stream on both ends.
type probeState struct {
	sent       int
	sendErrors int

	serverReceived  int
	serverMaxSeq    int64
	serverReordered int
	pathCounts      []int

	received      int
	clientMaxSeq  int64
	clientReorder int
	rttSum        time.Duration
	rttMax        time.Duration
	replySources  map[netip.Addr]int
}

func (s *Scenario) installTraffic() {
	t := s.Config.Traffic
	s.probes = &probeState{
		serverMaxSeq: -1,
		clientMaxSeq: -1,
		pathCounts:   make([]int, len(s.Config.Paths)),
		replySources: make(map[netip.Addr]int),
	}
	s.Server.SetLocalHandler(s.echo)
	s.Client.SetLocalHandler(s.receiveReply)

	rng := s.RNG.ForSubsystem(sim.SubsystemTraffic)
	for seq := 0; seq < t.Packets; seq++ {
		at := t.Start + time.Duration(seq)*t.Interval
		if t.Jitter > 0 {
			at += time.Duration(rng.Int63n(int64(t.Jitter) + 1))
		}
		seq := uint64(seq)
		s.Sim.Schedule(at, engine.EventTypeApplication, func() { s.sendProbe(seq) })
	}
}

func (s *Scenario) sendProbe(seq uint64) {
	t := s.Config.Traffic
	payload := make([]byte, t.PayloadBytes)
	binary.BigEndian.PutUint64(payload[0:8], seq)
	binary.BigEndian.PutUint64(payload[8:16], uint64(s.Sim.Now()))

	pkt, err := packet.BuildUDP(packet.UDPSpec{
		Source:          ClientAddr,
		Destination:     VirtualAddr,
		SourcePort:      clientPort,
		DestinationPort: t.Port,
		ID:              uint16(seq),
		Payload:         payload,
	})
	if err != nil {
		logrus.Errorf("[scenario] build probe %d: %v", seq, err)
		s.probes.sendErrors++
		return
	}
	s.probes.sent++
	if err := s.Client.Send(pkt); err != nil {
		logrus.Debugf("[scenario] probe %d not sent: %v", seq, err)
		s.probes.sendErrors++
	}
}

// echo answers every probe from the address it was sent to, on the
// interface it arrived on.
func (s *Scenario) echo(pkt []byte, hdr packet.Header, iface int) {
	d, err := packet.ParseUDP(pkt)
	if err != nil || d.DestinationPort != s.Config.Traffic.Port || len(d.Payload) < MinPayloadBytes {
		return
	}
	p := s.probes
	seq := int64(binary.BigEndian.Uint64(d.Payload[0:8]))
	p.serverReceived++
	if seq < p.serverMaxSeq {
		p.serverReordered++
	} else {
		p.serverMaxSeq = seq
	}
	if path := iface - 1; path >= 0 && path < len(p.pathCounts) {
		p.pathCounts[path]++
	}

	reply, err := packet.BuildUDP(packet.UDPSpec{
		Source:          hdr.Destination,
		Destination:     hdr.Source,
		SourcePort:      d.DestinationPort,
		DestinationPort: d.SourcePort,
		ID:              hdr.ID,
		Payload:         d.Payload,
	})
	if err != nil {
		logrus.Errorf("[scenario] build reply: %v", err)
		return
	}
	if err := s.Server.SendVia(iface, reply); err != nil {
		logrus.Debugf("[scenario] reply to probe %d not sent: %v", seq, err)
	}
}

func (s *Scenario) receiveReply(pkt []byte, hdr packet.Header, _ int) {
	d, err := packet.ParseUDP(pkt)
	if err != nil || d.DestinationPort != clientPort || len(d.Payload) < MinPayloadBytes {
		return
	}
	p := s.probes
	seq := int64(binary.BigEndian.Uint64(d.Payload[0:8]))
	sentAt := int64(binary.BigEndian.Uint64(d.Payload[8:16]))
	rtt := time.Duration(s.Sim.Now() - sentAt)

	p.received++
	p.replySources[hdr.Source]++
	p.rttSum += rtt
	if rtt > p.rttMax {
		p.rttMax = rtt
	}
	if seq < p.clientMaxSeq {
		p.clientReorder++
	} else {
		p.clientMaxSeq = seq
	}
	s.Metrics.ObserveRoundTrip(rtt)
}
