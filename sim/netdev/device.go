package netdev

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/engine"
)

var (
	ErrNotAttached   = errors.New("netdev: device is not attached to a link")
	ErrQueueFull     = errors.New("netdev: transmit queue full")
	ErrNotSubscribed = errors.New("netdev: subscription already released")
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// LinkConfig describes one point-to-point channel.
type LinkConfig struct {
	DataRate   uint64        // bits per second; 0 means no serialization delay
	Delay      time.Duration // one-way propagation delay
	MaxBacklog int           // frames waiting for transmission; 0 means unbounded
}

// Device is one end of a point-to-point link. It implements sim.Device.
type Device struct {
	name    string
	mac     net.HardwareAddr
	sim     *engine.Simulator
	network *Network
	config  LinkConfig
	peer    *Device
	node    *Node
	iface   int

	busyUntil int64
	backlog   int
	handlers  []*subscription

	TxFrames uint64
	RxFrames uint64
	Drops    uint64
}

var _ sim.Device = (*Device)(nil)

func (d *Device) Name() string                  { return d.name }
func (d *Device) Address() net.HardwareAddr     { return d.mac }
func (d *Device) Broadcast() net.HardwareAddr   { return broadcastMAC }
func (d *Device) Peer() *Device                 { return d.peer }
func (d *Device) Node() *Node                   { return d.node }
func (d *Device) Config() LinkConfig            { return d.config }
func (d *Device) String() string                { return d.name }

// Send queues payload behind any frame still being serialized and schedules
// its delivery to the peer after transmission time plus propagation delay.
func (d *Device) Send(payload []byte, dst net.HardwareAddr, proto layers.EthernetType) error {
	if d.peer == nil {
		return fmt.Errorf("%s: %w", d.name, ErrNotAttached)
	}
	if d.config.MaxBacklog > 0 && d.backlog >= d.config.MaxBacklog {
		d.Drops++
		d.network.metrics.ObserveDrop("queue-full")
		return fmt.Errorf("%s: %w (%d frames)", d.name, ErrQueueFull, d.backlog)
	}

	now := d.sim.Now()
	start := now
	if d.busyUntil > start {
		start = d.busyUntil
	}
	d.busyUntil = start + d.transmissionTime(len(payload))
	d.backlog++
	d.TxFrames++

	frame := sim.Frame{
		Payload:     append([]byte(nil), payload...),
		Protocol:    proto,
		Source:      d.mac,
		Destination: dst,
	}
	peer := d.peer
	d.sim.ScheduleAt(d.busyUntil, engine.EventTypeTransmit, func() { d.backlog-- })
	d.sim.ScheduleAt(d.busyUntil+int64(d.config.Delay), engine.EventTypeDelivery, func() { peer.receive(frame) })
	return nil
}

func (d *Device) transmissionTime(bytes int) int64 {
	if d.config.DataRate == 0 {
		return 0
	}
	return int64(uint64(bytes) * 8 * uint64(time.Second) / d.config.DataRate)
}

// SubscribePromiscuous registers h for every frame the device receives,
// including frames addressed to other hosts. Handlers run in subscription
// order; the first to return sim.Consumed ends delivery.
func (d *Device) SubscribePromiscuous(h sim.FrameHandler) (sim.Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("%s: nil frame handler", d.name)
	}
	s := &subscription{dev: d, handler: h}
	d.handlers = append(d.handlers, s)
	return s, nil
}

// Subscribers returns the number of active promiscuous handlers.
func (d *Device) Subscribers() int {
	return len(d.handlers)
}

func (d *Device) receive(frame sim.Frame) {
	d.RxFrames++
	frame.Type = d.classify(frame.Destination)

	handlers := append([]*subscription(nil), d.handlers...)
	for _, s := range handlers {
		if s.handler(d, frame) == sim.Consumed {
			return
		}
	}
	if frame.Type == sim.FrameOtherHost {
		logrus.Debugf("[netdev] %s: frame for %s ignored", d.name, frame.Destination)
		return
	}
	if d.node != nil {
		d.node.receive(d, frame)
	}
}

func (d *Device) classify(dst net.HardwareAddr) sim.FrameType {
	switch {
	case dst.String() == d.mac.String():
		return sim.FrameHost
	case dst.String() == broadcastMAC.String():
		return sim.FrameBroadcast
	case len(dst) > 0 && dst[0]&0x01 != 0:
		return sim.FrameMulticast
	default:
		return sim.FrameOtherHost
	}
}

type subscription struct {
	dev     *Device
	handler sim.FrameHandler
}

func (s *subscription) Unsubscribe() error {
	for i, h := range s.dev.handlers {
		if h == s {
			s.dev.handlers = append(s.dev.handlers[:i:i], s.dev.handlers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", s.dev.name, ErrNotSubscribed)
}
