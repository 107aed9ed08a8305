package sim

import (
	"net"

	"github.com/google/gopacket/layers"
)

// FrameType classifies a received frame relative to the receiving device.
type FrameType int

const (
	FrameHost FrameType = iota
	FrameBroadcast
	FrameMulticast
	FrameOtherHost
)

func (t FrameType) String() string {
	switch t {
	case FrameHost:
		return "host"
	case FrameBroadcast:
		return "broadcast"
	case FrameMulticast:
		return "multicast"
	case FrameOtherHost:
		return "otherhost"
	default:
		return "unknown"
	}
}

// Frame is a link-layer frame as seen by a promiscuous handler.
// Payload holds the network-layer packet.
type Frame struct {
	Payload     []byte
	Protocol    layers.EthernetType
	Source      net.HardwareAddr
	Destination net.HardwareAddr
	Type        FrameType
}

// Verdict tells the device whether a promiscuous handler took the frame.
type Verdict int

const (
	// PassThrough leaves the frame to the normal receive path.
	PassThrough Verdict = iota
	// Consumed stops delivery: the handler forwarded or dropped the frame.
	Consumed
)

func (v Verdict) String() string {
	if v == Consumed {
		return "consumed"
	}
	return "pass-through"
}

// FrameHandler is invoked for every frame a device receives.
type FrameHandler func(dev Device, frame Frame) Verdict

// Device is a link-layer network device.
type Device interface {
	Name() string
	Address() net.HardwareAddr
	Broadcast() net.HardwareAddr
	// Send queues payload for transmission to dst. Delivery happens later
	// on the event loop, never from inside Send.
	Send(payload []byte, dst net.HardwareAddr, proto layers.EthernetType) error
	SubscribePromiscuous(h FrameHandler) (Subscription, error)
}

// Subscription is the handle of a promiscuous handler registration.
type Subscription interface {
	Unsubscribe() error
}
