package nat

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/metrics"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/packet"
	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim/trace"
)

// Interceptor rewrites frames between one client-facing device and the
// channels of a ChannelTable.
//
// Client → server: the destination becomes the peer of the selected channel
// and the packet leaves on that channel's device.
// Server → client: the source becomes the virtual address and the packet
// leaves on the client device.
//
// There is no per-flow state; consecutive client packets of one flow may
// take different channels.
type Interceptor struct {
	client  sim.Device
	table   *ChannelTable
	policy  sim.SelectionPolicy
	trace   *trace.SimulationTrace
	metrics *metrics.Collector
	clock   func() int64

	subs    []sim.Subscription
	running bool
}

// NewInterceptor creates an interceptor. It does nothing until Start.
func NewInterceptor(client sim.Device, table *ChannelTable, policy sim.SelectionPolicy) *Interceptor {
	if client == nil || table == nil || policy == nil {
		panic("NewInterceptor: client, table and policy are required")
	}
	return &Interceptor{
		client: client,
		table:  table,
		policy: policy,
		clock:  func() int64 { return 0 },
	}
}

// SetTrace enables decision recording. nil disables it.
func (ic *Interceptor) SetTrace(t *trace.SimulationTrace) { ic.trace = t }

// SetMetrics enables counters. nil disables them.
func (ic *Interceptor) SetMetrics(m *metrics.Collector) { ic.metrics = m }

// SetClock sets the time source stamped on trace records.
func (ic *Interceptor) SetClock(now func() int64) { ic.clock = now }

// Running reports whether the interceptor holds its subscriptions.
func (ic *Interceptor) Running() bool { return ic.running }

// Table returns the channel table.
func (ic *Interceptor) Table() *ChannelTable { return ic.table }

// Start subscribes to the client device and to every channel device.
// With no channels it logs and returns ErrConfiguration and stays inert.
// If any subscription fails, those already taken are released.
func (ic *Interceptor) Start() error {
	if ic.running {
		return nil
	}
	if ic.table.Len() == 0 {
		err := fmt.Errorf("%w: no channels bound", sim.ErrConfiguration)
		logrus.Errorf("[nat] %v, interceptor stays inert", err)
		return err
	}

	devices := make([]sim.Device, 0, ic.table.Len()+1)
	devices = append(devices, ic.client)
	for i := 0; i < ic.table.Len(); i++ {
		devices = append(devices, ic.table.Binding(i).Device)
	}
	for _, dev := range devices {
		sub, err := dev.SubscribePromiscuous(ic.OnFrameReceived)
		if err != nil {
			err = fmt.Errorf("subscribe %s: %w", dev.Name(), err)
			return multierr.Append(err, ic.release())
		}
		ic.subs = append(ic.subs, sub)
	}
	ic.running = true
	logrus.Infof("[nat] intercepting %s with %d channels, virtual address %s, policy %s",
		ic.client.Name(), ic.table.Len(), ic.table.Virtual(), ic.policy.Name())
	return nil
}

// Stop releases every subscription. Calling Stop again is a no-op.
func (ic *Interceptor) Stop() error {
	ic.running = false
	return ic.release()
}

func (ic *Interceptor) release() error {
	var err error
	for _, sub := range ic.subs {
		err = multierr.Append(err, sub.Unsubscribe())
	}
	ic.subs = nil
	return err
}

// OnFrameReceived is the promiscuous handler installed on every device.
func (ic *Interceptor) OnFrameReceived(dev sim.Device, frame sim.Frame) sim.Verdict {
	if !ic.running || frame.Protocol != layers.EthernetTypeIPv4 {
		return sim.PassThrough
	}

	if dev == ic.client {
		return ic.toServer(frame)
	}
	if ch := ic.table.IndexOf(dev); ch >= 0 {
		return ic.toClient(dev, ch, frame)
	}
	return sim.PassThrough
}

func (ic *Interceptor) toServer(frame sim.Frame) sim.Verdict {
	hdr, err := packet.Parse(frame.Payload)
	if err != nil {
		ic.drop(ic.client, trace.ToServer, -1, fmt.Errorf("%w: %w", sim.ErrFrameDecode, err))
		return sim.Consumed
	}

	ch, err := ic.policy.Select(ic.table.Len())
	if err != nil {
		ic.drop(ic.client, trace.ToServer, -1, err)
		return sim.Consumed
	}
	binding := ic.table.Binding(ch)

	out, err := packet.RewriteDestination(frame.Payload, binding.PeerAddress)
	if err != nil {
		ic.drop(ic.client, trace.ToServer, ch, fmt.Errorf("%w: %w", sim.ErrFrameDecode, err))
		return sim.Consumed
	}
	ic.send(binding.Device, out, trace.ToServer, ch, hdr.Destination, binding.PeerAddress)
	return sim.Consumed
}

func (ic *Interceptor) toClient(dev sim.Device, ch int, frame sim.Frame) sim.Verdict {
	hdr, err := packet.Parse(frame.Payload)
	if err != nil {
		ic.drop(dev, trace.ToClient, ch, fmt.Errorf("%w: %w", sim.ErrFrameDecode, err))
		return sim.Consumed
	}

	out, err := packet.RewriteSource(frame.Payload, ic.table.Virtual())
	if err != nil {
		ic.drop(dev, trace.ToClient, ch, fmt.Errorf("%w: %w", sim.ErrFrameDecode, err))
		return sim.Consumed
	}
	ic.send(ic.client, out, trace.ToClient, ch, hdr.Source, ic.table.Virtual())
	return sim.Consumed
}

func (ic *Interceptor) send(dev sim.Device, pkt []byte, dir trace.Direction, ch int, from, to netip.Addr) {
	if err := dev.Send(pkt, dev.Broadcast(), layers.EthernetTypeIPv4); err != nil {
		ic.drop(dev, dir, ch, err)
		return
	}
	logrus.Debugf("[nat] %s channel %d: %s -> %s on %s", dir, ch, from, to, dev.Name())
	ic.metrics.ObserveForward(string(dir), ch)
	if ic.trace != nil {
		ic.trace.RecordForward(trace.ForwardRecord{
			Clock:     ic.clock(),
			Direction: dir,
			Channel:   ch,
			Device:    dev.Name(),
			Original:  from,
			Rewritten: to,
		})
	}
}

func (ic *Interceptor) drop(dev sim.Device, dir trace.Direction, ch int, cause error) {
	reason := "send"
	if errors.Is(cause, sim.ErrFrameDecode) {
		reason = "decode"
	} else if errors.Is(cause, sim.ErrInvalidCandidateSet) {
		reason = "select"
	}
	logrus.Warnf("[nat] dropping %s frame from %s: %v", dir, dev.Name(), cause)
	ic.metrics.ObserveDrop(reason)
	if ic.trace != nil {
		ic.trace.RecordForward(trace.ForwardRecord{
			Clock:     ic.clock(),
			Direction: dir,
			Channel:   ch,
			Device:    dev.Name(),
			Dropped:   true,
			Reason:    cause.Error(),
		})
	}
}
