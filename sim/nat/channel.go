// Package nat implements the link-layer variant of the balancer: a
// promiscuous interceptor on the balancing node that rewrites IPv4
// addresses so that traffic spread over several server-side channels is
// seen by the client as coming from a single virtual address.
package nat

import (
	"fmt"
	"net/netip"

	"github.com/MikleMasterMind/ns3-bbr-packet-based-load-balancing/sim"
)

// ChannelBinding ties a server-side device to the peer address that client
// packets sent over it are rewritten to.
type ChannelBinding struct {
	Device      sim.Device
	PeerAddress netip.Addr
}

// ChannelTable is the ordered set of channels plus the virtual address the
// client talks to. The order is the order of path selection indices.
type ChannelTable struct {
	virtual  netip.Addr
	bindings []ChannelBinding
}

// NewChannelTable validates and stores the bindings. An empty table is
// allowed; the interceptor refuses to start on it.
func NewChannelTable(virtual netip.Addr, bindings ...ChannelBinding) (*ChannelTable, error) {
	virtual = virtual.Unmap()
	if !virtual.Is4() {
		return nil, fmt.Errorf("%w: virtual address %s is not IPv4", sim.ErrConfiguration, virtual)
	}
	t := &ChannelTable{virtual: virtual}
	for i, b := range bindings {
		if b.Device == nil {
			return nil, fmt.Errorf("%w: channel %d has no device", sim.ErrConfiguration, i)
		}
		peer := b.PeerAddress.Unmap()
		if !peer.Is4() {
			return nil, fmt.Errorf("%w: channel %d peer %s is not IPv4", sim.ErrConfiguration, i, b.PeerAddress)
		}
		if t.IndexOf(b.Device) >= 0 {
			return nil, fmt.Errorf("%w: device %s bound twice", sim.ErrConfiguration, b.Device.Name())
		}
		t.bindings = append(t.bindings, ChannelBinding{Device: b.Device, PeerAddress: peer})
	}
	return t, nil
}

// Len returns the number of channels.
func (t *ChannelTable) Len() int { return len(t.bindings) }

// Binding returns channel i.
func (t *ChannelTable) Binding(i int) ChannelBinding { return t.bindings[i] }

// Virtual returns the address the client sees.
func (t *ChannelTable) Virtual() netip.Addr { return t.virtual }

// IndexOf returns the channel bound to dev, or -1.
func (t *ChannelTable) IndexOf(dev sim.Device) int {
	for i, b := range t.bindings {
		if b.Device == dev {
			return i
		}
	}
	return -1
}
