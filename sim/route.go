package sim

import (
	"fmt"
	"net/netip"
)

// InterfaceAddress is one address configured on a node interface.
type InterfaceAddress struct {
	Local  netip.Addr
	Prefix netip.Prefix
}

// NetworkLayer is the read-only view of a node's IP configuration that route
// synthesis needs. Interface indices are dense, starting at 0 (loopback or
// first device, depending on the implementation).
type NetworkLayer interface {
	NumInterfaces() int
	// Addresses returns the addresses of iface in configuration order.
	Addresses(iface int) []InterfaceAddress
	// Device returns the device bound to iface, or nil.
	Device(iface int) Device
	IsUp(iface int) bool
	Metric(iface int) uint16
}

// Route is a fully resolved forwarding decision for one packet.
type Route struct {
	Destination netip.Addr
	Source      netip.Addr // invalid when the egress interface had no address
	Gateway     netip.Addr // unspecified means deliver directly
	Interface   int
	Device      Device
}

// NextHop returns the address the frame is delivered to on the egress link.
func (r *Route) NextHop() netip.Addr {
	if r.Gateway.IsValid() && !r.Gateway.IsUnspecified() {
		return r.Gateway
	}
	return r.Destination
}

func (r *Route) String() string {
	dev := "<nil>"
	if r.Device != nil {
		dev = r.Device.Name()
	}
	return fmt.Sprintf("dst=%s src=%s gw=%s if=%d dev=%s", r.Destination, r.Source, r.Gateway, r.Interface, dev)
}
