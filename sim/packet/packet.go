// Package packet decodes, rewrites and builds the IPv4 packets that travel
// inside simulated frames. Decoding and serialization go through gopacket so
// that every rewrite leaves the IPv4 header checksum (and, for unfragmented
// TCP and UDP, the transport checksum) consistent with the new addresses.
package packet

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	ErrMalformed   = errors.New("packet: malformed IPv4 packet")
	ErrNotIPv4     = errors.New("packet: not an IPv4 packet")
	ErrChecksum    = errors.New("packet: checksum mismatch")
	ErrTTLExpired  = errors.New("packet: ttl expired")
	ErrAddressType = errors.New("packet: address is not IPv4")
)

// Header is the subset of the IPv4 header read by the forwarding path.
type Header struct {
	Source      netip.Addr
	Destination netip.Addr
	Protocol    layers.IPProtocol
	TTL         uint8
	ID          uint16
	Length      uint16
	Checksum    uint16
	Fragmented  bool
}

// Parse decodes the IPv4 header at the start of b.
func Parse(b []byte) (Header, error) {
	ip, err := decodeIPv4(b)
	if err != nil {
		return Header{}, err
	}
	return headerOf(ip), nil
}

func decodeIPv4(b []byte) (*layers.IPv4, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformed)
	}
	if v := b[0] >> 4; v != 4 {
		return nil, fmt.Errorf("%w: version %d", ErrNotIPv4, v)
	}
	ip := &layers.IPv4{}
	if err := ip.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ip, nil
}

func headerOf(ip *layers.IPv4) Header {
	src, _ := netip.AddrFromSlice(ip.SrcIP)
	dst, _ := netip.AddrFromSlice(ip.DstIP)
	return Header{
		Source:      src.Unmap(),
		Destination: dst.Unmap(),
		Protocol:    ip.Protocol,
		TTL:         ip.TTL,
		ID:          ip.Id,
		Length:      ip.Length,
		Checksum:    ip.Checksum,
		Fragmented:  fragmented(ip),
	}
}

func fragmented(ip *layers.IPv4) bool {
	return ip.FragOffset != 0 || ip.Flags&layers.IPv4MoreFragments != 0
}

func ipv4Bytes(a netip.Addr) ([]byte, error) {
	a = a.Unmap()
	if !a.Is4() {
		return nil, fmt.Errorf("%w: %s", ErrAddressType, a)
	}
	return a.AsSlice(), nil
}
