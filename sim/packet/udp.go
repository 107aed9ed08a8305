package packet

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Datagram is a decoded IPv4/UDP packet.
type Datagram struct {
	Header          Header
	SourcePort      uint16
	DestinationPort uint16
	Payload         []byte
}

// UDPSpec describes a datagram to build.
type UDPSpec struct {
	Source          netip.Addr
	Destination     netip.Addr
	SourcePort      uint16
	DestinationPort uint16
	TTL             uint8
	ID              uint16
	Payload         []byte
}

// BuildUDP serializes an IPv4/UDP packet with valid lengths and checksums.
// A zero TTL defaults to 64.
func BuildUDP(spec UDPSpec) ([]byte, error) {
	src, err := ipv4Bytes(spec.Source)
	if err != nil {
		return nil, err
	}
	dst, err := ipv4Bytes(spec.Destination)
	if err != nil {
		return nil, err
	}
	ttl := spec.TTL
	if ttl == 0 {
		ttl = 64
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		Id:       spec.ID,
		Flags:    layers.IPv4DontFragment,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src,
		DstIP:    dst,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(spec.SourcePort),
		DstPort: layers.UDPPort(spec.DestinationPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, rewriteOptions, ip, udp, gopacket.Payload(spec.Payload)); err != nil {
		return nil, fmt.Errorf("packet: serialize udp: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseUDP decodes an IPv4/UDP packet.
func ParseUDP(b []byte) (Datagram, error) {
	ip, err := decodeIPv4(b)
	if err != nil {
		return Datagram{}, err
	}
	if ip.Protocol != layers.IPProtocolUDP {
		return Datagram{}, fmt.Errorf("%w: protocol %s is not udp", ErrMalformed, ip.Protocol)
	}
	udp := &layers.UDP{}
	if err := udp.DecodeFromBytes(ip.Payload, gopacket.NilDecodeFeedback); err != nil {
		return Datagram{}, fmt.Errorf("%w: udp: %v", ErrMalformed, err)
	}
	return Datagram{
		Header:          headerOf(ip),
		SourcePort:      uint16(udp.SrcPort),
		DestinationPort: uint16(udp.DstPort),
		Payload:         udp.Payload,
	}, nil
}
