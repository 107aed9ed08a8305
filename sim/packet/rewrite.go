package packet

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var rewriteOptions = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// RewriteDestination returns a copy of b whose destination address is dst.
// Checksums are recomputed before the copy is returned.
func RewriteDestination(b []byte, dst netip.Addr) ([]byte, error) {
	addr, err := ipv4Bytes(dst)
	if err != nil {
		return nil, err
	}
	return rewrite(b, func(ip *layers.IPv4) error {
		ip.DstIP = addr
		return nil
	})
}

// RewriteSource returns a copy of b whose source address is src.
// Checksums are recomputed before the copy is returned.
func RewriteSource(b []byte, src netip.Addr) ([]byte, error) {
	addr, err := ipv4Bytes(src)
	if err != nil {
		return nil, err
	}
	return rewrite(b, func(ip *layers.IPv4) error {
		ip.SrcIP = addr
		return nil
	})
}

// DecrementTTL returns a copy of b with the TTL lowered by one.
// Packets that would leave with a TTL of zero are rejected with ErrTTLExpired.
func DecrementTTL(b []byte) ([]byte, error) {
	return rewrite(b, func(ip *layers.IPv4) error {
		if ip.TTL <= 1 {
			return ErrTTLExpired
		}
		ip.TTL--
		return nil
	})
}

func rewrite(b []byte, mutate func(*layers.IPv4) error) ([]byte, error) {
	ip, err := decodeIPv4(b)
	if err != nil {
		return nil, err
	}
	if err := mutate(ip); err != nil {
		return nil, err
	}
	ls, err := serializableLayers(ip)
	if err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, rewriteOptions, ls...); err != nil {
		return nil, fmt.Errorf("packet: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// serializableLayers splits ip into the layers that must be re-serialized.
// TCP and UDP are decoded so their pseudo-header checksum follows the new
// addresses; anything else, including fragments, is carried as opaque payload.
func serializableLayers(ip *layers.IPv4) ([]gopacket.SerializableLayer, error) {
	if !fragmented(ip) {
		switch ip.Protocol {
		case layers.IPProtocolUDP:
			udp := &layers.UDP{}
			if err := udp.DecodeFromBytes(ip.Payload, gopacket.NilDecodeFeedback); err == nil {
				if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
					return nil, fmt.Errorf("packet: udp checksum layer: %w", err)
				}
				return []gopacket.SerializableLayer{ip, udp, gopacket.Payload(udp.Payload)}, nil
			}
		case layers.IPProtocolTCP:
			tcp := &layers.TCP{}
			if err := tcp.DecodeFromBytes(ip.Payload, gopacket.NilDecodeFeedback); err == nil {
				if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
					return nil, fmt.Errorf("packet: tcp checksum layer: %w", err)
				}
				return []gopacket.SerializableLayer{ip, tcp, gopacket.Payload(tcp.Payload)}, nil
			}
		}
	}
	return []gopacket.SerializableLayer{ip, gopacket.Payload(ip.Payload)}, nil
}
