package packet

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var verifyOptions = gopacket.SerializeOptions{ComputeChecksums: true}

// VerifyChecksums checks the IPv4 header checksum of b and, for unfragmented
// TCP and UDP packets, the transport checksum. Each value is recomputed by
// re-serializing the decoded layer and compared with the value carried in b.
// A zero UDP checksum means "not computed" and is accepted.
func VerifyChecksums(b []byte) error {
	ip, err := decodeIPv4(b)
	if err != nil {
		return err
	}
	carried := ip.Checksum
	if err := ip.SerializeTo(gopacket.NewSerializeBuffer(), verifyOptions); err != nil {
		return fmt.Errorf("packet: serialize ipv4 header: %w", err)
	}
	if ip.Checksum != carried {
		return fmt.Errorf("%w: ipv4 header carries %#04x, want %#04x", ErrChecksum, carried, ip.Checksum)
	}
	if fragmented(ip) {
		return nil
	}

	switch ip.Protocol {
	case layers.IPProtocolUDP:
		udp := &layers.UDP{}
		if err := udp.DecodeFromBytes(ip.Payload, gopacket.NilDecodeFeedback); err != nil {
			return fmt.Errorf("%w: udp: %v", ErrMalformed, err)
		}
		if udp.Checksum == 0 {
			return nil
		}
		carried := udp.Checksum
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		if err := gopacket.SerializeLayers(gopacket.NewSerializeBuffer(), verifyOptions, udp, gopacket.Payload(udp.Payload)); err != nil {
			return fmt.Errorf("packet: serialize udp: %w", err)
		}
		if udp.Checksum != carried {
			return fmt.Errorf("%w: udp carries %#04x, want %#04x", ErrChecksum, carried, udp.Checksum)
		}
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{}
		if err := tcp.DecodeFromBytes(ip.Payload, gopacket.NilDecodeFeedback); err != nil {
			return fmt.Errorf("%w: tcp: %v", ErrMalformed, err)
		}
		carried := tcp.Checksum
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		if err := gopacket.SerializeLayers(gopacket.NewSerializeBuffer(), verifyOptions, tcp, gopacket.Payload(tcp.Payload)); err != nil {
			return fmt.Errorf("packet: serialize tcp: %w", err)
		}
		if tcp.Checksum != carried {
			return fmt.Errorf("%w: tcp carries %#04x, want %#04x", ErrChecksum, carried, tcp.Checksum)
		}
	}
	return nil
}
