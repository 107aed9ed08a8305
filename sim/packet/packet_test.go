package packet

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	client  = netip.MustParseAddr("10.1.1.1")
	virtual = netip.MustParseAddr("10.1.4.1")
	server  = netip.MustParseAddr("10.1.3.2")
)

func buildUDP(t *testing.T, payload string) []byte {
	t.Helper()
	b, err := BuildUDP(UDPSpec{
		Source:          client,
		Destination:     virtual,
		SourcePort:      49153,
		DestinationPort: 5000,
		ID:              7,
		Payload:         []byte(payload),
	})
	require.NoError(t, err)
	return b
}

func buildTCP(t *testing.T, payload string, flags layers.IPv4Flag, fragOffset uint16) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:    4,
		IHL:        5,
		TTL:        64,
		Flags:      flags,
		FragOffset: fragOffset,
		Protocol:   layers.IPProtocolTCP,
		SrcIP:      client.AsSlice(),
		DstIP:      virtual.AsSlice(),
	}
	tcp := &layers.TCP{SrcPort: 49153, DstPort: 5000, Seq: 1000, ACK: true, Ack: 1, PSH: true, Window: 65535}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, rewriteOptions, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func TestParse_Header(t *testing.T) {
	hdr, err := Parse(buildUDP(t, "hello"))
	require.NoError(t, err)
	assert.Equal(t, client, hdr.Source)
	assert.Equal(t, virtual, hdr.Destination)
	assert.Equal(t, layers.IPProtocolUDP, hdr.Protocol)
	assert.Equal(t, uint8(64), hdr.TTL)
	assert.Equal(t, uint16(7), hdr.ID)
	assert.Equal(t, uint16(20+8+5), hdr.Length)
	assert.False(t, hdr.Fragmented)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrMalformed},
		{"ipv6 version nibble", []byte{0x60, 0, 0, 0}, ErrNotIPv4},
		{"truncated header", []byte{0x45, 0, 0, 40, 0}, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRewriteDestination_UDPChecksumsValid(t *testing.T) {
	// GIVEN a valid UDP packet to the virtual address
	in := buildUDP(t, "payload")
	require.NoError(t, VerifyChecksums(in))

	// WHEN the destination is rewritten
	out, err := RewriteDestination(in, server)

	// THEN the new header carries the server address and every checksum verifies
	require.NoError(t, err)
	hdr, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, server, hdr.Destination)
	assert.Equal(t, client, hdr.Source)
	assert.NoError(t, VerifyChecksums(out))

	d, err := ParseUDP(out)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(d.Payload))
	assert.Equal(t, uint16(49153), d.SourcePort)
	assert.Equal(t, uint16(5000), d.DestinationPort)
}

func TestRewrite_LeavesInputUntouched(t *testing.T) {
	in := buildUDP(t, "x")
	orig := append([]byte(nil), in...)
	_, err := RewriteSource(in, server)
	require.NoError(t, err)
	assert.Equal(t, orig, in)
}

func TestRewriteSource_TCPChecksumsValid(t *testing.T) {
	in := buildTCP(t, "segment", layers.IPv4DontFragment, 0)
	require.NoError(t, VerifyChecksums(in))

	out, err := RewriteSource(in, virtual)

	require.NoError(t, err)
	hdr, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, virtual, hdr.Source)
	assert.NoError(t, VerifyChecksums(out))
}

func TestRewrite_FragmentKeepsTransportBytes(t *testing.T) {
	// GIVEN a non-first fragment, whose payload is not a transport header
	in := buildTCP(t, "fragment-body", layers.IPv4MoreFragments, 0)
	in2 := buildTCP(t, "fragment-body", 0, 185)

	for _, pkt := range [][]byte{in, in2} {
		// WHEN rewritten
		out, err := RewriteDestination(pkt, server)

		// THEN the IPv4 header checksum is valid and the payload bytes are unchanged
		require.NoError(t, err)
		assert.NoError(t, VerifyChecksums(out))
		assert.Equal(t, pkt[20:], out[20:])
	}
}

func TestVerifyChecksums_DetectsCorruption(t *testing.T) {
	in := buildUDP(t, "payload")

	badIP := append([]byte(nil), in...)
	badIP[10] ^= 0xff
	assert.ErrorIs(t, VerifyChecksums(badIP), ErrChecksum)

	badUDP := append([]byte(nil), in...)
	badUDP[len(badUDP)-1] ^= 0xff
	assert.ErrorIs(t, VerifyChecksums(badUDP), ErrChecksum)

	// a plain address patch without recomputation is caught as well
	patched := append([]byte(nil), in...)
	copy(patched[16:20], server.AsSlice())
	assert.ErrorIs(t, VerifyChecksums(patched), ErrChecksum)
}

func TestVerifyChecksums_ZeroUDPChecksumAccepted(t *testing.T) {
	in := buildUDP(t, "payload")
	in[26], in[27] = 0, 0
	assert.NoError(t, VerifyChecksums(in))
}

func TestDecrementTTL(t *testing.T) {
	out, err := DecrementTTL(buildUDP(t, "ttl"))
	require.NoError(t, err)
	hdr, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, uint8(63), hdr.TTL)
	assert.NoError(t, VerifyChecksums(out))

	last, err := BuildUDP(UDPSpec{Source: client, Destination: server, TTL: 1})
	require.NoError(t, err)
	_, err = DecrementTTL(last)
	assert.ErrorIs(t, err, ErrTTLExpired)
}

func TestRewrite_RejectsNonIPv4Address(t *testing.T) {
	_, err := RewriteDestination(buildUDP(t, ""), netip.MustParseAddr("fd00::1"))
	assert.ErrorIs(t, err, ErrAddressType)
	_, err = RewriteSource(buildUDP(t, ""), netip.Addr{})
	assert.ErrorIs(t, err, ErrAddressType)
}

func TestParseUDP_RejectsTCP(t *testing.T) {
	_, err := ParseUDP(buildTCP(t, "", 0, 0))
	assert.ErrorIs(t, err, ErrMalformed)
}
