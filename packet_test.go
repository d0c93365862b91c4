package nfwgobfs

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

// buildIPv4UDP assembles a checksummed IPv4+UDP datagram with gopacket,
// which acts as the independent referee for all header arithmetic in
// this package.
func buildIPv4UDP(t *testing.T, src, dst string, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func buildIPv6UDP(t *testing.T, src, dst string, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func buildIPv4TCP(t *testing.T, src, dst string, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), Window: 64240}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

// packetWithRoom copies raw into a fresh working buffer the way a
// worker does, leaving headroom for growth.
func packetWithRoom(raw []byte, room int) Packet {
	buf := make([]byte, len(raw)+room)
	copy(buf, raw)
	return Packet{Data: buf, Length: len(raw)}
}

func TestParseUDPDatagramIPv4(t *testing.T) {
	raw := buildIPv4UDP(t, "10.0.0.1", "10.0.0.2", 51820, 51820, make([]byte, 32))
	d, ok := parseUDPDatagram(raw)
	require.True(t, ok)
	require.Equal(t, byte(4), d.version)
	require.Equal(t, 20, d.udpOff)
	require.Equal(t, 28, d.payloadOff())
}

func TestParseUDPDatagramIPv6(t *testing.T) {
	raw := buildIPv6UDP(t, "2001:db8::1", "2001:db8::2", 51820, 51820, make([]byte, 32))
	d, ok := parseUDPDatagram(raw)
	require.True(t, ok)
	require.Equal(t, byte(6), d.version)
	require.Equal(t, 40, d.udpOff)
}

func TestParseUDPDatagramRejects(t *testing.T) {
	tcp := buildIPv4TCP(t, "10.0.0.1", "10.0.0.2", 443, 443, []byte("hello"))
	_, ok := parseUDPDatagram(tcp)
	require.False(t, ok, "TCP must not parse")

	udp := buildIPv4UDP(t, "10.0.0.1", "10.0.0.2", 1, 2, make([]byte, 32))

	frag := append([]byte(nil), udp...)
	frag[6] = 0x20 // more fragments
	_, ok = parseUDPDatagram(frag)
	require.False(t, ok, "fragment must not parse")

	badLen := append([]byte(nil), udp...)
	badLen[3]++ // total length disagrees with the buffer
	_, ok = parseUDPDatagram(badLen)
	require.False(t, ok)

	_, ok = parseUDPDatagram(udp[:19])
	require.False(t, ok)

	v6 := buildIPv6UDP(t, "2001:db8::1", "2001:db8::2", 1, 2, make([]byte, 32))
	ext := append([]byte(nil), v6...)
	ext[6] = 0 // hop-by-hop extension header: accepted unchanged, not parsed
	_, ok = parseUDPDatagram(ext)
	require.False(t, ok)
}
