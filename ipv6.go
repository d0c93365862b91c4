package nfwgobfs

import "encoding/binary"

// fixUDPHeaders6 rewrites the IPv6 payload length, UDP length and UDP
// checksum of packet so they are consistent with len(packet). The packet
// must start with a plain IPv6 header (next header = UDP, no extension
// chain); malformed input is left untouched.
func fixUDPHeaders6(packet []byte) {
	if len(packet) < kIPv6HeaderLen+kUDPHeaderLen {
		return
	}

	payloadLen := uint16(len(packet) - kIPv6HeaderLen)
	binary.BigEndian.PutUint16(packet[4:], payloadLen)

	// UDP length equals the IPv6 payload length when no extension
	// headers are present.
	binary.BigEndian.PutUint16(packet[kIPv6HeaderLen+4:], payloadLen)

	packet[kIPv6HeaderLen+6] = 0
	packet[kIPv6HeaderLen+7] = 0
	binary.BigEndian.PutUint16(packet[kIPv6HeaderLen+6:], udpChecksum6(packet))
}
