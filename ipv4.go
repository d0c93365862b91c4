package nfwgobfs

import "encoding/binary"

// clearDiffserv zeroes the DSCP bits of an IPv4 header, keeping ECN.
// A non-default DSCP on an otherwise anonymous UDP flow is itself a
// fingerprint.
func clearDiffserv(packet []byte) {
	if len(packet) >= kIPv4MinHeaderLen {
		packet[1] &= 0x03
	}
}

// fixUDPHeaders4 rewrites the IPv4 total length, IPv4 header checksum,
// UDP length and UDP checksum of packet so they are consistent with
// len(packet). The packet must start with an IPv4 header followed by
// UDP; malformed input is left untouched.
func fixUDPHeaders4(packet []byte) {
	if len(packet) < kIPv4MinHeaderLen {
		return
	}
	ihl := int(packet[0]&0x0f) * 4
	if ihl < kIPv4MinHeaderLen || ihl+kUDPHeaderLen > len(packet) {
		return
	}

	binary.BigEndian.PutUint16(packet[2:], uint16(len(packet)))

	packet[10] = 0
	packet[11] = 0
	binary.BigEndian.PutUint16(packet[10:], checksum16(packet[:ihl]))

	udpLen := uint16(len(packet) - ihl)
	binary.BigEndian.PutUint16(packet[ihl+4:], udpLen)

	packet[ihl+6] = 0
	packet[ihl+7] = 0
	binary.BigEndian.PutUint16(packet[ihl+6:], udpChecksum4(packet, ihl))
}
