package nfwgobfs

// One's-complement checksum arithmetic shared by the IPv4 and IPv6
// header fixers. The accumulator form avoids assembling a pseudo-header
// copy; the pseudo-header fields are folded into the running sum
// directly so no per-packet scratch is needed.

func onesSum(b []byte, sum uint32) uint32 {
	for ; len(b) >= 2; b = b[2:] {
		sum += uint32(b[0])<<8 | uint32(b[1])
	}
	if len(b) > 0 {
		sum += uint32(b[0]) << 8
	}
	return sum
}

func foldOnes(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}

// checksum16 computes the RFC 1071 checksum of b, complemented and ready
// to be stored. An empty input yields 0xffff.
func checksum16(b []byte) uint16 {
	return foldOnes(onesSum(b, 0))
}

// udpChecksum4 computes the UDP checksum of packet[ihl:] with the IPv4
// pseudo-header. The checksum field inside the UDP header must already
// be zero. A computed zero is substituted with 0xffff per RFC 768.
func udpChecksum4(packet []byte, ihl int) uint16 {
	udp := packet[ihl:]
	sum := onesSum(packet[12:20], 0)
	sum += kProtocolUDP + uint32(len(udp))
	cs := foldOnes(onesSum(udp, sum))
	if cs == 0 {
		cs = 0xffff
	}
	return cs
}

// udpChecksum6 computes the mandatory UDP checksum of packet[40:] with
// the IPv6 pseudo-header (RFC 8200 §8.1).
func udpChecksum6(packet []byte) uint16 {
	udp := packet[kIPv6HeaderLen:]
	sum := onesSum(packet[8:40], 0)
	sum += kProtocolUDP + uint32(len(udp))
	cs := foldOnes(onesSum(udp, sum))
	if cs == 0 {
		cs = 0xffff
	}
	return cs
}
