package nfwgobfs

import (
	"encoding/binary"
	"time"

	"golang.zx2c4.com/wireguard/device"
)

// Goal:
// Make WireGuard-over-UDP datagrams unrecognisable to passive DPI while
// keeping the transform bidirectionally reversible and allocation-free.
//
// Design:
//
// A. Obfuscate (egress)
// A.1. Only well-formed IPv4/IPv6 UDP datagrams carrying at least a full
//      WireGuard message header are touched; everything else passes
//      unchanged.
// A.2. Outbound keepalive beats are shaped by the governor: dropped while
//      real traffic is fresh, passed through as data otherwise.
// A.3. A 2-byte length shim (CS) is inserted right after the UDP header,
//      then ballast, a 1-byte ballast length (L), a 16-byte random MAC2
//      decoy and a cleartext 12-byte nonce are appended:
//        [UDP hdr][CS][WG hdr 16][WG payload][ballast][L][MAC2][NONCE]
//      CS carries the original WG payload length (little-endian), which
//      is all the peer needs to find the seam again.
// A.4. One 64-byte keystream block is derived from (key, nonce, ctr 0)
//      and sliced at fixed offsets to XOR the WG header (block 0..16),
//      CS (16..18), L (18) and MAC2 (19..35). Payload and ballast are
//      not XORed; the VPN already encrypts them.
// A.5. IP and UDP lengths and checksums are rewritten in place. Growth
//      is B+31 bytes and is refused (drop) when it would exceed the MTU
//      or the buffer capacity. A datagram already past the MTU is
//      dropped too: passing it through would put the bare WireGuard
//      wire format on the wire.
//
// B. Deobfuscate (ingress)
// B.1. The trailing 12 bytes are the nonce; the same keystream block is
//      derived and the same four regions are XORed back.
// B.2. CS and L must account for the datagram exactly
//      (2+16+CS+B+1+16+12 == UDP payload length), otherwise the packet
//      cannot be the peer's output and is dropped.
// B.3. The shim and trailer are removed, the payload shifted down, and
//      the headers rewritten.

const (
	kWGHeaderLen = device.MessageTransportHeaderSize
	kCSLen       = 2
	kMAC2Len     = 16

	// kEgressOverhead is the fixed growth: CS + L + MAC2 + NONCE.
	kEgressOverhead = kCSLen + 1 + kMAC2Len + kNonceLen

	// keystream block offsets for the XORed regions
	kKSHeaderOff  = 0
	kKSCSOff      = kWGHeaderLen
	kKSBallastOff = kKSCSOff + kCSLen
	kKSMAC2Off    = kKSBallastOff + 1

	// kMinObfuscatedPayload is the smallest UDP payload a well-formed
	// obfuscated datagram can have.
	kMinObfuscatedPayload = kWGHeaderLen + kEgressOverhead + kMinBallast
)

// Verdict is the per-packet outcome handed back to the NFQUEUE worker.
type Verdict int

const (
	// VerdictAccept passes the packet through unchanged.
	VerdictAccept Verdict = iota
	// VerdictRewrite accepts the packet with the rewritten buffer.
	VerdictRewrite
	// VerdictDrop discards the packet.
	VerdictDrop
)

// Obfuscator owns the per-session transform state: derived key behind
// the selected cipher backend, the keepalive governor, the randomiser
// and the observability counters. One instance per queue worker; never
// shared.
type Obfuscator struct {
	mtu      int
	stream   keystream
	governor *keepaliveGovernor
	rnd      *randomiser
	counters *Counters
}

func NewObfuscator(entry *QueueEntry, counters *Counters) *Obfuscator {
	return &Obfuscator{
		mtu:      entry.MTU,
		stream:   selectKeystream(entry.Mode, entry.Key),
		governor: newKeepaliveGovernor(kKeepaliveBeat),
		rnd:      newRandomiser(),
		counters: counters,
	}
}

// Obfuscate transforms an egress packet in place. The only scratch is a
// keystream block and a nonce on the stack.
func (o *Obfuscator) Obfuscate(p *Packet) Verdict {
	buf := p.Data
	n := p.Length

	d, ok := parseUDPDatagram(buf[:n])
	if !ok {
		o.counters.Accepted.Add(1)
		return VerdictAccept
	}
	payOff := d.payloadOff()
	payLen := n - payOff
	if payLen < kWGHeaderLen {
		// too short to be a WireGuard message: not ours
		o.counters.Accepted.Add(1)
		return VerdictAccept
	}

	now := time.Now()
	if isKeepalive(buf[payOff:n]) && o.governor.suppressEgress(now) {
		o.counters.KeepalivesSuppressed.Add(1)
		return VerdictDrop
	}

	budget := o.mtu - n - kEgressOverhead
	if budget < kMinBallast {
		o.counters.Dropped.Add(1)
		return VerdictDrop
	}
	ballast := o.rnd.ballastLen(budget)
	newLen := n + ballast + kEgressOverhead
	if newLen > cap(buf) {
		o.counters.Dropped.Add(1)
		return VerdictDrop
	}
	buf = buf[:newLen]

	var nonce [kNonceLen]byte
	o.rnd.fillNonce(&nonce)

	// open the CS slot after the UDP header
	copy(buf[payOff+kCSLen:n+kCSLen], buf[payOff:n])
	binary.LittleEndian.PutUint16(buf[payOff:], uint16(payLen-kWGHeaderLen))

	// trailer: ballast, L, MAC2 decoy, cleartext nonce
	off := n + kCSLen
	o.rnd.fill(buf[off : off+ballast])
	off += ballast
	lOff := off
	buf[off] = byte(ballast)
	off++
	mac2Off := off
	o.rnd.fill(buf[off : off+kMAC2Len])
	off += kMAC2Len
	copy(buf[off:], nonce[:])

	var ks [kKeystreamBlock]byte
	o.stream.keystreamBlock(&nonce, &ks)
	xorBytes(buf[payOff:payOff+kCSLen], ks[kKSCSOff:])
	xorBytes(buf[payOff+kCSLen:payOff+kCSLen+kWGHeaderLen], ks[kKSHeaderOff:])
	buf[lOff] ^= ks[kKSBallastOff]
	xorBytes(buf[mac2Off:mac2Off+kMAC2Len], ks[kKSMAC2Off:])

	p.Length = newLen
	switch d.version {
	case 4:
		clearDiffserv(p.Slice())
		fixUDPHeaders4(p.Slice())
	case 6:
		fixUDPHeaders6(p.Slice())
	}

	o.governor.noteEgress(now)
	o.counters.Rewritten.Add(1)
	return VerdictRewrite
}

// Deobfuscate restores an ingress packet in place. Packets too short to
// be the peer's output tick the governor's ingress clock and pass
// unchanged; packets that fail the length cross-check are dropped.
func (o *Obfuscator) Deobfuscate(p *Packet) Verdict {
	buf := p.Data
	n := p.Length

	d, ok := parseUDPDatagram(buf[:n])
	if !ok {
		o.counters.Accepted.Add(1)
		return VerdictAccept
	}
	payOff := d.payloadOff()
	payLen := n - payOff

	now := time.Now()
	if payLen < kMinObfuscatedPayload {
		o.governor.noteIngress(now)
		o.counters.Accepted.Add(1)
		return VerdictAccept
	}

	var nonce [kNonceLen]byte
	copy(nonce[:], buf[n-kNonceLen:n])

	var ks [kKeystreamBlock]byte
	o.stream.keystreamBlock(&nonce, &ks)

	lOff := n - kNonceLen - kMAC2Len - 1
	xorBytes(buf[payOff:payOff+kCSLen], ks[kKSCSOff:])
	xorBytes(buf[payOff+kCSLen:payOff+kCSLen+kWGHeaderLen], ks[kKSHeaderOff:])
	buf[lOff] ^= ks[kKSBallastOff]
	xorBytes(buf[lOff+1:lOff+1+kMAC2Len], ks[kKSMAC2Off:])

	wgPayloadLen := int(binary.LittleEndian.Uint16(buf[payOff:]))
	ballast := int(buf[lOff])
	if kCSLen+kWGHeaderLen+wgPayloadLen+ballast+1+kMAC2Len+kNonceLen != payLen {
		o.counters.Dropped.Add(1)
		return VerdictDrop
	}

	// close the CS seam and cut the trailer
	restored := kWGHeaderLen + wgPayloadLen
	copy(buf[payOff:payOff+restored], buf[payOff+kCSLen:payOff+kCSLen+restored])
	p.Length = payOff + restored

	switch d.version {
	case 4:
		fixUDPHeaders4(p.Slice())
	case 6:
		fixUDPHeaders6(p.Slice())
	}

	o.governor.noteIngress(now)
	o.counters.Rewritten.Add(1)
	return VerdictRewrite
}

func xorBytes(dst, ks []byte) {
	for i := range dst {
		dst[i] ^= ks[i]
	}
}
