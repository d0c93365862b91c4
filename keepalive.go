package nfwgobfs

import (
	"time"

	"golang.zx2c4.com/wireguard/device"
)

const (
	// kKeepaliveBeat is the synthetic-beat interval. A WireGuard
	// keepalive is allowed through once the last emission is 0.8 beat
	// (20 s) old, or earlier when ingress has been silent for more than
	// one beat. Below the common 30 s NAT UDP timeout.
	kKeepaliveBeat = 25 * time.Second
)

// isKeepalive reports whether a WireGuard payload is the bare keepalive
// beat: a transport message with no inner payload.
func isKeepalive(wgPayload []byte) bool {
	return len(wgPayload) == device.MessageKeepaliveSize &&
		wgPayload[0] == device.MessageTransportType &&
		wgPayload[1] == 0 && wgPayload[2] == 0 && wgPayload[3] == 0
}

// keepaliveGovernor shapes the WireGuard heartbeat. Forwarding every
// keepalive leaks a flat periodic 32-byte signal; suppressing every one
// risks NAT timeout. The governor drops a keepalive only while real
// egress traffic is fresh, collapsing the heartbeat cadence into the
// natural data cadence.
type keepaliveGovernor struct {
	beat        time.Duration
	suppressFor time.Duration
	lastEgress  time.Time // last emission on the wire, data or beat
	lastIngress time.Time // last ingress data seen
}

func newKeepaliveGovernor(beat time.Duration) *keepaliveGovernor {
	return &keepaliveGovernor{
		beat:        beat,
		suppressFor: beat * 4 / 5,
	}
}

// suppressEgress decides the fate of an outbound keepalive.
func (g *keepaliveGovernor) suppressEgress(now time.Time) bool {
	if g.lastEgress.IsZero() || now.Sub(g.lastEgress) >= g.suppressFor {
		return false
	}
	// An ingress drought longer than one beat means the return path's
	// NAT mapping may be about to expire; let the beat through early.
	if !g.lastIngress.IsZero() && now.Sub(g.lastIngress) > g.beat {
		return false
	}
	return true
}

// noteEgress records that a datagram (data or a passed-through beat)
// went out, resetting the synthetic-beat timer.
func (g *keepaliveGovernor) noteEgress(now time.Time) {
	g.lastEgress = now
}

// noteIngress records ingress traffic for drought accounting.
func (g *keepaliveGovernor) noteIngress(now time.Time) {
	g.lastIngress = now
}
