package nfwgobfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/device"
)

func TestIsKeepalive(t *testing.T) {
	beat := make([]byte, device.MessageKeepaliveSize)
	beat[0] = device.MessageTransportType
	assert.True(t, isKeepalive(beat))

	transport := make([]byte, device.MessageKeepaliveSize+16)
	transport[0] = device.MessageTransportType
	assert.False(t, isKeepalive(transport), "transport with payload is data")

	handshake := make([]byte, device.MessageKeepaliveSize)
	handshake[0] = device.MessageInitiationType
	assert.False(t, isKeepalive(handshake))

	dirty := make([]byte, device.MessageKeepaliveSize)
	dirty[0] = device.MessageTransportType
	dirty[2] = 1 // reserved bytes must be zero
	assert.False(t, isKeepalive(dirty))

	assert.False(t, isKeepalive(nil))
}

func TestGovernorFirstBeatPasses(t *testing.T) {
	g := newKeepaliveGovernor(kKeepaliveBeat)
	assert.False(t, g.suppressEgress(time.Now()))
}

func TestGovernorSuppressesAfterFreshTraffic(t *testing.T) {
	g := newKeepaliveGovernor(kKeepaliveBeat)
	base := time.Now()
	g.noteIngress(base)
	g.noteEgress(base)

	assert.True(t, g.suppressEgress(base.Add(5*time.Second)))
	assert.True(t, g.suppressEgress(base.Add(19*time.Second)))
	assert.False(t, g.suppressEgress(base.Add(20*time.Second)), "suppress window is 0.8*beat")
}

func TestGovernorIngressDroughtForcesBeat(t *testing.T) {
	g := newKeepaliveGovernor(kKeepaliveBeat)
	base := time.Now()
	g.noteIngress(base)

	// fresh egress would normally suppress, but the return path has
	// been silent for more than one beat
	g.noteEgress(base.Add(30 * time.Second))
	assert.False(t, g.suppressEgress(base.Add(35*time.Second)))
}

// Feed the governor a ten-minute trace of one keepalive every 15 s with
// no data traffic: emissions must thin out to roughly one per beat, and
// the wire must never go quiet long enough to lose NAT state.
func TestGovernorShapesKeepaliveCadence(t *testing.T) {
	g := newKeepaliveGovernor(kKeepaliveBeat)
	base := time.Now()

	emitted := 0
	lastEmit := base
	maxGap := time.Duration(0)
	for i := 0; i < 40; i++ {
		now := base.Add(time.Duration(i) * 15 * time.Second)
		if g.suppressEgress(now) {
			continue
		}
		g.noteEgress(now)
		if gap := now.Sub(lastEmit); gap > maxGap {
			maxGap = gap
		}
		lastEmit = now
		emitted++
	}

	require.Greater(t, emitted, 0)
	assert.Less(t, emitted, 40, "some beats must be suppressed")
	assert.GreaterOrEqual(t, emitted, 20)
	assert.LessOrEqual(t, emitted, 28)
	assert.LessOrEqual(t, maxGap, 30*time.Second, "wire went quiet for %s", maxGap)
}

func TestGovernorDataResetsWindow(t *testing.T) {
	g := newKeepaliveGovernor(kKeepaliveBeat)
	base := time.Now()
	g.noteIngress(base)
	g.noteEgress(base)

	// data at t+18s pushes the window forward
	g.noteIngress(base.Add(18 * time.Second))
	g.noteEgress(base.Add(18 * time.Second))
	assert.True(t, g.suppressEgress(base.Add(25*time.Second)))
	assert.False(t, g.suppressEgress(base.Add(38*time.Second)))
}
