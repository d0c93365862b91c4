package nfwgobfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum16EvenBytes(t *testing.T) {
	// 0x0102 + 0x0304 = 0x0406, one's complement 0xfbf9
	assert.Equal(t, uint16(0xfbf9), checksum16([]byte{0x01, 0x02, 0x03, 0x04}))
}

func TestChecksum16OddBytes(t *testing.T) {
	// 0x0102 + 0x0300 = 0x0402, one's complement 0xfbfd
	assert.Equal(t, uint16(0xfbfd), checksum16([]byte{0x01, 0x02, 0x03}))
}

func TestChecksum16Empty(t *testing.T) {
	assert.Equal(t, uint16(0xffff), checksum16(nil))
}

func TestChecksum16AllZeros(t *testing.T) {
	assert.Equal(t, uint16(0xffff), checksum16(make([]byte, 8)))
}

func TestFixUDPHeaders4MatchesReference(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7}
	want := buildIPv4UDP(t, "192.168.1.1", "192.168.1.2", 0x1234, 0x5678, payload)

	// wreck every derived field, then let the fixer restore them
	got := append([]byte(nil), want...)
	got[2], got[3] = 0, 0
	got[10], got[11] = 0xde, 0xad
	got[24], got[25] = 0, 0
	got[26], got[27] = 0xbe, 0xef
	fixUDPHeaders4(got)

	require.Equal(t, want, got)
}

func TestFixUDPHeaders6MatchesReference(t *testing.T) {
	payload := []byte{9, 8, 7, 6, 5}
	want := buildIPv6UDP(t, "2001:db8::1", "2001:db8::2", 0x1234, 0x5678, payload)

	got := append([]byte(nil), want...)
	got[4], got[5] = 0, 0
	got[44], got[45] = 0, 0
	got[46], got[47] = 0xde, 0xad
	fixUDPHeaders6(got)

	require.Equal(t, want, got)
}

func TestFixUDPHeadersAfterGrowth(t *testing.T) {
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	raw := buildIPv4UDP(t, "10.1.1.1", "10.1.1.2", 7, 7, payload[:32])

	// grow the payload in place by 32 bytes and refit the headers; the
	// result must match a from-scratch build of the larger datagram
	grown := make([]byte, len(raw)+32)
	copy(grown, raw)
	copy(grown[28:], payload)
	fixUDPHeaders4(grown)

	want := buildIPv4UDP(t, "10.1.1.1", "10.1.1.2", 7, 7, payload)
	require.Equal(t, want, grown)
}

func TestFixUDPHeadersTooShort(t *testing.T) {
	short := make([]byte, 20)
	fixUDPHeaders6(short)
	assert.Equal(t, make([]byte, 20), short)

	var tiny [8]byte
	fixUDPHeaders4(tiny[:])
	assert.Equal(t, [8]byte{}, tiny)
}
