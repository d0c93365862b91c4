package nfwgobfs

import (
	"encoding/binary"
	"math/bits"

	"github.com/klauspost/cpuid/v2"
)

// CipherMode selects the keystream backend for a session.
type CipherMode int

const (
	// ModeAuto picks ModeFast when the CPU advertises vector
	// extensions that make the extra rounds cheap, ModeStandard
	// otherwise.
	ModeAuto CipherMode = iota
	// ModeFast is full-strength 20-round ChaCha20.
	ModeFast
	// ModeStandard is reduced-round (6-round) ChaCha. It is not a
	// strong cipher and is not meant to be one; it only has to defeat
	// passive fingerprinting.
	ModeStandard
)

func (m CipherMode) String() string {
	switch m {
	case ModeFast:
		return "fast"
	case ModeStandard:
		return "standard"
	default:
		return "auto"
	}
}

const (
	kKeyLen          = 32
	kNonceLen        = 12
	kKeystreamBlock  = 64
	kChaChaBlockLen  = 16 // 32-bit words
	kStandardDoubles = 3  // 6 rounds
	kFastDoubles     = 10 // 20 rounds, the RFC 8439 count
)

// keystream is the dynamic handle to the selected cipher backend.
// keystreamBlock writes the 64-byte block for (key, nonce, counter 0)
// into out; both backends agree on the IETF block layout (4 constants,
// 8 key words, counter word, 3 nonce words) and differ only in round
// count, so the two sides of a tunnel must run the same mode.
type keystream interface {
	keystreamBlock(nonce *[kNonceLen]byte, out *[kKeystreamBlock]byte)
}

// selectKeystream resolves mode once per session. The branch between
// backends happens here, never per packet.
func selectKeystream(mode CipherMode, key [kKeyLen]byte) keystream {
	if mode == ModeFast || (mode == ModeAuto && fastAvailable()) {
		return &chacha20Keystream{key: key}
	}
	return &chacha6Keystream{key: key}
}

// fastAvailable reports whether the CPU is strong enough for the
// full-round keystream by default: AVX2 on x86-64, NEON (ASIMD) on
// ARM64.
func fastAvailable() bool {
	return cpuid.CPU.Supports(cpuid.AVX2) || cpuid.CPU.Supports(cpuid.ASIMD)
}

// chacha20Keystream produces the RFC 8439 ChaCha20 keystream block with
// the in-place core: the nonce changes every packet and the x/crypto
// cipher bakes its nonce in at construction time, so going through it
// would cost a heap allocation per packet. The core is verified against
// x/crypto in the tests.
type chacha20Keystream struct {
	key [kKeyLen]byte
}

func (c *chacha20Keystream) keystreamBlock(nonce *[kNonceLen]byte, out *[kKeystreamBlock]byte) {
	chachaBlock(&c.key, nonce, 0, kFastDoubles, out)
}

type chacha6Keystream struct {
	key [kKeyLen]byte
}

func (c *chacha6Keystream) keystreamBlock(nonce *[kNonceLen]byte, out *[kKeystreamBlock]byte) {
	chachaBlock(&c.key, nonce, 0, kStandardDoubles, out)
}

// chachaBlock runs the ChaCha block function: constants, key and
// counter/nonce words in, doubleRounds double-rounds, add-back, then
// little-endian serialisation.
func chachaBlock(key *[kKeyLen]byte, nonce *[kNonceLen]byte, counter uint32, doubleRounds int, out *[kKeystreamBlock]byte) {
	var state [kChaChaBlockLen]uint32
	state[0] = 0x61707865
	state[1] = 0x3320646e
	state[2] = 0x79622d32
	state[3] = 0x6b206574
	for i := 0; i < 8; i++ {
		state[4+i] = binary.LittleEndian.Uint32(key[i*4:])
	}
	state[12] = counter
	state[13] = binary.LittleEndian.Uint32(nonce[0:])
	state[14] = binary.LittleEndian.Uint32(nonce[4:])
	state[15] = binary.LittleEndian.Uint32(nonce[8:])

	working := state
	for i := 0; i < doubleRounds; i++ {
		quarterRound(&working, 0, 4, 8, 12)
		quarterRound(&working, 1, 5, 9, 13)
		quarterRound(&working, 2, 6, 10, 14)
		quarterRound(&working, 3, 7, 11, 15)
		quarterRound(&working, 0, 5, 10, 15)
		quarterRound(&working, 1, 6, 11, 12)
		quarterRound(&working, 2, 7, 8, 13)
		quarterRound(&working, 3, 4, 9, 14)
	}
	for i := range working {
		working[i] += state[i]
	}
	for i, w := range working {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
}

func quarterRound(s *[kChaChaBlockLen]uint32, a, b, c, d int) {
	s[a] += s[b]
	s[d] ^= s[a]
	s[d] = bits.RotateLeft32(s[d], 16)
	s[c] += s[d]
	s[b] ^= s[c]
	s[b] = bits.RotateLeft32(s[b], 12)
	s[a] += s[b]
	s[d] ^= s[a]
	s[d] = bits.RotateLeft32(s[d], 8)
	s[c] += s[d]
	s[b] ^= s[c]
	s[b] = bits.RotateLeft32(s[b], 7)
}
