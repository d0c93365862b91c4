package nfwgobfs

import (
	"encoding/binary"
	"math/rand"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	kMinBallast = 8
	kMaxBallast = 64
)

// randomiser produces the per-packet nonce, the ballast bytes and the
// ballast length. It is deliberately non-cryptographic: the goal is
// length and byte diversity on the wire, not unpredictability against an
// active adversary. Keys never come from here.
type randomiser struct {
	rng *rand.Rand
}

// newRandomiser seeds a private PRNG per worker so the hot path never
// touches the locked global source. Wall clock, monotonic clock and pid
// are mixed through xxhash so two workers started in the same tick do
// not share a ballast sequence.
func newRandomiser() *randomiser {
	var seedMat [24]byte
	binary.LittleEndian.PutUint64(seedMat[0:], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint64(seedMat[8:], uint64(os.Getpid()))
	binary.LittleEndian.PutUint64(seedMat[16:], uint64(time.Since(processStart)))
	seed := xxhash.Sum64(seedMat[:])
	return &randomiser{rng: rand.New(rand.NewSource(int64(seed)))}
}

var processStart = time.Now()

func (r *randomiser) fillNonce(out *[kNonceLen]byte) {
	_, _ = r.rng.Read(out[:])
}

func (r *randomiser) fill(buf []byte) {
	_, _ = r.rng.Read(buf)
}

// ballastLen returns a length in [kMinBallast, min(kMaxBallast, budget)].
// The caller must have checked budget >= kMinBallast.
func (r *randomiser) ballastLen(budget int) int {
	max := kMaxBallast
	if budget < max {
		max = budget
	}
	return kMinBallast + r.rng.Intn(max-kMinBallast+1)
}
