package nfwgobfs

import (
	"fmt"
	"sync/atomic"
)

// Counters are the only state a worker shares with the outside world.
// They are written lock-free on the hot path and read at shutdown.
type Counters struct {
	Accepted             atomic.Uint64 // passed through unchanged
	Rewritten            atomic.Uint64 // transformed and accepted
	Dropped              atomic.Uint64 // validation or MTU drops
	KeepalivesSuppressed atomic.Uint64
	RecvErrors           atomic.Uint64
}

func (c *Counters) String() string {
	return fmt.Sprintf("accepted=%d rewritten=%d dropped=%d keepalives_suppressed=%d recv_errors=%d",
		c.Accepted.Load(), c.Rewritten.Load(), c.Dropped.Load(),
		c.KeepalivesSuppressed.Load(), c.RecvErrors.Load())
}
