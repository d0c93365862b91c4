package nfwgobfs

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/florianl/go-nfqueue"
	"github.com/sirupsen/logrus"
)

const (
	kMaxPacketLen = 0xffff
	kMaxQueueLen  = 4096

	// kBufferHeadroom keeps room past the MTU so a moderately oversized
	// ingress datagram can still be copied and validated.
	kBufferHeadroom = 80

	kRecvErrorBackoff  = 10 * time.Millisecond
	kMaxRecvErrorBurst = 64

	kRestartDelay = time.Second
	kMaxRestarts  = 3
)

// Worker owns exactly one NFQUEUE number and one direction. It pulls
// packets, runs them through its obfuscator and returns verdicts until
// the context is cancelled or the queue fails beyond recovery.
// Per-packet errors never escape: they become drop verdicts and a
// counter increment.
type Worker struct {
	entry    QueueEntry
	obfs     *Obfuscator
	counters *Counters
	log      *logrus.Entry
}

func NewWorker(entry QueueEntry) *Worker {
	counters := &Counters{}
	return &Worker{
		entry:    entry,
		obfs:     NewObfuscator(&entry, counters),
		counters: counters,
		log: logrus.WithFields(logrus.Fields{
			"queue":     entry.QueueNum,
			"direction": entry.Direction.String(),
			"name":      entry.Name,
		}),
	}
}

func (w *Worker) Counters() *Counters {
	return w.counters
}

// Run drives the queue until ctx is cancelled. Transient failures
// restart the binding with a delay; persistent ones surface as
// ErrQueueBind or ErrQueueRuntime.
func (w *Worker) Run(ctx context.Context) (err error) {
	// this goroutine holds one OS thread per queue; packet callbacks
	// run on the receive goroutine the nfqueue library starts in serve,
	// which is not locked to a thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for restarts := 0; ; restarts++ {
		err = w.serve(ctx)
		if err == nil || ctx.Err() != nil {
			err = nil
			w.log.Infof("worker stopped: %s", w.counters)
			return
		}
		var bindErr ErrQueueBind
		if errors.As(err, &bindErr) && restarts == 0 {
			// first bind failure is almost always privileges or a
			// queue number in use, not transient
			return
		}
		if restarts >= kMaxRestarts {
			return
		}
		w.log.WithError(err).Warn("queue failed, restarting")
		select {
		case <-ctx.Done():
			err = nil
			return
		case <-time.After(kRestartDelay):
		}
	}
}

func (w *Worker) serve(ctx context.Context) (err error) {
	q, err := nfqueue.Open(&nfqueue.Config{
		NfQueue:      w.entry.QueueNum,
		MaxPacketLen: kMaxPacketLen,
		MaxQueueLen:  kMaxQueueLen,
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 15 * time.Millisecond,
	})
	if err != nil {
		err = ErrQueueBind{QueueNum: w.entry.QueueNum, Cause: err}
		return
	}
	defer q.Close()

	// the packet buffer lives for the worker lifetime; the hot path
	// only ever copies into it
	buf := make([]byte, w.entry.MTU+kBufferHeadroom)

	fatal := make(chan error, 1)
	errBurst := 0

	handle := func(a nfqueue.Attribute) int {
		if a.PacketID == nil || a.Payload == nil {
			return 0
		}
		errBurst = 0
		id := *a.PacketID
		payload := *a.Payload
		if len(payload) == 0 {
			_ = q.SetVerdict(id, nfqueue.NfAccept)
			return 0
		}
		if len(payload) > len(buf) {
			// beyond even the headroom: an egress datagram this far
			// past the MTU must not leak out unobfuscated
			if w.entry.Direction == DirectionOut {
				w.counters.Dropped.Add(1)
				_ = q.SetVerdict(id, nfqueue.NfDrop)
			} else {
				_ = q.SetVerdict(id, nfqueue.NfAccept)
			}
			return 0
		}
		n := copy(buf, payload)
		pkt := Packet{Data: buf, Length: n}
		var v Verdict
		if w.entry.Direction == DirectionOut {
			v = w.obfs.Obfuscate(&pkt)
		} else {
			v = w.obfs.Deobfuscate(&pkt)
		}
		switch v {
		case VerdictRewrite:
			_ = q.SetVerdictModPacket(id, nfqueue.NfAccept, pkt.Slice())
		case VerdictDrop:
			_ = q.SetVerdict(id, nfqueue.NfDrop)
		default:
			_ = q.SetVerdict(id, nfqueue.NfAccept)
		}
		return 0
	}

	handleErr := func(e error) int {
		w.counters.RecvErrors.Add(1)
		errBurst++
		if errBurst >= kMaxRecvErrorBurst {
			select {
			case fatal <- ErrQueueRuntime{QueueNum: w.entry.QueueNum, Cause: e}:
			default:
			}
			return 1
		}
		time.Sleep(kRecvErrorBackoff)
		return 0
	}

	if err = q.RegisterWithErrorFunc(ctx, handle, handleErr); err != nil {
		err = ErrQueueBind{QueueNum: w.entry.QueueNum, Cause: err}
		return
	}
	w.log.WithField("mode", w.entry.Mode.String()).Info("worker started")

	select {
	case <-ctx.Done():
		err = nil
	case err = <-fatal:
	}
	return
}
