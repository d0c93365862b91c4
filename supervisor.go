package nfwgobfs

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Supervisor starts one worker per configuration entry and joins them
// on shutdown. Workers share nothing but the read-only entries and
// their own counters.
type Supervisor struct {
	workers []*Worker
}

func NewSupervisor(entries []QueueEntry) (s *Supervisor, err error) {
	seen := make(map[uint16]bool, len(entries))
	workers := make([]*Worker, 0, len(entries))
	for _, entry := range entries {
		if seen[entry.QueueNum] {
			err = ErrDuplicateQueue{QueueNum: entry.QueueNum}
			return
		}
		seen[entry.QueueNum] = true
		workers = append(workers, NewWorker(entry))
	}
	s = &Supervisor{workers: workers}
	return
}

// Run blocks until SIGINT/SIGTERM or a worker dies beyond recovery.
// Returns the first worker error, or nil on a clean signal shutdown.
func (s *Supervisor) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext is Run with caller-provided cancellation.
func (s *Supervisor) RunContext(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(s.workers))
	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if werr := w.Run(ctx); werr != nil {
				errs <- werr
				// one dead queue leaves the tunnel half-blind; take
				// the rest down with it
				cancel()
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	err = <-errs

	if err == nil {
		logrus.Info("shutdown complete")
	}
	return
}
