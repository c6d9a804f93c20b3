// Package supervisor runs each of warrenflow's background tasks (the
// watcher, reconciler, workflow engine dispatcher, and log sink
// flusher) under a top-level panic handler that logs critical and
// restarts the task with exponential backoff, per spec §7's
// "Unhandled exceptions in any background task" policy. Panic
// isolation is grounded on pkg/nodehost.Host.invoke's
// defer/recover-into-error pattern; the restart loop and Start/Stop
// shape follow teacher's per-component background-task convention
// (pkg/events.Broker, pkg/reconciler.Reconciler: a stopCh plus a
// single run loop).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/log"
)

const (
	minBackoff = time.Second
	maxBackoff = 60 * time.Second
)

// Task is a named background job. Run blocks until ctx is cancelled or
// the task's own work is done; a non-nil error or a panic both trigger
// a restart.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor owns a set of Tasks, each running in its own goroutine
// under independent panic recovery and restart backoff.
type Supervisor struct {
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	tasks  []Task
}

// New builds a Supervisor over tasks. Call Start to launch them.
func New(tasks ...Task) *Supervisor {
	return &Supervisor{
		logger: log.WithComponent("supervisor"),
		tasks:  tasks,
	}
}

// Start launches every task's restart loop in its own goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{}, len(s.tasks))
	s.mu.Unlock()

	for _, t := range s.tasks {
		go s.supervise(ctx, t)
	}
}

// Stop signals every task's context and waits for each to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	n := len(s.tasks)
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	for i := 0; i < n; i++ {
		<-done
	}
}

// supervise runs t.Run in a loop: a clean ctx-cancellation return exits
// for good; any other return (error or panic) restarts after a backoff
// that doubles from minBackoff up to maxBackoff, resetting to
// minBackoff once the task has run long enough to be considered
// healthy again.
func (s *Supervisor) supervise(ctx context.Context, t Task) {
	defer func() { s.done <- struct{}{} }()

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		err := s.runOnce(ctx, t)
		ran := time.Since(start)

		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// A task normally only returns nil on ctx cancellation;
			// a clean nil return outside that case still means its
			// work is done and it should not be restarted.
			return
		}

		s.logger.Error().
			Str("task", t.Name).
			Err(err).
			Dur("ran_for", ran).
			Dur("backoff", backoff).
			Msg("background task failed, restarting")

		if ran > maxBackoff {
			backoff = minBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce invokes t.Run with panic isolation, converting a panic into
// an error exactly like pkg/nodehost.Host.invoke does for processors.
func (s *Supervisor) runOnce(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("task", t.Name).Interface("panic", r).Msg("background task panicked")
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()
	return t.Run(ctx)
}
