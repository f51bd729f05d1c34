package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"opsched/internal/eventbus"
	rtsup "opsched/internal/runtime/supervisor"
	"opsched/internal/task"
	"opsched/pkg/logx"

	"opsched/internal/persistence"
)

// Service is the single long-running coordinator (C6) plus the Global
// Execution Lock (C5) it serializes task runs through. Exactly one
// "dispatch.loop" goroutine runs at a time, started and stopped the same
// way internal/notifier.Service runs its workers: idempotent Start,
// async-drained Stop bounded by a grace window.
type Service struct {
	mu sync.Mutex

	cfg Config
	log logx.Logger
	bus eventbus.Bus

	reg  *task.Registry
	snap *persistence.SnapshotStore
	lock *GlobalLock

	wake     chan struct{}
	sup      *rtsup.Supervisor
	stopDone chan struct{}
}

// New returns a Service wired to reg for task state and snap for
// whole-registry persistence after every dispatch-driven mutation.
func New(cfg Config, reg *task.Registry, snap *persistence.SnapshotStore, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg.withDefaults(),
		log:  log,
		bus:  bus,
		reg:  reg,
		snap: snap,
		lock: NewGlobalLock(),
		wake: make(chan struct{}, 1),
	}
}

// Apply updates the running config. Timing fields take effect on the
// next sleep; Enabled is read by Start/Stop callers (the control API
// owns the Enabled toggle via StartDispatcher/StopDispatcher).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.withDefaults()
}

// Wake interrupts the dispatcher's idle sleep so it re-evaluates the due
// set immediately. Non-blocking; safe to call from any goroutine,
// including from inside a Control API mutation.
func (s *Service) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Enabled reports whether the loop goroutine is currently running.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup != nil
}

// Start launches the dispatch loop. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.sup != nil {
		s.mu.Unlock()
		return
	}

	// Startup recovery: any task left "running" from a prior process
	// death was already reset to pending by LoadSnapshot before Start is
	// called; nothing further to do here.

	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "dispatch"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("dispatch.loop", func(c context.Context) error {
		s.loop(c)
		s.mu.Lock()
		stopping := s.stopDone != nil
		s.mu.Unlock()
		if stopping {
			return context.Canceled
		}
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("dispatch loop exited unexpectedly")
	}, rtsup.WithPublishFirstError(true))
}

// Stop stops the loop from pulling new work. If a RunOnce is currently
// in flight, Stop waits up to cfg.ShutdownGrace for it to finish before
// returning; the process is expected to exit shortly after regardless.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	sup := s.sup
	if sup == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	grace := s.cfg.ShutdownGrace
	s.mu.Unlock()

	go func() {
		defer close(done)
		sup.Cancel()
		gctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		_ = sup.Wait(gctx)

		s.mu.Lock()
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		now := time.Now()
		taskID, ok := s.reg.PickDue(now)
		if !ok {
			wake := s.reg.NextWake()
			s.sleepUntil(ctx, wake)
			continue
		}

		s.runTask(ctx, taskID)
	}
}

func (s *Service) sleepUntil(ctx context.Context, wake time.Time) {
	s.mu.Lock()
	maxPoll := s.cfg.MaxPoll
	s.mu.Unlock()

	d := maxPoll
	if !wake.IsZero() {
		if until := time.Until(wake); until < d {
			d = until
		}
	}
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-timer.C:
	}
}

// Status returns the current dispatch diagnostic snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	running := s.sup != nil
	s.mu.Unlock()

	counts := map[string]int{}
	for _, snap := range s.reg.List(task.Filter{}) {
		counts[string(snap.Status)]++
	}
	return Status{
		Running:       running,
		RunningTaskID: s.reg.RunningTaskID(),
		Counts:        counts,
	}
}
