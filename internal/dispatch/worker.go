package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"opsched/internal/eventbus"
	"opsched/internal/persistence"

	"opsched/pkg/logx"
)

var errTaskNotFound = errors.New("dispatch: task not found")

func panicToError(p any) error {
	return fmt.Errorf("agent panic: %v", p)
}

// runTask implements pseudocode steps 4-13 for one dispatch cycle: it
// acquires the Global Lock, re-validates the task is still pending,
// runs it, and persists the result. Called only from the single loop
// goroutine, so no two calls ever overlap from the dispatcher's side —
// but ExecuteNow can race it for the lock, which is the point of having one.
func (s *Service) runTask(ctx context.Context, taskID string) {
	if err := s.lock.Acquire(ctx); err != nil {
		return
	}
	defer s.lock.Release()

	rec, ok := s.reg.BeginRun(taskID)
	if !ok {
		// Raced out of pending by a concurrent control-API mutation.
		return
	}

	// The run gets a context that Stop's cancellation does not reach, so
	// stopping the dispatcher lets an in-flight RunOnce finish; Stop bounds
	// its wait with ShutdownGrace.
	s.runLocked(context.WithoutCancel(ctx), rec.TaskID, rec.CredentialsDir)
}

// ExecuteNow runs one RunOnce synchronously, bypassing the due-set scan.
// It competes with the dispatch loop for the Global Lock and returns
// ErrBusy if it cannot acquire it within cfg.ExecuteNowWait.
func (s *Service) ExecuteNow(ctx context.Context, taskID string) (RunOutcome, error) {
	snap, ok := s.reg.Get(taskID)
	if !ok {
		return RunOutcome{}, errTaskNotFound
	}

	s.mu.Lock()
	wait := s.cfg.ExecuteNowWait
	s.mu.Unlock()

	if !s.lock.TryAcquire(ctx, wait) {
		return RunOutcome{}, ErrBusy
	}
	defer s.lock.Release()

	rec, ok := s.reg.BeginRun(taskID)
	if !ok {
		return RunOutcome{}, errTaskNotFound
	}

	started := time.Now()
	success, runErr := s.doRun(ctx, rec.TaskID, snap.AccountID, snap.RoundNum+1, rec.CredentialsDir)
	ended := time.Now()

	s.finishRun(ended, rec.TaskID, runErr)

	return RunOutcome{
		TaskID:   taskID,
		Started:  started,
		Ended:    ended,
		Duration: ended.Sub(started),
		Success:  success,
		Err:      runErr,
	}, nil
}

func (s *Service) runLocked(ctx context.Context, taskID, credentialsDir string) {
	snap, ok := s.reg.Get(taskID)
	if !ok {
		return
	}
	_, runErr := s.doRun(ctx, taskID, snap.AccountID, snap.RoundNum+1, credentialsDir)
	s.finishRun(time.Now(), taskID, runErr)
}

// doRun executes the credential hooks and RunOnce itself. It never
// mutates the registry; CompleteRun is the caller's job.
func (s *Service) doRun(ctx context.Context, taskID, accountID string, round int, credentialsDir string) (bool, error) {
	s.mu.Lock()
	cookiePath := s.cfg.SharedCookiePath
	s.mu.Unlock()

	if err := stageCredentials(credentialsDir, cookiePath); err != nil {
		s.log.Warn("stage credentials failed", logx.String("task_id", taskID), logx.Err(err))
	}
	defer func() {
		if err := unstageCredentials(cookiePath); err != nil {
			s.log.Warn("unstage credentials failed", logx.String("task_id", taskID), logx.Err(err))
		}
	}()

	ag, ok := s.reg.Agent(taskID)
	if !ok {
		return false, errTaskNotFound
	}

	start := time.Now()
	ok2, err := func() (ok bool, err error) {
		defer func() {
			if p := recover(); p != nil {
				ok, err = false, panicToError(p)
			}
		}()
		return ag.RunOnce(ctx)
	}()
	took := time.Since(start)

	entry := persistence.StepEntry{
		At:      time.Now(),
		Round:   round,
		Success: err == nil && ok2,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	payload, _ := json.Marshal(map[string]any{"account_id": accountID, "took_ms": took.Milliseconds()})
	entry.Payload = payload
	if aerr := s.reg.AppendStep(taskID, entry); aerr != nil {
		s.log.Warn("append step failed", logx.String("task_id", taskID), logx.Err(aerr))
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "dispatch.run", Time: time.Now(), Data: map[string]any{
			"task_id": taskID, "round": round, "ok": ok2, "error": errString(err), "took_ms": took.Milliseconds(),
		}})
	}

	return ok2, err
}

func (s *Service) finishRun(now time.Time, taskID string, runErr error) {
	_, _, err := s.reg.CompleteRun(now, taskID, runErr)
	if err != nil {
		s.log.Warn("complete run failed", logx.String("task_id", taskID), logx.Err(err))
	}
	if s.snap != nil {
		if err := s.snap.Save(s.reg.Snapshot()); err != nil {
			s.log.Warn("snapshot save failed after run", logx.String("task_id", taskID), logx.Err(err))
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
