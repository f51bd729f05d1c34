package task

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"opsched/internal/agent"
	"opsched/internal/clock"
	"opsched/internal/persistence"
)

// CreateParams is the input to Add.
type CreateParams struct {
	AccountID       string
	AccountName     string
	TaskType        string
	SysType         string
	IntervalSeconds int
	ValidHourRange  *clock.Window
	EndDate         time.Time
	Mode            Mode
	CredentialsDir  string
	Kwargs          json.RawMessage
}

// UpdateParams is the input to Update. Nil fields are left unchanged.
// Identity fields (task_id, account_id, account_name, task_type,
// sys_type) are never part of this struct: they are immutable.
type UpdateParams struct {
	IntervalSeconds *int
	ValidHourRange  **clock.Window
	EndDate         *time.Time
	Mode            *Mode
	Kwargs          json.RawMessage
}

// Filter narrows List results.
type Filter struct {
	AccountID *string
	Status    *Status
}

// Registry owns all Task Records and enforces the account-uniqueness
// and single-running invariants. All operations are synchronous under
// a single mutex.
type Registry struct {
	mu sync.Mutex

	tasks map[string]*Record
	// index[task_type][account_id] = task_id
	index map[string]map[string]string

	runningTaskID string
	pendingDelete map[string]bool

	meta    *persistence.TaskMetaStore
	factory agent.Factory
}

// NewRegistry returns an empty registry. factory is used to reconstruct
// Agent handles on Add and on LoadSnapshot.
func NewRegistry(meta *persistence.TaskMetaStore, factory agent.Factory) *Registry {
	return &Registry{
		tasks:         make(map[string]*Record),
		index:         make(map[string]map[string]string),
		pendingDelete: make(map[string]bool),
		meta:          meta,
		factory:       factory,
	}
}

// MetaStore exposes the per-task persistence handle so the dispatcher
// can append step records after RunOnce without the registry needing to
// know about run-specific payloads.
func (r *Registry) MetaStore() *persistence.TaskMetaStore {
	return r.meta
}

func (r *Registry) accountTaken(taskType, accountID string) (string, bool) {
	byAccount, ok := r.index[taskType]
	if !ok {
		return "", false
	}
	id, ok := byAccount[accountID]
	return id, ok
}

// Add creates a new task. now is the creation instant, used both as
// created_at/updated_at and to seed next_execution_time computation.
func (r *Registry) Add(now time.Time, p CreateParams) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.accountTaken(p.TaskType, p.AccountID); taken {
		return Snapshot{}, ErrAccountTaken
	}

	if !validMode(p.Mode) {
		p.Mode = ModeStandard
	}

	taskID := uuid.NewString()
	ag, err := r.factory(p.SysType, p.CredentialsDir, p.Kwargs)
	if err != nil {
		return Snapshot{}, err
	}

	next := clock.NextExecution(now, time.Time{}, time.Duration(p.IntervalSeconds)*time.Second, p.ValidHourRange, p.EndDate)
	status := StatusPending
	if next.IsZero() {
		status = StatusCompleted
	}

	rec := &Record{
		TaskID:            taskID,
		AccountID:         p.AccountID,
		AccountName:       p.AccountName,
		TaskType:          p.TaskType,
		SysType:           p.SysType,
		IntervalSeconds:   p.IntervalSeconds,
		ValidHourRange:    p.ValidHourRange,
		EndDate:           p.EndDate,
		Mode:              p.Mode,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
		NextExecutionTime: next,
		CredentialsDir:    p.CredentialsDir,
		Kwargs:            p.Kwargs,
		Agent:             ag,
	}

	if _, err := r.meta.LoadOrInit(taskID, taskMetaDefaults(rec)); err != nil {
		return Snapshot{}, err
	}

	r.tasks[taskID] = rec
	if r.index[p.TaskType] == nil {
		r.index[p.TaskType] = make(map[string]string)
	}
	r.index[p.TaskType][p.AccountID] = taskID

	return rec.snapshot(), nil
}

func taskMetaDefaults(rec *Record) persistence.TaskMeta {
	var rng *[2]int
	if rec.ValidHourRange != nil {
		v := [2]int{rec.ValidHourRange.StartHour, rec.ValidHourRange.EndHour}
		rng = &v
	}
	return persistence.TaskMeta{
		TaskID:          rec.TaskID,
		AccountID:       rec.AccountID,
		AccountName:     rec.AccountName,
		TaskType:        rec.TaskType,
		SysType:         rec.SysType,
		IntervalSeconds: rec.IntervalSeconds,
		ValidHourRange:  rng,
		EndDate:         rec.EndDate,
		Mode:            string(rec.Mode),
		CredentialsDir:  rec.CredentialsDir,
		Kwargs:          rec.Kwargs,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

// Update applies a partial update. Cadence/validity/end_date changes
// trigger a next_execution_time recompute only while the task is
// pending; a running task's recompute is deferred to post-run
// bookkeeping (the dispatcher calls CompleteRun, which recomputes from
// the fields as they stand at that point).
func (r *Registry) Update(now time.Time, taskID string, p UpdateParams) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[taskID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	cadenceChanged := false
	if p.IntervalSeconds != nil && *p.IntervalSeconds != rec.IntervalSeconds {
		rec.IntervalSeconds = *p.IntervalSeconds
		cadenceChanged = true
	}
	if p.ValidHourRange != nil {
		rec.ValidHourRange = *p.ValidHourRange
		cadenceChanged = true
	}
	if p.EndDate != nil && !p.EndDate.Equal(rec.EndDate) {
		rec.EndDate = *p.EndDate
		cadenceChanged = true
	}
	if p.Mode != nil && validMode(*p.Mode) {
		rec.Mode = *p.Mode
	}
	if len(p.Kwargs) > 0 {
		rec.Kwargs = p.Kwargs
	}

	rec.UpdatedAt = now
	if cadenceChanged && rec.Status == StatusPending {
		rec.NextExecutionTime = clock.NextExecution(now, rec.LastExecutionTime, time.Duration(rec.IntervalSeconds)*time.Second, rec.ValidHourRange, rec.EndDate)
		if rec.NextExecutionTime.IsZero() {
			rec.Status = StatusCompleted
		}
	}

	if err := r.meta.Update(taskMetaDefaults(rec)); err != nil {
		return Snapshot{}, err
	}

	return rec.snapshot(), nil
}

// Pause sets status to paused and nulls next_execution_time. No-op if
// already paused or completed.
func (r *Registry) Pause(now time.Time, taskID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[taskID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if rec.Status == StatusPaused || rec.Status == StatusCompleted {
		return rec.snapshot(), nil
	}
	rec.Status = StatusPaused
	rec.NextExecutionTime = time.Time{}
	rec.UpdatedAt = now
	if err := r.meta.Update(taskMetaDefaults(rec)); err != nil {
		return Snapshot{}, err
	}
	return rec.snapshot(), nil
}

// Resume sets status to pending and recomputes next_execution_time from
// last_execution_time. A running task is rejected with ErrIllegalState.
func (r *Registry) Resume(now time.Time, taskID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[taskID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if rec.Status == StatusRunning {
		return Snapshot{}, ErrIllegalState
	}
	rec.Status = StatusPending
	rec.NextExecutionTime = clock.NextExecution(now, rec.LastExecutionTime, time.Duration(rec.IntervalSeconds)*time.Second, rec.ValidHourRange, rec.EndDate)
	if rec.NextExecutionTime.IsZero() {
		rec.Status = StatusCompleted
	}
	rec.UpdatedAt = now
	if err := r.meta.Update(taskMetaDefaults(rec)); err != nil {
		return Snapshot{}, err
	}
	return rec.snapshot(), nil
}

// Reorder shifts next_execution_time by offsetSeconds (may be negative),
// clamping into the validity window and end date. Only valid when the
// task is pending with a non-null next_execution_time.
func (r *Registry) Reorder(now time.Time, taskID string, offsetSeconds int) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[taskID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if rec.Status != StatusPending || rec.NextExecutionTime.IsZero() {
		return Snapshot{}, ErrIllegalState
	}

	shifted := rec.NextExecutionTime.Add(time.Duration(offsetSeconds) * time.Second)
	adjusted := clock.AdvanceToNextValid(shifted, rec.ValidHourRange)
	if pastEndDate(adjusted, rec.EndDate) {
		rec.Status = StatusCompleted
		rec.NextExecutionTime = time.Time{}
	} else {
		rec.NextExecutionTime = adjusted
	}
	rec.UpdatedAt = now

	if err := r.meta.Update(taskMetaDefaults(rec)); err != nil {
		return Snapshot{}, err
	}
	return rec.snapshot(), nil
}

func pastEndDate(t, endDate time.Time) bool {
	if endDate.IsZero() {
		return false
	}
	ty, tm, td := t.Date()
	ey, em, ed := endDate.Date()
	return !time.Date(ty, tm, td, 0, 0, 0, 0, t.Location()).Before(time.Date(ey, em, ed, 0, 0, 0, 0, endDate.Location()))
}

// Delete removes a task. If it is currently running, removal is
// deferred until the run completes (see CompleteRun).
func (r *Registry) Delete(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status == StatusRunning {
		r.pendingDelete[taskID] = true
		return nil
	}
	r.removeLocked(rec)
	return nil
}

func (r *Registry) removeLocked(rec *Record) {
	delete(r.tasks, rec.TaskID)
	if byAccount, ok := r.index[rec.TaskType]; ok {
		delete(byAccount, rec.AccountID)
		if len(byAccount) == 0 {
			delete(r.index, rec.TaskType)
		}
	}
	delete(r.pendingDelete, rec.TaskID)
	_ = r.meta.Delete(rec.TaskID)
}

// List returns snapshots matching filter, ordered by next_execution_time
// ascending with null (zero) last, ties broken by created_at ascending.
func (r *Registry) List(filter Filter) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.tasks))
	for _, rec := range r.tasks {
		if filter.AccountID != nil && rec.AccountID != *filter.AccountID {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		out = append(out, rec.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.NextExecutionTime.IsZero() != b.NextExecutionTime.IsZero() {
			return b.NextExecutionTime.IsZero()
		}
		if !a.NextExecutionTime.Equal(b.NextExecutionTime) {
			return a.NextExecutionTime.Before(b.NextExecutionTime)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// Get returns a single task snapshot.
func (r *Registry) Get(taskID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[taskID]
	if !ok {
		return Snapshot{}, false
	}
	return rec.snapshot(), true
}

// GetByAccount returns every task for accountID across task types.
func (r *Registry) GetByAccount(accountID string) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Snapshot
	for _, rec := range r.tasks {
		if rec.AccountID == accountID {
			out = append(out, rec.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Agent returns the live Agent handle for taskID, for callers (dispatch,
// control login endpoints) that need to invoke it directly.
func (r *Registry) Agent(taskID string) (agent.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[taskID]
	if !ok {
		return nil, false
	}
	return rec.Agent, true
}

// DueSnapshot is the head-of-queue candidate the dispatcher selected,
// plus enough context to re-validate it under lock.
type DueSnapshot struct {
	TaskID            string
	NextExecutionTime time.Time
}

// NextWake returns the earliest pending next_execution_time across the
// registry, or the zero time if no task is pending.
func (r *Registry) NextWake() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	var wake time.Time
	for _, rec := range r.tasks {
		if rec.Status != StatusPending || rec.NextExecutionTime.IsZero() {
			continue
		}
		if wake.IsZero() || rec.NextExecutionTime.Before(wake) {
			wake = rec.NextExecutionTime
		}
	}
	return wake
}

// PickDue returns the earliest-next-time, earliest-created task that is
// pending and due at or before now, sorted per the dispatcher's tie
// break. It does not mutate state.
func (r *Registry) PickDue(now time.Time) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Record
	for _, rec := range r.tasks {
		if rec.Status != StatusPending || rec.NextExecutionTime.IsZero() {
			continue
		}
		if rec.NextExecutionTime.After(now) {
			continue
		}
		if best == nil ||
			rec.NextExecutionTime.Before(best.NextExecutionTime) ||
			(rec.NextExecutionTime.Equal(best.NextExecutionTime) && rec.CreatedAt.Before(best.CreatedAt)) {
			best = rec
		}
	}
	if best == nil {
		return "", false
	}
	return best.TaskID, true
}

// BeginRun re-reads status under the registry lock and, if still
// pending, marks the task running. Returns false if another mutation
// raced it out of pending between PickDue and BeginRun.
func (r *Registry) BeginRun(taskID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[taskID]
	if !ok || rec.Status != StatusPending {
		return Record{}, false
	}
	rec.Status = StatusRunning
	r.runningTaskID = taskID
	return *rec, true
}

// CompleteRun applies post-run bookkeeping (spec steps 9-12): bumps
// last_execution_time and round_num, and transitions status/next based
// on end date and whether runErr is non-nil. It returns the resulting
// snapshot and whether the task was removed because it had been marked
// for deferred deletion while running.
func (r *Registry) CompleteRun(now time.Time, taskID string, runErr error) (Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[taskID]
	if !ok {
		return Snapshot{}, false, ErrNotFound
	}

	rec.LastExecutionTime = now
	rec.RoundNum++
	rec.UpdatedAt = now

	if r.runningTaskID == taskID {
		r.runningTaskID = ""
	}

	switch {
	case pastEndDate(now, rec.EndDate):
		rec.Status = StatusCompleted
		rec.NextExecutionTime = time.Time{}
	case runErr != nil:
		rec.Status = StatusError
		rec.NextExecutionTime = clock.NextExecution(now, rec.LastExecutionTime, time.Duration(rec.IntervalSeconds)*time.Second, rec.ValidHourRange, rec.EndDate)
		if rec.NextExecutionTime.IsZero() {
			rec.Status = StatusCompleted
		}
	default:
		rec.Status = StatusPending
		rec.NextExecutionTime = clock.NextExecution(now, rec.LastExecutionTime, time.Duration(rec.IntervalSeconds)*time.Second, rec.ValidHourRange, rec.EndDate)
		if rec.NextExecutionTime.IsZero() {
			rec.Status = StatusCompleted
		}
	}

	if err := r.meta.Update(taskMetaDefaults(rec)); err != nil {
		return Snapshot{}, false, err
	}

	snap := rec.snapshot()

	if r.pendingDelete[taskID] {
		r.removeLocked(rec)
		return snap, true, nil
	}
	return snap, false, nil
}

// RunningTaskID returns the task_id currently holding the running slot,
// or "" if none.
func (r *Registry) RunningTaskID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runningTaskID
}

// AppendStep forwards a step record to the per-task meta store.
func (r *Registry) AppendStep(taskID string, step persistence.StepEntry) error {
	_, err := r.meta.AppendStep(taskID, step)
	return err
}

// LoadSnapshot rebuilds the registry from a persisted Snapshot,
// reconstructing each task's Agent handle via the registry's factory and
// resetting any task that was "running" at save time back to "pending"
// with a recomputed next_execution_time (startup recovery). Per-task
// entries whose Agent reconstruction fails are skipped; the caller
// should log them.
func (r *Registry) LoadSnapshot(now time.Time, snap *persistence.Snapshot) (skipped []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ts := range snap.Tasks {
		ag, err := r.factory(ts.SysType, ts.CredentialsDir, ts.Kwargs)
		if err != nil {
			skipped = append(skipped, ts.TaskID)
			continue
		}
		var rng *clock.Window
		if ts.ValidHourRange != nil {
			rng = &clock.Window{StartHour: ts.ValidHourRange[0], EndHour: ts.ValidHourRange[1]}
		}
		status := Status(ts.Status)
		next := ts.NextExecutionTime
		if status == StatusRunning {
			status = StatusPending
			next = clock.NextExecution(now, ts.LastExecutionTime, time.Duration(ts.IntervalSeconds)*time.Second, rng, ts.EndDate)
			if next.IsZero() {
				status = StatusCompleted
			}
		}
		rec := &Record{
			TaskID:            ts.TaskID,
			AccountID:         ts.AccountID,
			AccountName:       ts.AccountName,
			TaskType:          ts.TaskType,
			SysType:           ts.SysType,
			IntervalSeconds:   ts.IntervalSeconds,
			ValidHourRange:    rng,
			EndDate:           ts.EndDate,
			Mode:              Mode(ts.Mode),
			Status:            status,
			CreatedAt:         ts.CreatedAt,
			UpdatedAt:         ts.UpdatedAt,
			LastExecutionTime: ts.LastExecutionTime,
			NextExecutionTime: next,
			RoundNum:          ts.RoundNum,
			CredentialsDir:    ts.CredentialsDir,
			Kwargs:            ts.Kwargs,
			Agent:             ag,
		}
		r.tasks[rec.TaskID] = rec
		if r.index[rec.TaskType] == nil {
			r.index[rec.TaskType] = make(map[string]string)
		}
		r.index[rec.TaskType][rec.AccountID] = rec.TaskID
	}
	return skipped
}

// Snapshot captures the whole registry for persistence (C8).
func (r *Registry) Snapshot() *persistence.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &persistence.Snapshot{
		AccountTasks: make(map[string]map[string]string, len(r.index)),
	}
	for taskType, byAccount := range r.index {
		copyMap := make(map[string]string, len(byAccount))
		for k, v := range byAccount {
			copyMap[k] = v
		}
		snap.AccountTasks[taskType] = copyMap
	}
	for _, rec := range r.tasks {
		var rng *[2]int
		if rec.ValidHourRange != nil {
			v := [2]int{rec.ValidHourRange.StartHour, rec.ValidHourRange.EndHour}
			rng = &v
		}
		snap.Tasks = append(snap.Tasks, persistence.TaskSnapshot{
			TaskID:            rec.TaskID,
			AccountID:         rec.AccountID,
			AccountName:       rec.AccountName,
			TaskType:          rec.TaskType,
			SysType:           rec.SysType,
			Status:            string(rec.Status),
			IntervalSeconds:   rec.IntervalSeconds,
			ValidHourRange:    rng,
			EndDate:           rec.EndDate,
			Mode:              string(rec.Mode),
			CredentialsDir:    rec.CredentialsDir,
			Kwargs:            rec.Kwargs,
			RoundNum:          rec.RoundNum,
			LastExecutionTime: rec.LastExecutionTime,
			NextExecutionTime: rec.NextExecutionTime,
			CreatedAt:         rec.CreatedAt,
			UpdatedAt:         rec.UpdatedAt,
		})
	}
	return snap
}

// Count returns the number of non-deleted tasks, used by the license
// gate's task-limit check.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
