// Package store owns the canonical in-memory task list plus the layer of
// speculative, not-yet-confirmed mutations on top of it. Every mutation
// applies synchronously before its persistence call is issued, and is
// reconciled against the authoritative result (or rolled back) when the call
// resolves. Change-stream events land through the same reconciliation gate.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wote-dev/simplr-web-sub000/internal/domain"
	"github.com/wote-dev/simplr-web-sub000/internal/metrics"
	"github.com/wote-dev/simplr-web-sub000/internal/stream"
	"github.com/wote-dev/simplr-web-sub000/internal/taskerr"
)

// Persister is the active persistence strategy. The engine swaps one
// strategy object per mode change; the store never branches on mode itself.
type Persister interface {
	Create(ctx context.Context, t domain.Task) (domain.Task, error)
	Update(ctx context.Context, t domain.Task) (domain.Task, error)
	Delete(ctx context.Context, id int64) error
	DeleteCompleted(ctx context.Context) error
}

// NopPersister is the local-only strategy: mutations are confirmed as-is and
// durability comes from the store's change hook writing the cache.
type NopPersister struct{}

func (NopPersister) Create(_ context.Context, t domain.Task) (domain.Task, error) { return t, nil }
func (NopPersister) Update(_ context.Context, t domain.Task) (domain.Task, error) { return t, nil }
func (NopPersister) Delete(context.Context, int64) error                          { return nil }
func (NopPersister) DeleteCompleted(context.Context) error                        { return nil }

// ReminderScheduler arms and disarms local delayed notifications. A removed
// task's reminder must never fire.
type ReminderScheduler interface {
	Schedule(t domain.Task)
	Cancel(taskID int64)
}

type Store struct {
	mu        sync.Mutex
	tasks     map[int64]domain.Task
	persister Persister
	changed   func()
	sched     ReminderScheduler
	now       func() time.Time
}

func New() *Store {
	return &Store{
		tasks:     make(map[int64]domain.Task),
		persister: NopPersister{},
		now:       time.Now,
	}
}

// SetPersister swaps the active persistence strategy.
func (s *Store) SetPersister(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persister = p
}

// OnChange registers a hook invoked after every observable task-list change.
// The engine uses it to keep the local cache current.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = fn
}

func (s *Store) SetReminderScheduler(r ReminderScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched = r
}

// Hydrate replaces the working set wholesale (startup and mode switches).
func (s *Store) Hydrate(tasks []domain.Task) {
	s.mu.Lock()
	s.tasks = make(map[int64]domain.Task, len(tasks))
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
	}
	s.mu.Unlock()
	s.notify()

	for _, t := range tasks {
		s.maybeScheduleReminder(t)
	}
}

// Tasks returns a snapshot of the current (speculative) task set, id-ordered.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Get(id int64) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return t.Clone(), true
}

// Add constructs a task under a local placeholder id, applies it
// speculatively and persists it. The confirmed record may carry a different
// id; the placeholder entry is replaced either way.
func (s *Store) Add(ctx context.Context, data domain.Task) (domain.Task, error) {
	const op = "add task"

	now := s.now()
	t := data.Clone()
	t.ID = domain.NextLocalID()
	t.Category = t.Category.Normalize()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.ReminderSent = false

	if err := t.Validate(); err != nil {
		metrics.Mutations.WithLabelValues("add", "invalid").Inc()
		return domain.Task{}, err
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	p := s.persister
	s.mu.Unlock()
	s.notify()

	confirmed, err := p.Create(ctx, t)
	if err != nil {
		s.rollbackRemove(t.ID, t.UpdatedAt)
		metrics.Mutations.WithLabelValues("add", "error").Inc()
		metrics.Rollbacks.WithLabelValues("add").Inc()
		return domain.Task{}, taskerr.Classify(op, err)
	}

	s.reconcileAdd(t.ID, confirmed)
	s.maybeScheduleReminder(confirmed)
	metrics.Mutations.WithLabelValues("add", "ok").Inc()
	return confirmed, nil
}

// Update merges patch into an existing task, stamps a new updatedAt and runs
// the speculative-then-reconcile path.
func (s *Store) Update(ctx context.Context, id int64, patch Patch) (domain.Task, error) {
	const op = "update task"

	s.mu.Lock()
	cur, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return domain.Task{}, taskerr.NotFoundf(op, "task %d not found", id)
	}
	prev := cur.Clone()
	next := patch.applyTo(cur.Clone())
	next.UpdatedAt = s.now()
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		metrics.Mutations.WithLabelValues("update", "invalid").Inc()
		return domain.Task{}, err
	}
	s.tasks[id] = next
	p := s.persister
	s.mu.Unlock()
	s.notify()

	confirmed, err := p.Update(ctx, next)
	if err != nil {
		s.rollbackRestore(id, next.UpdatedAt, prev)
		metrics.Mutations.WithLabelValues("update", "error").Inc()
		metrics.Rollbacks.WithLabelValues("update").Inc()
		return domain.Task{}, taskerr.Classify(op, err)
	}

	s.reconcileUpdate(id, confirmed)
	s.maybeScheduleReminder(confirmed)
	metrics.Mutations.WithLabelValues("update", "ok").Inc()
	return confirmed, nil
}

// ToggleComplete flips completion before any network round trip. It is the
// highest-frequency mutation, so it takes the direct path instead of the
// generic patch merge.
func (s *Store) ToggleComplete(ctx context.Context, id int64) (domain.Task, error) {
	const op = "toggle complete"

	s.mu.Lock()
	cur, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return domain.Task{}, taskerr.NotFoundf(op, "task %d not found", id)
	}
	prev := cur.Clone()
	next := cur.Clone()
	next.Completed = !next.Completed
	next.UpdatedAt = s.now()
	s.tasks[id] = next
	p := s.persister
	s.mu.Unlock()
	s.notify()

	confirmed, err := p.Update(ctx, next)
	if err != nil {
		s.rollbackRestore(id, next.UpdatedAt, prev)
		metrics.Mutations.WithLabelValues("toggle_complete", "error").Inc()
		metrics.Rollbacks.WithLabelValues("toggle_complete").Inc()
		return domain.Task{}, taskerr.Classify(op, err)
	}

	s.reconcileUpdate(id, confirmed)
	metrics.Mutations.WithLabelValues("toggle_complete", "ok").Inc()
	return confirmed, nil
}

// ToggleChecklistItem flips one checklist item's done flag, speculative-first.
func (s *Store) ToggleChecklistItem(ctx context.Context, taskID, itemID int64) (domain.Task, error) {
	const op = "toggle checklist item"

	s.mu.Lock()
	cur, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return domain.Task{}, taskerr.NotFoundf(op, "task %d not found", taskID)
	}
	idx := -1
	for i, item := range cur.Checklist {
		if item.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return domain.Task{}, taskerr.NotFoundf(op, "item %d not found in task %d", itemID, taskID)
	}
	prev := cur.Clone()
	next := cur.Clone()
	next.Checklist[idx].Done = !next.Checklist[idx].Done
	next.UpdatedAt = s.now()
	s.tasks[taskID] = next
	p := s.persister
	s.mu.Unlock()
	s.notify()

	confirmed, err := p.Update(ctx, next)
	if err != nil {
		s.rollbackRestore(taskID, next.UpdatedAt, prev)
		metrics.Mutations.WithLabelValues("toggle_checklist", "error").Inc()
		metrics.Rollbacks.WithLabelValues("toggle_checklist").Inc()
		return domain.Task{}, taskerr.Classify(op, err)
	}

	s.reconcileUpdate(taskID, confirmed)
	metrics.Mutations.WithLabelValues("toggle_checklist", "ok").Inc()
	return confirmed, nil
}

// Remove deletes speculatively and never re-inserts on failure: the user
// already dismissed the task, so repair is the caller's reload, not a
// resurrection.
func (s *Store) Remove(ctx context.Context, id int64) error {
	const op = "remove task"

	s.mu.Lock()
	if _, ok := s.tasks[id]; !ok {
		s.mu.Unlock()
		return taskerr.NotFoundf(op, "task %d not found", id)
	}
	delete(s.tasks, id)
	p := s.persister
	s.mu.Unlock()
	s.notify()
	s.cancelReminder(id)

	if err := p.Delete(ctx, id); err != nil {
		metrics.Mutations.WithLabelValues("remove", "error").Inc()
		return taskerr.Classify(op, err)
	}
	metrics.Mutations.WithLabelValues("remove", "ok").Inc()
	return nil
}

// ClearCompleted bulk-removes every completed task. Like Remove, a failed
// backend call leaves the tasks removed locally.
func (s *Store) ClearCompleted(ctx context.Context) error {
	const op = "clear completed"

	s.mu.Lock()
	var removed []int64
	for id, t := range s.tasks {
		if t.Completed {
			delete(s.tasks, id)
			removed = append(removed, id)
		}
	}
	p := s.persister
	s.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	s.notify()
	for _, id := range removed {
		s.cancelReminder(id)
	}

	if err := p.DeleteCompleted(ctx); err != nil {
		metrics.Mutations.WithLabelValues("clear_completed", "error").Inc()
		return taskerr.Classify(op, err)
	}
	metrics.Mutations.WithLabelValues("clear_completed", "ok").Inc()
	return nil
}

// Apply is the reconciliation entry point for change-stream events. Inserts
// for a known id are updates, not duplicates; deletes win unconditionally
// over whatever is held.
func (s *Store) Apply(ev stream.Event) {
	switch ev.Type {
	case stream.EventDelete:
		s.mu.Lock()
		delete(s.tasks, ev.ID)
		s.mu.Unlock()
		s.notify()
		s.cancelReminder(ev.ID)
		metrics.StreamEvents.WithLabelValues(string(ev.Type), "applied").Inc()

	case stream.EventInsert, stream.EventUpdate:
		if ev.Task == nil {
			return
		}
		t := ev.Task.Clone()
		s.mu.Lock()
		existing, ok := s.tasks[t.ID]
		if ok && t.UpdatedAt.Before(existing.UpdatedAt) {
			s.mu.Unlock()
			metrics.StreamEvents.WithLabelValues(string(ev.Type), "stale").Inc()
			return
		}
		s.tasks[t.ID] = t
		s.mu.Unlock()
		s.notify()
		metrics.StreamEvents.WithLabelValues(string(ev.Type), "applied").Inc()
		s.maybeScheduleReminder(t)
	}
}

// MarkReminderSent records that a reminder fired so it never re-triggers.
func (s *Store) MarkReminderSent(ctx context.Context, id int64) error {
	sent := true
	_, err := s.Update(ctx, id, Patch{ReminderSent: &sent})
	return err
}

// reconcileAdd lands a confirmed create: the placeholder entry is replaced
// by the authoritative record, unless something with a newer updatedAt got
// there first.
func (s *Store) reconcileAdd(specID int64, confirmed domain.Task) {
	s.mu.Lock()
	if confirmed.ID != specID {
		// backend renumbered the local placeholder
		delete(s.tasks, specID)
	}
	existing, ok := s.tasks[confirmed.ID]
	if !ok || !confirmed.UpdatedAt.Before(existing.UpdatedAt) {
		s.tasks[confirmed.ID] = confirmed.Clone()
	}
	s.mu.Unlock()
	s.notify()
}

// reconcileUpdate lands a confirmed edit. An entry deleted in flight (a
// stream delete racing the update) stays deleted; an out-of-order
// confirmation older than what is held is dropped as stale.
func (s *Store) reconcileUpdate(id int64, confirmed domain.Task) {
	s.mu.Lock()
	existing, ok := s.tasks[id]
	if ok && !confirmed.UpdatedAt.Before(existing.UpdatedAt) {
		s.tasks[id] = confirmed.Clone()
	}
	s.mu.Unlock()
	s.notify()
}

// rollbackRemove drops a speculative insert, but only if it is still the
// entry we wrote; a stream event that superseded it in flight stays.
func (s *Store) rollbackRemove(id int64, stamp time.Time) {
	s.mu.Lock()
	if cur, ok := s.tasks[id]; ok && cur.UpdatedAt.Equal(stamp) {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	s.notify()
}

// rollbackRestore reverts a speculative edit under the same still-ours guard.
// In particular, a task deleted by the stream mid-flight is not resurrected.
func (s *Store) rollbackRestore(id int64, stamp time.Time, prev domain.Task) {
	s.mu.Lock()
	if cur, ok := s.tasks[id]; ok && cur.UpdatedAt.Equal(stamp) {
		s.tasks[id] = prev
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) maybeScheduleReminder(t domain.Task) {
	s.mu.Lock()
	sched := s.sched
	now := s.now()
	s.mu.Unlock()

	if sched == nil || !t.ReminderEnabled || t.ReminderSent || t.ReminderDateTime == nil {
		return
	}
	if !t.ReminderDateTime.After(now) {
		return
	}
	sched.Schedule(t)
}

func (s *Store) cancelReminder(id int64) {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched != nil {
		sched.Cancel(id)
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.changed
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
