// Package reminder arms local delayed notifications for tasks. The engine
// calls Schedule after any create or update that leaves a reminder enabled,
// unsent, and in the future; a fired reminder is marked sent so it never
// re-triggers.
package reminder

import (
	"sync"
	"time"

	"github.com/wote-dev/simplr-web-sub000/internal/domain"
	"github.com/wote-dev/simplr-web-sub000/internal/logger"
)

type Handle struct {
	taskID int64
	timer  *time.Timer
}

func (h *Handle) Cancel() {
	if h != nil && h.timer != nil {
		h.timer.Stop()
	}
}

type Scheduler struct {
	notify   func(domain.Task)
	markSent func(id int64)

	mu     sync.Mutex
	timers map[int64]*time.Timer
	closed bool
}

// NewScheduler builds a scheduler. notify delivers the user-visible
// notification; markSent records the fired state on the task.
func NewScheduler(notify func(domain.Task), markSent func(id int64)) *Scheduler {
	return &Scheduler{
		notify:   notify,
		markSent: markSent,
		timers:   make(map[int64]*time.Timer),
	}
}

// Schedule arms a reminder for t and returns its handle, or nil when the
// task has no pending future reminder. Rescheduling replaces the old timer.
func (s *Scheduler) Schedule(t domain.Task) *Handle {
	if !t.ReminderEnabled || t.ReminderSent || t.ReminderDateTime == nil {
		return nil
	}
	delay := time.Until(*t.ReminderDateTime)
	if delay <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if old, ok := s.timers[t.ID]; ok {
		old.Stop()
	}

	task := t.Clone()
	timer := time.AfterFunc(delay, func() {
		s.fire(task)
	})
	s.timers[t.ID] = timer
	logger.Debug("reminder: armed", "task_id", t.ID, "at", t.ReminderDateTime)
	return &Handle{taskID: t.ID, timer: timer}
}

func (s *Scheduler) fire(t domain.Task) {
	s.mu.Lock()
	delete(s.timers, t.ID)
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	logger.Info("reminder: fired", "task_id", t.ID, "title", t.Title)
	if s.notify != nil {
		s.notify(t)
	}
	if s.markSent != nil {
		s.markSent(t.ID)
	}
}

// Cancel disarms the reminder for taskID, if any.
func (s *Scheduler) Cancel(taskID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[taskID]; ok {
		timer.Stop()
		delete(s.timers, taskID)
	}
}

// Close disarms everything; no reminder fires after it returns.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
