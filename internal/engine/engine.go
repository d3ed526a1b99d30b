// Package engine wires the optimistic store to its collaborators and decides
// remote-backed vs local-only operation, once per auth-state change.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/wote-dev/simplr-web-sub000/internal/cache"
	"github.com/wote-dev/simplr-web-sub000/internal/domain"
	"github.com/wote-dev/simplr-web-sub000/internal/logger"
	"github.com/wote-dev/simplr-web-sub000/internal/remote"
	"github.com/wote-dev/simplr-web-sub000/internal/reminder"
	"github.com/wote-dev/simplr-web-sub000/internal/session"
	"github.com/wote-dev/simplr-web-sub000/internal/store"
	"github.com/wote-dev/simplr-web-sub000/internal/stream"
)

type Mode int

const (
	ModeLocal Mode = iota
	ModeRemote
)

func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// StreamControl is the slice of the subscriber the engine drives.
type StreamControl interface {
	Subscribe(userID int64)
	Close()
	State() stream.State
	Degraded() bool
}

type Engine struct {
	store *store.Store
	cache *cache.Cache
	repo  remote.TaskRepository
	strm  StreamControl
	sess  session.Provider
	sched *reminder.Scheduler

	mu   sync.Mutex
	mode Mode
}

func New(st *store.Store, c *cache.Cache, repo remote.TaskRepository, strm StreamControl, sess session.Provider, sched *reminder.Scheduler) *Engine {
	return &Engine{
		store: st,
		cache: c,
		repo:  repo,
		strm:  strm,
		sess:  sess,
		sched: sched,
	}
}

// Start resolves the initial mode and begins reacting to session changes.
func (e *Engine) Start(ctx context.Context) {
	e.store.OnChange(e.persistSnapshot)
	if e.sched != nil {
		e.store.SetReminderScheduler(schedulerAdapter{e.sched})
	}
	e.sess.OnChange(func(session.State) {
		e.applyMode(context.Background())
	})
	e.applyMode(ctx)
}

func (e *Engine) Close() {
	e.strm.Close()
	if e.sched != nil {
		e.sched.Close()
	}
}

func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Engine) StreamState() stream.State { return e.strm.State() }

// Degraded reports the "local writes only, no live push" condition.
func (e *Engine) Degraded() bool { return e.strm.Degraded() }

func (e *Engine) applyMode(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.sess.State() {
	case session.StateLoading:
		// mode is resolved again once the session settles
	case session.StateAuthenticated:
		e.enterRemoteLocked(ctx)
	default:
		e.enterLocalLocked()
	}
}

// caller holds e.mu
func (e *Engine) enterRemoteLocked(ctx context.Context) {
	// tasks created while local-only get one upload chance below
	var localOnly []domain.Task
	if e.mode == ModeLocal {
		localOnly = e.store.Tasks()
	}

	remoteTasks, err := e.repo.ListForUser(ctx)
	if err != nil {
		logger.Warn("engine: remote unavailable, degrading to local-only", "error", err)
		e.enterLocalLocked()
		return
	}

	e.mode = ModeRemote
	e.store.SetPersister(e.repo)
	e.store.Hydrate(remoteTasks)

	known := make(map[int64]bool, len(remoteTasks))
	for _, t := range remoteTasks {
		known[t.ID] = true
	}
	for _, t := range localOnly {
		if known[t.ID] {
			continue
		}
		confirmed, err := e.repo.Create(ctx, t)
		if err != nil {
			logger.Warn("engine: local task upload failed", "task_id", t.ID, "error", err)
			continue
		}
		e.store.Apply(stream.Event{Type: stream.EventInsert, Task: &confirmed, ID: confirmed.ID})
	}

	e.strm.Subscribe(e.sess.UserID())
	logger.Info("engine: remote-backed mode", "user_id", e.sess.UserID(), "tasks", len(remoteTasks))
}

// caller holds e.mu
func (e *Engine) enterLocalLocked() {
	e.strm.Close()
	e.mode = ModeLocal
	e.store.SetPersister(store.NopPersister{})

	tasks, found, err := e.cache.LoadTasks()
	if err != nil {
		logger.Warn("engine: cache unreadable", "error", err)
		found = false
	}
	if !found || len(tasks) == 0 {
		tasks = domain.StarterTasks(time.Now())
	}
	e.store.Hydrate(tasks)
	logger.Info("engine: local-only mode", "tasks", len(tasks))
}

// persistSnapshot mirrors every observable store change into the cache; in
// local-only mode that write is the durability story, in remote mode it is
// the offline fallback copy. Failures never block the mutation.
func (e *Engine) persistSnapshot() {
	if err := e.cache.SaveTasks(e.store.Tasks()); err != nil {
		logger.Warn("engine: cache write failed", "error", err)
	}
}

type schedulerAdapter struct {
	s *reminder.Scheduler
}

func (a schedulerAdapter) Schedule(t domain.Task) {
	a.s.Schedule(t)
}

func (a schedulerAdapter) Cancel(taskID int64) {
	a.s.Cancel(taskID)
}
