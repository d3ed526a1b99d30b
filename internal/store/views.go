package store

import (
	"sort"
	"time"

	"github.com/wote-dev/simplr-web-sub000/internal/domain"
)

type ViewFilter string

const (
	ViewToday     ViewFilter = "today"
	ViewUpcoming  ViewFilter = "upcoming"
	ViewCompleted ViewFilter = "completed"
)

// View projects the current speculative task set through filter, evaluated
// against the caller-supplied now. The three filters partition the set: for
// any now, every task appears in exactly one of them.
func (s *Store) View(filter ViewFilter, now time.Time) []domain.Task {
	s.mu.Lock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if matchesView(t, filter, now) {
			out = append(out, t.Clone())
		}
	}
	s.mu.Unlock()

	sortView(out)
	return out
}

func matchesView(t domain.Task, filter ViewFilter, now time.Time) bool {
	switch filter {
	case ViewCompleted:
		return t.Completed
	case ViewToday:
		// incomplete and due today, overdue, or undated
		return !t.Completed && (t.DueDate == nil || t.DueDate.Before(startOfTomorrow(now)))
	case ViewUpcoming:
		return !t.Completed && t.DueDate != nil && !t.DueDate.Before(startOfTomorrow(now))
	default:
		return false
	}
}

func startOfTomorrow(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// sortView orders by category priority, then due date (undated last), then id
// so the projection is stable across recomputes.
func sortView(tasks []domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		ap, bp := a.Category.Meta().SortPriority, b.Category.Meta().SortPriority
		if ap != bp {
			return ap < bp
		}
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return a.ID < b.ID
	})
}
