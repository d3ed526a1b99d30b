package domain

import (
	"strings"
	"sync"
	"time"

	"github.com/wote-dev/simplr-web-sub000/internal/taskerr"
)

type Category string

const (
	CategoryWork     Category = "work"
	CategoryPersonal Category = "personal"
	CategoryShopping Category = "shopping"
	CategoryHealth   Category = "health"
	CategoryFinance  Category = "finance"
	CategoryLearning Category = "learning"
	CategoryHome     Category = "home"
	CategoryOther    Category = "other"
)

// CategoryMeta carries the display color and sort priority of a category.
// Used for grouping and ordering only; sync never looks at it.
type CategoryMeta struct {
	Color        string
	SortPriority int
}

var categoryMeta = map[Category]CategoryMeta{
	CategoryWork:     {Color: "#3B82F6", SortPriority: 1},
	CategoryPersonal: {Color: "#8B5CF6", SortPriority: 2},
	CategoryShopping: {Color: "#F59E0B", SortPriority: 3},
	CategoryHealth:   {Color: "#10B981", SortPriority: 4},
	CategoryFinance:  {Color: "#14B8A6", SortPriority: 5},
	CategoryLearning: {Color: "#6366F1", SortPriority: 6},
	CategoryHome:     {Color: "#F97316", SortPriority: 7},
	CategoryOther:    {Color: "#6B7280", SortPriority: 8},
}

// Normalize maps unknown labels to CategoryOther.
func (c Category) Normalize() Category {
	if _, ok := categoryMeta[c]; ok {
		return c
	}
	return CategoryOther
}

func (c Category) Meta() CategoryMeta {
	return categoryMeta[c.Normalize()]
}

type ChecklistItem struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type Task struct {
	ID               int64           `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Category         Category        `json:"category"`
	Completed        bool            `json:"completed"`
	Checklist        []ChecklistItem `json:"checklist,omitempty"`
	DueDate          *time.Time      `json:"dueDate,omitempty"`
	ReminderEnabled  bool            `json:"reminderEnabled"`
	ReminderDateTime *time.Time      `json:"reminderDateTime,omitempty"`
	ReminderSent     bool            `json:"reminderSent"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy so snapshots cannot alias live store state.
func (t Task) Clone() Task {
	c := t
	if t.Checklist != nil {
		c.Checklist = make([]ChecklistItem, len(t.Checklist))
		copy(c.Checklist, t.Checklist)
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.ReminderDateTime != nil {
		r := *t.ReminderDateTime
		c.ReminderDateTime = &r
	}
	return c
}

// Validate rejects tasks the backend would reject, before any call is issued.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return taskerr.Validationf("validate task", "title must not be empty")
	}
	return nil
}

var (
	localIDMu   sync.Mutex
	lastLocalID int64
)

// NextLocalID returns a placeholder id for a task created before the backend
// has assigned one. Millisecond timestamps collide under load, so a bump
// keeps the sequence strictly increasing.
func NextLocalID() int64 {
	localIDMu.Lock()
	defer localIDMu.Unlock()

	id := time.Now().UnixMilli()
	if id <= lastLocalID {
		id = lastLocalID + 1
	}
	lastLocalID = id
	return id
}

// StarterTasks is the built-in seed set used when the engine starts
// local-only with an empty cache.
func StarterTasks(now time.Time) []Task {
	return []Task{
		{
			ID:          NextLocalID(),
			Title:       "Welcome to Simplr! 🎉",
			Description: "This is your task list. Tap a task to edit it, or swipe to complete.",
			Category:    CategoryPersonal,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          NextLocalID(),
			Title:       "Explore the app features",
			Description: "Try categories, due dates, checklists and reminders.",
			Category:    CategoryPersonal,
			Checklist: []ChecklistItem{
				{ID: 1, Text: "Create a task", Done: false},
				{ID: 2, Text: "Set a due date", Done: false},
				{ID: 3, Text: "Add a checklist", Done: false},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
