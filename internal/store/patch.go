package store

import (
	"time"

	"github.com/wote-dev/simplr-web-sub000/internal/domain"
)

// Patch is a partial task update; nil fields are left untouched. Clearing an
// optional field is explicit so "unset" and "unchanged" stay distinct.
type Patch struct {
	Title            *string
	Description      *string
	Category         *domain.Category
	Completed        *bool
	Checklist        *[]domain.ChecklistItem
	DueDate          *time.Time
	ClearDueDate     bool
	ReminderEnabled  *bool
	ReminderDateTime *time.Time
	ClearReminder    bool
	ReminderSent     *bool
}

func (p Patch) applyTo(t domain.Task) domain.Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = p.Category.Normalize()
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Checklist != nil {
		if *p.Checklist == nil {
			t.Checklist = nil
		} else {
			items := make([]domain.ChecklistItem, len(*p.Checklist))
			copy(items, *p.Checklist)
			t.Checklist = items
		}
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.ReminderEnabled != nil {
		t.ReminderEnabled = *p.ReminderEnabled
	}
	if p.ClearReminder {
		t.ReminderDateTime = nil
		t.ReminderEnabled = false
		t.ReminderSent = false
	} else if p.ReminderDateTime != nil {
		r := *p.ReminderDateTime
		t.ReminderDateTime = &r
		// a rescheduled reminder may fire again
		t.ReminderSent = false
	}
	if p.ReminderSent != nil {
		t.ReminderSent = *p.ReminderSent
	}
	return t
}
