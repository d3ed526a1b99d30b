package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wote-dev/simplr-web-sub000/internal/domain"
	"github.com/wote-dev/simplr-web-sub000/internal/stream"
	"github.com/wote-dev/simplr-web-sub000/internal/taskerr"
)

// fakePersister lets tests fail calls, renumber ids, and interleave stream
// events while a persistence call is "in flight".
type fakePersister struct {
	createErr error
	updateErr error
	deleteErr error
	clearErr  error
	renumber  int64

	// invoked mid-call, before the result is returned
	inFlight func()

	creates int
	updates int
	deletes int
	clears  int
}

func (f *fakePersister) Create(_ context.Context, t domain.Task) (domain.Task, error) {
	f.creates++
	if f.inFlight != nil {
		f.inFlight()
	}
	if f.createErr != nil {
		return domain.Task{}, f.createErr
	}
	if f.renumber != 0 {
		t.ID = f.renumber
	}
	return t, nil
}

func (f *fakePersister) Update(_ context.Context, t domain.Task) (domain.Task, error) {
	f.updates++
	if f.inFlight != nil {
		f.inFlight()
	}
	if f.updateErr != nil {
		return domain.Task{}, f.updateErr
	}
	return t, nil
}

func (f *fakePersister) Delete(context.Context, int64) error {
	f.deletes++
	return f.deleteErr
}

func (f *fakePersister) DeleteCompleted(context.Context) error {
	f.clears++
	return f.clearErr
}

func newTestStore(p Persister) *Store {
	s := New()
	if p != nil {
		s.SetPersister(p)
	}
	return s
}

func seedTask(id int64, title string, updatedAt time.Time) domain.Task {
	return domain.Task{
		ID:        id,
		Title:     title,
		Category:  domain.CategoryPersonal,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func TestAddAppliesSpeculativelyAndConfirms(t *testing.T) {
	fp := &fakePersister{}
	s := newTestStore(fp)

	got, err := s.Add(context.Background(), domain.Task{Title: "buy milk"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got.ID == 0 {
		t.Fatal("expected an assigned id")
	}
	if tasks := s.Tasks(); len(tasks) != 1 || tasks[0].Title != "buy milk" {
		t.Fatalf("unexpected store contents: %+v", tasks)
	}
	if fp.creates != 1 {
		t.Fatalf("expected 1 create call, got %d", fp.creates)
	}
}

func TestAddReplacesPlaceholderWithConfirmedID(t *testing.T) {
	fp := &fakePersister{renumber: 999}
	s := newTestStore(fp)

	got, err := s.Add(context.Background(), domain.Task{Title: "renumber me"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got.ID != 999 {
		t.Fatalf("expected confirmed id 999, got %d", got.ID)
	}
	tasks := s.Tasks()
	if len(tasks) != 1 || tasks[0].ID != 999 {
		t.Fatalf("placeholder survived renumbering: %+v", tasks)
	}
}

func TestAddRollsBackOnFailure(t *testing.T) {
	fp := &fakePersister{createErr: taskerr.Networkf("create task", "down")}
	s := newTestStore(fp)

	_, err := s.Add(context.Background(), domain.Task{Title: "doomed"})
	if !taskerr.IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	if tasks := s.Tasks(); len(tasks) != 0 {
		t.Fatalf("speculative entry survived rollback: %+v", tasks)
	}
}

func TestAddRejectsEmptyTitle(t *testing.T) {
	fp := &fakePersister{}
	s := newTestStore(fp)

	_, err := s.Add(context.Background(), domain.Task{Title: "   "})
	if !taskerr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fp.creates != 0 {
		t.Fatal("invalid task must not reach the persister")
	}
	if len(s.Tasks()) != 0 {
		t.Fatal("invalid task must not be applied")
	}
}

func TestUpdateRollbackRestoresPreviousValue(t *testing.T) {
	fp := &fakePersister{updateErr: errors.New("boom")}
	s := newTestStore(fp)
	base := time.Now().Add(-time.Hour)
	s.Hydrate([]domain.Task{seedTask(1, "original", base)})

	title := "edited"
	_, err := s.Update(context.Background(), 1, Patch{Title: &title})
	if err == nil {
		t.Fatal("expected update to fail")
	}
	if taskerr.KindOf(err) != taskerr.KindUnknown {
		t.Fatalf("unclassified failure should surface as unknown, got %v", err)
	}

	got, ok := s.Get(1)
	if !ok {
		t.Fatal("task vanished")
	}
	if got.Title != "original" || !got.UpdatedAt.Equal(base) {
		t.Fatalf("rollback did not restore pre-mutation state: %+v", got)
	}
}

func TestUpdateUnknownTaskIsNotFound(t *testing.T) {
	s := newTestStore(&fakePersister{})
	title := "x"
	if _, err := s.Update(context.Background(), 42, Patch{Title: &title}); !taskerr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestToggleCompleteVisibleBeforePersistenceResolves(t *testing.T) {
	fp := &fakePersister{}
	s := newTestStore(fp)
	s.Hydrate([]domain.Task{seedTask(5, "latency sensitive", time.Now().Add(-time.Hour))})

	sawCompleted := false
	fp.inFlight = func() {
		for _, task := range s.View(ViewCompleted, time.Now()) {
			if task.ID == 5 {
				sawCompleted = true
			}
		}
	}

	if _, err := s.ToggleComplete(context.Background(), 5); err != nil {
		t.Fatalf("ToggleComplete: %v", err)
	}
	if !sawCompleted {
		t.Fatal("completed view did not include id 5 while the call was in flight")
	}
}

func TestToggleCompleteRollback(t *testing.T) {
	fp := &fakePersister{updateErr: taskerr.Networkf("update task", "down")}
	s := newTestStore(fp)
	s.Hydrate([]domain.Task{seedTask(2, "flip", time.Now().Add(-time.Hour))})

	if _, err := s.ToggleComplete(context.Background(), 2); !taskerr.IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	got, _ := s.Get(2)
	if got.Completed {
		t.Fatal("rollback left the task completed")
	}
}

func TestToggleChecklistItem(t *testing.T) {
	fp := &fakePersister{}
	s := newTestStore(fp)
	task := seedTask(3, "with checklist", time.Now().Add(-time.Hour))
	task.Checklist = []domain.ChecklistItem{
		{ID: 1, Text: "first"},
		{ID: 2, Text: "second"},
	}
	s.Hydrate([]domain.Task{task})

	got, err := s.ToggleChecklistItem(context.Background(), 3, 2)
	if err != nil {
		t.Fatalf("ToggleChecklistItem: %v", err)
	}
	if !got.Checklist[1].Done || got.Checklist[0].Done {
		t.Fatalf("wrong item toggled: %+v", got.Checklist)
	}

	if _, err := s.ToggleChecklistItem(context.Background(), 3, 99); !taskerr.IsNotFound(err) {
		t.Fatalf("expected not found for missing item, got %v", err)
	}
}

func TestRemoveStaysRemovedOnFailure(t *testing.T) {
	fp := &fakePersister{deleteErr: taskerr.Networkf("delete task", "down")}
	s := newTestStore(fp)
	s.Hydrate([]domain.Task{seedTask(4, "dismissed", time.Now())})

	if err := s.Remove(context.Background(), 4); !taskerr.IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
	if _, ok := s.Get(4); ok {
		t.Fatal("failed remove must not resurrect the task")
	}
}

func TestClearCompleted(t *testing.T) {
	fp := &fakePersister{}
	s := newTestStore(fp)
	done := seedTask(1, "done", time.Now())
	done.Completed = true
	s.Hydrate([]domain.Task{done, seedTask(2, "open", time.Now())})

	if err := s.ClearCompleted(context.Background()); err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if fp.clears != 1 {
		t.Fatalf("expected 1 bulk delete call, got %d", fp.clears)
	}
	tasks := s.Tasks()
	if len(tasks) != 1 || tasks[0].ID != 2 {
		t.Fatalf("unexpected survivors: %+v", tasks)
	}

	// nothing completed left: no backend call
	if err := s.ClearCompleted(context.Background()); err != nil {
		t.Fatalf("second ClearCompleted: %v", err)
	}
	if fp.clears != 1 {
		t.Fatal("bulk delete issued with nothing to clear")
	}
}

func TestApplyIdempotentReconciliation(t *testing.T) {
	s := newTestStore(nil)
	now := time.Now()
	task := seedTask(10, "confirmed", now)

	ev := stream.Event{Type: stream.EventInsert, Task: &task, ID: 10}
	s.Apply(ev)
	first := s.Tasks()
	s.Apply(ev)
	second := s.Tasks()

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("duplicate apply changed cardinality: %d then %d", len(first), len(second))
	}
	if first[0].Title != second[0].Title || !first[0].UpdatedAt.Equal(second[0].UpdatedAt) {
		t.Fatal("duplicate apply changed state")
	}
}

func TestApplyStalenessGuard(t *testing.T) {
	s := newTestStore(nil)
	t1 := time.Now().Add(-time.Minute)
	t2 := time.Now()

	newer := seedTask(11, "newer", t2)
	older := seedTask(11, "older", t1)

	s.Apply(stream.Event{Type: stream.EventUpdate, Task: &newer, ID: 11})
	s.Apply(stream.Event{Type: stream.EventUpdate, Task: &older, ID: 11})

	got, _ := s.Get(11)
	if got.Title != "newer" {
		t.Fatalf("stale update overwrote newer state: %+v", got)
	}
}

func TestApplyInsertForExistingIDIsUpsert(t *testing.T) {
	s := newTestStore(nil)
	s.Hydrate([]domain.Task{seedTask(12, "local copy", time.Now().Add(-time.Minute))})

	remote := seedTask(12, "remote copy", time.Now())
	s.Apply(stream.Event{Type: stream.EventInsert, Task: &remote, ID: 12})

	tasks := s.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("insert for existing id appended a duplicate: %+v", tasks)
	}
	if tasks[0].Title != "remote copy" {
		t.Fatalf("upsert did not take the newer record: %+v", tasks[0])
	}
}

func TestStreamDeleteWinsOverInFlightUpdate(t *testing.T) {
	fp := &fakePersister{}
	s := newTestStore(fp)
	s.Hydrate([]domain.Task{seedTask(7, "contested", time.Now().Add(-time.Hour))})

	// delete event lands while the update's persistence call is in flight
	fp.inFlight = func() {
		s.Apply(stream.Event{Type: stream.EventDelete, ID: 7})
	}

	title := "too late"
	if _, err := s.Update(context.Background(), 7, Patch{Title: &title}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := s.Get(7); ok {
		t.Fatal("update confirmation resurrected a deleted task")
	}
}

func TestInFlightFailureDoesNotResurrectDeleted(t *testing.T) {
	fp := &fakePersister{updateErr: errors.New("boom")}
	s := newTestStore(fp)
	s.Hydrate([]domain.Task{seedTask(8, "contested", time.Now().Add(-time.Hour))})

	fp.inFlight = func() {
		s.Apply(stream.Event{Type: stream.EventDelete, ID: 8})
	}

	title := "x"
	if _, err := s.Update(context.Background(), 8, Patch{Title: &title}); err == nil {
		t.Fatal("expected update to fail")
	}
	if _, ok := s.Get(8); ok {
		t.Fatal("rollback resurrected a deleted task")
	}
}

func TestStaleConfirmationIsDropped(t *testing.T) {
	fp := &fakePersister{}
	s := newTestStore(fp)
	s.Hydrate([]domain.Task{seedTask(9, "base", time.Now().Add(-time.Hour))})

	// a newer stream update lands while the local update is in flight
	fp.inFlight = func() {
		fresher := seedTask(9, "from another device", time.Now().Add(time.Hour))
		s.Apply(stream.Event{Type: stream.EventUpdate, Task: &fresher, ID: 9})
	}

	title := "local edit"
	if _, err := s.Update(context.Background(), 9, Patch{Title: &title}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := s.Get(9)
	if got.Title != "from another device" {
		t.Fatalf("stale confirmation overwrote newer state: %+v", got)
	}
}

type fakeScheduler struct {
	scheduled []int64
	cancelled []int64
}

func (f *fakeScheduler) Schedule(t domain.Task) { f.scheduled = append(f.scheduled, t.ID) }
func (f *fakeScheduler) Cancel(taskID int64)    { f.cancelled = append(f.cancelled, taskID) }

func TestAddArmsFutureReminder(t *testing.T) {
	fs := &fakeScheduler{}
	s := newTestStore(&fakePersister{})
	s.SetReminderScheduler(fs)

	at := time.Now().Add(time.Hour)
	got, err := s.Add(context.Background(), domain.Task{
		Title:            "remind me",
		ReminderEnabled:  true,
		ReminderDateTime: &at,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(fs.scheduled) != 1 || fs.scheduled[0] != got.ID {
		t.Fatalf("scheduled = %v; want [%d]", fs.scheduled, got.ID)
	}
}

func TestAddSkipsPastReminder(t *testing.T) {
	fs := &fakeScheduler{}
	s := newTestStore(&fakePersister{})
	s.SetReminderScheduler(fs)

	at := time.Now().Add(-time.Hour)
	if _, err := s.Add(context.Background(), domain.Task{
		Title:            "too late",
		ReminderEnabled:  true,
		ReminderDateTime: &at,
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(fs.scheduled) != 0 {
		t.Fatalf("past reminder was armed: %v", fs.scheduled)
	}
}

func TestUpdateArmsReminderUnlessSent(t *testing.T) {
	fs := &fakeScheduler{}
	s := newTestStore(&fakePersister{})
	s.Hydrate([]domain.Task{seedTask(6, "plain", time.Now().Add(-time.Hour))})
	s.SetReminderScheduler(fs)

	at := time.Now().Add(time.Hour)
	enabled := true
	if _, err := s.Update(context.Background(), 6, Patch{
		ReminderEnabled:  &enabled,
		ReminderDateTime: &at,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(fs.scheduled) != 1 || fs.scheduled[0] != 6 {
		t.Fatalf("scheduled = %v; want [6]", fs.scheduled)
	}

	sent := true
	if _, err := s.Update(context.Background(), 6, Patch{ReminderSent: &sent}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(fs.scheduled) != 1 {
		t.Fatalf("a sent reminder was re-armed: %v", fs.scheduled)
	}
}

func TestRemovalCancelsReminder(t *testing.T) {
	fs := &fakeScheduler{}
	s := newTestStore(&fakePersister{})
	done := seedTask(2, "done", time.Now())
	done.Completed = true
	s.Hydrate([]domain.Task{seedTask(1, "doomed", time.Now()), done, seedTask(3, "pushed away", time.Now())})
	s.SetReminderScheduler(fs)

	if err := s.Remove(context.Background(), 1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.ClearCompleted(context.Background()); err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	s.Apply(stream.Event{Type: stream.EventDelete, ID: 3})

	want := map[int64]bool{1: true, 2: true, 3: true}
	if len(fs.cancelled) != 3 {
		t.Fatalf("cancelled = %v; want ids 1, 2 and 3", fs.cancelled)
	}
	for _, id := range fs.cancelled {
		if !want[id] {
			t.Fatalf("unexpected cancellation for id %d", id)
		}
	}
}

func TestOnChangeFiresForMutations(t *testing.T) {
	fp := &fakePersister{}
	s := newTestStore(fp)
	changes := 0
	s.OnChange(func() { changes++ })

	if _, err := s.Add(context.Background(), domain.Task{Title: "watched"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if changes == 0 {
		t.Fatal("change hook never fired")
	}
}
