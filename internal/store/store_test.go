package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "generations.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateGetSaveRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	rec := Record{
		ID:         "gen_1",
		InputTopic: "a single-button counter",
		Stage:      "draft",
		IsRunning:  true,
	}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "gen_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatalf("record missing")
	}
	if !got.IsRunning || got.Stage != "draft" || got.InputTopic != "a single-button counter" {
		t.Fatalf("record = %+v", got)
	}
	if got.StartedAtUnixMs <= 0 {
		t.Fatalf("StartedAtUnixMs = %d", got.StartedAtUnixMs)
	}

	got.Stage = "improvement-checklist"
	got.Document = "<!doctype html><html></html>"
	got.TokensInput, got.TokensOutput, got.TokensTotal = 10, 20, 30
	if err := s.Save(ctx, *got); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got2, err := s.Get(ctx, "gen_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got2.Stage != "improvement-checklist" || got2.TokensTotal != 30 {
		t.Fatalf("record after save = %+v", got2)
	}
	if got2.Document == "" {
		t.Fatalf("document lost")
	}
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("got = %+v, want nil", got)
	}
}

func TestStore_CreateDuplicateIDFails(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, Record{ID: "dup"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, Record{ID: "dup"}); err == nil {
		t.Fatalf("duplicate create accepted")
	}
}

func TestStore_SetRunningTruncatesFailure(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, Record{ID: "g", IsRunning: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.SetRunning(ctx, "g", false, strings.Repeat("x", 900)); err != nil {
		t.Fatalf("SetRunning: %v", err)
	}
	got, err := s.Get(ctx, "g")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IsRunning {
		t.Fatalf("still running")
	}
	if len([]rune(got.Failure)) != 600 {
		t.Fatalf("failure length = %d, want 600", len([]rune(got.Failure)))
	}
}

func TestStore_DeleteClearsRecord(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, Record{ID: "g"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(ctx, "g"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := s.Get(ctx, "g")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("record survived delete: %+v", got)
	}
}

func TestStore_ListRecentNewestFirst(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Create(ctx, Record{ID: id}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	// Touch "a" so it becomes the most recently updated.
	time.Sleep(5 * time.Millisecond)
	if err := s.SetRunning(ctx, "a", true, ""); err != nil {
		t.Fatalf("SetRunning: %v", err)
	}
	recs, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d", len(recs))
	}
	if recs[0].ID != "a" {
		t.Fatalf("first = %s, want a", recs[0].ID)
	}
}

func TestStore_NewIDIsSortableAndUnique(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	a := s.NewID()
	b := s.NewID()
	if a == b {
		t.Fatalf("ids collide: %s", a)
	}
	if len(a) != 26 {
		t.Fatalf("unexpected id length %d (%s)", len(a), a)
	}
}

func TestStore_SaveMissingRecordFails(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.Save(context.Background(), Record{ID: "ghost"}); err == nil {
		t.Fatalf("save of missing record accepted")
	}
}

func TestStore_ListActiveFiltersRunning(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for _, rec := range []Record{
		{ID: "gen_a", InputTopic: "a", Stage: "draft", IsRunning: true},
		{ID: "gen_b", InputTopic: "b", Stage: "platform-optimize", IsRunning: false},
		{ID: "gen_c", InputTopic: "c", Stage: "draft", IsRunning: true},
	} {
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("Create %s: %v", rec.ID, err)
		}
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	for _, rec := range active {
		if !rec.IsRunning {
			t.Fatalf("non-running record listed: %+v", rec)
		}
		if rec.ID == "gen_b" {
			t.Fatalf("gen_b should be filtered out")
		}
	}

	if err := s.SetRunning(ctx, "gen_a", false, ""); err != nil {
		t.Fatalf("SetRunning: %v", err)
	}
	active, err = s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].ID != "gen_c" {
		t.Fatalf("active after stop = %+v", active)
	}
}
