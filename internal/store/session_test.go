package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRepository_StartEnd(t *testing.T) {
	s := setupTestStore(t)
	repo := s.Sessions()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sess, err := repo.Start("movenet", start)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sess.ID == "" {
		t.Fatal("Start() should assign an ID")
	}

	got, err := repo.GetByID(sess.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.Active() {
		t.Error("new session should be active")
	}
	if got.Estimator != "movenet" {
		t.Errorf("Estimator = %q, want movenet", got.Estimator)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}

	end := start.Add(time.Minute)
	if err := repo.End(sess.ID, 1800, 4, end); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	got, err = repo.GetByID(sess.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Active() {
		t.Error("ended session should not be active")
	}
	if !got.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, end)
	}
	if got.Frames != 1800 || got.Punches != 4 {
		t.Errorf("counters = %d/%d, want 1800/4", got.Frames, got.Punches)
	}
}

func TestSessionRepository_NotFound(t *testing.T) {
	s := setupTestStore(t)
	repo := s.Sessions()

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if err := repo.End("missing", 0, 0, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("End() error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_List(t *testing.T) {
	s := setupTestStore(t)
	repo := s.Sessions()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := repo.Start("mock", base.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		ids = append(ids, sess.ID)
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List(0) returned %d sessions, want 3", len(all))
	}
	if all[0].ID != ids[2] {
		t.Error("List should return the newest session first")
	}

	limited, err := repo.List(2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(2) returned %d sessions, want 2", len(limited))
	}
}

func TestEventRepository(t *testing.T) {
	s := setupTestStore(t)

	sess, err := s.Sessions().Start("mock", time.Now())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	events := s.Events()
	kinds := []EventKind{EventPunchStart, EventPunchEnd, EventIdle, EventActive, EventPunchStart}
	for _, k := range kinds {
		e := &Event{SessionID: sess.ID, Kind: k, Confidence: 0.75}
		if err := events.Add(e); err != nil {
			t.Fatalf("Add(%s) error = %v", k, err)
		}
		if e.ID == 0 {
			t.Errorf("Add(%s) should set ID", k)
		}
	}

	got, err := events.ListBySession(sess.ID)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(got) != len(kinds) {
		t.Fatalf("got %d events, want %d", len(got), len(kinds))
	}
	for i, k := range kinds {
		if got[i].Kind != k {
			t.Errorf("event %d kind = %s, want %s", i, got[i].Kind, k)
		}
	}

	n, err := events.CountByKind(sess.ID, EventPunchStart)
	if err != nil {
		t.Fatalf("CountByKind() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountByKind(punch_start) = %d, want 2", n)
	}
}

func TestEventRepository_Constraints(t *testing.T) {
	s := setupTestStore(t)

	t.Run("unknown session", func(t *testing.T) {
		err := s.Events().Add(&Event{SessionID: "missing", Kind: EventIdle})
		if err == nil {
			t.Error("expected foreign key violation")
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		sess, _ := s.Sessions().Start("mock", time.Now())
		err := s.Events().Add(&Event{SessionID: sess.ID, Kind: "wave"})
		if err == nil {
			t.Error("expected check constraint violation")
		}
	})
}
