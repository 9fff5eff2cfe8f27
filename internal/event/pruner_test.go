package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestSQLiteRepository_DeleteBefore(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	ages := []time.Duration{10 * 24 * time.Hour, 8 * 24 * time.Hour, time.Hour, 0}
	for _, age := range ages {
		ev := &Event{Type: TypeDevice, Name: "playing", Value: json.RawMessage(`{}`), CreatedAt: now.Add(-age)}
		if err := repo.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	pruner := NewPruner(repo, 7*24*time.Hour, time.Minute)
	pruner.now = func() time.Time { return now }

	n, err := pruner.PruneOnce(ctx)
	if err != nil {
		t.Fatalf("PruneOnce() error = %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d events, want 2", n)
	}

	left, err := repo.ListByType(ctx, TypeDevice, 0, 10)
	if err != nil {
		t.Fatalf("ListByType() error = %v", err)
	}
	if len(left) != 2 {
		t.Errorf("remaining = %d, want 2", len(left))
	}
	for _, ev := range left {
		if !ev.CreatedAt.After(now.Add(-7 * 24 * time.Hour)) {
			t.Errorf("event from %v should have been pruned", ev.CreatedAt)
		}
	}
}

func TestSQLiteRepository_InsertAssignsIdentity(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	a := &Event{Type: TypeDevice, Name: "x"}
	b := &Event{Type: TypeDevice, Name: "y"}
	for _, ev := range []*Event{a, b} {
		if err := repo.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids = %q, %q", a.ID, b.ID)
	}
	if b.Seq <= a.Seq {
		t.Errorf("seq not increasing: %d then %d", a.Seq, b.Seq)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if string(got.Value) != "null" {
		t.Errorf("empty value stored as %s, want null", got.Value)
	}
	if !got.CreatedAt.Equal(a.CreatedAt.UTC()) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, a.CreatedAt)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("GetByID(missing) = %v, want ErrEventNotFound", err)
	}
}

func TestNewPruner_Defaults(t *testing.T) {
	p := NewPruner(nil, 0, 0)
	if p.retention != DefaultRetention || p.interval != DefaultPruneInterval {
		t.Errorf("defaults = %v / %v", p.retention, p.interval)
	}
}

func TestPruner_RunStopsOnCancel(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	p := NewPruner(repo, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
