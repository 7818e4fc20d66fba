package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/customer-insights/internal/jobs"
)

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	run := &jobs.Run{RunID: "r1", Filename: "a.xlsx", Status: jobs.RunStatusPending, Summary: []string{"Total customers: 1"}}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	run.Status = jobs.RunStatusFailed
	run.Summary[0] = "changed"

	got, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != jobs.RunStatusPending || got.Summary[0] != "Total customers: 1" {
		t.Errorf("stored run was mutated: %+v", got)
	}

	if err := s.SaveRun(ctx, &jobs.Run{}); err == nil {
		t.Error("expected error for empty run ID")
	}
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore()

	if _, err := s.GetRun(context.Background(), "missing"); !errors.Is(err, jobs.ErrRunNotFound) {
		t.Errorf("GetRun: expected ErrRunNotFound, got %v", err)
	}
}

func TestStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []jobs.RunStatus{jobs.RunStatusCompleted, jobs.RunStatusFailed, jobs.RunStatusCompleted} {
		run := &jobs.Run{
			RunID:     string(rune('a' + i)),
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.RunFilter
		want   []string
	}{
		{name: "all newest first", want: []string{"c", "b", "a"}},
		{name: "by status", filter: jobs.RunFilter{Status: jobs.RunStatusCompleted}, want: []string{"c", "a"}},
		{name: "limit", filter: jobs.RunFilter{Limit: 1}, want: []string{"c"}},
		{name: "offset", filter: jobs.RunFilter{Offset: 2}, want: []string{"a"}},
		{name: "offset past end", filter: jobs.RunFilter{Offset: 5}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListRuns(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListRuns failed: %v", err)
			}
			if len(runs) != len(tt.want) {
				t.Fatalf("got %d runs, want %d", len(runs), len(tt.want))
			}
			for i, id := range tt.want {
				if runs[i].RunID != id {
					t.Errorf("runs[%d] = %s, want %s", i, runs[i].RunID, id)
				}
			}
		})
	}
}
