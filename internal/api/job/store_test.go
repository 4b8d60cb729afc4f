// internal/api/job/store_test.go
package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/quarry/internal/core"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(100, time.Hour)

	job := store.Create("backtest")
	if job.ID == "" {
		t.Error("expected job ID")
	}
	if job.Status != StatusPending {
		t.Errorf("expected pending, got %s", job.Status)
	}

	retrieved, err := store.Get(job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.ID != job.ID {
		t.Error("IDs don't match")
	}
}

func TestStore_Update(t *testing.T) {
	store := NewStore(100, time.Hour)
	job := store.Create("backtest")

	err := store.Update(job.ID, func(j *Job) {
		j.Status = StatusRunning
		j.Progress = 50
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	retrieved, _ := store.Get(job.ID)
	if retrieved.Status != StatusRunning {
		t.Errorf("expected running, got %s", retrieved.Status)
	}
	if retrieved.Progress != 50 {
		t.Errorf("expected 50, got %d", retrieved.Progress)
	}
}

func TestStore_MaxSize(t *testing.T) {
	store := NewStore(2, time.Hour)

	job1 := store.Create("backtest")
	store.Create("backtest")
	store.Create("backtest") // Should evict job1

	_, err := store.Get(job1.ID)
	if err == nil {
		t.Error("expected job1 to be evicted")
	}
}

func TestStore_NotFound(t *testing.T) {
	store := NewStore(100, time.Hour)

	_, err := store.Get("nonexistent")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := store.Update("nonexistent", func(*Job) {}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found on update, got %v", err)
	}
}

func TestStore_List(t *testing.T) {
	store := NewStore(100, time.Hour)
	store.Create("backtest")
	store.Create("verify")

	jobs := store.List()
	if len(jobs) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(jobs))
	}
}

func TestStore_StartCompletes(t *testing.T) {
	store := NewStore(10, time.Hour)

	var mu sync.Mutex
	var seen []int
	store.OnActive = func(jobType string, active int) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, active)
	}

	j := store.Start("backtest", time.Second, func(ctx context.Context) (any, error) {
		return "done", nil
	})
	store.Wait()

	got, err := store.Get(j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusComplete || got.Progress != 100 || got.Result != "done" {
		t.Errorf("unexpected job: %+v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 0 {
		t.Errorf("expected active counts [1 0], got %v", seen)
	}
}

func TestStore_RunFailures(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		fn       Func
		wantCode string
	}{
		{
			name: "coded error kept",
			fn: func(ctx context.Context) (any, error) {
				return nil, core.WrapError(core.ErrNotFound, errors.New("strategy"))
			},
			wantCode: "NOT_FOUND",
		},
		{
			name: "plain error wrapped",
			fn: func(ctx context.Context) (any, error) {
				return nil, errors.New("boom")
			},
			wantCode: "INTERNAL_ERROR",
		},
		{
			name:    "timeout",
			timeout: 10 * time.Millisecond,
			fn: func(ctx context.Context) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantCode: "TIMEOUT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(10, time.Hour)
			j := store.Run(context.Background(), "backtest", tt.timeout, tt.fn)
			if j.Status != StatusFailed {
				t.Fatalf("expected failed, got %s", j.Status)
			}
			if j.Error == nil || j.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %+v", tt.wantCode, j.Error)
			}
		})
	}
}

func TestStore_PrunesFinishedJobs(t *testing.T) {
	store := NewStore(10, time.Minute)
	old := store.Create("backtest")
	running := store.Create("backtest")

	store.Update(old.ID, func(j *Job) { j.Status = StatusComplete })
	store.mu.Lock()
	store.jobs[old.ID].UpdatedAt = time.Now().Add(-time.Hour)
	store.jobs[running.ID].UpdatedAt = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	store.Create("backtest")

	if _, err := store.Get(old.ID); err == nil {
		t.Error("expected finished job past ttl to be pruned")
	}
	if _, err := store.Get(running.ID); err != nil {
		t.Error("unfinished jobs are never pruned")
	}
}
