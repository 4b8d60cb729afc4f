// Package job tracks asynchronous API work such as backtest runs.
package job

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quarry/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Job represents an async job.
type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Result    any       `json:"result,omitempty"`
	Error     *Failure  `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Failure describes why a job failed.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == StatusComplete || j.Status == StatusFailed
}

// Func is the work a job runs.
type Func func(ctx context.Context) (any, error)

// Store manages async jobs. Finished jobs older than ttl are pruned on Create.
type Store struct {
	jobs    map[string]*Job
	order   []string // insertion order for eviction
	maxSize int
	ttl     time.Duration
	mu      sync.RWMutex
	wg      sync.WaitGroup

	// OnActive, if set, is called with the running job count of a type whenever it changes.
	OnActive func(jobType string, active int)
	active   map[string]int
}

// NewStore creates a new job store.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		active:  make(map[string]int),
	}
}

// Create creates a new pending job and returns a copy.
func (s *Store) Create(jobType string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.prune(now)

	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if len(s.jobs) >= s.maxSize && len(s.order) > 0 {
		oldest := s.order[0]
		delete(s.jobs, oldest)
		s.order = s.order[1:]
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	jobCopy := *job
	return &jobCopy
}

// Start creates a job and runs fn in a goroutine with the given timeout.
func (s *Store) Start(jobType string, timeout time.Duration, fn Func) *Job {
	j := s.Create(jobType)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(j.ID, jobType, timeout, fn)
	}()
	return j
}

// Run executes fn synchronously as a tracked job and returns the finished job.
func (s *Store) Run(ctx context.Context, jobType string, timeout time.Duration, fn Func) *Job {
	j := s.Create(jobType)
	s.runWith(ctx, j.ID, jobType, timeout, fn)
	done, _ := s.Get(j.ID)
	return done
}

// Wait blocks until every started job has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) run(id, jobType string, timeout time.Duration, fn Func) {
	s.runWith(context.Background(), id, jobType, timeout, fn)
}

func (s *Store) runWith(parent context.Context, id, jobType string, timeout time.Duration, fn Func) {
	s.Update(id, func(j *Job) { j.Status = StatusRunning })
	s.track(jobType, 1)
	defer s.track(jobType, -1)

	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	result, err := fn(ctx)
	s.Update(id, func(j *Job) {
		if err != nil {
			j.Status = StatusFailed
			j.Error = failure(err)
			return
		}
		j.Status = StatusComplete
		j.Progress = 100
		j.Result = result
	})
}

func (s *Store) track(jobType string, delta int) {
	s.mu.Lock()
	s.active[jobType] += delta
	n := s.active[jobType]
	s.mu.Unlock()
	if s.OnActive != nil {
		s.OnActive(jobType, n)
	}
}

// Get retrieves a copy of a job by ID.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, notFound(id)
	}
	jobCopy := *job
	return &jobCopy, nil
}

// Update modifies a job using an update function.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return notFound(id)
	}

	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// List returns all jobs, newest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		result = append(result, *job)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

// prune drops finished jobs past their ttl. Callers hold s.mu.
func (s *Store) prune(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Done() && now.Sub(j.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func failure(err error) *Failure {
	var ce *core.Error
	switch {
	case errors.As(err, &ce):
	case errors.Is(err, context.DeadlineExceeded):
		ce = &core.Error{Code: "TIMEOUT", Message: "job exceeded its time limit", Cause: err}
	default:
		ce = &core.Error{Code: "INTERNAL_ERROR", Message: "job failed", Cause: err}
	}
	f := &Failure{Code: ce.Code, Message: ce.Message}
	if ce.Cause != nil {
		f.Cause = ce.Cause.Error()
	}
	return f
}

func notFound(id string) error {
	return core.WrapError(core.ErrNotFound, fmt.Errorf("job %q", id))
}
