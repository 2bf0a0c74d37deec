package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// mockResult implements Result
type mockResult struct {
	id  int
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	id        int
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
	inFlight  *int32
	maxSeen   *int32
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.inFlight != nil {
		n := atomic.AddInt32(j.inFlight, 1)
		defer atomic.AddInt32(j.inFlight, -1)
		for {
			seen := atomic.LoadInt32(j.maxSeen)
			if n <= seen || atomic.CompareAndSwapInt32(j.maxSeen, seen, n) {
				break
			}
		}
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{id: j.id, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{id: j.id, err: errors.New("job error")}
	}
	return &mockResult{id: j.id}
}

func TestNewPool(t *testing.T) {
	p1 := NewPool(5)
	if p1.Workers() != 5 {
		t.Errorf("expected 5 workers, got %d", p1.Workers())
	}

	p2 := NewPool(0)
	if p2.Workers() != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.Workers())
	}

	p3 := NewPool(-1)
	if p3.Workers() != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.Workers())
	}
}

func TestPool_RunPreservesOrder(t *testing.T) {
	pool := NewPool(4)

	var executed int32
	count := 50
	jobs := make([]Job, count)
	for i := 0; i < count; i++ {
		// later jobs finish first
		jobs[i] = &mockJob{id: i, executed: &executed, duration: time.Duration(count-i) * 100 * time.Microsecond}
	}

	results := pool.Run(context.Background(), jobs)

	if len(results) != count {
		t.Fatalf("expected %d results, got %d", count, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
	for i, r := range results {
		if got := r.(*mockResult).id; got != i {
			t.Errorf("result %d belongs to job %d", i, got)
		}
	}
}

func TestPool_ErrorsAreIsolated(t *testing.T) {
	pool := NewPool(3)

	jobs := []Job{
		&mockJob{id: 0},
		&mockJob{id: 1, shouldErr: true},
		&mockJob{id: 2},
		&mockJob{id: 3, shouldErr: true},
	}

	results := pool.Run(context.Background(), jobs)

	var failed int
	for _, r := range results {
		if r.GetError() != nil {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("expected 2 failures, got %d", failed)
	}
	if results[0].GetError() != nil || results[2].GetError() != nil {
		t.Error("successful jobs reported errors")
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(2)

	var inFlight, maxSeen int32
	jobs := make([]Job, 10)
	for i := range jobs {
		jobs[i] = &mockJob{id: i, duration: 5 * time.Millisecond, inFlight: &inFlight, maxSeen: &maxSeen}
	}

	pool.Run(context.Background(), jobs)

	if got := atomic.LoadInt32(&maxSeen); got > 2 {
		t.Errorf("expected at most 2 concurrent jobs, saw %d", got)
	}
}

func TestPool_Empty(t *testing.T) {
	results := NewPool(2).Run(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []Job{&mockJob{id: 0, duration: time.Second}, &mockJob{id: 1, duration: time.Second}}
	results := NewPool(1).Run(ctx, jobs)

	for i, r := range results {
		if !errors.Is(r.GetError(), context.Canceled) {
			t.Errorf("job %d: expected context.Canceled, got %v", i, r.GetError())
		}
	}
}
