package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
	err      error
}

func (l *fakeLock) TryLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released = append(l.released, key)
		return nil
	}, true, nil
}

type jobObserver struct {
	runs map[string][]error
}

func (o *jobObserver) ObserveJob(job string, err error, _ time.Duration) {
	o.runs[job] = append(o.runs[job], err)
}

func TestRunOnce_ExclusiveReleasesLock(t *testing.T) {
	lock := &fakeLock{held: map[string]bool{}}
	obs := &jobObserver{runs: map[string][]error{}}
	s := New(lock, time.Minute, obs)

	ran := 0
	err := s.RunOnce(context.Background(), Job{Name: "recompute-open-lots", Exclusive: true, Run: func(context.Context) error {
		ran++
		assert.True(t, lock.held["recompute-open-lots"])
		return nil
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{"recompute-open-lots"}, lock.released)
	assert.Equal(t, []error{nil}, obs.runs["recompute-open-lots"])
}

func TestRunOnce_SkipsWhenHeldElsewhere(t *testing.T) {
	lock := &fakeLock{held: map[string]bool{"reconcile-scan": true}}
	s := New(lock, time.Minute, nil)

	err := s.RunOnce(context.Background(), Job{Name: "reconcile-scan", Exclusive: true, Run: func(context.Context) error {
		t.Fatal("must not run")
		return nil
	}})
	assert.NoError(t, err)
}

func TestRunOnce_LockErrorAndJobError(t *testing.T) {
	boom := errors.New("redis down")
	s := New(&fakeLock{held: map[string]bool{}, err: boom}, time.Minute, nil)
	err := s.RunOnce(context.Background(), Job{Name: "x", Exclusive: true, Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, boom)

	obs := &jobObserver{runs: map[string][]error{}}
	s = New(nil, 0, obs)
	failure := errors.New("failed")
	err = s.RunOnce(context.Background(), Job{Name: "relay", Run: func(context.Context) error { return failure }})
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, []error{failure}, obs.runs["relay"])
}

func TestRunOnce_Timeout(t *testing.T) {
	s := New(nil, 0, nil)
	err := s.RunOnce(context.Background(), Job{Name: "slow", Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdd_Validation(t *testing.T) {
	s := New(nil, 0, nil)
	assert.Error(t, s.Add(Job{Name: "x", Spec: "* * * * *", Exclusive: true, Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Job{Name: "y", Spec: "not a spec", Run: func(context.Context) error { return nil }}))
	assert.NoError(t, s.Add(Job{Name: "z", Spec: "@every 1h", Run: func(context.Context) error { return nil }}))
}
