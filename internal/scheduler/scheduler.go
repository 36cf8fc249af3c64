// Package scheduler runs keyed one-shot deferred actions that can be cancelled before they fire.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	statePending int32 = iota
	stateFired
	stateCancelled
)

// Job is a scheduled action. A job runs at most once and never after a
// successful Cancel.
type Job struct {
	key   string
	state atomic.Int32
	timer *time.Timer
	owner *Scheduler
}

// Cancel prevents the job from running. It reports false when the job has
// already fired or was cancelled before.
func (j *Job) Cancel() bool {
	if !j.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	j.timer.Stop()
	j.owner.forget(j)
	return true
}

// Scheduler tracks pending jobs by key.
type Scheduler struct {
	logger  *zap.Logger
	mutex   sync.Mutex
	jobs    map[*Job]struct{}
	byKey   map[string][]*Job
	stopped bool
}

// New creates an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		jobs:   make(map[*Job]struct{}),
		byKey:  make(map[string][]*Job),
	}
}

// ScheduleOnce runs action after delay. Jobs with an empty key are not
// findable by key. Returns nil once the scheduler has been stopped.
func (s *Scheduler) ScheduleOnce(delay time.Duration, key string, action func()) *Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		s.logger.Warn("Scheduler stopped, dropping job", zap.String("key", key))
		return nil
	}

	job := &Job{
		key:   key,
		owner: s,
	}
	job.timer = time.AfterFunc(delay, func() { s.fire(job, action) })

	s.jobs[job] = struct{}{}
	if key != "" {
		s.byKey[key] = append(s.byKey[key], job)
	}

	return job
}

func (s *Scheduler) fire(job *Job, action func()) {
	if !job.state.CompareAndSwap(statePending, stateFired) {
		return
	}
	s.forget(job)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scheduled job panicked",
				zap.String("key", job.key),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	action()
}

func (s *Scheduler) forget(job *Job) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.jobs, job)
	if job.key == "" {
		return
	}

	list := s.byKey[job.key]
	for i, j := range list {
		if j == job {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.byKey, job.key)
	} else {
		s.byKey[job.key] = list
	}
}

// FindByKey returns the pending jobs scheduled under key.
func (s *Scheduler) FindByKey(key string) []*Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]*Job(nil), s.byKey[key]...)
}

// CancelByKey cancels every pending job under key and returns how many were
// cancelled. Callers expecting exactly one treat any other count as an anomaly.
func (s *Scheduler) CancelByKey(key string) int {
	cancelled := 0
	for _, job := range s.FindByKey(key) {
		if job.Cancel() {
			cancelled++
		}
	}
	return cancelled
}

// Pending returns the number of jobs that have not fired or been cancelled.
func (s *Scheduler) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.jobs)
}

// Stop cancels every pending job and rejects new ones.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	s.stopped = true
	pending := make([]*Job, 0, len(s.jobs))
	for job := range s.jobs {
		pending = append(pending, job)
	}
	s.mutex.Unlock()

	for _, job := range pending {
		job.Cancel()
	}
	s.logger.Debug("Scheduler stopped", zap.Int("cancelled", len(pending)))
}
