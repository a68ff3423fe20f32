package xcron

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats 执行统计，并发安全。
type Stats struct {
	total   atomic.Int64
	success atomic.Int64
	failure atomic.Int64
	skip    atomic.Int64

	mu   sync.RWMutex
	jobs map[string]*JobStats
}

// JobStats 单个任务的统计快照。
type JobStats struct {
	Name         string
	Executions   int64
	Failures     int64
	Skips        int64
	LastExecTime time.Time
	LastDuration time.Duration
	LastError    error
}

func newStats() *Stats {
	return &Stats{jobs: make(map[string]*JobStats)}
}

func (s *Stats) TotalExecutions() int64 { return s.total.Load() }
func (s *Stats) SuccessCount() int64    { return s.success.Load() }
func (s *Stats) FailureCount() int64    { return s.failure.Load() }

// SkipCount 因未获取到锁而跳过的次数。
func (s *Stats) SkipCount() int64 { return s.skip.Load() }

// Job 返回任务统计的副本，未执行过的任务返回 false。
func (s *Stats) Job(name string) (JobStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	js, ok := s.jobs[name]
	if !ok {
		return JobStats{}, false
	}
	return *js, true
}

func (s *Stats) recordExecution(name string, d time.Duration, err error) {
	s.total.Add(1)
	if err != nil {
		s.failure.Add(1)
	} else {
		s.success.Add(1)
	}
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	js := s.job(name)
	js.Executions++
	if err != nil {
		js.Failures++
	}
	js.LastExecTime = time.Now()
	js.LastDuration = d
	js.LastError = err
}

func (s *Stats) recordSkip(name string) {
	s.skip.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job(name).Skips++
}

func (s *Stats) job(name string) *JobStats {
	js, ok := s.jobs[name]
	if !ok {
		js = &JobStats{Name: name}
		s.jobs[name] = js
	}
	return js
}
