/*
Copyright 2024 TillSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pos

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// DrainScheduler serializes drain cycles: at most one cycle runs at a time,
// and any number of requests arriving during a running cycle coalesce into
// exactly one follow-up cycle. Requests are therefore never lost and never
// pile up either.
type DrainScheduler struct {
	run func(ctx context.Context, reasons []string)

	mu       sync.Mutex
	running  bool
	queued   bool
	reasons  []string
	disposed bool
	wg       sync.WaitGroup

	// Completion signal of the in-flight cycle and of the coalesced
	// follow-up. Every caller whose request was folded into the same cycle
	// receives the same channel, so they all resolve together.
	runningDone chan struct{}
	queuedDone  chan struct{}
}

// NewDrainScheduler wraps the given run function. The function receives the
// coalesced reasons that triggered the cycle.
func NewDrainScheduler(run func(ctx context.Context, reasons []string)) *DrainScheduler {
	return &DrainScheduler{run: run}
}

// RequestDrain asks for a drain cycle and returns a channel that is closed
// when the cycle covering this request finishes. If none is running one
// starts immediately; otherwise the request is folded into the single queued
// follow-up cycle. After Dispose every request fails with
// ErrSchedulerDisposed.
func (s *DrainScheduler) RequestDrain(reason string) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrSchedulerDisposed
	}
	if s.running {
		s.queued = true
		s.reasons = append(s.reasons, reason)
		if s.queuedDone == nil {
			s.queuedDone = make(chan struct{})
		}
		return s.queuedDone, nil
	}

	s.running = true
	s.runningDone = make(chan struct{})
	s.wg.Add(1)
	go s.cycle([]string{reason})
	return s.runningDone, nil
}

func (s *DrainScheduler) cycle(reasons []string) {
	defer s.wg.Done()
	for {
		s.run(context.Background(), reasons)

		s.mu.Lock()
		done := s.runningDone
		if !s.queued || s.disposed {
			s.running = false
			s.runningDone = nil
			s.mu.Unlock()
			close(done)
			return
		}
		// Exactly one follow-up, no matter how many requests coalesced.
		s.queued = false
		reasons = s.reasons
		s.reasons = nil
		s.runningDone = s.queuedDone
		s.queuedDone = nil
		s.mu.Unlock()
		close(done)
	}
}

// Dispose stops the scheduler. An in-flight cycle is allowed to finish, but
// the queued follow-up (if any) is dropped, its waiters are released, and
// later requests are rejected.
func (s *DrainScheduler) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.queued = false
	s.reasons = nil
	queuedDone := s.queuedDone
	s.queuedDone = nil
	s.mu.Unlock()

	if queuedDone != nil {
		close(queuedDone)
	}
	logrus.Info("drain scheduler disposed")
}

// Wait blocks until the in-flight cycle (if any) has finished. Used on
// shutdown after Dispose.
func (s *DrainScheduler) Wait() {
	s.wg.Wait()
}
