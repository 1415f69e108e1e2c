// SPDX-FileCopyrightText: 2022 The dtn7-sim Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"container/heap"
	"math/rand"
	"time"
)

type event struct {
	at   time.Duration
	seq  uint64
	fn   func()
	dead bool
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x interface{}) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Scheduler is a discrete-event scheduler with a virtual clock. Events scheduled for the same virtual
// time are executed in the order they were scheduled.
type Scheduler struct {
	now   time.Duration
	seq   uint64
	queue eventQueue
	rng   *rand.Rand
}

// NewScheduler starting at virtual time zero with a seeded random number generator.
func NewScheduler(seed int64) *Scheduler {
	return &Scheduler{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Now is the current virtual time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// Uniform returns a pseudo-random number in [0, 1).
func (s *Scheduler) Uniform() float64 {
	return s.rng.Float64()
}

// Jitter returns a pseudo-random duration in [0, max).
func (s *Scheduler) Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(s.Uniform() * float64(max))
}

func (s *Scheduler) schedule(at time.Duration, fn func()) *event {
	if at < s.now {
		at = s.now
	}

	e := &event{at: at, seq: s.seq, fn: fn}
	s.seq++
	heap.Push(&s.queue, e)
	return e
}

// At schedules fn for an absolute virtual time. Times in the past are clamped to now.
func (s *Scheduler) At(at time.Duration, fn func()) {
	s.schedule(at, fn)
}

// After schedules fn relative to now.
func (s *Scheduler) After(d time.Duration, fn func()) {
	s.schedule(s.now+d, fn)
}

// Pending is the amount of scheduled events, including invalidated ones.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Step executes the next event. It returns false if no event is left.
func (s *Scheduler) Step() bool {
	for len(s.queue) > 0 {
		e := heap.Pop(&s.queue).(*event)
		if e.dead {
			continue
		}

		s.now = e.at
		e.fn()
		return true
	}
	return false
}

// RunUntil executes all events up to and including the given virtual time, which becomes the current
// time afterwards.
func (s *Scheduler) RunUntil(until time.Duration) {
	for len(s.queue) > 0 && s.queue[0].at <= until {
		if e := s.queue[0]; e.dead {
			heap.Pop(&s.queue)
			continue
		}
		s.Step()
	}
	if s.now < until {
		s.now = until
	}
}

// Run executes events until none is left.
func (s *Scheduler) Run() {
	for s.Step() {
	}
}

// Timer is a reschedulable callback. Only its most recent schedule fires; older ones are invalidated.
type Timer struct {
	s       *Scheduler
	fn      func()
	pending *event
}

// NewTimer for fn, not yet scheduled.
func (s *Scheduler) NewTimer(fn func()) *Timer {
	return &Timer{s: s, fn: fn}
}

// Reset (re)schedules this Timer for an absolute virtual time, invalidating a pending firing.
func (t *Timer) Reset(at time.Duration) {
	t.Stop()

	var e *event
	e = t.s.schedule(at, func() {
		if t.pending == e {
			t.pending = nil
		}
		t.fn()
	})
	t.pending = e
}

// Stop invalidates a pending firing. It reports if there was one.
func (t *Timer) Stop() bool {
	if t.pending == nil {
		return false
	}

	t.pending.dead = true
	t.pending = nil
	return true
}

// Pending checks if this Timer will fire.
func (t *Timer) Pending() bool {
	return t.pending != nil
}
