// Copyright 2025 BlackRoad
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit implements a per-agent sliding-window rate limiter.
//
// Each agent keeps an ordered slice of millisecond timestamps of its
// recorded invocations; entries older than the window are pruned on any
// access. All state is process-local.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the sliding window width.
const DefaultWindow = 60 * time.Second

// Limiter is a sliding-window rate limiter keyed by agent name.
// It is safe for concurrent use; one mutex serializes every
// prune/check/record sequence so two concurrent requests for the same
// agent cannot both slip under the limit.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string][]int64 // agent -> ordered ms timestamps
	now     func() time.Time
}

// Option configures the limiter.
type Option func(*Limiter)

// WithWindow overrides the sliding window width.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		l.window = window
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter with a 60-second window.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		window:  DefaultWindow,
		entries: make(map[string][]int64),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// pruneLocked drops entries older than the window. Caller holds the lock.
func (l *Limiter) pruneLocked(agent string, nowMs int64) []int64 {
	cutoff := nowMs - l.window.Milliseconds()
	entries := l.entries[agent]

	// Entries are in append order, so the first fresh index splits the slice.
	i := 0
	for i < len(entries) && entries[i] <= cutoff {
		i++
	}
	if i > 0 {
		entries = append([]int64(nil), entries[i:]...)
		if len(entries) == 0 {
			delete(l.entries, agent)
		} else {
			l.entries[agent] = entries
		}
	}
	return entries
}

// Check reports whether the agent is under its limit. A limit of zero or
// below disables rate limiting and always passes.
func (l *Limiter) Check(agent string, limit int) bool {
	if limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.pruneLocked(agent, l.now().UnixMilli())
	return len(entries) < limit
}

// Record appends the current timestamp for the agent. The pipeline calls
// this only after a successful dispatch, so failures never consume quota.
func (l *Limiter) Record(agent string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	nowMs := l.now().UnixMilli()
	l.pruneLocked(agent, nowMs)
	l.entries[agent] = append(l.entries[agent], nowMs)
}

// Usage returns the agent's pruned entry count.
func (l *Limiter) Usage(agent string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.pruneLocked(agent, l.now().UnixMilli()))
}

// Reserve atomically checks the limit and, when under it, records an
// entry in the same critical section. It returns false when the agent is
// over its limit. Callers that reserve but then fail to dispatch must
// call Release so the failure does not consume quota.
func (l *Limiter) Reserve(agent string, limit int) bool {
	if limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	nowMs := l.now().UnixMilli()
	entries := l.pruneLocked(agent, nowMs)
	if len(entries) >= limit {
		return false
	}
	l.entries[agent] = append(l.entries[agent], nowMs)
	return true
}

// Release removes the newest entry for the agent, undoing a Reserve
// whose dispatch failed.
func (l *Limiter) Release(agent string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.entries[agent]
	if len(entries) == 0 {
		return
	}
	entries = entries[:len(entries)-1]
	if len(entries) == 0 {
		delete(l.entries, agent)
	} else {
		l.entries[agent] = entries
	}
}
