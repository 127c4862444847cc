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

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// fakeClock advances manually so window behavior is deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_CheckAndRecord(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	if !l.Check("lucidia", 2) {
		t.Fatal("fresh agent should be under the limit")
	}
	l.Record("lucidia")
	l.Record("lucidia")

	if l.Check("lucidia", 2) {
		t.Error("agent at the limit should fail Check")
	}
	if l.Usage("lucidia") != 2 {
		t.Errorf("Usage = %d, want 2", l.Usage("lucidia"))
	}

	// Another agent's quota is independent.
	if !l.Check("cipher", 2) {
		t.Error("other agents keep their own window")
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	l.Record("lucidia")
	l.Record("lucidia")
	if l.Check("lucidia", 2) {
		t.Fatal("agent should be at the limit")
	}

	// One millisecond past the window the entries expire.
	clock.Advance(DefaultWindow + time.Millisecond)
	if !l.Check("lucidia", 2) {
		t.Error("entries older than the window should be pruned")
	}
	if l.Usage("lucidia") != 0 {
		t.Errorf("Usage = %d after expiry, want 0", l.Usage("lucidia"))
	}
}

func TestLimiter_ZeroLimitDisables(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		l.Record("lucidia")
	}
	if !l.Check("lucidia", 0) {
		t.Error("limit 0 should always pass")
	}
	if !l.Reserve("lucidia", 0) {
		t.Error("Reserve with limit 0 should always pass")
	}
}

func TestLimiter_ReserveRelease(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	if !l.Reserve("lucidia", 1) {
		t.Fatal("first Reserve should pass")
	}
	if l.Reserve("lucidia", 1) {
		t.Fatal("second Reserve should fail at the limit")
	}

	// A failed dispatch releases its reservation.
	l.Release("lucidia")
	if !l.Reserve("lucidia", 1) {
		t.Error("Reserve should pass again after Release")
	}
}

func TestLimiter_ConcurrentReserveNeverOverAdmits(t *testing.T) {
	const limit = 10
	const workers = 100

	l := New()
	var count int64
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve("lucidia", limit) {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count != limit {
		t.Errorf("admitted %d of %d concurrent requests, want exactly %d", count, workers, limit)
	}
	if l.Usage("lucidia") != limit {
		t.Errorf("Usage = %d, want %d", l.Usage("lucidia"), limit)
	}
}

// Property: however Record, Reserve, and time advances interleave, the
// pruned usage never exceeds the limit enforced by Reserve.
func TestLimiter_UsageNeverExceedsLimit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Reserve keeps usage at or under the limit", prop.ForAll(
		func(limit int, steps []int8) bool {
			clock := newFakeClock()
			l := New(WithClock(clock.Now))

			for _, step := range steps {
				switch {
				case step < 0:
					clock.Advance(time.Duration(-step) * time.Second)
				default:
					l.Reserve("agent", limit)
				}
				if l.Usage("agent") > limit {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.SliceOf(gen.Int8Range(-70, 1)),
	))

	properties.TestingRun(t)
}
