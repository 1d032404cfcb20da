// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() moved without Advance: %v", got)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockSet(t *testing.T) {
	clock := Fake(epoch)
	earlier := epoch.Add(-time.Hour)
	clock.Set(earlier)
	if got := clock.Now(); !got.Equal(earlier) {
		t.Fatalf("Now() after Set = %v, want %v", got, earlier)
	}
}

func TestFakeClockAutoAdvance(t *testing.T) {
	clock := Fake(epoch)
	clock.AutoAdvance(time.Millisecond)

	start := clock.Now()
	if elapsed := Since(clock, start); elapsed != time.Millisecond {
		t.Fatalf("Since() = %v, want 1ms", elapsed)
	}
	if got := clock.Now(); !got.Equal(epoch.Add(2 * time.Millisecond)) {
		t.Fatalf("Now() = %v, want epoch+2ms", got)
	}
}

func TestFakeClockConcurrentAdvance(t *testing.T) {
	clock := Fake(epoch)
	var group sync.WaitGroup
	for range 50 {
		group.Add(1)
		go func() {
			defer group.Done()
			clock.Advance(time.Second)
			clock.Now()
		}()
	}
	group.Wait()
	if got := clock.Now(); !got.Equal(epoch.Add(50 * time.Second)) {
		t.Fatalf("Now() = %v, want epoch+50s", got)
	}
}

func TestRealClock(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	if got.Before(before) {
		t.Fatalf("Real().Now() = %v, before %v", got, before)
	}
}
