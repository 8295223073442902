// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"testing"
	"time"
)

func TestFakeClock_DefaultTime(t *testing.T) {
	t.Parallel()

	clock := NewFakeClock(time.Time{})
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !clock.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", clock.Now(), want)
	}
}

func TestFakeClock_AfterAdvances(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	got := <-clock.After(time.Minute)
	if !got.Equal(start.Add(time.Minute)) {
		t.Errorf("After fired with %v, want %v", got, start.Add(time.Minute))
	}
	if !clock.Now().Equal(start.Add(time.Minute)) {
		t.Errorf("Now() = %v after waiting a minute", clock.Now())
	}

	<-clock.After(0)
	waits := clock.Waits()
	if len(waits) != 2 || waits[0] != time.Minute || waits[1] != 0 {
		t.Errorf("Waits() = %v", waits)
	}
}
