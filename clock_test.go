package scouter_test

import (
	"testing"
	"time"

	"github.com/ffscout/scouter"
)

func TestTestClockFiresTimersOnceTheirDeadlinePasses(t *testing.T) {
	t.Parallel()
	start := time.Now()
	clock := scouter.NewTestClock(start)

	ch, _ := clock.NewTimer(time.Second)
	clock.Add(999 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("expected the timer to wait for its deadline")
	default:
	}

	clock.Add(time.Millisecond)
	select {
	case fired := <-ch:
		if !fired.Equal(start.Add(time.Second)) {
			t.Errorf("unexpected fire time %v", fired)
		}
	default:
		t.Fatal("expected the timer to fire")
	}
	if n := clock.NumTimers(); n != 0 {
		t.Errorf("expected no armed timers, got %d", n)
	}
}

func TestTestClockStoppedTimersNeverFire(t *testing.T) {
	t.Parallel()
	clock := scouter.NewTestClock(time.Now())

	ch, stop := clock.NewTimer(time.Second)
	if !stop() {
		t.Error("expected stop to report an armed timer")
	}
	if stop() {
		t.Error("expected a second stop to be a no-op")
	}
	clock.Add(time.Minute)
	select {
	case <-ch:
		t.Fatal("expected a stopped timer not to fire")
	default:
	}
}

func TestTestClockZeroTimerFiresImmediately(t *testing.T) {
	t.Parallel()
	clock := scouter.NewTestClock(time.Now())

	ch, _ := clock.NewTimer(0)
	select {
	case <-ch:
	default:
		t.Fatal("expected a zero timer to fire straight away")
	}
}

func TestTestClockTickers(t *testing.T) {
	t.Parallel()
	clock := scouter.NewTestClock(time.Now())

	ch, stop := clock.NewTicker(time.Minute)
	for i := 0; i < 3; i++ {
		clock.Add(time.Minute)
		select {
		case <-ch:
		default:
			t.Fatalf("expected tick %d", i+1)
		}
	}

	stop()
	clock.Add(time.Minute)
	select {
	case <-ch:
		t.Fatal("expected a stopped ticker not to tick")
	default:
	}
}
