package challenge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestObserve_ChallengeStallsImmediately(t *testing.T) {
	// WHAT: One challenge signal lands in AwaitingManualResolution.
	// WHY: The transition through ChallengePresented is immediate.
	var mu sync.Mutex
	var transitions [][2]State
	d := New(Config{OnTransition: func(from, to State) {
		mu.Lock()
		transitions = append(transitions, [2]State{from, to})
		mu.Unlock()
	}})

	if got := d.Observe(SignalChallenge); got != StateAwaitingManualResolution {
		t.Fatalf("state = %v, want awaiting_manual_resolution", got)
	}
	want := [][2]State{
		{StateNormal, StateChallengePresented},
		{StateChallengePresented, StateAwaitingManualResolution},
	}
	if diff := cmp.Diff(want, transitions); diff != "" {
		t.Fatalf("transitions (-want +got):\n%s", diff)
	}
	if d.Stalls() != 1 {
		t.Fatalf("Stalls = %d, want 1", d.Stalls())
	}

	// A second challenge while stalled is not a new stall.
	d.Observe(SignalChallenge)
	if d.Stalls() != 1 {
		t.Fatalf("Stalls after repeat = %d, want 1", d.Stalls())
	}
}

func TestObserve_RateLimitIsNotChallenge(t *testing.T) {
	d := New(Config{})
	if got := d.Observe(SignalRateLimited); got != StateNormal {
		t.Fatalf("state = %v, want normal", got)
	}
}

func TestAwaitResolution_NormalReturnsImmediately(t *testing.T) {
	d := New(Config{})
	called := false
	err := d.AwaitResolution(context.Background(), func(context.Context) Signal {
		called = true
		return SignalNormal
	})
	if err != nil || called {
		t.Fatalf("err=%v probed=%v, want nil and no probe", err, called)
	}
}

func TestAwaitResolution_ResumesWhenMarkersReturn(t *testing.T) {
	d := New(Config{PollInterval: 5 * time.Millisecond})
	d.Observe(SignalChallenge)

	var probes atomic.Int32
	err := d.AwaitResolution(context.Background(), func(context.Context) Signal {
		if probes.Add(1) < 3 {
			return SignalChallenge
		}
		return SignalNormal
	})
	if err != nil {
		t.Fatalf("AwaitResolution: %v", err)
	}
	if probes.Load() != 3 {
		t.Fatalf("probes = %d, want 3", probes.Load())
	}
	if d.State() != StateNormal {
		t.Fatalf("state = %v, want normal", d.State())
	}
}

func TestAwaitResolution_UnknownKeepsWaiting(t *testing.T) {
	// WHAT: Probes that cannot read the page never end a stall.
	// WHY: Only positive evidence of the expected content means the
	// challenge was solved.
	d := New(Config{PollInterval: time.Millisecond})
	d.Observe(SignalChallenge)

	var probes atomic.Int32
	err := d.AwaitResolution(context.Background(), func(context.Context) Signal {
		switch n := probes.Add(1); {
		case n <= 3:
			return SignalUnknown
		case n == 4:
			return SignalRateLimited
		}
		return SignalNormal
	})
	if err != nil {
		t.Fatalf("AwaitResolution: %v", err)
	}
	if probes.Load() != 5 {
		t.Fatalf("probes = %d, want 5", probes.Load())
	}
}

func TestObserve_UnknownLeavesStateAlone(t *testing.T) {
	d := New(Config{})
	if got := d.Observe(SignalUnknown); got != StateNormal {
		t.Fatalf("state = %v, want normal", got)
	}
	d.Observe(SignalChallenge)
	if got := d.Observe(SignalUnknown); got != StateAwaitingManualResolution {
		t.Fatalf("state = %v, want awaiting_manual_resolution", got)
	}
}

func TestAwaitResolution_NoTimeoutInterruptibleByShutdown(t *testing.T) {
	// WHAT: The wait never ends on its own and returns on ctx cancel.
	// WHY: Only a human resolves a challenge; shutdown must still work.
	d := New(Config{PollInterval: time.Millisecond})
	d.Observe(SignalChallenge)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.AwaitResolution(ctx, func(context.Context) Signal { return SignalChallenge })
	}()

	select {
	case err := <-done:
		t.Fatalf("AwaitResolution returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitResolution did not return after cancel")
	}
	if d.State() != StateAwaitingManualResolution {
		t.Fatalf("state = %v, want still awaiting", d.State())
	}
}

func TestRecheck_ProbesImmediately(t *testing.T) {
	d := New(Config{PollInterval: time.Hour})
	d.Observe(SignalChallenge)
	d.Recheck()

	done := make(chan error, 1)
	go func() {
		done <- d.AwaitResolution(context.Background(), func(context.Context) Signal { return SignalNormal })
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Recheck did not trigger a probe")
	}
}
