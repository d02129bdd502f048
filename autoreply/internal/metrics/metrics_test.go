package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.Decision("replied")
	m.Cycle("ok", time.Second)
	m.Classified("ok", time.Millisecond)
	m.ChallengeTransition("normal", false)
	m.Breaker(true)
	m.Dedupe(3)
	m.PersistFailed()
}

func TestRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, []string{"replied", "skipped_cooldown_active"})

	m.Decision("replied")
	m.Decision("replied")
	m.Dedupe(42)
	m.ChallengeTransition("awaiting_manual_resolution", true)

	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("replied")); got != 2 {
		t.Fatalf("decisions{replied} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DedupeSize); got != 42 {
		t.Fatalf("dedupe_ids = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.ChallengeActive); got != 1 {
		t.Fatalf("challenge_active = %v, want 1", got)
	}
	// Pre-registered kinds are exported at zero.
	if n := testutil.CollectAndCount(m.Decisions); n != 2 {
		t.Fatalf("decision series = %d, want 2", n)
	}
}
