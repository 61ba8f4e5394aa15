package credential

import (
	"context"
	"testing"
	"time"
)

// fakeClock lets tests advance time deterministically instead of sleeping.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

// S1 — one credential, rpm_limit=3: the first three acquires succeed
// immediately; the fourth must wait until the window ages out.
func TestPool_RateLimitEnforcement(t *testing.T) {
	p := New(Gemini, []Config{{Key: "k1"}}, WithGlobalRPMLimit(100), WithAcquireTimeout(100*time.Millisecond))
	p.records[0].RPMLimit = 3

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := p.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: unexpected error %v", i, err)
		}
	}

	// A 4th immediate acquire should time out: the window isn't stale yet.
	if _, err := p.Acquire(ctx); err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPool_ReportSuccessResetsConsecutiveErrors(t *testing.T) {
	p := New(Gemini, []Config{{Key: "k1"}})
	p.ReportError("k1", ErrorGeneral)
	p.ReportError("k1", ErrorGeneral)
	p.ReportSuccess("k1")

	snap := p.Snapshot()[0]
	if snap.ConsecutiveErrors != 0 {
		t.Fatalf("expected consecutive errors reset to 0, got %d", snap.ConsecutiveErrors)
	}
}

// S3 — session-fatal exhaustion: 20 general errors skip the credential
// and mark the pool session_fatal; further Acquire calls fail fast.
func TestPool_SessionFatalExhaustion(t *testing.T) {
	p := New(Gemini, []Config{{Key: "k1"}})
	for i := 0; i < 20; i++ {
		p.ReportError("k1", ErrorGeneral)
	}

	if !p.SessionFatal() {
		t.Fatal("expected pool to be session_fatal after 20 errors")
	}

	start := time.Now()
	_, err := p.Acquire(context.Background())
	if err != ErrPoolExhausted {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("expected PoolExhausted to return without blocking")
	}
}

func TestPool_ReportErrorCooldownKinds(t *testing.T) {
	t.Run("rate_limit cools immediately", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1000, 0)}
		p := New(Gemini, []Config{{Key: "k1"}}, WithClock(clock.now))
		p.ReportError("k1", ErrorRateLimit)
		snap := p.Snapshot()[0]
		if !snap.CoolingUntil.After(clock.t) {
			t.Fatal("expected credential to be cooling after a rate_limit error")
		}
	})

	t.Run("invalid_key cools for an hour", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(2000, 0)}
		p := New(Gemini, []Config{{Key: "k1"}}, WithClock(clock.now))
		p.ReportError("k1", ErrorInvalidKey)
		snap := p.Snapshot()[0]
		want := clock.t.Add(3600 * time.Second)
		if !snap.CoolingUntil.Equal(want) {
			t.Fatalf("expected cooling_until=%v, got %v", want, snap.CoolingUntil)
		}
	})

	t.Run("general errors below threshold do not cool", func(t *testing.T) {
		p := New(Gemini, []Config{{Key: "k1"}})
		p.ReportError("k1", ErrorGeneral)
		p.ReportError("k1", ErrorGeneral)
		snap := p.Snapshot()[0]
		if !snap.CoolingUntil.IsZero() {
			t.Fatal("expected no cooldown before 5 consecutive general errors")
		}
	})
}

func TestPool_MaxConcurrency(t *testing.T) {
	cases := []struct {
		name    string
		configs []Config
		want    int
	}{
		{"single credential", []Config{{Key: "a", RPM: 15}}, 3},
		{"never below 1", []Config{{Key: "a", RPM: 1}}, 1},
		{"multi credential", []Config{{Key: "a", RPM: 15}, {Key: "b", RPM: 15}}, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := New(Gemini, c.configs)
			if got := p.MaxConcurrency(); got != c.want {
				t.Fatalf("MaxConcurrency() = %d, want %d", got, c.want)
			}
		})
	}
}

func TestPool_SkippedAndCoolingCredentialsNeverReturned(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := New(Gemini, []Config{{Key: "a"}, {Key: "b"}}, WithClock(clock.now), WithAcquireTimeout(50*time.Millisecond))
	p.ReportError("a", ErrorInvalidKey) // cools for an hour

	for i := 0; i < 5; i++ {
		rec, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if rec.Key == "a" {
			t.Fatal("cooling credential must never be returned")
		}
	}
}
