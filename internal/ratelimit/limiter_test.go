package ratelimit

import (
	"context"
	"testing"
	"time"

	"moatgate.org/internal/store/memory"
)

func TestAllowWithinBudget(t *testing.T) {
	l := NewLimiter(memory.NewRateStore(), time.Minute, 3, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "user:alice")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied inside budget", i)
		}
		if d.Remaining != 3-(i+1) {
			t.Fatalf("request %d remaining=%d", i, d.Remaining)
		}
	}

	d, err := l.Allow(ctx, "user:alice")
	if err != nil {
		t.Fatalf("allow over budget: %v", err)
	}
	if d.Allowed {
		t.Fatal("request over budget admitted")
	}
	if d.RetryAfter != time.Minute {
		t.Fatalf("retry-after = %v", d.RetryAfter)
	}

	// Other keys are unaffected.
	if d, _ := l.Allow(ctx, "ip:10.0.0.1"); !d.Allowed {
		t.Fatal("separate key denied")
	}
}

func TestAuthBudgetIsStricter(t *testing.T) {
	l := NewLimiter(memory.NewRateStore(), time.Minute, 10, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := l.AllowAuth(ctx, "ip:10.0.0.1"); !d.Allowed {
			t.Fatalf("auth attempt %d denied inside budget", i)
		}
	}
	if d, _ := l.AllowAuth(ctx, "ip:10.0.0.1"); d.Allowed {
		t.Fatal("third auth attempt admitted past auth budget")
	}
	// The general budget still has room for the same key.
	if d, _ := l.Allow(ctx, "ip:10.0.0.1"); !d.Allowed {
		t.Fatal("general request denied while under general budget")
	}
}

func TestAuthBudgetClampedToGeneral(t *testing.T) {
	l := NewLimiter(memory.NewRateStore(), time.Minute, 5, 50)
	if l.authLimit != 5 {
		t.Fatalf("authLimit=%d, want clamp to 5", l.authLimit)
	}
}

func TestKeyDerivation(t *testing.T) {
	cases := []struct {
		subject, remote, want string
	}{
		{"u-alice", "10.0.0.1:4242", "user:u-alice"},
		{"  u-alice  ", "10.0.0.1:4242", "user:u-alice"},
		{"", "10.0.0.1:4242", "ip:10.0.0.1"},
		{"", "[::1]:8080", "ip:::1"},
		{"", "10.0.0.1", "ip:10.0.0.1"},
		{"", "", "ip:"},
	}
	for _, tc := range cases {
		if got := Key(tc.subject, tc.remote); got != tc.want {
			t.Fatalf("Key(%q,%q)=%q, want %q", tc.subject, tc.remote, got, tc.want)
		}
	}
}
