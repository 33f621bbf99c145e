package bucket

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/vnykmshr/taskpool/internal/testutil"
	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
)

// MockClock implements Clock for testing
type MockClock struct {
	now time.Time
}

func (m *MockClock) Now() time.Time {
	return m.now
}

func (m *MockClock) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		rate    Limit
		burst   int
		wantErr bool
	}{
		{"valid parameters", 10, 5, false},
		{"zero rate", 0, 5, false},
		{"infinite rate", Inf, 5, false},
		{"negative rate", -1, 5, true},
		{"zero burst", 10, 0, true},
		{"negative burst", 10, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := New(tt.rate, tt.burst)
			if tt.wantErr {
				var verr *tperrors.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if limiter != nil {
					t.Error("expected nil limiter on error")
				}
				return
			}

			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, limiter.Limit(), tt.rate)
			testutil.AssertEqual(t, limiter.Burst(), tt.burst)
			testutil.AssertEqual(t, limiter.Tokens(), float64(tt.burst))
		})
	}
}

func TestEvery(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     Limit
	}{
		{"100ms", 100 * time.Millisecond, 10},
		{"1s", time.Second, 1},
		{"2s", 2 * time.Second, 0.5},
		{"zero", 0, Inf},
		{"negative", -time.Second, Inf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Every(tt.interval)
			if math.IsInf(float64(tt.want), 1) {
				if !math.IsInf(float64(got), 1) {
					t.Errorf("Every(%v) = %v, want Inf", tt.interval, got)
				}
				return
			}
			if math.Abs(float64(got-tt.want)) > 1e-10 {
				t.Errorf("Every(%v) = %v, want %v", tt.interval, got, tt.want)
			}
		})
	}
}

func TestAllow(t *testing.T) {
	clock := &MockClock{now: time.Now()}
	limiter, err := NewWithConfig(Config{
		Rate:          10,
		Burst:         5,
		Clock:         clock,
		InitialTokens: 5,
	})
	testutil.AssertNoError(t, err)

	for i := 0; i < 5; i++ {
		if !limiter.Allow() {
			t.Errorf("event %d should be allowed", i+1)
		}
	}
	if limiter.Allow() {
		t.Error("6th event should be denied")
	}

	// 10 tokens/sec refills one token every 100ms
	clock.Advance(100 * time.Millisecond)
	if !limiter.Allow() {
		t.Error("event after 100ms should be allowed")
	}
	if limiter.Allow() {
		t.Error("event after consuming the refilled token should be denied")
	}
}

func TestAllowN(t *testing.T) {
	clock := &MockClock{now: time.Now()}
	limiter, err := NewWithConfig(Config{
		Rate:          10,
		Burst:         10,
		Clock:         clock,
		InitialTokens: -1,
	})
	testutil.AssertNoError(t, err)

	if !limiter.AllowN(3) {
		t.Error("AllowN(3) should succeed with 10 tokens available")
	}
	testutil.AssertEqual(t, limiter.Tokens(), 7.0)

	if limiter.AllowN(8) {
		t.Error("AllowN(8) should fail with 7 tokens available")
	}
	testutil.AssertEqual(t, limiter.Tokens(), 7.0)

	if !limiter.AllowN(7) {
		t.Error("AllowN(7) should succeed with 7 tokens available")
	}
	if !limiter.AllowN(0) {
		t.Error("AllowN(0) should always succeed")
	}
}

func TestRefillCapsAtBurst(t *testing.T) {
	clock := &MockClock{now: time.Now()}
	limiter, err := NewWithConfig(Config{Rate: 100, Burst: 3, Clock: clock})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, limiter.Tokens(), 0.0)

	clock.Advance(time.Minute)
	testutil.AssertEqual(t, limiter.Tokens(), 3.0)
}

func TestZeroRate(t *testing.T) {
	clock := &MockClock{now: time.Now()}
	limiter, err := NewWithConfig(Config{Rate: 0, Burst: 2, Clock: clock, InitialTokens: -1})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, limiter.Allow(), true)
	testutil.AssertEqual(t, limiter.Allow(), true)

	clock.Advance(time.Hour)
	testutil.AssertEqual(t, limiter.Allow(), false)
}

func TestInfiniteRate(t *testing.T) {
	limiter, err := New(Inf, 1)
	testutil.AssertNoError(t, err)

	for i := 0; i < 100; i++ {
		if !limiter.Allow() {
			t.Fatalf("event %d denied at infinite rate", i)
		}
	}
}

func TestWait(t *testing.T) {
	limiter, err := New(Every(20*time.Millisecond), 1)
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	start := time.Now()
	testutil.AssertNoError(t, limiter.Wait(ctx))
	testutil.AssertNoError(t, limiter.Wait(ctx))

	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("second Wait returned after %v, want a refill delay", elapsed)
	}
}

func TestWaitContextCancelled(t *testing.T) {
	limiter, err := NewWithConfig(Config{Rate: 1, Burst: 1})
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = limiter.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
}

func TestWaitZeroRateEmpty(t *testing.T) {
	limiter, err := NewWithConfig(Config{Rate: 0, Burst: 1})
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context canceled", err)
	}
}
