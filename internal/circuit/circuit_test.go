package circuit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errDial = errors.New("dial failed")

func newBreaker(t *testing.T, cfg Config) (*Breaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New("nb-1", cfg, WithClock(clock.Now)), clock
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestConfigDefaultsFillZeroValues(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg != DefaultConfig() {
		t.Errorf("withDefaults() = %+v, want %+v", cfg, DefaultConfig())
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newBreaker(t, Config{FailureThreshold: 2, RecoveryTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return errDial }); !errors.Is(err, errDial) {
			t.Fatalf("Execute() error = %v, want errDial", err)
		}
	}
	if b.State() != Open {
		t.Fatalf("State() = %s, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Execute() error = %v, want *OpenError", err)
	}
	if called {
		t.Error("fn should not run while breaker is open")
	}
	if openErr.RetryAfter <= 0 || openErr.Name != "nb-1" {
		t.Errorf("OpenError = %+v", openErr)
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	var transitions []string
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("nb-1", Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: 10 * time.Second},
		WithClock(clock.Now),
		WithStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	_ = b.Execute(func() error { return errDial })
	clock.Advance(11 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("State() = %s, want half_open", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("State() = %s, want closed", b.State())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Second})

	_ = b.Execute(func() error { return errDial })
	clock.Advance(11 * time.Second)
	_ = b.Execute(func() error { return errDial })
	if b.State() != Open {
		t.Errorf("State() = %s, want open", b.State())
	}
}

func TestBreakerFailureWindow(t *testing.T) {
	b, clock := newBreaker(t, Config{FailureThreshold: 2, FailureWindow: time.Second})

	_ = b.Execute(func() error { return errDial })
	clock.Advance(2 * time.Second)
	_ = b.Execute(func() error { return errDial })
	if b.State() != Closed {
		t.Errorf("State() = %s, want closed (first failure expired)", b.State())
	}
}

func TestBreakerStatsAndReset(t *testing.T) {
	b, _ := newBreaker(t, Config{FailureThreshold: 5})

	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errDial })

	s := b.Stats()
	if s.RequestCount != 2 || s.SuccessCount != 1 || s.FailureCount != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if s.FailureRate != 0.5 {
		t.Errorf("FailureRate = %v, want 0.5", s.FailureRate)
	}

	b.Reset()
	s = b.Stats()
	if s.RequestCount != 0 || s.State != "closed" {
		t.Errorf("Stats() after Reset = %+v", s)
	}
}

func TestBreakerConcurrentExecute(t *testing.T) {
	b, _ := newBreaker(t, Config{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = b.Execute(func() error {
				if i%2 == 0 {
					return errDial
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	if got := b.Stats().RequestCount; got != 50 {
		t.Errorf("RequestCount = %d, want 50", got)
	}
}
