package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"linkdigest/internal/digest"
)

type mockRunner struct {
	mu      sync.Mutex
	calls   int
	result  digest.Result
	err     error
	lastCtx context.Context
}

func (m *mockRunner) Run(ctx context.Context) (digest.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastCtx = ctx
	return m.result, m.err
}

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		input    string
		hour     int
		minute   int
		wantErr  bool
	}{
		{"08:00", 8, 0, false},
		{"00:00", 0, 0, false},
		{"23:59", 23, 59, false},
		{"12:30", 12, 30, false},
		{"8:00", 0, 0, true},
		{"08:00:00", 0, 0, true},
		{"24:00", 0, 0, true},
		{"08:60", 0, 0, true},
		{"ab:cd", 0, 0, true},
		{"", 0, 0, true},
		{"08-00", 0, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			hour, minute, err := parseTimeOfDay(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseTimeOfDay(%q) expected error, got %d:%d", tc.input, hour, minute)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTimeOfDay(%q): %v", tc.input, err)
			}
			if hour != tc.hour || minute != tc.minute {
				t.Errorf("parseTimeOfDay(%q) = %d:%d, want %d:%d", tc.input, hour, minute, tc.hour, tc.minute)
			}
		})
	}
}

func TestNew_ValidConfig(t *testing.T) {
	s, err := New(Config{
		DeliveryTime: "08:00",
		Timezone:     "UTC",
		CycleTimeout: time.Minute,
	}, &mockRunner{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s == nil {
		t.Fatal("New returned nil scheduler")
	}
}

func TestNew_InvalidDeliveryTime(t *testing.T) {
	_, err := New(Config{
		DeliveryTime: "8am",
		Timezone:     "UTC",
	}, &mockRunner{}, nil)
	if err == nil {
		t.Fatal("expected error for malformed delivery time")
	}
}

func TestNew_InvalidTimezone(t *testing.T) {
	_, err := New(Config{
		DeliveryTime: "08:00",
		Timezone:     "Mars/Olympus_Mons",
	}, &mockRunner{}, nil)
	if err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestFire_RunsCycle(t *testing.T) {
	runner := &mockRunner{result: digest.Result{Sent: true, EntryCount: 3}}
	s, err := New(Config{
		DeliveryTime: "08:00",
		Timezone:     "UTC",
		CycleTimeout: time.Minute,
	}, runner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.fire()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.calls != 1 {
		t.Errorf("Run called %d times, want 1", runner.calls)
	}
	if _, ok := runner.lastCtx.Deadline(); !ok {
		t.Error("cycle context must carry the configured timeout")
	}
}

func TestFire_NoTimeoutWhenZero(t *testing.T) {
	runner := &mockRunner{}
	s, err := New(Config{
		DeliveryTime: "08:00",
		Timezone:     "UTC",
	}, runner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.fire()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if _, ok := runner.lastCtx.Deadline(); ok {
		t.Error("zero CycleTimeout must not set a deadline")
	}
}

func TestFire_RunErrorIsSwallowed(t *testing.T) {
	runner := &mockRunner{err: errors.New("cycle failed")}
	s, err := New(Config{
		DeliveryTime: "08:00",
		Timezone:     "UTC",
	}, runner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// fire logs and returns; a failed cycle must not panic or propagate.
	s.fire()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.calls != 1 {
		t.Errorf("Run called %d times, want 1", runner.calls)
	}
}

func TestStartStop(t *testing.T) {
	runner := &mockRunner{}
	s, err := New(Config{
		DeliveryTime: "08:00",
		Timezone:     "America/New_York",
	}, runner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Start()

	entries := s.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 cron entry, got %d", len(entries))
	}
	next := entries[0].Next
	if next.IsZero() {
		t.Fatal("next run time not computed")
	}

	loc, _ := time.LoadLocation("America/New_York")
	local := next.In(loc)
	if local.Hour() != 8 || local.Minute() != 0 {
		t.Errorf("next run at %02d:%02d local, want 08:00", local.Hour(), local.Minute())
	}

	s.Stop()
}
