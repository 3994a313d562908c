package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSink collects every event it is handed.
type recordingSink struct {
	mu     sync.Mutex
	name   string
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestKind_Channel(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindCalibrationStep, "calibration"},
		{KindHeartbeatReset, "heartbeat"},
		{KindResetRequested, "device"},
		{Kind("bare"), "bare"},
	}
	for _, tt := range tests {
		if got := tt.kind.Channel(); got != tt.want {
			t.Errorf("%s.Channel() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	e := New(KindWeightSubmitted, "7001", SourceOperator, map[string]any{DataWeight: 12.5})
	if e.ID == "" {
		t.Error("ID is empty")
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
	if got := e.Float(DataWeight, -1); got != 12.5 {
		t.Errorf("Float(weight) = %v, want 12.5", got)
	}
	if got := e.Int(DataNextStep, -1); got != -1 {
		t.Errorf("Int(missing) = %d, want fallback -1", got)
	}
}

func TestBus_DeliversToAllSinks(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	bus := NewBus(8, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	for range 3 {
		bus.Publish(New(KindCalibrationStep, "7001", SourceFirmware, nil))
	}
	waitFor(t, func() bool { return a.count() == 3 && b.count() == 3 })

	cancel()
	<-done

	stats := bus.Stats()
	if stats.Published != 3 || stats.Delivered != 3 || stats.Dropped != 0 {
		t.Errorf("Stats() = %+v, want 3 published, 3 delivered", stats)
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{name: "s"}
	bus := NewBus(2, sink)

	// No worker running: the third publish has nowhere to go.
	for range 3 {
		bus.Publish(New(KindHeartbeatReset, "7001", SourceFirmware, nil))
	}

	stats := bus.Stats()
	if stats.Published != 2 {
		t.Errorf("Published = %d, want 2", stats.Published)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
	if stats.Queued != 2 {
		t.Errorf("Queued = %d, want 2", stats.Queued)
	}
}

func TestBus_DrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{name: "s"}
	bus := NewBus(4, sink)

	for range 4 {
		bus.Publish(New(KindCalibrationCancel, "7001", SourceOperator, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Run(ctx)

	if sink.count() != 4 {
		t.Errorf("delivered %d events after drain, want 4", sink.count())
	}

	// Publishing after shutdown is a counted drop, not a panic or a block.
	bus.Publish(New(KindCalibrationCancel, "7001", SourceOperator, nil))
	if got := bus.Stats().Dropped; got != 1 {
		t.Errorf("Dropped after shutdown = %d, want 1", got)
	}
}

func TestBus_SinkFailureDoesNotStopOthers(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("boom")}
	good := &recordingSink{name: "good"}
	bus := NewBus(4, bad, good)

	bus.Publish(New(KindCalibrationStep, "7001", SourceFirmware, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Run(ctx)

	if good.count() != 1 {
		t.Errorf("good sink got %d events, want 1", good.count())
	}
	stats := bus.Stats()
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if stats.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", stats.Delivered)
	}
}

func TestBus_AllSinksFailingIsNotDelivered(t *testing.T) {
	a := &recordingSink{name: "a", err: errors.New("boom")}
	b := &recordingSink{name: "b", err: errors.New("bang")}
	bus := NewBus(4, a, b)

	bus.Publish(New(KindCalibrationStep, "7001", SourceFirmware, nil))
	bus.Publish(New(KindCalibrationStep, "7002", SourceFirmware, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Run(ctx)

	if a.count() != 2 || b.count() != 2 {
		t.Fatalf("sinks saw %d and %d events, want 2 each", a.count(), b.count())
	}
	stats := bus.Stats()
	if stats.Delivered != 0 {
		t.Errorf("Delivered = %d, want 0", stats.Delivered)
	}
	if stats.Failed != 4 {
		t.Errorf("Failed = %d, want 4", stats.Failed)
	}
}
