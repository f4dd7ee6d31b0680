package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// fakeClock — управляемые часы для тестов.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// --- WorkerState Tests ---

func TestWorkerState_Transitions(t *testing.T) {
	allowed := map[[2]WorkerState]bool{
		{WorkerStateInitializing, WorkerStateInitialized}: true,
		{WorkerStateInitialized, WorkerStateStarting}:     true,
		{WorkerStateStarting, WorkerStateRunning}:         true,
		{WorkerStateRunning, WorkerStatePaused}:           true,
		{WorkerStateRunning, WorkerStateStopping}:         true,
		{WorkerStatePaused, WorkerStateRunning}:           true,
		{WorkerStatePaused, WorkerStateStopping}:          true,
		{WorkerStateStopping, WorkerStateStopped}:         true,
	}
	for _, s := range WorkerStates() {
		if s != WorkerStateError {
			allowed[[2]WorkerState{s, WorkerStateError}] = true
		}
	}

	for _, from := range WorkerStates() {
		for _, to := range WorkerStates() {
			want := allowed[[2]WorkerState{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s → %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestWorkerState_NoSelfTransitions(t *testing.T) {
	for _, s := range WorkerStates() {
		if s.CanTransitionTo(s) {
			t.Errorf("%s should not transition to itself", s)
		}
	}
}

func TestWorkerState_ActiveAndTerminal(t *testing.T) {
	for _, s := range WorkerStates() {
		wantActive := s == WorkerStateRunning || s == WorkerStatePaused
		wantTerminal := s == WorkerStateStopped || s == WorkerStateError
		if s.IsActive() != wantActive {
			t.Errorf("%s.IsActive() = %v", s, s.IsActive())
		}
		if s.IsTerminal() != wantTerminal {
			t.Errorf("%s.IsTerminal() = %v", s, s.IsTerminal())
		}
	}
}

func TestParseWorkerState(t *testing.T) {
	s, err := ParseWorkerState(" running ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != WorkerStateRunning {
		t.Errorf("expected RUNNING, got %s", s)
	}

	if _, err := ParseWorkerState("flying"); !errors.Is(err, ErrUnknownState) {
		t.Errorf("expected ErrUnknownState, got %v", err)
	}
}

// --- WorkerStatus Tests ---

func startWorker(t *testing.T, w *WorkerStatus) {
	t.Helper()
	for _, s := range []WorkerState{WorkerStateInitialized, WorkerStateStarting, WorkerStateRunning} {
		if !w.UpdateState(s) {
			t.Fatalf("transition to %s failed", s)
		}
	}
}

func TestNewWorkerStatus(t *testing.T) {
	clock := newFakeClock()
	w := NewWorkerStatus("w1", "strategies/grid.py", []string{"BTC/USDT"}, WithClock(clock.Now))

	if w.State() != WorkerStateInitializing {
		t.Errorf("expected INITIALIZING, got %s", w.State())
	}
	if _, ok := w.StartedAt(); ok {
		t.Error("started_at should be unset")
	}
	if _, ok := w.LastHeartbeat(); ok {
		t.Error("last_heartbeat should be unset")
	}
	if len(w.History()) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(w.History()))
	}
}

func TestWorkerStatus_StartedAtStampedOnce(t *testing.T) {
	clock := newFakeClock()
	w := NewWorkerStatus("w1", "s.py", nil, WithClock(clock.Now))

	clock.Advance(time.Minute)
	startWorker(t, w)

	first, ok := w.StartedAt()
	if !ok {
		t.Fatal("started_at should be set after RUNNING")
	}
	if !first.Equal(clock.Now()) {
		t.Errorf("expected started_at %v, got %v", clock.Now(), first)
	}

	// Пауза и возобновление не меняют started_at
	clock.Advance(time.Minute)
	w.UpdateState(WorkerStatePaused)
	w.UpdateState(WorkerStateRunning)

	second, _ := w.StartedAt()
	if !second.Equal(first) {
		t.Errorf("started_at changed from %v to %v", first, second)
	}
}

func TestWorkerStatus_InvalidTransition(t *testing.T) {
	w := NewWorkerStatus("w1", "s.py", nil)

	if w.UpdateState(WorkerStateRunning) {
		t.Fatal("INITIALIZING → RUNNING should be rejected")
	}
	if w.State() != WorkerStateInitializing {
		t.Errorf("state should be unchanged, got %s", w.State())
	}
}

func TestWorkerStatus_ErrorFromAnyState(t *testing.T) {
	for _, s := range []WorkerState{WorkerStateInitializing, WorkerStateRunning, WorkerStateStopped} {
		w := NewWorkerStatus("w1", "s.py", nil)
		switch s {
		case WorkerStateRunning:
			startWorker(t, w)
		case WorkerStateStopped:
			startWorker(t, w)
			w.UpdateState(WorkerStateStopping)
			w.UpdateState(WorkerStateStopped)
		}
		if !w.UpdateState(WorkerStateError) {
			t.Errorf("%s → ERROR should be allowed", s)
		}
		if w.UpdateState(WorkerStateRunning) {
			t.Error("ERROR → RUNNING should be rejected")
		}
	}
}

func TestWorkerStatus_IsHealthy(t *testing.T) {
	clock := newFakeClock()
	w := NewWorkerStatus("w1", "s.py", nil, WithClock(clock.Now))

	// Heartbeat без RUNNING — не здоров
	w.UpdateHeartbeat()
	if w.IsHealthy(30 * time.Second) {
		t.Error("worker should not be healthy before RUNNING")
	}

	startWorker(t, w)
	if !w.IsHealthy(30 * time.Second) {
		t.Error("worker should be healthy: RUNNING with fresh heartbeat")
	}

	clock.Advance(30 * time.Second)
	if w.IsHealthy(30 * time.Second) {
		t.Error("heartbeat exactly timeout old should be unhealthy")
	}

	w.UpdateHeartbeat()
	w.UpdateState(WorkerStatePaused)
	if w.IsHealthy(30 * time.Second) {
		t.Error("paused worker should not be healthy")
	}
}

func TestWorkerStatus_RunningWithoutHeartbeat(t *testing.T) {
	w := NewWorkerStatus("w1", "s.py", nil)
	startWorker(t, w)

	if w.IsHealthy(time.Hour) {
		t.Error("worker without heartbeat should not be healthy")
	}
}

func TestWorkerStatus_RecordError(t *testing.T) {
	clock := newFakeClock()
	w := NewWorkerStatus("w1", "s.py", nil, WithClock(clock.Now))

	w.RecordError("first")
	clock.Advance(time.Second)
	w.RecordError("second")

	if w.ErrorsCount() != 2 {
		t.Errorf("expected 2 errors, got %d", w.ErrorsCount())
	}
	msg, at := w.LastError()
	if msg != "second" {
		t.Errorf("expected last error 'second', got %q", msg)
	}
	if !at.Equal(clock.Now()) {
		t.Errorf("expected last error time %v, got %v", clock.Now(), at)
	}
}

func TestWorkerStatus_Snapshot(t *testing.T) {
	clock := newFakeClock()
	w := NewWorkerStatus("w1", "s.py", []string{"BTC/USDT", "ETH/USDT"}, WithClock(clock.Now))
	w.SetPID(4242)
	startWorker(t, w)
	w.UpdateHeartbeat()
	w.RecordError("oops")

	snap := w.Snapshot(DefaultHeartbeatTimeout)
	if snap.State != WorkerStateRunning {
		t.Errorf("expected RUNNING, got %s", snap.State)
	}
	if snap.PID != 4242 {
		t.Errorf("expected pid 4242, got %d", snap.PID)
	}
	if snap.CreatedAt != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected created_at %q", snap.CreatedAt)
	}
	if snap.LastHeartbeat == "" || snap.StartedAt == "" || snap.LastErrorTime == "" {
		t.Error("timestamps should be filled")
	}
	if !snap.IsHealthy {
		t.Error("snapshot should report healthy")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("snapshot should be serializable: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["worker_id"] != "w1" || decoded["errors_count"] != 1.0 {
		t.Errorf("unexpected snapshot json: %s", data)
	}
}

func TestWorkerStatus_SnapshotHeartbeatTimeout(t *testing.T) {
	clock := newFakeClock()
	w := NewWorkerStatus("w1", "s.py", nil, WithClock(clock.Now))
	startWorker(t, w)
	w.UpdateHeartbeat()
	clock.Advance(10 * time.Second)

	if !w.Snapshot(time.Minute).IsHealthy {
		t.Error("heartbeat 10s old should be healthy with 1m timeout")
	}
	if w.Snapshot(5 * time.Second).IsHealthy {
		t.Error("heartbeat 10s old should be unhealthy with 5s timeout")
	}
}

func TestWorkerStatus_StateEnterHandler(t *testing.T) {
	w := NewWorkerStatus("w1", "s.py", nil)

	var got []WorkerState
	w.OnStateEnter(WorkerStateError, func(from, _ WorkerState) { got = append(got, from) })
	w.UpdateState(WorkerStateError)

	if len(got) != 1 || got[0] != WorkerStateInitializing {
		t.Errorf("expected handler called with INITIALIZING, got %v", got)
	}
}
