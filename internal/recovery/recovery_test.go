package recovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/flow"
	"github.com/BTreeMap/ShiftGuide/internal/models"
	"github.com/BTreeMap/ShiftGuide/internal/protocol"
	"github.com/BTreeMap/ShiftGuide/internal/store"
)

// Mock recoverable for testing
type mockRecoverable struct {
	name          string
	recoverError  error
	recoverCalled bool
}

func (m *mockRecoverable) Name() string { return m.name }

func (m *mockRecoverable) Recover(ctx context.Context) error {
	m.recoverCalled = true
	return m.recoverError
}

func TestRecoveryManager_RecoverAll_Success(t *testing.T) {
	manager := NewRecoveryManager()

	mock1 := &mockRecoverable{name: "mock1"}
	mock2 := &mockRecoverable{name: "mock2"}
	manager.RegisterRecoverable(mock1)
	manager.RegisterRecoverable(mock2)

	if err := manager.RecoverAll(context.Background()); err != nil {
		t.Errorf("RecoverAll failed: %v", err)
	}
	if !mock1.recoverCalled || !mock2.recoverCalled {
		t.Error("every Recover should be called")
	}
}

func TestRecoveryManager_RecoverAll_WithErrors(t *testing.T) {
	manager := NewRecoveryManager()

	mock1 := &mockRecoverable{name: "mock1", recoverError: fmt.Errorf("recovery failed")}
	mock2 := &mockRecoverable{name: "mock2"}
	manager.RegisterRecoverable(mock1)
	manager.RegisterRecoverable(mock2)

	if err := manager.RecoverAll(context.Background()); err == nil {
		t.Error("Expected error from RecoverAll when components fail")
	}
	if !mock1.recoverCalled || !mock2.recoverCalled {
		t.Error("All recoverables should be called despite errors")
	}
}

func TestRecoveryManager_RecoverAll_Cancelled(t *testing.T) {
	manager := NewRecoveryManager()
	mock := &mockRecoverable{name: "mock"}
	manager.RegisterRecoverable(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := manager.RecoverAll(ctx); err == nil {
		t.Error("expected the context error")
	}
	if mock.recoverCalled {
		t.Error("Recover ran after cancellation")
	}
}

func TestSessionAndOutboxRecovery(t *testing.T) {
	st := store.NewInMemoryStore()
	defer st.Close()

	// A previous process left one active session and one reply mid-send.
	first, err := flow.NewEngine(protocol.MustDefault(), st)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := first.Start(context.Background(), "user-1", "s1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first.Flush()
	if _, err := st.EnqueueOutboxMessage("15551234567", "whatsapp", "hello", "m1"); err != nil {
		t.Fatalf("EnqueueOutboxMessage: %v", err)
	}
	if _, err := st.ClaimDueOutboxMessages(time.Now().Add(-time.Hour), 10); err != nil {
		t.Fatalf("ClaimDueOutboxMessages: %v", err)
	}

	second, err := flow.NewEngine(protocol.MustDefault(), st)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	sender := store.NewOutboxSender(st, func(context.Context, store.OutboxMessage) error { return nil }, time.Second)

	manager := NewRecoveryManager()
	manager.RegisterRecoverable(SessionRecovery(second))
	manager.RegisterRecoverable(OutboxRecovery(sender))
	if err := manager.RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll: %v", err)
	}

	if second.ActiveSessions() != 1 {
		t.Errorf("expected 1 warmed session, got %d", second.ActiveSessions())
	}
	if id, ok := second.FindActive("user-1"); !ok || id != "s1" {
		t.Errorf("FindActive = %q, %v", id, ok)
	}
	msgs, err := st.ClaimDueOutboxMessages(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueOutboxMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Status != store.OutboxStatusSending || msgs[0].DedupeKey != "m1" {
		t.Errorf("stale message was not requeued: %+v", msgs)
	}
	rec, _ := st.GetSession("s1")
	if rec == nil || rec.Status != models.SessionStatusActive {
		t.Errorf("unexpected record %+v", rec)
	}
}
