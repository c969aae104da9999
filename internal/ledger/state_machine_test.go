package ledger

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusIdle, StatusAnchoring) {
		t.Fatalf("expected idle -> anchoring allowed")
	}
	if !CanTransition(StatusAnchoring, StatusAnchorFailed) {
		t.Fatalf("expected anchoring -> anchor_failed allowed")
	}
	// 不拿 token 不允许直接落库
	if CanTransition(StatusIdle, StatusInserting) {
		t.Fatalf("expected idle -> inserting not allowed")
	}
	if CanTransition(StatusCommitted, StatusAnchoring) {
		t.Fatalf("expected terminal state to be final")
	}
}

func TestAttemptTransitions(t *testing.T) {
	now := time.Now()
	a := NewAttempt(now)

	if err := a.Transition(StatusAnchoring, now); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := a.Transition(StatusInserting, now); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if a.FinishedAt != nil {
		t.Fatalf("finished_at set before terminal state")
	}
	if err := a.Transition(StatusCommitted, now); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !a.Status.Terminal() || a.FinishedAt == nil {
		t.Fatalf("expected terminal attempt with finished_at")
	}

	if err := a.Transition(StatusAnchoring, now); err == nil {
		t.Fatalf("expected transition out of terminal state to fail")
	}
}
