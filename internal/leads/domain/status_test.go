package domain

import "testing"

func TestStatusOrdinalsAreStrictlyOrdered(t *testing.T) {
	order := []Status{
		StatusReceived, StatusNormalized, StatusEnriched, StatusQualified,
		StatusResponded, StatusHandoff, StatusClosed,
	}
	for i := 1; i < len(order); i++ {
		if order[i].Ordinal() <= order[i-1].Ordinal() {
			t.Fatalf("expected %s > %s in ordinal order", order[i], order[i-1])
		}
	}
}

func TestTransitionsNeverMoveBackward(t *testing.T) {
	if StatusQualified.CanTransitionTo(StatusReceived) {
		t.Fatal("qualified must not move back to received")
	}
	if StatusResponded.CanTransitionTo(StatusNormalized) {
		t.Fatal("responded must not move back to normalized")
	}
	if !StatusReceived.CanTransitionTo(StatusNormalized) {
		t.Fatal("received should advance to normalized")
	}
	if !StatusQualified.CanTransitionTo(StatusHandoff) {
		t.Fatal("qualified should advance to handoff")
	}
	if !StatusResponded.CanTransitionTo(StatusHandoff) {
		t.Fatal("responded should advance to handoff")
	}
}

func TestFailedReachableFromActiveStates(t *testing.T) {
	for _, s := range []Status{StatusReceived, StatusNormalized, StatusQualified, StatusResponded} {
		if !s.CanTransitionTo(StatusFailed) {
			t.Fatalf("%s should be able to fail", s)
		}
	}
}

func TestTerminalStatesDoNotFail(t *testing.T) {
	if StatusClosed.CanTransitionTo(StatusFailed) {
		t.Fatal("closed is terminal")
	}
	if StatusHandoff.CanTransitionTo(StatusFailed) {
		t.Fatal("handoff is terminal")
	}
}

func TestFailedLeadResumesAtAnyStage(t *testing.T) {
	if !StatusFailed.CanTransitionTo(StatusNormalized) {
		t.Fatal("retried qualification should re-enter from failed")
	}
	if !StatusFailed.CanTransitionTo(StatusResponded) {
		t.Fatal("retried dispatch should re-enter from failed")
	}
	if StatusFailed.CanTransitionTo(StatusFailed) {
		t.Fatal("failed to failed is not a transition")
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	s, err := ParseStatus("qualified")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != StatusQualified {
		t.Fatalf("expected qualified, got %s", s)
	}
}
