// Package domain holds the lead pipeline's core types: the lifecycle state
// machine, the lead and event records, and the qualification result schema.
package domain

import "fmt"

// Status is a lead's position in the lifecycle state machine.
type Status string

const (
	StatusReceived   Status = "received"
	StatusNormalized Status = "normalized"
	StatusEnriched   Status = "enriched"
	StatusQualified  Status = "qualified"
	StatusResponded  Status = "responded"
	StatusHandoff    Status = "handoff"
	StatusClosed     Status = "closed"
	StatusFailed     Status = "failed"
)

var statusOrdinals = map[Status]int{
	StatusReceived:   1,
	StatusNormalized: 2,
	StatusEnriched:   3,
	StatusQualified:  4,
	StatusResponded:  5,
	StatusHandoff:    6,
	StatusClosed:     7,
	StatusFailed:     8,
}

// Ordinal returns the forward-order position of the status, or 0 for an
// unknown value.
func (s Status) Ordinal() int {
	return statusOrdinals[s]
}

// Valid reports whether the status is one of the defined lifecycle states.
func (s Status) Valid() bool {
	return s.Ordinal() != 0
}

// Terminal reports whether no further automated transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusHandoff || s == StatusClosed
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next. Transitions are strictly forward; Failed is reachable from any active
// state, and a failed lead may resume at the stage that failed.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() {
		return false
	}
	if next == StatusFailed {
		return !s.Terminal()
	}
	if s == StatusFailed {
		// A retried job re-enters at the stage that failed.
		return next != StatusFailed
	}
	return next.Ordinal() > s.Ordinal()
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown lead status %q", value)
	}
	return s, nil
}
