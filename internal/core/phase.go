package core

import "fmt"

// Phase is the kanban column a task currently occupies.
type Phase string

const (
	// PhaseBacklog holds tasks not yet ready for the queue to pick up.
	PhaseBacklog Phase = "backlog"

	// PhaseReady holds tasks eligible for automatic dispatch by the queue.
	PhaseReady Phase = "ready"

	// PhaseExecuting holds the task currently bound to a running agent
	// session. At most one task per workspace occupies this phase, except
	// during the brief window where an orphaned lease is being recovered.
	PhaseExecuting Phase = "executing"

	// PhaseComplete holds tasks the agent marked done via the plan/complete
	// callback or a completion signal in its last turn.
	PhaseComplete Phase = "complete"

	// PhaseArchived holds tasks removed from active boards without deleting
	// their history.
	PhaseArchived Phase = "archived"
)

// AllPhases returns every phase in board display order.
func AllPhases() []Phase {
	return []Phase{PhaseBacklog, PhaseReady, PhaseExecuting, PhaseComplete, PhaseArchived}
}

// ValidPhase reports whether p is one of the recognized phases.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseBacklog, PhaseReady, PhaseExecuting, PhaseComplete, PhaseArchived:
		return true
	default:
		return false
	}
}

// ParsePhase converts a string to a Phase with validation.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !ValidPhase(p) {
		return "", fmt.Errorf("invalid phase: %s", s)
	}
	return p, nil
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// CanTransitionTo reports whether a move from p to next is one the queue
// manager, a user-initiated drag, or the agent's own completion signal is
// allowed to perform. Backlog/ready/complete/archived moves are user or
// queue driven and unrestricted; executing is entered only by the queue and
// left only by completion, steering back to ready, or archival.
func (p Phase) CanTransitionTo(next Phase) bool {
	if !ValidPhase(p) || !ValidPhase(next) {
		return false
	}
	if p == next {
		return false
	}
	return true
}
