// Package statecontract maps a task's (phase, planningStatus, planPresent)
// onto an agent mode and the fixed tool contract that mode enforces, and
// builds the per-turn preamble the Supervisor prepends to every prompt.
// Implemented as pure data and pure functions per the design note that
// prompt construction should stay testable without a running session.
package statecontract

import (
	"fmt"
	"strings"

	"github.com/patleeman/taskfactory/internal/core"
)

// Mode is the agent operating mode derived from task state.
type Mode string

const (
	ModeForeman        Mode = "foreman"
	ModeTaskPlanning   Mode = "task_planning"
	ModeTaskExecution  Mode = "task_execution"
	ModeTaskComplete   Mode = "task_complete"
)

// Contract is the fixed tool allowlist/denylist and completion rule for a
// mode.
type Contract struct {
	Allowed    []string
	Forbidden  []string
	Completion string
}

// Contracts is the mode → contract table, data per the design note.
var Contracts = map[Mode]Contract{
	ModeForeman: {
		Allowed:    []string{"read", "shell", "ask_questions", "create_draft_task", "create_artifact", "manage_shelf", "factory_control"},
		Forbidden:  []string{"edit", "write", "save_plan", "task_complete"},
		Completion: "Reply and stop unless asked for more",
	},
	ModeTaskPlanning: {
		Allowed:    []string{"read", "shell", "save_plan"},
		Forbidden:  []string{"edit", "write", "task_complete"},
		Completion: "Call save_plan exactly once, then stop",
	},
	ModeTaskExecution: {
		Allowed:    []string{"read", "shell", "edit", "write", "task_complete", "attach_task_file"},
		Forbidden:  []string{"save_plan"},
		Completion: "Call task_complete when criteria met",
	},
	ModeTaskComplete: {
		Allowed:    []string{"read", "shell", "edit", "write", "attach_task_file"},
		Forbidden:  []string{"save_plan", "task_complete"},
		Completion: "Respond to user",
	},
}

// ResolveMode implements the mode-derivation rules of the state contract:
//
//	backlog ∧ planningStatus=running ∧ ¬planPresent → task_planning
//	executing                                        → task_execution
//	complete                                          → task_complete
//	anything else (backlog planned, ready, archived)  → task_complete
func ResolveMode(phase core.Phase, planningStatus core.PlanningStatus, planPresent bool) Mode {
	switch {
	case phase == core.PhaseBacklog && planningStatus == core.PlanningStatusRunning && !planPresent:
		return ModeTaskPlanning
	case phase == core.PhaseExecuting:
		return ModeTaskExecution
	case phase == core.PhaseComplete:
		return ModeTaskComplete
	default:
		return ModeTaskComplete
	}
}

// ForTask is a convenience wrapper over ResolveMode for a *core.Task.
func ForTask(t *core.Task) Mode {
	return ResolveMode(t.Phase, t.PlanningStatus, t.PlanPresent())
}

const preambleMarker = "<!-- state-contract-preamble -->"

// BuildPreamble renders the state preamble the Supervisor prepends to every
// agent turn: mode, phase, planningStatus, and the mode's tool contract.
func BuildPreamble(mode Mode, phase core.Phase, planningStatus core.PlanningStatus) string {
	c := Contracts[mode]
	var b strings.Builder
	b.WriteString(preambleMarker)
	b.WriteString("\n")
	fmt.Fprintf(&b, "mode: %s\n", mode)
	fmt.Fprintf(&b, "phase: %s\n", phase)
	fmt.Fprintf(&b, "planningStatus: %s\n", planningStatus)
	fmt.Fprintf(&b, "allowed tools: %s\n", strings.Join(c.Allowed, ", "))
	fmt.Fprintf(&b, "forbidden tools: %s\n", strings.Join(c.Forbidden, ", "))
	fmt.Fprintf(&b, "completion: %s\n", c.Completion)
	b.WriteString(preambleMarker)
	return b.String()
}

// StripEchoedPreamble removes a preamble the assistant echoed back in its
// own output, so it never ends up duplicated in the Activity Log or a
// broadcast text_delta stream.
func StripEchoedPreamble(text string) string {
	start := strings.Index(text, preambleMarker)
	if start == -1 {
		return text
	}
	end := strings.Index(text[start+len(preambleMarker):], preambleMarker)
	if end == -1 {
		return text
	}
	end = start + len(preambleMarker) + end + len(preambleMarker)
	remainder := text[end:]
	return strings.TrimLeft(remainder, "\n")
}

// IsToolAllowed reports whether mode's contract permits toolName. A tool
// absent from both Allowed and Forbidden is treated as not allowed — the
// contract table is an allowlist, not a denylist.
func IsToolAllowed(mode Mode, toolName string) bool {
	c, ok := Contracts[mode]
	if !ok {
		return false
	}
	for _, t := range c.Allowed {
		if t == toolName {
			return true
		}
	}
	return false
}
