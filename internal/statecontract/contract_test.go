package statecontract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/patleeman/taskfactory/internal/core"
)

func TestResolveMode(t *testing.T) {
	cases := []struct {
		name           string
		phase          core.Phase
		planningStatus core.PlanningStatus
		planPresent    bool
		want           Mode
	}{
		{"planning in backlog", core.PhaseBacklog, core.PlanningStatusRunning, false, ModeTaskPlanning},
		{"backlog with plan already saved", core.PhaseBacklog, core.PlanningStatusRunning, true, ModeTaskComplete},
		{"executing", core.PhaseExecuting, core.PlanningStatusCompleted, true, ModeTaskExecution},
		{"complete", core.PhaseComplete, core.PlanningStatusCompleted, true, ModeTaskComplete},
		{"ready", core.PhaseReady, core.PlanningStatusCompleted, true, ModeTaskComplete},
		{"archived", core.PhaseArchived, core.PlanningStatusNone, false, ModeTaskComplete},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ResolveMode(c.phase, c.planningStatus, c.planPresent))
		})
	}
}

func TestBuildPreambleAndStrip(t *testing.T) {
	preamble := BuildPreamble(ModeTaskExecution, core.PhaseExecuting, core.PlanningStatusCompleted)
	assert.Contains(t, preamble, "mode: task_execution")
	assert.Contains(t, preamble, "allowed tools:")

	echoed := preamble + "\nI will now fix the bug."
	stripped := StripEchoedPreamble(echoed)
	assert.Equal(t, "I will now fix the bug.", stripped)
}

func TestStripEchoedPreamble_NoPreambleIsNoop(t *testing.T) {
	text := "just a normal response"
	assert.Equal(t, text, StripEchoedPreamble(text))
}

func TestIsToolAllowed(t *testing.T) {
	assert.True(t, IsToolAllowed(ModeTaskExecution, "edit"))
	assert.False(t, IsToolAllowed(ModeTaskExecution, "save_plan"))
	assert.False(t, IsToolAllowed(ModeTaskPlanning, "task_complete"))
	assert.True(t, IsToolAllowed(ModeTaskPlanning, "save_plan"))
}
