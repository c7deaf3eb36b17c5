package supervisor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patleeman/taskfactory/internal/activity"
	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/events"
	"github.com/patleeman/taskfactory/internal/runtime"
	"github.com/patleeman/taskfactory/internal/taskstore"
	"github.com/patleeman/taskfactory/internal/toolbus"
)

// fakeSession is a hand-rolled runtime.Session, used instead of
// runtime.MockSession where a test needs a hook that fires mid-turn (to
// simulate a tool callback invocation alongside the scripted events).
type fakeSession struct {
	script    []runtime.Event
	onPrompt  func()
	listeners []func(runtime.Event)
}

func (s *fakeSession) Subscribe(l func(runtime.Event)) func() {
	s.listeners = append(s.listeners, l)
	idx := len(s.listeners) - 1
	return func() { s.listeners[idx] = nil }
}

func (s *fakeSession) emit(e runtime.Event) {
	for _, l := range s.listeners {
		if l != nil {
			l(e)
		}
	}
}

func (s *fakeSession) Prompt(ctx context.Context, text string, images [][]byte) error {
	if s.onPrompt != nil {
		s.onPrompt()
	}
	for _, e := range s.script {
		s.emit(e)
	}
	return nil
}

func (s *fakeSession) FollowUp(ctx context.Context, text string, images [][]byte) error {
	return s.Prompt(ctx, text, images)
}

func (s *fakeSession) Steer(ctx context.Context, text string, images [][]byte) error { return nil }
func (s *fakeSession) Abort(ctx context.Context) error                              { return nil }
func (s *fakeSession) SessionFile() string                                          { return "fake-session" }

func newTestSupervisor(t *testing.T, rt runtime.AgentRuntime) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	tasksDir := filepath.Join(dir, "tasks")
	bus := events.New(16)
	store := taskstore.NewStore(tasksDir, "ws-1", bus)
	journal := activity.NewJournal(filepath.Join(dir, "activity.jsonl"))
	tools := toolbus.New()
	return New(rt, store, journal, bus, tools, StaticSkillResolver{}, nil, "ws-1", dir, tasksDir)
}

func executingTask(id core.TaskID) *core.Task {
	task := core.NewTask(id, "do the thing")
	task.Phase = core.PhaseExecuting
	task.ExecutionModelConfig = core.ModelConfig{Provider: "anthropic", ModelID: "claude"}
	task.PlanningStatus = core.PlanningStatusCompleted
	task.Plan = &core.Plan{Goal: "ship it", Steps: []string{"write code"}}
	return task
}

func TestExecuteTask_NoCompletionSignalGoesIdle(t *testing.T) {
	script := []runtime.Event{
		{Kind: runtime.EventMessageStart},
		{Kind: runtime.EventTextDelta, Delta: "still working"},
		{Kind: runtime.EventMessageEnd, Content: "still working", StopReason: runtime.StopReasonComplete},
		{Kind: runtime.EventTurnEnd},
	}
	rt := &runtime.MockRuntime{Sessions: []*runtime.MockSession{runtime.NewMockSession(script)}}
	sup := newTestSupervisor(t, rt)
	task := executingTask("PIFA-1")

	var called bool
	err := sup.ExecuteTask(context.Background(), task, func(core.TaskID, bool, map[string]interface{}) {
		called = true
	})
	require.NoError(t, err)
	assert.False(t, called, "onComplete should not fire without a task_complete signal")

	st := sup.get(task.ID)
	require.NotNil(t, st)
	assert.Equal(t, StatusIdle, st.status)
}

func TestExecuteTask_CompletionSignalDrivesOnCompleteSuccess(t *testing.T) {
	rt := &runtime.MockRuntime{}
	sup := newTestSupervisor(t, rt)
	task := executingTask("PIFA-2")

	session := &fakeSession{
		script: []runtime.Event{
			{Kind: runtime.EventMessageEnd, Content: "done", StopReason: runtime.StopReasonComplete},
			{Kind: runtime.EventTurnEnd},
		},
	}
	session.onPrompt = func() {
		require.NoError(t, sup.tools.InvokeComplete(task.ID, "all done"))
	}
	fr := &fakeRuntime{session: session}
	sup.rt = fr

	var gotSuccess bool
	var gotDetails map[string]interface{}
	err := sup.ExecuteTask(context.Background(), task, func(taskID core.TaskID, success bool, details map[string]interface{}) {
		gotSuccess = success
		gotDetails = details
	})
	require.NoError(t, err)
	assert.True(t, gotSuccess)
	assert.Equal(t, "all done", gotDetails["summary"])
}

type fakeRuntime struct {
	session runtime.Session
}

func (f *fakeRuntime) OpenSession(ctx context.Context, opts runtime.OpenOptions) (runtime.Session, error) {
	return f.session, nil
}

func TestExecuteTask_FallbackChainRetriesOnRetryableError(t *testing.T) {
	failingScript := []runtime.Event{
		{Kind: runtime.EventMessageEnd, StopReason: runtime.StopReasonError, ErrorMessage: "rate limit exceeded"},
	}
	succeedingScript := []runtime.Event{
		{Kind: runtime.EventMessageEnd, Content: "done", StopReason: runtime.StopReasonComplete},
	}
	rt := &runtime.MockRuntime{Sessions: []*runtime.MockSession{
		runtime.NewMockSession(failingScript),
		runtime.NewMockSession(succeedingScript),
	}}
	sup := newTestSupervisor(t, rt)

	task := executingTask("PIFA-3")
	task.ExecutionFallbackModels = []core.ModelConfig{{Provider: "anthropic", ModelID: "claude-fallback"}}

	var called bool
	err := sup.ExecuteTask(context.Background(), task, func(core.TaskID, bool, map[string]interface{}) {
		called = true
	})
	require.NoError(t, err)
	assert.False(t, called, "neither scripted session signals completion")
	require.Len(t, rt.Opened, 2)
	assert.Equal(t, "claude", rt.Opened[0].ModelID)
	assert.Equal(t, "claude-fallback", rt.Opened[1].ModelID)
}

func TestExecuteTask_FallbackChainExhaustedReportsFailure(t *testing.T) {
	failingScript := []runtime.Event{
		{Kind: runtime.EventMessageEnd, StopReason: runtime.StopReasonError, ErrorMessage: "rate limit exceeded"},
	}
	rt := &runtime.MockRuntime{Sessions: []*runtime.MockSession{
		runtime.NewMockSession(failingScript),
		runtime.NewMockSession(failingScript),
	}}
	sup := newTestSupervisor(t, rt)

	task := executingTask("PIFA-4")
	task.ExecutionFallbackModels = []core.ModelConfig{{Provider: "anthropic", ModelID: "claude-fallback"}}

	var gotSuccess bool
	var gotDetails map[string]interface{}
	err := sup.ExecuteTask(context.Background(), task, func(taskID core.TaskID, success bool, details map[string]interface{}) {
		gotSuccess = success
		gotDetails = details
	})
	require.NoError(t, err)
	assert.False(t, gotSuccess)
	assert.Contains(t, gotDetails["errorMessage"], "rate limit")
}

func TestExecuteTask_PreSkillFailureAbortsWithoutProgressing(t *testing.T) {
	rt := &runtime.MockRuntime{Sessions: []*runtime.MockSession{runtime.NewMockSession(nil)}}
	sup := newTestSupervisor(t, rt)

	task := executingTask("PIFA-5")
	task.PreExecutionSkills = []string{"missing-skill"}

	var gotSuccess bool
	var gotDetails map[string]interface{}
	err := sup.ExecuteTask(context.Background(), task, func(taskID core.TaskID, success bool, details map[string]interface{}) {
		gotSuccess = success
		gotDetails = details
	})
	require.NoError(t, err)
	assert.False(t, gotSuccess)
	assert.Contains(t, gotDetails["errorMessage"], "missing-skill")
	assert.Empty(t, rt.Opened, "pre-skill failures should abort before opening a session")
}

func TestAbort_TearsDownSession(t *testing.T) {
	script := []runtime.Event{
		{Kind: runtime.EventMessageEnd, Content: "hi", StopReason: runtime.StopReasonComplete},
	}
	rt := &runtime.MockRuntime{Sessions: []*runtime.MockSession{runtime.NewMockSession(script)}}
	sup := newTestSupervisor(t, rt)
	task := executingTask("PIFA-6")

	require.NoError(t, sup.ExecuteTask(context.Background(), task, func(core.TaskID, bool, map[string]interface{}) {}))
	require.NotNil(t, sup.get(task.ID))

	require.NoError(t, sup.Abort(context.Background(), task.ID))
	assert.Nil(t, sup.get(task.ID))
}

func TestSteer_ReturnsErrorForUnknownTask(t *testing.T) {
	rt := &runtime.MockRuntime{}
	sup := newTestSupervisor(t, rt)
	err := sup.Steer(context.Background(), "PIFA-404", "hello", nil)
	require.Error(t, err)
}

func TestFollowUp_ClearsCompletionFlagAndTracksStatus(t *testing.T) {
	rt := &runtime.MockRuntime{}
	sup := newTestSupervisor(t, rt)
	task := executingTask("PIFA-7")

	idleScript := []runtime.Event{
		{Kind: runtime.EventMessageEnd, Content: "waiting", StopReason: runtime.StopReasonComplete},
	}
	session := &fakeSession{script: idleScript}
	fr := &fakeRuntime{session: session}
	sup.rt = fr

	require.NoError(t, sup.ExecuteTask(context.Background(), task, func(core.TaskID, bool, map[string]interface{}) {}))
	st := sup.get(task.ID)
	require.NotNil(t, st)
	assert.Equal(t, StatusIdle, st.status)

	session.onPrompt = func() {
		require.NoError(t, sup.tools.InvokeComplete(task.ID, "second turn done"))
	}
	require.NoError(t, sup.FollowUp(context.Background(), task.ID, "keep going", nil))
	assert.Equal(t, StatusCompleted, st.status)
}
