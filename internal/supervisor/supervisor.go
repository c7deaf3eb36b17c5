// Package supervisor implements the Agent Session Supervisor: the only
// component that speaks to the agent runtime. It translates runtime.Event
// occurrences into Activity Log entries and event-bus broadcasts, enforces
// the State Contract's preamble/mode, runs pre/post-execution skills, and
// retries a turn across a model's fallback chain on a classified-retryable
// failure.
//
// Shaped like a phase-sequenced driver that runs one prompt turn at a time
// against a stateful session and reports completion to its caller,
// generalized from a fixed analyze/plan/execute phase sequence to
// planning/execution modes and skill hooks.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patleeman/taskfactory/internal/activity"
	"github.com/patleeman/taskfactory/internal/breaker"
	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/events"
	"github.com/patleeman/taskfactory/internal/logging"
	"github.com/patleeman/taskfactory/internal/runtime"
	"github.com/patleeman/taskfactory/internal/statecontract"
	"github.com/patleeman/taskfactory/internal/taskstore"
	"github.com/patleeman/taskfactory/internal/toolbus"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// OnComplete reports a task's terminal outcome back to the Queue Manager.
// details carries at minimum "errorMessage" on failure.
type OnComplete func(taskID core.TaskID, success bool, details map[string]interface{})

// orphanedMaxAge is how long an executing task can run before the Queue
// Manager's startup orphan scan (outside this package) treats it as
// "started too recently to safely resume" — referenced here only in
// comments; the Supervisor itself does not schedule orphan recovery.
const orphanedMaxAge = 2 * time.Minute

type sessionState struct {
	taskID                core.TaskID
	workspaceID           string
	mode                  statecontract.Mode
	session               runtime.Session
	unsubscribe           func()
	status                Status
	agentSignaledComplete bool
	completionSummary     string
	streamText            strings.Builder
	thinkingText          strings.Builder
	toolArgs              map[string]map[string]interface{}
	awaitingUserInput     bool
	onComplete            OnComplete
	cancel                context.CancelFunc

	lastStop   runtime.StopReason
	lastErrMsg string
}

// Supervisor runs agent sessions on behalf of a single workspace.
type Supervisor struct {
	rt     runtime.AgentRuntime
	tasks  *taskstore.Store
	log    *activity.Journal
	bus    *events.EventBus
	tools  *toolbus.Registry
	skills SkillResolver
	logger *logging.Logger

	workspaceID string
	cwd         string
	tasksDir    string

	mu       sync.Mutex
	sessions map[core.TaskID]*sessionState
}

// New constructs a Supervisor for one workspace. tasksDir is the directory
// taskstore.Store persists task Markdown files under; the Supervisor reuses
// it to scope each task's attachments.Store.
func New(rt runtime.AgentRuntime, tasks *taskstore.Store, journal *activity.Journal, bus *events.EventBus, tools *toolbus.Registry, skills SkillResolver, logger *logging.Logger, workspaceID, cwd, tasksDir string) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{
		rt:          rt,
		tasks:       tasks,
		log:         journal,
		bus:         bus,
		tools:       tools,
		skills:      skills,
		logger:      logger,
		workspaceID: workspaceID,
		cwd:         cwd,
		tasksDir:    tasksDir,
		sessions:    make(map[core.TaskID]*sessionState),
	}
}

func (s *Supervisor) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func (s *Supervisor) appendActivity(entry core.ActivityEntry) {
	if s.log == nil {
		return
	}
	_ = s.log.Append(entry)
	s.publish(events.NewActivityEntryEvent(s.workspaceID, entry))
}

func (s *Supervisor) systemEvent(taskID core.TaskID, eventKind, message string) {
	s.appendActivity(core.NewSystemEvent(uuid.New().String(), taskID, time.Now(), eventKind, message))
}

// setStatus updates a session's status and broadcasts the transition so
// listeners never need to poll for it.
func (s *Supervisor) setStatus(st *sessionState, status Status) {
	st.status = status
	s.publish(events.NewAgentExecutionStatusEvent(st.workspaceID, st.taskID, string(status)))
}

// ExecuteTask runs planning if the task's resolved mode is task_planning,
// otherwise execution. On completion signal, post-execution skills run and
// onComplete(true, ...) fires; on an exhausted fallback chain,
// onComplete(false, ...) fires.
func (s *Supervisor) ExecuteTask(ctx context.Context, task *core.Task, onComplete OnComplete) error {
	return s.execute(ctx, task, onComplete, runtime.SessionSource{Kind: runtime.SessionSourceNew})
}

// ResumeExecution re-attaches to a task the Queue Manager's orphan scan
// identified as resumable: a task left in executing with no live
// Supervisor session, recently started enough to be worth resuming rather
// than bouncing back to ready. Otherwise identical to ExecuteTask.
func (s *Supervisor) ResumeExecution(ctx context.Context, task *core.Task, onComplete OnComplete) error {
	return s.execute(ctx, task, onComplete, runtime.SessionSource{Kind: runtime.SessionSourceResumeFrom, Path: task.SessionFile})
}

func (s *Supervisor) execute(ctx context.Context, task *core.Task, onComplete OnComplete, source runtime.SessionSource) error {
	mode := statecontract.ForTask(task)
	s.logger.WithTask(string(task.ID)).WithPhase(string(task.Phase)).Info("starting agent session", "mode", mode, "source", source.Kind)

	ctx, cancel := context.WithCancel(ctx)
	st := &sessionState{
		taskID:      task.ID,
		workspaceID: s.workspaceID,
		mode:        mode,
		toolArgs:    make(map[string]map[string]interface{}),
		onComplete:  onComplete,
		cancel:      cancel,
	}
	s.mu.Lock()
	s.sessions[task.ID] = st
	s.mu.Unlock()
	s.setStatus(st, StatusRunning)

	s.registerCallbacks(task, st)

	modelCfg := task.ExecutionModelConfig
	fallbacks := task.ExecutionFallbackModels
	if mode == statecontract.ModeTaskPlanning {
		modelCfg = task.PlanningModelConfig
		fallbacks = task.PlanningFallbackModels
	}

	session, err := s.openSession(ctx, task, modelCfg, source)
	if err != nil {
		return s.failTerminal(task, st, mode, err, "", modelCfg)
	}
	st.session = session
	st.unsubscribe = session.Subscribe(func(e runtime.Event) { s.handleEvent(st, e) })

	if mode == statecontract.ModeTaskExecution {
		if err := s.runSkills(ctx, task, st, HookPre); err != nil {
			s.teardown(st)
			s.systemEvent(task.ID, "pre-skill-failed", err.Error())
			onComplete(task.ID, false, map[string]interface{}{"errorMessage": err.Error()})
			return nil
		}
	}

	preamble := statecontract.BuildPreamble(mode, task.Phase, task.PlanningStatus)
	prompt := preamble + "\n\n" + turnPrompt(task, mode)

	err = s.runTurnWithFallback(ctx, task, st, mode, modelCfg, fallbacks, prompt, nil)
	if err != nil {
		return nil // terminal outcome already reported by runTurnWithFallback
	}

	if st.agentSignaledComplete {
		if mode == statecontract.ModeTaskExecution {
			s.runSkillsBestEffort(ctx, task, st, HookPost)
		}
		s.setStatus(st, StatusCompleted)
		s.logger.WithTask(string(task.ID)).Info("task signaled complete", "mode", mode)
		onComplete(task.ID, true, map[string]interface{}{"summary": st.completionSummary})
		return nil
	}

	// No completion signal: go idle, await follow-up/steer.
	s.setStatus(st, StatusIdle)
	s.logger.WithTask(string(task.ID)).Info("turn ended without completion signal, going idle")
	s.systemEvent(task.ID, "waiting-for-input", "agent turn ended without a completion signal")
	return nil
}

// runTurnWithFallback sends prompt (or followUp when isFollowUp) and, on a
// classified-retryable failure, opens a fresh session against the next
// fallback model and retries the same pending turn once per chain entry.
// Pre-skills are never rerun on fallover.
func (s *Supervisor) runTurnWithFallback(ctx context.Context, task *core.Task, st *sessionState, mode statecontract.Mode, modelCfg core.ModelConfig, fallbacks []core.ModelConfig, text string, images [][]byte) error {
	chain := append([]core.ModelConfig{modelCfg}, fallbacks...)

	var lastErr error
	for i, cfg := range chain {
		if i > 0 {
			s.logger.WithTask(string(task.ID)).Warn("model failover", "from", chain[i-1].ModelID, "to", cfg.ModelID, "cause", lastErr)
			s.systemEvent(task.ID, failoverKind(mode), fmt.Sprintf("falling over from %s to %s after: %v", chain[i-1].ModelID, cfg.ModelID, lastErr))
			newSession, err := s.openSession(ctx, task, cfg, runtime.SessionSource{Kind: runtime.SessionSourceNew})
			if err != nil {
				lastErr = err
				continue
			}
			if st.unsubscribe != nil {
				st.unsubscribe()
			}
			st.session = newSession
			st.unsubscribe = newSession.Subscribe(func(e runtime.Event) { s.handleEvent(st, e) })
		}

		err := st.session.Prompt(ctx, text, images)
		if err == nil && st.lastStopReason() != runtime.StopReasonError {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("%s", st.lastErrorMessage())
		}
		lastErr = err

		if !isRetryable(err) {
			break
		}
	}

	return s.failTerminal(task, st, mode, lastErr, st.lastErrorMessage(), modelCfg)
}

func (st *sessionState) lastStopReason() runtime.StopReason { return st.lastStop }
func (st *sessionState) lastErrorMessage() string            { return st.lastErrMsg }

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	_, ok := breaker.Classify(err.Error())
	return ok
}

func failoverKind(mode statecontract.Mode) string {
	if mode == statecontract.ModeTaskPlanning {
		return "planning-model-failover"
	}
	return "execution-model-failover"
}

func (s *Supervisor) failTerminal(task *core.Task, st *sessionState, mode statecontract.Mode, err error, message string, modelCfg core.ModelConfig) error {
	if message == "" && err != nil {
		message = err.Error()
	}
	s.logger.WithTask(string(task.ID)).Error("task failed", "mode", mode, "model", modelCfg.ModelID, "cause", message)
	s.systemEvent(task.ID, "task-failed", message)
	s.setStatus(st, StatusError)
	s.teardown(st)

	if mode == statecontract.ModeTaskPlanning {
		_, _ = s.tasks.Update(task.ID, taskstore.FrontmatterPatch{"planningStatus": core.PlanningStatusError})
	}
	if st.onComplete != nil {
		st.onComplete(task.ID, false, map[string]interface{}{"errorMessage": message})
	}
	return err
}

func (s *Supervisor) openSession(ctx context.Context, task *core.Task, cfg core.ModelConfig, source runtime.SessionSource) (runtime.Session, error) {
	return s.rt.OpenSession(ctx, runtime.OpenOptions{
		Cwd:           s.cwd,
		Provider:      cfg.Provider,
		ModelID:       cfg.ModelID,
		ThinkingLevel: cfg.ThinkingLevel,
		Source:        source,
	})
}

// Steer delivers an interrupt-style message into a running session.
func (s *Supervisor) Steer(ctx context.Context, taskID core.TaskID, content string, images [][]byte) error {
	st := s.get(taskID)
	if st == nil || st.session == nil {
		return core.ErrNotFound("session", string(taskID))
	}
	return st.session.Steer(ctx, content, images)
}

// FollowUp queues a turn after the session is idle; clears the completion
// flag so a new completion signal is required before advancing again.
func (s *Supervisor) FollowUp(ctx context.Context, taskID core.TaskID, content string, images [][]byte) error {
	st := s.get(taskID)
	if st == nil || st.session == nil {
		return core.ErrNotFound("session", string(taskID))
	}
	st.agentSignaledComplete = false
	s.setStatus(st, StatusRunning)
	err := st.session.FollowUp(ctx, content, images)
	if err != nil {
		return err
	}
	if st.agentSignaledComplete {
		s.setStatus(st, StatusCompleted)
	} else {
		s.setStatus(st, StatusIdle)
	}
	return nil
}

// ResumeChat opens a new session from the task's persisted sessionFile and
// sends content as a follow-up, used for non-executing phases where no
// live Supervisor session exists.
func (s *Supervisor) ResumeChat(ctx context.Context, task *core.Task, content string) error {
	mode := statecontract.ForTask(task)
	cfg := task.ExecutionModelConfig
	session, err := s.openSession(ctx, task, cfg, runtime.SessionSource{Kind: runtime.SessionSourceResumeFrom, Path: task.SessionFile})
	if err != nil {
		return err
	}

	st := &sessionState{taskID: task.ID, workspaceID: s.workspaceID, mode: mode, toolArgs: make(map[string]map[string]interface{})}
	s.mu.Lock()
	s.sessions[task.ID] = st
	s.mu.Unlock()
	s.setStatus(st, StatusRunning)
	st.session = session
	st.unsubscribe = session.Subscribe(func(e runtime.Event) { s.handleEvent(st, e) })

	return session.FollowUp(ctx, content, nil)
}

// Abort cancels any in-flight operation, unsubscribes, and tears down the
// session, marking status=paused.
func (s *Supervisor) Abort(ctx context.Context, taskID core.TaskID) error {
	st := s.get(taskID)
	if st == nil {
		return nil
	}
	if st.session != nil {
		_ = st.session.Abort(ctx)
	}
	s.setStatus(st, StatusPaused)
	s.teardown(st)
	return nil
}

func (s *Supervisor) teardown(st *sessionState) {
	s.logger.WithTask(string(st.taskID)).Debug("tearing down session", "status", st.status)
	if st.unsubscribe != nil {
		st.unsubscribe()
	}
	if st.cancel != nil {
		st.cancel()
	}
	s.tools.UnregisterTask(st.taskID)
	s.mu.Lock()
	delete(s.sessions, st.taskID)
	s.mu.Unlock()
}

// taskDir returns the per-task directory an attachments.Store scopes a
// task's files under (the store appends its own "attachments"
// subdirectory), keeping one task's files from colliding with another's
// even though taskstore.Store itself persists frontmatter as a flat
// "<tasksDir>/<id>.md" file rather than one directory per task.
func (s *Supervisor) taskDir(taskID core.TaskID) string {
	return filepath.Join(s.tasksDir, string(taskID))
}

func (s *Supervisor) get(taskID core.TaskID) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[taskID]
}

func turnPrompt(task *core.Task, mode statecontract.Mode) string {
	if mode == statecontract.ModeTaskPlanning {
		return fmt.Sprintf("Produce an implementation plan for task %q: %s", task.ID, task.Title)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Execute task %q: %s\n", task.ID, task.Title)
	if task.Plan != nil {
		fmt.Fprintf(&b, "Plan goal: %s\n", task.Plan.Goal)
		for _, step := range task.Plan.Steps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("Acceptance criteria:\n")
		for _, c := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}
