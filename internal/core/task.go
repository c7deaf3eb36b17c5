package core

import (
	"fmt"
	"time"
)

// TaskID is a human-readable task identifier, e.g. "PIFA-123".
type TaskID string

// PlanningStatus tracks the lifecycle of a task's plan generation.
type PlanningStatus string

const (
	PlanningStatusNone      PlanningStatus = "none"
	PlanningStatusRunning   PlanningStatus = "running"
	PlanningStatusCompleted PlanningStatus = "completed"
	PlanningStatusError     PlanningStatus = "error"
)

// ValidPlanningStatus reports whether s is a recognized planning status.
func ValidPlanningStatus(s PlanningStatus) bool {
	switch s {
	case PlanningStatusNone, PlanningStatusRunning, PlanningStatusCompleted, PlanningStatusError:
		return true
	default:
		return false
	}
}

// ModelConfig identifies a provider/model pair an agent session should use.
type ModelConfig struct {
	Provider      string `yaml:"provider" json:"provider"`
	ModelID       string `yaml:"modelId" json:"modelId"`
	ThinkingLevel string `yaml:"thinkingLevel,omitempty" json:"thinkingLevel,omitempty"`
}

// Task is the atomic unit of work tracked by the orchestrator. It is
// persisted as "frontmatter block + blank line + body" in a Markdown file;
// Body holds the free-form Markdown, everything else is frontmatter.
type Task struct {
	ID        TaskID      `yaml:"id" json:"id"`
	Title     string      `yaml:"title" json:"title"`
	Created   time.Time   `yaml:"created" json:"created"`
	Updated   time.Time   `yaml:"updated" json:"updated"`
	Started   *time.Time  `yaml:"started,omitempty" json:"started,omitempty"`
	Completed *time.Time  `yaml:"completed,omitempty" json:"completed,omitempty"`

	Phase Phase `yaml:"phase" json:"phase"`
	Order int   `yaml:"order" json:"order"`

	PlanningStatus PlanningStatus `yaml:"planningStatus" json:"planningStatus"`
	Plan           *Plan          `yaml:"plan,omitempty" json:"plan,omitempty"`

	AcceptanceCriteria []string `yaml:"acceptanceCriteria,omitempty" json:"acceptanceCriteria,omitempty"`

	Attachments []AttachmentRef `yaml:"attachments,omitempty" json:"attachments,omitempty"`

	PlanningModelConfig  ModelConfig `yaml:"planningModelConfig" json:"planningModelConfig"`
	ExecutionModelConfig ModelConfig `yaml:"executionModelConfig" json:"executionModelConfig"`

	PlanningFallbackModels  []ModelConfig `yaml:"planningFallbackModels,omitempty" json:"planningFallbackModels,omitempty"`
	ExecutionFallbackModels []ModelConfig `yaml:"executionFallbackModels,omitempty" json:"executionFallbackModels,omitempty"`

	PreExecutionSkills  []string `yaml:"preExecutionSkills,omitempty" json:"preExecutionSkills,omitempty"`
	PostExecutionSkills []string `yaml:"postExecutionSkills,omitempty" json:"postExecutionSkills,omitempty"`

	SessionFile string `yaml:"sessionFile,omitempty" json:"sessionFile,omitempty"`

	// Body is the free-form Markdown content following the frontmatter
	// block. Not part of the YAML frontmatter itself.
	Body string `yaml:"-" json:"-"`

	// Unknown holds frontmatter keys this version of Task does not model,
	// preserved verbatim so a round-trip never drops data written by a
	// newer or older build.
	Unknown map[string]interface{} `yaml:"-" json:"-"`
}

// NewTask constructs a task entering the backlog with sane defaults. Callers
// set model configs and skills afterward via the builder methods.
func NewTask(id TaskID, title string) *Task {
	now := time.Now()
	return &Task{
		ID:             id,
		Title:          title,
		Created:        now,
		Updated:        now,
		Phase:          PhaseBacklog,
		PlanningStatus: PlanningStatusNone,
	}
}

// WithPlanningModel sets the planning model config.
func (t *Task) WithPlanningModel(cfg ModelConfig) *Task {
	t.PlanningModelConfig = cfg
	return t
}

// WithExecutionModel sets the execution model config.
func (t *Task) WithExecutionModel(cfg ModelConfig) *Task {
	t.ExecutionModelConfig = cfg
	return t
}

// WithSkills sets the pre/post execution skill ID lists.
func (t *Task) WithSkills(pre, post []string) *Task {
	t.PreExecutionSkills = pre
	t.PostExecutionSkills = post
	return t
}

// PlanPresent reports whether the task has a saved plan, per the state
// contract's planPresent input.
func (t *Task) PlanPresent() bool {
	return t.Plan != nil
}

// Validate checks the invariants a Task must hold before being written to
// the store (invariants 1, 4, 5 of the data model).
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrValidation("TASK_ID_REQUIRED", "task ID cannot be empty")
	}
	if t.Title == "" {
		return ErrValidation("TASK_TITLE_REQUIRED", "task title cannot be empty")
	}
	if !ValidPhase(t.Phase) {
		return ErrValidation("TASK_PHASE_INVALID", fmt.Sprintf("invalid phase: %s", t.Phase))
	}
	if !ValidPlanningStatus(t.PlanningStatus) {
		return ErrValidation("TASK_PLANNING_STATUS_INVALID", fmt.Sprintf("invalid planning status: %s", t.PlanningStatus))
	}
	if t.PlanningStatus == PlanningStatusRunning && t.Plan != nil {
		return ErrValidation("TASK_PLANNING_RUNNING_WITH_PLAN", "planningStatus=running requires an absent plan")
	}
	for i, c := range t.AcceptanceCriteria {
		if trimEmpty(c) {
			return ErrValidation("TASK_ACCEPTANCE_CRITERION_EMPTY", fmt.Sprintf("acceptance criterion %d is empty after trim", i))
		}
	}
	return nil
}

func trimEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// MarkStarted records the transition into executing, setting Started on
// first entry only.
func (t *Task) MarkStarted(now time.Time) {
	if t.Started == nil {
		started := now
		t.Started = &started
	}
	t.Phase = PhaseExecuting
	t.Updated = now
}

// MarkComplete records the transition into complete.
func (t *Task) MarkComplete(now time.Time) {
	t.Phase = PhaseComplete
	t.Completed = &now
	t.Updated = now
}
