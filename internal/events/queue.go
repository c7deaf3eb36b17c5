package events

import "github.com/patleeman/taskfactory/internal/core"

const (
	TypeQueueStatus = "queue:status"
	TypeTaskMoved   = "task:moved"
	TypeTaskUpdated = "task:updated"
	TypeTaskPlanGenerated = "task:plan_generated"
)

// QueueStatusEvent reports a workspace's Queue Manager enabled/breaker
// state after a kick loop pass.
type QueueStatusEvent struct {
	BaseEvent
	Enabled        bool `json:"enabled"`
	OpenBreakers   int  `json:"openBreakers"`
	LiveExecuting  int  `json:"liveExecuting"`
}

func NewQueueStatusEvent(workspaceID string, enabled bool, openBreakers, liveExecuting int) QueueStatusEvent {
	return QueueStatusEvent{
		BaseEvent:     NewBaseEvent(TypeQueueStatus, "", workspaceID),
		Enabled:       enabled,
		OpenBreakers:  openBreakers,
		LiveExecuting: liveExecuting,
	}
}

// TaskMovedEvent reports a phase transition performed by the Queue Manager
// or a user-initiated move.
type TaskMovedEvent struct {
	BaseEvent
	TaskID core.TaskID `json:"taskId"`
	From   core.Phase  `json:"from"`
	To     core.Phase  `json:"to"`
	Reason string      `json:"reason,omitempty"`
}

func NewTaskMovedEvent(workspaceID string, taskID core.TaskID, from, to core.Phase, reason string) TaskMovedEvent {
	return TaskMovedEvent{
		BaseEvent: NewBaseEvent(TypeTaskMoved, string(taskID), workspaceID),
		TaskID:    taskID,
		From:      from,
		To:        to,
		Reason:    reason,
	}
}

// TaskUpdatedEvent reports a frontmatter patch applied to a task outside of
// a phase move (title edit, model config change, attachment added).
type TaskUpdatedEvent struct {
	BaseEvent
	TaskID  core.TaskID            `json:"taskId"`
	Changes map[string]interface{} `json:"changes"`
}

func NewTaskUpdatedEvent(workspaceID string, taskID core.TaskID, changes map[string]interface{}) TaskUpdatedEvent {
	return TaskUpdatedEvent{
		BaseEvent: NewBaseEvent(TypeTaskUpdated, string(taskID), workspaceID),
		TaskID:    taskID,
		Changes:   changes,
	}
}

// TaskPlanGeneratedEvent reports a successful save_plan callback.
type TaskPlanGeneratedEvent struct {
	BaseEvent
	TaskID core.TaskID `json:"taskId"`
	Plan   *core.Plan  `json:"plan"`
}

func NewTaskPlanGeneratedEvent(workspaceID string, taskID core.TaskID, plan *core.Plan) TaskPlanGeneratedEvent {
	return TaskPlanGeneratedEvent{
		BaseEvent: NewBaseEvent(TypeTaskPlanGenerated, string(taskID), workspaceID),
		TaskID:    taskID,
		Plan:      plan,
	}
}
