package events

import "github.com/patleeman/taskfactory/internal/core"

const (
	TypeAgentExecutionStatus = "agent:execution_status"
	TypeAgentStreamingStart  = "agent:streaming_start"
	TypeAgentStreamingText   = "agent:streaming_text"
	TypeAgentStreamingEnd    = "agent:streaming_end"
	TypeAgentThinkingDelta   = "agent:thinking_delta"
	TypeAgentThinkingEnd     = "agent:thinking_end"
	TypeAgentToolStart       = "agent:tool_start"
	TypeAgentToolUpdate      = "agent:tool_update"
	TypeAgentToolEnd         = "agent:tool_end"
	TypeAgentTurnEnd         = "agent:turn_end"
)

// AgentExecutionStatusEvent mirrors a session's status field (idle, running,
// paused, completed, error) to broadcast listeners.
type AgentExecutionStatusEvent struct {
	BaseEvent
	TaskID core.TaskID `json:"taskId"`
	Status string      `json:"status"`
}

func NewAgentExecutionStatusEvent(workspaceID string, taskID core.TaskID, status string) AgentExecutionStatusEvent {
	return AgentExecutionStatusEvent{
		BaseEvent: NewBaseEvent(TypeAgentExecutionStatus, string(taskID), workspaceID),
		TaskID:    taskID,
		Status:    status,
	}
}

// AgentStreamingStartEvent marks the beginning of an assistant message.
type AgentStreamingStartEvent struct {
	BaseEvent
	TaskID core.TaskID `json:"taskId"`
}

func NewAgentStreamingStartEvent(workspaceID string, taskID core.TaskID) AgentStreamingStartEvent {
	return AgentStreamingStartEvent{BaseEvent: NewBaseEvent(TypeAgentStreamingStart, string(taskID), workspaceID), TaskID: taskID}
}

// AgentStreamingTextEvent carries one text_delta chunk.
type AgentStreamingTextEvent struct {
	BaseEvent
	TaskID core.TaskID `json:"taskId"`
	Delta  string      `json:"delta"`
}

func NewAgentStreamingTextEvent(workspaceID string, taskID core.TaskID, delta string) AgentStreamingTextEvent {
	return AgentStreamingTextEvent{
		BaseEvent: NewBaseEvent(TypeAgentStreamingText, string(taskID), workspaceID),
		TaskID:    taskID,
		Delta:     delta,
	}
}

// AgentStreamingEndEvent marks message_end, carrying the full accumulated
// content.
type AgentStreamingEndEvent struct {
	BaseEvent
	TaskID  core.TaskID `json:"taskId"`
	Content string      `json:"content"`
}

func NewAgentStreamingEndEvent(workspaceID string, taskID core.TaskID, content string) AgentStreamingEndEvent {
	return AgentStreamingEndEvent{
		BaseEvent: NewBaseEvent(TypeAgentStreamingEnd, string(taskID), workspaceID),
		TaskID:    taskID,
		Content:   content,
	}
}

// AgentThinkingDeltaEvent carries one thinking_delta chunk.
type AgentThinkingDeltaEvent struct {
	BaseEvent
	TaskID core.TaskID `json:"taskId"`
	Delta  string      `json:"delta"`
}

func NewAgentThinkingDeltaEvent(workspaceID string, taskID core.TaskID, delta string) AgentThinkingDeltaEvent {
	return AgentThinkingDeltaEvent{
		BaseEvent: NewBaseEvent(TypeAgentThinkingDelta, string(taskID), workspaceID),
		TaskID:    taskID,
		Delta:     delta,
	}
}

// AgentThinkingEndEvent marks the end of a thinking block.
type AgentThinkingEndEvent struct {
	BaseEvent
	TaskID core.TaskID `json:"taskId"`
}

func NewAgentThinkingEndEvent(workspaceID string, taskID core.TaskID) AgentThinkingEndEvent {
	return AgentThinkingEndEvent{BaseEvent: NewBaseEvent(TypeAgentThinkingEnd, string(taskID), workspaceID), TaskID: taskID}
}

// AgentToolStartEvent reports tool_execution_start with captured args.
type AgentToolStartEvent struct {
	BaseEvent
	TaskID   core.TaskID            `json:"taskId"`
	ToolName string                 `json:"toolName"`
	Args     map[string]interface{} `json:"args"`
}

func NewAgentToolStartEvent(workspaceID string, taskID core.TaskID, toolName string, args map[string]interface{}) AgentToolStartEvent {
	return AgentToolStartEvent{
		BaseEvent: NewBaseEvent(TypeAgentToolStart, string(taskID), workspaceID),
		TaskID:    taskID,
		ToolName:  toolName,
		Args:      args,
	}
}

// AgentToolUpdateEvent reports incremental tool progress, if the runtime
// emits any between start and end.
type AgentToolUpdateEvent struct {
	BaseEvent
	TaskID   core.TaskID `json:"taskId"`
	ToolName string      `json:"toolName"`
	Progress string      `json:"progress"`
}

func NewAgentToolUpdateEvent(workspaceID string, taskID core.TaskID, toolName, progress string) AgentToolUpdateEvent {
	return AgentToolUpdateEvent{
		BaseEvent: NewBaseEvent(TypeAgentToolUpdate, string(taskID), workspaceID),
		TaskID:    taskID,
		ToolName:  toolName,
		Progress:  progress,
	}
}

// AgentToolEndEvent reports tool_execution_end, matching the chat-message
// entry written to the Activity Log for the same call.
type AgentToolEndEvent struct {
	BaseEvent
	TaskID   core.TaskID `json:"taskId"`
	ToolName string      `json:"toolName"`
	IsError  bool        `json:"isError"`
	Result   string      `json:"result"`
}

func NewAgentToolEndEvent(workspaceID string, taskID core.TaskID, toolName string, isError bool, result string) AgentToolEndEvent {
	return AgentToolEndEvent{
		BaseEvent: NewBaseEvent(TypeAgentToolEnd, string(taskID), workspaceID),
		TaskID:    taskID,
		ToolName:  toolName,
		IsError:   isError,
		Result:    result,
	}
}

// AgentTurnEndEvent marks the end of an agent turn, independent of whether
// the turn produced a completion signal.
type AgentTurnEndEvent struct {
	BaseEvent
	TaskID     core.TaskID `json:"taskId"`
	StopReason string      `json:"stopReason"`
}

func NewAgentTurnEndEvent(workspaceID string, taskID core.TaskID, stopReason string) AgentTurnEndEvent {
	return AgentTurnEndEvent{
		BaseEvent:  NewBaseEvent(TypeAgentTurnEnd, string(taskID), workspaceID),
		TaskID:     taskID,
		StopReason: stopReason,
	}
}
