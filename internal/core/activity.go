package core

import "time"

// ActivityEntryKind discriminates the variants of ActivityEntry.
type ActivityEntryKind string

const (
	ActivityKindTaskSeparator ActivityEntryKind = "task-separator"
	ActivityKindChatMessage   ActivityEntryKind = "chat-message"
	ActivityKindSystemEvent   ActivityEntryKind = "system-event"
)

// ChatRole is the speaker of a chat-message activity entry.
type ChatRole string

const (
	ChatRoleUser   ChatRole = "user"
	ChatRoleAgent  ChatRole = "agent"
	ChatRoleSystem ChatRole = "system"
)

// ActivityEntry is one line of a workspace's append-only journal. Every
// entry carries the common fields; Kind selects which of the
// kind-specific fields are populated.
type ActivityEntry struct {
	ID        string            `json:"id"`
	TaskID    TaskID            `json:"taskId"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      ActivityEntryKind `json:"kind"`

	// chat-message fields
	Role     ChatRole             `json:"role,omitempty"`
	Content  string               `json:"content,omitempty"`
	Metadata *ChatMessageMetadata `json:"metadata,omitempty"`

	// system-event fields
	EventKind string `json:"eventKind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ChatMessageMetadata carries tool-call details attached to a chat-message
// entry produced from a tool_execution_end runtime event.
type ChatMessageMetadata struct {
	ToolName string                 `json:"toolName,omitempty"`
	ToolArgs map[string]interface{} `json:"toolArgs,omitempty"`
	IsError  bool                   `json:"isError,omitempty"`
	Result   string                 `json:"result,omitempty"`
}

// NewTaskSeparator starts a new per-task session in a newest-first journal
// read; the grouping helper folds entries between separators.
func NewTaskSeparator(id string, taskID TaskID, ts time.Time) ActivityEntry {
	return ActivityEntry{ID: id, TaskID: taskID, Timestamp: ts, Kind: ActivityKindTaskSeparator}
}

// NewChatMessage records a user, agent, or system chat turn.
func NewChatMessage(id string, taskID TaskID, ts time.Time, role ChatRole, content string, meta *ChatMessageMetadata) ActivityEntry {
	return ActivityEntry{
		ID:        id,
		TaskID:    taskID,
		Timestamp: ts,
		Kind:      ActivityKindChatMessage,
		Role:      role,
		Content:   content,
		Metadata:  meta,
	}
}

// NewSystemEvent records an orchestrator-originated note: phase changes,
// breaker open/close, failover, waiting-for-input.
func NewSystemEvent(id string, taskID TaskID, ts time.Time, eventKind, message string) ActivityEntry {
	return ActivityEntry{
		ID:        id,
		TaskID:    taskID,
		Timestamp: ts,
		Kind:      ActivityKindSystemEvent,
		EventKind: eventKind,
		Message:   message,
	}
}

// GroupByTask folds a newest-first entry sequence into per-task sessions,
// each starting at a task-separator. Entries preceding the first separator
// form an implicit leading group keyed by their own TaskID.
func GroupByTask(entries []ActivityEntry) [][]ActivityEntry {
	var groups [][]ActivityEntry
	var current []ActivityEntry
	for _, e := range entries {
		if e.Kind == ActivityKindTaskSeparator && len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, e)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}
