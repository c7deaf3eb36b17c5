// Package runtime defines the narrow capability interface the Agent
// Session Supervisor consumes from a third-party agent runtime. The
// runtime itself — the actual model calls, tool execution sandbox, context
// management — is external and out of scope; only this contract is owned
// here, mirroring a StreamingCapable/AgentEventHandler split between "what
// we consume" and "how the agent actually works".
package runtime

import "context"

// SessionSourceKind selects whether openSession starts fresh or resumes a
// previously persisted conversation.
type SessionSourceKind string

const (
	SessionSourceNew        SessionSourceKind = "new"
	SessionSourceResumeFrom SessionSourceKind = "resume_from"
)

// SessionSource describes how a session should be opened.
type SessionSource struct {
	Kind SessionSourceKind
	Path string // sessionFile, set only when Kind == SessionSourceResumeFrom
}

// OpenOptions configures a new agent session.
type OpenOptions struct {
	Cwd           string
	Provider      string
	ModelID       string
	ThinkingLevel string
	Source        SessionSource
	ResourceLoader ResourceLoader
	Extensions    []string
}

// ResourceLoader resolves attachment content for prompt construction. The
// Supervisor passes one backed by the attachment store so the runtime
// never needs its own file-access policy.
type ResourceLoader interface {
	Load(ctx context.Context, ref string) ([]byte, string, error) // data, mimeType, error
}

// AgentRuntime opens sessions against a concrete agent backend.
type AgentRuntime interface {
	OpenSession(ctx context.Context, opts OpenOptions) (Session, error)
}

// Session is one live conversation with the agent runtime.
type Session interface {
	// Subscribe registers a listener for session events and returns an
	// unsubscribe function.
	Subscribe(listener func(Event)) (unsubscribe func())

	// Prompt starts a turn and settles (the returned error is non-nil only
	// for transport-level failures; a turn-level error is reported via a
	// message_end event with an ErrorMessage and is not an error return).
	Prompt(ctx context.Context, text string, images [][]byte) error

	// FollowUp queues a turn after the session is idle; settles the same
	// way as Prompt.
	FollowUp(ctx context.Context, text string, images [][]byte) error

	// Steer delivers an interrupt-style message into a running turn and
	// returns as soon as the interrupt is delivered, without waiting for
	// the turn to settle.
	Steer(ctx context.Context, text string, images [][]byte) error

	// Abort cancels any in-flight operation and tears down the session.
	Abort(ctx context.Context) error

	// SessionFile returns the opaque identifier a later OpenSession call
	// can resume from.
	SessionFile() string
}

// EventKind discriminates the tagged union of runtime events.
type EventKind string

const (
	EventAgentStart        EventKind = "agent_start"
	EventAgentEnd          EventKind = "agent_end"
	EventMessageStart      EventKind = "message_start"
	EventTextDelta         EventKind = "text_delta"
	EventThinkingDelta     EventKind = "thinking_delta"
	EventThinkingEnd       EventKind = "thinking_end"
	EventMessageEnd        EventKind = "message_end"
	EventToolExecStart     EventKind = "tool_execution_start"
	EventToolExecUpdate    EventKind = "tool_execution_update"
	EventToolExecEnd       EventKind = "tool_execution_end"
	EventTurnEnd           EventKind = "turn_end"
	EventAutoCompactStart  EventKind = "auto_compaction_start"
	EventAutoCompactEnd    EventKind = "auto_compaction_end"
	EventAutoRetryStart    EventKind = "auto_retry_start"
	EventAutoRetryEnd      EventKind = "auto_retry_end"
)

// StopReason classifies how a turn ended, carried on message_end/turn_end.
type StopReason string

const (
	StopReasonComplete StopReason = "complete"
	StopReasonError    StopReason = "error"
	StopReasonAborted  StopReason = "aborted"
)

// Event is one runtime occurrence. Only the fields relevant to Kind are
// populated; this mirrors a single-struct tagged-union style rather than a
// Go sum-type-via-interface, since the Supervisor's event-translation
// switch wants direct field access.
type Event struct {
	Kind EventKind

	// text_delta / thinking_delta
	Delta string

	// message_end
	Content      string
	StopReason   StopReason
	ErrorMessage string

	// tool_execution_start/update/end
	ToolName string
	ToolArgs map[string]interface{}
	ToolIsError bool
	ToolResult  string
	Progress    string
}
