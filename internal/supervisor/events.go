package supervisor

import (
	"time"

	"github.com/google/uuid"

	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/events"
	"github.com/patleeman/taskfactory/internal/runtime"
	"github.com/patleeman/taskfactory/internal/statecontract"
)

// handleEvent translates one runtime.Event into Activity Log entries and
// broadcasts, and updates session bookkeeping (accumulated stream text,
// last stop reason, completion flag already set separately by the
// task_complete tool callback).
func (s *Supervisor) handleEvent(st *sessionState, e runtime.Event) {
	switch e.Kind {
	case runtime.EventMessageStart:
		st.streamText.Reset()
		s.publish(events.NewAgentStreamingStartEvent(s.workspaceID, st.taskID))

	case runtime.EventTextDelta:
		st.streamText.WriteString(e.Delta)
		s.publish(events.NewAgentStreamingTextEvent(s.workspaceID, st.taskID, e.Delta))

	case runtime.EventThinkingDelta:
		st.thinkingText.WriteString(e.Delta)
		s.publish(events.NewAgentThinkingDeltaEvent(s.workspaceID, st.taskID, e.Delta))

	case runtime.EventThinkingEnd:
		s.publish(events.NewAgentThinkingEndEvent(s.workspaceID, st.taskID))

	case runtime.EventMessageEnd:
		st.lastStop = e.StopReason
		st.lastErrMsg = e.ErrorMessage
		content := statecontract.StripEchoedPreamble(e.Content)
		s.publish(events.NewAgentStreamingEndEvent(s.workspaceID, st.taskID, content))
		if e.StopReason != runtime.StopReasonError && content != "" {
			s.appendActivity(core.NewChatMessage(uuid.New().String(), st.taskID, time.Now(), core.ChatRoleAgent, content, nil))
		}

	case runtime.EventToolExecStart:
		st.toolArgs[e.ToolName] = e.ToolArgs
		s.publish(events.NewAgentToolStartEvent(s.workspaceID, st.taskID, e.ToolName, e.ToolArgs))

	case runtime.EventToolExecUpdate:
		s.publish(events.NewAgentToolUpdateEvent(s.workspaceID, st.taskID, e.ToolName, e.Progress))

	case runtime.EventToolExecEnd:
		s.publish(events.NewAgentToolEndEvent(s.workspaceID, st.taskID, e.ToolName, e.ToolIsError, e.ToolResult))
		meta := &core.ChatMessageMetadata{
			ToolName: e.ToolName,
			ToolArgs: st.toolArgs[e.ToolName],
			IsError:  e.ToolIsError,
			Result:   e.ToolResult,
		}
		s.appendActivity(core.NewChatMessage(uuid.New().String(), st.taskID, time.Now(), core.ChatRoleAgent, "", meta))

	case runtime.EventTurnEnd:
		s.publish(events.NewAgentTurnEndEvent(s.workspaceID, st.taskID, string(st.lastStop)))
	}
}
