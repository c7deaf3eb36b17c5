package events

import "github.com/patleeman/taskfactory/internal/core"

const TypeActivityEntry = "activity:entry"

// ActivityEntryEvent broadcasts a journal append as it happens, so
// listening UIs render new activity without polling the journal file.
type ActivityEntryEvent struct {
	BaseEvent
	Entry core.ActivityEntry `json:"entry"`
}

func NewActivityEntryEvent(workspaceID string, entry core.ActivityEntry) ActivityEntryEvent {
	return ActivityEntryEvent{
		BaseEvent: NewBaseEvent(TypeActivityEntry, string(entry.TaskID), workspaceID),
		Entry:     entry,
	}
}
