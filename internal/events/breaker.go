package events

import "github.com/patleeman/taskfactory/internal/core"

const (
	TypeBreakerOpened    = "breaker:opened"
	TypeBreakerAutoClose = "breaker:auto_closed"
	TypeBreakerBlocked   = "breaker:blocked"
	TypeModelFailover    = "agent:model_failover"
)

// BreakerOpenedEvent reports a newly opened breaker for a (provider,
// modelId) pair.
type BreakerOpenedEvent struct {
	BaseEvent
	Provider     string              `json:"provider"`
	ModelID      string              `json:"modelId"`
	Category     core.BreakerCategory `json:"category"`
	RetryAt      int64               `json:"retryAt"`
	FailureCount int                 `json:"failureCount"`
	ErrorMessage string              `json:"errorMessage"`
}

func NewBreakerOpenedEvent(workspaceID string, key core.ModelKey, rec core.OpenRecord) BreakerOpenedEvent {
	return BreakerOpenedEvent{
		BaseEvent:    NewBaseEvent(TypeBreakerOpened, "", workspaceID),
		Provider:     key.Provider,
		ModelID:      key.ModelID,
		Category:     rec.Category,
		RetryAt:      rec.RetryAt.UnixMilli(),
		FailureCount: rec.FailureCount,
		ErrorMessage: rec.ErrorMessage,
	}
}

// BreakerAutoClosedEvent reports a breaker's cooldown expiring.
type BreakerAutoClosedEvent struct {
	BaseEvent
	Provider string `json:"provider"`
	ModelID  string `json:"modelId"`
}

func NewBreakerAutoClosedEvent(workspaceID string, key core.ModelKey) BreakerAutoClosedEvent {
	return BreakerAutoClosedEvent{
		BaseEvent: NewBaseEvent(TypeBreakerAutoClose, "", workspaceID),
		Provider:  key.Provider,
		ModelID:   key.ModelID,
	}
}

// BreakerBlockedEvent reports the Queue Manager skipping a ready task
// because its execution model's breaker is open. Emitted at most once per
// (task, retryAt).
type BreakerBlockedEvent struct {
	BaseEvent
	TaskID  core.TaskID `json:"taskId"`
	RetryAt int64       `json:"retryAt"`
}

func NewBreakerBlockedEvent(workspaceID string, taskID core.TaskID, retryAtMillis int64) BreakerBlockedEvent {
	return BreakerBlockedEvent{
		BaseEvent: NewBaseEvent(TypeBreakerBlocked, string(taskID), workspaceID),
		TaskID:    taskID,
		RetryAt:   retryAtMillis,
	}
}

// ModelFailoverEvent reports a fallback-chain switch during planning or
// execution.
type ModelFailoverEvent struct {
	BaseEvent
	TaskID      core.TaskID `json:"taskId"`
	Kind        string      `json:"kind"` // planning-model-failover | execution-model-failover
	FromModelID string      `json:"fromModelId"`
	ToModelID   string      `json:"toModelId"`
}

func NewModelFailoverEvent(workspaceID string, taskID core.TaskID, kind, from, to string) ModelFailoverEvent {
	return ModelFailoverEvent{
		BaseEvent:   NewBaseEvent(TypeModelFailover, string(taskID), workspaceID),
		TaskID:      taskID,
		Kind:        kind,
		FromModelID: from,
		ToModelID:   to,
	}
}
