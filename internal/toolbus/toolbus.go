// Package toolbus is the process-wide routing table between sandboxed
// extension tools running inside an agent runtime and the orchestration
// core. It is shaped like a pending-request map (map[string]chan
// InputResponse) generalized from one callback family (user input) to the
// eight families an extension tool can invoke: plan, complete, attachFile,
// qa, messageAgent, factoryControl, shelf, createExtension.
//
// The registry is not persisted; it is rebuilt every time a session
// starts, not recovered from disk.
package toolbus

import (
	"sync"

	"github.com/patleeman/taskfactory/internal/core"
)

// PlanCallback persists a save_plan invocation: acceptanceCriteria + plan.
type PlanCallback func(taskID core.TaskID, criteria []string, plan *core.Plan) error

// CompleteCallback records a task_complete invocation's summary.
type CompleteCallback func(taskID core.TaskID, summary string) error

// AttachFileCallback handles an attach_task_file invocation.
type AttachFileCallback func(taskID core.TaskID, sourcePath, filenameOverride string) (core.AttachmentRef, error)

// QACallback handles an ask_questions invocation, returning the user's
// answer (or an error if no operator is listening).
type QACallback func(workspaceID string, question string, options []string) (string, error)

// MessageAgentCallback routes a foreman-mode message_agent invocation to a
// specific task's session.
type MessageAgentCallback func(taskID core.TaskID, content string) error

// FactoryControlCallback handles a factory_control invocation (pause/resume
// the queue, stop a task, etc).
type FactoryControlCallback func(workspaceID string, action string, args map[string]interface{}) error

// ShelfCallback handles manage_shelf invocations (parking lot of draft
// ideas a foreman-mode session can create without a full task).
type ShelfCallback func(workspaceID string, action string, payload map[string]interface{}) error

// CreateExtensionCallback handles a create_artifact/create_draft_task style
// invocation that materializes a new object from agent output.
type CreateExtensionCallback func(workspaceID string, kind string, payload map[string]interface{}) (string, error)

// Registry is the process-wide callback table. Each family is keyed
// independently by the context id the Supervisor registered it under
// (usually a TaskID, sometimes a workspaceID for foreman-scoped families).
type Registry struct {
	mu sync.RWMutex

	plan            map[core.TaskID]PlanCallback
	complete        map[core.TaskID]CompleteCallback
	attachFile      map[core.TaskID]AttachFileCallback
	qa              map[string]QACallback
	messageAgent    map[core.TaskID]MessageAgentCallback
	factoryControl  map[string]FactoryControlCallback
	shelf           map[string]ShelfCallback
	createExtension map[string]CreateExtensionCallback
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		plan:            make(map[core.TaskID]PlanCallback),
		complete:        make(map[core.TaskID]CompleteCallback),
		attachFile:      make(map[core.TaskID]AttachFileCallback),
		qa:              make(map[string]QACallback),
		messageAgent:    make(map[core.TaskID]MessageAgentCallback),
		factoryControl:  make(map[string]FactoryControlCallback),
		shelf:           make(map[string]ShelfCallback),
		createExtension: make(map[string]CreateExtensionCallback),
	}
}

func (r *Registry) RegisterPlan(taskID core.TaskID, cb PlanCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plan[taskID] = cb
}

func (r *Registry) UnregisterPlan(taskID core.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plan, taskID)
}

// InvokePlan looks up and calls the plan callback for taskID, returning
// core.ErrExtensionUnavailable if none is registered.
func (r *Registry) InvokePlan(taskID core.TaskID, criteria []string, plan *core.Plan) error {
	r.mu.RLock()
	cb, ok := r.plan[taskID]
	r.mu.RUnlock()
	if !ok {
		return core.ErrExtensionUnavailable("plan")
	}
	return cb(taskID, criteria, plan)
}

func (r *Registry) RegisterComplete(taskID core.TaskID, cb CompleteCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete[taskID] = cb
}

func (r *Registry) UnregisterComplete(taskID core.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.complete, taskID)
}

func (r *Registry) InvokeComplete(taskID core.TaskID, summary string) error {
	r.mu.RLock()
	cb, ok := r.complete[taskID]
	r.mu.RUnlock()
	if !ok {
		return core.ErrExtensionUnavailable("complete")
	}
	return cb(taskID, summary)
}

func (r *Registry) RegisterAttachFile(taskID core.TaskID, cb AttachFileCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachFile[taskID] = cb
}

func (r *Registry) UnregisterAttachFile(taskID core.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attachFile, taskID)
}

func (r *Registry) InvokeAttachFile(taskID core.TaskID, sourcePath, filenameOverride string) (core.AttachmentRef, error) {
	r.mu.RLock()
	cb, ok := r.attachFile[taskID]
	r.mu.RUnlock()
	if !ok {
		return core.AttachmentRef{}, core.ErrExtensionUnavailable("attachFile")
	}
	return cb(taskID, sourcePath, filenameOverride)
}

func (r *Registry) RegisterQA(workspaceID string, cb QACallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.qa[workspaceID] = cb
}

func (r *Registry) UnregisterQA(workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.qa, workspaceID)
}

func (r *Registry) InvokeQA(workspaceID, question string, options []string) (string, error) {
	r.mu.RLock()
	cb, ok := r.qa[workspaceID]
	r.mu.RUnlock()
	if !ok {
		return "", core.ErrExtensionUnavailable("qa")
	}
	return cb(workspaceID, question, options)
}

func (r *Registry) RegisterMessageAgent(taskID core.TaskID, cb MessageAgentCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messageAgent[taskID] = cb
}

func (r *Registry) UnregisterMessageAgent(taskID core.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messageAgent, taskID)
}

func (r *Registry) InvokeMessageAgent(taskID core.TaskID, content string) error {
	r.mu.RLock()
	cb, ok := r.messageAgent[taskID]
	r.mu.RUnlock()
	if !ok {
		return core.ErrExtensionUnavailable("messageAgent")
	}
	return cb(taskID, content)
}

func (r *Registry) RegisterFactoryControl(workspaceID string, cb FactoryControlCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factoryControl[workspaceID] = cb
}

func (r *Registry) UnregisterFactoryControl(workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factoryControl, workspaceID)
}

func (r *Registry) InvokeFactoryControl(workspaceID, action string, args map[string]interface{}) error {
	r.mu.RLock()
	cb, ok := r.factoryControl[workspaceID]
	r.mu.RUnlock()
	if !ok {
		return core.ErrExtensionUnavailable("factoryControl")
	}
	return cb(workspaceID, action, args)
}

func (r *Registry) RegisterShelf(workspaceID string, cb ShelfCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shelf[workspaceID] = cb
}

func (r *Registry) UnregisterShelf(workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shelf, workspaceID)
}

func (r *Registry) InvokeShelf(workspaceID, action string, payload map[string]interface{}) error {
	r.mu.RLock()
	cb, ok := r.shelf[workspaceID]
	r.mu.RUnlock()
	if !ok {
		return core.ErrExtensionUnavailable("shelf")
	}
	return cb(workspaceID, action, payload)
}

func (r *Registry) RegisterCreateExtension(workspaceID string, cb CreateExtensionCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createExtension[workspaceID] = cb
}

func (r *Registry) UnregisterCreateExtension(workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.createExtension, workspaceID)
}

func (r *Registry) InvokeCreateExtension(workspaceID, kind string, payload map[string]interface{}) (string, error) {
	r.mu.RLock()
	cb, ok := r.createExtension[workspaceID]
	r.mu.RUnlock()
	if !ok {
		return "", core.ErrExtensionUnavailable("createExtension")
	}
	return cb(workspaceID, kind, payload)
}

// UnregisterTask removes every per-task callback family for taskID,
// called by the Supervisor on session teardown so a stale callback never
// outlives its session.
func (r *Registry) UnregisterTask(taskID core.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plan, taskID)
	delete(r.complete, taskID)
	delete(r.attachFile, taskID)
	delete(r.messageAgent, taskID)
}
