// Package queue implements the per-workspace Queue Manager: the only
// component that decides when a task transitions phases. It watches the
// Task Store, honors WIP limits, recovers orphaned executions, consults the
// Execution Breaker before dispatch, and invokes the Agent Session
// Supervisor.
//
// Shaped like a single-workflow-at-a-time scheduler with an enable/disable
// toggle, a tick loop, and a circuit breaker consulted before dispatch,
// generalized here from one global workflow slot to a WIP-limited pool of
// concurrently executing tasks, and from a plain ticker to a
// single-flighted kick loop additionally triggered by filesystem events.
package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/patleeman/taskfactory/internal/activity"
	"github.com/patleeman/taskfactory/internal/breaker"
	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/events"
	"github.com/patleeman/taskfactory/internal/lease"
	"github.com/patleeman/taskfactory/internal/logging"
	"github.com/patleeman/taskfactory/internal/supervisor"
	"github.com/patleeman/taskfactory/internal/taskstore"
)

// orphanedMaxAge mirrors the Supervisor's constant: an executing task
// started more recently than this is left alone for a cycle rather than
// immediately resumed or bounced back to ready, in case another process
// instance is still legitimately running it.
const orphanedMaxAge = 2 * time.Minute

// safetyPollInterval re-enters the kick loop periodically in case an
// external event (a direct file write, a missed broadcast) was missed.
const safetyPollInterval = 30 * time.Second

// Limits is the resolved WIP and automation configuration for one
// workspace, normally produced by the Workflow Settings layer; accepted
// here as a plain struct so the Queue Manager does not depend on that
// layer's resolution mechanism.
type Limits struct {
	ExecutingLimit   int
	ReadyLimit       int
	BacklogToReady   bool
	ReadyToExecuting bool
}

// LimitsProvider resolves the effective Limits for a workspace, re-read on
// every kick so a live settings change takes effect on the next cycle.
type LimitsProvider interface {
	Resolve(workspaceID string) Limits
}

// StaticLimits is a LimitsProvider returning a fixed value, useful for
// tests and for workspaces that have not been migrated onto the layered
// settings resolver.
type StaticLimits Limits

func (s StaticLimits) Resolve(string) Limits { return Limits(s) }

// Executor is the narrow slice of *supervisor.Supervisor the Queue Manager
// depends on, kept as an interface so tests can substitute a scripted
// double instead of driving a real agent runtime end to end.
type Executor interface {
	ExecuteTask(ctx context.Context, task *core.Task, onComplete supervisor.OnComplete) error
	ResumeExecution(ctx context.Context, task *core.Task, onComplete supervisor.OnComplete) error
	Abort(ctx context.Context, taskID core.TaskID) error
}

// Manager runs the kick loop for a single workspace.
type Manager struct {
	workspaceID string
	ownerID     string
	tasksDir    string

	tasks      *taskstore.Store
	log        *activity.Journal
	bus        *events.EventBus
	leases     *lease.Store
	breaker    *breaker.Breaker
	supervisor Executor
	limits     LimitsProvider
	logger     *logging.Logger

	mu                  sync.Mutex
	enabled             bool
	lifecycleGeneration int
	executionAttempts   map[core.TaskID]string
	active              map[core.TaskID]context.CancelFunc
	blockedNotices      map[core.TaskID]int64 // last notified retryAt millis

	sf      singleflight.Group
	stopCh  chan struct{}
	doneCh  chan struct{}
	watcher *watcher
}

// Config bundles a Manager's collaborators.
type Config struct {
	WorkspaceID string
	OwnerID     string
	TasksDir    string
	Tasks       *taskstore.Store
	Journal     *activity.Journal
	Bus         *events.EventBus
	Leases      *lease.Store
	Breaker     *breaker.Breaker
	Supervisor  Executor
	Limits      LimitsProvider
	Logger      *logging.Logger
}

// New constructs a Manager for one workspace. The manager starts disabled;
// call Start to begin the kick loop.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Limits == nil {
		cfg.Limits = StaticLimits{ExecutingLimit: 1, ReadyLimit: 5, ReadyToExecuting: true}
	}
	return &Manager{
		workspaceID:       cfg.WorkspaceID,
		ownerID:           cfg.OwnerID,
		tasksDir:          cfg.TasksDir,
		tasks:             cfg.Tasks,
		log:               cfg.Journal,
		bus:               cfg.Bus,
		leases:            cfg.Leases,
		breaker:           cfg.Breaker,
		supervisor:        cfg.Supervisor,
		limits:            cfg.Limits,
		logger:            logger,
		executionAttempts: make(map[core.TaskID]string),
		active:            make(map[core.TaskID]context.CancelFunc),
		blockedNotices:    make(map[core.TaskID]int64),
	}
}

// Start enables the kick loop: operator intent to resume, so every open
// breaker is cleared. Safe to call again after Stop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = true
	m.lifecycleGeneration++
	m.breaker.ResetAll()
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	m.logger.WithWorkspace(m.workspaceID).Info("queue manager started")
	m.reconcileLeases()
	go m.runLoop(ctx)

	w, err := newWatcher(m.tasksDir, func() { m.Kick(ctx) })
	if err != nil {
		m.logger.WithWorkspace(m.workspaceID).Warn("tasks directory watch unavailable, relying on safety poll", "error", err)
	} else {
		m.mu.Lock()
		m.watcher = w
		m.mu.Unlock()
	}

	m.Kick(ctx)
}

// Stop disables the kick loop, aborts every live session, and marks each
// abandoned task's status paused. Advances lifecycleGeneration so any
// in-flight continuation captured before Stop becomes a no-op.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = false
	m.lifecycleGeneration++
	active := m.active
	m.active = make(map[core.TaskID]context.CancelFunc)
	stopCh := m.stopCh
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if w != nil {
		w.close()
	}

	for taskID, cancel := range active {
		cancel()
		_ = m.supervisor.Abort(ctx, taskID)
		_ = m.leases.Clear(taskID)
	}
	if len(active) > 0 {
		m.bus.Publish(events.NewQueueStatusEvent(m.workspaceID, false, len(m.breaker.OpenKeys()), 0))
	}
	if stopCh != nil {
		close(stopCh)
		<-m.doneCh
	}
	m.logger.WithWorkspace(m.workspaceID).Info("queue manager stopped")
}

func (m *Manager) runLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(safetyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Kick(ctx)
		}
	}
}

// Kick triggers processNext, coalescing concurrent callers into at most
// one in-flight scan via singleflight.
func (m *Manager) Kick(ctx context.Context) {
	_, _, _ = m.sf.Do(m.workspaceID, func() (interface{}, error) {
		m.processNext(ctx)
		return nil, nil
	})
}

func (m *Manager) generation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lifecycleGeneration
}

func (m *Manager) liveExecutingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// processNext is the kick loop's single pass, implementing the nine-step
// algorithm: clear expired breakers, recover or bounce orphans, then
// dispatch the oldest unblocked ready task if WIP allows.
func (m *Manager) processNext(ctx context.Context) {
	if !m.isEnabled() {
		return
	}
	limits := m.limits.Resolve(m.workspaceID)
	now := time.Now()
	gen := m.generation()

	allTasks, err := m.tasks.List("")
	if err != nil {
		m.logger.WithWorkspace(m.workspaceID).Error("listing tasks failed", "error", err)
		return
	}

	m.refreshBreakers(allTasks, now)

	var executing []*core.Task
	for _, t := range allTasks {
		if t.Phase == core.PhaseExecuting {
			executing = append(executing, t)
		}
	}

	var orphans []*core.Task
	m.mu.Lock()
	for _, t := range executing {
		if _, live := m.active[t.ID]; !live {
			orphans = append(orphans, t)
		}
	}
	m.mu.Unlock()

	availableResumeSlots := limits.ExecutingLimit - m.liveExecutingCount()
	if availableResumeSlots < 0 {
		availableResumeSlots = 0
	}

	var resumableOrphan *core.Task
	if availableResumeSlots > 0 {
		for _, o := range orphans {
			if o.Started != nil && now.Sub(*o.Started) > orphanedMaxAge {
				resumableOrphan = o
				break
			}
		}
	}

	for _, o := range orphans {
		if resumableOrphan != nil && o.ID == resumableOrphan.ID {
			continue
		}
		_ = m.supervisor.Abort(ctx, o.ID)
		_ = m.leases.Clear(o.ID)
		reason := "orphan recovery: no live session found"
		if o.Started != nil && now.Sub(*o.Started) <= orphanedMaxAge {
			reason = "failed recently: orphaned before completing a heartbeat"
		}
		if _, err := m.tasks.Move(o.ID, core.PhaseReady, reason); err != nil {
			m.logger.WithWorkspace(m.workspaceID).Error("failed to move orphan back to ready", "task", o.ID, "error", err)
			continue
		}
		m.appendSystemEvent(o.ID, "task-orphaned", reason)
	}

	if resumableOrphan != nil {
		m.startResume(ctx, resumableOrphan, gen)
		return
	}

	if m.liveExecutingCount() >= limits.ExecutingLimit {
		return
	}

	if !limits.ReadyToExecuting {
		return
	}

	ready := filterReadyDispatchable(allTasks)
	sortReadyForDispatch(ready)

	var dispatch *core.Task
	for _, t := range ready {
		key := core.KeyOf(t.ExecutionModelConfig)
		open, justClosed := m.breaker.IsOpen(key, now)
		if justClosed {
			m.bus.Publish(events.NewBreakerAutoClosedEvent(m.workspaceID, key))
		}
		if open {
			rec, _ := m.breaker.OpenRecord(key)
			retryAtMillis := rec.RetryAt.UnixMilli()
			m.mu.Lock()
			last, notified := m.blockedNotices[t.ID]
			if !notified || last != retryAtMillis {
				m.blockedNotices[t.ID] = retryAtMillis
				m.mu.Unlock()
				m.bus.Publish(events.NewBreakerBlockedEvent(m.workspaceID, t.ID, retryAtMillis))
			} else {
				m.mu.Unlock()
			}
			continue
		}
		dispatch = t
		break
	}

	if dispatch == nil {
		return
	}

	m.startDispatch(ctx, dispatch, gen)
}

// reconcileLeases runs once at Start, inspecting the on-disk lease file to
// decide which tasks left in executing survived a restart with a live
// owner versus which were abandoned by a process that crashed without
// clearing its lease. A missing or stale lease is bounced back to ready
// immediately; a still-fresh lease is left for the kick loop's in-memory
// orphan scan, which resumes it once it ages past orphanedMaxAge.
func (m *Manager) reconcileLeases() {
	executing, err := m.tasks.ListMatching(core.PhaseExecuting, "")
	if err != nil {
		m.logger.WithWorkspace(m.workspaceID).Error("listing executing tasks for lease reconciliation failed", "error", err)
		return
	}
	if len(executing) == 0 {
		return
	}
	leases, err := m.leases.All()
	if err != nil {
		m.logger.WithWorkspace(m.workspaceID).Error("reading leases for reconciliation failed", "error", err)
		return
	}

	now := time.Now()
	for _, t := range executing {
		l, hadLease := leases[t.ID]
		if hadLease && m.leases.IsFresh(l, now) {
			continue
		}
		_ = m.leases.Clear(t.ID)
		reason := "orphan recovery: no lease found on startup"
		if hadLease {
			reason = "orphan recovery: lease expired before restart"
		}
		if _, err := m.tasks.Move(t.ID, core.PhaseReady, reason); err != nil {
			m.logger.WithWorkspace(m.workspaceID).Error("failed to move orphan back to ready during lease reconciliation", "task", t.ID, "error", err)
			continue
		}
		m.appendSystemEvent(t.ID, "task-orphaned", reason)
	}
}

func (m *Manager) isEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// refreshBreakers visits every distinct (provider, modelId) pair appearing
// among tasks so an expired breaker auto-closes and broadcasts even when
// no ready task happens to reference that model this cycle.
func (m *Manager) refreshBreakers(tasks []*core.Task, now time.Time) {
	seen := make(map[core.ModelKey]bool)
	for _, t := range tasks {
		for _, key := range []core.ModelKey{core.KeyOf(t.ExecutionModelConfig), core.KeyOf(t.PlanningModelConfig)} {
			if key.ModelID == "" || seen[key] {
				continue
			}
			seen[key] = true
			if _, justClosed := m.breaker.IsOpen(key, now); justClosed {
				m.bus.Publish(events.NewBreakerAutoClosedEvent(m.workspaceID, key))
			}
		}
	}
	m.bus.Publish(events.NewQueueStatusEvent(m.workspaceID, m.isEnabled(), len(m.breaker.OpenKeys()), m.liveExecutingCount()))
}

func filterReadyDispatchable(tasks []*core.Task) []*core.Task {
	var out []*core.Task
	for _, t := range tasks {
		if t.Phase != core.PhaseReady {
			continue
		}
		if t.PlanningStatus == core.PlanningStatusRunning && t.Plan == nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// sortReadyForDispatch orders ready tasks by order ascending, breaking ties
// by newer-created-first.
func sortReadyForDispatch(tasks []*core.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].Created.After(tasks[j].Created)
	})
}

func (m *Manager) appendSystemEvent(taskID core.TaskID, eventKind, message string) {
	if m.log == nil {
		return
	}
	entry := core.NewSystemEvent(uuid.New().String(), taskID, time.Now(), eventKind, message)
	_ = m.log.Append(entry)
	m.bus.Publish(events.NewActivityEntryEvent(m.workspaceID, entry))
}

func (m *Manager) beginAttempt(taskID core.TaskID, ctx context.Context) (string, context.Context, context.CancelFunc) {
	attempt := uuid.New().String()
	execCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.executionAttempts[taskID] = attempt
	m.active[taskID] = cancel
	m.mu.Unlock()
	return attempt, execCtx, cancel
}

func (m *Manager) endAttempt(taskID core.TaskID) {
	m.mu.Lock()
	delete(m.active, taskID)
	m.mu.Unlock()
}

func (m *Manager) attemptValid(taskID core.TaskID, attempt string, gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.lifecycleGeneration {
		return false
	}
	return m.executionAttempts[taskID] == attempt
}

// startDispatch moves task into executing and begins a fresh Supervisor
// execution.
func (m *Manager) startDispatch(ctx context.Context, task *core.Task, gen int) {
	updated, err := m.tasks.Move(task.ID, core.PhaseExecuting, "dispatched by queue")
	if err != nil {
		m.logger.WithWorkspace(m.workspaceID).Error("failed to move task to executing", "task", task.ID, "error", err)
		return
	}
	m.appendSystemEvent(task.ID, "task-dispatched", "moved to executing by queue manager")

	attempt, execCtx, cancel := m.beginAttempt(task.ID, ctx)
	_ = m.leases.Upsert(task.ID, m.ownerID, core.LeaseStatusRunning, time.Now())
	m.startHeartbeat(execCtx, task.ID)

	go func() {
		defer cancel()
		err := m.supervisor.ExecuteTask(execCtx, updated, m.onComplete(task.ID, attempt, gen))
		if err != nil {
			m.logger.WithWorkspace(m.workspaceID).Error("execute task returned error", "task", task.ID, "error", err)
		}
	}()
}

// startResume re-attaches to an orphaned executing task via the
// Supervisor's resume path.
func (m *Manager) startResume(ctx context.Context, task *core.Task, gen int) {
	attempt, execCtx, cancel := m.beginAttempt(task.ID, ctx)
	_ = m.leases.Upsert(task.ID, m.ownerID, core.LeaseStatusRunning, time.Now())
	m.startHeartbeat(execCtx, task.ID)
	m.appendSystemEvent(task.ID, "task-resumed", "resuming orphaned execution")

	go func() {
		defer cancel()
		err := m.supervisor.ResumeExecution(execCtx, task, m.onComplete(task.ID, attempt, gen))
		if err != nil {
			m.logger.WithWorkspace(m.workspaceID).Error("resume task returned error", "task", task.ID, "error", err)
		}
	}()
}

func (m *Manager) startHeartbeat(ctx context.Context, taskID core.TaskID) {
	interval := m.leases.HeartbeatInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = m.leases.Heartbeat(taskID, m.ownerID, time.Now())
			}
		}
	}()
}

// onComplete builds the Supervisor completion callback for one execution
// attempt, ignoring stale callbacks whose attempt token or lifecycle
// generation no longer matches a live attempt.
func (m *Manager) onComplete(taskID core.TaskID, attempt string, gen int) supervisor.OnComplete {
	return func(id core.TaskID, success bool, details map[string]interface{}) {
		defer m.endAttempt(taskID)
		_ = m.leases.Clear(taskID)

		if !m.attemptValid(taskID, attempt, gen) {
			m.logger.WithWorkspace(m.workspaceID).Debug("ignoring stale completion callback", "task", taskID)
			return
		}

		task, err := m.tasks.Read(taskID)
		if err != nil {
			m.logger.WithWorkspace(m.workspaceID).Error("reading task after completion failed", "task", taskID, "error", err)
			return
		}

		if success {
			m.breaker.RecordSuccess(core.KeyOf(task.ExecutionModelConfig))
			if _, err := m.tasks.Move(taskID, core.PhaseComplete, "execution completed"); err != nil {
				m.logger.WithWorkspace(m.workspaceID).Error("failed to move completed task", "task", taskID, "error", err)
				return
			}
			m.appendSystemEvent(taskID, "task-completed", fmt.Sprintf("%v", details["summary"]))
			time.AfterFunc(200*time.Millisecond, func() { m.Kick(context.Background()) })
			return
		}

		errorMessage, _ := details["errorMessage"].(string)
		key := core.KeyOf(task.ExecutionModelConfig)
		if rec, opened := m.breaker.RecordFailure(key, errorMessage, time.Now()); opened {
			m.bus.Publish(events.NewBreakerOpenedEvent(m.workspaceID, key, *rec))
		}
		m.appendSystemEvent(taskID, "task-execution-failed", errorMessage)
	}
}
