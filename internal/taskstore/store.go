package taskstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/events"
	"github.com/patleeman/taskfactory/internal/fsutil"
)

// Store persists tasks as "<tasksDir>/<id>.md" files with YAML frontmatter.
// Writes are whole-file replacements through fsutil.AtomicWriteFile;
// concurrent writes to the same task are serialized by a per-task mutex,
// the same locking shape a state-adapter package uses to guard its files.
type Store struct {
	tasksDir    string
	workspaceID string
	bus         *events.EventBus

	locksMu sync.Mutex
	locks   map[core.TaskID]*sync.Mutex
}

// NewStore returns a store rooted at tasksDir (typically
// "<workspace>/.taskfactory/tasks"). bus may be nil, in which case moves
// and updates are silent.
func NewStore(tasksDir, workspaceID string, bus *events.EventBus) *Store {
	return &Store{
		tasksDir:    tasksDir,
		workspaceID: workspaceID,
		bus:         bus,
		locks:       make(map[core.TaskID]*sync.Mutex),
	}
}

func (s *Store) lockFor(id core.TaskID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

func (s *Store) pathFor(id core.TaskID) string {
	return filepath.Join(s.tasksDir, string(id)+".md")
}

func (s *Store) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// Create validates and writes a brand new task. Returns core.ErrValidation
// wrapped errors unchanged; returns a NotFound-adjacent IO error if the
// task already exists on disk.
func (s *Store) Create(task *core.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	lock := s.lockFor(task.ID)
	lock.Lock()
	defer lock.Unlock()

	path := s.pathFor(task.ID)
	if _, err := os.Stat(path); err == nil {
		return core.ErrValidation("TASK_ALREADY_EXISTS", fmt.Sprintf("task %s already exists", task.ID))
	}

	now := time.Now()
	task.Created = now
	task.Updated = now
	return s.writeLocked(task)
}

// Read loads and decodes a single task by ID.
func (s *Store) Read(id core.TaskID) (*core.Task, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.readLocked(id)
}

func (s *Store) readLocked(id core.TaskID) (*core.Task, error) {
	raw, err := os.ReadFile(s.pathFor(id)) // #nosec G304 -- path is derived from a workspace-scoped task ID
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrNotFound("task", string(id))
		}
		return nil, core.ErrIO("TASK_READ_FAILED", fmt.Sprintf("reading task %s", id)).WithCause(err)
	}
	task, err := decodeTask(id, string(raw))
	if err != nil {
		return nil, core.ErrIO("TASK_DECODE_FAILED", fmt.Sprintf("decoding task %s", id)).WithCause(err)
	}
	return task, nil
}

func (s *Store) writeLocked(task *core.Task) error {
	if err := os.MkdirAll(s.tasksDir, 0o750); err != nil {
		return core.ErrIO("TASK_DIR_CREATE_FAILED", "creating tasks directory").WithCause(err)
	}
	data, err := encodeTask(task)
	if err != nil {
		return core.ErrIO("TASK_ENCODE_FAILED", fmt.Sprintf("encoding task %s", task.ID)).WithCause(err)
	}
	if err := fsutil.AtomicWriteFile(s.pathFor(task.ID), data, 0o600); err != nil {
		return core.ErrIO("TASK_WRITE_FAILED", fmt.Sprintf("writing task %s", task.ID)).WithCause(err)
	}
	return nil
}

// List returns every task in the given phase, ordered by Order ascending.
// An empty scope returns every task across all phases, still grouped by
// phase-then-order.
func (s *Store) List(scope core.Phase) ([]*core.Task, error) {
	entries, err := os.ReadDir(s.tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.ErrIO("TASK_LIST_FAILED", "listing tasks directory").WithCause(err)
	}

	var out []*core.Task
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		id := core.TaskID(strings.TrimSuffix(e.Name(), ".md"))
		task, err := s.Read(id)
		if err != nil {
			continue // skip unreadable/corrupted files rather than failing the whole list
		}
		if scope != "" && task.Phase != scope {
			continue
		}
		out = append(out, task)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Phase != out[j].Phase {
			return out[i].Phase < out[j].Phase
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

// ListMatching fuzzy-filters List(scope) by title, ranked by match score.
// Supplements plain enumeration with a sahilm/fuzzy-backed search, the way
// a command-history search ranks matches instead of just filtering them.
func (s *Store) ListMatching(scope core.Phase, query string) ([]*core.Task, error) {
	all, err := s.List(scope)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return all, nil
	}

	titles := make([]string, len(all))
	for i, t := range all {
		titles[i] = t.Title
	}
	matches := fuzzy.Find(query, titles)

	out := make([]*core.Task, len(matches))
	for i, m := range matches {
		out[i] = all[m.Index]
	}
	return out, nil
}

// FrontmatterPatch is a set of field updates applied atomically to a task.
// Keys not present in the map are left unchanged; a key present with a nil
// value clears it where the field is a pointer/slice.
type FrontmatterPatch map[string]interface{}

// Update applies a frontmatter patch to a task, bumping Updated, and
// broadcasts a task:updated event.
func (s *Store) Update(id core.TaskID, patch FrontmatterPatch) (*core.Task, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	task, err := s.readLocked(id)
	if err != nil {
		return nil, err
	}
	if err := applyPatch(task, patch); err != nil {
		return nil, err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	task.Updated = time.Now()
	if err := s.writeLocked(task); err != nil {
		return nil, err
	}
	s.publish(events.NewTaskUpdatedEvent(s.workspaceID, id, patch))
	return task, nil
}

func applyPatch(task *core.Task, patch FrontmatterPatch) error {
	for k, v := range patch {
		switch k {
		case "title":
			title, ok := v.(string)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "title must be a string")
			}
			task.Title = title
		case "acceptanceCriteria":
			list, ok := v.([]string)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "acceptanceCriteria must be a string list")
			}
			task.AcceptanceCriteria = list
		case "planningModelConfig":
			cfg, ok := v.(core.ModelConfig)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "planningModelConfig must be a ModelConfig")
			}
			task.PlanningModelConfig = cfg
		case "executionModelConfig":
			cfg, ok := v.(core.ModelConfig)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "executionModelConfig must be a ModelConfig")
			}
			task.ExecutionModelConfig = cfg
		case "preExecutionSkills":
			list, ok := v.([]string)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "preExecutionSkills must be a string list")
			}
			task.PreExecutionSkills = list
		case "postExecutionSkills":
			list, ok := v.([]string)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "postExecutionSkills must be a string list")
			}
			task.PostExecutionSkills = list
		case "plan":
			if v == nil {
				task.Plan = nil
				continue
			}
			plan, ok := v.(*core.Plan)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "plan must be a *core.Plan")
			}
			task.Plan = plan
		case "planningStatus":
			status, ok := v.(core.PlanningStatus)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "planningStatus must be a PlanningStatus")
			}
			task.PlanningStatus = status
		case "sessionFile":
			sf, ok := v.(string)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "sessionFile must be a string")
			}
			task.SessionFile = sf
		case "attachments":
			list, ok := v.([]core.AttachmentRef)
			if !ok {
				return core.ErrValidation("TASK_PATCH_TYPE", "attachments must be an AttachmentRef list")
			}
			task.Attachments = list
		default:
			if task.Unknown == nil {
				task.Unknown = make(map[string]interface{})
			}
			task.Unknown[k] = v
		}
	}
	return nil
}

// Move transitions a task to a new phase, appends it at the end of the
// receiving phase, and records the transition. Callers (the Queue Manager)
// are responsible for writing the corresponding Activity Log entry; Move
// only broadcasts the task:moved event.
func (s *Store) Move(id core.TaskID, toPhase core.Phase, reason string) (*core.Task, error) {
	if !core.ValidPhase(toPhase) {
		return nil, core.ErrValidation("TASK_PHASE_INVALID", fmt.Sprintf("invalid phase: %s", toPhase))
	}

	lock := s.lockFor(id)
	lock.Lock()
	task, err := s.readLocked(id)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	from := task.Phase
	lock.Unlock()

	maxOrder, err := s.maxOrderInPhase(toPhase)
	if err != nil {
		return nil, err
	}

	lock.Lock()
	defer lock.Unlock()
	task, err = s.readLocked(id)
	if err != nil {
		return nil, err
	}
	task.Phase = toPhase
	task.Order = maxOrder + 1
	task.Updated = time.Now()
	if toPhase == core.PhaseExecuting {
		task.MarkStarted(task.Updated)
	}
	if toPhase == core.PhaseComplete {
		task.MarkComplete(task.Updated)
	}
	if err := s.writeLocked(task); err != nil {
		return nil, err
	}
	s.publish(events.NewTaskMovedEvent(s.workspaceID, id, from, toPhase, reason))
	return task, nil
}

func (s *Store) maxOrderInPhase(phase core.Phase) (int, error) {
	tasks, err := s.List(phase)
	if err != nil {
		return 0, err
	}
	max := -1
	for _, t := range tasks {
		if t.Order > max {
			max = t.Order
		}
	}
	return max, nil
}

// Reorder accepts a permutation of the current member set of phase and
// rewrites each task's Order to its index in ids. Refuses any list that is
// not exactly the current set, per the data-model invariant that Reorder
// never changes phase membership.
func (s *Store) Reorder(phase core.Phase, ids []core.TaskID) error {
	current, err := s.List(phase)
	if err != nil {
		return err
	}
	currentSet := make(map[core.TaskID]bool, len(current))
	for _, t := range current {
		currentSet[t.ID] = true
	}
	if len(ids) != len(current) {
		return core.ErrValidation("TASK_REORDER_SET_MISMATCH", "reorder list must match the current phase membership exactly")
	}
	seen := make(map[core.TaskID]bool, len(ids))
	for _, id := range ids {
		if !currentSet[id] || seen[id] {
			return core.ErrValidation("TASK_REORDER_SET_MISMATCH", "reorder list must match the current phase membership exactly")
		}
		seen[id] = true
	}

	for i, id := range ids {
		lock := s.lockFor(id)
		lock.Lock()
		task, err := s.readLocked(id)
		if err != nil {
			lock.Unlock()
			return err
		}
		task.Order = i
		task.Updated = time.Now()
		err = s.writeLocked(task)
		lock.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a task's file permanently. Does not remove attachments;
// callers own that via the Attachment Store before calling Delete.
func (s *Store) Delete(id core.TaskID) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.pathFor(id)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return core.ErrIO("TASK_DELETE_FAILED", fmt.Sprintf("deleting task %s", id)).WithCause(err)
	}
	return nil
}
