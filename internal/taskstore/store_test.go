package taskstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "tasks"), "ws-1", events.New(16))
}

func TestStore_CreateAndRead(t *testing.T) {
	s := newTestStore(t)
	task := core.NewTask("PIFA-1", "Fix the thing")
	task.AcceptanceCriteria = []string{"tests pass"}

	require.NoError(t, s.Create(task))

	got, err := s.Read("PIFA-1")
	require.NoError(t, err)
	assert.Equal(t, "Fix the thing", got.Title)
	assert.Equal(t, core.PhaseBacklog, got.Phase)
	assert.Equal(t, []string{"tests pass"}, got.AcceptanceCriteria)
}

func TestStore_CreateRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	task := core.NewTask("PIFA-1", "Fix the thing")
	require.NoError(t, s.Create(task))

	err := s.Create(core.NewTask("PIFA-1", "Second task"))
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestStore_CreateRejectsInvalidTask(t *testing.T) {
	s := newTestStore(t)
	err := s.Create(&core.Task{})
	require.Error(t, err)
}

func TestStore_ReadUnknownTaskReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("missing")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestStore_RoundTripPreservesUnknownFrontmatterKeys(t *testing.T) {
	s := newTestStore(t)
	task := core.NewTask("PIFA-1", "Title")
	task.Unknown = map[string]interface{}{"legacyField": "keep me"}
	require.NoError(t, s.Create(task))

	got, err := s.Read("PIFA-1")
	require.NoError(t, err)
	require.NotNil(t, got.Unknown)
	assert.Equal(t, "keep me", got.Unknown["legacyField"])
}

func TestStore_UpdateAppliesPatchAndBumpsUpdated(t *testing.T) {
	s := newTestStore(t)
	task := core.NewTask("PIFA-1", "Title")
	require.NoError(t, s.Create(task))
	originalUpdated := task.Updated

	got, err := s.Update("PIFA-1", FrontmatterPatch{"title": "New title"})
	require.NoError(t, err)
	assert.Equal(t, "New title", got.Title)
	assert.True(t, got.Updated.After(originalUpdated) || got.Updated.Equal(originalUpdated))
}

func TestStore_UpdateRejectsWrongType(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(core.NewTask("PIFA-1", "Title")))

	_, err := s.Update("PIFA-1", FrontmatterPatch{"title": 42})
	require.Error(t, err)
}

func TestStore_ListOrdersByPhaseThenOrder(t *testing.T) {
	s := newTestStore(t)
	t1 := core.NewTask("PIFA-1", "First")
	t1.Order = 1
	t2 := core.NewTask("PIFA-2", "Second")
	t2.Order = 0
	require.NoError(t, s.Create(t1))
	require.NoError(t, s.Create(t2))

	list, err := s.List(core.PhaseBacklog)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, core.TaskID("PIFA-2"), list[0].ID)
	assert.Equal(t, core.TaskID("PIFA-1"), list[1].ID)
}

func TestStore_ListMatchingFuzzyFiltersByTitle(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(core.NewTask("PIFA-1", "Fix authentication bug")))
	require.NoError(t, s.Create(core.NewTask("PIFA-2", "Refactor parser")))

	matches, err := s.ListMatching(core.PhaseBacklog, "auth")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.TaskID("PIFA-1"), matches[0].ID)
}

func TestStore_MoveAppendsAtEndAndStampsTimestamps(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(core.NewTask("PIFA-1", "Title")))

	moved, err := s.Move("PIFA-1", core.PhaseExecuting, "queue dispatch")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseExecuting, moved.Phase)
	require.NotNil(t, moved.Started)

	moved, err = s.Move("PIFA-1", core.PhaseComplete, "agent signaled done")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseComplete, moved.Phase)
	require.NotNil(t, moved.Completed)
}

func TestStore_MoveRejectsInvalidPhase(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(core.NewTask("PIFA-1", "Title")))
	_, err := s.Move("PIFA-1", core.Phase("bogus"), "")
	require.Error(t, err)
}

func TestStore_ReorderAcceptsExactPermutation(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(core.NewTask("PIFA-1", "A")))
	require.NoError(t, s.Create(core.NewTask("PIFA-2", "B")))
	require.NoError(t, s.Create(core.NewTask("PIFA-3", "C")))

	err := s.Reorder(core.PhaseBacklog, []core.TaskID{"PIFA-3", "PIFA-1", "PIFA-2"})
	require.NoError(t, err)

	list, err := s.List(core.PhaseBacklog)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, core.TaskID("PIFA-3"), list[0].ID)
	assert.Equal(t, core.TaskID("PIFA-1"), list[1].ID)
	assert.Equal(t, core.TaskID("PIFA-2"), list[2].ID)
}

func TestStore_ReorderRejectsNonMatchingSet(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(core.NewTask("PIFA-1", "A")))
	require.NoError(t, s.Create(core.NewTask("PIFA-2", "B")))

	err := s.Reorder(core.PhaseBacklog, []core.TaskID{"PIFA-1"})
	require.Error(t, err)

	err = s.Reorder(core.PhaseBacklog, []core.TaskID{"PIFA-1", "PIFA-1"})
	require.Error(t, err)

	err = s.Reorder(core.PhaseBacklog, []core.TaskID{"PIFA-1", "PIFA-9"})
	require.Error(t, err)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(core.NewTask("PIFA-1", "Title")))
	require.NoError(t, s.Delete("PIFA-1"))

	_, err := s.Read("PIFA-1")
	require.Error(t, err)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Delete("never-existed"))
}

func TestStore_CreatePreservesBody(t *testing.T) {
	s := newTestStore(t)
	task := core.NewTask("PIFA-1", "Title")
	task.Body = "## Notes\n\nSome free-form markdown.\n"
	require.NoError(t, s.Create(task))

	got, err := s.Read("PIFA-1")
	require.NoError(t, err)
	assert.Equal(t, task.Body, got.Body)
}
