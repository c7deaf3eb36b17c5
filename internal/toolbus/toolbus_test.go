package toolbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patleeman/taskfactory/internal/core"
)

func TestRegistry_PlanRoundTrip(t *testing.T) {
	r := New()
	var gotCriteria []string
	r.RegisterPlan("PIFA-1", func(taskID core.TaskID, criteria []string, plan *core.Plan) error {
		gotCriteria = criteria
		return nil
	})

	err := r.InvokePlan("PIFA-1", []string{"done"}, &core.Plan{Goal: "g"})
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, gotCriteria)
}

func TestRegistry_InvokeWithoutRegistrationReturnsExtensionUnavailable(t *testing.T) {
	r := New()
	err := r.InvokeComplete("PIFA-1", "done")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatExtensionUnavailable))
}

func TestRegistry_UnregisterRemovesCallback(t *testing.T) {
	r := New()
	r.RegisterComplete("PIFA-1", func(core.TaskID, string) error { return nil })
	r.UnregisterComplete("PIFA-1")

	err := r.InvokeComplete("PIFA-1", "done")
	require.Error(t, err)
}

func TestRegistry_UnregisterTaskClearsAllFamilies(t *testing.T) {
	r := New()
	r.RegisterPlan("PIFA-1", func(core.TaskID, []string, *core.Plan) error { return nil })
	r.RegisterComplete("PIFA-1", func(core.TaskID, string) error { return nil })
	r.RegisterAttachFile("PIFA-1", func(core.TaskID, string, string) (core.AttachmentRef, error) { return core.AttachmentRef{}, nil })
	r.RegisterMessageAgent("PIFA-1", func(core.TaskID, string) error { return nil })

	r.UnregisterTask("PIFA-1")

	require.Error(t, r.InvokePlan("PIFA-1", nil, nil))
	require.Error(t, r.InvokeComplete("PIFA-1", "x"))
	_, err := r.InvokeAttachFile("PIFA-1", "x", "")
	require.Error(t, err)
	require.Error(t, r.InvokeMessageAgent("PIFA-1", "x"))
}

func TestRegistry_WorkspaceScopedFamilies(t *testing.T) {
	r := New()
	r.RegisterQA("ws-1", func(workspaceID, question string, options []string) (string, error) {
		return "42", nil
	})
	answer, err := r.InvokeQA("ws-1", "how many?", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", answer)

	r.RegisterFactoryControl("ws-1", func(workspaceID, action string, args map[string]interface{}) error {
		return nil
	})
	require.NoError(t, r.InvokeFactoryControl("ws-1", "pause", nil))

	r.RegisterShelf("ws-1", func(workspaceID, action string, payload map[string]interface{}) error { return nil })
	require.NoError(t, r.InvokeShelf("ws-1", "add", nil))

	r.RegisterCreateExtension("ws-1", func(workspaceID, kind string, payload map[string]interface{}) (string, error) {
		return "draft-1", nil
	})
	id, err := r.InvokeCreateExtension("ws-1", "draft_task", nil)
	require.NoError(t, err)
	assert.Equal(t, "draft-1", id)
}
