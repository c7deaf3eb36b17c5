package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patleeman/taskfactory/internal/queue"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestResolve_FallsBackToBuiltIn(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(filepath.Join(dir, "missing-global.yaml"), func(string) string {
		return filepath.Join(dir, "missing-workspace.yaml")
	})
	assert.Equal(t, BuiltIn, svc.Resolve("ws-1"))
}

func TestResolve_GlobalOverridesBuiltIn(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.yaml")
	require.NoError(t, saveOverride(globalPath, Override{ExecutingLimit: intPtr(3)}))

	svc := NewService(globalPath, func(string) string { return filepath.Join(dir, "missing.yaml") })
	got := svc.Resolve("ws-1")
	assert.Equal(t, 3, got.ExecutingLimit)
	assert.Equal(t, BuiltIn.ReadyLimit, got.ReadyLimit)
}

func TestResolve_WorkspaceOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.yaml")
	require.NoError(t, saveOverride(globalPath, Override{ExecutingLimit: intPtr(3)}))
	workspacePath := filepath.Join(dir, "ws-1.yaml")
	require.NoError(t, saveOverride(workspacePath, Override{ExecutingLimit: intPtr(7)}))

	svc := NewService(globalPath, func(id string) string {
		require.Equal(t, "ws-1", id)
		return workspacePath
	})
	got := svc.Resolve("ws-1")
	assert.Equal(t, 7, got.ExecutingLimit)
}

func TestSetWorkspaceOverride_SyncsLegacyAutomationFlag(t *testing.T) {
	dir := t.TempDir()
	workspacePath := filepath.Join(dir, "ws-1.yaml")
	svc := NewService(filepath.Join(dir, "missing.yaml"), func(string) string { return workspacePath })

	require.NoError(t, svc.SetWorkspaceOverride("ws-1", Override{ReadyToExecuting: boolPtr(false)}))

	stored, err := loadOverride(workspacePath)
	require.NoError(t, err)
	require.NotNil(t, stored.ReadyToExecuting)
	require.NotNil(t, stored.AutomationEnabled)
	assert.False(t, *stored.ReadyToExecuting)
	assert.False(t, *stored.AutomationEnabled)
}

func TestSetWorkspaceOverride_MergesWithExisting(t *testing.T) {
	dir := t.TempDir()
	workspacePath := filepath.Join(dir, "ws-1.yaml")
	svc := NewService(filepath.Join(dir, "missing.yaml"), func(string) string { return workspacePath })

	require.NoError(t, svc.SetWorkspaceOverride("ws-1", Override{ExecutingLimit: intPtr(2)}))
	require.NoError(t, svc.SetWorkspaceOverride("ws-1", Override{ReadyLimit: intPtr(9)}))

	got := svc.Resolve("ws-1")
	assert.Equal(t, 2, got.ExecutingLimit)
	assert.Equal(t, 9, got.ReadyLimit)
}

func TestService_ImplementsLimitsProvider(t *testing.T) {
	var _ queue.LimitsProvider = (*Service)(nil)
}
