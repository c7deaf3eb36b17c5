package profiles

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/supervisor"
)

func strPtr(s string) *string { return &s }

func builtIn() TaskConfig {
	return TaskConfig{
		PlanningModelConfig:  core.ModelConfig{Provider: "anthropic", ModelID: "claude-planning"},
		ExecutionModelConfig: core.ModelConfig{Provider: "anthropic", ModelID: "claude-execution"},
	}
}

func TestResolve_FallsBackToBuiltIn(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(builtIn(), filepath.Join(dir, "missing-global.yaml"), func(string) string {
		return filepath.Join(dir, "missing-ws.yaml")
	}, nil)

	res := svc.Resolve("ws-1", Override{})
	assert.Equal(t, builtIn(), res.Config)
	assert.Equal(t, "built-in", res.Explain()["executionModelConfig"])
}

func TestResolve_GlobalOverridesBuiltIn(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.yaml")
	require.NoError(t, saveOverride(globalPath, Override{
		ExecutionModelConfig: &core.ModelConfig{Provider: "openai", ModelID: "gpt-5"},
	}))

	svc := NewService(builtIn(), globalPath, func(string) string { return filepath.Join(dir, "missing.yaml") }, nil)
	res := svc.Resolve("ws-1", Override{})
	assert.Equal(t, "gpt-5", res.Config.ExecutionModelConfig.ModelID)
	assert.Equal(t, "global", res.Explain()["executionModelConfig"])
}

func TestResolve_RequestWinsOverAllFileLayers(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.yaml")
	require.NoError(t, saveOverride(globalPath, Override{
		ExecutionModelConfig: &core.ModelConfig{Provider: "openai", ModelID: "gpt-5"},
	}))
	workspacePath := filepath.Join(dir, "ws-1.yaml")
	require.NoError(t, saveOverride(workspacePath, Override{
		ExecutionModelConfig: &core.ModelConfig{Provider: "openai", ModelID: "gpt-5-mini"},
	}))

	svc := NewService(builtIn(), globalPath, func(string) string { return workspacePath }, nil)
	res := svc.Resolve("ws-1", Override{
		ExecutionModelConfig: &core.ModelConfig{Provider: "anthropic", ModelID: "claude-opus"},
	})
	assert.Equal(t, "claude-opus", res.Config.ExecutionModelConfig.ModelID)
	assert.Equal(t, "request", res.Explain()["executionModelConfig"])
}

func TestNormalize_SyncsLegacyModelConfigAlias(t *testing.T) {
	o := Override{ModelConfig: &core.ModelConfig{Provider: "anthropic", ModelID: "claude-opus"}}
	o.Normalize()
	require.NotNil(t, o.ExecutionModelConfig)
	assert.Equal(t, "claude-opus", o.ExecutionModelConfig.ModelID)

	o2 := Override{ExecutionModelConfig: &core.ModelConfig{Provider: "openai", ModelID: "gpt-5"}}
	o2.Normalize()
	require.NotNil(t, o2.ModelConfig)
	assert.Equal(t, "gpt-5", o2.ModelConfig.ModelID)
}

func TestValidate_RejectsIncompleteModelConfig(t *testing.T) {
	svc := NewService(builtIn(), "", nil, nil)
	cfg := builtIn()
	cfg.ExecutionModelConfig = core.ModelConfig{Provider: "anthropic"}
	err := svc.Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executionModelConfig")
}

func TestValidate_RejectsUnknownThinkingLevel(t *testing.T) {
	svc := NewService(builtIn(), "", nil, nil)
	cfg := builtIn()
	cfg.ExecutionModelConfig.ThinkingLevel = "extreme"
	err := svc.Validate(cfg)
	require.Error(t, err)
}

func TestValidate_RejectsThinkingLevelOnUnsupportedProvider(t *testing.T) {
	svc := NewService(builtIn(), "", nil, nil)
	cfg := builtIn()
	cfg.ExecutionModelConfig = core.ModelConfig{Provider: "local-llama", ModelID: "llama3", ThinkingLevel: "high"}
	err := svc.Validate(cfg)
	require.Error(t, err)
}

func TestValidate_AcceptsThinkingLevelOnSupportedProvider(t *testing.T) {
	svc := NewService(builtIn(), "", nil, nil)
	cfg := builtIn()
	cfg.ExecutionModelConfig.ThinkingLevel = "high"
	assert.NoError(t, svc.Validate(cfg))
}

func TestValidate_SkillMustExistAndMatchHook(t *testing.T) {
	skills := supervisor.StaticSkillResolver{
		"lint": supervisor.Skill{ID: "lint", Hook: supervisor.HookPost},
	}
	svc := NewService(builtIn(), "", nil, skills)

	cfg := builtIn()
	cfg.PostExecutionSkills = []string{"lint"}
	assert.NoError(t, svc.Validate(cfg))

	cfg.PreExecutionSkills = []string{"lint"}
	err := svc.Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre")

	cfg.PreExecutionSkills = nil
	cfg.PostExecutionSkills = []string{"missing-skill"}
	err = svc.Validate(cfg)
	require.Error(t, err)
}

func TestProfileRegistry_RejectsDuplicateID(t *testing.T) {
	reg := NewProfileRegistry()
	require.NoError(t, reg.Add(ModelProfile{ID: "opus-heavy", ExecutionModelConfig: core.ModelConfig{Provider: "anthropic", ModelID: "claude-opus"}}))
	err := reg.Add(ModelProfile{ID: "opus-heavy"})
	assert.Error(t, err)
}

func TestModelProfile_AsOverride(t *testing.T) {
	p := ModelProfile{
		ID:                   "opus-heavy",
		ExecutionModelConfig: core.ModelConfig{Provider: "anthropic", ModelID: "claude-opus"},
	}
	o := p.AsOverride()
	require.NotNil(t, o.ModelConfig)
	assert.Equal(t, "claude-opus", o.ModelConfig.ModelID)
}

func TestSetWorkspaceOverride_MergesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	workspacePath := filepath.Join(dir, "ws-1.yaml")
	svc := NewService(builtIn(), filepath.Join(dir, "missing.yaml"), func(string) string { return workspacePath }, nil)

	require.NoError(t, svc.SetWorkspaceOverride("ws-1", Override{
		ExecutionModelConfig: &core.ModelConfig{Provider: "anthropic", ModelID: "claude-opus"},
	}))
	require.NoError(t, svc.SetWorkspaceOverride("ws-1", Override{
		ExecutionPromptTemplate: strPtr("custom template"),
	}))

	res := svc.Resolve("ws-1", Override{})
	assert.Equal(t, "claude-opus", res.Config.ExecutionModelConfig.ModelID)
	assert.Equal(t, "custom template", res.Config.ExecutionPromptTemplate)

	stored, err := loadOverride(workspacePath)
	require.NoError(t, err)
	require.NotNil(t, stored.ModelConfig)
	assert.Equal(t, "claude-opus", stored.ModelConfig.ModelID)
}
