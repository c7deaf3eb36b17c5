// Package profiles implements Task Defaults & Model Profiles: a task's
// effective model/skill/template configuration is computed by overlaying
// built-in defaults, a global taskDefaults file, a workspace override file,
// and the task creation request, in that order. Shaped like a layered
// config loader (same built-in/global/project precedence, same
// viper+mapstructure mechanism) combined with a reasoning-effort/
// agent-allowlist validation idiom, generalized from CLI agent names to
// provider/modelId pairs.
package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/fsutil"
	"github.com/patleeman/taskfactory/internal/supervisor"
)

// TaskConfig is the resolved overlay: everything a task needs to start
// executing besides its title and acceptance criteria.
type TaskConfig struct {
	PlanningModelConfig     core.ModelConfig
	ExecutionModelConfig    core.ModelConfig
	PlanningFallbackModels  []core.ModelConfig
	ExecutionFallbackModels []core.ModelConfig
	PreExecutionSkills      []string
	PostExecutionSkills     []string
	PlanningPromptTemplate  string
	ExecutionPromptTemplate string
}

// Override is one overlay layer's possibly-partial patch. A nil/empty field
// means "inherit from the layer below".
type Override struct {
	PlanningModelConfig  *core.ModelConfig `mapstructure:"planningModelConfig" yaml:"planningModelConfig,omitempty"`
	ExecutionModelConfig *core.ModelConfig `mapstructure:"executionModelConfig" yaml:"executionModelConfig,omitempty"`

	// ModelConfig is the legacy alias for ExecutionModelConfig. Whichever of
	// the two a caller sets, both are kept in sync by Normalize.
	ModelConfig *core.ModelConfig `mapstructure:"modelConfig" yaml:"modelConfig,omitempty"`

	PlanningFallbackModels  []core.ModelConfig `mapstructure:"planningFallbackModels" yaml:"planningFallbackModels,omitempty"`
	ExecutionFallbackModels []core.ModelConfig `mapstructure:"executionFallbackModels" yaml:"executionFallbackModels,omitempty"`

	PreExecutionSkills  []string `mapstructure:"preExecutionSkills" yaml:"preExecutionSkills,omitempty"`
	PostExecutionSkills []string `mapstructure:"postExecutionSkills" yaml:"postExecutionSkills,omitempty"`

	PlanningPromptTemplate  *string `mapstructure:"planningPromptTemplate" yaml:"planningPromptTemplate,omitempty"`
	ExecutionPromptTemplate *string `mapstructure:"executionPromptTemplate" yaml:"executionPromptTemplate,omitempty"`
}

// Normalize keeps the legacy ModelConfig alias and ExecutionModelConfig in
// sync: whichever was set, both end up set to the same value.
func (o *Override) Normalize() {
	switch {
	case o.ExecutionModelConfig != nil && o.ModelConfig == nil:
		cfg := *o.ExecutionModelConfig
		o.ModelConfig = &cfg
	case o.ModelConfig != nil && o.ExecutionModelConfig == nil:
		cfg := *o.ModelConfig
		o.ExecutionModelConfig = &cfg
	}
}

func (o Override) applyTo(cfg TaskConfig) TaskConfig {
	if o.PlanningModelConfig != nil {
		cfg.PlanningModelConfig = *o.PlanningModelConfig
	}
	if o.ExecutionModelConfig != nil {
		cfg.ExecutionModelConfig = *o.ExecutionModelConfig
	} else if o.ModelConfig != nil {
		cfg.ExecutionModelConfig = *o.ModelConfig
	}
	if o.PlanningFallbackModels != nil {
		cfg.PlanningFallbackModels = o.PlanningFallbackModels
	}
	if o.ExecutionFallbackModels != nil {
		cfg.ExecutionFallbackModels = o.ExecutionFallbackModels
	}
	if o.PreExecutionSkills != nil {
		cfg.PreExecutionSkills = o.PreExecutionSkills
	}
	if o.PostExecutionSkills != nil {
		cfg.PostExecutionSkills = o.PostExecutionSkills
	}
	if o.PlanningPromptTemplate != nil {
		cfg.PlanningPromptTemplate = *o.PlanningPromptTemplate
	}
	if o.ExecutionPromptTemplate != nil {
		cfg.ExecutionPromptTemplate = *o.ExecutionPromptTemplate
	}
	return cfg
}

// layerName identifies which overlay layer contributed a resolved field, for
// Resolution.Explain.
type layerName string

const (
	layerBuiltIn   layerName = "built-in"
	layerGlobal    layerName = "global"
	layerWorkspace layerName = "workspace"
	layerRequest   layerName = "request"
)

func (o Override) touches(field string) bool {
	switch field {
	case "planningModelConfig":
		return o.PlanningModelConfig != nil
	case "executionModelConfig":
		return o.ExecutionModelConfig != nil || o.ModelConfig != nil
	case "planningFallbackModels":
		return o.PlanningFallbackModels != nil
	case "executionFallbackModels":
		return o.ExecutionFallbackModels != nil
	case "preExecutionSkills":
		return o.PreExecutionSkills != nil
	case "postExecutionSkills":
		return o.PostExecutionSkills != nil
	case "planningPromptTemplate":
		return o.PlanningPromptTemplate != nil
	case "executionPromptTemplate":
		return o.ExecutionPromptTemplate != nil
	default:
		return false
	}
}

var resolutionFields = []string{
	"planningModelConfig", "executionModelConfig", "planningFallbackModels",
	"executionFallbackModels", "preExecutionSkills", "postExecutionSkills",
	"planningPromptTemplate", "executionPromptTemplate",
}

// Resolution is a resolved TaskConfig plus the overlay attribution the
// SUPPLEMENTED debug API exposes.
type Resolution struct {
	Config  TaskConfig
	sources map[string]layerName
}

// Explain returns, for each resolvable field, the name of the layer that
// contributed its value ("built-in", "global", "workspace", or "request"),
// useful for tests and for a future out-of-scope CLI/HTTP surface to render.
func (r Resolution) Explain() map[string]string {
	out := make(map[string]string, len(r.sources))
	for field, layer := range r.sources {
		out[field] = string(layer)
	}
	return out
}

// WorkspacePath locates a workspace's task-defaults override file, normally
// "<workspace>/<state-dir>/task-defaults.yaml".
type WorkspacePath func(workspaceID string) string

// Service resolves the effective TaskConfig for a task creation request.
type Service struct {
	mu            sync.Mutex
	builtIn       TaskConfig
	globalPath    string
	workspacePath WorkspacePath
	skills        supervisor.SkillResolver
}

// NewService constructs a Service. builtIn seeds the bottom of the overlay;
// globalPath is typically "<home>/.taskfactory/task-defaults.yaml";
// workspacePath resolves each workspace's own override file; skills
// resolves skill IDs for Validate.
func NewService(builtIn TaskConfig, globalPath string, workspacePath WorkspacePath, skills supervisor.SkillResolver) *Service {
	return &Service{builtIn: builtIn, globalPath: globalPath, workspacePath: workspacePath, skills: skills}
}

// Resolve overlays built-in <- global <- workspace <- request and returns
// the result along with its per-field attribution.
func (s *Service) Resolve(workspaceID string, request Override) Resolution {
	request.Normalize()

	res := Resolution{Config: s.builtIn, sources: make(map[string]layerName, len(resolutionFields))}
	for _, f := range resolutionFields {
		res.sources[f] = layerBuiltIn
	}

	apply := func(o Override, layer layerName) {
		res.Config = o.applyTo(res.Config)
		for _, f := range resolutionFields {
			if o.touches(f) {
				res.sources[f] = layer
			}
		}
	}

	if global, err := loadOverride(s.globalPath); err == nil {
		apply(global, layerGlobal)
	}
	if s.workspacePath != nil {
		if ws, err := loadOverride(s.workspacePath(workspaceID)); err == nil {
			apply(ws, layerWorkspace)
		}
	}
	apply(request, layerRequest)

	return res
}

// Validate checks: non-empty provider and modelId on both model configs, a
// recognized thinking level gated to reasoning-capable providers, and skill
// IDs that exist and are assigned to the hook they actually declare.
func (s *Service) Validate(cfg TaskConfig) error {
	if err := validateModelConfig("planningModelConfig", cfg.PlanningModelConfig); err != nil {
		return err
	}
	if err := validateModelConfig("executionModelConfig", cfg.ExecutionModelConfig); err != nil {
		return err
	}
	for i, m := range cfg.PlanningFallbackModels {
		if err := validateModelConfig(fmt.Sprintf("planningFallbackModels[%d]", i), m); err != nil {
			return err
		}
	}
	for i, m := range cfg.ExecutionFallbackModels {
		if err := validateModelConfig(fmt.Sprintf("executionFallbackModels[%d]", i), m); err != nil {
			return err
		}
	}
	if err := s.validateSkills(cfg.PreExecutionSkills, supervisor.HookPre); err != nil {
		return err
	}
	if err := s.validateSkills(cfg.PostExecutionSkills, supervisor.HookPost); err != nil {
		return err
	}
	return nil
}

func validateModelConfig(field string, cfg core.ModelConfig) error {
	if cfg.Provider == "" || cfg.ModelID == "" {
		return core.ErrValidation("TASK_MODEL_CONFIG_INCOMPLETE", fmt.Sprintf("%s requires both provider and modelId", field))
	}
	if cfg.ThinkingLevel == "" {
		return nil
	}
	if !core.IsValidThinkingLevel(cfg.ThinkingLevel) {
		return core.ErrValidation("TASK_THINKING_LEVEL_INVALID", fmt.Sprintf("%s.thinkingLevel %q is not a recognized level", field, cfg.ThinkingLevel))
	}
	if !core.ProviderSupportsThinking(cfg.Provider) {
		return core.ErrValidation("TASK_THINKING_LEVEL_UNSUPPORTED", fmt.Sprintf("%s.thinkingLevel is set but provider %q is not reasoning-capable", field, cfg.Provider))
	}
	return nil
}

func (s *Service) validateSkills(ids []string, hook supervisor.SkillHook) error {
	if s.skills == nil {
		return nil
	}
	for _, id := range ids {
		skill, ok := s.skills.Resolve(id)
		if !ok {
			return core.ErrNotFound("skill", id)
		}
		if skill.Hook != hook {
			return core.ErrValidation("TASK_SKILL_HOOK_MISMATCH", fmt.Sprintf("skill %q is declared for hook %q, not %q", id, skill.Hook, hook))
		}
	}
	return nil
}

func loadOverride(path string) (Override, error) {
	if path == "" {
		return Override{}, fmt.Errorf("profiles: empty override path")
	}
	if _, err := os.Stat(path); err != nil {
		return Override{}, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Override{}, fmt.Errorf("reading task defaults override %s: %w", path, err)
	}
	var o Override
	if err := v.Unmarshal(&o); err != nil {
		return Override{}, fmt.Errorf("parsing task defaults override %s: %w", path, err)
	}
	o.Normalize()
	return o, nil
}

func saveOverride(path string, o Override) error {
	o.Normalize()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("ensuring task defaults directory: %w", err)
	}
	b, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshaling task defaults override: %w", err)
	}
	return fsutil.AtomicWriteFile(path, b, 0o600)
}

// SetWorkspaceOverride merges patch into the workspace's task-defaults
// override file.
func (s *Service) SetWorkspaceOverride(workspaceID string, patch Override) error {
	if s.workspacePath == nil {
		return fmt.Errorf("profiles: no workspace override path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.workspacePath(workspaceID)
	current, _ := loadOverride(path)
	return saveOverride(path, mergeOverride(current, patch))
}

// ModelProfile is a named bundle of planning/execution models and fallbacks
// a UI may offer to populate task defaults in one step.
type ModelProfile struct {
	ID                      string
	Name                    string
	PlanningModelConfig     core.ModelConfig
	ExecutionModelConfig    core.ModelConfig
	PlanningFallbackModels  []core.ModelConfig
	ExecutionFallbackModels []core.ModelConfig
}

// ProfileRegistry holds the known model profiles, keyed by ID.
type ProfileRegistry struct {
	mu       sync.Mutex
	profiles map[string]ModelProfile
}

// NewProfileRegistry returns an empty registry.
func NewProfileRegistry() *ProfileRegistry {
	return &ProfileRegistry{profiles: make(map[string]ModelProfile)}
}

// Add registers a profile, rejecting a duplicate ID.
func (r *ProfileRegistry) Add(p ModelProfile) error {
	if p.ID == "" {
		return core.ErrValidation("MODEL_PROFILE_ID_REQUIRED", "model profile id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.profiles[p.ID]; exists {
		return core.ErrValidation("MODEL_PROFILE_ALREADY_EXISTS", fmt.Sprintf("model profile %q already exists", p.ID))
	}
	r.profiles[p.ID] = p
	return nil
}

// Get looks up a profile by ID.
func (r *ProfileRegistry) Get(id string) (ModelProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	return p, ok
}

// List returns all registered profiles in no particular order.
func (r *ProfileRegistry) List() []ModelProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ModelProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}

// AsOverride turns a profile into an Override suitable for seeding a
// workspace's task defaults or a single task creation request.
func (p ModelProfile) AsOverride() Override {
	o := Override{
		PlanningModelConfig:     &p.PlanningModelConfig,
		ExecutionModelConfig:    &p.ExecutionModelConfig,
		PlanningFallbackModels:  p.PlanningFallbackModels,
		ExecutionFallbackModels: p.ExecutionFallbackModels,
	}
	o.Normalize()
	return o
}

func mergeOverride(base, patch Override) Override {
	if patch.PlanningModelConfig != nil {
		base.PlanningModelConfig = patch.PlanningModelConfig
	}
	if patch.ExecutionModelConfig != nil {
		base.ExecutionModelConfig = patch.ExecutionModelConfig
	}
	if patch.ModelConfig != nil {
		base.ModelConfig = patch.ModelConfig
	}
	if patch.PlanningFallbackModels != nil {
		base.PlanningFallbackModels = patch.PlanningFallbackModels
	}
	if patch.ExecutionFallbackModels != nil {
		base.ExecutionFallbackModels = patch.ExecutionFallbackModels
	}
	if patch.PreExecutionSkills != nil {
		base.PreExecutionSkills = patch.PreExecutionSkills
	}
	if patch.PostExecutionSkills != nil {
		base.PostExecutionSkills = patch.PostExecutionSkills
	}
	if patch.PlanningPromptTemplate != nil {
		base.PlanningPromptTemplate = patch.PlanningPromptTemplate
	}
	if patch.ExecutionPromptTemplate != nil {
		base.ExecutionPromptTemplate = patch.ExecutionPromptTemplate
	}
	base.Normalize()
	return base
}
