// Package settings implements the Workflow Settings layer: resolving the
// effective WIP and automation configuration for a workspace from layered
// override files. Shaped like a config loader that layers project config
// over user config over built-in defaults via github.com/spf13/viper;
// generalized here to two override layers (global, workspace) plus the
// built-in struct, unmarshaled with github.com/mitchellh/mapstructure tags.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/patleeman/taskfactory/internal/fsutil"
	"github.com/patleeman/taskfactory/internal/queue"
)

// BuiltIn is the factory default applied wherever no override layer sets a
// field.
var BuiltIn = queue.Limits{
	ExecutingLimit:   1,
	ReadyLimit:       5,
	BacklogToReady:   false,
	ReadyToExecuting: true,
}

// Override is one layer's possibly-partial settings patch. A nil field
// means "inherit from the layer below".
type Override struct {
	ExecutingLimit   *int  `mapstructure:"executingLimit" yaml:"executingLimit,omitempty"`
	ReadyLimit       *int  `mapstructure:"readyLimit" yaml:"readyLimit,omitempty"`
	BacklogToReady   *bool `mapstructure:"backlogToReady" yaml:"backlogToReady,omitempty"`
	ReadyToExecuting *bool `mapstructure:"readyToExecuting" yaml:"readyToExecuting,omitempty"`

	// AutomationEnabled is the legacy enable flag. SetWorkspaceOverride keeps
	// it in sync with ReadyToExecuting; it is only consulted here when a
	// layer sets it without also setting the newer field.
	AutomationEnabled *bool `mapstructure:"automationEnabled" yaml:"automationEnabled,omitempty"`
}

func (o Override) applyTo(l queue.Limits) queue.Limits {
	if o.ExecutingLimit != nil {
		l.ExecutingLimit = *o.ExecutingLimit
	}
	if o.ReadyLimit != nil {
		l.ReadyLimit = *o.ReadyLimit
	}
	if o.BacklogToReady != nil {
		l.BacklogToReady = *o.BacklogToReady
	}
	switch {
	case o.ReadyToExecuting != nil:
		l.ReadyToExecuting = *o.ReadyToExecuting
	case o.AutomationEnabled != nil:
		l.ReadyToExecuting = *o.AutomationEnabled
	}
	return l
}

func mergeOverride(base, patch Override) Override {
	if patch.ExecutingLimit != nil {
		base.ExecutingLimit = patch.ExecutingLimit
	}
	if patch.ReadyLimit != nil {
		base.ReadyLimit = patch.ReadyLimit
	}
	if patch.BacklogToReady != nil {
		base.BacklogToReady = patch.BacklogToReady
	}
	if patch.ReadyToExecuting != nil {
		base.ReadyToExecuting = patch.ReadyToExecuting
	}
	if patch.AutomationEnabled != nil {
		base.AutomationEnabled = patch.AutomationEnabled
	}
	return base
}

// WorkspacePath locates a workspace's settings override file, normally
// "<workspace>/<state-dir>/settings.yaml".
type WorkspacePath func(workspaceID string) string

// Service resolves the effective queue.Limits for a workspace and
// implements queue.LimitsProvider.
type Service struct {
	mu            sync.Mutex
	globalPath    string
	workspacePath WorkspacePath
}

// NewService constructs a Service. globalPath is typically
// "<home>/.taskfactory/settings.yaml"; workspacePath resolves each
// workspace's own override file location.
func NewService(globalPath string, workspacePath WorkspacePath) *Service {
	return &Service{globalPath: globalPath, workspacePath: workspacePath}
}

// Resolve implements queue.LimitsProvider: built-in <- global <- workspace.
// Files are re-read on every call so an operator's live edit takes effect on
// the Queue Manager's next kick without a restart.
func (s *Service) Resolve(workspaceID string) queue.Limits {
	limits := BuiltIn
	if global, err := loadOverride(s.globalPath); err == nil {
		limits = global.applyTo(limits)
	}
	if s.workspacePath != nil {
		if ws, err := loadOverride(s.workspacePath(workspaceID)); err == nil {
			limits = ws.applyTo(limits)
		}
	}
	return limits
}

// SetWorkspaceOverride merges patch into the workspace's override file.
// Patching ReadyToExecuting always writes the same value into the legacy
// AutomationEnabled field, so a consumer that has not migrated to the
// newer key still observes the change.
func (s *Service) SetWorkspaceOverride(workspaceID string, patch Override) error {
	if s.workspacePath == nil {
		return fmt.Errorf("settings: no workspace override path configured")
	}
	if patch.ReadyToExecuting != nil {
		v := *patch.ReadyToExecuting
		patch.AutomationEnabled = &v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.workspacePath(workspaceID)
	current, _ := loadOverride(path)
	return saveOverride(path, mergeOverride(current, patch))
}

func loadOverride(path string) (Override, error) {
	if path == "" {
		return Override{}, fmt.Errorf("settings: empty override path")
	}
	if _, err := os.Stat(path); err != nil {
		return Override{}, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Override{}, fmt.Errorf("reading settings override %s: %w", path, err)
	}
	var o Override
	if err := v.Unmarshal(&o); err != nil {
		return Override{}, fmt.Errorf("parsing settings override %s: %w", path, err)
	}
	return o, nil
}

func saveOverride(path string, o Override) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("ensuring settings directory: %w", err)
	}
	b, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshaling settings override: %w", err)
	}
	return fsutil.AtomicWriteFile(path, b, 0o600)
}
