// Package config resolves process-wide configuration: log setup, on-disk
// path layout, and the Execution Breaker/Lease tunables exposed as
// environment variables. Shaped like a layered loader/validator split,
// trimmed from a many-layer CLI-flag/env/project/user precedence down to
// env-vars-over-built-in-defaults, since a daemon process has no
// per-invocation CLI flags or project config file the way an interactive
// CLI does.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/patleeman/taskfactory/internal/breaker"
	"github.com/patleeman/taskfactory/internal/lease"
	"github.com/patleeman/taskfactory/internal/logging"
)

// StateDirName is the per-workspace directory holding tasks, the activity
// journal, and the lease file.
const StateDirName = ".taskfactory"

// AppDirName is the per-home directory holding the workspace registry and
// global settings/task-defaults overrides.
const AppDirName = ".taskfactory"

// Config is the resolved process-wide configuration.
type Config struct {
	Logging       logging.Config
	Breaker       breaker.Config
	LeaseTTL      time.Duration
	LeasesEnabled bool
}

// Load reads Config from the environment, falling back to built-in
// defaults for anything unset. It never fails: a malformed env var falls
// back to its default rather than aborting startup, since these are tuning
// knobs, not required configuration.
func Load() Config {
	cfg := Config{
		Logging:       logging.DefaultConfig(),
		Breaker:       breaker.DefaultConfig(),
		LeaseTTL:      lease.DefaultTTL,
		LeasesEnabled: true,
	}

	if v, ok := envInt("EXECUTION_BREAKER_THRESHOLD"); ok {
		cfg.Breaker.Threshold = v
	}
	if v, ok := envDurationMS("EXECUTION_BREAKER_BURST_WINDOW_MS"); ok {
		cfg.Breaker.BurstWindow = v
	}
	if v, ok := envDurationMS("EXECUTION_BREAKER_COOLDOWN_MS"); ok {
		cfg.Breaker.Cooldown = v
	}
	if v, ok := envDurationMS("EXECUTION_LEASE_TTL_MS"); ok {
		cfg.LeaseTTL = v
	}
	if v, ok := envBool("EXECUTION_LEASES_ENABLED"); ok {
		cfg.LeasesEnabled = v
	}
	if v := os.Getenv("TASKFACTORY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TASKFACTORY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return cfg
}

// WorkspaceStateDir returns "<workspacePath>/.taskfactory".
func WorkspaceStateDir(workspacePath string) string {
	return filepath.Join(workspacePath, StateDirName)
}

// TasksDir returns "<workspacePath>/.taskfactory/tasks".
func TasksDir(workspacePath string) string {
	return filepath.Join(WorkspaceStateDir(workspacePath), "tasks")
}

// ActivityLogPath returns "<workspacePath>/.taskfactory/activity.jsonl".
func ActivityLogPath(workspacePath string) string {
	return filepath.Join(WorkspaceStateDir(workspacePath), "activity.jsonl")
}

// LeaseFilePath returns "<workspacePath>/.taskfactory/execution-leases.json".
func LeaseFilePath(workspacePath string) string {
	return filepath.Join(WorkspaceStateDir(workspacePath), "execution-leases.json")
}

// SettingsOverridePath returns "<workspacePath>/.taskfactory/settings.yaml".
func SettingsOverridePath(workspacePath string) string {
	return filepath.Join(WorkspaceStateDir(workspacePath), "settings.yaml")
}

// TaskDefaultsOverridePath returns
// "<workspacePath>/.taskfactory/task-defaults.yaml".
func TaskDefaultsOverridePath(workspacePath string) string {
	return filepath.Join(WorkspaceStateDir(workspacePath), "task-defaults.yaml")
}

// AppDir returns "<home>/.taskfactory", creating it if absent.
func AppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, AppDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating app directory: %w", err)
	}
	return dir, nil
}

// WorkspaceRegistryPath returns "<home>/.taskfactory/workspaces.json".
func WorkspaceRegistryPath() (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "workspaces.json"), nil
}

// GlobalSettingsPath returns "<home>/.taskfactory/settings.yaml".
func GlobalSettingsPath() (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.yaml"), nil
}

// GlobalTaskDefaultsPath returns "<home>/.taskfactory/task-defaults.yaml".
func GlobalTaskDefaultsPath() (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "task-defaults.yaml"), nil
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envDurationMS(key string) (time.Duration, bool) {
	v, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(v) * time.Millisecond, true
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
