package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/patleeman/taskfactory/internal/breaker"
	"github.com/patleeman/taskfactory/internal/lease"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	cfg := Load()
	assert.Equal(t, breaker.DefaultConfig(), cfg.Breaker)
	assert.Equal(t, lease.DefaultTTL, cfg.LeaseTTL)
	assert.True(t, cfg.LeasesEnabled)
}

func TestLoad_ReadsBreakerOverrides(t *testing.T) {
	t.Setenv("EXECUTION_BREAKER_THRESHOLD", "7")
	t.Setenv("EXECUTION_BREAKER_BURST_WINDOW_MS", "60000")
	t.Setenv("EXECUTION_BREAKER_COOLDOWN_MS", "15000")

	cfg := Load()
	assert.Equal(t, 7, cfg.Breaker.Threshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.BurstWindow)
	assert.Equal(t, 15*time.Second, cfg.Breaker.Cooldown)
}

func TestLoad_ReadsLeaseOverrides(t *testing.T) {
	t.Setenv("EXECUTION_LEASE_TTL_MS", "30000")
	t.Setenv("EXECUTION_LEASES_ENABLED", "0")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.LeaseTTL)
	assert.False(t, cfg.LeasesEnabled)
}

func TestLoad_IgnoresMalformedOverride(t *testing.T) {
	t.Setenv("EXECUTION_BREAKER_THRESHOLD", "not-a-number")
	cfg := Load()
	assert.Equal(t, breaker.DefaultThreshold, cfg.Breaker.Threshold)
}

func TestWorkspacePathHelpers(t *testing.T) {
	assert.Equal(t, "/repo/.taskfactory/tasks", TasksDir("/repo"))
	assert.Equal(t, "/repo/.taskfactory/activity.jsonl", ActivityLogPath("/repo"))
	assert.Equal(t, "/repo/.taskfactory/execution-leases.json", LeaseFilePath("/repo"))
	assert.Equal(t, "/repo/.taskfactory/settings.yaml", SettingsOverridePath("/repo"))
	assert.Equal(t, "/repo/.taskfactory/task-defaults.yaml", TaskDefaultsOverridePath("/repo"))
}
