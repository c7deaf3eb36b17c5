package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/patleeman/taskfactory/internal/activity"
	"github.com/patleeman/taskfactory/internal/breaker"
	"github.com/patleeman/taskfactory/internal/config"
	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/events"
	"github.com/patleeman/taskfactory/internal/lease"
	"github.com/patleeman/taskfactory/internal/logging"
	"github.com/patleeman/taskfactory/internal/profiles"
	"github.com/patleeman/taskfactory/internal/queue"
	"github.com/patleeman/taskfactory/internal/runtime"
	"github.com/patleeman/taskfactory/internal/settings"
	"github.com/patleeman/taskfactory/internal/supervisor"
	"github.com/patleeman/taskfactory/internal/taskstore"
	"github.com/patleeman/taskfactory/internal/toolbus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration core for every registered workspace",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// workspaceRuntime bundles one workspace's running component graph so Stop
// can tear it down in reverse order of startup.
type workspaceRuntime struct {
	manager  *queue.Manager
	bus      *events.EventBus
	profiles *profiles.Service
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	cfg.Logging.Output = os.Stdout
	logger := logging.New(cfg.Logging)

	reg, err := openRegistry()
	if err != nil {
		return fmt.Errorf("opening workspace registry: %w", err)
	}
	workspaces := reg.List()
	if len(workspaces) == 0 {
		logger.Warn("no workspaces registered; run 'taskfactoryd workspace add' first")
	}

	globalSettingsPath, err := config.GlobalSettingsPath()
	if err != nil {
		return err
	}
	globalTaskDefaultsPath, err := config.GlobalTaskDefaultsPath()
	if err != nil {
		return err
	}

	// Agent runtimes are consumed through runtime.AgentRuntime only; no
	// concrete provider-backed implementation is wired up here yet, so the
	// daemon runs against a scripted runtime until one is plugged in.
	agentRuntime := &runtime.MockRuntime{}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var running []*workspaceRuntime
	for _, ws := range workspaces {
		wr, err := startWorkspace(ctx, ws, cfg, logger, agentRuntime, globalSettingsPath, globalTaskDefaultsPath)
		if err != nil {
			logger.Error("failed to start workspace", slog.String("workspace", string(ws.ID)), slog.String("error", err.Error()))
			continue
		}
		running = append(running, wr)
		logger.Info("workspace started", slog.String("workspace", string(ws.ID)), slog.String("path", ws.Path))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx := context.Background()
	for _, wr := range running {
		wr.manager.Stop(shutdownCtx)
		wr.bus.Close()
	}
	logger.Info("stopped")
	return nil
}

func startWorkspace(
	ctx context.Context,
	ws *core.Workspace,
	cfg config.Config,
	logger *logging.Logger,
	agentRuntime runtime.AgentRuntime,
	globalSettingsPath, globalTaskDefaultsPath string,
) (*workspaceRuntime, error) {
	bus := events.New(100)

	tasksDir := config.TasksDir(ws.Path)
	tasks := taskstore.NewStore(tasksDir, string(ws.ID), bus)
	journal := activity.NewJournal(config.ActivityLogPath(ws.Path))

	leaseStore := lease.NewStore(config.LeaseFilePath(ws.Path), cfg.LeaseTTL)
	br := breaker.New(cfg.Breaker)
	tools := toolbus.New()

	settingsSvc := settings.NewService(globalSettingsPath, func(string) string {
		return config.SettingsOverridePath(ws.Path)
	})
	// No skill definitions source is wired yet; an empty resolver rejects
	// any task that names a skill ID rather than panicking on a nil lookup.
	skills := supervisor.StaticSkillResolver{}
	profilesSvc := profiles.NewService(profiles.TaskConfig{}, globalTaskDefaultsPath, func(string) string {
		return config.TaskDefaultsOverridePath(ws.Path)
	}, skills)

	sup := supervisor.New(agentRuntime, tasks, journal, bus, tools, skills, logger, string(ws.ID), ws.Path, tasksDir)

	manager := queue.New(queue.Config{
		WorkspaceID: string(ws.ID),
		OwnerID:     string(ws.ID),
		TasksDir:    tasksDir,
		Tasks:       tasks,
		Journal:     journal,
		Bus:         bus,
		Leases:      leaseStore,
		Breaker:     br,
		Supervisor:  sup,
		Limits:      settingsSvc,
		Logger:      logger,
	})
	manager.Start(ctx)

	return &workspaceRuntime{manager: manager, bus: bus, profiles: profilesSvc}, nil
}
