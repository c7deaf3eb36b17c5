package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/patleeman/taskfactory/internal/config"
	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/workspaceregistry"
)

var workspaceName string

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Short:   "Manage registered workspaces",
	Aliases: []string{"ws"},
}

var addWorkspaceCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Register a local repository as a workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAddWorkspace,
}

var listWorkspacesCmd = &cobra.Command{
	Use:     "list",
	Short:   "List registered workspaces",
	Aliases: []string{"ls"},
	RunE:    runListWorkspaces,
}

var removeWorkspaceCmd = &cobra.Command{
	Use:     "remove <id>",
	Short:   "Unregister a workspace",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE:    runRemoveWorkspace,
}

func init() {
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.AddCommand(addWorkspaceCmd, listWorkspacesCmd, removeWorkspaceCmd)

	addWorkspaceCmd.Flags().StringVar(&workspaceName, "name", "", "display name (default: directory name)")
}

func openRegistry() (*workspaceregistry.Registry, error) {
	path, err := config.WorkspaceRegistryPath()
	if err != nil {
		return nil, err
	}
	return workspaceregistry.Open(path)
}

func runAddWorkspace(_ *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	name := workspaceName
	if name == "" {
		name = filepath.Base(abs)
	}

	reg, err := openRegistry()
	if err != nil {
		return err
	}
	ws := &core.Workspace{ID: core.WorkspaceID(uuid.NewString()), Path: abs, Name: name}
	if err := reg.Add(ws); err != nil {
		return err
	}
	fmt.Printf("registered workspace %s (%s) at %s\n", ws.Name, ws.ID, ws.Path)
	return nil
}

func runListWorkspaces(_ *cobra.Command, _ []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tNAME\tPATH")
	for _, ws := range reg.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ws.ID, ws.Name, ws.Path)
	}
	return nil
}

func runRemoveWorkspace(_ *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	return reg.Remove(core.WorkspaceID(args[0]))
}
