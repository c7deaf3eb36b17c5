// Package workspaceregistry persists the set of local repositories the
// orchestrator knows about, one JSON file at "<home>/<app-dir>/workspaces.json"
// holding an array of {id, path, name}. Shaped like a mutex-guarded
// in-memory config backed by a single file, reloaded from disk on every
// save so a concurrently running CLI invocation's edits are not lost,
// adapted from YAML to JSON and trimmed from a richer project record
// (status, color, config mode) down to the plain {id, path, name} record
// the orchestration core needs; richer workspace metadata belongs to a
// separate, out-of-scope collaborator.
package workspaceregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/fsutil"
)

// fileFormat is the on-disk shape of the registry file.
type fileFormat struct {
	Workspaces []*core.Workspace `json:"workspaces"`
}

// Registry is a JSON-file-backed set of known workspaces.
type Registry struct {
	mu   sync.Mutex
	path string
	data fileFormat
}

// Open loads the registry at path, creating an empty one in memory if the
// file does not yet exist on disk (it is created on the first Add/Remove).
func Open(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// DefaultPath returns "<home>/.taskfactory/workspaces.json", the registry
// location used when the caller does not override it.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".taskfactory", "workspaces.json"), nil
}

func (r *Registry) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := os.ReadFile(r.path) // #nosec G304 -- path is the operator's own registry file
	if err != nil {
		if os.IsNotExist(err) {
			r.data = fileFormat{}
			return nil
		}
		return fmt.Errorf("reading workspace registry: %w", err)
	}
	if len(b) == 0 {
		r.data = fileFormat{}
		return nil
	}
	var f fileFormat
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parsing workspace registry: %w", err)
	}
	r.data = f
	return nil
}

// save re-reads the file first so a workspace another process registered
// concurrently is not clobbered.
func (r *Registry) save() error {
	merged := fileFormat{}
	if b, err := os.ReadFile(r.path); err == nil && len(b) > 0 { // #nosec G304
		_ = json.Unmarshal(b, &merged)
	}
	byID := make(map[core.WorkspaceID]*core.Workspace, len(r.data.Workspaces))
	for _, w := range r.data.Workspaces {
		byID[w.ID] = w
	}
	for _, w := range merged.Workspaces {
		if _, ok := byID[w.ID]; !ok {
			byID[w.ID] = w
			r.data.Workspaces = append(r.data.Workspaces, w)
		}
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("ensuring registry directory: %w", err)
	}
	b, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling workspace registry: %w", err)
	}
	return fsutil.AtomicWriteFile(r.path, b, 0o600)
}

// List returns every registered workspace.
func (r *Registry) List() []*core.Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*core.Workspace, len(r.data.Workspaces))
	copy(out, r.data.Workspaces)
	return out
}

// Get returns the workspace with id, if registered.
func (r *Registry) Get(id core.WorkspaceID) (*core.Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.data.Workspaces {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}

// Add registers a new workspace, rejecting a duplicate id or path.
func (r *Registry) Add(w *core.Workspace) error {
	if err := w.Validate(); err != nil {
		return err
	}
	absPath, err := filepath.Abs(w.Path)
	if err != nil {
		return core.ErrValidation("WORKSPACE_PATH_INVALID", fmt.Sprintf("resolving workspace path: %v", err))
	}
	w.Path = absPath

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data.Workspaces {
		if existing.ID == w.ID {
			return core.ErrValidation("WORKSPACE_ALREADY_EXISTS", fmt.Sprintf("workspace %s already registered", w.ID))
		}
		if filepath.Clean(existing.Path) == filepath.Clean(absPath) {
			return core.ErrValidation("WORKSPACE_PATH_ALREADY_REGISTERED", fmt.Sprintf("path %s is already registered as %s", absPath, existing.ID))
		}
	}
	r.data.Workspaces = append(r.data.Workspaces, w)
	if err := r.save(); err != nil {
		r.data.Workspaces = r.data.Workspaces[:len(r.data.Workspaces)-1]
		return err
	}
	return nil
}

// Remove unregisters a workspace by id.
func (r *Registry) Remove(id core.WorkspaceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.data.Workspaces {
		if w.ID == id {
			removed := w
			r.data.Workspaces = append(r.data.Workspaces[:i], r.data.Workspaces[i+1:]...)
			if err := r.save(); err != nil {
				r.data.Workspaces = append(r.data.Workspaces[:i], append([]*core.Workspace{removed}, r.data.Workspaces[i:]...)...)
				return err
			}
			return nil
		}
	}
	return core.ErrNotFound("workspace", string(id))
}
