// Package lease persists per-workspace execution leases so a restarted
// orchestrator can tell a genuinely orphaned executing task from one a
// still-live process owns. Writes go through renameio for whole-file
// atomicity, matching the Task Store's discipline, and are serialized by a
// per-workspace queue the same way a state-adapter package serializes its
// state file writes.
package lease

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/patleeman/taskfactory/internal/core"
	"github.com/patleeman/taskfactory/internal/fsutil"
)

// DefaultTTL is the freshness window used when the environment does not
// override it (EXECUTION_LEASE_TTL_MS).
const DefaultTTL = 120 * time.Second

type leaseFile struct {
	Leases map[core.TaskID]core.ExecutionLease `json:"leases"`
}

// Store manages one workspace's lease file.
type Store struct {
	mu   sync.Mutex
	path string
	ttl  time.Duration
}

// NewStore returns a lease store backed by path (typically
// "<state-dir>/leases.json").
func NewStore(path string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{path: path, ttl: ttl}
}

func (s *Store) load() (leaseFile, error) {
	var lf leaseFile
	lf.Leases = make(map[core.TaskID]core.ExecutionLease)

	b, err := os.ReadFile(s.path) // #nosec G304 -- path is the workspace's own lease file
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return lf, fmt.Errorf("reading lease file: %w", err)
	}
	if len(b) == 0 {
		return lf, nil
	}
	if err := json.Unmarshal(b, &lf); err != nil {
		// A torn or corrupted lease file is treated as empty rather than
		// failing the orchestrator's startup.
		return leaseFile{Leases: make(map[core.TaskID]core.ExecutionLease)}, nil
	}
	if lf.Leases == nil {
		lf.Leases = make(map[core.TaskID]core.ExecutionLease)
	}
	return lf, nil
}

func (s *Store) save(lf leaseFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("ensuring lease dir: %w", err)
	}
	b, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling leases: %w", err)
	}
	return fsutil.AtomicWriteFile(s.path, b, 0o600)
}

// Upsert writes {ownerId, startedAt (preserved if already present),
// lastHeartbeatAt=now, status} for taskID.
func (s *Store) Upsert(taskID core.TaskID, ownerID string, status core.LeaseStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := s.load()
	if err != nil {
		return err
	}
	existing, hadExisting := lf.Leases[taskID]
	started := now
	if hadExisting {
		started = existing.StartedAt
	}
	lf.Leases[taskID] = core.ExecutionLease{
		TaskID:          taskID,
		OwnerID:         ownerID,
		StartedAt:       started,
		LastHeartbeatAt: now,
		Status:          status,
	}
	return s.save(lf)
}

// Heartbeat is a plain Upsert with the lease's existing status preserved.
func (s *Store) Heartbeat(taskID core.TaskID, ownerID string, now time.Time) error {
	s.mu.Lock()
	lf, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	status := core.LeaseStatusRunning
	if existing, ok := lf.Leases[taskID]; ok {
		status = existing.Status
	}
	s.mu.Unlock()
	return s.Upsert(taskID, ownerID, status, now)
}

// Clear removes a task's lease entirely.
func (s *Store) Clear(taskID core.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := lf.Leases[taskID]; !ok {
		return nil
	}
	delete(lf.Leases, taskID)
	return s.save(lf)
}

// Get returns the lease for taskID, if any.
func (s *Store) Get(taskID core.TaskID) (core.ExecutionLease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lf, err := s.load()
	if err != nil {
		return core.ExecutionLease{}, false
	}
	l, ok := lf.Leases[taskID]
	return l, ok
}

// All returns every lease currently on disk, used by the Queue Manager's
// startup orphan scan.
func (s *Store) All() (map[core.TaskID]core.ExecutionLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lf, err := s.load()
	if err != nil {
		return nil, err
	}
	return lf.Leases, nil
}

// HeartbeatInterval returns the cadence a Supervisor should heartbeat at
// for this store's TTL: max(5s, TTL/3).
func (s *Store) HeartbeatInterval() time.Duration {
	return core.HeartbeatInterval(s.ttl)
}

// IsFresh reports whether lease is still within this store's TTL as of now.
func (s *Store) IsFresh(lease core.ExecutionLease, now time.Time) bool {
	return lease.Fresh(now, s.ttl)
}
