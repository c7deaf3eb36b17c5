// Package activity implements the per-workspace append-only Activity Log: a
// newline-delimited JSON journal the Supervisor and Queue Manager append to,
// and the broadcast/UI layer reads back newest-first.
//
// Appends do not fit the whole-file-replacement pattern fsutil.AtomicWriteFile
// gives the Task Store and Execution Lease, so the write path here is a
// hand-rolled O_APPEND writer guarded by a per-workspace mutex instead —
// the one place in this codebase that does not go through fsutil.
package activity

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/patleeman/taskfactory/internal/core"
)

// Journal manages one workspace's activity.jsonl file.
type Journal struct {
	mu   sync.Mutex
	path string
}

// NewJournal returns a journal backed by path (typically
// "<state-dir>/activity.jsonl").
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Append durably appends entry as one JSON line.
func (j *Journal) Append(entry core.ActivityEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o750); err != nil {
		return core.ErrIO("ACTIVITY_DIR_CREATE_FAILED", "creating activity log directory").WithCause(err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return core.ErrIO("ACTIVITY_ENCODE_FAILED", "encoding activity entry").WithCause(err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is the workspace's own journal file
	if err != nil {
		return core.ErrIO("ACTIVITY_OPEN_FAILED", "opening activity log").WithCause(err)
	}
	defer func() { _ = f.Close() }()

	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return core.ErrIO("ACTIVITY_WRITE_FAILED", "appending activity entry").WithCause(err)
	}
	return nil
}

// readLines reads every line in the journal, skipping malformed records
// rather than failing the whole read, and returns them in file (oldest
// first) order with their byte offsets.
func (j *Journal) readLines() ([]core.ActivityEntry, []int64, error) {
	f, err := os.Open(j.path) // #nosec G304 -- path is the workspace's own journal file
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, core.ErrIO("ACTIVITY_READ_FAILED", "reading activity log").WithCause(err)
	}
	defer func() { _ = f.Close() }()

	var entries []core.ActivityEntry
	var offsets []int64
	var offset int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineBytes := scanner.Bytes()
		lineLen := int64(len(lineBytes)) + 1 // account for the stripped newline
		var entry core.ActivityEntry
		if err := json.Unmarshal(lineBytes, &entry); err != nil {
			offset += lineLen
			continue // malformed record, skip without failing the read
		}
		entries = append(entries, entry)
		offsets = append(offsets, offset)
		offset += lineLen
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, core.ErrIO("ACTIVITY_SCAN_FAILED", "scanning activity log").WithCause(err)
	}
	return entries, offsets, nil
}

func reversed(entries []core.ActivityEntry) []core.ActivityEntry {
	out := make([]core.ActivityEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// ReadAll returns every entry, newest first.
func (j *Journal) ReadAll() ([]core.ActivityEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entries, _, err := j.readLines()
	if err != nil {
		return nil, err
	}
	return reversed(entries), nil
}

// ReadForTask returns every entry for taskID, newest first.
func (j *Journal) ReadForTask(taskID core.TaskID) ([]core.ActivityEntry, error) {
	all, err := j.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []core.ActivityEntry
	for _, e := range all {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ReadStream returns up to limit entries, newest first, starting strictly
// before cursor (a byte offset into the journal file as returned by a
// previous call's NextCursor). cursor <= 0 starts from the newest entry.
// Resumed readers can page backward through history without re-scanning
// the whole file on every request.
type StreamPage struct {
	Entries    []core.ActivityEntry
	NextCursor int64
	HasMore    bool
}

func (j *Journal) ReadStream(cursor int64, limit int) (StreamPage, error) {
	j.mu.Lock()
	entries, offsets, err := j.readLines()
	j.mu.Unlock()
	if err != nil {
		return StreamPage{}, err
	}
	if limit <= 0 {
		limit = 50
	}

	// entries/offsets are oldest-first; walk backward from the entry
	// strictly before cursor.
	startIdx := len(entries) - 1
	if cursor > 0 {
		for i, off := range offsets {
			if off >= cursor {
				startIdx = i - 1
				break
			}
		}
	}

	var page []core.ActivityEntry
	nextCursor := int64(-1)
	i := startIdx
	for ; i >= 0 && len(page) < limit; i-- {
		page = append(page, entries[i])
		nextCursor = offsets[i]
	}

	return StreamPage{
		Entries:    page,
		NextCursor: nextCursor,
		HasMore:    i >= 0,
	}, nil
}

// Validate checks entry has the fields required for its kind before it is
// appended, mirroring the Task Store's write-time validation discipline.
func Validate(entry core.ActivityEntry) error {
	if entry.ID == "" {
		return core.ErrValidation("ACTIVITY_ID_REQUIRED", "activity entry ID cannot be empty")
	}
	switch entry.Kind {
	case core.ActivityKindTaskSeparator:
		return nil
	case core.ActivityKindChatMessage:
		if entry.Role == "" {
			return core.ErrValidation("ACTIVITY_ROLE_REQUIRED", "chat-message entry requires a role")
		}
		return nil
	case core.ActivityKindSystemEvent:
		if entry.EventKind == "" {
			return core.ErrValidation("ACTIVITY_EVENT_KIND_REQUIRED", "system-event entry requires an eventKind")
		}
		return nil
	default:
		return core.ErrValidation("ACTIVITY_KIND_INVALID", fmt.Sprintf("unknown activity kind: %s", entry.Kind))
	}
}
