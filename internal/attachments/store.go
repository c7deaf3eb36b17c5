// Package attachments copies external files into a task's attachment
// directory and manages their on-disk lifecycle.
package attachments

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/patleeman/taskfactory/internal/core"
)

// MaxAttachmentSizeBytes limits each attached file's size.
const MaxAttachmentSizeBytes = 50 * 1024 * 1024 // 50MB

// Store manages the attachments directory of a single task:
// "<task-dir>/attachments/<attachmentId><ext>". Frontmatter, not a sidecar
// metadata file, is the source of truth for the list of attachments; Store
// only moves bytes and enforces the size cap and safe filenames.
type Store struct {
	taskDir string
}

// NewStore returns a store scoped to one task's directory.
func NewStore(taskDir string) *Store {
	return &Store{taskDir: taskDir}
}

// Dir returns the task's attachments directory.
func (s *Store) Dir() string {
	return filepath.Join(s.taskDir, "attachments")
}

func (s *Store) ensureDir() error {
	return os.MkdirAll(s.Dir(), 0o750)
}

// Attach copies sourcePath into the attachments directory under a fresh
// attachment ID, sniffing its MIME type and enforcing the size cap. It
// returns the frontmatter record the caller must append to the task and
// persist; if that persist fails, the caller should call Delete with the
// returned StoredName to roll the copy back.
func (s *Store) Attach(sourcePath, filenameOverride string) (core.AttachmentRef, error) {
	displayName := strings.TrimSpace(filenameOverride)
	if displayName == "" {
		displayName = filepath.Base(sourcePath)
	}
	displayName = sanitizeFilename(displayName)

	src, err := os.Open(sourcePath) // #nosec G304 -- caller-provided source path, not user input from disk traversal
	if err != nil {
		return core.AttachmentRef{}, fmt.Errorf("opening source file: %w", err)
	}
	defer func() { _ = src.Close() }()

	if err := s.ensureDir(); err != nil {
		return core.AttachmentRef{}, fmt.Errorf("ensuring attachments dir: %w", err)
	}

	root, err := os.OpenRoot(s.Dir())
	if err != nil {
		return core.AttachmentRef{}, fmt.Errorf("opening attachments root: %w", err)
	}
	defer func() { _ = root.Close() }()

	attachmentID := uuid.New().String()
	ext := filepath.Ext(displayName)
	storedName := attachmentID + ext

	dst, err := root.OpenFile(storedName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return core.AttachmentRef{}, fmt.Errorf("creating attachment file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	var sniff [512]byte
	n, _ := io.ReadFull(src, sniff[:])
	if n > 0 {
		if _, err := dst.Write(sniff[:n]); err != nil {
			return core.AttachmentRef{}, fmt.Errorf("writing attachment header: %w", err)
		}
	}
	mimeType := http.DetectContentType(sniff[:n])

	remaining := int64(MaxAttachmentSizeBytes - n)
	if remaining < 0 {
		_ = root.Remove(storedName)
		return core.AttachmentRef{}, fmt.Errorf("attachment too large (max %d bytes)", MaxAttachmentSizeBytes)
	}
	written, err := io.Copy(dst, io.LimitReader(src, remaining+1))
	if err != nil {
		_ = root.Remove(storedName)
		return core.AttachmentRef{}, fmt.Errorf("writing attachment: %w", err)
	}
	if written > remaining {
		_ = root.Remove(storedName)
		return core.AttachmentRef{}, fmt.Errorf("attachment too large (max %d bytes)", MaxAttachmentSizeBytes)
	}

	return core.AttachmentRef{
		ID:         attachmentID,
		Filename:   displayName,
		StoredName: storedName,
		MimeType:   mimeType,
		Size:       int64(n) + written,
		CreatedAt:  time.Now(),
	}, nil
}

// Delete removes a previously attached file. storedName must be a bare
// filename produced by Attach; any path separator is rejected so a
// malformed frontmatter entry can't escape the attachments directory.
func (s *Store) Delete(storedName string) error {
	if err := validateStoredName(storedName); err != nil {
		return err
	}
	root, err := os.OpenRoot(s.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening attachments root: %w", err)
	}
	defer func() { _ = root.Close() }()

	if err := root.Remove(storedName); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing attachment: %w", err)
	}
	return nil
}

// DeleteAll removes the task's entire attachments directory, used when the
// task itself is deleted.
func (s *Store) DeleteAll() error {
	if err := os.RemoveAll(s.Dir()); err != nil {
		return fmt.Errorf("removing attachments dir: %w", err)
	}
	return nil
}

// Resolve returns the absolute path of a stored attachment for reading.
func (s *Store) Resolve(storedName string) (string, error) {
	if err := validateStoredName(storedName); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir(), storedName), nil
}

func validateStoredName(storedName string) error {
	if storedName == "" {
		return fmt.Errorf("stored name is required")
	}
	if storedName != filepath.Base(storedName) {
		return fmt.Errorf("invalid stored name: %q", storedName)
	}
	return nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)

	if strings.Contains(name, "\\") {
		base := strings.ReplaceAll(name, "\\", "_")
		base = strings.ReplaceAll(base, "\x00", "")
		base = strings.ReplaceAll(base, "/", "_")
		if base == "" || base == "." || base == ".." {
			base = "attachment"
		}
		const maxLen = 200
		if len(base) > maxLen {
			base = base[:maxLen]
		}
		return base
	}

	base := filepath.Base(name)
	base = strings.TrimSpace(base)
	base = strings.ReplaceAll(base, "\x00", "")
	base = strings.ReplaceAll(base, string(os.PathSeparator), "_")
	base = strings.ReplaceAll(base, "/", "_")
	if base == "" || base == "." || base == ".." {
		base = "attachment"
	}
	const maxLen = 200
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	return base
}
