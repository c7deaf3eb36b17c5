package attachments

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestStore_AttachCopiesFileIntoTaskDir(t *testing.T) {
	taskDir := t.TempDir()
	srcDir := t.TempDir()
	src := writeTempSource(t, srcDir, "notes.txt", "hello world")

	store := NewStore(taskDir)
	ref, err := store.Attach(src, "")
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", ref.Filename)
	assert.True(t, strings.HasSuffix(ref.StoredName, ".txt"))
	assert.Equal(t, int64(len("hello world")), ref.Size)
	assert.NotEmpty(t, ref.ID)

	resolved, err := store.Resolve(ref.StoredName)
	require.NoError(t, err)
	data, err := os.ReadFile(resolved) // #nosec G304 -- test-owned temp path
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestStore_AttachFilenameOverride(t *testing.T) {
	taskDir := t.TempDir()
	srcDir := t.TempDir()
	src := writeTempSource(t, srcDir, "raw-upload.bin", "data")

	store := NewStore(taskDir)
	ref, err := store.Attach(src, "screenshot.png")
	require.NoError(t, err)

	assert.Equal(t, "screenshot.png", ref.Filename)
	assert.True(t, strings.HasSuffix(ref.StoredName, ".png"))
}

func TestStore_AttachRejectsOversizedFile(t *testing.T) {
	taskDir := t.TempDir()
	srcDir := t.TempDir()

	big := make([]byte, MaxAttachmentSizeBytes+1)
	src := filepath.Join(srcDir, "huge.bin")
	require.NoError(t, os.WriteFile(src, big, 0o600))

	store := NewStore(taskDir)
	_, err := store.Attach(src, "")
	require.Error(t, err)

	entries, _ := os.ReadDir(store.Dir())
	assert.Empty(t, entries, "oversized attachment must not be left on disk")
}

func TestStore_DeleteRemovesFile(t *testing.T) {
	taskDir := t.TempDir()
	srcDir := t.TempDir()
	src := writeTempSource(t, srcDir, "a.txt", "x")

	store := NewStore(taskDir)
	ref, err := store.Attach(src, "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ref.StoredName))

	_, err = store.Resolve(ref.StoredName)
	require.NoError(t, err) // Resolve only validates the name, not existence
	_, statErr := os.Stat(filepath.Join(store.Dir(), ref.StoredName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.NoError(t, store.Delete("never-existed.txt"))
}

func TestStore_ResolveRejectsPathTraversal(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Resolve("../../etc/passwd")
	assert.Error(t, err)

	_, err = store.Resolve("sub/dir/file.txt")
	assert.Error(t, err)
}

func TestStore_DeleteAllRemovesDirectory(t *testing.T) {
	taskDir := t.TempDir()
	srcDir := t.TempDir()
	src := writeTempSource(t, srcDir, "a.txt", "x")

	store := NewStore(taskDir)
	_, err := store.Attach(src, "")
	require.NoError(t, err)

	require.NoError(t, store.DeleteAll())
	_, statErr := os.Stat(store.Dir())
	assert.True(t, os.IsNotExist(statErr))
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"plain.txt":            "plain.txt",
		"../../etc/passwd":     "passwd",
		"dir/nested.txt":       "nested.txt",
		"back\\slash\\name.md": "back_slash_name.md",
		"":                     "attachment",
		".":                    "attachment",
	}
	for input, want := range cases {
		assert.Equal(t, want, sanitizeFilename(input), "input=%q", input)
	}
}
