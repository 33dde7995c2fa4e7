package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)
	return sb
}

func TestNewSandboxCreatesBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data", "nested")
	sb, err := NewSandbox(base)
	require.NoError(t, err)

	info, err := os.Stat(sb.BaseDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(sb.BaseDir()))
}

func TestResolvePath(t *testing.T) {
	sb := newSandbox(t)

	t.Run("simple relative path", func(t *testing.T) {
		path, err := sb.ResolvePath("sub/file.txt")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(sb.BaseDir(), "sub", "file.txt"), path)
	})

	t.Run("dot resolves to base", func(t *testing.T) {
		path, err := sb.ResolvePath(".")
		require.NoError(t, err)
		assert.Equal(t, sb.BaseDir(), path)
	})

	t.Run("rejects absolute path", func(t *testing.T) {
		_, err := sb.ResolvePath("/etc/passwd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes sandbox")
	})

	t.Run("rejects traversal", func(t *testing.T) {
		_, err := sb.ResolvePath("../outside.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes sandbox")
	})

	t.Run("inner dotdot that stays inside is allowed", func(t *testing.T) {
		path, err := sb.ResolvePath("a/b/../c.txt")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(sb.BaseDir(), "a", "c.txt"), path)
	})
}

func TestPathTraversalAttempts(t *testing.T) {
	sb := newSandbox(t)
	attempts := []string{
		"..",
		"../..",
		"../../etc/passwd",
		"a/../../outside",
		"./../../x",
	}
	for _, attempt := range attempts {
		_, err := sb.ResolvePath(attempt)
		assert.Error(t, err, attempt)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	sb := newSandbox(t)

	require.NoError(t, sb.WriteFile("dir/deep/file.txt", []byte("payload")))

	data, err := sb.ReadFile("dir/deep/file.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = sb.ReadFile("missing.txt")
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	sb := newSandbox(t)

	ok, err := sb.Exists("file.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sb.WriteFile("file.txt", []byte("x")))
	ok, err = sb.Exists("file.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = sb.Exists("../nope")
	assert.Error(t, err)
}

func TestMkdirAll(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.MkdirAll("a/b/c"))

	info, err := sb.Stat("a/b/c")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRemove(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.WriteFile("file.txt", []byte("x")))
	require.NoError(t, sb.Remove("file.txt"))

	ok, err := sb.Exists("file.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveAll(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.WriteFile("tree/a.txt", []byte("a")))
	require.NoError(t, sb.WriteFile("tree/sub/b.txt", []byte("b")))

	require.NoError(t, sb.RemoveAll("tree"))
	ok, err := sb.Exists("tree")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveAllRefusesBase(t *testing.T) {
	sb := newSandbox(t)
	err := sb.RemoveAll(".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base directory")
}

func TestRename(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.WriteFile("old.txt", []byte("content")))

	require.NoError(t, sb.Rename("old.txt", "moved/new.txt"))

	data, err := sb.ReadFile("moved/new.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)

	ok, err := sb.Exists("old.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAtomicWrite(t *testing.T) {
	sb := newSandbox(t)

	require.NoError(t, sb.AtomicWrite("out/data.json", []byte(`{"a":1}`)))
	data, err := sb.ReadFile("out/data.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), data)

	// Overwrite keeps only the new content and leaves no temp files behind.
	require.NoError(t, sb.AtomicWrite("out/data.json", []byte(`{"a":2}`)))
	data, err = sb.ReadFile("out/data.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":2}`), data)

	entries, err := sb.List("out")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.json", entries[0].Name())
}

func TestAtomicWriteReader(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.AtomicWriteReader("stream.bin", bytes.NewReader([]byte("streamed"))))

	data, err := sb.ReadFile("stream.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("streamed"), data)
}

func TestAtomicPublish(t *testing.T) {
	sb := newSandbox(t)

	src := filepath.Join(t.TempDir(), "outside.m3u")
	require.NoError(t, os.WriteFile(src, []byte("#EXTM3U\n"), 0o640))

	require.NoError(t, sb.AtomicPublish(src, "published/list.m3u"))

	data, err := sb.ReadFile("published/list.m3u")
	require.NoError(t, err)
	assert.Equal(t, []byte("#EXTM3U\n"), data)
}

func TestCreateTemp(t *testing.T) {
	sb := newSandbox(t)

	file, err := sb.CreateTemp("", "chanarr-*.tmp")
	require.NoError(t, err)
	defer file.Close()

	assert.True(t, strings.HasPrefix(file.Name(), filepath.Join(sb.BaseDir(), "temp")))
}

func TestTempDir(t *testing.T) {
	sb := newSandbox(t)

	dir, err := sb.TempDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sb.BaseDir(), "temp"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestList(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.WriteFile("dir/a.txt", []byte("a")))
	require.NoError(t, sb.WriteFile("dir/b.txt", []byte("b")))

	entries, err := sb.List("dir")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	_, err = sb.List("missing")
	assert.Error(t, err)
}

func TestWalkReportsRelativePaths(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.WriteFile("tree/a.txt", []byte("a")))
	require.NoError(t, sb.WriteFile("tree/sub/b.txt", []byte("b")))

	var seen []string
	err := sb.Walk("tree", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		seen = append(seen, path)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, seen, filepath.Join("tree", "a.txt"))
	assert.Contains(t, seen, filepath.Join("tree", "sub", "b.txt"))
	for _, path := range seen {
		assert.False(t, filepath.IsAbs(path), path)
	}
}

func TestStatAndSize(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.WriteFile("file.txt", []byte("12345")))

	info, err := sb.Stat("file.txt")
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	size, err := sb.Size("file.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = sb.Size("missing.txt")
	assert.Error(t, err)
}

func TestOpenFileCreatesParents(t *testing.T) {
	sb := newSandbox(t)

	file, err := sb.OpenFile("deep/dir/file.log", os.O_CREATE|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = file.WriteString("line\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	data, err := sb.ReadFile("deep/dir/file.log")
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func TestSubSandbox(t *testing.T) {
	sb := newSandbox(t)

	sub, err := sb.SubSandbox("nested")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sb.BaseDir(), "nested"), sub.BaseDir())

	require.NoError(t, sub.WriteFile("file.txt", []byte("x")))
	data, err := sb.ReadFile("nested/file.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	// The child enforces its own boundary.
	_, err = sub.ResolvePath("../escape.txt")
	assert.Error(t, err)
}
