package main

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	assert.Nil(t, os.MkdirAll(filepath.Join(root, "a", "z"), 0775))
	assert.Nil(t, os.MkdirAll(filepath.Join(root, "b"), 0775))
	assert.Nil(t, os.WriteFile(filepath.Join(root, "a", "f.txt"), []byte("hi"), 0644))
	assert.Nil(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("hello world"), 0644))
	return root
}

func TestWalkTreeOrdersEntries(t *testing.T) {
	root := buildTestTree(t)

	walk, walkErr := walkTree(root, nil)

	assert.Nil(t, walkErr)
	assert.True(t, walk.IsDir)
	assert.Equal(t, []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "z"),
		filepath.Join(root, "b"),
	}, walk.Dirs.Keys())
	assert.Equal(t, []string{
		filepath.Join(root, "a", "f.txt"),
		filepath.Join(root, "top.txt"),
	}, walk.Files.Keys())
}

func TestWalkTreeSingleFileMode(t *testing.T) {
	root := buildTestTree(t)
	filePath := filepath.Join(root, "top.txt")

	walk, walkErr := walkTree(filePath, nil)

	assert.Nil(t, walkErr)
	assert.False(t, walk.IsDir)
	assert.Equal(t, 0, walk.Dirs.Len())
	assert.Equal(t, []string{filePath}, walk.Files.Keys())
}

func TestWalkTreeMissingRoot(t *testing.T) {
	_, walkErr := walkTree(filepath.Join(t.TempDir(), "not-real-dir"), nil)

	assert.NotNil(t, walkErr)
	var notFound *NotFoundError
	assert.True(t, errors.As(walkErr, &notFound))
}

func TestWalkTreeExcludesMatchingPaths(t *testing.T) {
	root := buildTestTree(t)
	exclude := []*regexp.Regexp{regexp.MustCompile(`/a($|/)`)}

	walk, walkErr := walkTree(root, exclude)

	assert.Nil(t, walkErr)
	assert.Equal(t, []string{root, filepath.Join(root, "b")}, walk.Dirs.Keys())
	assert.Equal(t, []string{filepath.Join(root, "top.txt")}, walk.Files.Keys())
}

func TestEntryCapturesStatOwnership(t *testing.T) {
	root := buildTestTree(t)

	walk, walkErr := walkTree(root, nil)

	assert.Nil(t, walkErr)
	entry, exists := walk.Files.Get(filepath.Join(root, "top.txt"))
	assert.True(t, exists)
	assert.Equal(t, strconv.Itoa(os.Geteuid()), entry.UID)
	assert.Equal(t, strconv.Itoa(os.Getegid()), entry.GID)
	assert.NotEmpty(t, entry.Mode)
	assert.NotEmpty(t, entry.Mtime)
	assert.Equal(t, int64(len("hello world")), entry.Size)

	mode, parseErr := strconv.Atoi(entry.Mode)
	assert.Nil(t, parseErr)
	// S_IFREG is set on the raw st_mode of a regular file
	assert.Equal(t, 0o100000, mode&0o170000)
}

func TestEntryForDirectoryCarriesDirBit(t *testing.T) {
	root := buildTestTree(t)

	walk, _ := walkTree(root, nil)

	entry, exists := walk.Dirs.Get(filepath.Join(root, "a"))
	assert.True(t, exists)
	assert.True(t, entry.IsDir)
	mode, parseErr := strconv.Atoi(entry.Mode)
	assert.Nil(t, parseErr)
	assert.Equal(t, 0o040000, mode&0o170000)
}
