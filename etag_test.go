package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	writeErr := os.WriteFile(path, []byte(content), 0644)
	assert.Nil(t, writeErr)
	return path
}

func TestFingerprintEmptyFile(t *testing.T) {
	path := writeTempFile(t, "empty.txt", "")

	fingerprint, etagErr := computeETag(path)

	assert.Nil(t, etagErr)
	assert.Equal(t, emptyFileETag, fingerprint)
}

func TestFingerprintMissingPath(t *testing.T) {
	fingerprint, etagErr := computeETag(filepath.Join(t.TempDir(), "not-real-file"))

	assert.Nil(t, etagErr)
	assert.Equal(t, emptyFileETag, fingerprint)
}

func TestFingerprintDirectory(t *testing.T) {
	fingerprint, etagErr := computeETag(t.TempDir())

	assert.Nil(t, etagErr)
	assert.Equal(t, emptyFileETag, fingerprint)
}

func TestFingerprintSingleChunk(t *testing.T) {
	path := writeTempFile(t, "small.txt", "hi")

	fingerprint, etagErr := computeETag(path)

	assert.Nil(t, etagErr)
	assert.Equal(t, "49f68a5c8493ec2c0bf489821c21fc3b", fingerprint)
}

func TestFingerprintExactlyOneChunk(t *testing.T) {
	path := writeTempFile(t, "exact.txt", "hello ")

	fingerprint, etagErr := computeETagWithPartSize(path, 6)

	assert.Nil(t, etagErr)
	assert.Equal(t, "f814893777bcc2295fff05f00e508da6", fingerprint)
}

func TestFingerprintTwoChunks(t *testing.T) {
	path := writeTempFile(t, "two.txt", "hello world")

	fingerprint, etagErr := computeETagWithPartSize(path, 6)

	assert.Nil(t, etagErr)
	assert.Equal(t, "e09e4fd6265b36115fe3db32df945d84-2", fingerprint)
}

func TestFingerprintThreeChunks(t *testing.T) {
	path := writeTempFile(t, "three.txt", "hello world")

	fingerprint, etagErr := computeETagWithPartSize(path, 4)

	assert.Nil(t, etagErr)
	assert.Equal(t, "177e85e8bb233bd57a6aabda201a0c2c-3", fingerprint)
}
