package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// CacheRecord is one persisted fingerprint. The JSON field names are part
// of the cache file format.
type CacheRecord struct {
	ETag  string `json:"ETag"`
	Mtime string `json:"mtime"`
}

// CacheCorruptionError reports a cache file that exists but cannot be read
// back. Callers decide the policy, the error only says what happened.
type CacheCorruptionError struct {
	Path string
	Err  error
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("Cache file %s is unreadable: %s", e.Path, e.Err)
}

func (e *CacheCorruptionError) Unwrap() error {
	return e.Err
}

// FingerprintCache persists fingerprints between passes so unchanged files
// are not re-hashed. A record is only trusted while the file's mtime still
// matches the one stored next to it. The on-disk form is a gzipped JSON map
// of local path to record.
type FingerprintCache struct {
	path    string
	records map[string]CacheRecord
	compute fingerprintFunc
}

func NewFingerprintCache(dir, file string) *FingerprintCache {
	return &FingerprintCache{
		path:    filepath.Join(dir, file),
		records: make(map[string]CacheRecord),
		compute: computeETag,
	}
}

// Load reads the cache file, replacing any records already in memory. A
// missing file is an empty cache, an unreadable one comes back as a
// CacheCorruptionError with the records reset.
func (c *FingerprintCache) Load() error {
	c.records = make(map[string]CacheRecord)

	fd, openErr := os.Open(c.path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			log.Debug(fmt.Sprintf("No cache file at %s, starting empty", c.path))
			return nil
		}
		return &CacheCorruptionError{Path: c.path, Err: openErr}
	}
	defer fd.Close()

	gz, gzErr := gzip.NewReader(fd)
	if gzErr != nil {
		return &CacheCorruptionError{Path: c.path, Err: gzErr}
	}
	defer gz.Close()

	raw, readErr := io.ReadAll(gz)
	if readErr != nil {
		return &CacheCorruptionError{Path: c.path, Err: readErr}
	}
	records := make(map[string]CacheRecord)
	if jsonErr := json.Unmarshal(raw, &records); jsonErr != nil {
		return &CacheCorruptionError{Path: c.path, Err: jsonErr}
	}
	c.records = records
	return nil
}

// Reconcile fills in the fingerprint for every state, reusing the stored
// value when the mtime is unchanged and recomputing otherwise. Recomputed
// values replace their records in memory, Save persists them.
func (c *FingerprintCache) Reconcile(states *Ordered[*KeyState]) error {
	for _, key := range states.Keys() {
		state, _ := states.Get(key)
		record, exists := c.records[state.LocalPath]
		if exists && record.Mtime == state.Mtime {
			state.Fingerprint = record.ETag
			continue
		}
		fingerprint, computeErr := c.compute(state.LocalPath)
		if computeErr != nil {
			return fmt.Errorf("Error fingerprinting %s: %s", state.LocalPath, computeErr)
		}
		state.Fingerprint = fingerprint
		c.records[state.LocalPath] = CacheRecord{ETag: fingerprint, Mtime: state.Mtime}
	}
	return nil
}

// Save writes the records out through a temp file so a crash mid-write
// never leaves a truncated cache behind.
func (c *FingerprintCache) Save() error {
	if mkdirErr := os.MkdirAll(filepath.Dir(c.path), 0755); mkdirErr != nil {
		return mkdirErr
	}
	tmp, tmpErr := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*")
	if tmpErr != nil {
		return tmpErr
	}
	defer os.Remove(tmp.Name())

	raw, jsonErr := json.Marshal(c.records)
	if jsonErr != nil {
		tmp.Close()
		return jsonErr
	}
	gz := gzip.NewWriter(tmp)
	if _, writeErr := gz.Write(raw); writeErr != nil {
		tmp.Close()
		return writeErr
	}
	if gzErr := gz.Close(); gzErr != nil {
		tmp.Close()
		return gzErr
	}
	if closeErr := tmp.Close(); closeErr != nil {
		return closeErr
	}
	return os.Rename(tmp.Name(), c.path)
}

// fingerprintStates computes fingerprints directly, for passes that run
// without a cache.
func fingerprintStates(states *Ordered[*KeyState], compute fingerprintFunc) error {
	for _, key := range states.Keys() {
		state, _ := states.Get(key)
		fingerprint, computeErr := compute(state.LocalPath)
		if computeErr != nil {
			return fmt.Errorf("Error fingerprinting %s: %s", state.LocalPath, computeErr)
		}
		state.Fingerprint = fingerprint
	}
	return nil
}
