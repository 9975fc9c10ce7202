package main

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const remoteScheme = "s3://"

// KeyState is one planned key in a sync pass: where it lives locally, what
// it is called remotely, its content fingerprint and the metadata it should
// carry. The diff and transfer stages narrow a set of these down and act on
// them.
type KeyState struct {
	Key         string
	Fingerprint string
	Size        int64
	Mtime       string
	LocalPath   string
	IsDir       bool
	Metadata    ObjectMetadata
	Action      SyncAction
}

// toRemoteKeys maps walked entries under localRoot to bucket keys beneath
// keyPrefix. Directory entries gain a trailing slash, and the root itself
// maps to the bare prefix so it is dropped rather than emitted as an empty
// key.
func toRemoteKeys(entries *Ordered[*Entry], localRoot, keyPrefix string, asDirs bool) *Ordered[*KeyState] {
	states := NewOrdered[*KeyState]()
	for _, localPath := range entries.Keys() {
		entry, _ := entries.Get(localPath)
		relative := relativeLocalPath(localRoot, localPath)
		if relative == "" && asDirs {
			continue
		}
		key := path.Join(keyPrefix, relative)
		if asDirs {
			key += "/"
		}
		states.Set(key, &KeyState{
			Key:       key,
			Size:      entry.Size,
			Mtime:     entry.Mtime,
			LocalPath: entry.Path,
			IsDir:     asDirs,
			Metadata:  entryMetadata(entry),
		})
	}
	return states
}

// relativeLocalPath returns localPath relative to root in slash form, or ""
// for the root itself.
func relativeLocalPath(root, localPath string) string {
	relative, relErr := filepath.Rel(root, localPath)
	if relErr != nil || relative == "." {
		return ""
	}
	return filepath.ToSlash(relative)
}

// relativeFromKey strips keyPrefix and any trailing slash from a bucket
// key, leaving the path fragment that maps back under a local root.
func relativeFromKey(key, keyPrefix string) string {
	relative := strings.TrimSuffix(key, "/")
	if keyPrefix != "" {
		relative = strings.TrimPrefix(relative, keyPrefix)
	}
	return strings.TrimPrefix(relative, "/")
}

// parseRemotePath splits an s3://bucket/key/path argument into its bucket
// and key prefix. The prefix keeps its trailing slash so callers can tell a
// directory path from a single key.
func parseRemotePath(raw string) (string, string, error) {
	if !strings.HasPrefix(raw, remoteScheme) {
		return "", "", fmt.Errorf("%s does not start with %s", raw, remoteScheme)
	}
	trimmed := strings.TrimPrefix(raw, remoteScheme)
	bucket, keyPrefix, _ := strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%s is missing a bucket name", raw)
	}
	return bucket, keyPrefix, nil
}
