package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// NotFoundError reports a local path that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s does not exist", e.Path)
}

// Entry is one walked filesystem path with the stat fields that travel as
// object metadata. Ownership and timestamps are kept as strings since that
// is their wire form.
type Entry struct {
	Path  string
	IsDir bool
	UID   string
	GID   string
	Mode  string
	Mtime string
	Size  int64
}

// TreeWalk is the result of scanning a local root: directories and files in
// walk order, keyed by absolute path. IsDir is false when the root itself
// was a file, in which case Files holds that single entry.
type TreeWalk struct {
	Dirs  *Ordered[*Entry]
	Files *Ordered[*Entry]
	IsDir bool
}

// walkTree scans root depth first. Unreadable paths are logged and skipped,
// and any path matching an exclude pattern is dropped along with everything
// beneath it.
func walkTree(root string, exclude []*regexp.Regexp) (*TreeWalk, error) {
	info, statErr := os.Stat(root)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil, &NotFoundError{Path: root}
		}
		return nil, fmt.Errorf("Error reading %s: %s", root, statErr)
	}

	walk := &TreeWalk{
		Dirs:  NewOrdered[*Entry](),
		Files: NewOrdered[*Entry](),
		IsDir: info.IsDir(),
	}
	if !walk.IsDir {
		walk.Files.Set(root, newEntry(root, info))
		return walk, nil
	}

	walkErr := filepath.Walk(root, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			log.Warn(fmt.Sprintf("Skipping unreadable path %s: %s", path, err))
			return nil
		}
		if matchesAny(path, exclude) {
			if f.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		entry := newEntry(path, f)
		if f.IsDir() {
			walk.Dirs.Set(path, entry)
		} else {
			walk.Files.Set(path, entry)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("Error walking %s: %s", root, walkErr)
	}
	return walk, nil
}

// newEntry captures a path's raw stat ownership. The decimal st_mode is
// recorded, not Go's os.FileMode, since the consumer on the other side of
// the bucket reads it back into an inode. If the underlying stat data is
// unavailable the process's own uid and gid plus the role default mode are
// recorded instead.
func newEntry(path string, info os.FileInfo) *Entry {
	entry := &Entry{
		Path:  path,
		IsDir: info.IsDir(),
		Mtime: strconv.FormatInt(info.ModTime().Unix(), 10),
		Size:  info.Size(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		entry.UID = strconv.FormatUint(uint64(stat.Uid), 10)
		entry.GID = strconv.FormatUint(uint64(stat.Gid), 10)
		entry.Mode = strconv.FormatUint(uint64(stat.Mode), 10)
		return entry
	}
	entry.UID = strconv.Itoa(os.Geteuid())
	entry.GID = strconv.Itoa(os.Getegid())
	if entry.IsDir {
		entry.Mode = defaultDirMode
	} else {
		entry.Mode = defaultFileMode
	}
	return entry
}

func matchesAny(path string, exclude []*regexp.Regexp) bool {
	for _, pattern := range exclude {
		if pattern.MatchString(path) {
			return true
		}
	}
	return false
}
