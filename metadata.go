package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default st_mode values recorded when nothing better is known, expressed
// in decimal the way a FUSE layer reads them back: drwxrwxr-x for
// directories and rw-rw-r-- for files.
const (
	defaultDirMode  = "509"
	defaultFileMode = "33204"
)

// ObjectMetadata is the ownership and permission state carried on every
// synced key. All values travel as strings since that is how S3 stores
// user metadata. Extra holds any additional fields, such as size, without
// them participating as first-class ownership data.
type ObjectMetadata struct {
	UID   string
	GID   string
	Mode  string
	Mtime string
	Extra map[string]string
}

func (m ObjectMetadata) ToMap() map[string]string {
	mapped := make(map[string]string, 4+len(m.Extra))
	for field, value := range m.Extra {
		mapped[field] = value
	}
	mapped["uid"] = m.UID
	mapped["gid"] = m.GID
	mapped["mode"] = m.Mode
	mapped["mtime"] = m.Mtime
	return mapped
}

func metadataFromMap(mapped map[string]string) ObjectMetadata {
	meta := ObjectMetadata{Extra: make(map[string]string)}
	for field, value := range mapped {
		switch field {
		case "uid":
			meta.UID = value
		case "gid":
			meta.GID = value
		case "mode":
			meta.Mode = value
		case "mtime":
			meta.Mtime = value
		default:
			meta.Extra[field] = value
		}
	}
	return meta
}

func (m ObjectMetadata) Equal(other ObjectMetadata) bool {
	if m.UID != other.UID || m.GID != other.GID || m.Mode != other.Mode || m.Mtime != other.Mtime {
		return false
	}
	if len(m.Extra) != len(other.Extra) {
		return false
	}
	for field, value := range m.Extra {
		if other.Extra[field] != value {
			return false
		}
	}
	return true
}

func (m ObjectMetadata) IsEmpty() bool {
	return m.UID == "" && m.GID == "" && m.Mode == "" && m.Mtime == "" && len(m.Extra) == 0
}

// MetadataTemplates holds the metadata applied to keys whose ownership
// cannot be read from a local inode, one template per role.
type MetadataTemplates struct {
	Dir  ObjectMetadata
	File ObjectMetadata
}

// buildTemplates derives the directory and file metadata templates from an
// optional user supplied JSON overlay. Fields absent from the overlay fall
// back to the effective uid and gid of the running process and the role's
// default mode. A JSON mode applies to both roles, explicit uid and gid
// arguments override everything, and mtime is always stamped with the
// current time.
func buildTemplates(metadataJSON, dirMode, fileMode, uid, gid string) (MetadataTemplates, error) {
	var templates MetadataTemplates

	overlay := make(map[string]string)
	if metadataJSON != "" {
		if jsonErr := json.Unmarshal([]byte(metadataJSON), &overlay); jsonErr != nil {
			return templates, fmt.Errorf("Error parsing metadata JSON: %s", jsonErr)
		}
	}
	if dirMode == "" {
		dirMode = defaultDirMode
	}
	if fileMode == "" {
		fileMode = defaultFileMode
	}

	now := strconv.FormatInt(time.Now().Unix(), 10)
	templates.Dir = templateForRole(overlay, dirMode, uid, gid, now)
	templates.File = templateForRole(overlay, fileMode, uid, gid, now)
	return templates, nil
}

func templateForRole(overlay map[string]string, roleMode, uid, gid, now string) ObjectMetadata {
	meta := ObjectMetadata{
		UID:   strconv.Itoa(os.Geteuid()),
		GID:   strconv.Itoa(os.Getegid()),
		Mode:  roleMode,
		Mtime: now,
		Extra: make(map[string]string),
	}
	for field, value := range overlay {
		switch field {
		case "uid":
			meta.UID = value
		case "gid":
			meta.GID = value
		case "mode":
			meta.Mode = value
		case "mtime":
			// always stamped fresh
		default:
			meta.Extra[field] = value
		}
	}
	if uid != "" {
		meta.UID = uid
	}
	if gid != "" {
		meta.GID = gid
	}
	return meta
}

// entryMetadata builds the metadata for a walked filesystem entry from its
// stat data, recording the entry's size alongside the ownership fields.
func entryMetadata(entry *Entry) ObjectMetadata {
	return ObjectMetadata{
		UID:   entry.UID,
		GID:   entry.GID,
		Mode:  entry.Mode,
		Mtime: entry.Mtime,
		Extra: map[string]string{"size": strconv.FormatInt(entry.Size, 10)},
	}
}
