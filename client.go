package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// dirContentType marks empty-body keys that stand in for directories.
const dirContentType = "inode/directory"

// HeadResult is the outcome of probing a single key. Found false with a nil
// error means the key simply is not there, errors are reserved for calls
// that actually failed.
type HeadResult struct {
	Found    bool
	ETag     string
	Size     int64
	Metadata map[string]string
}

// RemoteObject is one listed key.
type RemoteObject struct {
	Key  string
	ETag string
	Size int64
}

// listPageFunc consumes one page of listed objects. Returning false stops
// the listing early.
type listPageFunc func(page []RemoteObject) bool

// ObjectClient is the object store surface a sync pass runs against.
type ObjectClient interface {
	HeadObject(ctx context.Context, bucket, key string) (*HeadResult, error)
	PutObject(ctx context.Context, bucket, key string, body []byte, metadata map[string]string, contentType string) error
	CopyObjectMetadata(ctx context.Context, bucket, key string, metadata map[string]string) error
	ListObjects(ctx context.Context, bucket, prefix string, fn listPageFunc) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	UploadFile(ctx context.Context, bucket, key string, file *os.File, metadata map[string]string, contentType string, observer ProgressObserver) error
}

type ContentSniffer func(path string) string

// sniffContentType detects a file's MIME type for upload metadata. Failures
// fall back to a generic binary type rather than blocking the transfer.
func sniffContentType(path string) string {
	detected, sniffErr := mimetype.DetectFile(path)
	if sniffErr != nil {
		return "application/octet-stream"
	}
	return strings.Split(detected.String(), ";")[0]
}
