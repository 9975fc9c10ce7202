package main

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// etagPartSize is the chunk size fingerprints are computed over. The
// uploader's part size must stay pinned to this value or multipart ETags
// returned by the bucket stop matching locally computed fingerprints.
const etagPartSize int64 = 8 * 1024 * 1024

// emptyFileETag is the MD5 of zero bytes. Directory keys hold empty bodies,
// so this is also the ETag every synced directory key carries, and it is
// what paths without regular file content fingerprint to.
const emptyFileETag = "d41d8cd98f00b204e9800998ecf8427e"

type fingerprintFunc func(path string) (string, error)

// computeETag fingerprints a local path the way S3 computes ETags for
// objects uploaded in etagPartSize parts. Content no larger than one part
// hashes to a plain MD5 hex digest. Larger content hashes to the MD5 of the
// concatenated per-part digests with the part count appended after a dash.
// Paths that are not regular files fingerprint to emptyFileETag.
func computeETag(path string) (string, error) {
	return computeETagWithPartSize(path, etagPartSize)
}

func computeETagWithPartSize(path string, partSize int64) (string, error) {
	info, statErr := os.Stat(path)
	if statErr != nil || !info.Mode().IsRegular() {
		return emptyFileETag, nil
	}

	fd, openErr := os.Open(path)
	if openErr != nil {
		return "", fmt.Errorf("Error opening %s: %s", path, openErr)
	}
	defer fd.Close()

	digests := make([]byte, 0)
	lastDigest := md5.Sum(nil)
	blockCount := 0
	chunk := make([]byte, partSize)
	for {
		n, readErr := io.ReadFull(fd, chunk)
		if n > 0 {
			lastDigest = md5.Sum(chunk[:n])
			digests = append(digests, lastDigest[:]...)
			blockCount++
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			return "", fmt.Errorf("Error reading %s: %s", path, readErr)
		}
	}

	if blockCount <= 1 {
		return hex.EncodeToString(lastDigest[:]), nil
	}
	combined := md5.Sum(digests)
	return fmt.Sprintf("%s-%d", hex.EncodeToString(combined[:]), blockCount), nil
}
