package main

import (
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ProgressObserver receives cumulative byte counts while a transfer
// streams. Implementations must tolerate calls from the transfer's own
// goroutines.
type ProgressObserver interface {
	Advance(n int64)
}

// transferProgress logs how far along a single transfer is. The uploader
// reads parts from its own goroutines, so the counter is mutex guarded.
type transferProgress struct {
	label string
	size  int64
	seen  int64
	lock  sync.Mutex
}

func newTransferProgress(label string, size int64) *transferProgress {
	return &transferProgress{label: label, size: size}
}

func (p *transferProgress) Advance(n int64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.seen += n
	if p.size <= 0 {
		return
	}
	percent := float64(p.seen) / float64(p.size) * 100
	log.Debug(fmt.Sprintf("%s  %d / %d bytes (%.2f%%)", p.label, p.seen, p.size, percent))
}

func (p *transferProgress) Seen() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.seen
}

// progressReader reports bytes to an observer as they pass through. It
// must not grow a Seek method, a seekable body lets the uploader re-read
// ranges and double count.
type progressReader struct {
	reader   io.Reader
	observer ProgressObserver
}

func newProgressReader(reader io.Reader, observer ProgressObserver) *progressReader {
	return &progressReader{reader: reader, observer: observer}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, readErr := r.reader.Read(p)
	if n > 0 {
		r.observer.Advance(int64(n))
	}
	return n, readErr
}
