package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// MockObjectClient keeps an in-memory bucket and records every request so
// tests can assert on what a pass did and list back what it wrote. PutObject
// and UploadFile store real objects whose ETags are computed from their
// bodies, so diff and verify behave like they do against the real thing.
type MockObjectClient struct {
	Objects        map[string]*MockObject
	HeadRequests   []string
	GetRequests    []string
	PutRequests    []MockWriteRequest
	CopyRequests   []MockWriteRequest
	UploadRequests []MockWriteRequest
	ListCalls      int
	PagesServed    int
	PageSize       int
	HeadErrors     map[string]error
	PutErrors      map[string]error
	CopyErrors     map[string]error
	UploadErrors   map[string]error
	GetErrors      map[string]error
	lock           *sync.Mutex
}

type MockObject struct {
	ETag     string
	Size     int64
	Metadata map[string]string
	Body     []byte
}

type MockWriteRequest struct {
	Bucket      string
	Key         string
	ContentType string
	Metadata    map[string]string
}

func NewMockObjectClient(objects map[string]*MockObject) *MockObjectClient {
	if objects == nil {
		objects = make(map[string]*MockObject)
	}
	return &MockObjectClient{
		Objects:        objects,
		HeadRequests:   make([]string, 0),
		GetRequests:    make([]string, 0),
		PutRequests:    make([]MockWriteRequest, 0),
		CopyRequests:   make([]MockWriteRequest, 0),
		UploadRequests: make([]MockWriteRequest, 0),
		PageSize:       1000,
		HeadErrors:     make(map[string]error),
		PutErrors:      make(map[string]error),
		CopyErrors:     make(map[string]error),
		UploadErrors:   make(map[string]error),
		GetErrors:      make(map[string]error),
		lock:           new(sync.Mutex),
	}
}

// NewMockObjectFromBody builds a stored object the way a real upload would,
// with a quoted single-part ETag.
func NewMockObjectFromBody(body string, metadata map[string]string) *MockObject {
	digest := md5.Sum([]byte(body))
	return &MockObject{
		ETag:     fmt.Sprintf("\"%s\"", hex.EncodeToString(digest[:])),
		Size:     int64(len(body)),
		Metadata: metadata,
		Body:     []byte(body),
	}
}

func (m *MockObjectClient) HeadObject(ctx context.Context, bucket, key string) (*HeadResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.HeadRequests = append(m.HeadRequests, key)

	if headErr, exists := m.HeadErrors[key]; exists {
		return nil, headErr
	}
	object, exists := m.Objects[key]
	if !exists {
		return &HeadResult{Found: false}, nil
	}
	return &HeadResult{
		Found:    true,
		ETag:     object.ETag,
		Size:     object.Size,
		Metadata: object.Metadata,
	}, nil
}

func (m *MockObjectClient) PutObject(ctx context.Context, bucket, key string, body []byte, metadata map[string]string, contentType string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.PutRequests = append(m.PutRequests, MockWriteRequest{
		Bucket:      bucket,
		Key:         key,
		ContentType: contentType,
		Metadata:    metadata,
	})

	if putErr, exists := m.PutErrors[key]; exists {
		return putErr
	}
	digest := md5.Sum(body)
	m.Objects[key] = &MockObject{
		ETag:     fmt.Sprintf("\"%s\"", hex.EncodeToString(digest[:])),
		Size:     int64(len(body)),
		Metadata: metadata,
		Body:     append([]byte(nil), body...),
	}
	return nil
}

func (m *MockObjectClient) CopyObjectMetadata(ctx context.Context, bucket, key string, metadata map[string]string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.CopyRequests = append(m.CopyRequests, MockWriteRequest{
		Bucket:   bucket,
		Key:      key,
		Metadata: metadata,
	})

	if copyErr, exists := m.CopyErrors[key]; exists {
		return copyErr
	}
	object, exists := m.Objects[key]
	if !exists {
		return fmt.Errorf("NoSuchKey: %s", key)
	}
	object.Metadata = metadata
	return nil
}

func (m *MockObjectClient) ListObjects(ctx context.Context, bucket, prefix string, fn listPageFunc) error {
	m.lock.Lock()
	m.ListCalls++
	keys := make([]string, 0, len(m.Objects))
	for key := range m.Objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	pages := make([][]RemoteObject, 0)
	page := make([]RemoteObject, 0, m.PageSize)
	for _, key := range keys {
		object := m.Objects[key]
		page = append(page, RemoteObject{Key: key, ETag: object.ETag, Size: object.Size})
		if len(page) == m.PageSize {
			pages = append(pages, page)
			page = make([]RemoteObject, 0, m.PageSize)
		}
	}
	if len(page) > 0 {
		pages = append(pages, page)
	}
	m.lock.Unlock()

	for _, page := range pages {
		m.lock.Lock()
		m.PagesServed++
		m.lock.Unlock()
		if !fn(page) {
			return nil
		}
	}
	return nil
}

func (m *MockObjectClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.GetRequests = append(m.GetRequests, key)

	if getErr, exists := m.GetErrors[key]; exists {
		return nil, getErr
	}
	object, exists := m.Objects[key]
	if !exists {
		return nil, fmt.Errorf("NoSuchKey: %s", key)
	}
	return io.NopCloser(bytes.NewReader(object.Body)), nil
}

func (m *MockObjectClient) UploadFile(ctx context.Context, bucket, key string, file *os.File, metadata map[string]string, contentType string, observer ProgressObserver) error {
	body, readErr := io.ReadAll(file)
	if readErr != nil {
		return readErr
	}
	if observer != nil {
		observer.Advance(int64(len(body)))
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.UploadRequests = append(m.UploadRequests, MockWriteRequest{
		Bucket:      bucket,
		Key:         key,
		ContentType: contentType,
		Metadata:    metadata,
	})

	if uploadErr, exists := m.UploadErrors[key]; exists {
		return uploadErr
	}
	digest := md5.Sum(body)
	m.Objects[key] = &MockObject{
		ETag:     fmt.Sprintf("\"%s\"", hex.EncodeToString(digest[:])),
		Size:     int64(len(body)),
		Metadata: metadata,
		Body:     body,
	}
	return nil
}

type MockSNSClient struct {
	Requests []*sns.PublishInput
}

func NewMockSNSClient() *MockSNSClient {
	return &MockSNSClient{Requests: make([]*sns.PublishInput, 0)}
}

func (m *MockSNSClient) PublishMessage(msg *sns.PublishInput) error {
	m.Requests = append(m.Requests, msg)
	return nil
}
