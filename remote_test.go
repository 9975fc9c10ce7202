package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListRemoteReturnsKeysUnderPrefix(t *testing.T) {
	client := NewMockObjectClient(map[string]*MockObject{
		"home/a/":      NewMockObjectFromBody("", nil),
		"home/a/b.txt": NewMockObjectFromBody("hi", nil),
		"other/c.txt":  NewMockObjectFromBody("hello world", nil),
	})

	matches, listErr := listRemote(context.Background(), client, "media-bucket", "home/", nil)

	assert.Nil(t, listErr)
	assert.Equal(t, []string{"home/a/", "home/a/b.txt"}, matches.Keys())
	state, _ := matches.Get("home/a/b.txt")
	assert.Equal(t, "\"49f68a5c8493ec2c0bf489821c21fc3b\"", state.Fingerprint)
	assert.Equal(t, int64(2), state.Size)
}

func TestListRemoteEmptyPrefixIsNotAnError(t *testing.T) {
	client := NewMockObjectClient(nil)

	matches, listErr := listRemote(context.Background(), client, "media-bucket", "home/", nil)

	assert.Nil(t, listErr)
	assert.Equal(t, 0, matches.Len())
}

func TestListRemoteRecordsOnlyTargets(t *testing.T) {
	client := NewMockObjectClient(map[string]*MockObject{
		"home/a/":      NewMockObjectFromBody("", nil),
		"home/a/b.txt": NewMockObjectFromBody("hi", nil),
		"home/c.txt":   NewMockObjectFromBody("hello world", nil),
	})

	matches, listErr := listRemote(context.Background(), client, "media-bucket", "home/", []string{"home/c.txt"})

	assert.Nil(t, listErr)
	assert.Equal(t, []string{"home/c.txt"}, matches.Keys())
}

func TestListRemoteStopsPagingOnceTargetsSeen(t *testing.T) {
	client := NewMockObjectClient(map[string]*MockObject{
		"home/a.txt": NewMockObjectFromBody("hi", nil),
		"home/b.txt": NewMockObjectFromBody("hi", nil),
		"home/c.txt": NewMockObjectFromBody("hi", nil),
		"home/d.txt": NewMockObjectFromBody("hi", nil),
	})
	client.PageSize = 1

	matches, listErr := listRemote(context.Background(), client, "media-bucket", "home/", []string{"home/a.txt"})

	assert.Nil(t, listErr)
	assert.Equal(t, 1, matches.Len())
	assert.Equal(t, 1, client.PagesServed)
}
