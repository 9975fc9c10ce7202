package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func dirTemplate() ObjectMetadata {
	return ObjectMetadata{
		UID:   "1000",
		GID:   "1000",
		Mode:  defaultDirMode,
		Mtime: "1650000000",
		Extra: map[string]string{},
	}
}

func TestAncestorPrefixesShallowestFirst(t *testing.T) {
	prefixes := ancestorPrefixes("home/sean/data", dirTemplate())

	assert.Equal(t, []string{"home/", "home/sean/", "home/sean/data/"}, prefixes.Keys())
	state, _ := prefixes.Get("home/")
	assert.Equal(t, ActionCreatePrefix, state.Action)
	assert.True(t, state.IsDir)
	assert.Equal(t, defaultDirMode, state.Metadata.Mode)
}

func TestAncestorPrefixesEmptyPrefix(t *testing.T) {
	assert.Equal(t, 0, ancestorPrefixes("", dirTemplate()).Len())
	assert.Equal(t, 0, ancestorPrefixes("/", dirTemplate()).Len())
}

func TestReconcileCreatesMissingPrefixes(t *testing.T) {
	client := NewMockObjectClient(nil)
	report := NewPassReport()
	prefixes := ancestorPrefixes("home/sean", dirTemplate())

	reconcileErr := reconcilePrefixes(context.Background(), client, "media-bucket", prefixes, report)

	assert.Nil(t, reconcileErr)
	assert.Len(t, client.PutRequests, 2)
	assert.Equal(t, "home/", client.PutRequests[0].Key)
	assert.Equal(t, "home/sean/", client.PutRequests[1].Key)
	assert.Equal(t, dirContentType, client.PutRequests[0].ContentType)
	assert.Equal(t, defaultDirMode, client.PutRequests[0].Metadata["mode"])
	assert.Nil(t, report.Prefixes["home/"])
	assert.Nil(t, report.Prefixes["home/sean/"])
}

func TestReconcileCreateFailureAbortsChain(t *testing.T) {
	client := NewMockObjectClient(nil)
	client.PutErrors["home/"] = fmt.Errorf("AccessDenied")
	report := NewPassReport()
	prefixes := ancestorPrefixes("home/sean", dirTemplate())

	reconcileErr := reconcilePrefixes(context.Background(), client, "media-bucket", prefixes, report)

	assert.NotNil(t, reconcileErr)
	var createErr *prefixCreateError
	assert.True(t, errors.As(reconcileErr, &createErr))
	assert.Equal(t, "home/", createErr.Key)
	// the deeper prefix is never attempted
	assert.Len(t, client.PutRequests, 1)
}

func TestReconcileUpdatesEmptyMetadata(t *testing.T) {
	client := NewMockObjectClient(map[string]*MockObject{
		"home/": NewMockObjectFromBody("", map[string]string{}),
	})
	report := NewPassReport()
	prefixes := ancestorPrefixes("home", dirTemplate())

	reconcileErr := reconcilePrefixes(context.Background(), client, "media-bucket", prefixes, report)

	assert.Nil(t, reconcileErr)
	assert.Len(t, client.PutRequests, 0)
	assert.Len(t, client.CopyRequests, 1)
	assert.Equal(t, "home/", client.CopyRequests[0].Key)
	assert.Equal(t, "1000", client.CopyRequests[0].Metadata["uid"])
}

func TestReconcileUpdatesMismatchedMetadata(t *testing.T) {
	client := NewMockObjectClient(map[string]*MockObject{
		"home/": NewMockObjectFromBody("", map[string]string{
			"uid": "0", "gid": "0", "mode": "511", "mtime": "1600000000",
		}),
	})
	report := NewPassReport()
	prefixes := ancestorPrefixes("home", dirTemplate())

	reconcileErr := reconcilePrefixes(context.Background(), client, "media-bucket", prefixes, report)

	assert.Nil(t, reconcileErr)
	assert.Len(t, client.CopyRequests, 1)
	assert.Equal(t, defaultDirMode, client.Objects["home/"].Metadata["mode"])
}

func TestReconcileUpdateFailureContinues(t *testing.T) {
	client := NewMockObjectClient(map[string]*MockObject{
		"home/": NewMockObjectFromBody("", map[string]string{}),
	})
	client.CopyErrors["home/"] = fmt.Errorf("AccessDenied")
	report := NewPassReport()
	prefixes := ancestorPrefixes("home/sean", dirTemplate())

	reconcileErr := reconcilePrefixes(context.Background(), client, "media-bucket", prefixes, report)

	assert.Nil(t, reconcileErr)
	assert.NotNil(t, report.Prefixes["home/"])
	// the deeper prefix is still created
	assert.Len(t, client.PutRequests, 1)
	assert.Equal(t, "home/sean/", client.PutRequests[0].Key)
}

func TestReconcileLeavesMatchingMetadataAlone(t *testing.T) {
	template := dirTemplate()
	client := NewMockObjectClient(map[string]*MockObject{
		"home/": NewMockObjectFromBody("", template.ToMap()),
	})
	report := NewPassReport()
	prefixes := ancestorPrefixes("home", template)

	reconcileErr := reconcilePrefixes(context.Background(), client, "media-bucket", prefixes, report)

	assert.Nil(t, reconcileErr)
	assert.Len(t, client.PutRequests, 0)
	assert.Len(t, client.CopyRequests, 0)
	assert.Nil(t, report.Prefixes["home/"])
}
