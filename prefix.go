package main

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// prefixCreateError reports the one pass failure nothing can recover from:
// a missing ancestor key could not be created, so no key beneath it can
// land correctly.
type prefixCreateError struct {
	Key string
	Err error
}

func (e *prefixCreateError) Error() string {
	return fmt.Sprintf("Unable to create prefix %s: %s", e.Key, e.Err)
}

func (e *prefixCreateError) Unwrap() error {
	return e.Err
}

// ancestorPrefixes expands a key prefix into the chain of directory keys
// above the destination, shallowest first, each planned with the directory
// metadata template. "home/sean" becomes home/ then home/sean/.
func ancestorPrefixes(keyPrefix string, template ObjectMetadata) *Ordered[*KeyState] {
	prefixes := NewOrdered[*KeyState]()
	trimmed := strings.Trim(keyPrefix, "/")
	if trimmed == "" {
		return prefixes
	}

	chain := ""
	for _, part := range strings.Split(trimmed, "/") {
		chain += part + "/"
		prefixes.Set(chain, &KeyState{
			Key:      chain,
			IsDir:    true,
			Metadata: template,
			Action:   ActionCreatePrefix,
		})
	}
	return prefixes
}

// reconcilePrefixes makes sure every ancestor key exists and carries the
// expected metadata before any transfer lands beneath it. Creation works
// shallowest first so each level exists before its children. A failed
// create aborts the pass, a failed metadata update is logged and skipped.
func reconcilePrefixes(ctx context.Context, client ObjectClient, bucket string, prefixes *Ordered[*KeyState], report *PassReport) error {
	for _, key := range prefixes.Keys() {
		state, _ := prefixes.Get(key)
		expected := state.Metadata

		head, headErr := client.HeadObject(ctx, bucket, key)
		if headErr != nil {
			return fmt.Errorf("Error checking prefix %s: %s", key, headErr)
		}

		if !head.Found {
			log.Info(fmt.Sprintf("Creating key '%s'", key))
			putErr := client.PutObject(ctx, bucket, key, nil, expected.ToMap(), dirContentType)
			if putErr != nil {
				report.AddPrefixResult(key, putErr)
				return &prefixCreateError{Key: key, Err: putErr}
			}
			report.AddPrefixResult(key, nil)
			continue
		}

		current := metadataFromMap(head.Metadata)
		if current.IsEmpty() || !current.Equal(expected) {
			log.Info(fmt.Sprintf("Bad metadata found for %s, updating", key))
			copyErr := client.CopyObjectMetadata(ctx, bucket, key, expected.ToMap())
			if copyErr != nil {
				log.Error(fmt.Sprintf("Error updating metadata for %s: %s, skipping", key, copyErr))
				report.AddPrefixResult(key, copyErr)
				continue
			}
		}
		report.AddPrefixResult(key, nil)
	}
	return nil
}
