package main

import (
	"context"
)

// listRemote collects the bucket's view of a prefix as KeyStates in listing
// order. With targets set, only those keys are recorded and paging stops as
// soon as all of them have been seen. A prefix with nothing under it is an
// empty result, not an error.
func listRemote(ctx context.Context, client ObjectClient, bucket, prefix string, targets []string) (*Ordered[*KeyState], error) {
	wanted := make(map[string]bool, len(targets))
	for _, key := range targets {
		wanted[key] = true
	}

	matches := NewOrdered[*KeyState]()
	listErr := client.ListObjects(ctx, bucket, prefix, func(page []RemoteObject) bool {
		for _, object := range page {
			if len(wanted) > 0 && !wanted[object.Key] {
				continue
			}
			matches.Set(object.Key, &KeyState{
				Key:         object.Key,
				Fingerprint: object.ETag,
				Size:        object.Size,
			})
		}
		return len(wanted) == 0 || matches.Len() < len(wanted)
	})
	if listErr != nil {
		return nil, listErr
	}
	return matches, nil
}
