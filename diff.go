package main

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// normalizeFingerprint strips the quotes S3 wraps around ETag values so
// fingerprints compare equal regardless of which side they came from.
func normalizeFingerprint(fingerprint string) string {
	return strings.Trim(fingerprint, "\"")
}

// compareFingerprints returns the subset of source that is missing from
// destination or carries a different fingerprint, preserving source order.
// fromRemote only changes how mismatches are logged.
func compareFingerprints(source, destination *Ordered[*KeyState], fromRemote bool) *Ordered[*KeyState] {
	needsSync := NewOrdered[*KeyState]()
	for _, key := range source.Keys() {
		state, _ := source.Get(key)
		fingerprint := normalizeFingerprint(state.Fingerprint)

		counterpart, exists := destination.Get(key)
		if exists && fingerprint == normalizeFingerprint(counterpart.Fingerprint) {
			log.Debug(fmt.Sprintf("Match found for %s", key))
			continue
		}
		if fromRemote {
			log.Debug(fmt.Sprintf("%s needs download", key))
		} else {
			log.Debug(fmt.Sprintf("%s needs upload as %s", state.LocalPath, key))
		}
		needsSync.Set(key, state)
	}
	return needsSync
}
