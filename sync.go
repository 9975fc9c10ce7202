package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// SyncAction is what a pass decided to do with one key.
type SyncAction string

const (
	ActionUpload       SyncAction = "upload"
	ActionDownload     SyncAction = "download"
	ActionCreatePrefix SyncAction = "create-prefix"
	ActionSkip         SyncAction = "skip"
)

type syncState int

const (
	stateIdle syncState = iota
	stateScanning
	stateDiffing
	stateReconcilingPrefixes
	stateTransferring
	stateVerifying
	stateSleeping
	stateDone
)

func (s syncState) String() string {
	switch s {
	case stateScanning:
		return "scanning"
	case stateDiffing:
		return "diffing"
	case stateReconcilingPrefixes:
		return "reconciling-prefixes"
	case stateTransferring:
		return "transferring"
	case stateVerifying:
		return "verifying"
	case stateSleeping:
		return "sleeping"
	case stateDone:
		return "done"
	}
	return "idle"
}

// PassReport collects what a single pass did: per-prefix and per-key
// results, keys that failed verification afterwards, and how many keys
// needed nothing.
type PassReport struct {
	Prefixes  map[string]error
	Transfers map[string]error
	BadSync   []string
	Skipped   int
	lock      *sync.Mutex
}

func NewPassReport() *PassReport {
	return &PassReport{
		Prefixes:  make(map[string]error),
		Transfers: make(map[string]error),
		BadSync:   make([]string, 0),
		lock:      new(sync.Mutex),
	}
}

func (r *PassReport) AddPrefixResult(key string, result error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Prefixes[key] = result
}

func (r *PassReport) AddTransferResult(key string, result error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Transfers[key] = result
}

func (r *PassReport) AddBadSync(key string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.BadSync = append(r.BadSync, key)
}

func (r *PassReport) AddSkipped() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Skipped++
}

func (r *PassReport) HasErrors() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, result := range r.Prefixes {
		if result != nil {
			return true
		}
	}
	for _, result := range r.Transfers {
		if result != nil {
			return true
		}
	}
	return len(r.BadSync) > 0
}

// Syncer drives sync passes between a local path and a bucket path in
// whichever direction the options describe.
type Syncer struct {
	client    ObjectClient
	opts      SyncOptions
	notifier  Notifier
	cache     *FingerprintCache
	sniff     ContentSniffer
	templates MetadataTemplates
	excludes  []*regexp.Regexp
	semaphore chan int
	runLock   *sync.Mutex
	state     syncState
	stateLock *sync.Mutex
}

func NewSyncer(client ObjectClient, opts SyncOptions, notifier Notifier) (*Syncer, error) {
	excludes := make([]*regexp.Regexp, 0, len(opts.Exclude))
	for _, pattern := range opts.Exclude {
		compiled, compileErr := regexp.Compile(pattern)
		if compileErr != nil {
			return nil, fmt.Errorf("Invalid exclude pattern %s: %s", pattern, compileErr)
		}
		excludes = append(excludes, compiled)
	}

	templates, tmplErr := buildTemplates(opts.MetadataJSON, opts.DirMode, opts.FileMode, opts.UID, opts.GID)
	if tmplErr != nil {
		return nil, tmplErr
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	syncer := &Syncer{
		client:    client,
		opts:      opts,
		notifier:  notifier,
		sniff:     sniffContentType,
		templates: templates,
		excludes:  excludes,
		semaphore: make(chan int, concurrency),
		runLock:   new(sync.Mutex),
		state:     stateIdle,
		stateLock: new(sync.Mutex),
	}
	if opts.CacheEnabled {
		syncer.cache = NewFingerprintCache(opts.CacheDir, opts.CacheFile)
	}
	return syncer, nil
}

func (s *Syncer) setState(next syncState) {
	s.stateLock.Lock()
	s.state = next
	s.stateLock.Unlock()
	log.Debug(fmt.Sprintf("Sync state: %s", next))
}

func (s *Syncer) State() syncState {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.state
}

// Run executes a single pass, or keeps passes running on the configured
// interval until the context is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		_, passErr := s.RunPass(ctx)
		s.setState(stateDone)
		return passErr
	}

	scheduler := gocron.NewScheduler(time.UTC)
	_, jobErr := scheduler.Every(s.opts.Interval).Minutes().SingletonMode().StartImmediately().Do(func() {
		if _, passErr := s.RunPass(ctx); passErr != nil {
			var denied *prefixCreateError
			if errors.As(passErr, &denied) {
				log.Fatal(fmt.Sprintf("Sync pass failed: %s", passErr))
			}
			log.Error(fmt.Sprintf("Sync pass failed: %s", passErr))
		}
		s.setState(stateSleeping)
		log.Info(fmt.Sprintf("Next sync in %d minutes", s.opts.Interval))
	})
	if jobErr != nil {
		return jobErr
	}

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	s.setState(stateDone)
	log.Info("Shutting down")
	return nil
}

// RunPass performs one full scan, diff, transfer and verify cycle. The
// returned error means the pass itself could not proceed, individual key
// failures live in the report.
func (s *Syncer) RunPass(ctx context.Context) (*PassReport, error) {
	report := NewPassReport()
	if !s.runLock.TryLock() {
		log.Warn("Another sync pass is already running. Skipping.")
		return report, fmt.Errorf("Unable to acquire sync pass lock")
	}
	defer s.runLock.Unlock()

	log.Info(fmt.Sprintf("Sync starting for %s", describeSyncPair(s.opts)))
	passStartTime := time.Now()

	var plan *Ordered[*KeyState]
	var planErr error
	if s.opts.FromRemote {
		plan, planErr = s.buildDownloadPlan(ctx)
	} else {
		plan, planErr = s.buildUploadPlan(ctx)
	}
	if planErr != nil {
		return report, planErr
	}

	if pendingActions(plan) == 0 {
		log.Info(fmt.Sprintf("%s is up to date", describeSyncPair(s.opts)))
		report.Skipped = plan.Len()
	} else {
		if !s.opts.FromRemote {
			s.setState(stateReconcilingPrefixes)
			prefixes := ancestorPrefixes(s.opts.KeyPrefix, s.templates.Dir)
			if prefixErr := reconcilePrefixes(ctx, s.client, s.opts.Bucket, prefixes, report); prefixErr != nil {
				return report, prefixErr
			}
		}

		s.setState(stateTransferring)
		s.transferPlan(ctx, plan, report)

		s.setState(stateVerifying)
		if verifyErr := s.verifyPass(ctx, plan, report); verifyErr != nil {
			log.Warn(fmt.Sprintf("Error verifying sync: %s", verifyErr))
		}
	}

	if !s.opts.Force {
		s.saveCache()
	}

	duration := time.Since(passStartTime)
	log.Info(fmt.Sprintf("Sync complete for %s. Took %s", describeSyncPair(s.opts), duration.String()))

	if s.notifier != nil {
		if notifyErr := s.notifier.NotifyPassResults(s.opts, report); notifyErr != nil {
			log.Warn(fmt.Sprintf("Error publishing sync notification: %s", notifyErr))
		}
	}
	return report, nil
}

// buildUploadPlan walks the local side, resolves fingerprints, and marks
// each mapped key for upload, prefix creation or skipping based on what the
// bucket already holds. Force skips the cache and the bucket listing and
// marks everything.
func (s *Syncer) buildUploadPlan(ctx context.Context) (*Ordered[*KeyState], error) {
	s.setState(stateScanning)
	walk, walkErr := walkTree(s.opts.LocalPath, s.excludes)
	if walkErr != nil {
		return nil, walkErr
	}

	candidates := NewOrdered[*KeyState]()
	if walk.IsDir {
		mergeStates(candidates, toRemoteKeys(walk.Dirs, s.opts.LocalPath, s.opts.KeyPrefix, true))
		mergeStates(candidates, toRemoteKeys(walk.Files, s.opts.LocalPath, s.opts.KeyPrefix, false))
	} else {
		entry, _ := walk.Files.Get(s.opts.LocalPath)
		key := path.Join(s.opts.KeyPrefix, filepath.Base(s.opts.LocalPath))
		candidates.Set(key, &KeyState{
			Key:       key,
			Size:      entry.Size,
			Mtime:     entry.Mtime,
			LocalPath: entry.Path,
			Metadata:  entryMetadata(entry),
		})
	}

	if s.opts.Force {
		log.Warn("Using force, ignoring the local cache and bucket contents, uploading everything")
		if fpErr := fingerprintStates(candidates, computeETag); fpErr != nil {
			return nil, fpErr
		}
		markUploadActions(candidates, nil)
		return candidates, nil
	}

	if fpErr := s.resolveFingerprints(candidates); fpErr != nil {
		return nil, fpErr
	}

	s.setState(stateDiffing)
	remote, listErr := listRemote(ctx, s.client, s.opts.Bucket, s.listingPrefix(), candidates.Keys())
	if listErr != nil {
		return nil, fmt.Errorf("Error listing bucket %s: %s", s.opts.Bucket, listErr)
	}
	needsSync := compareFingerprints(candidates, remote, false)
	markUploadActions(candidates, needsSync)
	return candidates, nil
}

// buildDownloadPlan lists the remote side and marks each key for download
// or skipping based on what exists locally. Force skips the local scan and
// downloads the full listing.
func (s *Syncer) buildDownloadPlan(ctx context.Context) (*Ordered[*KeyState], error) {
	s.setState(stateScanning)
	if s.opts.Force {
		log.Warn("Using force, ignoring local contents, downloading everything under the remote path")
		remote, listErr := s.remoteSource(ctx)
		if listErr != nil {
			return nil, listErr
		}
		for _, key := range remote.Keys() {
			state, _ := remote.Get(key)
			state.LocalPath = s.localPathForKey(key)
			state.Action = ActionDownload
		}
		return remote, nil
	}

	local := NewOrdered[*KeyState]()
	localRootExists := false
	if s.opts.RemoteIsDir {
		walk, walkErr := walkTree(s.opts.LocalPath, s.excludes)
		if walkErr == nil {
			localRootExists = true
			mergeStates(local, toRemoteKeys(walk.Dirs, s.opts.LocalPath, s.opts.KeyPrefix, true))
			mergeStates(local, toRemoteKeys(walk.Files, s.opts.LocalPath, s.opts.KeyPrefix, false))
		} else {
			var notFound *NotFoundError
			if !errors.As(walkErr, &notFound) {
				return nil, walkErr
			}
			log.Debug(fmt.Sprintf("Local directory %s does not exist yet", s.opts.LocalPath))
		}
	} else if info, statErr := os.Stat(s.opts.LocalPath); statErr == nil {
		entry := newEntry(s.opts.LocalPath, info)
		local.Set(s.opts.KeyPrefix, &KeyState{
			Key:       s.opts.KeyPrefix,
			Size:      entry.Size,
			Mtime:     entry.Mtime,
			LocalPath: entry.Path,
			Metadata:  entryMetadata(entry),
		})
	}

	// the cache loads every pass, even with nothing local to fingerprint,
	// since the end-of-pass save writes back whatever is in memory
	if fpErr := s.resolveFingerprints(local); fpErr != nil {
		return nil, fpErr
	}
	// an existing local root satisfies the prefix's own directory key
	if localRootExists && s.opts.KeyPrefix != "" {
		rootKey := s.opts.KeyPrefix + "/"
		local.Set(rootKey, &KeyState{
			Key:         rootKey,
			LocalPath:   s.opts.LocalPath,
			IsDir:       true,
			Fingerprint: emptyFileETag,
		})
	}

	remote, remoteErr := s.remoteSource(ctx)
	if remoteErr != nil {
		return nil, remoteErr
	}
	s.setState(stateDiffing)
	needsSync := compareFingerprints(remote, local, true)
	for _, key := range remote.Keys() {
		state, _ := remote.Get(key)
		state.LocalPath = s.localPathForKey(key)
		if needsSync.Has(key) {
			state.Action = ActionDownload
		} else {
			state.Action = ActionSkip
		}
	}
	return remote, nil
}

// remoteSource reads the bucket side of a pass: a full listing when the
// remote path is a directory, a single head probe when it is one key. A key
// that does not exist yet is an empty result.
func (s *Syncer) remoteSource(ctx context.Context) (*Ordered[*KeyState], error) {
	if s.opts.RemoteIsDir {
		remote, listErr := listRemote(ctx, s.client, s.opts.Bucket, s.listingPrefix(), nil)
		if listErr != nil {
			return nil, fmt.Errorf("Error listing bucket %s: %s", s.opts.Bucket, listErr)
		}
		return remote, nil
	}

	remote := NewOrdered[*KeyState]()
	head, headErr := s.client.HeadObject(ctx, s.opts.Bucket, s.opts.KeyPrefix)
	if headErr != nil {
		return nil, fmt.Errorf("Error checking remote key %s: %s", s.opts.KeyPrefix, headErr)
	}
	if !head.Found {
		log.Warn(fmt.Sprintf("Remote key %s does not exist yet", s.opts.KeyPrefix))
		return remote, nil
	}
	remote.Set(s.opts.KeyPrefix, &KeyState{
		Key:         s.opts.KeyPrefix,
		Fingerprint: head.ETag,
		Size:        head.Size,
		Metadata:    metadataFromMap(head.Metadata),
	})
	return remote, nil
}

func (s *Syncer) transferPlan(ctx context.Context, plan *Ordered[*KeyState], report *PassReport) {
	var wg sync.WaitGroup
	for _, key := range plan.Keys() {
		state, _ := plan.Get(key)
		switch state.Action {
		case ActionSkip:
			report.AddSkipped()
		case ActionCreatePrefix:
			wg.Add(1)
			go s.doCreateDirKey(ctx, state, &wg, report)
		case ActionUpload:
			wg.Add(1)
			go s.doUploadEntry(ctx, state, &wg, report)
		case ActionDownload:
			wg.Add(1)
			go s.doDownloadEntry(ctx, state, &wg, report)
		}
	}
	wg.Wait()
}

func (s *Syncer) doUploadEntry(ctx context.Context, state *KeyState, wg *sync.WaitGroup, report *PassReport) error {
	report.AddTransferResult(state.Key, nil)
	s.semaphore <- 1
	defer wg.Done()
	defer func() { <-s.semaphore }()

	fd, fileErr := os.Open(state.LocalPath)
	if fileErr != nil {
		log.Warn(fmt.Sprintf("Error opening %s: %s", state.LocalPath, fileErr))
		report.AddTransferResult(state.Key, fileErr)
		return fileErr
	}
	defer fd.Close()

	meta := s.applyOverrides(state.Metadata)
	observer := newTransferProgress(state.Key, state.Size)
	uploadErr := s.client.UploadFile(ctx, s.opts.Bucket, state.Key, fd, meta.ToMap(), s.sniff(state.LocalPath), observer)
	if uploadErr != nil {
		log.Warn(fmt.Sprintf("Error uploading %s: %s", state.Key, uploadErr))
		report.AddTransferResult(state.Key, uploadErr)
	} else {
		log.Info(fmt.Sprintf("Uploaded %s as key %s", state.LocalPath, state.Key))
	}
	return uploadErr
}

func (s *Syncer) doCreateDirKey(ctx context.Context, state *KeyState, wg *sync.WaitGroup, report *PassReport) error {
	report.AddTransferResult(state.Key, nil)
	s.semaphore <- 1
	defer wg.Done()
	defer func() { <-s.semaphore }()

	meta := s.applyOverrides(state.Metadata)
	log.Info(fmt.Sprintf("Creating key '%s'", state.Key))
	putErr := s.client.PutObject(ctx, s.opts.Bucket, state.Key, nil, meta.ToMap(), dirContentType)
	if putErr != nil {
		log.Warn(fmt.Sprintf("Error creating key %s: %s", state.Key, putErr))
		report.AddTransferResult(state.Key, putErr)
	}
	return putErr
}

func (s *Syncer) doDownloadEntry(ctx context.Context, state *KeyState, wg *sync.WaitGroup, report *PassReport) error {
	report.AddTransferResult(state.Key, nil)
	s.semaphore <- 1
	defer wg.Done()
	defer func() { <-s.semaphore }()

	if strings.HasSuffix(state.Key, "/") {
		if mkdirErr := os.MkdirAll(state.LocalPath, 0775); mkdirErr != nil {
			log.Warn(fmt.Sprintf("Error creating local directory %s: %s", state.LocalPath, mkdirErr))
			report.AddTransferResult(state.Key, mkdirErr)
			return mkdirErr
		}
		log.Info(fmt.Sprintf("Created local directory %s", state.LocalPath))
		return nil
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(state.LocalPath), 0775); mkdirErr != nil {
		report.AddTransferResult(state.Key, mkdirErr)
		return mkdirErr
	}

	body, getErr := s.client.GetObject(ctx, s.opts.Bucket, state.Key)
	if getErr != nil {
		log.Warn(fmt.Sprintf("Error downloading %s: %s", state.Key, getErr))
		report.AddTransferResult(state.Key, getErr)
		return getErr
	}
	defer body.Close()

	fd, createErr := os.Create(state.LocalPath)
	if createErr != nil {
		log.Warn(fmt.Sprintf("Error creating %s: %s", state.LocalPath, createErr))
		report.AddTransferResult(state.Key, createErr)
		return createErr
	}
	defer fd.Close()

	observer := newTransferProgress(state.Key, state.Size)
	if _, copyErr := io.Copy(fd, newProgressReader(body, observer)); copyErr != nil {
		log.Warn(fmt.Sprintf("Error writing %s: %s", state.LocalPath, copyErr))
		report.AddTransferResult(state.Key, copyErr)
		return copyErr
	}
	log.Info(fmt.Sprintf("Downloaded %s to %s", state.Key, state.LocalPath))
	return nil
}

// verifyPass re-lists every key the pass acted on and flags the ones whose
// fingerprint still differs from the plan. Nothing is retried, a residual
// mismatch is reported for the next pass to pick up.
func (s *Syncer) verifyPass(ctx context.Context, plan *Ordered[*KeyState], report *PassReport) error {
	transferred := NewOrdered[*KeyState]()
	for _, key := range plan.Keys() {
		state, _ := plan.Get(key)
		if state.Action == ActionSkip {
			continue
		}
		transferred.Set(key, state)
	}
	if transferred.Len() == 0 {
		return nil
	}

	log.Info("Verifying sync")
	fresh, listErr := listRemote(ctx, s.client, s.opts.Bucket, s.listingPrefix(), transferred.Keys())
	if listErr != nil {
		return listErr
	}
	faulty := compareFingerprints(transferred, fresh, s.opts.FromRemote)
	for _, key := range faulty.Keys() {
		log.Error(fmt.Sprintf("Bad sync for key %s", key))
		report.AddBadSync(key)
	}
	if faulty.Len() == 0 {
		log.Info("Sync verified")
	}
	return nil
}

// resolveFingerprints fills every state's fingerprint, through the cache
// when one is configured. A corrupt cache file downgrades to recomputing
// everything.
func (s *Syncer) resolveFingerprints(states *Ordered[*KeyState]) error {
	if s.cache == nil {
		return fingerprintStates(states, computeETag)
	}
	log.Info("Checking local cache")
	if loadErr := s.cache.Load(); loadErr != nil {
		log.Warn(fmt.Sprintf("%s. Recomputing all fingerprints.", loadErr))
	}
	return s.cache.Reconcile(states)
}

func (s *Syncer) saveCache() {
	if s.cache == nil {
		return
	}
	if saveErr := s.cache.Save(); saveErr != nil {
		log.Warn(fmt.Sprintf("Error writing cache file: %s", saveErr))
	}
}

func (s *Syncer) applyOverrides(meta ObjectMetadata) ObjectMetadata {
	if s.opts.UID != "" {
		meta.UID = s.opts.UID
	}
	if s.opts.GID != "" {
		meta.GID = s.opts.GID
	}
	return meta
}

// listingPrefix is the bucket prefix covering everything a pass touches. A
// single-key download probes the key itself, every other shape lists under
// the key prefix.
func (s *Syncer) listingPrefix() string {
	if s.opts.FromRemote && !s.opts.RemoteIsDir {
		return s.opts.KeyPrefix
	}
	if s.opts.KeyPrefix == "" {
		return ""
	}
	return s.opts.KeyPrefix + "/"
}

func (s *Syncer) localPathForKey(key string) string {
	if s.opts.FromRemote && !s.opts.RemoteIsDir {
		return s.opts.LocalPath
	}
	relative := relativeFromKey(key, s.opts.KeyPrefix)
	return filepath.Join(s.opts.LocalPath, filepath.FromSlash(relative))
}

func markUploadActions(candidates, needsSync *Ordered[*KeyState]) {
	for _, key := range candidates.Keys() {
		state, _ := candidates.Get(key)
		switch {
		case needsSync != nil && !needsSync.Has(key):
			state.Action = ActionSkip
		case state.IsDir:
			state.Action = ActionCreatePrefix
		default:
			state.Action = ActionUpload
		}
	}
}

func mergeStates(into, from *Ordered[*KeyState]) {
	for _, key := range from.Keys() {
		state, _ := from.Get(key)
		into.Set(key, state)
	}
}

func pendingActions(plan *Ordered[*KeyState]) int {
	pending := 0
	for _, key := range plan.Keys() {
		state, _ := plan.Get(key)
		if state.Action != ActionSkip {
			pending++
		}
	}
	return pending
}

func describeSyncPair(opts SyncOptions) string {
	remote := remoteScheme + opts.Bucket
	if opts.KeyPrefix != "" {
		remote += "/" + opts.KeyPrefix
	}
	if opts.FromRemote {
		return fmt.Sprintf("%s -> %s", remote, opts.LocalPath)
	}
	return fmt.Sprintf("%s -> %s", opts.LocalPath, remote)
}
