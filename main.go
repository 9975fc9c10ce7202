package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

func main() {
	configFilePath := flag.String("configfile", "", "Optional configuration file path")
	force := flag.Bool("force", false, "Ignore the local cache and bucket contents, transfer everything")
	metadataJSON := flag.String("metadata", "", "Metadata JSON applied to created prefix keys, e.g. '{\"uid\":\"6812\"}'")
	dirMode := flag.String("meta-dir-mode", defaultDirMode, "Default st_mode recorded for directory keys")
	fileMode := flag.String("meta-file-mode", defaultFileMode, "Default st_mode recorded for file keys")
	uid := flag.String("uid", "", "Override the uid recorded in object metadata")
	gid := flag.String("gid", "", "Override the gid recorded in object metadata")
	useCache := flag.Bool("localcache", false, "Reuse fingerprints from the local cache file")
	cacheDir := flag.String("localcache-dir", "", "Directory holding the local cache file")
	cacheFile := flag.String("localcache-file", "", "Name of the local cache file")
	interval := flag.Int("interval", 0, "Autosync interval in minutes, 0 runs a single pass")
	logLevel := flag.String("log", "info", "Log level: debug, info, warning or error")
	logDir := flag.String("log-dir", "", "Directory for log files, stderr only when unset")
	profile := flag.String("profile", "", "AWS shared config profile")
	region := flag.String("region", "", "AWS region")
	flag.Parse()

	setupLogging(*logLevel, *logDir)

	var appConfig AppConfig
	configErr := loadAppConfig(&appConfig, *configFilePath)
	if configErr != nil {
		log.Fatal(fmt.Sprintf("Error loading config: %s", configErr))
	}
	if *profile != "" {
		appConfig.Provider.Profile = *profile
	}
	if *region != "" {
		appConfig.Provider.Region = *region
	}
	for _, line := range appConfig.ConfigStringArray() {
		log.Debug(line)
	}

	if flag.NArg() != 2 {
		log.Fatal("Expected exactly two path arguments, a local path and an s3://bucket/path")
	}

	opts := SyncOptions{
		Force:        *force,
		Interval:     *interval,
		MetadataJSON: *metadataJSON,
		DirMode:      *dirMode,
		FileMode:     *fileMode,
		UID:          *uid,
		GID:          *gid,
		CacheEnabled: *useCache || appConfig.Cache.Enabled,
		CacheDir:     firstNonEmpty(*cacheDir, appConfig.Cache.Dir, defaultCacheDir()),
		CacheFile:    firstNonEmpty(*cacheFile, appConfig.Cache.File),
		Concurrency:  appConfig.Concurrency,
		Exclude:      appConfig.Exclude,
	}

	var remoteArg string
	for _, arg := range flag.Args() {
		if strings.HasPrefix(arg, remoteScheme) {
			remoteArg = arg
		} else {
			opts.LocalPath = arg
		}
	}
	if remoteArg == "" || opts.LocalPath == "" {
		log.Fatal("Exactly one path argument must carry the s3:// scheme")
	}
	// the remote side as the first argument means it is the source
	opts.FromRemote = strings.HasPrefix(flag.Arg(0), remoteScheme)

	bucket, keyPrefix, parseErr := parseRemotePath(remoteArg)
	if parseErr != nil {
		log.Fatal(fmt.Sprintf("Invalid remote path: %s", parseErr))
	}
	opts.Bucket = bucket
	opts.RemoteIsDir = keyPrefix == "" || strings.HasSuffix(keyPrefix, "/")
	opts.KeyPrefix = strings.TrimSuffix(keyPrefix, "/")

	if !opts.FromRemote {
		if _, statErr := os.Stat(opts.LocalPath); statErr != nil {
			log.Fatal(fmt.Sprintf("%s is not a file or a directory", opts.LocalPath))
		}
	}

	client, clientErr := appConfig.ClientFromConfig()
	if clientErr != nil {
		log.Fatal(fmt.Sprintf("Error creating object store client: %s", clientErr))
	}

	var notifier Notifier
	if appConfig.Notify.Topic != "" {
		var notifierErr error
		notifier, notifierErr = NewSNSNotifier(appConfig)
		if notifierErr != nil {
			log.Fatal(fmt.Sprintf("Error creating notifier: %s", notifierErr))
		}
	}

	syncer, syncerErr := NewSyncer(client, opts, notifier)
	if syncerErr != nil {
		log.Fatal(fmt.Sprintf("Error preparing sync: %s", syncerErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runErr := syncer.Run(ctx); runErr != nil {
		log.Fatal(fmt.Sprintf("Sync failed: %s", runErr))
	}
}

func setupLogging(level, dir string) {
	parsed, parseErr := log.ParseLevel(level)
	if parseErr != nil {
		log.Fatal(fmt.Sprintf("Invalid log level: %s", level))
	}
	log.SetLevel(parsed)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if dir == "" {
		return
	}
	dateTag := time.Now().Format("2006-Jan-02_15-04-05")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_s3metasync.log", dateTag))
	fd, openErr := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if openErr != nil {
		log.Fatal(fmt.Sprintf("Error opening log file: %s", openErr))
	}
	log.SetOutput(io.MultiWriter(os.Stderr, fd))
}
