package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jinzhu/configor"
)

type AppConfig struct {
	Provider    ProviderConfig
	Notify      NotifyConfig
	Cache       CacheConfig
	Concurrency int `default:"1"`
	Exclude     []string
}

type ProviderConfig struct {
	Name    string `default:"aws"`
	Region  string
	Profile string
}

type NotifyConfig struct {
	Topic   string
	Region  string
	Profile string
}

type CacheConfig struct {
	Enabled bool
	Dir     string
	File    string `default:"etag_cache.json.gz"`
}

// SyncOptions is the full description of one sync pair: which local path,
// which bucket path, which direction, and the knobs that shape a pass.
type SyncOptions struct {
	LocalPath    string
	Bucket       string
	KeyPrefix    string
	FromRemote   bool
	RemoteIsDir  bool
	Force        bool
	Interval     int
	MetadataJSON string
	DirMode      string
	FileMode     string
	UID          string
	GID          string
	CacheEnabled bool
	CacheDir     string
	CacheFile    string
	Concurrency  int
	Exclude      []string
}

func loadAppConfig(appConfig *AppConfig, path string) error {
	if path == "" {
		return configor.Load(appConfig)
	}
	return configor.Load(appConfig, path)
}

func (c AppConfig) ClientFromConfig() (ObjectClient, error) {
	var objectClient ObjectClient

	switch c.Provider.Name {
	case "aws":
		cfg, cfgErr := config.LoadDefaultConfig(context.TODO(),
			config.WithSharedConfigProfile(c.Provider.Profile),
			config.WithRegion(c.Provider.Region))
		if cfgErr != nil {
			return objectClient, fmt.Errorf("Error creating s3 client: %s", cfgErr)
		}
		awsS3Client := s3.NewFromConfig(cfg)
		objectClient = &S3Client{Client: awsS3Client}
	default:
		return objectClient, fmt.Errorf("Unknown cloud provider: %s", c.Provider.Name)
	}

	return objectClient, nil
}

func (c AppConfig) ConfigStringArray() []string {
	configStrArr := make([]string, 0)
	configStrArr = append(configStrArr, fmt.Sprintf("  - Provider: %s", c.Provider.Name))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Region: %s", c.Provider.Region))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Profile: %s", c.Provider.Profile))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Concurrent Transfers: %d", c.Concurrency))

	if c.Notify.Topic != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - SNSTopic: %s", c.Notify.Topic))
	}
	if c.Cache.Enabled {
		configStrArr = append(configStrArr, fmt.Sprintf("  - Cache: %s", filepath.Join(c.Cache.Dir, c.Cache.File)))
	}

	return configStrArr
}

func defaultCacheDir() string {
	home, homeErr := os.UserHomeDir()
	if homeErr != nil {
		return ".s3metasync"
	}
	return filepath.Join(home, ".s3metasync")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
