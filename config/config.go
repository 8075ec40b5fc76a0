// Package config loads client settings from a YAML file and RIPPLE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	ripple "github.com/Tap30/ripple-core-go"
	"github.com/Tap30/ripple-core-go/adapters"
	"github.com/Tap30/ripple-core-go/identity"
)

// EnvPrefix prefixes every environment override, e.g. RIPPLE_API_KEY or
// RIPPLE_STORAGE_TYPE.
const EnvPrefix = "RIPPLE"

const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageBadger = "badger"
)

// FileConfig mirrors ripple.yaml.
type FileConfig struct {
	APIKey       string `mapstructure:"api_key"`
	ServerURL    string `mapstructure:"server_url"`
	ServerZone   string `mapstructure:"server_zone"`
	UseBatch     bool   `mapstructure:"use_batch"`
	InstanceName string `mapstructure:"instance_name"`
	PartnerID    string `mapstructure:"partner_id"`
	LogLevel     string `mapstructure:"log_level"`

	FlushQueueSize  int           `mapstructure:"flush_queue_size"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
	FlushMaxRetries int           `mapstructure:"flush_max_retries"`
	MinIDLength     int           `mapstructure:"min_id_length"`
	ThrottleBackoff time.Duration `mapstructure:"throttle_backoff"`
	Compression     bool          `mapstructure:"compression"`
	OptOut          bool          `mapstructure:"opt_out"`
	Offline         bool          `mapstructure:"offline"`

	Plan              *ripple.Plan              `mapstructure:"plan"`
	IngestionMetadata *ripple.IngestionMetadata `mapstructure:"ingestion_metadata"`

	Storage  StorageConfig  `mapstructure:"storage"`
	Identity IdentityConfig `mapstructure:"identity"`
}

// StorageConfig selects the event buffer.
type StorageConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

// IdentityConfig enables file-backed ids when Dir is set.
type IdentityConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

// keys lists every setting so that environment variables reach Unmarshal even
// when the file does not mention them.
var keys = map[string]any{
	"api_key":           "",
	"server_url":        "",
	"server_zone":       string(ripple.ServerZoneUS),
	"use_batch":         false,
	"instance_name":     ripple.DefaultInstanceName,
	"partner_id":        "",
	"log_level":         "warn",
	"flush_queue_size":  ripple.DefaultFlushQueueSize,
	"flush_interval":    ripple.DefaultFlushInterval,
	"flush_max_retries": ripple.DefaultFlushMaxRetries,
	"min_id_length":     0,
	"throttle_backoff":  ripple.DefaultThrottleBackoff,
	"compression":       false,
	"opt_out":           false,
	"offline":           false,
	"storage.type":      StorageMemory,
	"storage.path":      "",
	"identity.dir":      "",
	"identity.prefix":   identity.DefaultFilePrefix,
}

// Load reads path, or ripple.yaml from the working directory when path is
// empty, and applies RIPPLE_* overrides. A missing default file is not an error.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	for key, value := range keys {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ripple")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &FileConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Configuration builds a client configuration. Storage adapters it opens are
// set in Adapters.StorageAdapter and must be closed by the caller after the
// client has shut down.
func (c *FileConfig) Configuration() (ripple.Configuration, error) {
	cfg := ripple.Configuration{
		APIKey:                       c.APIKey,
		ServerURL:                    c.ServerURL,
		ServerZone:                   ripple.ServerZone(strings.ToUpper(c.ServerZone)),
		UseBatch:                     c.UseBatch,
		InstanceName:                 c.InstanceName,
		PartnerID:                    c.PartnerID,
		LogLevel:                     adapters.ParseLogLevel(c.LogLevel),
		FlushQueueSize:               c.FlushQueueSize,
		FlushInterval:                c.FlushInterval,
		FlushMaxRetries:              c.FlushMaxRetries,
		MinIDLength:                  c.MinIDLength,
		ThrottleBackoff:              c.ThrottleBackoff,
		EnableRequestBodyCompression: c.Compression,
		OptOut:                       c.OptOut,
		Offline:                      c.Offline,
		Plan:                         c.Plan,
		IngestionMetadata:            c.IngestionMetadata,
	}

	storage, err := c.Storage.open()
	if err != nil {
		return ripple.Configuration{}, err
	}
	cfg.Adapters.StorageAdapter = storage

	if c.Identity.Dir != "" {
		ids, err := identity.NewFileStorage(c.Identity.Dir, c.Identity.Prefix, c.InstanceName, c.APIKey)
		if err != nil {
			if storage != nil {
				_ = storage.Close()
			}
			return ripple.Configuration{}, err
		}
		cfg.IdentityStorage = ids
	}
	return cfg, nil
}

// open returns nil for memory storage so the client creates and owns it.
func (s StorageConfig) open() (adapters.StorageAdapter, error) {
	switch strings.ToLower(s.Type) {
	case "", StorageMemory:
		return nil, nil
	case StorageFile:
		if s.Path == "" {
			return nil, errors.New("storage.path is required for file storage")
		}
		return adapters.NewFileStorageAdapter(s.Path)
	case StorageBadger:
		if s.Path == "" {
			return adapters.NewInMemoryBadgerStorageAdapter()
		}
		return adapters.NewBadgerStorageAdapter(s.Path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", s.Type)
	}
}
