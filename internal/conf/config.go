// config.go: settings struct and functions to load and save the application configuration.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// MainSettings contains application-wide settings.
type MainSettings struct {
	Name string      // application instance name
	Log  LogSettings // main log file settings
}

// LogSettings contains settings for a rotated log file.
type LogSettings struct {
	Enabled    bool   // true to enable file logging
	Path       string // path to the log file
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // number of rotated files to keep
	MaxAgeDays int    // days to keep rotated files
}

// WebServerSettings contains settings for the HTTP server.
type WebServerSettings struct {
	Enabled bool   // true to enable the web server
	Port    string // port to listen on
	Debug   bool   // true to enable server debug logging
}

// DatabaseSettings contains settings for the relational store.
type DatabaseSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// SQLiteSettings contains SQLite database settings.
type SQLiteSettings struct {
	Enabled bool
	Path    string // path to the database file
}

// MySQLSettings contains MySQL database settings.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// ImageSettings contains settings for image storage and transcoding.
type ImageSettings struct {
	ContentDir      string        // directory for permanently owned default-image assets
	UploadDir       string        // directory for user-uploaded camera photos
	CacheDir        string        // directory for the URL-keyed disposable cache
	CacheMaxAge     time.Duration // cache entries older than this are expired
	MaxFileSize     int64         // hard cap on downloaded image bytes
	TargetFileSize  int64         // byte budget for transcoded assets
	MaxWidth        int           // maximum display width, larger images are resized down
	MaxHeight       int           // maximum display height
	DownloadTimeout time.Duration // per-download network timeout
	PlaceholderPath string        // URL path of the generic placeholder asset
	MinQuality      int           // acceptability gate: candidates below this quality are rejected
	MinDimension    int           // acceptability gate: candidates below this width or height are rejected
}

// ProviderSettings contains settings for the external image source.
type ProviderSettings struct {
	APIURL         string  // MediaWiki API endpoint
	RateLimitRPS   float64 // background request rate towards the API
	RateLimitBurst int     // rate limiter burst size
	Debug          bool    // true to enable provider debug logging
}

// JobQueueSettings contains settings for the background job scheduler.
type JobQueueSettings struct {
	MaxConcurrency int           // maximum number of simultaneously running jobs
	MaxRetries     int           // default retry budget per job
	RetryDelay     time.Duration // fixed delay before a failed job becomes eligible again
	JobTimeout     time.Duration // per-job wall clock budget
	GCInterval     time.Duration // how often terminal jobs are purged
	GCMaxAge       time.Duration // terminal jobs older than this are purged
	Debug          bool
}

// Settings contains all configuration options for the application.
type Settings struct {
	Debug bool // true to enable debug mode

	Main      MainSettings
	WebServer WebServerSettings
	Database  DatabaseSettings
	Images    ImageSettings
	Provider  ProviderSettings
	JobQueue  JobQueueSettings

	Version string // runtime value, not read from config
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and stores it as the global instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("camvault")
	viper.AutomaticEnv()

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes a config file with default values to the first
// default config path so the user has something to edit.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(configPaths[0], 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling defaults: %w", err)
	}

	yamlBytes, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling default config: %w", err)
	}

	if err := os.WriteFile(configPath, yamlBytes, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	log.Printf("Created default configuration at %s", configPath)
	return nil
}

// GetDefaultConfigPaths returns the config search paths in priority order:
// current directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "camvault"))
	}
	return paths, nil
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	instance := settingsInstance
	settingsMutex.RUnlock()
	if instance != nil {
		return instance
	}

	settings, err := Load()
	if err != nil {
		log.Fatalf("error loading settings: %v", err)
	}
	return settings
}

// SetTestSettings replaces the global settings instance. Intended for tests.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

// ValidateSettings checks the loaded settings for values that would be
// rejected before any I/O is attempted.
func ValidateSettings(settings *Settings) error {
	if settings.JobQueue.MaxConcurrency < 1 {
		return fmt.Errorf("jobqueue.maxconcurrency must be at least 1, got %d", settings.JobQueue.MaxConcurrency)
	}
	if settings.JobQueue.MaxRetries < 0 {
		return fmt.Errorf("jobqueue.maxretries must not be negative, got %d", settings.JobQueue.MaxRetries)
	}
	if settings.Images.MaxFileSize <= 0 {
		return fmt.Errorf("images.maxfilesize must be positive, got %d", settings.Images.MaxFileSize)
	}
	if settings.Images.TargetFileSize <= 0 || settings.Images.TargetFileSize > settings.Images.MaxFileSize {
		return fmt.Errorf("images.targetfilesize must be in (0, maxfilesize], got %d", settings.Images.TargetFileSize)
	}
	if settings.Database.SQLite.Enabled && settings.Database.MySQL.Enabled {
		return fmt.Errorf("only one database backend may be enabled at a time")
	}
	return nil
}
