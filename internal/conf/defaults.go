// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "CamVault")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "camvault.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("database.sqlite.enabled", true)
	viper.SetDefault("database.sqlite.path", "camvault.db")
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "camvault")
	viper.SetDefault("database.mysql.password", "secret")
	viper.SetDefault("database.mysql.database", "camvault")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")

	viper.SetDefault("images.contentdir", "images/defaults")
	viper.SetDefault("images.uploaddir", "images/uploads")
	viper.SetDefault("images.cachedir", "images/cache")
	viper.SetDefault("images.cachemaxage", 30*24*time.Hour)
	viper.SetDefault("images.maxfilesize", int64(5*1024*1024))
	viper.SetDefault("images.targetfilesize", int64(500*1024))
	viper.SetDefault("images.maxwidth", 800)
	viper.SetDefault("images.maxheight", 600)
	viper.SetDefault("images.downloadtimeout", 30*time.Second)
	viper.SetDefault("images.placeholderpath", "/assets/camera-placeholder.svg")
	viper.SetDefault("images.minquality", 3)
	viper.SetDefault("images.mindimension", 200)

	viper.SetDefault("provider.apiurl", "https://commons.wikimedia.org/w/api.php")
	viper.SetDefault("provider.ratelimitrps", 2.0)
	viper.SetDefault("provider.ratelimitburst", 2)
	viper.SetDefault("provider.debug", false)

	viper.SetDefault("jobqueue.maxconcurrency", 2)
	viper.SetDefault("jobqueue.maxretries", 3)
	viper.SetDefault("jobqueue.retrydelay", 5*time.Second)
	viper.SetDefault("jobqueue.jobtimeout", 120*time.Second)
	viper.SetDefault("jobqueue.gcinterval", 5*time.Minute)
	viper.SetDefault("jobqueue.gcmaxage", 24*time.Hour)
	viper.SetDefault("jobqueue.debug", false)
}

// TestSettings returns a Settings instance populated with defaults, suitable
// for constructing isolated components in tests without touching the global
// viper state.
func TestSettings(tempDir string) *Settings {
	return &Settings{
		Main: MainSettings{Name: "CamVault"},
		WebServer: WebServerSettings{
			Enabled: true,
			Port:    "8080",
		},
		Database: DatabaseSettings{
			SQLite: SQLiteSettings{Enabled: true, Path: tempDir + "/camvault.db"},
		},
		Images: ImageSettings{
			ContentDir:      tempDir + "/defaults",
			UploadDir:       tempDir + "/uploads",
			CacheDir:        tempDir + "/cache",
			CacheMaxAge:     30 * 24 * time.Hour,
			MaxFileSize:     5 * 1024 * 1024,
			TargetFileSize:  500 * 1024,
			MaxWidth:        800,
			MaxHeight:       600,
			DownloadTimeout: 30 * time.Second,
			PlaceholderPath: "/assets/camera-placeholder.svg",
			MinQuality:      3,
			MinDimension:    200,
		},
		Provider: ProviderSettings{
			APIURL:         "https://commons.wikimedia.org/w/api.php",
			RateLimitRPS:   2.0,
			RateLimitBurst: 2,
		},
		JobQueue: JobQueueSettings{
			MaxConcurrency: 2,
			MaxRetries:     3,
			RetryDelay:     5 * time.Second,
			JobTimeout:     120 * time.Second,
			GCInterval:     5 * time.Minute,
			GCMaxAge:       24 * time.Hour,
		},
	}
}
