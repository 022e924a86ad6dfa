// Package config loads application settings and builds the shared clients
// (logger, durable store, low-latency store) from them.
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Media    MediaConfig    `mapstructure:"media"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
}

type AppConfig struct {
	Port      string `mapstructure:"port" default:"8080"`
	JWTSecret string `mapstructure:"jwt_secret" default:""`
	Issuer    string `mapstructure:"issuer" default:"feedcore"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" default:"info"`
	// Format is console or json.
	Format string `mapstructure:"format" default:"console"`
}

type DatabaseConfig struct {
	// Driver is mysql, postgres or sqlite.
	Driver string `mapstructure:"driver" default:"mysql"`
	// DSN overrides the host/port/user fields when set.
	DSN            string `mapstructure:"dsn" default:""`
	Host           string `mapstructure:"host" default:"localhost"`
	Port           int    `mapstructure:"port" default:"3306"`
	User           string `mapstructure:"user" default:"root"`
	Password       string `mapstructure:"password" default:""`
	Name           string `mapstructure:"name" default:"feedcore"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" default:"10"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" default:"localhost:6379"`
	Password string `mapstructure:"password" default:""`
	DB       int    `mapstructure:"db" default:"0"`
}

type StorageConfig struct {
	Endpoint       string `mapstructure:"endpoint" default:"localhost:9000"`
	AccessKey      string `mapstructure:"access_key" default:"minioadmin"`
	SecretKey      string `mapstructure:"secret_key" default:"minioadmin"`
	UseSSL         bool   `mapstructure:"use_ssl" default:"false"`
	Bucket         string `mapstructure:"bucket" default:"media"`
	Region         string `mapstructure:"region" default:""`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" default:"30"`
}

// FeedConfig tunes fan-out and the timeline cache.
type FeedConfig struct {
	// FanoutThreshold is the largest follower count still fanned out synchronously.
	FanoutThreshold int64 `mapstructure:"fanout_threshold" default:"1000"`
	// TimelineBound is the number of entries kept per owner.
	TimelineBound int `mapstructure:"timeline_bound" default:"1000"`
	// BatchSize is the number of owners written per cache transaction.
	BatchSize    int           `mapstructure:"batch_size" default:"100"`
	StoreRetries int           `mapstructure:"store_retries" default:"3"`
	RetryBase    time.Duration `mapstructure:"retry_base" default:"50ms"`
	OpTimeout    time.Duration `mapstructure:"op_timeout" default:"2s"`
	// TombstoneGrace is how long a cached entry may outlive its post's deletion.
	TombstoneGrace time.Duration `mapstructure:"tombstone_grace" default:"10m"`
	// TimelineTTL expires idle cached timelines; zero keeps them forever.
	TimelineTTL time.Duration `mapstructure:"timeline_ttl" default:"0s"`
	PageSize    int           `mapstructure:"page_size" default:"20"`
	// MaxPostLength caps a post body in characters.
	MaxPostLength int `mapstructure:"max_post_length" default:"500"`
}

// QueueConfig tunes the task pipeline.
type QueueConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" default:"5"`
	Lease        time.Duration `mapstructure:"lease" default:"30s"`
	BackoffBase  time.Duration `mapstructure:"backoff_base" default:"500ms"`
	BackoffMax   time.Duration `mapstructure:"backoff_max" default:"5m"`
	Workers      int           `mapstructure:"workers" default:"4"`
	PollInterval time.Duration `mapstructure:"poll_interval" default:"1s"`
	TaskTimeout  time.Duration `mapstructure:"task_timeout" default:"1m"`
	ScanSize     int           `mapstructure:"scan_size" default:"16"`
}

type MediaConfig struct {
	MaxWidth    int `mapstructure:"max_width" default:"1280"`
	MaxHeight   int `mapstructure:"max_height" default:"1280"`
	ThumbSize   int `mapstructure:"thumb_size" default:"320"`
	JPEGQuality int `mapstructure:"jpeg_quality" default:"85"`
	// MaxUploadBytes caps a single upload.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" default:"10485760"`
}

type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval" default:"10m"`
	PageSize int           `mapstructure:"page_size" default:"200"`
}

// LoadConfig loads configuration from environment variables and an optional
// .env file in path. Nested keys map to upper-case env names with dots
// replaced by underscores (feed.fanout_threshold -> FEED_FANOUT_THRESHOLD).
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}
	// missing .env is fine in production
	_ = godotenv.Load(envPath)

	v := viper.New()
	bindValues(v, Config{}, "")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindValues registers every mapstructure key with its `default` tag so that
// AutomaticEnv can resolve it.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
