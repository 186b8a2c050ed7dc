// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

// EnvPrefix namespaces environment overrides, e.g. ARCHIVER_SERVER_PORT.
const EnvPrefix = "ARCHIVER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Sinks     SinksConfig     `mapstructure:"sinks"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig locates artifacts on disk and in the optional mirror bucket.
type StorageConfig struct {
	DownloadDir    string        `mapstructure:"download_dir"`
	DownloadPrefix string        `mapstructure:"download_prefix"`
	ScratchDir     string        `mapstructure:"scratch_dir"`
	RescanOnStart  bool          `mapstructure:"rescan_on_start"`
	GCSBucket      string        `mapstructure:"gcs_bucket"`
	GCSPrefix      string        `mapstructure:"gcs_prefix"`
	MirrorDir      string        `mapstructure:"mirror_dir"`
	MirrorQueue    int           `mapstructure:"mirror_queue"`
	MirrorTimeout  time.Duration `mapstructure:"mirror_timeout"`
}

// EngineConfig tunes the yt-dlp adapter.
type EngineConfig struct {
	FFmpegDir        string        `mapstructure:"ffmpeg_dir"`
	AudioQuality     int           `mapstructure:"audio_quality"`
	SubtitleLangs    string        `mapstructure:"subtitle_langs"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	AutoInstall      bool          `mapstructure:"auto_install"`
}

// BridgeConfig sizes the progress bridge.
type BridgeConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// BroadcastConfig tunes websocket observers.
type BroadcastConfig struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// SinksConfig tunes the best-effort side-sink hub.
type SinksConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DBConfig controls access to the job history database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// NATSConfig enables the NATS event export.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	// PerStatus appends the lowercased status to the subject.
	PerStatus bool `mapstructure:"per_status"`
}

// RedisConfig enables the Redis status cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load builds a Config from an optional .env file, an optional config file
// and the environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv exports variables from files without overriding the real
// environment. Missing files are ignored.
func loadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	// download_dir has no default; AutomaticEnv only resolves known keys.
	v.SetDefault("storage.download_dir", "")
	v.SetDefault("storage.download_prefix", "/downloads")
	v.SetDefault("storage.scratch_dir", "")
	v.SetDefault("storage.rescan_on_start", false)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "")
	v.SetDefault("storage.mirror_dir", "")
	v.SetDefault("storage.mirror_queue", 64)
	v.SetDefault("storage.mirror_timeout", 10*time.Minute)
	v.SetDefault("engine.ffmpeg_dir", "")
	v.SetDefault("engine.audio_quality", 3)
	v.SetDefault("engine.subtitle_langs", "en")
	v.SetDefault("engine.progress_interval", 500*time.Millisecond)
	v.SetDefault("engine.auto_install", false)
	v.SetDefault("bridge.buffer_size", 1024)
	v.SetDefault("broadcast.send_buffer", 64)
	v.SetDefault("broadcast.ping_interval", 5*time.Second)
	v.SetDefault("broadcast.write_timeout", 10*time.Second)
	v.SetDefault("broadcast.max_message_size", 4096)
	v.SetDefault("sinks.buffer_size", 1024)
	v.SetDefault("sinks.max_batch_events", 256)
	v.SetDefault("sinks.max_batch_wait", time.Second)
	v.SetDefault("sinks.sink_timeout", 5*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "job_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "archiver.events")
	v.SetDefault("nats.per_status", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "archiver")
	v.SetDefault("redis.ttl", 24*time.Hour)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	if strings.TrimSpace(c.Storage.DownloadDir) == "" {
		return fmt.Errorf("storage.download_dir is required")
	}
	if !strings.HasPrefix(c.Storage.DownloadPrefix, "/") {
		return fmt.Errorf("storage.download_prefix must start with /")
	}
	if q := c.Engine.AudioQuality; q < archive.MinAudioQuality || q > archive.MaxAudioQuality {
		return fmt.Errorf("engine.audio_quality must be in %d..%d", archive.MinAudioQuality, archive.MaxAudioQuality)
	}
	if c.Bridge.BufferSize <= 0 {
		return fmt.Errorf("bridge.buffer_size must be > 0")
	}
	if c.Broadcast.SendBuffer <= 0 {
		return fmt.Errorf("broadcast.send_buffer must be > 0")
	}
	if c.Broadcast.PingInterval <= 0 {
		return fmt.Errorf("broadcast.ping_interval must be > 0")
	}
	if c.Storage.GCSBucket != "" && c.Storage.MirrorDir != "" {
		return fmt.Errorf("storage.gcs_bucket and storage.mirror_dir are mutually exclusive")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("nats.subject must be set when nats.url is set")
	}
	return nil
}

// ScratchDir returns the engine working directory, defaulting to a hidden
// directory inside the download directory so finished files can be renamed
// into place. Hidden entries are ignored by the library scan.
func (c Config) ScratchDir() string {
	if c.Storage.ScratchDir != "" {
		return c.Storage.ScratchDir
	}
	return strings.TrimRight(c.Storage.DownloadDir, "/") + "/.scratch"
}
