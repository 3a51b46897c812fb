package config

import (
	"errors"
	"fmt"
	"github.com/spf13/viper"
	"meetmate-worker/constant"
	"strings"
	"time"
)

type Config struct {
	App         App
	Server      Server
	Database    Database
	Zoom        Zoom
	Drive       Drive
	Pipeline    Pipeline
	Transcriber Transcriber
	Summarizer  Summarizer
	Storage     Storage
	Queue       *RabbitMQ
	Slack       Slack
	Confluence  Confluence
}

type App struct {
	Environment string
	LogLevel    string
}

type Server struct {
	HttpPort string
	Workers  int
}

type Database struct {
	URL string
}

type Zoom struct {
	SigningSecret     string
	VerificationToken string
}

type Drive struct {
	CredentialsPath string
	MimeType        string
	PollInterval    time.Duration
}

func (d Drive) Enabled() bool {
	return d.CredentialsPath != ""
}

type Pipeline struct {
	Interval          time.Duration
	Workers           int
	CostPerToken      float64
	TranscribeTimeout time.Duration
	SummarizeTimeout  time.Duration
	PublishTimeout    time.Duration
}

type Transcriber struct {
	WhisperBinary   string
	Model           string
	Language        string
	Threads         int
	FFmpegBinary    string
	TempDir         string
	DownloadTimeout time.Duration
}

type Summarizer struct {
	Provider      string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string
}

const (
	SummarizerOpenAI = "openai"
	SummarizerGemini = "gemini"
)

// Storage selects where transcript artifacts live: a local directory, or a
// MinIO bucket when minio.url is set.
type Storage struct {
	AudioDir       string
	MinIOURL       string
	MinIOAccessID  string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOSecure    bool
}

func (s Storage) UseMinIO() bool {
	return s.MinIOURL != ""
}

type RabbitMQ struct {
	Host         string
	Port         int
	User         string
	Pass         string
	ExchangeName string
	Kind         string
	IngestQueue  string
	PublishEvent bool
}

func (r *RabbitMQ) Enabled() bool {
	return r != nil && r.Host != ""
}

type Slack struct {
	WebhookURL string
}

type Confluence struct {
	BaseURL  string
	User     string
	APIToken string
	Space    string
	ParentID string
}

// Configured reports whether any Confluence setting is present. A partially
// configured notifier is still wired so it can report what is missing.
func (c Confluence) Configured() bool {
	return c.BaseURL != "" || c.User != "" || c.APIToken != "" || c.Space != "" || c.ParentID != ""
}

// envBindings maps config keys to the environment variable names operators
// already use for this service.
var envBindings = map[string]string{
	"app.environment":            "ENVIRONMENT",
	"app.log_level":              "LOG_LEVEL",
	"server.port":                "PORT",
	"database.url":               "DATABASE_URL",
	"zoom.signing_secret":        "ZOOM_SIGNING_SECRET",
	"zoom.verification_token":    "ZOOM_VERIFICATION_TOKEN",
	"drive.credentials_path":     "GOOGLE_CREDENTIALS_PATH",
	"pipeline.cost_per_token":    "COST_PER_TOKEN",
	"transcriber.model":          "WHISPER_MODEL",
	"transcriber.whisper_binary": "WHISPER_BINARY",
	"transcriber.ffmpeg_binary":  "FFMPEG_BINARY",
	"summarizer.provider":        "SUMMARIZER_PROVIDER",
	"summarizer.openai_api_key":  "OPENAI_API_KEY",
	"summarizer.openai_model":    "OPENAI_MODEL",
	"summarizer.openai_base_url": "OPENAI_BASE_URL",
	"summarizer.gemini_api_key":  "GEMINI_API_KEY",
	"summarizer.gemini_model":    "GEMINI_MODEL",
	"storage.audio_dir":          "AUDIO_DIR",
	"minio.url":                  "MINIO_URL",
	"minio.access_id":            "MINIO_ACCESS_ID",
	"minio.secret_access_key":    "MINIO_SECRET_ACCESS_KEY",
	"minio.bucket":               "MINIO_BUCKET",
	"rabbitmq_host":              "RABBITMQ_HOST",
	"rabbitmq_port":              "RABBITMQ_PORT",
	"rabbitmq_user":              "RABBITMQ_USER",
	"rabbitmq_pass":              "RABBITMQ_PASS",
	"rabbitmq_kind":              "RABBITMQ_KIND",
	"slack.webhook_url":          "SLACK_WEBHOOK_URL",
	"confluence.base_url":        "CONFLUENCE_BASE_URL",
	"confluence.user":            "CONFLUENCE_USER",
	"confluence.api_token":       "CONFLUENCE_API_TOKEN",
	"confluence.space":           "CONFLUENCE_SPACE",
	"confluence.parent_id":       "CONFLUENCE_PARENT_ID",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", constant.EnvironmentDevelop.String())
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.workers", 1)
	v.SetDefault("database.url", "sqlite://meetmate.db")
	v.SetDefault("drive.mime_type", "video/mp4")
	v.SetDefault("drive.poll_interval", time.Minute)
	v.SetDefault("pipeline.interval", time.Minute)
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.cost_per_token", 0.000002)
	v.SetDefault("pipeline.transcribe_timeout", 30*time.Minute)
	v.SetDefault("pipeline.summarize_timeout", 2*time.Minute)
	v.SetDefault("pipeline.publish_timeout", 20*time.Second)
	v.SetDefault("transcriber.whisper_binary", "whisper-cli")
	v.SetDefault("transcriber.model", "models/ggml-tiny.en.bin")
	v.SetDefault("transcriber.language", "en")
	v.SetDefault("transcriber.threads", 4)
	v.SetDefault("transcriber.ffmpeg_binary", "ffmpeg")
	v.SetDefault("transcriber.download_timeout", 10*time.Minute)
	v.SetDefault("summarizer.provider", SummarizerOpenAI)
	v.SetDefault("summarizer.openai_model", "gpt-4o-mini")
	v.SetDefault("summarizer.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("summarizer.gemini_model", "gemini-2.5-flash")
	v.SetDefault("storage.audio_dir", "./audio_cache")
	v.SetDefault("minio.bucket", "meetmate")
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("rabbitmq_kind", "direct")
	v.SetDefault("rabbitmq.exchange_name", "meetmate_exchange")
	v.SetDefault("rabbitmq.ingest_queue", "recording_ingest_queue")
}

// Load reads config.yaml from path when present; environment variables
// always take precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			LogLevel:    v.GetString("app.log_level"),
		},
		Server: Server{
			HttpPort: v.GetString("server.port"),
			Workers:  v.GetInt("server.workers"),
		},
		Database: Database{
			URL: v.GetString("database.url"),
		},
		Zoom: Zoom{
			SigningSecret:     v.GetString("zoom.signing_secret"),
			VerificationToken: v.GetString("zoom.verification_token"),
		},
		Drive: Drive{
			CredentialsPath: v.GetString("drive.credentials_path"),
			MimeType:        v.GetString("drive.mime_type"),
			PollInterval:    v.GetDuration("drive.poll_interval"),
		},
		Pipeline: Pipeline{
			Interval:          v.GetDuration("pipeline.interval"),
			Workers:           v.GetInt("pipeline.workers"),
			CostPerToken:      v.GetFloat64("pipeline.cost_per_token"),
			TranscribeTimeout: v.GetDuration("pipeline.transcribe_timeout"),
			SummarizeTimeout:  v.GetDuration("pipeline.summarize_timeout"),
			PublishTimeout:    v.GetDuration("pipeline.publish_timeout"),
		},
		Transcriber: Transcriber{
			WhisperBinary:   v.GetString("transcriber.whisper_binary"),
			Model:           v.GetString("transcriber.model"),
			Language:        v.GetString("transcriber.language"),
			Threads:         v.GetInt("transcriber.threads"),
			FFmpegBinary:    v.GetString("transcriber.ffmpeg_binary"),
			TempDir:         v.GetString("transcriber.temp_dir"),
			DownloadTimeout: v.GetDuration("transcriber.download_timeout"),
		},
		Summarizer: Summarizer{
			Provider:      strings.ToLower(v.GetString("summarizer.provider")),
			OpenAIAPIKey:  v.GetString("summarizer.openai_api_key"),
			OpenAIModel:   v.GetString("summarizer.openai_model"),
			OpenAIBaseURL: v.GetString("summarizer.openai_base_url"),
			GeminiAPIKey:  v.GetString("summarizer.gemini_api_key"),
			GeminiModel:   v.GetString("summarizer.gemini_model"),
		},
		Storage: Storage{
			AudioDir:       v.GetString("storage.audio_dir"),
			MinIOURL:       v.GetString("minio.url"),
			MinIOAccessID:  v.GetString("minio.access_id"),
			MinIOSecretKey: v.GetString("minio.secret_access_key"),
			MinIOBucket:    v.GetString("minio.bucket"),
			MinIOSecure:    v.GetBool("minio.secure"),
		},
		Queue: &RabbitMQ{
			Host:         v.GetString("rabbitmq_host"),
			Port:         v.GetInt("rabbitmq_port"),
			User:         v.GetString("rabbitmq_user"),
			Pass:         v.GetString("rabbitmq_pass"),
			Kind:         v.GetString("rabbitmq_kind"),
			ExchangeName: v.GetString("rabbitmq.exchange_name"),
			IngestQueue:  v.GetString("rabbitmq.ingest_queue"),
			PublishEvent: v.GetBool("rabbitmq.publish_events"),
		},
		Slack: Slack{
			WebhookURL: v.GetString("slack.webhook_url"),
		},
		Confluence: Confluence{
			BaseURL:  v.GetString("confluence.base_url"),
			User:     v.GetString("confluence.user"),
			APIToken: v.GetString("confluence.api_token"),
			Space:    v.GetString("confluence.space"),
			ParentID: v.GetString("confluence.parent_id"),
		},
	}
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Pipeline.CostPerToken < 0 {
		return fmt.Errorf("pipeline.cost_per_token must not be negative")
	}
	if c.Pipeline.Interval <= 0 {
		return fmt.Errorf("pipeline.interval must be positive")
	}
	if c.Drive.Enabled() && c.Drive.PollInterval <= 0 {
		return fmt.Errorf("drive.poll_interval must be positive")
	}
	switch c.Summarizer.Provider {
	case SummarizerOpenAI, SummarizerGemini:
	default:
		return fmt.Errorf("unknown summarizer.provider %q", c.Summarizer.Provider)
	}

	if c.Pipeline.Workers < 1 {
		c.Pipeline.Workers = 1
	}
	if c.Server.Workers < 1 {
		c.Server.Workers = 1
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == constant.EnvironmentProduction.String()
}
