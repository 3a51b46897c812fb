package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Database:   Database{URL: "sqlite://test.db"},
		Pipeline:   Pipeline{Interval: time.Minute, CostPerToken: 0.000002},
		Summarizer: Summarizer{Provider: SummarizerOpenAI},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing database", func(c *Config) { c.Database.URL = "" }, true},
		{"negative cost", func(c *Config) { c.Pipeline.CostPerToken = -1 }, true},
		{"zero interval", func(c *Config) { c.Pipeline.Interval = 0 }, true},
		{"unknown provider", func(c *Config) { c.Summarizer.Provider = "bard" }, true},
		{"gemini provider", func(c *Config) { c.Summarizer.Provider = SummarizerGemini }, false},
		{"drive without interval", func(c *Config) {
			c.Drive.CredentialsPath = "creds.json"
			c.Drive.PollInterval = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDefaultsWorkers(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.Workers != 1 || cfg.Server.Workers != 1 {
		t.Errorf("workers = %d/%d, want 1/1", cfg.Pipeline.Workers, cfg.Server.Workers)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `
app:
  environment: production
database:
  url: sqlite:///meetings.db
pipeline:
  interval: 30s
  cost_per_token: 0.00001
slack:
  webhook_url: https://hooks.slack.test/abc
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("COST_PER_TOKEN", "0.00003")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.IsProduction() {
		t.Errorf("Environment = %q, want production", cfg.App.Environment)
	}
	if cfg.Database.URL != "sqlite:///meetings.db" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Pipeline.Interval != 30*time.Second {
		t.Errorf("Pipeline.Interval = %v, want 30s", cfg.Pipeline.Interval)
	}
	if cfg.Pipeline.CostPerToken != 0.00003 {
		t.Errorf("CostPerToken = %v, env should win over file", cfg.Pipeline.CostPerToken)
	}
	if cfg.Summarizer.OpenAIAPIKey != "sk-test" {
		t.Errorf("OpenAIAPIKey = %q", cfg.Summarizer.OpenAIAPIKey)
	}
	if cfg.Summarizer.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("OpenAIModel default = %q", cfg.Summarizer.OpenAIModel)
	}
	if cfg.Slack.WebhookURL != "https://hooks.slack.test/abc" {
		t.Errorf("Slack.WebhookURL = %q", cfg.Slack.WebhookURL)
	}
	if cfg.Confluence.Configured() {
		t.Error("Confluence should not be configured")
	}
	if cfg.Queue.Enabled() {
		t.Error("RabbitMQ should be disabled without a host")
	}
}

func TestLoadNestedStorageAndQueueKeys(t *testing.T) {
	dir := t.TempDir()
	content := `
minio:
  url: minio.local:9000
  bucket: transcripts
  secure: true
rabbitmq:
  exchange_name: meetings
  ingest_queue: ingest
  publish_events: true
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RABBITMQ_HOST", "mq.local")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Storage.UseMinIO() || cfg.Storage.MinIOURL != "minio.local:9000" {
		t.Errorf("Storage.MinIOURL = %q", cfg.Storage.MinIOURL)
	}
	if cfg.Storage.MinIOBucket != "transcripts" || !cfg.Storage.MinIOSecure {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if !cfg.Queue.Enabled() || cfg.Queue.Port != 5672 {
		t.Errorf("Queue host/port = %q/%d", cfg.Queue.Host, cfg.Queue.Port)
	}
	if cfg.Queue.ExchangeName != "meetings" || cfg.Queue.IngestQueue != "ingest" || !cfg.Queue.PublishEvent {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/meetmate")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://u:p@localhost/meetmate" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Pipeline.Interval != time.Minute {
		t.Errorf("Pipeline.Interval = %v, want default 1m", cfg.Pipeline.Interval)
	}
}

func TestSQLitePath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"sqlite://meetmate.db", "meetmate.db?" + sqlitePragmas},
		{"sqlite:///./meetmate.db", "./meetmate.db?" + sqlitePragmas},
		{"sqlite:////var/lib/meetmate.db", "/var/lib/meetmate.db?" + sqlitePragmas},
		{"sqlite://:memory:", ":memory:"},
		{"sqlite://x.db?cache=shared", "x.db?cache=shared&" + sqlitePragmas},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			if got := SQLitePath(tt.dsn); got != tt.want {
				t.Errorf("SQLitePath(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestNewDatabaseRejectsUnknownScheme(t *testing.T) {
	if _, err := NewDatabase("mysql://localhost/x", 1); err == nil {
		t.Error("expected error for mysql url")
	}
}
