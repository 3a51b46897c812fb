package server

import (
	"context"
	"errors"
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"meetmate-worker/config"
	"meetmate-worker/constant"
	"meetmate-worker/notifier"
	"meetmate-worker/pkg/executor"
	"meetmate-worker/pkg/rabbitmq"
	"meetmate-worker/repository"
	"meetmate-worker/service"
	"net/http"
	"time"
)

// App holds the wired components shared by the server and the one-shot
// commands.
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Repo    repository.Repository
	Gateway service.Gateway
	Store   service.TranscriptStore
	Runner  *service.Runner

	conn      *amqp.Connection
	publisher *rabbitmq.Publisher
}

// NewDatabase opens and migrates the configured database.
func NewDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, repository.Repository, error) {
	level := logger.Warn
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		level = logger.Info
	}

	db, err := config.NewDatabase(cfg.Database.URL, level)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	repo := repository.NewRepo(db)
	if err := repo.AutoMigrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, repo, nil
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	db, repo, err := NewDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{
		Config:  cfg,
		DB:      db,
		Repo:    repo,
		Gateway: service.NewGateway(repo),
	}

	if cfg.Storage.UseMinIO() {
		client, err := config.NewMinIOClient(ctx, cfg.Storage)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		app.Store = service.NewMinIOTranscriptStore(client, cfg.Storage.MinIOBucket)
	} else {
		store, err := service.NewFileTranscriptStore(cfg.Storage.AudioDir)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("prepare transcript directory: %w", err)
		}
		app.Store = store
	}

	if cfg.Queue.Enabled() {
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("RabbitMQ unavailable, queue features disabled")
		} else {
			app.conn = conn
		}
	}

	httpClient := &http.Client{Timeout: cfg.Transcriber.DownloadTimeout}
	apiClient := &http.Client{Timeout: time.Minute}

	transcriber := service.NewWhisperTranscriber(cfg.Transcriber, executor.New(), httpClient)
	notifiers, err := app.notifiers(ctx, apiClient)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Runner = service.NewRunner(repo, transcriber, app.Store, newSummarizer(cfg.Summarizer, apiClient), notifiers, service.RunnerConfig{
		CostPerToken:      cfg.Pipeline.CostPerToken,
		Workers:           cfg.Pipeline.Workers,
		TranscribeTimeout: cfg.Pipeline.TranscribeTimeout,
		SummarizeTimeout:  cfg.Pipeline.SummarizeTimeout,
		PublishTimeout:    cfg.Pipeline.PublishTimeout,
	})

	return app, nil
}

func newSummarizer(cfg config.Summarizer, client service.HTTPDoer) service.Summarizer {
	if cfg.Provider == config.SummarizerGemini {
		return service.NewGeminiSummarizer(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	return service.NewOpenAISummarizer(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, client)
}

// notifiers wires every channel that has at least some configuration; a
// partially configured one reports what is missing on each attempt.
func (a *App) notifiers(ctx context.Context, client notifier.HTTPDoer) ([]notifier.Notifier, error) {
	var out []notifier.Notifier
	if a.Config.Slack.WebhookURL != "" {
		out = append(out, notifier.NewSlack(a.Config.Slack.WebhookURL, client))
	}
	if a.Config.Confluence.Configured() {
		out = append(out, notifier.NewConfluence(a.Config.Confluence, client, a.Store))
	}
	if a.Config.Queue.Enabled() && a.Config.Queue.PublishEvent && a.conn != nil {
		pub, err := rabbitmq.NewPublisher(a.conn, a.Config.Queue)
		if err != nil {
			return nil, fmt.Errorf("open publisher: %w", err)
		}
		a.publisher = pub
		out = append(out, notifier.NewQueue(pub))
	}

	names := make([]string, 0, len(out))
	for _, n := range out {
		names = append(names, n.Name())
	}
	zerolog.Ctx(ctx).Info().Strs("notifiers", names).Msg("notifiers configured")
	return out, nil
}

// Conn is the RabbitMQ connection, nil when the queue is not configured or
// unreachable.
func (a *App) Conn() *amqp.Connection {
	return a.conn
}

func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.conn != nil && !a.conn.IsClosed() {
		errs = append(errs, a.conn.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
