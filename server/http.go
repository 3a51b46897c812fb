package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"meetmate-worker/config"
	"meetmate-worker/constant"
	"meetmate-worker/errs"
	"meetmate-worker/handler"
	"meetmate-worker/pkg/rabbitmq"
	"meetmate-worker/service"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func RunHttp(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.IsProduction()).Send()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := NewApp(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to start")
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("error while closing resources")
		}
	}()

	go runPipeline(ctx, app.Runner, cfg.Pipeline.Interval)

	if cfg.Drive.Enabled() {
		lister, err := service.NewDriveLister(ctx, cfg.Drive.CredentialsPath, cfg.Drive.MimeType)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("drive polling disabled")
		} else {
			go runDrivePoll(ctx, service.NewDrivePoller(lister, app.Gateway), cfg.Drive.PollInterval)
		}
	}

	if conn := app.Conn(); conn != nil {
		deps := handler.ServiceDependencies{Gateway: app.Gateway}
		ingestConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, handler.IngestHandler)
		go func() {
			err := ingestConsumer.Consume(ctx, deps)
			if err != nil && !errors.Is(err, context.Canceled) {
				zerolog.Ctx(ctx).Error().Err(err).Msg("ingest consumer error")
			}
		}()
	}

	srv := http.Server{
		Handler:           newRouter(ctx, cfg, app.Gateway),
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("addr", srv.Addr).Msg("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Err(err).Str("env", cfg.App.Environment).Msg("http server stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("env", cfg.App.Environment).Msg("shutdown")
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
	return nil
}

func newRouter(ctx context.Context, cfg *config.Config, gateway service.Gateway) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(*zerolog.Ctx(ctx)))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "MeetMate API"})
	})
	addHealth(r)
	r.POST("/webhook/zoom", handler.NewZoomWebhook(cfg.Zoom, gateway).Handle)
	return r
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}

// requestLogger tags every request with an id and carries a child logger in
// the request context.
func requestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		logger := base.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// runPipeline runs a pass at startup and then on every tick.
func runPipeline(ctx context.Context, runner *service.Runner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := runner.RunOnce(ctx); err != nil {
			switch {
			case errors.Is(err, errs.ErrPassInProgress):
				zerolog.Ctx(ctx).Debug().Msg("previous pass still running")
			case errors.Is(err, context.Canceled):
			default:
				zerolog.Ctx(ctx).Error().Err(err).Msg("pipeline pass failed")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runDrivePoll(ctx context.Context, poller *service.DrivePoller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		created, err := poller.Poll(ctx)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("drive poll failed")
		} else if created > 0 {
			zerolog.Ctx(ctx).Info().Int("created", created).Msg("drive recordings ingested")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func SetupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.App.LogLevel != "" {
		if level, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
