package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/alert"
	"github.com/hamed0406/pingbase/internal/config"
	"github.com/hamed0406/pingbase/internal/events"
	"github.com/hamed0406/pingbase/internal/httpapi"
	apimw "github.com/hamed0406/pingbase/internal/httpapi/middleware"
	"github.com/hamed0406/pingbase/internal/logging"
	"github.com/hamed0406/pingbase/internal/notify"
	"github.com/hamed0406/pingbase/internal/probe"
	"github.com/hamed0406/pingbase/internal/repo/backend"
	"github.com/hamed0406/pingbase/internal/scheduler"
	"github.com/hamed0406/pingbase/internal/tracker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stderr: cfg.LogStderr})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, kind, err := backend.Open(ctx, cfg.DatabaseURL, logger, cfg.Limits())
	if err != nil {
		logger.Fatal("store_open_failed", zap.String("backend", string(kind)), zap.Error(err))
	}
	defer store.Close()
	logger.Info("store_ready", zap.String("backend", string(kind)))

	var sink events.Sink = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		p := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer p.Close()
		sink = p
		logger.Info("events_enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, logger)
	if !mailer.Enabled() {
		logger.Warn("smtp_not_configured", zap.String("effect", "email alerts are logged, not sent"))
	}
	dispatcher := alert.NewDispatcher(logger, store, store, mailer, notify.NewWebhook(nil), notify.NewSlack(nil))
	trk := tracker.New(logger, store, dispatcher, tracker.WithEvents(sink))

	var prober probe.Prober = probe.NewHTTPProber()
	if cfg.RetryAttempts > 1 {
		prober = &probe.RetryProber{Inner: prober, Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
	}

	sched := scheduler.New(logger, store, prober, trk, scheduler.Config{
		Tick:        cfg.Tick,
		BatchSize:   cfg.BatchSize,
		SkipOverlap: cfg.SkipOverlappingTicks,
	})
	sched.Start(ctx)

	api := httpapi.NewServer(logger, store, sched)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}, cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		sched.Stop()
		trk.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown_complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown_grace_exceeded", zap.Duration("grace", cfg.ShutdownGrace))
	}
}
