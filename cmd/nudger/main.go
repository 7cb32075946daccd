package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"coach-nudge-bot/internal/adapters/repo"
	"coach-nudge-bot/internal/adapters/slack"
	"coach-nudge-bot/internal/domain"
	"coach-nudge-bot/internal/infra/cache"
	"coach-nudge-bot/internal/infra/config"
	"coach-nudge-bot/internal/infra/db"
	httpinfra "coach-nudge-bot/internal/infra/http"
	"coach-nudge-bot/internal/infra/log"
	"coach-nudge-bot/internal/infra/metrics"
	"coach-nudge-bot/internal/usecase/nudge"
	"coach-nudge-bot/internal/usecase/reconcile"
	"coach-nudge-bot/internal/usecase/workspace"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "nudger")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("nudger: нет подключения к БД")
	}
	defer pool.Close()

	var tokenCache domain.Cache
	if cfg.RedisAddr != "" {
		tokenCache = cache.NewRedis(cfg.RedisAddr)
	}

	repoAdapter := repo.NewPostgres(pool)
	tokenResolver := workspace.NewResolver(repoAdapter, tokenCache)
	slackClient := slack.NewClient(slack.Config{BaseURL: cfg.Slack.BaseURL, Timeout: cfg.Slack.Timeout})

	nudgeService := nudge.NewService(
		repoAdapter, repoAdapter, repoAdapter, repoAdapter, repoAdapter,
		tokenResolver, slackClient,
		logger.With().Str("component", "nudge").Logger(),
		nudge.Config{
			Workers:         cfg.Nudge.Workers,
			MaxDigestTasks:  cfg.Nudge.MaxDigestTasks,
			WindowTolerance: cfg.Nudge.WindowTolerance,
			SessionLinkBase: cfg.Nudge.SessionLinkBase,
		},
	)
	reconcileService := reconcile.NewService(
		repoAdapter, repoAdapter, repoAdapter, repoAdapter, repoAdapter,
		tokenResolver, slackClient,
		logger.With().Str("component", "reconcile").Logger(),
		reconcile.Config{
			MaxDigestTasks:  cfg.Nudge.MaxDigestTasks,
			SessionLinkBase: cfg.Nudge.SessionLinkBase,
		},
	)

	runTick := func(trigger string) (nudge.RunReport, error) {
		runID := uuid.NewString()
		runLogger := logger.With().Str("run_id", runID).Str("trigger", trigger).Logger()
		runLogger.Info().Msg("тик рассылки запущен")
		report, err := nudgeService.Run(ctx, time.Now().UTC())
		if err != nil {
			runLogger.Error().Err(err).Msg("тик рассылки завершился фатально")
			return report, err
		}
		runLogger.Info().Int64("duration_ms", report.DurationMS).Msg("тик рассылки завершён")
		return report, nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Nudge.CronSpec, func() { _, _ = runTick("cron") }); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Nudge.CronSpec).Msg("некорректное cron-выражение")
	}
	scheduler.Start()
	defer scheduler.Stop()

	interactions := slack.NewInteractionHandler(
		slack.NewVerifier(cfg.Slack.SigningSecret),
		reconcileService,
		logger.With().Str("component", "interactions").Logger(),
	)

	server := httpinfra.NewServer(logger)
	server.Router.Post("/run", func(w http.ResponseWriter, r *http.Request) {
		report, err := runTick("manual")
		if err != nil {
			payload := struct {
				nudge.RunReport
				Error string `json:"error"`
			}{report, err.Error()}
			httpinfra.WriteJSON(w, http.StatusInternalServerError, payload)
			return
		}
		httpinfra.WriteJSON(w, http.StatusOK, report)
	})
	server.Router.Method(http.MethodPost, "/slack/interactions", interactions)
	server.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка nudger")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
