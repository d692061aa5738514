// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/application"
	"telegram-ai-stars/internal/config"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/domain/ports/repository"
	aiAdapters "telegram-ai-stars/internal/infra/adapters/ai"
	tele "telegram-ai-stars/internal/infra/adapters/telegram"
	"telegram-ai-stars/internal/infra/api"
	"telegram-ai-stars/internal/infra/db/jsonfile"
	pg "telegram-ai-stars/internal/infra/db/postgres"
	"telegram-ai-stars/internal/infra/db/sqlite"
	"telegram-ai-stars/internal/infra/i18n"
	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/infra/metrics"
	red "telegram-ai-stars/internal/infra/redis"
	"telegram-ai-stars/internal/infra/sched"
	"telegram-ai-stars/internal/infra/security"
	"telegram-ai-stars/internal/infra/store"
	"telegram-ai-stars/internal/infra/worker"
	"telegram-ai-stars/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

// poller is implemented by the real Telegram adapter. The noop adapter
// has no inbound side.
type poller interface {
	SetHandler(application.EventHandler)
	StartPolling(ctx context.Context) error
	StopPolling()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Redis (optional unless it backs the store) ----
	var (
		redisClient *red.Client
		rateLimiter tele.Limiter
		locker      sched.Locker
	)
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer c.Close()
		redisClient = c
		rateLimiter = red.NewRateLimiter(c, cfg.Redis.RateLimit, cfg.Redis.Window)
		locker = red.NewLocker(c)
	}

	// ---- Document backend ----
	backend, err := openBackend(ctx, cfg.Storage, redisClient)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer backend.Close()
	if cfg.Storage.EncryptionKey != "" {
		enc, err := security.NewEncryptionService(cfg.Storage.EncryptionKey)
		if err != nil {
			return fmt.Errorf("storage encryption: %w", err)
		}
		backend = security.NewEncryptedDocuments(backend, enc)
	}

	st := store.New(backend, store.Options{
		Backend:    cfg.Storage.Driver,
		AdminID:    cfg.Bot.AdminID,
		AdminStars: cfg.Economy.AdminStars,
		Now:        time.Now,
	}, logger)
	if err := st.LoadAll(ctx); err != nil {
		return fmt.Errorf("load documents: %w", err)
	}

	// ---- Locales ----
	bundle, err := i18n.NewBundle(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	// ---- AI ----
	text, images, err := buildAI(ctx, cfg.AI, cfg.Runtime.Dev, logger)
	if err != nil {
		return err
	}

	// ---- Telegram ----
	var (
		bot       adapter.TelegramBotAdapter
		member    adapter.MembershipChecker
		inbound   poller
		botHandle string
	)
	if strings.EqualFold(cfg.Bot.Mode, "noop") {
		nb := tele.NewNoopBotAdapter(logger)
		bot, member = nb, nb
		botHandle = cfg.Bot.Username
	} else {
		if !strings.EqualFold(cfg.Bot.Mode, "polling") {
			logger.Warn().Str("mode", cfg.Bot.Mode).Msg("bot mode not implemented; falling back to polling")
		}
		rb, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, cfg.Access.Channel, rateLimiter, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot, member, inbound = rb, rb, rb
		botHandle = rb.Username()
		if botHandle == "" {
			botHandle = cfg.Bot.Username
		}
	}

	// ---- Worker pool (broadcasts) ----
	pool := worker.NewPool(cfg.Bot.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	// ---- Use cases ----
	clock := usecase.Clock(time.Now)
	catalog := model.DefaultCatalog()

	userUC := usecase.NewUserUseCase(st, st.Stats(), catalog, cfg.Economy, bundle.Languages(), cfg.Bot.AdminID, clock, logger)
	economyUC := usecase.NewEconomyUseCase(st, st.Stats(), st, catalog, cfg.Economy, clock, logger)
	sessionUC := usecase.NewSessionUseCase(st, st.Templates(), st, catalog, cfg.Economy, bundle,
		usecase.SessionOptions{BotUsername: botHandle, Channel: cfg.Access.Channel}, clock, logger)
	generationUC := usecase.NewGenerationUseCase(st, st.Templates(), st, st.Stats(), text, images, catalog, cfg.Economy,
		usecase.RetryPolicy{MaxAttempts: cfg.AI.MaxRetries, BaseDelay: cfg.AI.RetryDelay}, clock, logger)
	accessUC := usecase.NewAccessUseCase(st, member, economyUC,
		usecase.AccessOptions{AdminID: cfg.Bot.AdminID, Latch: cfg.Access.Latch, Channel: cfg.Access.Channel}, logger)
	promoUC := usecase.NewPromoUseCase(st.Promos(), st.Stats(), clock, logger)
	templateUC := usecase.NewTemplateUseCase(st.Templates(), clock, logger)
	adminUC := usecase.NewAdminUseCase(st, usecase.AdminOptions{
		AdminID:      cfg.Bot.AdminID,
		PasswordHash: cfg.Admin.PasswordHash,
		SessionTTL:   cfg.Admin.SessionTTL,
	}, clock, logger)
	broadcastUC := usecase.NewBroadcastUseCase(st, bot, pool, cfg.Bot.AdminID, 25, logger)
	statsUC := usecase.NewStatsUseCase(st, st.Stats(), st, clock, logger)

	// ---- Facade ----
	facade := application.NewBotFacade(bot, bundle, catalog, cfg.Bot.AdminID, cfg.Economy.MaxMessageLength, logger)
	facade.Users = userUC
	facade.Economy = economyUC
	facade.Sessions = sessionUC
	facade.Generation = generationUC
	facade.Access = accessUC
	facade.Promos = promoUC
	facade.Templates = templateUC
	facade.Admin = adminUC
	facade.Broadcast = broadcastUC
	facade.Stats = statsUC

	// ---- Background loops ----
	autosave := sched.NewAutosaveWorker(cfg.Scheduler.AutosaveInterval, st, locker, logger)
	group := sched.NewGroup(logger,
		autosave,
		sched.NewSweepWorker(cfg.Scheduler.SweepInterval, cfg.Scheduler.IdleAfter, userUC, logger),
		sched.NewKeepAliveWorker(cfg.Scheduler.KeepAliveInterval, healthURL(cfg.HTTP.PublicURL), &http.Client{Timeout: 10 * time.Second}, logger),
	)
	group.Start(ctx)

	// ---- HTTP: liveness, metrics, admin API ----
	srv := api.NewServer(api.Options{
		Port:      cfg.HTTP.Port,
		JWTSecret: cfg.Admin.JWTSecret,
		TokenTTL:  cfg.Admin.TokenTTL,
	}, api.Deps{
		Admin:     adminUC,
		Stats:     statsUC,
		Promos:    promoUC,
		Templates: templateUC,
		Broadcast: broadcastUC,
	}, logger)
	errc := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	// ---- Telegram polling ----
	pollDone := make(chan struct{})
	if inbound != nil {
		inbound.SetHandler(facade)
		go func() {
			defer close(pollDone)
			if err := inbound.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("telegram polling: %w", err)
			}
		}()
	} else {
		close(pollDone)
	}
	logger.Info().Str("bot", botHandle).Str("storage", cfg.Storage.Driver).Msg("bot started")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-sigc:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case runErr = <-errc:
		logger.Error().Err(runErr).Msg("component failed, shutting down")
	}

	if inbound != nil {
		inbound.StopPolling()
	}
	select {
	case <-pollDone:
	case <-time.After(cfg.Scheduler.ShutdownTimeout):
		logger.Warn().Dur("timeout", cfg.Scheduler.ShutdownTimeout).Msg("update handlers still running, flushing anyway")
	}
	group.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := autosave.FinalFlush(cfg.Scheduler.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("final flush failed")
		return errors.Join(runErr, err)
	}
	logger.Info().Msg("state flushed, bye")
	return runErr
}

func openBackend(ctx context.Context, cfg config.StorageConfig, redisClient *red.Client) (repository.DocumentStore, error) {
	switch cfg.Driver {
	case "json":
		return jsonfile.New(cfg.Dir)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		return sqlite.New(cfg.SQLitePath)
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return pg.NewDocumentStore(ctx, pool)
	case "redis":
		if redisClient == nil {
			return nil, errors.New("redis driver needs redis.url")
		}
		return red.NewDocumentStore(redisClient, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// buildAI assembles the text chain (configured provider first, the rest as
// fallbacks) and the image generator behind one concurrency limit.
func buildAI(ctx context.Context, cfg config.AIConfig, dev bool, logger *zerolog.Logger) (adapter.TextGenerator, adapter.ImageGenerator, error) {
	if dev {
		noop := aiAdapters.NewNoopAIAdapter(logger)
		return noop, noop, nil
	}
	polli := aiAdapters.NewPollinationsAdapter(cfg.TextURL, cfg.ImageURL, cfg.PrefetchImages, cfg.Timeout, aiAdapters.NewTiktokenCounter())
	byProvider := map[string]adapter.TextGenerator{"pollinations": polli}
	if cfg.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("openai adapter: %w", err)
		}
		byProvider["openai"] = oa
	}
	if cfg.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.GeminiModel, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini adapter: %w", err)
		}
		byProvider["gemini"] = gm
	}
	if _, ok := byProvider[cfg.TextProvider]; !ok {
		logger.Warn().Str("provider", cfg.TextProvider).Msg("text provider not configured; using pollinations")
		cfg.TextProvider = "pollinations"
	}
	multi := aiAdapters.NewMultiAIAdapter(cfg.TextProvider, []string{"pollinations", "openai", "gemini"}, byProvider, logger)
	logger.Info().Strs("providers", multi.Providers()).Msg("AI text chain ready")

	text, images := aiAdapters.NewLimitedAI(multi, polli, cfg.ConcurrentLimit)
	return text, images, nil
}

func healthURL(public string) string {
	public = strings.TrimRight(strings.TrimSpace(public), "/")
	if public == "" {
		return ""
	}
	return public + "/health"
}
