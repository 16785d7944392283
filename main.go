package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cmonreports/internal/api"
	"cmonreports/internal/browser"
	"cmonreports/internal/complaint"
	"cmonreports/internal/config"
	"cmonreports/internal/health"
	"cmonreports/internal/logging"
	"cmonreports/internal/refresh"
	"cmonreports/internal/summary"
	"cmonreports/internal/telegram"
	"cmonreports/internal/translate"
)

func main() {
	logging.Info().Msg("🚀 Starting CMON reports service...")

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("❌ Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	logging.Info().
		Str("api", cfg.APIBaseURL).
		Str("transport", cfg.Transport).
		Dur("interval", cfg.RefreshInterval).
		Int("page_size", cfg.PageSize).
		Int("max_pages", cfg.MaxPages).
		Msg("✓ Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := api.NewHTTPClient(cfg.HTTPTimeout, cfg.HTTPMaxConns)
	api.SetHTTPClient(httpClient)

	transport, closeTransport, err := newTransport(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("❌ Failed to create transport")
	}
	defer closeTransport()

	guarded := api.NewBreaker(transport, api.BreakerSettings{
		Name:         "admin-api",
		FailureRatio: cfg.BreakerFailureRatio,
		MinRequests:  uint32(cfg.BreakerMinRequests),
		OpenTimeout:  cfg.BreakerOpenTimeout,
	})

	collector := complaint.NewCollector(complaint.NewPageFetcher(guarded, cfg.ComplaintsPath), cfg.Sort)
	stats := summary.NewFetcher(guarded, cfg.UserStatsPath)

	scheduler := refresh.NewScheduler(collector, stats, refresh.Options{
		WindowDays: cfg.WindowDays,
		PageSize:   cfg.PageSize,
		MaxPages:   cfg.MaxPages,
		Interval:   cfg.RefreshInterval,
	})

	translator, err := translate.NewTranslator(ctx, cfg.TranslateAPIKey, cfg.InsightLanguage)
	if err != nil {
		logging.Warn().Err(err).Msg("⚠️  Insight translation disabled")
		translator = nil
	}
	defer translator.Close()

	monitor := health.NewMonitor()
	n := newNotifier(
		monitor,
		telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.DebugMode),
		translator,
		cfg.AlertAfterFailures,
	)
	scheduler.OnApplied(n.applied)
	scheduler.OnFailure(n.failed)

	router := health.NewRouter(monitor, scheduler, health.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RefetchLimit:   cfg.RefetchRateLimit,
		RefetchWindow:  time.Minute,
	})
	server := health.StartServer(router, cfg.HealthCheckPort)

	logging.Info().Msg("═══════════════════════════════════════════════════════════")
	scheduler.Serve(ctx)

	logging.Info().Msg("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("⚠️  HTTP server shutdown error")
	}
	n.wait(shutdownCtx)
	logging.Info().Msg("✅ Shutdown complete")
}

// newTransport builds the admin API transport selected by TRANSPORT and a
// function releasing its resources.
func newTransport(cfg *config.Config) (api.Getter, func(), error) {
	if cfg.Transport == config.TransportBrowser {
		logging.Info().Str("profile", cfg.BrowserUserDataDir).Msg("📋 Initializing browser context...")
		holder := browser.NewContextHolder(browser.Options{
			UserDataDir: cfg.BrowserUserDataDir,
			Headless:    cfg.BrowserHeadless,
		})
		t, err := browser.NewTransport(holder, cfg.APIBaseURL)
		if err != nil {
			holder.Cancel()
			return nil, nil, err
		}
		return t, holder.Cancel, nil
	}

	return api.NewClient(cfg.APIBaseURL, cfg.APIToken, api.GetHTTPClient()), func() {}, nil
}
