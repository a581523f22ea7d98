package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shehryarbajwa/campaign-engine/internal/api"
	"github.com/shehryarbajwa/campaign-engine/internal/browser"
	"github.com/shehryarbajwa/campaign-engine/internal/clients"
	"github.com/shehryarbajwa/campaign-engine/internal/config"
	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/pipeline"
	"github.com/shehryarbajwa/campaign-engine/internal/proxy"
	"github.com/shehryarbajwa/campaign-engine/internal/queue"
	"github.com/shehryarbajwa/campaign-engine/internal/ratelimit"
	"github.com/shehryarbajwa/campaign-engine/internal/store"
	"github.com/shehryarbajwa/campaign-engine/internal/timing"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Init(cfg.LogLevel)
	log := logging.WithComponent("Main")
	log.Info().Msg("starting campaign engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to redis")
	}
	defer st.Close()
	log.Info().Str("addr", cfg.RedisAddr).Msg("durable store connected")

	q := queue.New(st)

	validator := proxy.NewValidator(cfg.ProxyValidateTimeout, cfg.ProxyValidateConcurrency, cfg.ProxyValidateRetries)
	proxies := proxy.NewPool(st, validator, proxy.DefaultSources(), proxy.PoolOptions{
		MinWorking:      cfg.ProxyMinWorking,
		MaxAge:          cfg.ProxyMaxAge,
		ScrapeDelay:     cfg.ProxyScrapeDelay,
		RefreshInterval: cfg.ProxyRefreshInterval,
	}, nil)
	if err := proxies.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("restoring proxy working set, starting empty")
	}
	go proxies.Run(ctx)

	launcher, err := browser.NewDockerLauncher()
	if err != nil {
		log.Fatal().Err(err).Msg("creating docker launcher")
	}
	pool := browser.NewPool(launcher, browser.NewFingerprintGenerator(nil),
		cfg.MaxBrowsers, cfg.MaxContextsPerBrowser)

	var automation *clients.Automation
	if cfg.UseBrowserService {
		automation = clients.NewAutomation(cfg.AutomationURL, 0)
	}

	var auth browser.PlatformAuth
	if automation != nil {
		auth = automation
	}
	sessions := browser.NewSessionManager(pool, st, proxies, auth, browser.SessionConfig{
		IdleTimeout:         cfg.SessionIdleTimeout,
		MaxAge:              cfg.SessionMaxAge,
		HealthCheckInterval: cfg.HealthCheckInterval,
	})
	go sessions.Run(ctx)

	apiClient := clients.NewAPI(cfg.APIBaseURL, 0)

	var scorer pipeline.Scorer
	if cfg.UseMLService {
		scorer = clients.NewML(cfg.MLServiceURL, 0)
	}
	var generator pipeline.Generator
	if cfg.UseLLMService {
		generator = clients.NewLLM(cfg.LLMServiceURL, cfg.LLMAPIKey, 0)
	}
	var sender pipeline.Sender
	var source pipeline.ProfileSource
	var sessionProv pipeline.SessionProvider
	if automation != nil {
		sender = automation
		sessionProv = sessions
		source = pipeline.NewBrowserSource(automation, sessions)
	} else {
		source = pipeline.NewStubSource(time.Now().UnixNano())
	}

	searchLimiter := ratelimit.NewLimiter(cfg.PlatformMinInterval, 1)

	engagement := pipeline.NewEngagement(q, apiClient, apiClient, apiClient, generator, sender, sessionProv,
		pipeline.EngagementConfig{
			DailyMessageCap: cfg.DailyMessageCap,
			SendDelay:       cfg.MessageSendDelay,
			LiveDelivery:    automation != nil,
		})
	engagement.UsePacer(timing.NewEngine(nil), timing.DefaultProfile())

	runner := pipeline.NewRunner(q)
	runner.Register(pipeline.StageAcquisition, pipeline.NewAcquisition(q, source, apiClient, searchLimiter).Handle)
	runner.Register(pipeline.StageFiltering, pipeline.NewFiltering(q, apiClient, apiClient, scorer, cfg.ChunkSize).Handle)
	runner.Register(pipeline.StageResearch, pipeline.NewResearch(q, apiClient, cfg.ChunkSize).Handle)
	runner.Register(pipeline.StageEngagement, engagement.Handle)
	runner.Register(pipeline.StageTracking, pipeline.NewTracking(apiClient, apiClient, sender).Handle)
	go runner.Run(ctx)
	log.Info().Msg("pipeline workers running")

	handler := api.NewHandler(q, sessions, pool, proxies)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler.SetupRoutes(ratelimit.NewHourlyLimiter(100, 10)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("operations API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	pool.Shutdown(shutdownCtx)

	log.Info().Msg("stopped cleanly")
}
