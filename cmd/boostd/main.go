package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"smm_boost/internal/accounts"
	"smm_boost/internal/api"
	"smm_boost/internal/bot"
	"smm_boost/internal/clients"
	"smm_boost/internal/clients/llm"
	"smm_boost/internal/clients/rssapp"
	"smm_boost/internal/clients/smm"
	"smm_boost/internal/clients/snapshot"
	"smm_boost/internal/config"
	"smm_boost/internal/fetcher"
	"smm_boost/internal/history"
	"smm_boost/internal/poller"
	"smm_boost/internal/rates"
	"smm_boost/internal/scheduler"
	"smm_boost/internal/screenshot"
	"smm_boost/internal/storage"
	"smm_boost/internal/trigger"
)

const httpTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		fmt.Fprintln(os.Stderr, strings.TrimPrefix(err.Error(), config.ErrHelp.Error()+": "))
		return
	}
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.SlogLevel())

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	profiles, err := config.LoadProfiles(cfg.ScreenshotProfiles)
	if err != nil {
		log.Error("load screenshot profiles", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: httpTimeout}
	provider := clients.NewProvider(buildClients(cfg, httpClient, log))
	costs := rates.New(provider, log)

	bracketOpts := screenshot.DefaultOptions
	bracketOpts.BaseDelay = cfg.ScreenshotRetryDelay
	bracket := screenshot.New(store, provider, profiles, bracketOpts, log)
	var shots trigger.Capturer
	if cfg.ScreenshotEnabled {
		shots = bracket
	}

	exec := trigger.New(store, provider, costs, shots, log)
	hist := history.New(store, provider, shots, log)
	poll := poller.New(store, provider, exec, log)
	svc := accounts.New(store, provider, poll, costs, log)

	var (
		b      *bot.Bot
		sender scheduler.Sender
	)
	if cfg.TelegramBotToken != "" {
		b, err = bot.New(cfg.TelegramBotToken, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		sender = b
	}

	sched := scheduler.New(poll, sender, log, scheduler.Options{
		Interval:      cfg.PollInterval,
		ErrorCooldown: cfg.PollErrorCooldown,
		StopTimeout:   scheduler.DefaultOptions.StopTimeout,
		NotifyChatID:  cfg.OperatorChatID,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	if b != nil {
		b.Bind(bot.Deps{Accounts: svc, History: hist, Scheduler: sched})
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Run(ctx)
		}()
		log.Info("operator bot started")
	} else {
		log.Warn("telegram token not set, operator bot disabled")
	}

	var srv *http.Server
	if cfg.APIKey != "" {
		gin.SetMode(gin.ReleaseMode)
		h := api.NewHandler(ctx, api.Deps{
			Scheduler:   sched,
			Accounts:    svc,
			History:     hist,
			Screenshots: bracket,
			Catalog:     costs,
			Store:       store,
		}, log)
		srv = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           api.NewServer(h, cfg.APIKey),
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("api server", "error", err)
				cancel()
			}
		}()
		log.Info("operator api listening", "addr", cfg.ListenAddr)
	} else {
		log.Warn("api key not set, operator api disabled")
	}

	if err := sched.Start(ctx); err != nil {
		log.Error("start scheduler", "error", err)
		os.Exit(1)
	}
	log.Info("scheduler started", "interval", cfg.PollInterval)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-hup:
			reload(provider, bracket, log)
		}
	}

	log.Info("shutting down")
	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		log.Warn("stop scheduler", "error", err)
	}
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown api server", "error", err)
		}
		done()
	}
	hist.Wait()
	wg.Wait()
	log.Info("stopped")
}

// buildClients creates the collaborators the configuration enables.
func buildClients(cfg *config.Config, httpClient *http.Client, log *slog.Logger) clients.Set {
	set := clients.Set{Feeds: fetcher.New(httpClient)}
	if cfg.SMMAPIURL != "" && cfg.SMMAPIKey != "" {
		set.Orders = smm.New(httpClient, cfg.SMMAPIURL, cfg.SMMAPIKey)
	} else {
		log.Warn("smm panel not configured, orders are disabled")
	}
	if cfg.FlowiseURL != "" {
		set.Comments = llm.New(httpClient, cfg.FlowiseURL, cfg.FlowiseAPIKey)
	}
	if cfg.ScreenshotAPIURL != "" {
		set.Snapshots = snapshot.New(httpClient, cfg.ScreenshotAPIURL, cfg.GoLoginAPIKey, snapshot.DefaultOptions)
	}
	if cfg.RSSAppAPIKey != "" {
		set.Provisioner = rssapp.New(httpClient, cfg.RSSAppURL, cfg.RSSAppAPIKey, cfg.RSSAppAPISecret)
	} else {
		log.Warn("feed provisioning not configured, new accounts get no feed")
	}
	return set
}

// reload re-reads the configuration and swaps the collaborators and
// screenshot profiles. Storage, listeners and the poll interval keep their
// startup values.
func reload(provider *clients.Provider, bracket *screenshot.Bracket, log *slog.Logger) {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Error("reload config", "error", err)
		return
	}
	profiles, err := config.LoadProfiles(cfg.ScreenshotProfiles)
	if err != nil {
		log.Error("reload screenshot profiles", "error", err)
		return
	}
	provider.Reconfigure(buildClients(cfg, &http.Client{Timeout: httpTimeout}, log))
	bracket.SetProfiles(profiles)
	log.Info("configuration reloaded", "profiles", len(profiles))
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
