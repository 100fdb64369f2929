package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trendbot/internal/api"
	"trendbot/internal/app"
	"trendbot/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRENDBOT_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	logger := a.Logger

	server := api.NewServer(ctx, a.Bot, a.Registry, a.Logs, a.Posts, api.Options{
		BotName:           cfg.Bot.Name,
		AdminUsername:     cfg.Server.AdminUsername,
		AdminPasswordHash: cfg.Server.AdminPasswordHash,
		TailLines:         cfg.Logs.TailLines,
		RedirectHTTPS:     cfg.Server.ForceHTTPS,
	}, logger)
	a.Logs.SetBroadcaster(server)

	if cfg.Server.Addr != "" {
		go func() {
			logger.Info("[HTTP] server starting", "addr", cfg.Server.Addr, "tls", cfg.Server.TLS())

			var err error
			if cfg.Server.TLS() {
				err = server.StartTLS(cfg.Server.Addr, cfg.Server.TLSCert, cfg.Server.TLSKey)
			} else {
				err = server.Start(cfg.Server.Addr)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("[HTTP] server error", "error", err)
			}
		}()
	}

	if cfg.Bot.AutoStart {
		a.Bot.Start(ctx)
	}

	logger.Info("[BOT] ready", "accounts", len(cfg.Accounts), "interval", cfg.Bot.Interval, "running", a.Bot.Running())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("[BOT] shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("[HTTP] shutdown", "error", err)
	}

	if a.Bot.Stop() {
		select {
		case <-a.Bot.Done():
		case <-shutdownCtx.Done():
			logger.Warn("[BOT] cycle still running at exit")
		}
	}
}
