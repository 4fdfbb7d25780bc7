package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
)

var ErrNoFrontend = errors.New("neither telegram token nor http address is configured")

type Config struct {
	BotToken                string        `env:"CALCBOT_TELEGRAM_TOKEN"`
	BotOffset               int           `env:"CALCBOT_TELEGRAM_OFFSET" envDefault:"20"`
	BotTimeout              int           `env:"CALCBOT_TELEGRAM_TIMEOUT" envDefault:"60"`
	HTTPAddr                string        `env:"CALCBOT_HTTP_ADDR"`
	HTTPReadTimeout         time.Duration `env:"CALCBOT_HTTP_READ_TIMEOUT" envDefault:"10s"`
	MemcachedTTLTimeout     time.Duration `env:"CALCBOT_MEMCACHED_TTL_TIMEOUT" envDefault:"20m"`
	MemcachedCleanupTimeout time.Duration `env:"CALCBOT_MEMCACHED_CLEANUP_TIMEOUT" envDefault:"1m"`
	ShutdownTimeout         time.Duration `env:"CALCBOT_SHUTDOWN_TIMEOUT" envDefault:"2m"`
	LogLevel                slog.Level    `env:"CALCBOT_LOG_LEVEL" envDefault:"INFO"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.BotToken == "" && cfg.HTTPAddr == "" {
		return nil, ErrNoFrontend
	}
	if cfg.MemcachedTTLTimeout <= 0 || cfg.MemcachedCleanupTimeout <= 0 {
		return nil, fmt.Errorf("memcached timeouts must be positive, got ttl %s and cleanup %s",
			cfg.MemcachedTTLTimeout, cfg.MemcachedCleanupTimeout)
	}
	return &cfg, nil
}

// frontend is a way of reaching the calculator: the telegram bot or the
// http server.
type frontend interface {
	Run() error
	Shutdown(ctx context.Context) error
}

func main() {
	config, err := LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.LogLevel}))
	slog.SetDefault(logger)

	frontends := map[string]frontend{}
	if config.BotToken != "" {
		bot, err := LoadBot(config, logger)
		if err != nil {
			logger.Error("failed to connect telegram", "error", err)
			os.Exit(1)
		}
		frontends["telegram bot"] = bot
	}
	if config.HTTPAddr != "" {
		frontends["http server"] = NewServer(config, logger)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for name, f := range frontends {
		f := f
		log := logger.With("frontend", name)
		go func() {
			log.Info("starting")
			if err := f.Run(); !errors.Is(err, ErrClosed) {
				log.Error("failed to start", "error", err)
			}
			select {
			case quit <- os.Interrupt:
			default:
			}
		}()
	}

	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for name, f := range frontends {
		f := f
		wg.Add(1)
		log := logger.With("frontend", name)
		go func() {
			defer wg.Done()
			log.Info("stopping")
			if err := f.Shutdown(ctx); err != nil && !errors.Is(err, ErrClosed) {
				log.Error("failed to graceful shutdown", "error", err)
				return
			}
			log.Info("stopped")
		}()
	}
	wg.Wait()
}
