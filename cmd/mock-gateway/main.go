package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/campus-wallet/internal/logging"
)

type config struct {
	Port          string        `env:"PORT" envDefault:"8081"`
	SecretKey     string        `env:"GATEWAY_SECRET_KEY"`
	WebhookURL    string        `env:"WEBHOOK_CALLBACK_URL" envDefault:"http://app:8080/api/v1/webhooks/gateway"`
	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	SettleAfter   time.Duration `env:"SETTLE_AFTER" envDefault:"3s"`
	FeeRate       string        `env:"FEE_RATE" envDefault:"0.014"`
	MaxAmount     string        `env:"MAX_AMOUNT" envDefault:"1000000"`
	AppEnv        string        `env:"APP_ENV" envDefault:"development"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	Timeout       time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("mock-gateway", cfg.LogLevel, cfg.AppEnv)

	srv, err := newServer(cfg)
	if err != nil {
		slog.Error("invalid mock gateway config", "error", err)
		os.Exit(1)
	}

	slog.Info("mock gateway started", "addr", ":"+cfg.Port, "settle_after", cfg.SettleAfter)
	if err := http.ListenAndServe(":"+cfg.Port, srv.routes()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
