package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"useradmin/internal/config"
	"useradmin/internal/db"
	httpserver "useradmin/internal/http"
	"useradmin/internal/logger"
	"useradmin/internal/models"
	"useradmin/internal/seed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting", zap.Stringer("config", cfg))
	if cfg.UsesDevSecret() {
		log.Warn("JWT_SECRET not set, using the development secret")
	}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DSN, log)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gdb, models.All()...); err != nil {
		return err
	}
	if cfg.SeedOnStart {
		opts := seed.Options{AdminUsername: cfg.AdminUsername, AdminPassword: cfg.AdminPassword}
		if err := seed.FirstSetup(gdb, opts, log); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	r, err := httpserver.NewRouter(httpserver.Options{
		DB:            gdb,
		Log:           log,
		JWTSecret:     cfg.JWTSecret,
		TokenTTL:      cfg.TokenTTL,
		SecureCookies: cfg.SecureCookies,
	})
	if err != nil {
		return err
	}

	log.Info("server listening", zap.String("port", cfg.AppPort))
	return r.Run(fmt.Sprintf(":%s", cfg.AppPort))
}
