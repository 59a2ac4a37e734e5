package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/crptomonkeys/monKey-matching/internal/api"
	"github.com/crptomonkeys/monKey-matching/internal/config"
	"github.com/crptomonkeys/monKey-matching/internal/eventlog"
	"github.com/crptomonkeys/monKey-matching/internal/freeze"
	"github.com/crptomonkeys/monKey-matching/internal/ledger"
	"github.com/crptomonkeys/monKey-matching/internal/metrics"
	"github.com/crptomonkeys/monKey-matching/internal/session"
	"github.com/crptomonkeys/monKey-matching/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	db, err := store.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logrus.Fatalf("failed to migrate store: %v", err)
	}

	tokens := ledger.NewClient(cfg.LedgerURL)
	defer tokens.Close()

	registry := prometheus.NewRegistry()
	collection := metrics.New(registry)

	controller := session.NewController(
		db,
		freeze.NewManager(db, cfg.FreezeDuration),
		tokens,
		eventlog.New(),
		collection,
		api.ContextAuthorizer{},
		session.Params{
			Salt:                 cfg.Salt,
			RegenerationCooldown: cfg.RegenerationCooldown,
			NewGameBase:          cfg.NewGameBase,
			MintOffset:           cfg.MintOffset,
			MaxMint:              cfg.MaxMint,
			RewardReset:          cfg.RewardReset,
			RewardCap:            cfg.RewardCap,
			RewardMemo:           cfg.RewardMemo,
			RewardAccount:        cfg.RewardAccount,
		},
		nil,
	)

	server := api.NewServer(db, controller, registry, cfg.AuthSecret, cfg.AdminToken)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Routes(),
	}

	go func() {
		logrus.Infof("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logrus.Info("shutting down")
	httpServer.Close()
}
