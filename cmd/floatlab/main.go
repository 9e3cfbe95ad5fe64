package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/floatlab/internal/api"
	"github.com/user/floatlab/internal/config"
	"github.com/user/floatlab/internal/db"
	"github.com/user/floatlab/internal/hub"
	"github.com/user/floatlab/internal/server"
	"github.com/user/floatlab/internal/session"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	h := hub.New(cfg.Token)
	go h.Run(ctx)

	manager := session.NewManager(database.SQL(), h, cfg.GatewayURL, cfg.KernelName, cfg.GatewayToken)
	manager.Start(ctx)

	router := api.NewRouter(database.SQL(), manager, cfg.Token)
	srv, err := server.New(cfg, h, router)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	if cfg.PrintToken {
		fmt.Printf("\nfloatlab running at http://localhost:%d?token=%s\n\n", cfg.Port, cfg.Token)
	} else {
		fmt.Printf("\nfloatlab running at http://localhost:%d\n\n", cfg.Port)
	}

	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	manager.CloseAll(context.Background())
}
