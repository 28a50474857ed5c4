package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/formloom/formloom/internal/broadcast"
	"github.com/formloom/formloom/internal/config"
	"github.com/formloom/formloom/internal/creator"
	"github.com/formloom/formloom/internal/docfetch"
	"github.com/formloom/formloom/internal/generator"
	"github.com/formloom/formloom/internal/gforms"
	"github.com/formloom/formloom/internal/server"
	"github.com/formloom/formloom/internal/synthesizer"
	"github.com/formloom/formloom/internal/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting form service...")

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen, err := generator.NewGenerator(&cfg.GeminiEnvConfig, cfg.ClientTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init generator client")
	}

	docs, err := docfetch.NewClient(ctx, cfg.ClientTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init docs client")
	}

	forms, err := gforms.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init forms client")
	}

	logs := broadcast.NewRegistry(cfg.SessionIdleTimeout)
	logs.StartEvictor(ctx)

	c := creator.New(gen, docs, synthesizer.New(forms), logs)
	srv := server.New(cfg.ServerEnvConfig, c, logs)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received, stopping server")
		if err := srv.Shutdown(); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
		cancel()
	}()

	if err := srv.Listen(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}
