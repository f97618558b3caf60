package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/projectpolygon/hypercube-go/internal/config"
	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/master"
)

func main() {
	jobSpecPath := flag.String("job", "job.json", "path to the bootstrap job document (job info + initial tasks)")
	configPath := flag.String("config", "", "directory to search for config.yaml")
	flag.Parse()

	cfg, err := config.LoadMaster(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting coordinator...")

	job, tasks, err := master.LoadJobSpec(*jobSpecPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load job spec")
	}

	coord := master.NewCoordinator(cfg, job)
	if err := coord.LoadTasks(tasks); err != nil {
		log.Fatal().Err(err).Msg("failed to load tasks")
	}
	log.Info().Int("job_id", job.JobID).Int("tasks", len(tasks)).Msg("job loaded")

	server := master.NewServer(cfg, coord)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	progressTicker := time.NewTicker(10 * time.Second)
	defer progressTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-progressTicker.C:
				log.Info().Msg(coord.Status.Render())
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down coordinator...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if err := coord.Close(); err != nil {
		log.Error().Err(err).Msg("coordinator close error")
	}

	log.Info().Msg(coord.Status.Render())
	log.Info().Msg("coordinator stopped")
}
