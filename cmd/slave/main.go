package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/projectpolygon/hypercube-go/internal/config"
	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/slave"
)

func main() {
	port := 5678
	if len(os.Args) == 2 {
		p, err := strconv.Atoi(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid coordinator port %q: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		port = p
	}

	cfg, err := config.LoadSlave("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Discovery.MasterPort = port

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Int("port", port).Msg("starting worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("graceful shutdown requested...")
		cancel()
	}()

	if err := runJob(ctx, cfg); err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("shut down on signal")
			os.Exit(0)
		}
		log.Error().Err(err).Msg("worker exited with fatal error")
		os.Exit(1)
	}

	log.Info().Msg("job complete, shutting down")
	os.Exit(0)
}

// runJob discovers the coordinator, bootstraps the job, runs the heartbeat
// and task cycle to completion, and tears both down. Mirrors
// original_source/src/slave/slave.py's outer retry loop: a failed
// bootstrap or discovery is retried rather than treated as fatal, matching
// spec.md section 4.5/7's retry posture, except when ctx has been
// canceled.
func runJob(ctx context.Context, cfg *config.SlaveConfig) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		host, err := slave.DiscoverMaster(ctx, cfg.Discovery.MasterPort, cfg.Discovery.ProbeTimeout, cfg.Discovery.ScanBackoffMin, cfg.Discovery.ScanBackoffMax)
		if err != nil {
			return err
		}

		session, err := slave.NewSession(host, cfg.Discovery.MasterPort)
		if err != nil {
			return fmt.Errorf("slave: create session: %w", err)
		}
		client := slave.NewClient(session)

		interval := time.Duration(cfg.Heartbeat.IntervalSecs * float64(time.Second))
		heartbeat := slave.NewHeartbeat(client, interval, cfg.Heartbeat.RetryAttempts)
		heartbeat.Start(ctx)

		cycle := slave.NewCycle(client, heartbeat, &cfg.Task)
		job, err := cycle.Bootstrap(ctx)
		if err != nil {
			heartbeat.Stop()
			logger.Warn().Err(err).Msg("job bootstrap failed, retrying discovery")
			continue
		}

		err = cycle.Run(ctx, job)
		heartbeat.Stop()
		if err != nil {
			return err
		}
		return nil
	}
}
