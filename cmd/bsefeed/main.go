package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bsefeed/config"
	"bsefeed/internal/contractmaster"
	"bsefeed/internal/pipeline"
	"bsefeed/internal/receiver"
	"bsefeed/internal/sink"
	"bsefeed/logger"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.LoggingLevel, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("failed to configure logger")
		os.Exit(1)
	}

	if cfg.Logging.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Logging.CloudWatch.Region, cfg.Logging.CloudWatch.Namespace, "")
	}

	log.WithFields(logger.Fields{
		"multicast_ip":   cfg.Multicast.IP,
		"multicast_port": cfg.Multicast.Port,
	}).Info("starting bsefeed")

	if err := config.EnsureOutputDirs(cfg); err != nil {
		log.WithError(err).Error("failed to prepare output directories")
		os.Exit(1)
	}

	loadStart := time.Now()
	cm, err := contractmaster.Load(cfg.TokenFile)
	if err != nil {
		log.WithError(err).Error("failed to load contract master")
		os.Exit(1)
	}
	logger.LogPerformanceEntry(log.WithComponent("contractmaster"), "contractmaster", "load",
		time.Since(loadStart), logger.Fields{"entries": cm.Count()})

	r, err := receiver.New(cfg.Multicast, cfg.BufferSize, cfg.Timeout)
	if err != nil {
		log.WithError(err).Error("failed to join multicast group")
		os.Exit(1)
	}

	archiver, err := sink.NewArchiver(cfg.Sink.Archive, log)
	if err != nil {
		log.WithError(err).Error("failed to configure archiver")
		os.Exit(1)
	}

	s := sink.New(cfg.OutputJSON, cfg.OutputCSV, log, archiver)

	sp := pipeline.New(r, cm, s, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.LoggingLevel) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				sp.ReportStats()
			}
		}
	}()

	go handleShutdown(cancel, log)

	runErr := sp.Run(ctx)

	sp.ReportStats()
	log.Info("stopping bsefeed")
	if err := sp.Close(); err != nil {
		log.WithError(err).Warn("error during shutdown")
	}

	if runErr != nil {
		log.WithError(runErr).Error("pipeline stopped with error")
		os.Exit(1)
	}
	log.Info("bsefeed stopped")
}

func handleShutdown(cancel context.CancelFunc, log *logger.Log) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	sig := <-ch
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	cancel()
}
