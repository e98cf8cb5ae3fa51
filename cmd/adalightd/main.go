package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scheerer/adalight-pipeline/internal/capture"
	"github.com/scheerer/adalight-pipeline/internal/config"
	"github.com/scheerer/adalight-pipeline/internal/display"
	"github.com/scheerer/adalight-pipeline/internal/gamma"
	"github.com/scheerer/adalight-pipeline/internal/logging"
	"github.com/scheerer/adalight-pipeline/internal/opcsink"
	"github.com/scheerer/adalight-pipeline/internal/pipeline"
	"github.com/scheerer/adalight-pipeline/internal/runid"
	"github.com/scheerer/adalight-pipeline/internal/sampler"
	"github.com/scheerer/adalight-pipeline/internal/serialsink"
)

var logger = logging.New("main")

func main() {
	defer logger.Sync()

	configPath := flag.String("config", "config.json", "path to the configuration document")
	flag.Parse()

	id := runid.New()
	logger = logger.With(zap.String("runID", id))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	set := display.NewSet(cfg)
	smp := sampler.New(gamma.New(), cfg.Fade, cfg.MinBrightness)
	source := capture.NewScreenshotSource(len(cfg.Displays), capture.NewThrottleDetector())
	serial := serialsink.New(cfg.TotalLEDCount(), cfg.Timeout)
	opc := opcsink.New(set, cfg.Servers)

	drv := pipeline.New(source, set, smp, serial, opc, cfg.FPSMax, cfg.ThrottleTimer)

	logger.With(
		zap.Int("displays", len(cfg.Displays)),
		zap.Int("totalLEDs", cfg.TotalLEDCount()),
		zap.Int("opcServers", len(cfg.Servers)),
		zap.Int("fpsMax", cfg.FPSMax)).
		Info("Starting adalight-pipeline")

	runErr := make(chan error, 1)
	go func() {
		runErr <- drv.Run(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-shutdown:
		logger.Info("Shutting down")
		cancel()
		if err := <-runErr; err != nil {
			logger.With(zap.Error(err)).Error("Error while closing sinks")
		}
	case err := <-runErr:
		if err != nil {
			logger.With(zap.Error(err)).Error("Driver exited with error")
		}
	}
}
