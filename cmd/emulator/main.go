package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/video-system/go-camera-emulator/internal/logging"
	"github.com/video-system/go-camera-emulator/pkg/api"
	"github.com/video-system/go-camera-emulator/pkg/emulator"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-camera-emulator %s\n", version)
		return
	}

	// Load configuration
	cfg, err := emulator.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting camera emulator",
		zap.String("version", version),
		zap.Int("devices", len(cfg.Devices)))

	// Create device manager
	manager, err := emulator.NewManager(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create manager", zap.Error(err))
	}

	// Start devices (auto-start ones begin capturing immediately)
	if err := manager.Start(); err != nil {
		logger.Fatal("Failed to start devices", zap.Error(err))
	}

	// Create and start the control API server
	apiServer := api.NewServer(api.ServerConfig{
		Host:    cfg.API.Host,
		Port:    cfg.API.Port,
		Manager: manager,
		Logger:  logger,
	})

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	apiServer.Stop()
	manager.Stop()
	logger.Info("Camera emulator stopped")
}
