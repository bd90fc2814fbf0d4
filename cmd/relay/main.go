package main

import (
	"flag"

	"sms-relay-server/internal/config"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to JSON config file (defaults apply when omitted)")
	flag.Parse()

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
		cfg.ApplyEnvOverrides()
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Path, cfg.Logging.Level); err != nil {
		panic(err)
	}
	defer logger.Info("Server shutting down")

	app, err := SetupServer(cfg)
	if err != nil {
		logger.Fatal("Failed to setup server", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
