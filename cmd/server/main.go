package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/config"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/middleware"

	"go.uber.org/zap"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to JSON config file (absolute)")
	printToken := flag.Bool("print-token", false, "print an operator JWT for the management API and exit")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if *printToken {
		token, err := middleware.GenerateToken("operator", cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Path, cfg.Logging.Level); err != nil {
		panic(err)
	}
	defer logger.Info("Server shutting down")

	logger.Info("Starting OTP relay", zap.String("version", version))

	// Setup and start server
	srv, cleanup, err := SetupServer(cfg)
	if err != nil {
		logger.Fatal("Failed to setup server", zap.Error(err))
	}
	defer cleanup()

	if err := StartServer(srv); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
