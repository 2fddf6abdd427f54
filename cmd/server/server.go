package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akbyhakan/VFS-Bot1-sub000/internal/config"
	"github.com/akbyhakan/VFS-Bot1-sub000/internal/db"
	"github.com/akbyhakan/VFS-Bot1-sub000/internal/services"
	"github.com/akbyhakan/VFS-Bot1-sub000/pkg/logger"
	"github.com/akbyhakan/VFS-Bot1-sub000/router"

	"go.uber.org/zap"
)

// SetupServer initializes the full service graph and returns a
// configured HTTP server plus a cleanup function that stops the
// background goroutines and closes the database.
func SetupServer(cfg *config.Config) (*http.Server, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("configuration is required")
	}
	if cfg.Server.Port <= 0 {
		return nil, nil, errors.New("invalid server port")
	}

	// Initialize database
	database, err := db.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	tokenRepo := db.NewTokenRepository(database.GetDB())

	// Initialize services
	registry := services.NewSessionRegistry(cfg.Sessions.Timeout)
	tokenService := services.NewWebhookTokenService(services.NewSMSPatternMatcher(), tokenRepo, cfg.Webhook.BaseURL)
	if err := tokenService.LoadActive(); err != nil {
		database.Close()
		return nil, nil, err
	}

	var listener *services.MailboxListener
	if cfg.Mailbox.Host != "" && cfg.Mailbox.Address != "" {
		transport := services.NewIMAPTransport(cfg.Mailbox.Host, cfg.Mailbox.Port,
			cfg.Mailbox.Address, cfg.Mailbox.Password, cfg.Mailbox.Folder)
		processor := services.NewEmailProcessor(services.NewEmailPatternMatcher())
		listener = services.NewMailboxListener(transport, processor, registry, services.ListenerConfig{
			PollInterval:         cfg.Mailbox.PollInterval,
			KeepaliveInterval:    cfg.Mailbox.KeepaliveInterval,
			RecencyWindow:        cfg.Mailbox.RecencyWindow,
			DedupMax:             cfg.Mailbox.DedupMax,
			BackoffFloor:         cfg.Mailbox.BackoffFloor,
			BackoffCeiling:       cfg.Mailbox.BackoffCeiling,
			MaxConsecutiveErrors: cfg.Mailbox.MaxConsecutiveErrors,
		})
	} else {
		logger.Info("Mailbox polling disabled, no mailbox configured")
	}

	manager := services.NewOTPManager(registry, tokenService, services.NewSMSPatternMatcher(),
		listener, cfg.Sessions.DefaultWaitTimeout)

	// Background goroutines: mailbox poll loop and session sweeper.
	ctx, cancel := context.WithCancel(context.Background())
	if listener != nil {
		go listener.Run(ctx)
	}
	go manager.RunSweeper(ctx, cfg.Sessions.SweepInterval)

	r := router.NewRouter(cfg, manager, tokenService)

	// Create server with security timeouts. The wait endpoint blocks,
	// so the write timeout must exceed the longest allowed wait.
	writeTimeout := cfg.Sessions.DefaultWaitTimeout + 15*time.Second
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	cleanup := func() {
		cancel()
		if err := database.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	return srv, cleanup, nil
}

// StartServer starts the HTTP server and handles graceful shutdown
func StartServer(srv *http.Server) error {
	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// StartServerWithContext starts the HTTP server with a context for shutdown control
func StartServerWithContext(ctx context.Context, srv *http.Server) error {
	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	logger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
