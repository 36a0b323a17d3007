package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/config"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/container"
	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.WithError(err).Error("Failed to load config")
		os.Exit(apperrors.ExitInvalidInput)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize dependency injection container; the OCR engine is probed here
	c, err := container.NewContainer(context.Background(), cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize container")
		os.Exit(apperrors.ExitCode(err))
	}
	defer c.Close()

	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      c.Handler(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"address": cfg.ServerAddress(),
			"timeout": cfg.RequestTimeout,
			"engine":  c.Extractor().Capabilities().VersionTag(),
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.WithField("stats", c.Metrics()).Info("Server exited")
}
