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

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"s3-archive-lambda/internal/config"
	"s3-archive-lambda/internal/logging"
	"s3-archive-lambda/pkg/server"
)

func main() {
	settingsFile := pflag.String("settings", "", "path to the settings file (defaults and environment only when empty)")
	addr := pflag.String("addr", ":8080", "listen address")
	rps := pflag.Float64("rate", 10, "requests per second allowed on /invoke, 0 disables limiting")
	burst := pflag.Int("burst", 20, "rate limiter burst size")
	pflag.Parse()

	// Load configuration
	settings, err := config.Load(*settingsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(settings.Log.Level, settings.Log.Format)

	// Initialize dependencies
	container, err := server.NewContainer(context.Background(), settings, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize container")
	}
	defer container.Close()

	if settings.Log.Level != "debug" && settings.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := server.NewRouter(container, server.RouterOptions{RequestsPerSecond: *rps, Burst: *burst})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.WithFields(logrus.Fields{
		"addr":    *addr,
		"storage": settings.Storage.Type,
		"bucket":  settings.Storage.Bucket,
	}).Info("Local invoke server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}
