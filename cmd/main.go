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

	"github.com/Nzyazin/tutorledger/internal/core/logger"
	"github.com/Nzyazin/tutorledger/internal/server"
	"github.com/Nzyazin/tutorledger/pkg/config"
)

func main() {
	appCfg, err := config.LoadConfigApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config: %v\n", err)
		os.Exit(1)
	}

	log, cleanup, err := logger.NewLogger(appCfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	dbCfg, err := config.LoadConfigDB()
	if err != nil {
		log.Error("Failed to load database config", logger.ErrorField("error", err))
		return
	}

	srv, err := server.NewServer(log, *appCfg, *dbCfg)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField("error", err))
		return
	}

	go func() {
		log.Info("Starting server",
			logger.StringField("addr", appCfg.Addr),
			logger.BoolField("tls", appCfg.TLSEnabled()))

		var err error
		if appCfg.TLSEnabled() {
			err = srv.RunTLS(appCfg.Addr, appCfg.TLSCertFile, appCfg.TLSKeyFile)
		} else {
			err = srv.Run(appCfg.Addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", logger.ErrorField("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", logger.ErrorField("error", err))
	}

	log.Info("Server exited properly")
}
