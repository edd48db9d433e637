// Package main provides the alconcurrent diagnostics server.
//
// alconcurrent is a hazard-pointer based concurrency primitives library:
// lock-free FIFO/stack/ordered-list containers and a semi-lock-free slab
// allocator, all built on a shared hazard-pointer registry for safe
// memory reclamation without a stop-the-world GC pass.
//
// This binary does not itself exercise the library under load; it starts
// the process-wide default allocator (see package galloc) and serves its
// runtime statistics, a hazard-pointer probe, and a prune trigger over
// HTTP, for operators embedding this module in a larger service to watch
// from outside the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"alconcurrent/config"
	"alconcurrent/galloc"
	"alconcurrent/internal/diagnosticsapi"
	"alconcurrent/logger"

	_ "alconcurrent/docs" // required for swagger
)

// @title alconcurrent diagnostics API
// @version 1.0
// @description Runtime introspection for the hazard-pointer registry and slab allocator

// @license.name MIT

// @BasePath /diag

// Build-time version information, set via -ldflags at `go build` time.
//
// Usage:
//
//	go build -ldflags "-X main.Version=1.2.3 -X main.BuildDate=$(date +%Y-%m-%d)"
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

var (
	showVersion bool
	showHelp    bool
)

func init() {
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.BoolVar(&showVersion, "v", false, "print version and exit (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "print usage and exit")
	flag.BoolVar(&showHelp, "h", false, "print usage and exit (shorthand)")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("alconcurrent v%s (built %s)\n", Version, BuildDate)
		os.Exit(0)
	}
	if showHelp {
		fmt.Println("Usage: alconcurrent [options]")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		fmt.Println("\nRuntime settings are read from ALCONCURRENT_* environment variables (see package config).")
		os.Exit(0)
	}

	logger.Configure()
	cfg := config.Load()
	if err := logger.SetLogLevel(cfg.LogLevel); err != nil {
		logger.Fatal("invalid log level: %v", err)
	}
	logger.EnableTracing(logger.GetLogLevel() == "TRACE")
	logger.Info("starting alconcurrent with log level %s", logger.GetLogLevel())

	// galloc.Allocator/Registry lazily construct the process-wide default
	// allocator and hazard registry on first call; touching them here
	// forces that initialization to happen at startup instead of on the
	// first request.
	galloc.Allocator()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var srv *http.Server
	if cfg.DiagnosticsAddr == "" {
		logger.Info("ALCONCURRENT_DIAGNOSTICS_ADDR unset, diagnostics server disabled; allocator running with no introspection surface")
	} else {
		diagServer := diagnosticsapi.NewServer(galloc.Allocator(), galloc.Registry())

		router := mux.NewRouter()
		router.PathPrefix("/diag/").Handler(http.StripPrefix("/diag", diagServer.NewRouter()))
		router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
			httpSwagger.DeepLinking(true),
		))

		srv = &http.Server{
			Addr:         cfg.DiagnosticsAddr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			logger.Info("diagnostics server listening on %s", cfg.DiagnosticsAddr)
			logger.Info("diagnostics routes: %s/diag/stats %s/diag/hazard %s/diag/prune %s/diag/healthz", cfg.DiagnosticsAddr, cfg.DiagnosticsAddr, cfg.DiagnosticsAddr, cfg.DiagnosticsAddr)
			logger.Info("swagger docs: %s/swagger/", cfg.DiagnosticsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("diagnostics server failed: %v", err)
			}
		}()
	}

	sig := <-sigChan
	logger.Info("received signal %v, shutting down", sig)

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("diagnostics server shutdown error: %v", err)
		}
	}
	logger.Info("alconcurrent shutdown complete")
}
