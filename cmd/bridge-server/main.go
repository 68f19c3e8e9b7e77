// Command bridge-server runs the TEF II bridge: an HTTP facade over a
// TransactionCoordinator talking to a Credibanco datáfono.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/coordinator"
	"github.com/ocx/backend/internal/httpapi"
	"github.com/ocx/backend/internal/metrics"
	"github.com/ocx/backend/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Get()
	port := cfg.GetPort()

	var st transport.SerialTransport
	if cfg.TEF.MockMode {
		st = transport.NewMockTransport(transport.MockConfig{ResponseDelay: 300 * time.Millisecond})
		slog.Info("serial transport: mock mode enabled")
	} else {
		st = transport.NewRealTransport()
	}

	bridgeMetrics := metrics.NewMetrics()

	txTimeout := time.Duration(cfg.TEF.TimeoutMs) * time.Millisecond
	coord := coordinator.New(st, slog.Default()).WithMetrics(bridgeMetrics).WithTimeout(txTimeout)

	serialCfg := transport.Config{
		PortPath: cfg.Serial.PortPath,
		Baud:     cfg.Serial.Baud,
		DataBits: cfg.Serial.DataBits,
		StopBits: cfg.Serial.StopBits,
		Parity:   cfg.Serial.Parity,
	}
	if err := coord.Connect(serialCfg); err != nil {
		slog.Warn("initial datáfono connect failed, bridge will still serve /connect", "error", err)
	}

	server := httpapi.New(coord, cfg.Server.CORSAllowOrigins, cfg.TEF.MockMode, txTimeout, slog.Default())

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, shutting down gracefully")

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := coord.Disconnect(); err != nil {
			slog.Warn("error disconnecting datáfono during shutdown", "error", err)
		}
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("tef bridge starting", "port", port, "mock_mode", cfg.TEF.MockMode, "timeout_ms", cfg.TEF.TimeoutMs)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed to start: %v", err)
	}
	slog.Info("server stopped")
}
