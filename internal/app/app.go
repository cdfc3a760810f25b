// Package app wires the authority, its logging router and the HTTP surface
// into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	server "bombfield/server"
	servernet "bombfield/server/internal/net"
	"bombfield/server/internal/telemetry"
	"bombfield/server/logging"
	loggingSinks "bombfield/server/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

// Run serves until ctx is cancelled or the listener fails.
func Run(ctx context.Context, cfg Config) error {
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	return Serve(ctx, listener, cfg)
}

// Serve runs the server on an existing listener.
func Serve(ctx context.Context, listener net.Listener, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	namedSinks, closeFiles, err := buildSinks(cfg.Logging)
	if err != nil {
		listener.Close()
		return err
	}
	defer closeFiles()

	router := logging.NewRouter(logging.SystemClock{}, cfg.Logging, namedSinks)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	hubCfg := cfg.Hub
	hubCfg.Logger = telemetryLogger
	if hubCfg.Metrics == nil {
		hubCfg.Metrics = telemetry.NewCounters()
	}
	hub := server.NewHub(hubCfg, router)
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		hub.Run(stop)
		close(stopped)
	}()
	defer func() {
		close(stop)
		<-stopped
	}()

	wsCfg := cfg.WS
	wsCfg.Publisher = router
	wsCfg.Metrics = hubCfg.Metrics
	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		Logger:        telemetryLogger,
		Observability: cfg.Observability,
		WS:            wsCfg,
		RouterStats:   router.Stats,
	})

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(listener)
	}()
	telemetryLogger.Printf("server listening on %s", listener.Addr())

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	<-errs
	return nil
}

// buildSinks opens every sink named in cfg.Sinks.
func buildSinks(cfg logging.Config) ([]logging.NamedSink, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	var (
		sinks []logging.NamedSink
		files []*os.File
	)
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for _, name := range cfg.Sinks {
		switch name {
		case logging.SinkConsole:
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewConsoleSink(os.Stdout, cfg.Console)})
		case logging.SinkJSON:
			f, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				closeFiles()
				return nil, nil, fmt.Errorf("failed to open json log: %w", err)
			}
			files = append(files, f)
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewJSON(f, cfg.JSON.FlushInterval)})
		case logging.SinkMemory:
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewMemorySink()})
		}
	}
	return sinks, closeFiles, nil
}
