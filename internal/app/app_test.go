package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bombfield/server/internal/telemetry"
	"bombfield/server/logging"
)

func recordingLogger(lines *[]string) telemetry.Logger {
	return telemetry.LoggerFunc(func(format string, args ...any) {
		*lines = append(*lines, fmt.Sprintf(format, args...))
	})
}

func TestServeAnswersHealthAndShutsDown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Logger = telemetry.LoggerFunc(nil)
	cfg.Logging.Sinks = []string{"memory"}
	cfg.Hub.Spawner.Interval = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, listener, cfg)
	}()

	url := "http://" + listener.Addr().String() + "/health"
	var body string
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			body = string(data)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if body != "ok" {
		t.Fatalf("expected ok, got %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestBuildSinks(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Sinks = []string{"console", "memory", "json"}
	cfg.JSON.FilePath = filepath.Join(t.TempDir(), "events.log")
	cfg.JSON.FlushInterval = 0

	sinks, closeFiles, err := buildSinks(cfg)
	if err != nil {
		t.Fatalf("buildSinks failed: %v", err)
	}
	defer closeFiles()
	if len(sinks) != 3 {
		t.Fatalf("expected three sinks, got %d", len(sinks))
	}

	cfg.Sinks = []string{"syslog"}
	if _, _, err := buildSinks(cfg); err == nil || !strings.Contains(err.Error(), "syslog") {
		t.Fatalf("expected unknown sink error, got %v", err)
	}

	cfg.Sinks = []string{"json"}
	cfg.JSON.FilePath = ""
	if _, _, err := buildSinks(cfg); err == nil {
		t.Fatalf("expected json sink without path to fail")
	}
}
