package logging_test

import (
	"context"
	"testing"
	"time"

	"bombfield/server/logging"
	"bombfield/server/logging/sinks"
)

func fixedClock() logging.Clock {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return logging.ClockFunc(func() time.Time { return at })
}

func TestRouterFiltersSeverityAndMergesFields(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinSeverity = logging.SeverityInfo
	cfg.Fields = map[string]any{"service": "test", "tick": "ignored"}
	router := logging.NewRouter(fixedClock(), cfg, []logging.NamedSink{{Name: "memory", Sink: memory}})

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "debug.only", Severity: logging.SeverityDebug})
	router.Publish(ctx, logging.Event{Type: "kept", Severity: logging.SeverityWarn, Extra: map[string]any{"tick": "own"}})
	router.Publish(ctx, logging.Event{Severity: logging.SeverityError})

	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event past the filter, got %d", len(events))
	}
	event := events[0]
	if event.Type != "kept" {
		t.Fatalf("unexpected event type %q", event.Type)
	}
	if event.Extra["service"] != "test" {
		t.Fatalf("expected router field merged, got %v", event.Extra)
	}
	if event.Extra["tick"] != "own" {
		t.Fatalf("expected event field to win over router field, got %v", event.Extra["tick"])
	}
	if event.Time.IsZero() {
		t.Fatalf("expected router to stamp time")
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("expected one forwarded event, got %+v", stats)
	}
	if router.Sink("memory") != memory {
		t.Fatalf("expected sink lookup by name")
	}
}

func TestRouterPublishAfterCloseIsIgnored(t *testing.T) {
	memory := sinks.NewMemorySink()
	router := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	router.Publish(context.Background(), logging.Event{Type: "late", Severity: logging.SeverityError})
	if len(memory.Events()) != 0 {
		t.Fatalf("expected no events after close")
	}
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}

func TestWithFieldsDoesNotMutateCaller(t *testing.T) {
	var got logging.Event
	base := logging.PublisherFunc(func(_ context.Context, event logging.Event) { got = event })
	pub := logging.WithFields(base, map[string]any{"conn": "c1"})

	extra := map[string]any{"k": "v"}
	pub.Publish(context.Background(), logging.Event{Type: "x", Extra: extra})

	if got.Extra["conn"] != "c1" || got.Extra["k"] != "v" {
		t.Fatalf("unexpected merged extra %v", got.Extra)
	}
	if _, leaked := extra["conn"]; leaked {
		t.Fatalf("expected caller map untouched")
	}
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]logging.Severity{
		"debug":   logging.SeverityDebug,
		"":        logging.SeverityInfo,
		"WARNING": logging.SeverityWarn,
		" error ": logging.SeverityError,
	}
	for raw, want := range cases {
		got, err := logging.ParseSeverity(raw)
		if err != nil || got != want {
			t.Fatalf("ParseSeverity(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
	if _, err := logging.ParseSeverity("loud"); err == nil {
		t.Fatalf("expected error for unknown severity")
	}
}
