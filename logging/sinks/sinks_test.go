package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"bombfield/server/logging"
)

func sampleEvent() logging.Event {
	return logging.Event{
		Type:     "lifecycle.entity_spawned",
		Tick:     42,
		Time:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Actor:    logging.EntityRef{ID: "7", Kind: logging.EntityKindBomb},
		Severity: logging.SeverityInfo,
		Payload:  map[string]any{"owner": "c1"},
	}
}

func TestJSONSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, 0)
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["severity"] != "info" || decoded["tick"].(float64) != 42 {
		t.Fatalf("unexpected encoding %v", decoded)
	}
}

func TestConsoleSinkFormatsActorAndPayload(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, logging.ConsoleConfig{})
	if err := sink.Write(sampleEvent()); err != nil {
		t.Fatalf("write: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"[lifecycle.entity_spawned]", "actor=bomb:7", `payload={"owner":"c1"}`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestMemorySinkOfType(t *testing.T) {
	sink := NewMemorySink()
	sink.Write(sampleEvent())
	sink.Write(logging.Event{Type: "other"})
	if got := sink.OfType("other"); len(got) != 1 {
		t.Fatalf("expected one match, got %d", len(got))
	}
	sink.Reset()
	if len(sink.Events()) != 0 {
		t.Fatalf("expected reset to clear events")
	}
}
