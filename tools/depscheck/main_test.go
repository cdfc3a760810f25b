package main

import (
	"strings"
	"testing"
)

func TestCheckFlagsCoreImportingEdges(t *testing.T) {
	input := `
{"ImportPath": "bombfield/server", "Imports": ["bombfield/server/internal/registry"]}
{"ImportPath": "bombfield/server/internal/command", "Imports": ["bombfield/server/internal/net/ws"]}
{"ImportPath": "bombfield/server/internal/net/ws", "Imports": ["bombfield/server/internal/net/intake"]}
{"ImportPath": "bombfield/server/cmd/bot", "Imports": ["bombfield/server/internal/client"]}
{"ImportPath": "bombfield/server/internal/items", "Imports": ["bombfield/server/internal/client"]}
`
	violations, err := check(strings.NewReader(input))
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	want := []string{
		"bombfield/server/internal/command -> bombfield/server/internal/net/ws",
		"bombfield/server/internal/items -> bombfield/server/internal/client",
	}
	if len(violations) != len(want) {
		t.Fatalf("expected %v, got %v", want, violations)
	}
	for i := range want {
		if violations[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, violations)
		}
	}
}

func TestCheckRejectsGarbage(t *testing.T) {
	if _, err := check(strings.NewReader("{not json")); err == nil {
		t.Fatalf("expected a decode error")
	}
}
