package logging

import "testing"

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name  string
		sinks []string
		path  string
		ok    bool
	}{
		{name: "defaults", sinks: DefaultConfig().Sinks, ok: true},
		{name: "json with file", sinks: []string{SinkConsole, SinkJSON}, path: "/tmp/events.log", ok: true},
		{name: "json without file", sinks: []string{SinkJSON}},
		{name: "unknown sink", sinks: []string{SinkMemory, "syslog"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sinks = tc.sinks
			cfg.JSON.FilePath = tc.path
			if err := cfg.Validate(); (err == nil) != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, err)
			}
		})
	}
}

func TestCloneFieldsDoesNotAlias(t *testing.T) {
	cfg := DefaultConfig()
	fields := cfg.CloneFields()
	fields["service"] = "changed"
	if cfg.Fields["service"] != "bombfield" {
		t.Fatalf("expected config fields untouched, got %v", cfg.Fields)
	}
}
