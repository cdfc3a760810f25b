package logging

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// Sink names accepted in Config.Sinks.
const (
	SinkConsole = "console"
	SinkJSON    = "json"
	SinkMemory  = "memory"
)

// Config selects where server events go and which ones are kept.
type Config struct {
	Sinks            []string
	BufferSize       int
	MinSeverity      Severity
	Fields           map[string]any
	JSON             JSONConfig
	Console          ConsoleConfig
	DropWarnInterval time.Duration
}

type JSONConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

type ConsoleConfig struct {
	Prefix string
}

func DefaultConfig() Config {
	return Config{
		Sinks:            []string{SinkConsole},
		BufferSize:       512,
		MinSeverity:      SeverityInfo,
		Fields:           map[string]any{"service": "bombfield"},
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
	}
}

// Validate rejects unknown sink names and a json sink without a file.
func (c Config) Validate() error {
	for _, name := range c.Sinks {
		switch name {
		case SinkConsole, SinkMemory:
		case SinkJSON:
			if c.JSON.FilePath == "" {
				return errors.New("json sink enabled without a file path")
			}
		default:
			return fmt.Errorf("unknown log sink %q", name)
		}
	}
	return nil
}

// CloneFields copies the static fields so events cannot alias the config.
func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	return maps.Clone(c.Fields)
}
