package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	server "bombfield/server"
	"bombfield/server/internal/net/ws"
	"bombfield/server/internal/observability"
	"bombfield/server/internal/telemetry"
	"bombfield/server/logging"
)

const defaultAddr = ":8080"

type Config struct {
	Addr          string
	Hub           server.HubConfig
	WS            ws.HandlerConfig
	Logging       logging.Config
	Observability observability.Config
	Logger        telemetry.Logger
}

func DefaultConfig() Config {
	return Config{
		Addr:    defaultAddr,
		Hub:     server.DefaultHubConfig(),
		WS:      ws.HandlerConfig{Codec: "json"},
		Logging: logging.DefaultConfig(),
	}
}

// LookupFunc resolves one configuration key.
type LookupFunc func(key string) (string, bool)

// LoadConfig builds the configuration from the process environment, falling
// back to the values in envFile when it exists. Invalid values are logged and
// the default is kept.
func LoadConfig(envFile string, logger telemetry.Logger) (Config, error) {
	fileValues := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileValues = values
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := fileValues[key]
		return value, ok
	}
	cfg := DefaultConfig()
	cfg.Logger = logger
	cfg.Apply(lookup)
	return cfg, nil
}

// Apply overrides the configuration with every key lookup resolves.
func (c *Config) Apply(lookup LookupFunc) {
	logger := c.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	env := envReader{lookup: lookup, logger: logger}

	env.stringValue("LISTEN_ADDR", &c.Addr)
	env.intValue("TICK_RATE", &c.Hub.TickRate)
	env.durationValue("EXPLOSION_DELAY", &c.Hub.Commands.ExplosionDelay)
	env.floatValue("EXPLOSION_RADIUS", &c.Hub.Commands.ExplosionRadius)
	env.durationValue("ENEMY_SPAWN_INTERVAL", &c.Hub.Spawner.Interval)
	env.durationValue("ENEMY_LIFETIME", &c.Hub.Spawner.Lifetime)
	env.floatValue("POSITION_THRESHOLD", &c.Hub.Replication.PositionThreshold)
	env.floatValue("ORIENTATION_THRESHOLD", &c.Hub.Replication.OrientationThreshold)
	env.floatValue("LERP_RATE", &c.Hub.Replication.LerpRate)
	env.intValue("INITIAL_ITEMS", &c.Hub.InitialItems)
	env.intValue("COMMAND_BURST", &c.WS.CommandBurst)
	env.boolValue("ENABLE_PPROF", &c.Observability.EnablePprof)

	if raw, ok := lookup("WIRE_CODEC"); ok {
		switch codec := strings.ToLower(strings.TrimSpace(raw)); codec {
		case "json", "msgpack":
			c.WS.Codec = codec
		default:
			logger.Printf("invalid WIRE_CODEC=%q: expected json or msgpack", raw)
		}
	}
	if raw, ok := lookup("COMMAND_RATE"); ok {
		if value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && value >= 0 {
			c.WS.CommandRate = value
		} else {
			logger.Printf("invalid COMMAND_RATE=%q", raw)
		}
	}
	if raw, ok := lookup("LOG_SINKS"); ok {
		var sinks []string
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				sinks = append(sinks, name)
			}
		}
		c.Logging.Sinks = sinks
	}
	env.stringValue("LOG_JSON_PATH", &c.Logging.JSON.FilePath)
	if raw, ok := lookup("LOG_LEVEL"); ok {
		if severity, err := logging.ParseSeverity(raw); err == nil {
			c.Logging.MinSeverity = severity
		} else {
			logger.Printf("invalid LOG_LEVEL=%q: %v", raw, err)
		}
	}
}

type envReader struct {
	lookup LookupFunc
	logger telemetry.Logger
}

func (r envReader) stringValue(key string, dst *string) {
	if raw, ok := r.lookup(key); ok && strings.TrimSpace(raw) != "" {
		*dst = strings.TrimSpace(raw)
	}
}

func (r envReader) intValue(key string, dst *int) {
	raw, ok := r.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		r.logger.Printf("invalid %s=%q", key, raw)
		return
	}
	*dst = value
}

func (r envReader) floatValue(key string, dst *float32) {
	raw, ok := r.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
	if err != nil || value < 0 {
		r.logger.Printf("invalid %s=%q", key, raw)
		return
	}
	*dst = float32(value)
}

// durationValue accepts Go duration strings or a bare number of seconds.
func (r envReader) durationValue(key string, dst *time.Duration) {
	raw, ok := r.lookup(key)
	if !ok {
		return
	}
	raw = strings.TrimSpace(raw)
	if value, err := time.ParseDuration(raw); err == nil && value >= 0 {
		*dst = value
		return
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds >= 0 {
		*dst = time.Duration(seconds * float64(time.Second))
		return
	}
	r.logger.Printf("invalid %s=%q", key, raw)
}

func (r envReader) boolValue(key string, dst *bool) {
	raw, ok := r.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		r.logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}
