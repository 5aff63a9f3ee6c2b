package backend

import (
	"fmt"

	"fintrack/internal/config"
)

// FromAppConfig converts the application config to backend config.
// queue selects the change bus queue; pass "" for a per-process queue.
func FromAppConfig(appConfig *config.Config, queue string) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	t := Type(appConfig.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: t,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		SupabaseURL: appConfig.SupabaseURL,
		SupabaseKey: appConfig.SupabaseKey,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    queue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case SupabaseBackend:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("Supabase URL and key are required for supabase backend")
		}
	case MemoryBackend:
	}

	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return fmt.Errorf("AMQP exchange is required when AMQP URL is set")
	}
	return nil
}

// Types returns all valid backend types
func Types() []Type {
	return []Type{MemoryBackend, SQLiteBackend, SupabaseBackend}
}
