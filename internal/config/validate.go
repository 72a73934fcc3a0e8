package config

import (
	"errors"
	"fmt"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Postgres.MaxOpenConns < 1 {
		return errors.New("postgres.max_open_conns must be >= 1")
	}
	if c.Postgres.MaxIdleConns < 0 || c.Postgres.MaxIdleConns > c.Postgres.MaxOpenConns {
		return fmt.Errorf("postgres.max_idle_conns must be between 0 and %d, got %d",
			c.Postgres.MaxOpenConns, c.Postgres.MaxIdleConns)
	}

	if c.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if c.NATS.Stream == "" || c.NATS.Subject == "" || c.NATS.Consumer == "" {
		return errors.New("nats.stream, nats.subject and nats.consumer are required")
	}
	if c.NATS.Stream == c.NATS.OutboundStream {
		return fmt.Errorf("nats.outbound_stream must differ from nats.stream (%s)", c.NATS.Stream)
	}
	if c.NATS.AckWait <= 0 {
		return errors.New("nats.ack_wait must be positive")
	}
	if c.NATS.MaxDeliver < -1 {
		return fmt.Errorf("nats.max_deliver must be -1 or positive, got %d", c.NATS.MaxDeliver)
	}
	if c.NATS.NakDelay < 0 {
		return errors.New("nats.nak_delay must be >= 0")
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}
	if c.Outbound.MaxMessageBytes < 1 {
		return errors.New("outbound.max_message_bytes must be >= 1")
	}
	if c.Reference.RefreshInterval <= 0 {
		return errors.New("reference.refresh_interval must be positive")
	}
	if !logLevels[c.Log.Level] {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error, fatal", c.Log.Level)
	}
	return nil
}
