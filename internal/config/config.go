// Package config loads the indexer configuration from a YAML file.
package config

import (
	"PerpIndexer/internal/ingestion"
	"PerpIndexer/internal/outbound"
	"time"
)

// Config is the root of the YAML file.
type Config struct {
	Postgres  PostgresConfig  `yaml:"postgres"`
	NATS      NATSConfig      `yaml:"nats"`
	Redis     RedisConfig     `yaml:"redis"`
	Outbound  OutboundConfig  `yaml:"outbound"`
	Reference ReferenceConfig `yaml:"reference"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationsDir   string        `yaml:"migrations_dir"`
	// SkipMigrations leaves schema changes to cmd/migrate.
	SkipMigrations bool `yaml:"skip_migrations"`
}

type NATSConfig struct {
	URL            string        `yaml:"url"`
	Stream         string        `yaml:"stream"`
	Subject        string        `yaml:"subject"`
	Consumer       string        `yaml:"consumer"`
	AckWait        time.Duration `yaml:"ack_wait"`
	MaxDeliver     int           `yaml:"max_deliver"`
	NakDelay       time.Duration `yaml:"nak_delay"`
	OutboundStream string        `yaml:"outbound_stream"`
}

// RedisConfig points at the orderbook mid price hash. An empty address
// disables mid prices; candles then carry nil orderbook prices.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	MidPriceKey string        `yaml:"mid_price_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

type OutboundConfig struct {
	MaxMessageBytes     int  `yaml:"max_message_bytes"`
	SkipWebsocketTopics bool `yaml:"skip_websocket_topics"`
}

type ReferenceConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Subscriber returns the inbound consumer settings.
func (c NATSConfig) Subscriber() ingestion.SubscriberConfig {
	return ingestion.SubscriberConfig{
		Stream:     c.Stream,
		Subject:    c.Subject,
		Consumer:   c.Consumer,
		AckWait:    c.AckWait,
		MaxDeliver: c.MaxDeliver,
		NakDelay:   c.NakDelay,
	}
}

// Aggregator returns the per-block flush settings.
func (c OutboundConfig) Aggregator() outbound.Config {
	return outbound.Config{
		MaxMessageBytes:     c.MaxMessageBytes,
		SkipWebsocketTopics: c.SkipWebsocketTopics,
	}
}
