// implements the config object.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "DRONEMED"

// represents the configuration for the app
type Config struct {
	ApiPort          string        `mapstructure:"api_port"`
	LocalURL         string        `mapstructure:"local_url"`
	LogPeriodMinutes uint16        `mapstructure:"log_period_minutes"`
	Logging          LoggingConfig `mapstructure:"logging"`
	Store            StoreConfig   `mapstructure:"store"`
	Events           EventsConfig  `mapstructure:"events"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// StoreConfig selects the backend holding drones and medications.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"` // memory, sqlite, postgres, mongo, redis
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EventsConfig selects where drone events are published.
type EventsConfig struct {
	Backend string      `mapstructure:"backend"` // none, log, kafka, mqtt
	Topic   string      `mapstructure:"topic"`
	Kafka   KafkaConfig `mapstructure:"kafka"`
	MQTT    MQTTConfig  `mapstructure:"mqtt"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	ClientID string `mapstructure:"client_id"`
}

// returns a parsed configuration. The file may be json (the historical format) or yaml;
// every key can be overridden from the environment, e.g. DRONEMED_STORE_DRIVER=sqlite.
func Parse(filepath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filepath != "" {
		v.SetConfigFile(filepath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "could not read config file")
		}
	}

	config := Config{}
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config file")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	//setting a default value for api port if empty
	v.SetDefault("api_port", "8080")
	//setting a default value for local url if empty
	v.SetDefault("local_url", "http://localhost")
	//setting a default value for log periode if empty
	v.SetDefault("log_period_minutes", 1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite.path", "dronemed.db")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.database", "dronemed")
	v.SetDefault("store.postgres.user", "dronemed")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "drone_med_service")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("events.backend", "log")
	v.SetDefault("events.topic", "dronemed.drone-events")
	v.SetDefault("events.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("events.mqtt.broker", "localhost")
	v.SetDefault("events.mqtt.port", 1883)
	v.SetDefault("events.mqtt.client_id", "dronemed")
}

// Validate rejects unknown drivers and backends before anything gets opened.
func (c *Config) Validate() error {

	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "mongo", "redis":
	default:
		return errors.Errorf("unsupported store driver: %q", c.Store.Driver)
	}

	switch c.Events.Backend {
	case "none", "log", "kafka", "mqtt":
	default:
		return errors.Errorf("unsupported events backend: %q", c.Events.Backend)
	}

	if c.Events.Backend == "kafka" && len(c.Events.Kafka.Brokers) == 0 {
		return errors.New("kafka events backend requires at least one broker")
	}

	if c.LogPeriodMinutes == 0 {
		c.LogPeriodMinutes = 1
	}

	return nil
}
