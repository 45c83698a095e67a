package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	GroupBuy GroupBuyConfig
	Notify   NotifyConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	GroupBuyCreated   string
	GroupBuyCompleted string
	GroupBuyExpired   string
	TicketIssued      string
	TicketScanned     string
	Notifications     string
}

type GroupBuyConfig struct {
	// TTL is how long a group buy stays claimable before the sweeper
	// expires it.
	TTL           time.Duration
	SweepInterval time.Duration
}

type NotifyConfig struct {
	Workers   int
	QueueSize int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				GroupBuyCreated:   getEnv("KAFKA_TOPIC_GROUPBUY_CREATED", "groupbuy.created"),
				GroupBuyCompleted: getEnv("KAFKA_TOPIC_GROUPBUY_COMPLETED", "groupbuy.completed"),
				GroupBuyExpired:   getEnv("KAFKA_TOPIC_GROUPBUY_EXPIRED", "groupbuy.expired"),
				TicketIssued:      getEnv("KAFKA_TOPIC_TICKET_ISSUED", "ticket.issued"),
				TicketScanned:     getEnv("KAFKA_TOPIC_TICKET_SCANNED", "ticket.scanned"),
				Notifications:     getEnv("KAFKA_TOPIC_NOTIFICATIONS", "groupbuy.notifications"),
			},
		},
		GroupBuy: GroupBuyConfig{
			TTL:           time.Duration(getEnvInt("GROUPBUY_TTL_HOURS", 24)) * time.Hour,
			SweepInterval: time.Duration(getEnvInt("GROUPBUY_SWEEP_MINUTES", 5)) * time.Minute,
		},
		Notify: NotifyConfig{
			Workers:   getEnvInt("NOTIFY_WORKERS", 4),
			QueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 256),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
