package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"finpasser/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.postgres.driver", "postgres")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.ttl", 24*time.Hour)
	v.SetDefault("database.mongodb.collection", "reconcile_audit")

	v.SetDefault("broker.type", "kafka")
	v.SetDefault("broker.kafka.upload_topic", constants.UploadEventsTopic)
	v.SetDefault("broker.kafka.ack_topic", constants.DeliveryAcksTopic)
	v.SetDefault("broker.kafka.start_offset", "earliest")

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_path_style", true)

	v.SetDefault("ingress.max_upload_bytes", constants.DefaultMaxUploadBytes)
	v.SetDefault("ingress.business_id.extractor", "regex")
	v.SetDefault("ingress.business_id.pattern", constants.DefaultBusinessIDPattern)

	v.SetDefault("monitor.stuck_after", 10*time.Minute)
	v.SetDefault("monitor.interval", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVariables(v *viper.Viper) {
	keys := map[string]string{
		"broker.kafka.brokers":      "BROKER_KAFKA_BROKERS",
		"broker.kafka.group_id":     "BROKER_KAFKA_GROUP_ID",
		"broker.kafka.upload_topic": "BROKER_KAFKA_UPLOAD_TOPIC",
		"broker.kafka.ack_topic":    "BROKER_KAFKA_ACK_TOPIC",
		"broker.kafka.dlq_topic":    "BROKER_KAFKA_DLQ_TOPIC",

		"database.postgres.driver":   "DATABASE_POSTGRES_DRIVER",
		"database.postgres.host":     "DATABASE_POSTGRES_HOST",
		"database.postgres.port":     "DATABASE_POSTGRES_PORT",
		"database.postgres.user":     "DATABASE_POSTGRES_USER",
		"database.postgres.password": "DATABASE_POSTGRES_PASSWORD",
		"database.postgres.dbname":   "DATABASE_POSTGRES_DBNAME",
		"database.postgres.sslmode":  "DATABASE_POSTGRES_SSLMODE",

		"database.redis.host":     "DATABASE_REDIS_HOST",
		"database.redis.port":     "DATABASE_REDIS_PORT",
		"database.redis.password": "DATABASE_REDIS_PASSWORD",
		"database.mongodb.uri":    "DATABASE_MONGODB_URI",

		"storage.endpoint":   "STORAGE_ENDPOINT",
		"storage.region":     "STORAGE_REGION",
		"storage.access_key": "STORAGE_ACCESS_KEY",
		"storage.secret_key": "STORAGE_SECRET_KEY",
		"storage.bucket":     "STORAGE_BUCKET",

		"server.port":   "SERVER_PORT",
		"logging.level": "LOGGING_LEVEL",

		"tracing.enabled":       "TRACING_ENABLED",
		"tracing.otlp.endpoint": "TRACING_OTLP_ENDPOINT",
	}
	for key, env := range keys {
		_ = v.BindEnv(key, env)
	}
}

// applyEnvOverrides handles values viper cannot split on its own.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		if brokers := splitList(brokersEnv); len(brokers) > 0 {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
	if origins := v.GetString("SERVER_CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
