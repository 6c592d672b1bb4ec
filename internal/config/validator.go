package config

import (
	"fmt"
	"regexp"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateStorage(cfg.Storage); err != nil {
		errors = append(errors, err)
	}

	if err := validateIngress(cfg.Ingress); err != nil {
		errors = append(errors, err)
	}

	if err := validateCircuitBreaker(cfg.CircuitBreaker); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.UploadTopic == "" || cfg.AckTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.upload_topic",
			Message: "upload and ack topics are required",
		}
	}

	if cfg.UploadTopic == cfg.AckTopic {
		return &ValidationError{
			Field:   "broker.kafka.ack_topic",
			Message: "ack topic must differ from upload topic",
		}
	}

	if cfg.DLQTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.dlq_topic",
			Message: "DLQ topic is required so exhausted messages are parked, not dropped",
		}
	}

	if cfg.DLQTopic == cfg.UploadTopic || cfg.DLQTopic == cfg.AckTopic {
		return &ValidationError{
			Field:   "broker.kafka.dlq_topic",
			Message: "DLQ topic must differ from upload and ack topics",
		}
	}

	switch strings.ToLower(cfg.StartOffset) {
	case "", "earliest", "latest":
	default:
		return &ValidationError{
			Field:   "broker.kafka.start_offset",
			Message: fmt.Sprintf("invalid start offset: %s (valid: earliest, latest)", cfg.StartOffset),
		}
	}

	return validateRetry(cfg.Retry)
}

// validateRetry accepts zero values; they fall back to the default policy.
func validateRetry(cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if err := validatePostgres(cfg.Postgres); err != nil {
		return err
	}

	if cfg.Redis.Host != "" {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	switch cfg.Driver {
	case "", "postgres", "pgx":
	default:
		return &ValidationError{
			Field:   "database.postgres.driver",
			Message: fmt.Sprintf("unknown driver: %s (supported: postgres, pgx)", cfg.Driver),
		}
	}

	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.TTL < 0 {
		return &ValidationError{
			Field:   "database.redis.ttl",
			Message: "TTL must be non-negative",
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

// validateStorage only applies when a bucket is configured; the router never touches blobs.
func validateStorage(cfg StorageConfig) error {
	if cfg.Bucket == "" {
		return nil
	}

	if len(cfg.Bucket) < 3 || len(cfg.Bucket) > 63 || strings.ToLower(cfg.Bucket) != cfg.Bucket {
		return &ValidationError{
			Field:   "storage.bucket",
			Message: fmt.Sprintf("invalid bucket name: %s (3-63 lowercase characters)", cfg.Bucket),
		}
	}

	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		return &ValidationError{
			Field:   "storage.access_key",
			Message: "access_key and secret_key must be set together",
		}
	}

	return nil
}

func validateIngress(cfg IngressConfig) error {
	if cfg.MaxUploadBytes < 0 {
		return &ValidationError{
			Field:   "ingress.max_upload_bytes",
			Message: "max_upload_bytes must be non-negative",
		}
	}

	switch cfg.BusinessID.Extractor {
	case "", "regex":
		if cfg.BusinessID.Pattern == "" {
			return nil
		}
		re, err := regexp.Compile(cfg.BusinessID.Pattern)
		if err != nil {
			return &ValidationError{
				Field:   "ingress.business_id.pattern",
				Message: fmt.Sprintf("invalid pattern: %v", err),
			}
		}
		if re.NumSubexp() < 1 {
			return &ValidationError{
				Field:   "ingress.business_id.pattern",
				Message: "pattern must contain a capture group",
			}
		}
	case "cel":
		if cfg.BusinessID.Expression == "" {
			return &ValidationError{
				Field:   "ingress.business_id.expression",
				Message: "expression is required for the cel extractor",
			}
		}
	default:
		return &ValidationError{
			Field:   "ingress.business_id.extractor",
			Message: fmt.Sprintf("unknown extractor: %s (supported: regex, cel)", cfg.BusinessID.Extractor),
		}
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0) {
		return &ValidationError{
			Field:   "ingress.rate_limit",
			Message: "rps and burst must be positive when rate limiting is enabled",
		}
	}

	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if cfg.FailureRatio < 0 || cfg.FailureRatio > 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_ratio",
			Message: fmt.Sprintf("failure_ratio must be between 0 and 1, got %v", cfg.FailureRatio),
		}
	}
	return nil
}
