package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	UploadEventsTopic = "upload-events"
	DeliveryAcksTopic = "delivery-acks"
)

const (
	ServiceUploader = "uploader-service"
	ServiceRouter   = "router-service"
)

const (
	DefaultMaxUploadBytes    int64 = 10 << 20
	DefaultBusinessIDPattern       = `^([A-Za-z0-9-]+)_.+$`
	MultipartFormField             = "file"
)

const (
	CacheKeyPrefixProcessed = "processed:"
)

const (
	DefaultMongoDBName = "finpasser"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	HeaderEventType = "event_type"

	DLQHeaderReason      = "dlq_reason"
	DLQHeaderSourceTopic = "dlq_source_topic"
	DLQHeaderTimestamp   = "dlq_timestamp"
	DLQHeaderErrorCode   = "dlq_error_code"
	DLQHeaderService     = "dlq_service"
)
