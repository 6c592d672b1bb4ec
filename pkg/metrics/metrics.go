package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Total number of file submissions handled by the ingress (count)",
		},
		[]string{"status"},
	)

	IngressDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingress_duration_ms",
			Help:    "Duration of blob write, record insert and publish for one submission in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	BlobOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blob_operations_total",
			Help: "Total number of blob store operations (count)",
		},
		[]string{"operation", "status"},
	)

	BlobOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blob_operation_duration_ms",
			Help:    "Duration of blob store operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"operation"},
	)

	ReconcileDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_decisions_total",
			Help: "Total number of status reconciler decisions by outcome (count)",
		},
		[]string{"service", "outcome"},
	)

	ReconciliationAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_alerts_total",
			Help: "Total number of messages parked after the reconciler could not converge (count)",
		},
		[]string{"service", "reason"},
	)

	RecordsStuck = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "records_stuck",
			Help: "Number of uploader records in non-terminal status older than the stuck threshold (count)",
		},
	)

	DeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_latency_ms",
			Help:    "Time between upload event production and delivery acknowledgment in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	DuplicateEventsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_events_skipped_total",
			Help: "Total number of redelivered events skipped by the processed-event cache (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag reported by the reader (count)",
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "operation"},
	)
)

var (
	ingressOnce, brokerOnce, reconcileOnce, cbOnce, dbOnce sync.Once
)

func RegisterIngressMetrics() {
	ingressOnce.Do(func() {
		prometheus.MustRegister(UploadsTotal)
		prometheus.MustRegister(IngressDuration)
		prometheus.MustRegister(BlobOperationsTotal)
		prometheus.MustRegister(BlobOperationDuration)
		prometheus.MustRegister(RecordsStuck)
		prometheus.MustRegister(DeliveryLatency)
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(DuplicateEventsSkippedTotal)
		prometheus.MustRegister(KafkaMessagesReadTotal)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaWriteDuration)
		prometheus.MustRegister(KafkaConsumerLag)
	})
}

func RegisterReconcileMetrics() {
	reconcileOnce.Do(func() {
		prometheus.MustRegister(ReconcileDecisionsTotal)
		prometheus.MustRegister(ReconciliationAlertsTotal)
	})
}

func RegisterCircuitBreakerMetrics() {
	cbOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterDatabaseMetrics() {
	dbOnce.Do(func() {
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
	})
}

func ObserveIngressDuration(duration time.Duration, status string) {
	IngressDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveBlobOperation(operation, status string, duration time.Duration) {
	BlobOperationsTotal.WithLabelValues(operation, status).Inc()
	BlobOperationDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func IncReconcileDecision(service, outcome string) {
	ReconcileDecisionsTotal.WithLabelValues(service, outcome).Inc()
}

func IncReconciliationAlert(service, reason string) {
	ReconciliationAlertsTotal.WithLabelValues(service, reason).Inc()
}

func SetRecordsStuck(count int) {
	RecordsStuck.Set(float64(count))
}

func ObserveDeliveryLatency(d time.Duration) {
	DeliveryLatency.Observe(float64(d.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func SetKafkaConsumerLag(service, topic string, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic).Set(float64(lag))
}

func ObserveDatabaseQuery(service, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(service, operation).Observe(float64(duration.Milliseconds()))
}
