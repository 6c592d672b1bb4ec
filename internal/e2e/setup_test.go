package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	postgresmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"finpasser/internal/config"
	"finpasser/pkg/migrations"
)

const (
	containerStartupTimeout = 60 * time.Second
	minioUser               = "minioadmin"
	minioPassword           = "minioadmin"
)

type testInfra struct {
	UploaderDB *sql.DB
	RouterDB   *sql.DB
	Brokers    []string
	Storage    config.StorageConfig
}

func setupInfra(t *testing.T) *testInfra {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed pipeline test in short mode")
	}
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	ctx := context.Background()
	infra := &testInfra{}
	setupPostgres(t, ctx, infra)
	setupKafka(t, ctx, infra)
	setupMinio(t, ctx, infra)
	return infra
}

func setupPostgres(t *testing.T, ctx context.Context, infra *testInfra) {
	container, err := postgresmodule.Run(ctx, "postgres:15",
		postgresmodule.WithDatabase("uploader"),
		postgresmodule.WithUsername("test_user"),
		postgresmodule.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerStartupTimeout),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	infra.UploaderDB = openMigrated(t, conn)

	_, err = infra.UploaderDB.ExecContext(ctx, "CREATE DATABASE router")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	routerConn := fmt.Sprintf("postgres://test_user:test_password@%s/router?sslmode=disable",
		net.JoinHostPort(host, port.Port()))
	infra.RouterDB = openMigrated(t, routerConn)
}

func openMigrated(t *testing.T, conn string) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, migrations.Postgres(db))
	return db
}

func setupKafka(t *testing.T, ctx context.Context, infra *testInfra) {
	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("finpasser-e2e"),
	)
	require.NoError(t, err, "failed to start kafka container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	infra.Brokers = brokers

	createTopics(t, brokers[0], uploadTopic, ackTopic, uploadTopic+"-dlq", ackTopic+"-dlq")
}

func createTopics(t *testing.T, broker string, topics ...string) {
	t.Helper()

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	require.NoError(t, controllerConn.CreateTopics(configs...))
}

func setupMinio(t *testing.T, ctx context.Context, infra *testInfra) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:RELEASE.2024-01-16T16-07-38Z",
			Cmd:          []string{"server", "/data"},
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").
				WithPort("9000/tcp").
				WithStartupTimeout(containerStartupTimeout),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start minio container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "http")
	require.NoError(t, err)

	infra.Storage = config.StorageConfig{
		Endpoint:     endpoint,
		Region:       "us-east-1",
		AccessKey:    minioUser,
		SecretKey:    minioPassword,
		Bucket:       "router-inbound",
		UsePathStyle: true,
	}
}
