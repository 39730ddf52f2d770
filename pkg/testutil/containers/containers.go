//go:build integration

// Package containers starts the Postgres and Kafka fixtures used by
// integration tests. Each fixture starts on first use and is shared by every
// suite in the test binary; Ryuk reaps the containers when the process exits.
package containers

import (
	"sync"
	"testing"
)

var (
	postgresOnce = sync.OnceValues(startPostgres)
	kafkaOnce    = sync.OnceValues(startKafka)
)

// Postgres returns the shared database with migrations applied.
func Postgres(t *testing.T) *PostgresContainer {
	t.Helper()
	pc, err := postgresOnce()
	if err != nil {
		t.Fatalf("postgres fixture: %v", err)
	}
	return pc
}

// Kafka returns the shared single-node broker.
func Kafka(t *testing.T) *KafkaContainer {
	t.Helper()
	kc, err := kafkaOnce()
	if err != nil {
		t.Fatalf("kafka fixture: %v", err)
	}
	return kc
}
