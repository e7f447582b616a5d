//go:build integration

// Package containers starts the PostgreSQL, Redis and Redpanda instances the
// integration suites run against. Each is started once per test binary.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out lazily started, process-wide containers.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	kafka    *KafkaContainer
	redis    *RedisContainer
}

var manager = &Manager{}

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	return manager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return lazy(&m.mu, &m.postgres, func() *PostgresContainer { return NewPostgresContainer(t) })
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return lazy(&m.mu, &m.kafka, func() *KafkaContainer { return NewKafkaContainer(t) })
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return lazy(&m.mu, &m.redis, func() *RedisContainer { return NewRedisContainer(t) })
}

func lazy[T any](mu *sync.Mutex, slot **T, start func() *T) *T {
	mu.Lock()
	defer mu.Unlock()
	if *slot == nil {
		*slot = start()
	}
	return *slot
}
