package repository

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Sequencer hands out monotonically increasing counters per ticket prefix.
type Sequencer interface {
	Next(ctx context.Context, prefix string) (int64, error)
}

type memorySequencer struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemorySequencer returns a process-local counter.
func NewMemorySequencer() Sequencer {
	return &memorySequencer{counters: make(map[string]int64)}
}

func (s *memorySequencer) Next(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[prefix]++
	return s.counters[prefix], nil
}

const redisSequenceKeyPrefix = "ticket-seq:"

type redisSequencer struct {
	client *redis.Client
}

// NewRedisSequencer shares counters across replicas via INCR.
func NewRedisSequencer(client *redis.Client) Sequencer {
	return &redisSequencer{client: client}
}

func (s *redisSequencer) Next(ctx context.Context, prefix string) (int64, error) {
	return s.client.Incr(ctx, redisSequenceKeyPrefix+prefix).Result()
}

type postgresSequencer struct {
	pool *pgxpool.Pool
}

// NewPostgresSequencer keeps counters in the ticket_sequences table.
func NewPostgresSequencer(pool *pgxpool.Pool) Sequencer {
	return &postgresSequencer{pool: pool}
}

func (s *postgresSequencer) Next(ctx context.Context, prefix string) (int64, error) {
	const query = `
        INSERT INTO ticket_sequences (prefix, value) VALUES ($1, 1)
        ON CONFLICT (prefix) DO UPDATE SET value = ticket_sequences.value + 1
        RETURNING value`
	var value int64
	err := s.pool.QueryRow(ctx, query, prefix).Scan(&value)
	return value, err
}
