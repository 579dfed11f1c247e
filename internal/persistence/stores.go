package persistence

import (
	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/repository"
)

// Stores groups the repositories the services depend on.
type Stores struct {
	Tickets   repository.TicketRepository
	Workflows repository.WorkflowRepository
	Sequencer repository.Sequencer
}

// NewStores selects Postgres-backed repositories when a pool is open and
// in-memory ones otherwise. Ticket counters prefer Redis, then Postgres.
func NewStores(pg *Postgres, rdb *Redis, logger *zap.Logger) Stores {
	var stores Stores
	if pg.Enabled() {
		stores.Tickets = repository.NewTicketRepository(pg.Pool)
		stores.Workflows = repository.NewWorkflowRepository(pg.Pool)
		stores.Sequencer = repository.NewPostgresSequencer(pg.Pool)
		logger.Info("using postgres stores")
	} else {
		stores.Tickets = repository.NewMemoryTicketRepository()
		stores.Workflows = repository.NewMemoryWorkflowRepository()
		stores.Sequencer = repository.NewMemorySequencer()
		logger.Info("using in-memory stores")
	}

	if rdb.Enabled() {
		stores.Sequencer = repository.NewRedisSequencer(rdb.Client)
		logger.Info("ticket id counters backed by redis")
	}
	return stores
}
