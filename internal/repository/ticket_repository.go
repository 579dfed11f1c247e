package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/community-services/internal/domain"
)

// TicketFilter captures listing parameters. Nil fields are unconstrained.
type TicketFilter struct {
	Category    *domain.Category
	Status      *domain.TicketStatus
	Submitter   *string
	Assignee    *string
	HasWorkflow bool
	Limit       int
	Offset      int
}

// TicketMutator edits a ticket copy. Returning an error discards the edit.
type TicketMutator func(ticket *domain.Ticket) error

// TicketRepository encapsulates ticket persistence. Update and
// AppendComment are serialized per ticket id.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Update(ctx context.Context, id string, mutate TicketMutator) (*domain.Ticket, error)
	AppendComment(ctx context.Context, id string, comment domain.Comment) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, category, title, payload, status, priority, submitter, assignee,
               comments, workflow, version, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	rec, err := newTicketRecord(ticket)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (id, category, title, payload, status, priority, submitter, assignee, comments, workflow, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.Category,
		rec.Title,
		rec.Payload,
		rec.Status,
		rec.Priority,
		rec.Submitter,
		rec.Assignee,
		rec.Comments,
		rec.Workflow,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Submitter != nil {
		args = append(args, *filter.Submitter)
		clauses = append(clauses, fmt.Sprintf("submitter=$%d", len(args)))
	}
	if filter.Assignee != nil {
		args = append(args, *filter.Assignee)
		clauses = append(clauses, fmt.Sprintf("assignee=$%d", len(args)))
	}
	if filter.HasWorkflow {
		clauses = append(clauses, "workflow IS NOT NULL")
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at ASC, id ASC`,
		ticketColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// Update locks the row for the duration of the mutator.
func (r *ticketRepository) Update(ctx context.Context, id string, mutate TicketMutator) (*domain.Ticket, error) {
	var updated *domain.Ticket
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
		current, err := scanTicket(tx.QueryRow(ctx, query, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		previousVersion := current.Version
		if err := mutate(current); err != nil {
			return err
		}
		current.Version = previousVersion + 1

		rec, err := newTicketRecord(current)
		if err != nil {
			return err
		}
		const update = `
            UPDATE tickets SET title=$1, payload=$2, status=$3, priority=$4, assignee=$5,
                comments=$6, workflow=$7, version=$8, updated_at=$9
            WHERE id=$10 AND version=$11`
		cmd, err := tx.Exec(ctx, update,
			rec.Title,
			rec.Payload,
			rec.Status,
			rec.Priority,
			rec.Assignee,
			rec.Comments,
			rec.Workflow,
			rec.Version,
			rec.UpdatedAt,
			rec.ID,
			previousVersion,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrStale
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *ticketRepository) AppendComment(ctx context.Context, id string, comment domain.Comment) error {
	encoded, err := encodeComments([]domain.Comment{comment})
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET comments = comments || $1::jsonb, version = version + 1, updated_at = $2
        WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, encoded, comment.CreatedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var rec ticketRecord
	if err := row.Scan(
		&rec.ID,
		&rec.Category,
		&rec.Title,
		&rec.Payload,
		&rec.Status,
		&rec.Priority,
		&rec.Submitter,
		&rec.Assignee,
		&rec.Comments,
		&rec.Workflow,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return rec.toDomain()
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
