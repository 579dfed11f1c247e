package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/community-services/internal/domain"
)

// WorkflowFilter narrows workflow listings.
type WorkflowFilter struct {
	Category *domain.Category
	Status   *domain.WorkflowStatus
}

// WorkflowMutator edits a definition copy. Returning an error discards the edit.
type WorkflowMutator func(def *domain.WorkflowDefinition) error

// WorkflowRepository persists workflow definitions. At most one definition
// per category is active; Activate demotes the previous one atomically.
type WorkflowRepository interface {
	Create(ctx context.Context, def *domain.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	GetActiveByCategory(ctx context.Context, category domain.Category) (*domain.WorkflowDefinition, error)
	List(ctx context.Context, filter WorkflowFilter) ([]domain.WorkflowDefinition, error)
	Update(ctx context.Context, id string, mutate WorkflowMutator) (*domain.WorkflowDefinition, error)
	Activate(ctx context.Context, id string, mutate WorkflowMutator) (*domain.WorkflowDefinition, error)
}

type workflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository instantiates the Postgres repository.
func NewWorkflowRepository(pool *pgxpool.Pool) WorkflowRepository {
	return &workflowRepository{pool: pool}
}

const workflowColumns = `id, name, category, description, priority, sla_hours, steps, conditions,
               notifications, status, created_by, created_at, updated_at`

func (r *workflowRepository) Create(ctx context.Context, def *domain.WorkflowDefinition) error {
	rec, err := newWorkflowRecord(def)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO workflow_definitions (id, name, category, description, priority, sla_hours, steps, conditions, notifications, status, created_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.Name,
		rec.Category,
		rec.Description,
		rec.Priority,
		rec.SLAHours,
		rec.Steps,
		rec.Conditions,
		rec.Notifications,
		rec.Status,
		rec.CreatedBy,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *workflowRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions WHERE id=$1`
	return notFoundOnNoRows(scanWorkflow(r.pool.QueryRow(ctx, query, id)))
}

func (r *workflowRepository) GetActiveByCategory(ctx context.Context, category domain.Category) (*domain.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions WHERE category=$1 AND status='active'`
	return notFoundOnNoRows(scanWorkflow(r.pool.QueryRow(ctx, query, string(category))))
}

func (r *workflowRepository) List(ctx context.Context, filter WorkflowFilter) ([]domain.WorkflowDefinition, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM workflow_definitions WHERE %s ORDER BY created_at ASC, id ASC`,
		workflowColumns, strings.Join(clauses, " AND "))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WorkflowDefinition
	for rows.Next() {
		def, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *def)
	}
	return result, rows.Err()
}

func (r *workflowRepository) Update(ctx context.Context, id string, mutate WorkflowMutator) (*domain.WorkflowDefinition, error) {
	var updated *domain.WorkflowDefinition
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		def, err := r.lockWorkflow(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(def); err != nil {
			return err
		}
		if err := r.save(ctx, tx, def); err != nil {
			return err
		}
		updated = def
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *workflowRepository) Activate(ctx context.Context, id string, mutate WorkflowMutator) (*domain.WorkflowDefinition, error) {
	var activated *domain.WorkflowDefinition
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		def, err := r.lockWorkflow(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(def); err != nil {
			return err
		}
		const demote = `
            UPDATE workflow_definitions SET status='draft', updated_at=$1
            WHERE category=$2 AND status='active' AND id<>$3`
		if _, err := tx.Exec(ctx, demote, def.UpdatedAt, string(def.Category), def.ID); err != nil {
			return err
		}
		def.Status = domain.WorkflowStatusActive
		if err := r.save(ctx, tx, def); err != nil {
			return err
		}
		activated = def
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

func (r *workflowRepository) lockWorkflow(ctx context.Context, tx pgx.Tx, id string) (*domain.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions WHERE id=$1 FOR UPDATE`
	return notFoundOnNoRows(scanWorkflow(tx.QueryRow(ctx, query, id)))
}

func (r *workflowRepository) save(ctx context.Context, tx pgx.Tx, def *domain.WorkflowDefinition) error {
	rec, err := newWorkflowRecord(def)
	if err != nil {
		return err
	}
	const query = `
        UPDATE workflow_definitions SET name=$1, category=$2, description=$3, priority=$4, sla_hours=$5,
            steps=$6, conditions=$7, notifications=$8, status=$9, updated_at=$10
        WHERE id=$11`
	_, err = tx.Exec(ctx, query,
		rec.Name,
		rec.Category,
		rec.Description,
		rec.Priority,
		rec.SLAHours,
		rec.Steps,
		rec.Conditions,
		rec.Notifications,
		rec.Status,
		rec.UpdatedAt,
		rec.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func scanWorkflow(row pgx.Row) (*domain.WorkflowDefinition, error) {
	var rec workflowRecord
	if err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Category,
		&rec.Description,
		&rec.Priority,
		&rec.SLAHours,
		&rec.Steps,
		&rec.Conditions,
		&rec.Notifications,
		&rec.Status,
		&rec.CreatedBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return rec.toDomain()
}

func notFoundOnNoRows(def *domain.WorkflowDefinition, err error) (*domain.WorkflowDefinition, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return def, err
}
