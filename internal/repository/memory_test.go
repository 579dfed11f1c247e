package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/community-services/internal/domain"
)

func newTicket(id string, created time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:        id,
		Category:  domain.CategoryServiceMaintenance,
		Title:     "Service Request - plumbing",
		Payload:   map[string]any{"serviceType": "plumbing"},
		Status:    domain.TicketStatusPending,
		Priority:  domain.TicketPriorityMedium,
		Submitter: "john.doe@company.com",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryTicketCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	ticket := newTicket("SR001", time.Now())

	require.NoError(t, repo.Create(ctx, ticket))
	assert.ErrorIs(t, repo.Create(ctx, ticket), ErrDuplicate)

	got, err := repo.GetByID(ctx, "SR001")
	require.NoError(t, err)
	got.Payload["serviceType"] = "changed"

	again, err := repo.GetByID(ctx, "SR001")
	require.NoError(t, err)
	assert.Equal(t, "plumbing", again.Payload["serviceType"])

	_, err = repo.GetByID(ctx, "SR999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTicketUpdateDiscardsFailedMutation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	require.NoError(t, repo.Create(ctx, newTicket("SR001", time.Now())))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "SR001", func(t *domain.Ticket) error {
		t.Status = domain.TicketStatusApproved
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.GetByID(ctx, "SR001")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, got.Status)
	assert.Zero(t, got.Version)

	updated, err := repo.Update(ctx, "SR001", func(t *domain.Ticket) error {
		t.Status = domain.TicketStatusApproved
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusApproved, updated.Status)
	assert.Equal(t, int64(1), updated.Version)
}

func TestMemoryTicketUpdateSerializesWriters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	require.NoError(t, repo.Create(ctx, newTicket("SR001", time.Now())))

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "SR001", func(t *domain.Ticket) error {
				t.Comments = append(t.Comments, domain.Comment{Text: "note"})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, "SR001")
	require.NoError(t, err)
	assert.Len(t, got.Comments, writers)
	assert.Equal(t, int64(writers), got.Version)
}

func TestMemoryTicketListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	first := newTicket("SR001", base)
	second := newTicket("SR002", base.Add(time.Minute))
	second.Submitter = "guest@visitor.com"
	third := newTicket("TRN001", base.Add(2*time.Minute))
	third.Category = domain.CategoryTransportBooking
	team := "Transport Team"
	third.Assignee = &team

	for _, ticket := range []*domain.Ticket{third, first, second} {
		require.NoError(t, repo.Create(ctx, ticket))
	}

	all, err := repo.List(ctx, TicketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"SR001", "SR002", "TRN001"}, []string{all[0].ID, all[1].ID, all[2].ID})

	submitter := "guest@visitor.com"
	mine, err := repo.List(ctx, TicketFilter{Submitter: &submitter})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "SR002", mine[0].ID)

	category := domain.CategoryTransportBooking
	transport, err := repo.List(ctx, TicketFilter{Category: &category, Assignee: &team})
	require.NoError(t, err)
	require.Len(t, transport, 1)

	page, err := repo.List(ctx, TicketFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "SR002", page[0].ID)
}

func TestMemoryTicketAppendComment(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	require.NoError(t, repo.Create(ctx, newTicket("SR001", time.Now())))

	at := time.Now().Add(time.Hour)
	require.NoError(t, repo.AppendComment(ctx, "SR001", domain.Comment{ID: "c1", Author: "admin", Text: "hello", CreatedAt: at}))
	assert.ErrorIs(t, repo.AppendComment(ctx, "nope", domain.Comment{}), ErrNotFound)

	got, err := repo.GetByID(ctx, "SR001")
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, at, got.UpdatedAt)
}

func TestMemoryWorkflowActivateDemotesPrevious(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWorkflowRepository()
	now := time.Now()

	older := &domain.WorkflowDefinition{ID: "wf-1", Category: domain.CategoryTransportBooking, Status: domain.WorkflowStatusActive, CreatedAt: now}
	newer := &domain.WorkflowDefinition{ID: "wf-2", Category: domain.CategoryTransportBooking, Status: domain.WorkflowStatusDraft, CreatedAt: now.Add(time.Second)}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	dup := &domain.WorkflowDefinition{ID: "wf-3", Category: domain.CategoryTransportBooking, Status: domain.WorkflowStatusActive}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicate)

	activated, err := repo.Activate(ctx, "wf-2", func(def *domain.WorkflowDefinition) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusActive, activated.Status)

	active, err := repo.GetActiveByCategory(ctx, domain.CategoryTransportBooking)
	require.NoError(t, err)
	assert.Equal(t, "wf-2", active.ID)

	previous, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusDraft, previous.Status)

	_, err = repo.GetActiveByCategory(ctx, domain.CategoryServiceMaintenance)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryWorkflowActivateRejectedByMutator(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWorkflowRepository()
	require.NoError(t, repo.Create(ctx, &domain.WorkflowDefinition{ID: "wf-1", Category: domain.CategoryServiceMaintenance, Status: domain.WorkflowStatusDraft}))

	invalid := errors.New("no steps")
	_, err := repo.Activate(ctx, "wf-1", func(def *domain.WorkflowDefinition) error { return invalid })
	assert.ErrorIs(t, err, invalid)

	got, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusDraft, got.Status)
}

func TestMemorySequencer(t *testing.T) {
	ctx := context.Background()
	seq := NewMemorySequencer()

	first, err := seq.Next(ctx, "REG")
	require.NoError(t, err)
	second, err := seq.Next(ctx, "REG")
	require.NoError(t, err)
	other, err := seq.Next(ctx, "TRN")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, int64(1), other)
}

func TestTicketRecordRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ticket := newTicket("SR001", at)
	ticket.Comments = []domain.Comment{{
		ID:     "c1",
		Author: "System",
		Text:   "Status changed from pending to approved",
		System: true,
		Change: &domain.StatusChange{
			PreviousStatus: domain.TicketStatusPending,
			NewStatus:      domain.TicketStatusApproved,
			Actor:          "admin@company.com",
			At:             at,
		},
		CreatedAt: at,
	}}
	ticket.Workflow = &domain.WorkflowProgress{
		WorkflowID:    "wf-1",
		CurrentStep:   2,
		ApproverRole:  domain.ApproverDeptHead,
		StepStartedAt: at,
		Approvals: []domain.StepApproval{{
			Order: 1, Name: "Manager", Outcome: domain.StepOutcomeApproved, Actor: "admin@company.com", DecidedAt: at,
		}},
	}

	rec, err := newTicketRecord(ticket)
	require.NoError(t, err)
	decoded, err := rec.toDomain()
	require.NoError(t, err)

	assert.Equal(t, ticket.Workflow, decoded.Workflow)
	assert.Equal(t, ticket.Comments, decoded.Comments)
	assert.Equal(t, "plumbing", decoded.Payload["serviceType"])
}
