/**
 * @description
 * This file defines the `Repository` interface: the contract for all data
 * access the marketplace-service needs. Keeping the interface separate from
 * the PostgreSQL implementation lets the business logic be exercised against
 * hand-rolled stubs in tests.
 *
 * Mutating methods that accept a slice of notification events write those
 * events into the transactional outbox inside the same database transaction
 * as the mutation, in slice order. The outbox sequence therefore preserves
 * emission order end to end.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/workhive/marketplace-service/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrJobNotFound          = errors.New("job not found")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrPaymentNotFound      = errors.New("platform payment not found")
	ErrDuplicateApplication = errors.New("active application already exists for this job and worker")
)

// OutboxMessage is one claimed notification outbox row ready for publishing.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// AcceptApplicationParams carries everything the acceptance transaction
// needs. Job holds the already-transitioned state (worker set, status
// approved, timestamp stamped); the repository persists it, declines the
// sibling applications, creates the commission ledger rows for both parties
// and enqueues TrailingEvents after the per-sibling rejection events.
type AcceptApplicationParams struct {
	Application    *domain.Application
	Job            *domain.Job
	Now            time.Time
	TrailingEvents []domain.NotificationEvent
}

// AcceptApplicationResult reports what the acceptance transaction did.
type AcceptApplicationResult struct {
	Application     *domain.Application
	DeclinedWorkers []uuid.UUID
	WorkerPaymentID uuid.UUID
	OwnerPaymentID  uuid.UUID
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Users
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Jobs
	CreateJob(ctx context.Context, job *domain.Job, events []domain.NotificationEvent) error
	FindJobByID(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)
	UpdateJob(ctx context.Context, job *domain.Job, events []domain.NotificationEvent) error
	SoftDeleteJob(ctx context.Context, jobID uuid.UUID, deletedAt time.Time, events []domain.NotificationEvent) (bool, error)

	// Applications
	FindApplicationByID(ctx context.Context, applicationID uuid.UUID) (*domain.Application, error)
	HasActiveApplication(ctx context.Context, jobID, workerID uuid.UUID) (bool, error)
	CreateApplication(ctx context.Context, application *domain.Application, events []domain.NotificationEvent) error
	AcceptApplication(ctx context.Context, params AcceptApplicationParams) (*AcceptApplicationResult, error)
	DeclineApplication(ctx context.Context, applicationID uuid.UUID, statusChangedAt time.Time, events []domain.NotificationEvent) (*domain.Application, error)

	// Commission ledger
	GetOrCreateOpenPayment(ctx context.Context, payerID uuid.UUID) (*domain.PlatformPayment, error)
	GetOrCreateCommission(ctx context.Context, payerID, jobID, paymentID uuid.UUID) (*domain.PlatformCommission, error)
	CreateApplicationPayments(ctx context.Context, jobID, ownerID, workerID uuid.UUID) error

	// Fee collection and settlement
	ListCollectablePayments(ctx context.Context, progressStaleBefore time.Time) ([]domain.PlatformPayment, error)
	ClaimPaymentForCollection(ctx context.Context, paymentID uuid.UUID, now time.Time, progressStaleBefore time.Time) (bool, error)
	ListCommissionCharges(ctx context.Context, paymentID uuid.UUID) ([]domain.CommissionCharge, error)
	FindPaymentByPublicID(ctx context.Context, publicID string) (*domain.PlatformPayment, error)
	ListPaymentsByPayer(ctx context.Context, payerID uuid.UUID) ([]domain.PlatformPayment, error)
	MarkPaymentPaid(ctx context.Context, paymentID uuid.UUID, paidAt time.Time, events []domain.NotificationEvent) error
	MarkPaymentRejected(ctx context.Context, paymentID uuid.UUID, reason string, rejectedAt time.Time, events []domain.NotificationEvent) error

	// Notification outbox
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}
