/**
 * @description
 * Business logic for worker applications: applying to a pending job and the
 * owner's accept/decline resolution. Acceptance is the hinge of the whole
 * marketplace flow, so it runs as a single repository transaction that
 * declines siblings, assigns the worker, approves the job and opens the
 * commission ledger for both parties.
 */
package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/workhive/marketplace-service/internal/domain"
	"github.com/workhive/marketplace-service/internal/store"
)

var (
	// ErrSelfApplication is returned when a job owner applies to their own job.
	ErrSelfApplication = errors.New("cannot apply to your own job")

	// ErrRateLimited is returned when the caller exceeded the application
	// rate limit. RetryAfterSeconds travels alongside via RateLimitError.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RateLimitError wraps ErrRateLimited with the retry hint from the limiter.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RateLimitResult reports the window state after counting one attempt.
type RateLimitResult struct {
	Count             int
	RetryAfterSeconds int
}

// RateLimiter counts an attempt against a per-subject window. A nil limiter
// disables rate limiting.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitResult, error)
}

// ApplicationService provides the business logic for job applications.
type ApplicationService struct {
	repo        store.Repository
	limiter     RateLimiter
	applyLimit  int
	applyWindow time.Duration
}

// NewApplicationService creates a new application service. limiter may be nil.
func NewApplicationService(repo store.Repository, limiter RateLimiter, applyLimit int, applyWindow time.Duration) ApplicationService {
	return ApplicationService{
		repo:        repo,
		limiter:     limiter,
		applyLimit:  applyLimit,
		applyWindow: applyWindow,
	}
}

// Apply creates a pending application by workerID on jobID. A job that is
// missing, deleted or no longer pending is reported as not found: workers
// never learn more about a job they can no longer apply to. The owner is
// notified of every new application.
func (s ApplicationService) Apply(ctx context.Context, workerID, jobID uuid.UUID) (*domain.Application, error) {
	if s.limiter != nil && s.applyLimit > 0 {
		usage, err := s.limiter.ConsumeRateLimit(ctx, "job_apply", workerID.String(), s.applyLimit, s.applyWindow)
		if err != nil {
			// Limiter outage must not take applications down with it.
			log.Printf("level=warn component=application_service msg=\"rate limiter unavailable, allowing request\" error=%q", err.Error())
		} else if usage.Count > s.applyLimit {
			return nil, &RateLimitError{RetryAfterSeconds: usage.RetryAfterSeconds}
		}
	}

	job, err := s.repo.FindJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPending {
		return nil, store.ErrJobNotFound
	}
	if job.OwnerID == workerID {
		return nil, ErrSelfApplication
	}
	if _, err := s.repo.FindUserByID(ctx, workerID); err != nil {
		return nil, err
	}

	// Fast-path duplicate check; the partial unique index closes the race.
	exists, err := s.repo.HasActiveApplication(ctx, jobID, workerID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrDuplicateApplication
	}

	now := time.Now().UTC()
	application := &domain.Application{
		ID:              uuid.New(),
		JobID:           jobID,
		OwnerID:         job.OwnerID,
		WorkerID:        workerID,
		Status:          domain.ApplicationStatusPending,
		StatusChangedAt: now,
		CreatedAt:       now,
	}

	events := []domain.NotificationEvent{
		domain.NewApplicationEvent(domain.EventApplicationCreated, job.OwnerID, jobID, application.ID, now),
	}
	if err := s.repo.CreateApplication(ctx, application, events); err != nil {
		return nil, err
	}

	return application, nil
}

// Accept resolves an application positively on behalf of actorID, who must
// own the job. In one transaction: every sibling application is declined
// (each declined worker notified), the worker is assigned, the job moves to
// approved, and both parties get a commission ledger entry on their open
// billing cycle. The accepted worker's notification is enqueued after the
// sibling rejections.
func (s ApplicationService) Accept(ctx context.Context, actorID, applicationID uuid.UUID) (*store.AcceptApplicationResult, error) {
	application, err := s.repo.FindApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.OwnerID != actorID {
		return nil, ErrNotJobParty
	}
	if application.Status == domain.ApplicationStatusDeclined {
		return nil, store.ErrApplicationNotFound
	}
	if err := s.revalidateParties(ctx, application); err != nil {
		return nil, err
	}

	job, err := s.repo.FindJobByID(ctx, application.JobID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workerID := application.WorkerID
	job.WorkerID = &workerID
	if err := ApplyTransition(job, JobStatusTransition{To: domain.JobStatusApproved}, TransitionUpdate, now); err != nil {
		return nil, err
	}
	job.UpdatedAt = now

	trailing := []domain.NotificationEvent{
		domain.NewApplicationEvent(domain.EventApplicationAccepted, workerID, job.ID, application.ID, now),
	}

	return s.repo.AcceptApplication(ctx, store.AcceptApplicationParams{
		Application:    application,
		Job:            job,
		Now:            now,
		TrailingEvents: trailing,
	})
}

// Decline resolves an application negatively on behalf of actorID, who must
// own the job. The worker is notified.
func (s ApplicationService) Decline(ctx context.Context, actorID, applicationID uuid.UUID) (*domain.Application, error) {
	application, err := s.repo.FindApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.OwnerID != actorID {
		return nil, ErrNotJobParty
	}
	if err := s.revalidateParties(ctx, application); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	events := []domain.NotificationEvent{
		domain.NewApplicationEvent(domain.EventApplicationRejected, application.WorkerID, application.JobID, application.ID, now),
	}
	return s.repo.DeclineApplication(ctx, applicationID, now, events)
}

// revalidateParties re-checks invariants that create already enforced.
// create's guards should make these unreachable, but a resolution can arrive
// long after the application was made.
func (s ApplicationService) revalidateParties(ctx context.Context, application *domain.Application) error {
	if application.WorkerID == application.OwnerID {
		return ErrSelfApplication
	}
	if _, err := s.repo.FindUserByID(ctx, application.WorkerID); err != nil {
		return err
	}
	if _, err := s.repo.FindUserByID(ctx, application.OwnerID); err != nil {
		return err
	}
	return nil
}
