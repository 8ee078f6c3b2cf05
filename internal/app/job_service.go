/**
 * @description
 * Business logic for job posting, updating and cancellation. All status
 * changes funnel through the lifecycle transitions, so the forward-only
 * guard on payment and commission status holds on every path.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/workhive/marketplace-service/internal/domain"
	"github.com/workhive/marketplace-service/internal/store"
)

var (
	// ErrNotJobParty is returned when the caller is neither the owner nor the
	// assigned worker of the job they are trying to modify.
	ErrNotJobParty = errors.New("caller is not a party to this job")

	// ErrInvalidJobPayload is returned when a create or update request fails
	// field validation.
	ErrInvalidJobPayload = errors.New("invalid job payload")
)

// JobService provides the business logic for the job lifecycle.
type JobService struct {
	repo store.Repository
}

// NewJobService creates a new job service.
func NewJobService(repo store.Repository) JobService {
	return JobService{repo: repo}
}

// Create posts a new job for ownerID. The job starts pending / unpaid /
// requested via create-path transitions and pending_at is stamped.
func (s JobService) Create(ctx context.Context, ownerID uuid.UUID, payload domain.CreateJobPayload) (*domain.Job, error) {
	if strings.TrimSpace(payload.Title) == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidJobPayload)
	}
	if payload.Payment <= 0 {
		return nil, fmt.Errorf("%w: payment must be positive", ErrInvalidJobPayload)
	}
	if payload.Commission < 0 {
		return nil, fmt.Errorf("%w: commission cannot be negative", ErrInvalidJobPayload)
	}

	if _, err := s.repo.FindUserByID(ctx, ownerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:               uuid.New(),
		PublicID:         "job_" + uuid.NewString(),
		OwnerID:          ownerID,
		Title:            strings.TrimSpace(payload.Title),
		Description:      payload.Description,
		Payment:          payload.Payment,
		Commission:       payload.Commission,
		CommissionSymbol: payload.CommissionSymbol,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	transitions := []StatusTransition{
		JobStatusTransition{To: domain.JobStatusPending},
		PaymentStatusTransition{To: domain.PaymentStatusUnpaid},
		CommissionStatusTransition{To: domain.CommissionStatusRequested},
	}
	for _, tr := range transitions {
		if err := ApplyTransition(job, tr, TransitionCreate, now); err != nil {
			return nil, err
		}
	}

	events := []domain.NotificationEvent{
		domain.NewJobEvent(domain.EventJobCreated, ownerID, job.ID, now),
	}
	if err := s.repo.CreateJob(ctx, job, events); err != nil {
		return nil, err
	}

	return job, nil
}

// Get fetches one job.
func (s JobService) Get(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return s.repo.FindJobByID(ctx, jobID)
}

// Update applies a partial update on behalf of actorID, who must be the
// owner or the assigned worker. Status fields go through update-path
// transitions: a payment or commission downgrade rejects the whole request
// and nothing is persisted. Each effective status change notifies the other
// party of the job.
func (s JobService) Update(ctx context.Context, actorID, jobID uuid.UUID, payload domain.UpdateJobPayload) (*domain.Job, error) {
	job, err := s.repo.FindJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := requireJobParty(job, actorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if payload.Title != nil {
		if strings.TrimSpace(*payload.Title) == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidJobPayload)
		}
		job.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Description != nil {
		job.Description = *payload.Description
	}
	if payload.Payment != nil {
		if *payload.Payment <= 0 {
			return nil, fmt.Errorf("%w: payment must be positive", ErrInvalidJobPayload)
		}
		job.Payment = *payload.Payment
	}
	if payload.Commission != nil {
		if *payload.Commission < 0 {
			return nil, fmt.Errorf("%w: commission cannot be negative", ErrInvalidJobPayload)
		}
		job.Commission = *payload.Commission
	}

	var events []domain.NotificationEvent
	counterparty, hasCounterparty := jobCounterparty(job, actorID)

	if payload.Status != nil && *payload.Status != job.Status {
		if err := ApplyTransition(job, JobStatusTransition{To: *payload.Status}, TransitionUpdate, now); err != nil {
			return nil, err
		}
		if hasCounterparty {
			if kind, ok := jobStatusEventKind(*payload.Status); ok {
				events = append(events, domain.NewJobEvent(kind, counterparty, job.ID, now))
			}
		}
	}

	if payload.PaymentStatus != nil && *payload.PaymentStatus != job.PaymentStatus {
		if err := ApplyTransition(job, PaymentStatusTransition{To: *payload.PaymentStatus}, TransitionUpdate, now); err != nil {
			return nil, err
		}
		if hasCounterparty && *payload.PaymentStatus == domain.PaymentStatusPaid {
			events = append(events, domain.NewJobEvent(domain.EventJobPaid, counterparty, job.ID, now))
		}
	}

	if payload.CommissionStatus != nil && *payload.CommissionStatus != job.CommissionStatus {
		if err := ApplyTransition(job, CommissionStatusTransition{To: *payload.CommissionStatus}, TransitionUpdate, now); err != nil {
			return nil, err
		}
		if hasCounterparty {
			if kind, ok := commissionStatusEventKind(*payload.CommissionStatus); ok {
				events = append(events, domain.NewJobEvent(kind, counterparty, job.ID, now))
			}
		}
	}

	job.UpdatedAt = now
	if err := s.repo.UpdateJob(ctx, job, events); err != nil {
		return nil, err
	}

	return job, nil
}

// SoftDelete cancels a job. Only the owner may cancel; the assigned worker,
// if any, is notified.
func (s JobService) SoftDelete(ctx context.Context, actorID, jobID uuid.UUID) error {
	job, err := s.repo.FindJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OwnerID != actorID {
		return ErrNotJobParty
	}

	now := time.Now().UTC()
	var events []domain.NotificationEvent
	if job.WorkerID != nil {
		events = append(events, domain.NewJobEvent(domain.EventJobCanceled, *job.WorkerID, job.ID, now))
	}

	deleted, err := s.repo.SoftDeleteJob(ctx, jobID, now, events)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrJobNotFound
	}
	return nil
}

func requireJobParty(job *domain.Job, actorID uuid.UUID) error {
	if job.OwnerID == actorID {
		return nil
	}
	if job.WorkerID != nil && *job.WorkerID == actorID {
		return nil
	}
	return ErrNotJobParty
}

// jobCounterparty returns the other party of the job relative to the actor:
// the worker when the owner acts, the owner when the worker acts.
func jobCounterparty(job *domain.Job, actorID uuid.UUID) (uuid.UUID, bool) {
	if job.OwnerID == actorID {
		if job.WorkerID != nil {
			return *job.WorkerID, true
		}
		return uuid.Nil, false
	}
	return job.OwnerID, true
}

func jobStatusEventKind(status domain.JobStatus) (domain.EventKind, bool) {
	switch status {
	case domain.JobStatusInProgress:
		return domain.EventJobStarted, true
	case domain.JobStatusFinished:
		return domain.EventJobDone, true
	default:
		return "", false
	}
}

func commissionStatusEventKind(status domain.CommissionStatus) (domain.EventKind, bool) {
	switch status {
	case domain.CommissionStatusRequested:
		return domain.EventCommissionRequested, true
	case domain.CommissionStatusDeny:
		return domain.EventCommissionDenied, true
	case domain.CommissionStatusPaid:
		return domain.EventCommissionPaid, true
	case domain.CommissionStatusSent:
		return domain.EventCommissionSent, true
	default:
		return "", false
	}
}
