package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/workhive/marketplace-service/internal/domain"
	"github.com/workhive/marketplace-service/internal/store"
)

type jobRepoStub struct {
	store.Repository

	job *domain.Job

	createdJob    *domain.Job
	createdEvents []domain.NotificationEvent

	updatedJob    *domain.Job
	updatedEvents []domain.NotificationEvent

	deletedID     uuid.UUID
	deletedEvents []domain.NotificationEvent
	deleteOK      bool
}

func (s *jobRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return &domain.User{ID: userID, Username: "owner"}, nil
}

func (s *jobRepoStub) FindJobByID(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	if s.job == nil || s.job.ID != jobID {
		return nil, store.ErrJobNotFound
	}
	jobCopy := *s.job
	return &jobCopy, nil
}

func (s *jobRepoStub) CreateJob(ctx context.Context, job *domain.Job, events []domain.NotificationEvent) error {
	s.createdJob = job
	s.createdEvents = events
	return nil
}

func (s *jobRepoStub) UpdateJob(ctx context.Context, job *domain.Job, events []domain.NotificationEvent) error {
	s.updatedJob = job
	s.updatedEvents = events
	return nil
}

func (s *jobRepoStub) SoftDeleteJob(ctx context.Context, jobID uuid.UUID, deletedAt time.Time, events []domain.NotificationEvent) (bool, error) {
	s.deletedID = jobID
	s.deletedEvents = events
	return s.deleteOK, nil
}

func TestCreate_StartsAtInitialStatuses(t *testing.T) {
	repo := &jobRepoStub{}
	svc := NewJobService(repo)
	ownerID := uuid.New()

	job, err := svc.Create(context.Background(), ownerID, domain.CreateJobPayload{
		Title:   "paint the fence",
		Payment: 400,
	})
	if err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("expected pending, got %q", job.Status)
	}
	if job.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("expected unpaid, got %q", job.PaymentStatus)
	}
	if job.CommissionStatus != domain.CommissionStatusRequested {
		t.Fatalf("expected requested, got %q", job.CommissionStatus)
	}
	if job.PendingAt == nil {
		t.Fatal("expected pending_at stamped")
	}
	if len(repo.createdEvents) != 1 || repo.createdEvents[0].Kind != domain.EventJobCreated {
		t.Fatalf("expected job.created event, got %+v", repo.createdEvents)
	}
}

func TestCreate_RejectsInvalidPayload(t *testing.T) {
	svc := NewJobService(&jobRepoStub{})

	_, err := svc.Create(context.Background(), uuid.New(), domain.CreateJobPayload{Title: "  ", Payment: 100})
	if !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload for empty title, got %v", err)
	}

	_, err = svc.Create(context.Background(), uuid.New(), domain.CreateJobPayload{Title: "ok", Payment: 0})
	if !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload for zero payment, got %v", err)
	}
}

func assignedJob(ownerID, workerID uuid.UUID) *domain.Job {
	return &domain.Job{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		WorkerID:         &workerID,
		Title:            "assemble wardrobe",
		Status:           domain.JobStatusApproved,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		CommissionStatus: domain.CommissionStatusRequested,
		Payment:          300,
	}
}

func TestUpdate_WorkerStartingJobNotifiesOwner(t *testing.T) {
	ownerID := uuid.New()
	workerID := uuid.New()
	repo := &jobRepoStub{job: assignedJob(ownerID, workerID)}
	svc := NewJobService(repo)

	status := domain.JobStatusInProgress
	job, err := svc.Update(context.Background(), workerID, repo.job.ID, domain.UpdateJobPayload{Status: &status})
	if err != nil {
		t.Fatalf("expected update to succeed, got %v", err)
	}
	if job.Status != domain.JobStatusInProgress {
		t.Fatalf("expected in_progress, got %q", job.Status)
	}
	if job.InProgressAt == nil {
		t.Fatal("expected in_progress_at stamped")
	}
	if len(repo.updatedEvents) != 1 {
		t.Fatalf("expected one event, got %d", len(repo.updatedEvents))
	}
	event := repo.updatedEvents[0]
	if event.Kind != domain.EventJobStarted || event.RecipientID != ownerID {
		t.Fatalf("expected job.started addressed to owner, got %+v", event)
	}
}

func TestUpdate_OwnerPayingNotifiesWorker(t *testing.T) {
	ownerID := uuid.New()
	workerID := uuid.New()
	repo := &jobRepoStub{job: assignedJob(ownerID, workerID)}
	svc := NewJobService(repo)

	paid := domain.PaymentStatusPaid
	_, err := svc.Update(context.Background(), ownerID, repo.job.ID, domain.UpdateJobPayload{PaymentStatus: &paid})
	if err != nil {
		t.Fatalf("expected update to succeed, got %v", err)
	}
	if len(repo.updatedEvents) != 1 {
		t.Fatalf("expected one event, got %d", len(repo.updatedEvents))
	}
	event := repo.updatedEvents[0]
	if event.Kind != domain.EventJobPaid || event.RecipientID != workerID {
		t.Fatalf("expected job.paid addressed to worker, got %+v", event)
	}
}

func TestUpdate_DowngradeRejectedAndNothingPersisted(t *testing.T) {
	ownerID := uuid.New()
	workerID := uuid.New()
	job := assignedJob(ownerID, workerID)
	job.PaymentStatus = domain.PaymentStatusPaid
	repo := &jobRepoStub{job: job}
	svc := NewJobService(repo)

	unpaid := domain.PaymentStatusUnpaid
	title := "also rename it"
	_, err := svc.Update(context.Background(), ownerID, job.ID, domain.UpdateJobPayload{
		Title:         &title,
		PaymentStatus: &unpaid,
	})
	if !errors.Is(err, ErrStatusDowngrade) {
		t.Fatalf("expected ErrStatusDowngrade, got %v", err)
	}
	if repo.updatedJob != nil {
		t.Fatal("expected no persistence when the update is rejected")
	}
}

func TestUpdate_RejectsStranger(t *testing.T) {
	repo := &jobRepoStub{job: assignedJob(uuid.New(), uuid.New())}
	svc := NewJobService(repo)

	title := "hijacked"
	_, err := svc.Update(context.Background(), uuid.New(), repo.job.ID, domain.UpdateJobPayload{Title: &title})
	if !errors.Is(err, ErrNotJobParty) {
		t.Fatalf("expected ErrNotJobParty, got %v", err)
	}
}

func TestSoftDelete_NotifiesAssignedWorker(t *testing.T) {
	ownerID := uuid.New()
	workerID := uuid.New()
	repo := &jobRepoStub{job: assignedJob(ownerID, workerID), deleteOK: true}
	svc := NewJobService(repo)

	if err := svc.SoftDelete(context.Background(), ownerID, repo.job.ID); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if repo.deletedID != repo.job.ID {
		t.Fatalf("expected job %s deleted, got %s", repo.job.ID, repo.deletedID)
	}
	if len(repo.deletedEvents) != 1 {
		t.Fatalf("expected one event, got %d", len(repo.deletedEvents))
	}
	event := repo.deletedEvents[0]
	if event.Kind != domain.EventJobCanceled || event.RecipientID != workerID {
		t.Fatalf("expected job.canceled addressed to worker, got %+v", event)
	}
}

func TestSoftDelete_OnlyOwnerMayCancel(t *testing.T) {
	ownerID := uuid.New()
	workerID := uuid.New()
	repo := &jobRepoStub{job: assignedJob(ownerID, workerID), deleteOK: true}
	svc := NewJobService(repo)

	err := svc.SoftDelete(context.Background(), workerID, repo.job.ID)
	if !errors.Is(err, ErrNotJobParty) {
		t.Fatalf("expected ErrNotJobParty, got %v", err)
	}
}
