/**
 * @description
 * Job lifecycle: the single authoritative status-setting operation for a job.
 * Each status family has its own transition type carrying its own ordering
 * table; the guard pattern-matches on the transition instead of dispatching
 * over field-name strings.
 *
 * Update-path transitions of payment_status and commission_status may only
 * move forward in the canonical ordering. Create-path transitions set the
 * initial value and are exempt. Job status transitions stamp the per-status
 * timestamp the first time a value is reached and never re-stamp it.
 */
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/workhive/marketplace-service/internal/domain"
)

// ErrStatusDowngrade is returned when an update-path transition would move a
// payment or commission status backwards in its canonical ordering. The job
// is left unmodified.
var ErrStatusDowngrade = errors.New("status downgrade forbidden")

// TransitionMode distinguishes create-path transitions (initial value, no
// ordering guard) from update-path transitions (guarded).
type TransitionMode int

const (
	TransitionCreate TransitionMode = iota
	TransitionUpdate
)

// StatusTransition is one requested status change on a single job, tagged by
// status family.
type StatusTransition interface {
	apply(job *domain.Job, mode TransitionMode, now time.Time) error
}

// JobStatusTransition moves a job's workflow status.
type JobStatusTransition struct {
	To domain.JobStatus
}

// PaymentStatusTransition moves a job's payment status.
type PaymentStatusTransition struct {
	To domain.PaymentStatus
}

// CommissionStatusTransition moves a job's commission status.
type CommissionStatusTransition struct {
	To domain.CommissionStatus
}

// ApplyTransition mutates job according to the transition, enforcing the
// forward-only invariant on update paths. On error the job is unchanged.
func ApplyTransition(job *domain.Job, tr StatusTransition, mode TransitionMode, now time.Time) error {
	return tr.apply(job, mode, now)
}

func (t JobStatusTransition) apply(job *domain.Job, mode TransitionMode, now time.Time) error {
	if _, ok := domain.JobStatusOrdinal(t.To); !ok {
		return fmt.Errorf("unknown job status %q", t.To)
	}

	job.Status = t.To
	stampJobStatus(job, t.To, now)
	return nil
}

func (t PaymentStatusTransition) apply(job *domain.Job, mode TransitionMode, now time.Time) error {
	next, ok := domain.PaymentStatusOrdinal(t.To)
	if !ok {
		return fmt.Errorf("unknown payment status %q", t.To)
	}

	if mode == TransitionUpdate {
		current, ok := domain.PaymentStatusOrdinal(job.PaymentStatus)
		if ok && next < current {
			return fmt.Errorf("payment status %s -> %s: %w", job.PaymentStatus, t.To, ErrStatusDowngrade)
		}
	}

	job.PaymentStatus = t.To
	return nil
}

func (t CommissionStatusTransition) apply(job *domain.Job, mode TransitionMode, now time.Time) error {
	next, ok := domain.CommissionStatusOrdinal(t.To)
	if !ok {
		return fmt.Errorf("unknown commission status %q", t.To)
	}

	if mode == TransitionUpdate {
		current, ok := domain.CommissionStatusOrdinal(job.CommissionStatus)
		if ok && next < current {
			return fmt.Errorf("commission status %s -> %s: %w", job.CommissionStatus, t.To, ErrStatusDowngrade)
		}
	}

	job.CommissionStatus = t.To
	return nil
}

// stampJobStatus records when a job status value was first reached. Returning
// to an already-stamped value keeps the original timestamp.
func stampJobStatus(job *domain.Job, status domain.JobStatus, now time.Time) {
	switch status {
	case domain.JobStatusPending:
		if job.PendingAt == nil {
			job.PendingAt = &now
		}
	case domain.JobStatusApproved:
		if job.ApprovedAt == nil {
			job.ApprovedAt = &now
		}
	case domain.JobStatusInProgress:
		if job.InProgressAt == nil {
			job.InProgressAt = &now
		}
	case domain.JobStatusFinished:
		if job.FinishedAt == nil {
			job.FinishedAt = &now
		}
	}
}
