/**
 * @description
 * Core domain models for the marketplace-service: jobs, applications and the
 * users they reference. These structs map directly to their database tables.
 *
 * @notes
 * - Monetary amounts are decimal values in whole currency units; everything
 *   submitted to the payment gateway is rounded to two decimal places first.
 * - Jobs are soft-deleted only (deleted_at), never removed.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job represents a posted task with an owner and, once assigned, a worker.
// Each job status value reached gets its own timestamp column; they are
// stamped once and never overwritten (append-only history).
type Job struct {
	ID               uuid.UUID        `json:"id"`
	PublicID         string           `json:"public_id"`
	OwnerID          uuid.UUID        `json:"owner_id"`
	WorkerID         *uuid.UUID       `json:"worker_id,omitempty"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Status           JobStatus        `json:"status"`
	PaymentStatus    PaymentStatus    `json:"payment_status"`
	CommissionStatus CommissionStatus `json:"commission_status"`
	Payment          float64          `json:"payment"`
	Commission       float64          `json:"commission"`
	CommissionSymbol string           `json:"commission_symbol"`
	PendingAt        *time.Time       `json:"pending_at,omitempty"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
	InProgressAt     *time.Time       `json:"in_progress_at,omitempty"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
	DeletedAt        *time.Time       `json:"-"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Application is a worker's request to be assigned to a pending job. The
// owner is denormalized from the job so resolution checks never need a join.
type Application struct {
	ID              uuid.UUID         `json:"id"`
	JobID           uuid.UUID         `json:"job_id"`
	OwnerID         uuid.UUID         `json:"owner_id"`
	WorkerID        uuid.UUID         `json:"worker_id"`
	Status          ApplicationStatus `json:"status"`
	StatusChangedAt time.Time         `json:"status_changed_at"`
	CreatedAt       time.Time         `json:"created_at"`
}

// User is the simplified view of a user the marketplace core needs: identity
// plus the stored gateway tokens used when charging platform commissions.
type User struct {
	ID            uuid.UUID  `json:"id"`
	Username      string     `json:"username"`
	CardToken     *string    `json:"-"`
	CustomerToken *string    `json:"-"`
	DeletedAt     *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CreateJobPayload is the DTO for the job-posting API request.
type CreateJobPayload struct {
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Payment          float64 `json:"payment"`
	Commission       float64 `json:"commission"`
	CommissionSymbol string  `json:"commission_symbol"`
}

// UpdateJobPayload is the DTO for the owner's job patch request. Status
// fields go through the lifecycle update path (downgrade-guarded); nil means
// "leave unchanged".
type UpdateJobPayload struct {
	Title            *string           `json:"title,omitempty"`
	Description      *string           `json:"description,omitempty"`
	Payment          *float64          `json:"payment,omitempty"`
	Commission       *float64          `json:"commission,omitempty"`
	Status           *JobStatus        `json:"status,omitempty"`
	PaymentStatus    *PaymentStatus    `json:"payment_status,omitempty"`
	CommissionStatus *CommissionStatus `json:"commission_status,omitempty"`
}
