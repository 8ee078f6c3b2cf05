/**
 * @description
 * Domain models for platform billing: the per-payer aggregated billing cycle
 * and its per-job commission line items.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlatformPayment is one payer's aggregated billing cycle. At most one
// payment per payer may be in the unpaid state at a time ("the open cycle");
// a new cycle is created lazily once the previous one leaves unpaid.
type PlatformPayment struct {
	ID                uuid.UUID             `json:"id"`
	PublicID          string                `json:"public_id"`
	PayerID           uuid.UUID             `json:"payer_id"`
	Status            PlatformPaymentStatus `json:"status"`
	RejectReason      *string               `json:"reject_reason,omitempty"`
	ProgressStartedAt *time.Time            `json:"progress_started_at,omitempty"`
	PaidAt            *time.Time            `json:"paid_at,omitempty"`
	RejectedAt        *time.Time            `json:"rejected_at,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// PlatformCommission is one job's commission obligation owed by one user,
// linked to the billing cycle that was open when the job was assigned.
// At most one row exists per (user, job) pair.
type PlatformCommission struct {
	ID        uuid.UUID `json:"id"`
	PaymentID uuid.UUID `json:"payment_id"`
	UserID    uuid.UUID `json:"user_id"`
	JobID     uuid.UUID `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CommissionCharge is a commission row joined to its job's payment amount,
// as read by the fee-collection batch when totalling what a payer owes.
type CommissionCharge struct {
	CommissionID uuid.UUID `json:"commission_id"`
	JobID        uuid.UUID `json:"job_id"`
	JobPayment   float64   `json:"job_payment"`
}

// ChargeRequest is the payload handed to the payment gateway client when the
// fee-collection batch charges a payer's stored card. The payment public id
// travels in the gateway's correlation metadata so the settlement webhook can
// be matched back to this billing cycle.
type ChargeRequest struct {
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	CardToken       string  `json:"card_token"`
	CustomerToken   string  `json:"customer_token"`
	PaymentPublicID string  `json:"payment_public_id"`
}
