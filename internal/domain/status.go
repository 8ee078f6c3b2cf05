/**
 * @description
 * Status enumerations for jobs, applications and platform billing records.
 *
 * @notes
 * - The orderings below drive the "no downgrade" guard in the lifecycle
 *   package. They are business rules, not declaration-order accidents, so
 *   each family keeps an explicit ordered slice. CommissionStatus in
 *   particular is intentionally irregular: REQUESTED sorts before UNPAID.
 */
package domain

// JobStatus is the workflow state of a posted job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusApproved   JobStatus = "approved"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusFinished   JobStatus = "job_is_finished"
)

// PaymentStatus tracks whether the owner has paid the worker for a job.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// CommissionStatus tracks the platform commission state on a job.
type CommissionStatus string

const (
	CommissionStatusRequested CommissionStatus = "requested"
	CommissionStatusUnpaid    CommissionStatus = "unpaid"
	CommissionStatusDeny      CommissionStatus = "deny"
	CommissionStatusConfirm   CommissionStatus = "confirm"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusSent      CommissionStatus = "sent"
)

// ApplicationStatus is the state of a worker's application to a job.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusDeclined ApplicationStatus = "declined"
)

// PlatformPaymentStatus is the state of a payer's aggregated billing cycle.
type PlatformPaymentStatus string

const (
	PlatformPaymentStatusUnpaid   PlatformPaymentStatus = "unpaid"
	PlatformPaymentStatusRejected PlatformPaymentStatus = "rejected"
	PlatformPaymentStatusProgress PlatformPaymentStatus = "progress"
	PlatformPaymentStatusPaid     PlatformPaymentStatus = "paid"
)

// Canonical orderings. Index position defines the ordinal used by the
// downgrade guard: a transition to a lower index on an update path is
// rejected.
var (
	JobStatusOrder = []JobStatus{
		JobStatusPending,
		JobStatusApproved,
		JobStatusInProgress,
		JobStatusFinished,
	}

	PaymentStatusOrder = []PaymentStatus{
		PaymentStatusUnpaid,
		PaymentStatusPaid,
	}

	// REQUESTED precedes UNPAID here. Do not "fix" this into alphabetical
	// or semantic order; the guard depends on exactly this sequence.
	CommissionStatusOrder = []CommissionStatus{
		CommissionStatusRequested,
		CommissionStatusUnpaid,
		CommissionStatusDeny,
		CommissionStatusConfirm,
		CommissionStatusPaid,
		CommissionStatusSent,
	}
)

// JobStatusOrdinal returns the position of s in the canonical job status
// ordering, or false when s is not a known status.
func JobStatusOrdinal(s JobStatus) (int, bool) {
	for i, v := range JobStatusOrder {
		if v == s {
			return i, true
		}
	}
	return 0, false
}

// PaymentStatusOrdinal returns the position of s in the canonical payment
// status ordering.
func PaymentStatusOrdinal(s PaymentStatus) (int, bool) {
	for i, v := range PaymentStatusOrder {
		if v == s {
			return i, true
		}
	}
	return 0, false
}

// CommissionStatusOrdinal returns the position of s in the canonical
// commission status ordering.
func CommissionStatusOrdinal(s CommissionStatus) (int, bool) {
	for i, v := range CommissionStatusOrder {
		if v == s {
			return i, true
		}
	}
	return 0, false
}
