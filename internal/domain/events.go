/**
 * @description
 * Notification event contract between the marketplace core and the push
 * delivery side. The core never talks to devices: state transitions enqueue
 * events into a transactional outbox, a dispatcher publishes them to the
 * events exchange, and downstream consumers fan out to devices.
 *
 * Ordering matters (sibling rejections must precede the acceptance event, for
 * example), so events are written to the outbox in emission order and the
 * outbox sequence preserves it.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationExchange is the RabbitMQ topic exchange all marketplace events
// are published to. Routing key is the event kind.
const NotificationExchange = "workhive.events"

// EventKind identifies a marketplace notification event.
type EventKind string

const (
	EventJobCreated          EventKind = "job.created"
	EventJobStarted          EventKind = "job.started"
	EventJobDone             EventKind = "job.done"
	EventJobCanceled         EventKind = "job.canceled"
	EventJobPaid             EventKind = "job.paid"
	EventCommissionRequested EventKind = "commission.requested"
	EventCommissionPaid      EventKind = "commission.paid"
	EventCommissionDenied    EventKind = "commission.denied"
	EventCommissionSent      EventKind = "commission.sent"
	EventApplicationCreated  EventKind = "application.created"
	EventApplicationAccepted EventKind = "application.accepted"
	EventApplicationRejected EventKind = "application.rejected"
)

// NotificationEvent is the payload enqueued for every push-worthy state
// change: what happened, who should hear about it, and which job (and,
// for application events, which application) it concerns.
type NotificationEvent struct {
	Kind          EventKind  `json:"event"`
	RecipientID   uuid.UUID  `json:"recipient_id"`
	JobID         uuid.UUID  `json:"job_id"`
	ApplicationID *uuid.UUID `json:"application_id,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// NewJobEvent builds an event about a job with no application attached.
func NewJobEvent(kind EventKind, recipientID, jobID uuid.UUID, at time.Time) NotificationEvent {
	return NotificationEvent{Kind: kind, RecipientID: recipientID, JobID: jobID, Timestamp: at}
}

// NewApplicationEvent builds an event about one application on a job.
func NewApplicationEvent(kind EventKind, recipientID, jobID, applicationID uuid.UUID, at time.Time) NotificationEvent {
	appID := applicationID
	return NotificationEvent{Kind: kind, RecipientID: recipientID, JobID: jobID, ApplicationID: &appID, Timestamp: at}
}
