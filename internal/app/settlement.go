/**
 * @description
 * Settlement of aggregated commission charges from gateway webhooks. The
 * fee-collection batch leaves a cycle in progress; the webhook's verdict
 * moves it to paid or rejected and notifies the payer per linked job.
 */
package app

import (
	"context"
	"time"

	"github.com/workhive/marketplace-service/internal/domain"
	"github.com/workhive/marketplace-service/internal/store"
)

// SettlementService applies gateway charge outcomes to billing cycles.
type SettlementService struct {
	repo store.Repository
}

// NewSettlementService creates a new settlement service.
func NewSettlementService(repo store.Repository) SettlementService {
	return SettlementService{repo: repo}
}

// ApplySettlement resolves the billing cycle identified by the gateway's
// correlation id. Replayed webhooks are no-ops: a cycle already paid is
// never modified again.
func (s SettlementService) ApplySettlement(ctx context.Context, paymentPublicID string, succeeded bool, reason string) error {
	payment, err := s.repo.FindPaymentByPublicID(ctx, paymentPublicID)
	if err != nil {
		return err
	}

	charges, err := s.repo.ListCommissionCharges(ctx, payment.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	kind := domain.EventCommissionPaid
	if !succeeded {
		kind = domain.EventCommissionDenied
	}

	events := make([]domain.NotificationEvent, 0, len(charges))
	for _, charge := range charges {
		events = append(events, domain.NewJobEvent(kind, payment.PayerID, charge.JobID, now))
	}

	if succeeded {
		return s.repo.MarkPaymentPaid(ctx, payment.ID, now, events)
	}
	return s.repo.MarkPaymentRejected(ctx, payment.ID, reason, now, events)
}
