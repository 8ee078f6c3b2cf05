/**
 * @description
 * Weekly fee-collection batch. For every collectable billing cycle it totals
 * the payer's commission obligations (job payment x VAT x commission rate,
 * rounded to two decimal places), claims the cycle into progress and submits
 * one aggregated charge to the payment gateway. Settlement arrives later via
 * webhook; this batch never marks a payment paid itself.
 */
package app

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/workhive/marketplace-service/internal/domain"
	"github.com/workhive/marketplace-service/internal/store"
)

// ChargeGateway submits an aggregated commission charge against a payer's
// stored card and returns the gateway's charge reference.
type ChargeGateway interface {
	ChargeStoredCard(ctx context.Context, req domain.ChargeRequest) (string, error)
}

// FeeCollectorConfig carries the billing coefficients and batch timing knobs.
type FeeCollectorConfig struct {
	VATCoefficient        float64
	CommissionCoefficient float64
	Currency              string
	GatewayTimeout        time.Duration
	ProgressRetryAfter    time.Duration
}

// FeeCollector runs the scheduled fee-collection batch.
type FeeCollector struct {
	repo    store.Repository
	gateway ChargeGateway
	cfg     FeeCollectorConfig
}

// NewFeeCollector creates a new fee collector.
func NewFeeCollector(repo store.Repository, gateway ChargeGateway, cfg FeeCollectorConfig) FeeCollector {
	return FeeCollector{repo: repo, gateway: gateway, cfg: cfg}
}

// CollectionResult summarizes one batch run.
type CollectionResult struct {
	Evaluated int `json:"evaluated"`
	Charged   int `json:"charged"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Run processes every collectable payment. Each payment is handled in
// isolation: one payer's failure never stops the batch.
func (c FeeCollector) Run(ctx context.Context) (*CollectionResult, error) {
	now := time.Now().UTC()
	progressStaleBefore := now.Add(-c.cfg.ProgressRetryAfter)

	payments, err := c.repo.ListCollectablePayments(ctx, progressStaleBefore)
	if err != nil {
		return nil, err
	}

	result := &CollectionResult{Evaluated: len(payments)}
	for _, payment := range payments {
		charged, err := c.collectPayment(ctx, payment, now, progressStaleBefore)
		if err != nil {
			result.Failed++
			log.Printf("level=warn component=fee_collector msg=\"charge submission failed\" payment_id=%s error=%q", payment.ID, err.Error())
			continue
		}
		if !charged {
			result.Skipped++
			continue
		}
		result.Charged++
	}

	return result, nil
}

// collectPayment handles one billing cycle. Returns false when the cycle was
// skipped (no stored card, nothing to charge, or claimed by a concurrent
// run). A gateway error leaves the cycle in progress; the stale-progress
// window makes the next batch retry it.
func (c FeeCollector) collectPayment(ctx context.Context, payment domain.PlatformPayment, now time.Time, progressStaleBefore time.Time) (bool, error) {
	payer, err := c.repo.FindUserByID(ctx, payment.PayerID)
	if err != nil {
		return false, err
	}
	if payer.CardToken == nil || payer.CustomerToken == nil {
		log.Printf("level=warn component=fee_collector msg=\"payer has no stored card, skipping\" payer_id=%s payment_id=%s", payment.PayerID, payment.ID)
		return false, nil
	}

	// Claim before reading the cycle's commissions. Once the cycle is in
	// progress a concurrent acceptance opens a fresh cycle instead of
	// attaching to this one, so every commission read below is charged and
	// the settlement webhook never marks an uncharged commission paid.
	claimed, err := c.repo.ClaimPaymentForCollection(ctx, payment.ID, now, progressStaleBefore)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	charges, err := c.repo.ListCommissionCharges(ctx, payment.ID)
	if err != nil {
		return false, err
	}

	amount := c.totalCommission(charges)
	if len(charges) == 0 || amount <= 0 {
		// Nothing to charge; the claim ages out through the stale window.
		return false, nil
	}

	chargeCtx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	defer cancel()

	_, err = c.gateway.ChargeStoredCard(chargeCtx, domain.ChargeRequest{
		Amount:          amount,
		Currency:        c.cfg.Currency,
		CardToken:       *payer.CardToken,
		CustomerToken:   *payer.CustomerToken,
		PaymentPublicID: payment.PublicID,
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// totalCommission sums payment x VAT x commission rate over the cycle's
// jobs, rounding the total to two decimal places.
func (c FeeCollector) totalCommission(charges []domain.CommissionCharge) float64 {
	var total float64
	for _, charge := range charges {
		total += charge.JobPayment * c.cfg.VATCoefficient * c.cfg.CommissionCoefficient
	}
	return round2(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
