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

type feeCollectorRepoStub struct {
	store.Repository

	payments      []domain.PlatformPayment
	charges       map[uuid.UUID][]domain.CommissionCharge
	users         map[uuid.UUID]*domain.User
	claimDenied   map[uuid.UUID]bool
	attachOnClaim map[uuid.UUID]domain.CommissionCharge

	claimedIDs []uuid.UUID
}

func (s *feeCollectorRepoStub) ListCollectablePayments(ctx context.Context, progressStaleBefore time.Time) ([]domain.PlatformPayment, error) {
	return s.payments, nil
}

func (s *feeCollectorRepoStub) ClaimPaymentForCollection(ctx context.Context, paymentID uuid.UUID, now time.Time, progressStaleBefore time.Time) (bool, error) {
	if s.claimDenied[paymentID] {
		return false, nil
	}
	if charge, ok := s.attachOnClaim[paymentID]; ok {
		// A commission landing on the cycle just before the claim wins.
		s.charges[paymentID] = append(s.charges[paymentID], charge)
	}
	s.claimedIDs = append(s.claimedIDs, paymentID)
	return true, nil
}

func (s *feeCollectorRepoStub) ListCommissionCharges(ctx context.Context, paymentID uuid.UUID) ([]domain.CommissionCharge, error) {
	return s.charges[paymentID], nil
}

func (s *feeCollectorRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

type gatewayStub struct {
	requests []domain.ChargeRequest
	failFor  map[string]error
}

func (g *gatewayStub) ChargeStoredCard(ctx context.Context, req domain.ChargeRequest) (string, error) {
	if err, ok := g.failFor[req.PaymentPublicID]; ok {
		return "", err
	}
	g.requests = append(g.requests, req)
	return "chg_" + uuid.NewString(), nil
}

func strPtr(s string) *string { return &s }

func collectorConfig() FeeCollectorConfig {
	return FeeCollectorConfig{
		VATCoefficient:        1.17,
		CommissionCoefficient: 0.05,
		Currency:              "ILS",
		GatewayTimeout:        5 * time.Second,
		ProgressRetryAfter:    24 * time.Hour,
	}
}

func payerWithCard(id uuid.UUID) *domain.User {
	return &domain.User{
		ID:            id,
		Username:      "payer",
		CardToken:     strPtr("card_tok"),
		CustomerToken: strPtr("cust_tok"),
	}
}

// Two jobs at 100 and 200 with VAT 1.17 and commission 0.05 total 17.55.
func TestRun_AggregatesCommissionsIntoOneCharge(t *testing.T) {
	payerID := uuid.New()
	payment := domain.PlatformPayment{
		ID:       uuid.New(),
		PublicID: "pp_agg",
		PayerID:  payerID,
		Status:   domain.PlatformPaymentStatusUnpaid,
	}
	repo := &feeCollectorRepoStub{
		payments: []domain.PlatformPayment{payment},
		charges: map[uuid.UUID][]domain.CommissionCharge{
			payment.ID: {
				{CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 100},
				{CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 200},
			},
		},
		users: map[uuid.UUID]*domain.User{payerID: payerWithCard(payerID)},
	}
	gateway := &gatewayStub{}
	collector := NewFeeCollector(repo, gateway, collectorConfig())

	result, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("expected run to succeed, got %v", err)
	}
	if result.Charged != 1 || result.Failed != 0 || result.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(gateway.requests) != 1 {
		t.Fatalf("expected exactly one gateway charge, got %d", len(gateway.requests))
	}

	req := gateway.requests[0]
	if req.Amount != 17.55 {
		t.Fatalf("expected total 17.55, got %v", req.Amount)
	}
	if req.PaymentPublicID != "pp_agg" {
		t.Fatalf("expected correlation id pp_agg, got %q", req.PaymentPublicID)
	}
	if req.CardToken != "card_tok" || req.CustomerToken != "cust_tok" {
		t.Fatalf("expected stored card tokens on request, got %+v", req)
	}
}

func TestRun_ClaimsPaymentBeforeCharging(t *testing.T) {
	payerID := uuid.New()
	payment := domain.PlatformPayment{
		ID:      uuid.New(),
		PayerID: payerID,
		Status:  domain.PlatformPaymentStatusUnpaid,
	}
	repo := &feeCollectorRepoStub{
		payments: []domain.PlatformPayment{payment},
		charges: map[uuid.UUID][]domain.CommissionCharge{
			payment.ID: {{CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 50}},
		},
		users: map[uuid.UUID]*domain.User{payerID: payerWithCard(payerID)},
	}
	gateway := &gatewayStub{}
	collector := NewFeeCollector(repo, gateway, collectorConfig())

	if _, err := collector.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.claimedIDs) != 1 || repo.claimedIDs[0] != payment.ID {
		t.Fatalf("expected payment claimed before charging, got %v", repo.claimedIDs)
	}
}

// A commission attached to the cycle up until the claim must be part of the
// aggregated charge: the settlement webhook marks the whole cycle paid, so a
// commission read before the claim but charged never would be lost revenue.
func TestRun_ChargesCommissionsAttachedBeforeClaim(t *testing.T) {
	payerID := uuid.New()
	payment := domain.PlatformPayment{
		ID:       uuid.New(),
		PublicID: "pp_late",
		PayerID:  payerID,
		Status:   domain.PlatformPaymentStatusUnpaid,
	}
	repo := &feeCollectorRepoStub{
		payments: []domain.PlatformPayment{payment},
		charges: map[uuid.UUID][]domain.CommissionCharge{
			payment.ID: {{CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 100}},
		},
		users: map[uuid.UUID]*domain.User{payerID: payerWithCard(payerID)},
		attachOnClaim: map[uuid.UUID]domain.CommissionCharge{
			payment.ID: {CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 200},
		},
	}
	gateway := &gatewayStub{}
	collector := NewFeeCollector(repo, gateway, collectorConfig())

	result, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Charged != 1 {
		t.Fatalf("expected one charge, got %+v", result)
	}
	if len(gateway.requests) != 1 {
		t.Fatalf("expected exactly one gateway charge, got %d", len(gateway.requests))
	}
	// Both the 100 and the late 200 job: (100+200) * 1.17 * 0.05 = 17.55.
	if got := gateway.requests[0].Amount; got != 17.55 {
		t.Fatalf("expected the late commission included for 17.55, got %v", got)
	}
}

func TestRun_SkipsPaymentClaimedByConcurrentRun(t *testing.T) {
	payerID := uuid.New()
	payment := domain.PlatformPayment{
		ID:      uuid.New(),
		PayerID: payerID,
		Status:  domain.PlatformPaymentStatusUnpaid,
	}
	repo := &feeCollectorRepoStub{
		payments: []domain.PlatformPayment{payment},
		charges: map[uuid.UUID][]domain.CommissionCharge{
			payment.ID: {{CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 50}},
		},
		users:       map[uuid.UUID]*domain.User{payerID: payerWithCard(payerID)},
		claimDenied: map[uuid.UUID]bool{payment.ID: true},
	}
	gateway := &gatewayStub{}
	collector := NewFeeCollector(repo, gateway, collectorConfig())

	result, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || result.Charged != 0 {
		t.Fatalf("expected claimed-elsewhere payment skipped, got %+v", result)
	}
	if len(gateway.requests) != 0 {
		t.Fatal("did not expect a gateway charge")
	}
}

func TestRun_OneFailureDoesNotStopTheBatch(t *testing.T) {
	payerA := uuid.New()
	payerB := uuid.New()
	paymentA := domain.PlatformPayment{ID: uuid.New(), PublicID: "pp_a", PayerID: payerA, Status: domain.PlatformPaymentStatusUnpaid}
	paymentB := domain.PlatformPayment{ID: uuid.New(), PublicID: "pp_b", PayerID: payerB, Status: domain.PlatformPaymentStatusUnpaid}
	repo := &feeCollectorRepoStub{
		payments: []domain.PlatformPayment{paymentA, paymentB},
		charges: map[uuid.UUID][]domain.CommissionCharge{
			paymentA.ID: {{CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 100}},
			paymentB.ID: {{CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 100}},
		},
		users: map[uuid.UUID]*domain.User{
			payerA: payerWithCard(payerA),
			payerB: payerWithCard(payerB),
		},
	}
	gateway := &gatewayStub{failFor: map[string]error{"pp_a": errors.New("card expired")}}
	collector := NewFeeCollector(repo, gateway, collectorConfig())

	result, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed != 1 || result.Charged != 1 {
		t.Fatalf("expected one failure and one charge, got %+v", result)
	}
	if len(gateway.requests) != 1 || gateway.requests[0].PaymentPublicID != "pp_b" {
		t.Fatalf("expected pp_b charged despite pp_a failing, got %+v", gateway.requests)
	}
}

func TestRun_SkipsPayerWithoutStoredCard(t *testing.T) {
	payerID := uuid.New()
	payment := domain.PlatformPayment{ID: uuid.New(), PayerID: payerID, Status: domain.PlatformPaymentStatusUnpaid}
	repo := &feeCollectorRepoStub{
		payments: []domain.PlatformPayment{payment},
		charges: map[uuid.UUID][]domain.CommissionCharge{
			payment.ID: {{CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 80}},
		},
		users: map[uuid.UUID]*domain.User{payerID: {ID: payerID, Username: "no-card"}},
	}
	gateway := &gatewayStub{}
	collector := NewFeeCollector(repo, gateway, collectorConfig())

	result, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 {
		t.Fatalf("expected payer without card skipped, got %+v", result)
	}
	if len(repo.claimedIDs) != 0 {
		t.Fatal("did not expect the payment to be claimed")
	}
}

func TestRun_SkipsEmptyBillingCycle(t *testing.T) {
	payerID := uuid.New()
	payment := domain.PlatformPayment{ID: uuid.New(), PayerID: payerID, Status: domain.PlatformPaymentStatusUnpaid}
	repo := &feeCollectorRepoStub{
		payments: []domain.PlatformPayment{payment},
		charges:  map[uuid.UUID][]domain.CommissionCharge{},
		users:    map[uuid.UUID]*domain.User{payerID: payerWithCard(payerID)},
	}
	gateway := &gatewayStub{}
	collector := NewFeeCollector(repo, gateway, collectorConfig())

	result, err := collector.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || result.Charged != 0 {
		t.Fatalf("expected empty cycle skipped, got %+v", result)
	}
	if len(gateway.requests) != 0 {
		t.Fatal("did not expect a gateway charge for an empty cycle")
	}
	// The empty cycle was still claimed; the stale window releases it.
	if len(repo.claimedIDs) != 1 {
		t.Fatalf("expected the cycle claimed before reading charges, got %v", repo.claimedIDs)
	}
}

func TestTotalCommission_RoundsToTwoDecimals(t *testing.T) {
	collector := NewFeeCollector(nil, nil, collectorConfig())
	charges := []domain.CommissionCharge{
		{JobPayment: 33.33},
		{JobPayment: 66.67},
	}

	// 100 * 1.17 * 0.05 = 5.85, accumulated from fractional parts.
	if got := collector.totalCommission(charges); got != 5.85 {
		t.Fatalf("expected 5.85, got %v", got)
	}
}
