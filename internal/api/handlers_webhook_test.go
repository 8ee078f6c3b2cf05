package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/workhive/marketplace-service/internal/app"
	"github.com/workhive/marketplace-service/internal/domain"
	"github.com/workhive/marketplace-service/internal/store"
)

type webhookRepoStub struct {
	store.Repository

	payment *domain.PlatformPayment

	paidCalled     bool
	rejectedCalled bool
}

func (s *webhookRepoStub) FindPaymentByPublicID(ctx context.Context, publicID string) (*domain.PlatformPayment, error) {
	if s.payment == nil || s.payment.PublicID != publicID {
		return nil, store.ErrPaymentNotFound
	}
	return s.payment, nil
}

func (s *webhookRepoStub) ListCommissionCharges(ctx context.Context, paymentID uuid.UUID) ([]domain.CommissionCharge, error) {
	return []domain.CommissionCharge{{CommissionID: uuid.New(), JobID: uuid.New(), JobPayment: 100}}, nil
}

func (s *webhookRepoStub) MarkPaymentPaid(ctx context.Context, paymentID uuid.UUID, paidAt time.Time, events []domain.NotificationEvent) error {
	s.paidCalled = true
	return nil
}

func (s *webhookRepoStub) MarkPaymentRejected(ctx context.Context, paymentID uuid.UUID, reason string, rejectedAt time.Time, events []domain.NotificationEvent) error {
	s.rejectedCalled = true
	return nil
}

func webhookHandler(repo store.Repository, secret string) *Handler {
	return NewHandler(
		app.NewJobService(repo),
		app.NewApplicationService(repo, nil, 0, 0),
		app.NewSettlementService(repo),
		app.NewFeeCollector(repo, nil, app.FeeCollectorConfig{}),
		repo,
		secret,
	)
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaygateWebhook_SettlesPaymentWithValidSignature(t *testing.T) {
	repo := &webhookRepoStub{
		payment: &domain.PlatformPayment{
			ID:       uuid.New(),
			PublicID: "pp_hook",
			PayerID:  uuid.New(),
			Status:   domain.PlatformPaymentStatusProgress,
		},
	}
	handler := webhookHandler(repo, "hook-secret")

	body := []byte(`{"event":"charge.settled","data":{"payment_public_id":"pp_hook","status":"success"}}`)
	req := httptest.NewRequest("POST", "/webhooks/paygate", bytes.NewReader(body))
	req.Header.Set("X-Paygate-Signature", signBody("hook-secret", body))
	rec := httptest.NewRecorder()

	handler.handlePaygateWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !repo.paidCalled {
		t.Fatal("expected payment marked paid")
	}
}

func TestPaygateWebhook_RejectsBadSignature(t *testing.T) {
	repo := &webhookRepoStub{}
	handler := webhookHandler(repo, "hook-secret")

	body := []byte(`{"event":"charge.settled","data":{"payment_public_id":"pp_hook","status":"success"}}`)
	req := httptest.NewRequest("POST", "/webhooks/paygate", bytes.NewReader(body))
	req.Header.Set("X-Paygate-Signature", "deadbeef")
	rec := httptest.NewRecorder()

	handler.handlePaygateWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if repo.paidCalled || repo.rejectedCalled {
		t.Fatal("did not expect settlement to run")
	}
}

func TestPaygateWebhook_FailureMarksRejected(t *testing.T) {
	repo := &webhookRepoStub{
		payment: &domain.PlatformPayment{
			ID:       uuid.New(),
			PublicID: "pp_hook",
			PayerID:  uuid.New(),
			Status:   domain.PlatformPaymentStatusProgress,
		},
	}
	handler := webhookHandler(repo, "hook-secret")

	body := []byte(`{"event":"charge.settled","data":{"payment_public_id":"pp_hook","status":"failed","reason":"card declined"}}`)
	req := httptest.NewRequest("POST", "/webhooks/paygate", bytes.NewReader(body))
	req.Header.Set("X-Paygate-Signature", signBody("hook-secret", body))
	rec := httptest.NewRecorder()

	handler.handlePaygateWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !repo.rejectedCalled {
		t.Fatal("expected payment marked rejected")
	}
}

// Unknown correlation ids are acknowledged so the gateway stops retrying.
func TestPaygateWebhook_UnknownPaymentAcknowledged(t *testing.T) {
	repo := &webhookRepoStub{}
	handler := webhookHandler(repo, "hook-secret")

	body := []byte(`{"event":"charge.settled","data":{"payment_public_id":"pp_unknown","status":"success"}}`)
	req := httptest.NewRequest("POST", "/webhooks/paygate", bytes.NewReader(body))
	req.Header.Set("X-Paygate-Signature", signBody("hook-secret", body))
	rec := httptest.NewRecorder()

	handler.handlePaygateWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
