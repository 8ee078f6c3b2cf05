/**
 * @description
 * HTTP handlers for the marketplace-service: job CRUD, applications and
 * their resolution, platform payment listing, the gateway settlement
 * webhook, and the internal fee-collection trigger.
 */
package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/workhive/marketplace-service/internal/app"
	"github.com/workhive/marketplace-service/internal/domain"
	"github.com/workhive/marketplace-service/internal/store"
)

// Handler holds the application services that handlers will interact with.
type Handler struct {
	jobs          app.JobService
	applications  app.ApplicationService
	settlement    app.SettlementService
	collector     app.FeeCollector
	repo          store.Repository
	webhookSecret string
}

// NewHandler creates a new Handler with the given services.
func NewHandler(jobs app.JobService, applications app.ApplicationService, settlement app.SettlementService, collector app.FeeCollector, repo store.Repository, webhookSecret string) *Handler {
	return &Handler{
		jobs:          jobs,
		applications:  applications,
		settlement:    settlement,
		collector:     collector,
		repo:          repo,
		webhookSecret: webhookSecret,
	}
}

func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload domain.CreateJobPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Create(r.Context(), userID, payload)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, job)
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, job)
}

func (h *Handler) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	var payload domain.UpdateJobPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Update(r.Context(), userID, jobID, payload)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, job)
}

func (h *Handler) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	if err := h.jobs.SoftDelete(r.Context(), userID, jobID); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid job ID", http.StatusBadRequest)
		return
	}

	application, err := h.applications.Apply(r.Context(), userID, jobID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, application)
}

type resolveApplicationPayload struct {
	Status domain.ApplicationStatus `json:"status"`
}

func (h *Handler) handleResolveApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	applicationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid application ID", http.StatusBadRequest)
		return
	}

	var payload resolveApplicationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch payload.Status {
	case domain.ApplicationStatusAccepted:
		result, err := h.applications.Accept(r.Context(), userID, applicationID)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, result)
	case domain.ApplicationStatusDeclined:
		application, err := h.applications.Decline(r.Context(), userID, applicationID)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, application)
	default:
		http.Error(w, "Status must be 'accepted' or 'declined'", http.StatusBadRequest)
	}
}

func (h *Handler) handleListPlatformPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	payments, err := h.repo.ListPaymentsByPayer(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if payments == nil {
		payments = []domain.PlatformPayment{}
	}

	respondWithJSON(w, http.StatusOK, payments)
}

// settlementWebhookPayload is the gateway's charge outcome notification.
type settlementWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		PaymentPublicID string `json:"payment_public_id"`
		Status          string `json:"status"`
		Reason          string `json:"reason"`
	} `json:"data"`
}

func (h *Handler) handlePaygateWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if !h.verifyWebhookSignature(body, r.Header.Get("X-Paygate-Signature")) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var payload settlementWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.Data.PaymentPublicID == "" {
		http.Error(w, "payment_public_id is required", http.StatusBadRequest)
		return
	}

	succeeded := payload.Data.Status == "success"
	err = h.settlement.ApplySettlement(r.Context(), payload.Data.PaymentPublicID, succeeded, payload.Data.Reason)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			// Unknown correlation id: acknowledge so the gateway stops retrying.
			log.Printf("level=warn component=webhook msg=\"settlement for unknown payment\" payment_public_id=%s", payload.Data.PaymentPublicID)
			w.WriteHeader(http.StatusOK)
			return
		}
		respondWithServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) verifyWebhookSignature(body []byte, signature string) bool {
	if h.webhookSecret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *Handler) handleRunFeeCollection(w http.ResponseWriter, r *http.Request) {
	result, err := h.collector.Run(r.Context())
	if err != nil {
		log.Printf("Error running fee collection: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// respondWithServiceError maps service and store errors onto HTTP statuses.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rateErr *app.RateLimitError
	switch {
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrApplicationNotFound),
		errors.Is(err, store.ErrPaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrDuplicateApplication),
		errors.Is(err, app.ErrSelfApplication),
		errors.Is(err, app.ErrStatusDowngrade):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, app.ErrNotJobParty):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, app.ErrInvalidJobPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		log.Printf("Unhandled service error on %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
