/**
 * @description
 * This package provides a client for the card payment gateway used to
 * collect platform commissions. It encapsulates authenticated HTTP calls to
 * the gateway's charge endpoint, request body construction and response
 * parsing. Charges against stored cards settle asynchronously: the gateway
 * acknowledges submission here and reports the outcome later via webhook,
 * correlated by the payment public id carried in the request metadata.
 */
package paygateclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/workhive/marketplace-service/internal/domain"
)

// Client is a client for the payment gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	TerminalID string
	CashierID  string
	HTTPClient *http.Client
}

// NewClient creates a new payment gateway client.
func NewClient(baseURL, apiKey, terminalID, cashierID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		TerminalID: terminalID,
		CashierID:  cashierID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// chargeRequest is the wire payload for the gateway's charge endpoint.
// Amount is a decimal string with exactly two fractional digits.
type chargeRequest struct {
	TerminalID    string `json:"terminal_id"`
	CashierID     string `json:"cashier_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	CardToken     string `json:"card_token"`
	CustomerToken string `json:"customer_token"`
	Metadata      struct {
		PaymentPublicID string `json:"payment_public_id"`
	} `json:"metadata"`
}

// ChargeResponse is the gateway's acknowledgement of a submitted charge.
type ChargeResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// ErrorResponse represents an error from the gateway API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("paygate api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown paygate api error"
}

// ChargeStoredCard submits an aggregated commission charge against the
// payer's stored card and returns the gateway charge reference.
func (c *Client) ChargeStoredCard(ctx context.Context, req domain.ChargeRequest) (string, error) {
	payload := chargeRequest{
		TerminalID:    c.TerminalID,
		CashierID:     c.CashierID,
		Amount:        fmt.Sprintf("%.2f", req.Amount),
		Currency:      req.Currency,
		CardToken:     req.CardToken,
		CustomerToken: req.CustomerToken,
	}
	payload.Metadata.PaymentPublicID = req.PaymentPublicID

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/v1/charges", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create charge request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-paygate-key", c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute charge request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read charge response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=paygate_client op=charge status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return "", fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=paygate_client op=charge status=%d title=%q detail=%q", resp.StatusCode, firstErrorTitle(errResp), firstErrorDetail(errResp))
		return "", &errResp
	}

	var chargeResp ChargeResponse
	if err := json.Unmarshal(bodyBytes, &chargeResp); err != nil {
		return "", fmt.Errorf("failed to decode charge response: %w", err)
	}

	return chargeResp.Data.ID, nil
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
