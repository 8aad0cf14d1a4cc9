package services

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yatrikerp/booking-engine/internal/config"
	"github.com/yatrikerp/booking-engine/internal/models"
)

// ChargeParams contains all parameters needed to authorize and capture
// a payment.
type ChargeParams struct {
	Reference      string // invoice reference, unique per attempt
	Amount         float64
	Currency       string
	Method         string
	CustomerName   string
	CustomerPhone  string
	IdempotencyKey *string
}

// ChargeResult is the gateway's view of a captured payment. The engine
// compares CapturedAmount against the frozen quote before confirming.
type ChargeResult struct {
	CaptureToken   string
	CapturedAmount float64
}

// PaymentGateway authorizes, captures and refunds payments. A decline
// comes back as an error wrapping models.ErrPaymentFailed, never as a
// panic; the session layer decides what happens next.
type PaymentGateway interface {
	Charge(params *ChargeParams) (*ChargeResult, error)
	Refund(captureToken string, amount float64) error
}

// ============================================================================
// HTTP GATEWAY
// ============================================================================

// gatewayChargeRequest is the wire format sent to the payment provider.
type gatewayChargeRequest struct {
	MerchantKey   string `json:"merchantKey"`
	InvoiceID     string `json:"invoiceId"`
	Amount        string `json:"amount"`
	CurrencyCode  string `json:"currencyCode"`
	PaymentMethod string `json:"paymentMethod"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	CheckValue    string `json:"checkValue"`
}

type gatewayChargeResponse struct {
	Status         string  `json:"status"` // "success" or "error"
	CaptureToken   string  `json:"captureToken"`
	CapturedAmount float64 `json:"capturedAmount"`
	Message        string  `json:"message,omitempty"`
}

type gatewayRefundRequest struct {
	MerchantKey  string `json:"merchantKey"`
	CaptureToken string `json:"captureToken"`
	Amount       string `json:"amount"`
	CheckValue   string `json:"checkValue"`
}

type gatewayRefundResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HTTPPaymentGateway talks to the external payment provider over HTTPS.
type HTTPPaymentGateway struct {
	config *config.PaymentConfig
	logger *logrus.Logger
	client *http.Client
}

// NewHTTPPaymentGateway creates a new HTTP payment gateway
func NewHTTPPaymentGateway(cfg *config.PaymentConfig, logger *logrus.Logger) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// checkValue is SHA-512(merchantKey|reference|amount|SHA-512(token)),
// both digests upper-cased hex.
func (g *HTTPPaymentGateway) checkValue(reference, amount string) string {
	hash1 := sha512.Sum512([]byte(g.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s", g.config.MerchantKey, reference, amount, hash1Hex)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// Charge authorizes and captures in one call.
func (g *HTTPPaymentGateway) Charge(params *ChargeParams) (*ChargeResult, error) {
	amountStr := fmt.Sprintf("%.2f", params.Amount)
	reqBody := gatewayChargeRequest{
		MerchantKey:   g.config.MerchantKey,
		InvoiceID:     params.Reference,
		Amount:        amountStr,
		CurrencyCode:  params.Currency,
		PaymentMethod: params.Method,
		CustomerName:  params.CustomerName,
		CustomerPhone: params.CustomerPhone,
		CheckValue:    g.checkValue(params.Reference, amountStr),
	}

	var resp gatewayChargeResponse
	if err := g.post("/charge", params.IdempotencyKey, reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		g.logger.WithFields(logrus.Fields{
			"reference": params.Reference,
			"amount":    params.Amount,
			"message":   resp.Message,
		}).Warn("Payment declined by gateway")
		return nil, fmt.Errorf("%w: %s", models.ErrPaymentFailed, resp.Message)
	}

	g.logger.WithFields(logrus.Fields{
		"reference":     params.Reference,
		"amount":        resp.CapturedAmount,
		"capture_token": resp.CaptureToken,
	}).Info("Payment captured")

	return &ChargeResult{
		CaptureToken:   resp.CaptureToken,
		CapturedAmount: resp.CapturedAmount,
	}, nil
}

// Refund returns a captured amount to the payer.
func (g *HTTPPaymentGateway) Refund(captureToken string, amount float64) error {
	amountStr := fmt.Sprintf("%.2f", amount)
	reqBody := gatewayRefundRequest{
		MerchantKey:  g.config.MerchantKey,
		CaptureToken: captureToken,
		Amount:       amountStr,
		CheckValue:   g.checkValue(captureToken, amountStr),
	}

	var resp gatewayRefundResponse
	if err := g.post("/refund", nil, reqBody, &resp); err != nil {
		return err
	}
	if resp.Status != "success" {
		return fmt.Errorf("refund rejected by gateway: %s", resp.Message)
	}

	g.logger.WithFields(logrus.Fields{
		"capture_token": captureToken,
		"amount":        amount,
	}).Info("Payment refunded")
	return nil
}

func (g *HTTPPaymentGateway) post(path string, idempotencyKey *string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, g.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != nil && *idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", *idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
