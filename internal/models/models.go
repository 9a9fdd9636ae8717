// Package models defines the core data structures for CartRescue.
//
// It includes the abandoned cart record, the per-run report types, and the
// API response envelope shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// CheckoutStep labels how far the customer progressed before abandoning.
type CheckoutStep string

const (
	// CheckoutStepCart means the customer never left the cart page.
	CheckoutStepCart CheckoutStep = "cart"
	// CheckoutStepShippingInfo means shipping details were entered.
	CheckoutStepShippingInfo CheckoutStep = "shipping_info"
	// CheckoutStepPaymentSelection means a payment method was being chosen.
	CheckoutStepPaymentSelection CheckoutStep = "payment_selection"
)

// CartStatus is a free-text lifecycle label kept for observability only.
// The pipeline's actual state machine is the EmailSent/Recovered pair.
type CartStatus string

const (
	// CartStatusAbandoned is the initial status written by the checkout flow.
	CartStatusAbandoned CartStatus = "abandoned"
	// CartStatusRecoveryEmailSent is written atomically with the claim.
	CartStatusRecoveryEmailSent CartStatus = "recovery_email_sent"
	// CartStatusRecovered is written by the external recovery landing page.
	CartStatusRecovered CartStatus = "recovered"
)

// Error variables for cart validation.
var (
	ErrMissingEmail = errors.New("cart has no email address")
	ErrEmptyItems   = errors.New("cart has no line items")
)

// CartItem is a single line item in an abandoned cart. Fields are used only
// for rendering the recovery email; missing values get placeholders there.
type CartItem struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	ImageURL  string  `json:"image_url,omitempty"`
}

// AbandonedCart is one customer cart session as stored in the cart store.
// The checkout flow owns creation and mutation during active shopping; the
// pipeline only performs the conditional claim transition on
// EmailSent/EmailSentAt/RecoveryToken/Status.
type AbandonedCart struct {
	ID            string       `json:"id"`
	CustomerName  string       `json:"customer_name,omitempty"`
	Email         string       `json:"email,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Items         []CartItem   `json:"items"`
	Total         float64      `json:"total"`
	LastModified  time.Time    `json:"last_modified"`
	LastStep      CheckoutStep `json:"last_step_reached,omitempty"`
	EmailSent     bool         `json:"email_sent"`
	EmailSentAt   *time.Time   `json:"email_sent_at,omitempty"`
	RecoveryToken string       `json:"recovery_token,omitempty"`
	Recovered     bool         `json:"recovered"`
	Status        CartStatus   `json:"status,omitempty"`
}

// Notifiable reports whether the cart has the data required for a recovery
// email. Carts failing this check are skipped before any claim is attempted,
// so they stay eligible for future runs once the data is corrected upstream.
func (c *AbandonedCart) Notifiable() error {
	if strings.TrimSpace(c.Email) == "" {
		return ErrMissingEmail
	}
	if len(c.Items) == 0 {
		return ErrEmptyItems
	}
	return nil
}

// DispatchStatus is the per-cart outcome within a single run.
type DispatchStatus string

const (
	// DispatchStatusSent indicates the cart was claimed and the email sent.
	DispatchStatusSent DispatchStatus = "sent"
	// DispatchStatusSkipped indicates the cart was not claimed: either a
	// concurrent run won the claim race or the cart data was not notifiable.
	DispatchStatusSkipped DispatchStatus = "skipped"
	// DispatchStatusError indicates the claim succeeded but the send failed.
	// The cart stays claimed and is never retried automatically.
	DispatchStatusError DispatchStatus = "error"
)

// CartResult is the per-cart detail line in a run report. It carries the cart
// id and email only, never further customer data.
type CartResult struct {
	ID     string         `json:"id"`
	Email  string         `json:"email,omitempty"`
	Status DispatchStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// RunReport aggregates the outcome of one pipeline invocation.
type RunReport struct {
	RunID      string       `json:"run_id"`
	Success    bool         `json:"success"`
	Processed  int          `json:"processed"`
	Sent       int          `json:"sent"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Details    []CartResult `json:"details,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMS int64        `json:"duration_ms"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
