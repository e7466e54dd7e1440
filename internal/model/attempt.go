package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// CheckoutState состояние оформления бронирования.
type CheckoutState string

const (
	StateIdle                 CheckoutState = "idle"
	StateValidating           CheckoutState = "validating"
	StateRejected             CheckoutState = "rejected"
	StateReady                CheckoutState = "ready"
	StateSubmitting           CheckoutState = "submitting"
	StateDirectSuccess        CheckoutState = "direct_success"
	StateGatewayPending       CheckoutState = "gateway_pending"
	StateSubmissionFailed     CheckoutState = "submission_failed"
	StateAwaitingConfirmation CheckoutState = "awaiting_confirmation"
	StateGatewaySuccess       CheckoutState = "gateway_success"
	StateGatewayFailure       CheckoutState = "gateway_failure"
	StateGatewayExpired       CheckoutState = "gateway_expired"
	StateGatewayTimeout       CheckoutState = "gateway_timeout"
	StateCancelled            CheckoutState = "cancelled"
)

// Succeeded сообщает, завершилось ли оформление успешно.
func (s CheckoutState) Succeeded() bool {
	return s == StateDirectSuccess || s == StateGatewaySuccess
}

// Retryable сообщает, можно ли из состояния вернуться к форме и повторить отправку.
func (s CheckoutState) Retryable() bool {
	switch s {
	case StateRejected, StateSubmissionFailed, StateGatewayFailure,
		StateGatewayExpired, StateGatewayTimeout, StateCancelled:
		return true
	}
	return false
}

// Terminal сообщает, что попытка больше не изменит состояние.
func (s CheckoutState) Terminal() bool {
	return s.Succeeded() || (s.Retryable() && s != StateRejected)
}

// Attempt одна попытка отправки. Номер бронирования принадлежит ровно одной попытке.
type Attempt struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	BookingNumber string          `json:"booking_number"`
	Channel       Channel         `json:"channel"`
	State         CheckoutState   `json:"state"`
	Currency      string          `json:"currency"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewAttemptID генерирует идентификатор попытки.
func NewAttemptID() string {
	return "att_" + ulid.Make().String()
}
