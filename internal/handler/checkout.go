package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/surfbooking/internal/checkout"
	"github.com/mmeshcher/surfbooking/internal/model"
)

type checkoutResponse struct {
	errorResponse
	Checkout checkout.Status `json:"checkout"`
}

func (h *Handler) writeCheckout(w http.ResponseWriter, r *http.Request, op string, st checkout.Status, err error) {
	if err == nil {
		h.writeJSON(w, http.StatusOK, checkoutResponse{Checkout: st})
		return
	}

	status := httpStatusFromErr(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err), zap.String("session", sessionID(r)), zap.String("state", string(st.State)))
	}
	h.writeJSON(w, status, checkoutResponse{errorResponse: newErrorResponse(err), Checkout: st})
}

// Checkout проверяет форму и отправляет бронирование выбранным способом оплаты.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Checkout(r.Context(), sessionID(r))
	h.writeCheckout(w, r, "checkout", st, err)
}

// ConfirmCheckout подтверждает оплату через международный шлюз.
func (h *Handler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.ConfirmCheckout(r.Context(), sessionID(r))
	h.writeCheckout(w, r, "confirm checkout", st, err)
}

// GatewayCallback принимает результат оплаты из платёжного шлюза.
func (h *Handler) GatewayCallback(w http.ResponseWriter, r *http.Request) {
	var req checkout.Callback
	if !decodeJSON(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	st, err := h.service.GatewayCallback(r.Context(), sessionID(r), req)
	h.writeCheckout(w, r, "gateway callback", st, err)
}

// CancelCheckout закрывает окно оплаты.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.CancelCheckout(r.Context(), sessionID(r))
	h.writeCheckout(w, r, "cancel checkout", st, err)
}

// RetryCheckout возвращает оформление в исходное состояние после неудачи.
func (h *Handler) RetryCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.RetryCheckout(r.Context(), sessionID(r))
	h.writeCheckout(w, r, "retry checkout", st, err)
}

// GetCheckout возвращает текущее состояние оформления.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.CheckoutStatus(r.Context(), sessionID(r))
	h.writeCheckout(w, r, "get checkout", st, err)
}

// GetAttempt возвращает запись журнала о попытке отправки текущей сессии.
func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.Attempt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "get attempt", err)
		return
	}
	if attempt.SessionID != sessionID(r) {
		h.writeError(w, r, "get attempt", model.ErrNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, attempt)
}
