package handler

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mmeshcher/surfbooking/internal/bookingapi"
	"github.com/mmeshcher/surfbooking/internal/model"
)

type errorResponse struct {
	Error   string                 `json:"error,omitempty"`
	Hint    string                 `json:"hint,omitempty"`
	Errors  model.ValidationErrors `json:"errors,omitempty"`
	Missing []model.ParticipantID  `json:"missing,omitempty"`
}

// httpStatusFromErr сопоставляет доменные ошибки с HTTP-статусами.
func httpStatusFromErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, model.ErrSessionNotFound), errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrMissingParticipant),
		errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrAgentCurrency),
		errors.Is(err, model.ErrVoucherRejected),
		errors.Is(err, model.ErrSubmissionRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrStaleVoucher),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrBookingNumberReused):
		return http.StatusConflict
	case errors.Is(err, model.ErrGatewayDenied), errors.Is(err, model.ErrGatewayFailure):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrGatewayExpired):
		return http.StatusGone
	case errors.Is(err, model.ErrBookingNumberUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrNetwork):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func newErrorResponse(err error) errorResponse {
	status := httpStatusFromErr(err)
	resp := errorResponse{Error: http.StatusText(status)}

	var verrs model.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Errors = verrs
	}

	var missing *model.MissingParticipantError
	if errors.As(err, &missing) {
		resp.Missing = missing.IDs
	}

	if hints := errors.FlattenHints(err); hints != "" {
		resp.Hint = strings.TrimSpace(hints)
		return resp
	}

	var netErr *bookingapi.NetworkError
	if errors.As(err, &netErr) {
		resp.Hint = netErr.Message()
		return resp
	}

	if status < http.StatusInternalServerError {
		resp.Hint = err.Error()
	}
	return resp
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := httpStatusFromErr(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err), zap.String("session", sessionID(r)))
	}
	if errors.Is(err, model.ErrSessionNotFound) {
		h.sessions.ClearSessionCookie(w)
	}
	h.writeJSON(w, status, newErrorResponse(err))
}
