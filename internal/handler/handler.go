// Package handler содержит HTTP-обработчики API формы бронирования.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/surfbooking/internal/bookingapi"
	"github.com/mmeshcher/surfbooking/internal/checkout"
	"github.com/mmeshcher/surfbooking/internal/middleware"
	"github.com/mmeshcher/surfbooking/internal/model"
	"github.com/mmeshcher/surfbooking/internal/participant"
	"github.com/mmeshcher/surfbooking/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	NewSession(ctx context.Context) (string, error)
	MasterData(ctx context.Context, id string) (*service.MasterDataView, error)
	RefreshMasterData(ctx context.Context, id string) (*service.MasterDataView, error)
	Schedules(ctx context.Context) ([]model.Schedule, error)
	Countries(ctx context.Context) []bookingapi.Country

	SetParticipantCounts(ctx context.Context, id string, adults, children int) ([]model.Participant, error)
	UpdateParticipant(ctx context.Context, id string, pid model.ParticipantID, patch participant.Patch) (model.Participant, error)
	SetActivity(ctx context.Context, id string, activities []model.ActivityType, date time.Time) error
	Recommendations(ctx context.Context, id string) (*service.RecommendationsView, error)
	Select(ctx context.Context, id, packageID string, participants []model.ParticipantID) (service.SelectionView, error)
	CancelSelection(ctx context.Context, id string, key model.SelectionKey) error

	ApplyVoucher(ctx context.Context, id, code string) (*model.VoucherResult, error)
	ClearVoucher(ctx context.Context, id string) error
	SetPayment(ctx context.Context, id string, in service.PaymentInput) error
	PaymentMethods(ctx context.Context, id string) ([]model.Channel, error)
	SetCustomer(ctx context.Context, id string, c model.Customer) error
	Summary(ctx context.Context, id string) (*service.Summary, error)

	Checkout(ctx context.Context, id string) (checkout.Status, error)
	ConfirmCheckout(ctx context.Context, id string) (checkout.Status, error)
	GatewayCallback(ctx context.Context, id string, cb checkout.Callback) (checkout.Status, error)
	CancelCheckout(ctx context.Context, id string) (checkout.Status, error)
	RetryCheckout(ctx context.Context, id string) (checkout.Status, error)
	CheckoutStatus(ctx context.Context, id string) (checkout.Status, error)
	Attempt(ctx context.Context, attemptID string) (*model.Attempt, error)
}

// Handler реализует HTTP-обработчики API формы бронирования.
type Handler struct {
	service  Service
	logger   *zap.Logger
	sessions *middleware.SessionMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, sessions *middleware.SessionMiddleware) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		sessions: sessions,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) bool {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func sessionID(r *http.Request) string {
	id, _ := middleware.GetSessionIDFromContext(r.Context())
	return id
}

// CreateSession открывает новую сессию формы и выдаёт cookie.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.NewSession(r.Context())
	if err != nil {
		h.writeError(w, r, "create session", err)
		return
	}

	h.sessions.SetSessionCookie(w, id)
	h.writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// GetMasterData возвращает справочные данные сессии.
func (h *Handler) GetMasterData(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.MasterData(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, "get master data", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// RefreshMasterData перечитывает справочные данные из API бронирования.
func (h *Handler) RefreshMasterData(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RefreshMasterData(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, "refresh master data", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// GetSchedules возвращает расписание занятий.
func (h *Handler) GetSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.service.Schedules(r.Context())
	if err != nil {
		h.writeError(w, r, "get schedules", err)
		return
	}
	h.writeJSON(w, http.StatusOK, schedules)
}

// GetCountries возвращает список стран для контактных данных.
func (h *Handler) GetCountries(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Countries(r.Context()))
}

type participantCountsRequest struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

// SetParticipants задаёт число взрослых и детей.
func (h *Handler) SetParticipants(w http.ResponseWriter, r *http.Request) {
	var req participantCountsRequest
	if !decodeJSON(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	people, err := h.service.SetParticipantCounts(r.Context(), sessionID(r), req.Adults, req.Children)
	if err != nil {
		h.writeError(w, r, "set participants", err)
		return
	}
	h.writeJSON(w, http.StatusOK, people)
}

type participantPatchRequest struct {
	Name       *string           `json:"name"`
	Level      *model.Level      `json:"level"`
	AgeBracket *model.AgeBracket `json:"age_bracket"`
	Medical    *model.Medical    `json:"medical"`
}

// UpdateParticipant меняет поля одного участника.
func (h *Handler) UpdateParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantPatchRequest
	if !decodeJSON(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pid := model.ParticipantID(chi.URLParam(r, "id"))
	p, err := h.service.UpdateParticipant(r.Context(), sessionID(r), pid, participant.Patch{
		Name:       req.Name,
		Level:      req.Level,
		AgeBracket: req.AgeBracket,
		Medical:    req.Medical,
	})
	if err != nil {
		h.writeError(w, r, "update participant", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

type activityRequest struct {
	Activities  []model.ActivityType `json:"activities"`
	BookingDate string               `json:"booking_date"`
}

// SetActivity задаёт виды активности и дату бронирования.
func (h *Handler) SetActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !decodeJSON(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var date time.Time
	if req.BookingDate != "" {
		var err error
		date, err = time.Parse(time.DateOnly, req.BookingDate)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	if err := h.service.SetActivity(r.Context(), sessionID(r), req.Activities, date); err != nil {
		h.writeError(w, r, "set activity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRecommendations возвращает подходящие пакеты по участникам и группам.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Recommendations(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, "get recommendations", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type selectRequest struct {
	PackageID    string                `json:"package_id"`
	Participants []model.ParticipantID `json:"participants"`
}

// Select выбирает пакет для участника или группы.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.PackageID == "" || len(req.Participants) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sel, err := h.service.Select(r.Context(), sessionID(r), req.PackageID, req.Participants)
	if err != nil {
		h.writeError(w, r, "select package", err)
		return
	}
	h.writeJSON(w, http.StatusOK, sel)
}

// CancelSelection снимает выбор по ключу набора участников.
func (h *Handler) CancelSelection(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "key")
	key, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(key) == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CancelSelection(r.Context(), sessionID(r), model.SelectionKey(key)); err != nil {
		h.writeError(w, r, "cancel selection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSummary возвращает состояние формы с итогами.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, "get summary", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

type voucherRequest struct {
	Code string `json:"code"`
}

// ApplyVoucher применяет ваучер к текущей сумме.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	var req voucherRequest
	if !decodeJSON(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.ApplyVoucher(r.Context(), sessionID(r), strings.TrimSpace(req.Code))
	if err != nil {
		h.writeError(w, r, "apply voucher", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ClearVoucher убирает применённый ваучер.
func (h *Handler) ClearVoucher(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearVoucher(r.Context(), sessionID(r)); err != nil {
		h.writeError(w, r, "clear voucher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPayment задаёт валюту, агента, способ оплаты и разбиение суммы.
func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	var req service.PaymentInput
	if !decodeJSON(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetPayment(r.Context(), sessionID(r), req); err != nil {
		h.writeError(w, r, "set payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPaymentMethods возвращает способы оплаты, доступные сессии.
func (h *Handler) GetPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.service.PaymentMethods(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, "get payment methods", err)
		return
	}
	h.writeJSON(w, http.StatusOK, methods)
}

// SetCustomer сохраняет контактные данные заказчика.
func (h *Handler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	var req model.Customer
	if !decodeJSON(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetCustomer(r.Context(), sessionID(r), req); err != nil {
		h.writeError(w, r, "set customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
