package model

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrMissingParticipant возвращается при выборе пакета для участника, которого нет в форме или у которого пустое имя.
	ErrMissingParticipant = errors.New("missing participant")
	// ErrValidation помечает ошибки проверки формы и оплаты.
	ErrValidation = errors.New("validation failed")
	// ErrVoucherRejected возвращается, если внешний API отклонил ваучер.
	ErrVoucherRejected = errors.New("voucher rejected")
	// ErrStaleVoucher возвращается, если ответ по ваучеру рассчитан для устаревшей суммы.
	ErrStaleVoucher = errors.New("voucher computed against a stale gross amount")
	// ErrNetwork помечает сетевые ошибки и ответы API не из диапазона 2xx.
	ErrNetwork = errors.New("network failure")
	// ErrGatewayFailure возвращается, если платёжный шлюз сообщил об ошибке оплаты.
	ErrGatewayFailure = errors.New("gateway payment failed")
	// ErrGatewayExpired возвращается, если срок оплаты в шлюзе истёк.
	ErrGatewayExpired = errors.New("gateway payment expired")
	// ErrGatewayDenied возвращается, если плательщик или шлюз отклонили платёж.
	ErrGatewayDenied = errors.New("gateway payment denied")
	// ErrSubmissionRejected возвращается, если API бронирования отклонил отправку.
	ErrSubmissionRejected = errors.New("booking submission rejected")
	// ErrBookingNumberUnavailable возвращается, если не удалось получить номер бронирования перед отправкой.
	ErrBookingNumberUnavailable = errors.New("booking number unavailable")
	// ErrBookingNumberReused возвращается при повторном использовании номера бронирования.
	ErrBookingNumberReused = errors.New("booking number already used by another attempt")
	// ErrAgentCurrency возвращается, если агент выбран при оплате не в базовой валюте.
	ErrAgentCurrency = errors.New("agent payments require the base currency")
	// ErrInvalidTransition возвращается при недопустимом переходе состояния оформления.
	ErrInvalidTransition = errors.New("invalid checkout transition")
	// ErrNotFound возвращается, если запрошенная сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrSessionNotFound возвращается для неизвестной или истёкшей сессии формы.
	ErrSessionNotFound = errors.New("booking session not found")
)

// MissingParticipantError перечисляет участников, которых не удалось найти в форме.
type MissingParticipantError struct {
	IDs   []ParticipantID
	Names []string
}

func (e *MissingParticipantError) Error() string {
	labels := make([]string, 0, len(e.IDs))
	for i, id := range e.IDs {
		if i < len(e.Names) && e.Names[i] != "" {
			labels = append(labels, e.Names[i])
			continue
		}
		labels = append(labels, string(id))
	}
	return fmt.Sprintf("missing participant: %s", strings.Join(labels, ", "))
}

// Is позволяет сопоставлять ошибку с ErrMissingParticipant.
func (e *MissingParticipantError) Is(target error) bool {
	return target == ErrMissingParticipant
}

// ValidationError одно нарушенное правило формы или оплаты.
type ValidationError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationErrors набор всех нарушенных правил, собранных без остановки на первом.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is позволяет сопоставлять набор с ErrValidation.
func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// Has сообщает, содержит ли набор нарушение с указанным правилом.
func (v ValidationErrors) Has(rule string) bool {
	for _, e := range v {
		if e.Rule == rule {
			return true
		}
	}
	return false
}

// Err возвращает nil для пустого набора.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
