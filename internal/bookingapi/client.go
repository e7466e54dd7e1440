// Package bookingapi предоставляет клиент для внешнего API бронирования и справочных данных.
package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/surfbooking/internal/catalog"
	"github.com/mmeshcher/surfbooking/internal/model"
)

// FailureKind различает недоступность сети и ошибку сервера.
type FailureKind string

const (
	FailureConnectivity FailureKind = "connectivity"
	FailureServer       FailureKind = "server"
)

// NetworkError ошибка обращения к API бронирования.
type NetworkError struct {
	Kind       FailureKind
	StatusCode int
	Op         string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Kind == FailureServer {
		return fmt.Sprintf("%s: server responded with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is позволяет сопоставлять ошибку с model.ErrNetwork.
func (e *NetworkError) Is(target error) bool { return target == model.ErrNetwork }

// Message текст для уведомления пользователя.
func (e *NetworkError) Message() string {
	if e.Kind == FailureServer {
		return "The booking service is having trouble right now. Please try again in a moment."
	}
	return "We could not reach the booking service. Please check your connection and try again."
}

// Client инкапсулирует HTTP-взаимодействие с API бронирования.
type Client struct {
	baseURL string
	token   string
	gateway string
	// reads повторяет идемпотентные GET-запросы, writes отправляет запрос один раз.
	reads  *retryablehttp.Client
	writes *retryablehttp.Client
	logger *zap.Logger
}

// Option настраивает клиент.
type Option func(*Client)

// WithGateway задаёт сегмент пути международного платёжного шлюза.
func WithGateway(name string) Option {
	return func(c *Client) { c.gateway = strings.Trim(name, "/") }
}

// WithRetryWait задаёт границы ожидания между повторами.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		c.reads.RetryWaitMin = min
		c.reads.RetryWaitMax = max
	}
}

// NewClient создаёт клиент API бронирования с bearer-токеном.
func NewClient(baseURL, token string, logger *zap.Logger, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL: base,
		token:   token,
		gateway: "paypal",
		reads:   newTransport(logger, 3),
		writes:  newTransport(logger, 0),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newTransport(logger *zap.Logger, retries int) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = leveledLogger{logger.Sugar()}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if c == nil || c.baseURL == "" {
		return &NetworkError{Kind: FailureConnectivity, Op: op, Err: errors.New("booking api client not configured")}
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	var rawBody any
	if payload != nil {
		rawBody = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, rawBody)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	transport := c.writes
	if method == http.MethodGet {
		transport = c.reads
	}

	resp, err := transport.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return &NetworkError{Kind: FailureConnectivity, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Kind: FailureConnectivity, Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &responseError{
			NetworkError: NetworkError{Kind: FailureServer, StatusCode: resp.StatusCode, Op: op},
			body:         data,
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// responseError сохраняет тело ответа: на 4xx сервер объясняет отказ в поле message.
type responseError struct {
	NetworkError
	body []byte
}

func (e *responseError) Unwrap() error { return &e.NetworkError }

func serverMessage(err error) (string, bool) {
	var re *responseError
	if !errors.As(err, &re) || re.StatusCode >= http.StatusInternalServerError {
		return "", false
	}
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(re.body, &msg) != nil || msg.Message == "" {
		return "", false
	}
	return msg.Message, true
}

// GetSchedules возвращает расписание занятий.
func (c *Client) GetSchedules(ctx context.Context) ([]model.Schedule, error) {
	var out []model.Schedule
	if err := c.do(ctx, "get schedules", http.MethodGet, "/schedules", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMasterData возвращает пакеты, агентов, банки, расписания и текущий номер бронирования.
func (c *Client) GetMasterData(ctx context.Context) (*catalog.MasterData, error) {
	var out masterDataDTO
	if err := c.do(ctx, "get master data", http.MethodGet, "/master-data", nil, &out); err != nil {
		return nil, err
	}
	return out.toModel(), nil
}

// ApplyVoucher проверяет ваучер для суммы до скидки. Отказ помечается model.ErrVoucherRejected,
// а сообщение сервера передаётся подсказкой без изменений.
func (c *Client) ApplyVoucher(ctx context.Context, code string, gross decimal.Decimal) (*model.VoucherResult, error) {
	var out applyVoucherResponse
	err := c.do(ctx, "apply voucher", http.MethodPost, "/apply-voucher", applyVoucherRequest{
		VoucherCode: code,
		GrossAmount: gross,
	}, &out)
	if err != nil {
		if msg, ok := serverMessage(err); ok {
			return nil, rejectVoucher(code, msg)
		}
		return nil, err
	}
	if !out.Success {
		return nil, rejectVoucher(code, out.Message)
	}

	net := parseAmount(out.NetAmount)
	if !net.Valid {
		return nil, rejectVoucher(code, "The voucher response did not contain a payable amount.")
	}
	return &model.VoucherResult{
		Code:           code,
		PromoNo:        out.PromoNo,
		DiscountType:   model.DiscountType(strings.ToLower(out.DiscountType)),
		DiscountValue:  parseAmount(out.DiscountValue).Decimal,
		DiscountAmount: parseAmount(out.DiscountAmount).Decimal,
		NetAmount:      net.Decimal,
		GrossAmount:    gross,
	}, nil
}

func rejectVoucher(code, message string) error {
	if message == "" {
		message = "Voucher is not valid."
	}
	return errors.WithHint(errors.Mark(errors.Newf("voucher %q rejected", code), model.ErrVoucherRejected), message)
}

// GenerateNumber выдаёт новый номер бронирования. Вызывается непосредственно перед каждой отправкой.
func (c *Client) GenerateNumber(ctx context.Context) (string, error) {
	var out generateNumberResponse
	if err := c.do(ctx, "generate booking number", http.MethodGet, "/generate-number", nil, &out); err != nil {
		return "", err
	}
	if out.BookingNumber == "" {
		return "", errors.New("generate booking number: empty booking number")
	}
	return out.BookingNumber, nil
}

// SubmitBooking отправляет бронирование с оплатой через агента; расчёт происходит синхронно.
func (c *Client) SubmitBooking(ctx context.Context, sub *model.BookingSubmission) error {
	var out submitResponse
	if err := c.do(ctx, "submit booking", http.MethodPost, "/booking", sub, &out); err != nil {
		if msg, ok := serverMessage(err); ok {
			return rejectSubmission(sub.BookingNumber, msg)
		}
		return err
	}
	if !out.Success {
		return rejectSubmission(sub.BookingNumber, out.Message)
	}
	return nil
}

// SubmitWithoutPayment отправляет бронирование для оплаты через локальный шлюз
// и возвращает токен продолжения оплаты.
func (c *Client) SubmitWithoutPayment(ctx context.Context, sub *model.BookingSubmission) (string, error) {
	var out submitResponse
	if err := c.do(ctx, "submit booking without payment", http.MethodPost, "/booking/without-payment", sub, &out); err != nil {
		if msg, ok := serverMessage(err); ok {
			return "", rejectSubmission(sub.BookingNumber, msg)
		}
		return "", err
	}
	if !out.Success || out.Token == "" {
		return "", rejectSubmission(sub.BookingNumber, out.Message)
	}
	return out.Token, nil
}

func rejectSubmission(bookingNo, message string) error {
	if message == "" {
		message = "The booking could not be completed."
	}
	return errors.WithHint(errors.Mark(errors.Newf("booking %s rejected", bookingNo), model.ErrSubmissionRejected), message)
}

// CreateGatewayPayment создаёт платёж в международном шлюзе и возвращает адрес подтверждения.
func (c *Client) CreateGatewayPayment(ctx context.Context, sub *model.BookingSubmission) (*GatewayPayment, error) {
	var out GatewayPayment
	if err := c.do(ctx, "create gateway payment", http.MethodPost, "/"+c.gateway+"/create-booking-payment", sub, &out); err != nil {
		if msg, ok := serverMessage(err); ok {
			return nil, rejectSubmission(sub.BookingNumber, msg)
		}
		return nil, err
	}
	if out.ApprovalURL == "" || out.PaymentID == "" {
		return nil, rejectSubmission(sub.BookingNumber, "The payment provider did not return an approval link.")
	}
	return &out, nil
}

// ExecuteGatewayPayment завершает платёж после возврата плательщика со страницы шлюза.
func (c *Client) ExecuteGatewayPayment(ctx context.Context, paymentID, payerID, bookingNo string) (*ExecuteResult, error) {
	var out ExecuteResult
	err := c.do(ctx, "execute gateway payment", http.MethodPost, "/"+c.gateway+"/execute-payment", executePaymentRequest{
		PaymentID:     paymentID,
		PayerID:       payerID,
		BookingNumber: bookingNo,
	}, &out)
	if err != nil {
		if msg, ok := serverMessage(err); ok {
			return &ExecuteResult{Success: false, Message: msg}, nil
		}
		return nil, err
	}
	return &out, nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
