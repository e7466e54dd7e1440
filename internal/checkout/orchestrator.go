// Package checkout ведёт оформление бронирования от проверки формы до результата оплаты.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mmeshcher/surfbooking/internal/bookingapi"
	"github.com/mmeshcher/surfbooking/internal/model"
	"github.com/mmeshcher/surfbooking/internal/payment"
	"github.com/mmeshcher/surfbooking/internal/validation"
)

// Правила проверки формы, которые добавляет оформление.
const (
	RuleParticipantsEmpty    = "participants_empty"
	RuleSelectionsEmpty      = "selections_empty"
	RuleParticipantUncovered = "participant_uncovered"
	RulePackageUnpriced      = "package_unpriced"
	RuleSelectionIneligible  = "selection_ineligible"
)

// BookingAPI методы API бронирования, нужные для отправки.
type BookingAPI interface {
	GenerateNumber(ctx context.Context) (string, error)
	SubmitBooking(ctx context.Context, sub *model.BookingSubmission) error
	SubmitWithoutPayment(ctx context.Context, sub *model.BookingSubmission) (string, error)
	CreateGatewayPayment(ctx context.Context, sub *model.BookingSubmission) (*bookingapi.GatewayPayment, error)
	ExecuteGatewayPayment(ctx context.Context, paymentID, payerID, bookingNo string) (*bookingapi.ExecuteResult, error)
}

// Ledger журнал попыток отправки.
type Ledger interface {
	Reserve(ctx context.Context, a model.Attempt) error
	UpdateState(ctx context.Context, id string, state model.CheckoutState) error
	SetPaymentRef(ctx context.Context, id, ref string) error
}

// Deps общие зависимости оформления для всех сессий.
type Deps struct {
	API            BookingAPI
	Ledger         Ledger
	Validator      *validation.Validator
	Resolver       *payment.Resolver
	GatewayTimeout time.Duration
	Clock          func() time.Time
}

var transitions = map[model.CheckoutState][]model.CheckoutState{
	model.StateIdle:                 {model.StateValidating},
	model.StateValidating:           {model.StateRejected, model.StateReady},
	model.StateRejected:             {model.StateValidating, model.StateIdle},
	model.StateReady:                {model.StateValidating, model.StateSubmitting, model.StateIdle},
	model.StateSubmitting:           {model.StateDirectSuccess, model.StateGatewayPending, model.StateSubmissionFailed, model.StateAwaitingConfirmation},
	model.StateAwaitingConfirmation: {model.StateSubmitting, model.StateCancelled},
	model.StateGatewayPending: {
		model.StateGatewaySuccess, model.StateGatewayFailure, model.StateGatewayExpired,
		model.StateGatewayTimeout, model.StateCancelled,
	},
	model.StateSubmissionFailed: {model.StateIdle},
	model.StateGatewayFailure:   {model.StateIdle},
	model.StateGatewayExpired:   {model.StateIdle},
	model.StateGatewayTimeout:   {model.StateIdle},
	model.StateCancelled:        {model.StateIdle},
}

// Status текущее состояние оформления для клиента.
type Status struct {
	State         model.CheckoutState      `json:"state"`
	AttemptID     string                   `json:"attempt_id,omitempty"`
	BookingNumber string                   `json:"booking_number,omitempty"`
	Channel       model.Channel            `json:"channel,omitempty"`
	PaymentToken  string                   `json:"payment_token,omitempty"`
	ApprovalURL   string                   `json:"approval_url,omitempty"`
	Errors        model.ValidationErrors   `json:"errors,omitempty"`
	Message       string                   `json:"message,omitempty"`
	Submission    *model.BookingSubmission `json:"submission,omitempty"`
}

// Orchestrator конечный автомат оформления одной сессии. Не потокобезопасен:
// вызывающий держит блокировку сессии.
type Orchestrator struct {
	deps      Deps
	sessionID string
	logger    *zap.Logger

	state        model.CheckoutState
	attempt      *model.Attempt
	submission   *model.BookingSubmission
	token        string
	approvalURL  string
	pendingSince time.Time
	errs         model.ValidationErrors
	lastErr      error
}

// NewOrchestrator создаёт автомат в состоянии Idle.
func NewOrchestrator(sessionID string, deps Deps, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Orchestrator{
		deps:      deps,
		sessionID: sessionID,
		logger:    logger.With(zap.String("session", sessionID)),
		state:     model.StateIdle,
	}
}

// State возвращает текущее состояние.
func (o *Orchestrator) State() model.CheckoutState { return o.state }

// Locked сообщает, что идёт отправка или оплата и форму менять нельзя.
func (o *Orchestrator) Locked() bool {
	switch o.state {
	case model.StateSubmitting, model.StateAwaitingConfirmation, model.StateGatewayPending:
		return true
	}
	return false
}

// Status возвращает снимок состояния.
func (o *Orchestrator) Status() Status {
	st := Status{
		State:        o.state,
		PaymentToken: o.token,
		ApprovalURL:  o.approvalURL,
		Errors:       o.errs,
		Submission:   o.submission,
	}
	if o.attempt != nil {
		st.AttemptID = o.attempt.ID
		st.BookingNumber = o.attempt.BookingNumber
		st.Channel = o.attempt.Channel
	}
	if o.lastErr != nil {
		st.Message = userMessage(o.lastErr)
	}
	return st
}

func userMessage(err error) string {
	if hint := errors.FlattenHints(err); hint != "" {
		return hint
	}
	var netErr *bookingapi.NetworkError
	if errors.As(err, &netErr) {
		return netErr.Message()
	}
	return err.Error()
}

func invalidTransition(from model.CheckoutState, action string) error {
	return errors.WithHint(
		errors.Wrapf(model.ErrInvalidTransition, "%s -> %s", from, action),
		fmt.Sprintf("This action is not available while checkout is %s.", from),
	)
}

func (o *Orchestrator) transition(ctx context.Context, to model.CheckoutState) error {
	from := o.state
	allowed := false
	for _, s := range transitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return invalidTransition(from, string(to))
	}

	o.state = to
	fields := []zap.Field{zap.String("from", string(from)), zap.String("to", string(to))}
	if o.attempt != nil {
		o.attempt.State = to
		fields = append(fields, zap.String("attempt", o.attempt.ID), zap.String("booking_number", o.attempt.BookingNumber))
		if err := o.deps.Ledger.UpdateState(ctx, o.attempt.ID, to); err != nil {
			o.logger.Warn("failed to record attempt state", append(fields, zap.Error(err))...)
		}
	}
	o.logger.Info("checkout transition", fields...)
	return nil
}

// Validate проверяет форму целиком и собирает все нарушения.
func (o *Orchestrator) Validate(ctx context.Context, d Draft) (model.ValidationErrors, error) {
	if err := o.transition(ctx, model.StateValidating); err != nil {
		return nil, err
	}

	var errs model.ValidationErrors
	if len(d.Participants) == 0 {
		errs = append(errs, model.ValidationError{Field: "participants", Rule: RuleParticipantsEmpty, Message: "Add at least one participant."})
	}
	errs = append(errs, o.deps.Validator.Participants(d.Participants)...)

	if len(d.Selections) == 0 && len(d.Participants) > 0 {
		errs = append(errs, model.ValidationError{Field: "selections", Rule: RuleSelectionsEmpty, Message: "Choose a package for every participant."})
	}
	for _, p := range d.Uncovered {
		errs = append(errs, model.ValidationError{
			Field:   "participants." + string(p.ID),
			Rule:    RuleParticipantUncovered,
			Message: fmt.Sprintf("%s has no package selected.", p.Name),
		})
	}
	for _, key := range d.Unpriced {
		errs = append(errs, model.ValidationError{
			Field:   "selections." + string(key),
			Rule:    RulePackageUnpriced,
			Message: "The selected package has no price yet. Please choose another one.",
		})
	}
	for _, key := range d.Ineligible {
		errs = append(errs, model.ValidationError{
			Field:   "selections." + string(key),
			Rule:    RuleSelectionIneligible,
			Message: "The selected package no longer matches the participants' level or age. Please choose another one.",
		})
	}

	errs = append(errs, o.deps.Resolver.ValidateSubmission(d.Intent())...)
	errs = append(errs, o.deps.Validator.Customer(d.Customer)...)

	o.errs = errs
	o.lastErr = nil
	next := model.StateReady
	if len(errs) > 0 {
		next = model.StateRejected
	}
	if err := o.transition(ctx, next); err != nil {
		return nil, err
	}
	return errs, nil
}

// Submit проверяет форму и отправляет бронирование по пути выбранного канала.
// Каждая отправка получает новый номер бронирования непосредственно перед сборкой запроса.
func (o *Orchestrator) Submit(ctx context.Context, d Draft) (Status, error) {
	errs, err := o.Validate(ctx, d)
	if err != nil {
		return o.Status(), err
	}
	if len(errs) > 0 {
		return o.Status(), errs
	}

	if err := o.transition(ctx, model.StateSubmitting); err != nil {
		return o.Status(), err
	}

	channel := payment.PrimaryChannel(d.Intent())
	if err := o.begin(ctx, d, channel); err != nil {
		return o.Status(), o.fail(ctx, err)
	}

	switch {
	case d.Agent != nil:
		if err := o.deps.API.SubmitBooking(ctx, o.submission); err != nil {
			return o.Status(), o.fail(ctx, err)
		}
		return o.Status(), o.transition(ctx, model.StateDirectSuccess)

	case channel == model.ChannelLocalGateway:
		token, err := o.deps.API.SubmitWithoutPayment(ctx, o.submission)
		if err != nil {
			return o.Status(), o.fail(ctx, err)
		}
		o.token = token
		o.setPaymentRef(ctx, token)
		o.pendingSince = o.deps.Clock()
		return o.Status(), o.transition(ctx, model.StateGatewayPending)

	default:
		return o.Status(), o.transition(ctx, model.StateAwaitingConfirmation)
	}
}

// Confirm продолжает оплату через международный шлюз. Предыдущая попытка закрывается,
// а платёж создаётся под новым номером бронирования.
func (o *Orchestrator) Confirm(ctx context.Context, d Draft) (Status, error) {
	if o.state != model.StateAwaitingConfirmation {
		return o.Status(), invalidTransition(o.state, "confirm")
	}

	superseded := o.attempt
	o.attempt = nil
	if err := o.transition(ctx, model.StateSubmitting); err != nil {
		return o.Status(), err
	}
	if superseded != nil {
		if err := o.deps.Ledger.UpdateState(ctx, superseded.ID, model.StateCancelled); err != nil {
			o.logger.Warn("failed to close superseded attempt", zap.String("attempt", superseded.ID), zap.Error(err))
		}
	}

	if err := o.begin(ctx, d, model.ChannelInternationalGateway); err != nil {
		return o.Status(), o.fail(ctx, err)
	}

	pay, err := o.deps.API.CreateGatewayPayment(ctx, o.submission)
	if err != nil {
		return o.Status(), o.fail(ctx, err)
	}
	o.approvalURL = pay.ApprovalURL
	o.setPaymentRef(ctx, pay.PaymentID)
	o.pendingSince = o.deps.Clock()
	return o.Status(), o.transition(ctx, model.StateGatewayPending)
}

// begin получает новый номер, закрепляет его за новой попыткой и собирает запрос.
func (o *Orchestrator) begin(ctx context.Context, d Draft, channel model.Channel) error {
	o.attempt = nil
	o.submission = nil
	o.token = ""
	o.approvalURL = ""

	number, err := o.deps.API.GenerateNumber(ctx)
	if err != nil {
		return errors.WithHint(
			errors.Mark(errors.Wrap(err, "obtain booking number"), model.ErrBookingNumberUnavailable),
			"We could not obtain a booking number. Your booking was not sent, please try again.",
		)
	}

	now := o.deps.Clock()
	attempt := model.Attempt{
		ID:            model.NewAttemptID(),
		SessionID:     o.sessionID,
		BookingNumber: number,
		Channel:       channel,
		State:         model.StateSubmitting,
		Currency:      d.Currency,
		NetAmount:     d.Net,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.deps.Ledger.Reserve(ctx, attempt); err != nil {
		return errors.WithHint(err, "The booking number was already used. Please try again.")
	}

	o.attempt = &attempt
	o.submission = d.Submission(number)
	o.logger.Info("submission attempt reserved",
		zap.String("attempt", attempt.ID),
		zap.String("booking_number", number),
		zap.String("channel", string(channel)),
	)
	return nil
}

func (o *Orchestrator) setPaymentRef(ctx context.Context, ref string) {
	if o.attempt == nil {
		return
	}
	o.attempt.PaymentRef = ref
	if err := o.deps.Ledger.SetPaymentRef(ctx, o.attempt.ID, ref); err != nil {
		o.logger.Warn("failed to record payment reference", zap.String("attempt", o.attempt.ID), zap.Error(err))
	}
}

func (o *Orchestrator) fail(ctx context.Context, cause error) error {
	o.lastErr = cause
	o.logger.Warn("submission failed", zap.Error(cause))
	if err := o.transition(ctx, model.StateSubmissionFailed); err != nil {
		return err
	}
	return cause
}

// Outcome исход оплаты, сообщённый шлюзом.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
	OutcomeExpired Outcome = "expired"
)

// Callback уведомление о результате оплаты во внешнем шлюзе.
type Callback struct {
	AttemptID string  `json:"attempt_id"`
	Outcome   Outcome `json:"outcome"`
	PaymentID string  `json:"payment_id"`
	PayerID   string  `json:"payer_id"`
}

// HandleCallback переводит ожидающую оплату в итоговое состояние.
// Для международного шлюза успешный возврат подтверждается вызовом execute-payment.
func (o *Orchestrator) HandleCallback(ctx context.Context, cb Callback) (Status, error) {
	if o.state != model.StateGatewayPending || o.attempt == nil {
		return o.Status(), invalidTransition(o.state, "payment callback")
	}
	if cb.AttemptID != "" && cb.AttemptID != o.attempt.ID {
		return o.Status(), errors.WithHint(
			errors.Wrapf(model.ErrInvalidTransition, "callback for attempt %s, current is %s", cb.AttemptID, o.attempt.ID),
			"This payment belongs to an earlier attempt.",
		)
	}

	switch cb.Outcome {
	case OutcomeSuccess:
		if o.attempt.Channel == model.ChannelInternationalGateway {
			return o.execute(ctx, cb)
		}
		return o.Status(), o.transition(ctx, model.StateGatewaySuccess)
	case OutcomeExpired:
		o.lastErr = errors.WithHint(model.ErrGatewayExpired, "The payment window expired. You can try again.")
		return o.Status(), o.transition(ctx, model.StateGatewayExpired)
	case OutcomeDenied:
		o.lastErr = errors.WithHint(model.ErrGatewayDenied, "The payment was declined. You can try again or choose another method.")
		return o.Status(), o.transition(ctx, model.StateGatewayFailure)
	case OutcomeFailure:
		o.lastErr = errors.WithHint(model.ErrGatewayFailure, "The payment did not go through. You can try again.")
		return o.Status(), o.transition(ctx, model.StateGatewayFailure)
	}
	return o.Status(), errors.Mark(errors.Newf("unknown payment outcome %q", cb.Outcome), model.ErrValidation)
}

func (o *Orchestrator) execute(ctx context.Context, cb Callback) (Status, error) {
	paymentID := o.attempt.PaymentRef
	if cb.PaymentID != "" && cb.PaymentID != paymentID {
		return o.Status(), errors.WithHint(
			errors.Wrapf(model.ErrInvalidTransition, "payment %s does not belong to attempt %s", cb.PaymentID, o.attempt.ID),
			"This payment belongs to an earlier attempt.",
		)
	}

	res, err := o.deps.API.ExecuteGatewayPayment(ctx, paymentID, cb.PayerID, o.attempt.BookingNumber)
	if err != nil {
		// Шлюз мог не ответить: платёж остаётся в ожидании до повторного вызова или таймаута.
		return o.Status(), err
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "The payment did not go through. You can try again."
		}
		o.lastErr = errors.WithHint(model.ErrGatewayFailure, msg)
		return o.Status(), o.transition(ctx, model.StateGatewayFailure)
	}
	return o.Status(), o.transition(ctx, model.StateGatewaySuccess)
}

// Cancel закрывает окно оплаты до получения результата.
func (o *Orchestrator) Cancel(ctx context.Context) (Status, error) {
	if err := o.transition(ctx, model.StateCancelled); err != nil {
		return o.Status(), err
	}
	o.lastErr = errors.WithHint(errors.New("payment cancelled"), "The payment was cancelled. Your booking details are kept.")
	return o.Status(), nil
}

// Expire переводит оплату, ожидающую дольше GatewayTimeout, в GatewayTimeout.
func (o *Orchestrator) Expire(ctx context.Context, now time.Time) bool {
	if o.state != model.StateGatewayPending || o.deps.GatewayTimeout <= 0 {
		return false
	}
	if now.Sub(o.pendingSince) < o.deps.GatewayTimeout {
		return false
	}
	o.lastErr = errors.WithHint(model.ErrGatewayExpired, "We did not hear back from the payment provider. You can try again.")
	return o.transition(ctx, model.StateGatewayTimeout) == nil
}

// Retry возвращает автомат в Idle после неудачи. Данные формы хранятся в сессии и не теряются.
func (o *Orchestrator) Retry(ctx context.Context) (Status, error) {
	if !o.state.Retryable() {
		return o.Status(), invalidTransition(o.state, "retry")
	}
	o.attempt = nil
	if err := o.transition(ctx, model.StateIdle); err != nil {
		return o.Status(), err
	}
	o.submission = nil
	o.token = ""
	o.approvalURL = ""
	o.errs = nil
	o.lastErr = nil
	return o.Status(), nil
}
