package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/surfbooking/internal/bookingapi"
	"github.com/mmeshcher/surfbooking/internal/model"
	"github.com/mmeshcher/surfbooking/internal/payment"
	"github.com/mmeshcher/surfbooking/internal/repository"
	"github.com/mmeshcher/surfbooking/internal/validation"
)

type stubAPI struct {
	numbers    []string
	numberErr  error
	submitErr  error
	token      string
	payment    *bookingapi.GatewayPayment
	execResult *bookingapi.ExecuteResult

	submitted    []*model.BookingSubmission
	gatewaySubs  []*model.BookingSubmission
	executeCalls []string
}

func (s *stubAPI) GenerateNumber(context.Context) (string, error) {
	if s.numberErr != nil {
		return "", s.numberErr
	}
	n := s.numbers[0]
	if len(s.numbers) > 1 {
		s.numbers = s.numbers[1:]
	}
	return n, nil
}

func (s *stubAPI) SubmitBooking(_ context.Context, sub *model.BookingSubmission) error {
	s.submitted = append(s.submitted, sub)
	return s.submitErr
}

func (s *stubAPI) SubmitWithoutPayment(_ context.Context, sub *model.BookingSubmission) (string, error) {
	s.submitted = append(s.submitted, sub)
	return s.token, s.submitErr
}

func (s *stubAPI) CreateGatewayPayment(_ context.Context, sub *model.BookingSubmission) (*bookingapi.GatewayPayment, error) {
	s.gatewaySubs = append(s.gatewaySubs, sub)
	return s.payment, nil
}

func (s *stubAPI) ExecuteGatewayPayment(_ context.Context, paymentID, payerID, bookingNo string) (*bookingapi.ExecuteResult, error) {
	s.executeCalls = append(s.executeCalls, paymentID+"/"+payerID+"/"+bookingNo)
	return s.execResult, nil
}

type fixture struct {
	api    *stubAPI
	ledger *repository.MemoryRepository
	clock  time.Time
	orch   *Orchestrator
}

func newFixture(api *stubAPI) *fixture {
	f := &fixture{api: api, ledger: repository.NewMemoryRepository(), clock: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	f.orch = NewOrchestrator("ses_1", Deps{
		API:            api,
		Ledger:         f.ledger,
		Validator:      validation.New(),
		Resolver:       payment.NewResolver("IDR"),
		GatewayTimeout: 15 * time.Minute,
		Clock:          func() time.Time { return f.clock },
	}, nil)
	return f
}

func idr(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func validDraft() Draft {
	ann := model.Participant{ID: "ptc_ann", Category: model.CategoryAdult, Name: "Ann", Level: model.LevelBeginner, AgeBracket: model.AgeAdult}
	pkg := model.Package{ID: "p1", Name: "Private Lesson", Activity: model.ActivityLesson, Price: decimal.NewNullDecimal(idr(500000))}
	set := model.NewParticipantSet(ann.ID)
	return Draft{
		SessionID:    "ses_1",
		Participants: []model.Participant{ann},
		Selections:   []model.Selection{{Key: set.Key(), Package: pkg, Participants: set}},
		Currency:     "IDR",
		Method:       model.ChannelLocalGateway,
		Gross:        idr(500000),
		Discount:     decimal.Zero,
		Net:          idr(500000),
		Customer:     model.Customer{Name: "Ann", Email: "ann@example.com", Phone: "+6281234", Country: "ID"},
		BookingDate:  time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
	}
}

func agentDraft() Draft {
	d := validDraft()
	d.Method = ""
	d.Agent = &model.Agent{Code: "AG1", Channels: []model.Channel{model.ChannelBank, model.ChannelBalance}, BalanceCeiling: decimal.NewNullDecimal(idr(200000))}
	d.Split = []model.SplitPayment{{Channel: model.ChannelBank, Amount: idr(300000)}, {Channel: model.ChannelBalance, Amount: idr(200000)}}
	return d
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	f := newFixture(&stubAPI{})

	d := agentDraft()
	d.Customer = model.Customer{}
	d.Uncovered = []model.Participant{{ID: "ptc_ben", Name: "Ben"}}
	d.Split = []model.SplitPayment{{Channel: model.ChannelBank, Amount: idr(300000)}, {Channel: model.ChannelBalance, Amount: idr(250000)}}

	errs, err := f.orch.Validate(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, errs.Has(RuleParticipantUncovered))
	assert.True(t, errs.Has(payment.RuleAmountMismatch))
	assert.True(t, errs.Has(payment.RuleBalanceExceeded))
	assert.True(t, errs.Has(validation.RuleRequired))
	assert.Equal(t, model.StateRejected, f.orch.State())
	assert.Equal(t, errs, f.orch.Status().Errors)
}

func TestSubmit_RejectedDoesNotCallAPI(t *testing.T) {
	api := &stubAPI{numbers: []string{"BK-1"}}
	f := newFixture(api)

	d := validDraft()
	d.Selections = nil
	d.Uncovered = d.Participants

	_, err := f.orch.Submit(context.Background(), d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Equal(t, model.StateRejected, f.orch.State())
	assert.Empty(t, api.submitted)

	// Исправленная форма отправляется из Rejected.
	api.token = "snap-1"
	st, err := f.orch.Submit(context.Background(), validDraft())
	require.NoError(t, err)
	assert.Equal(t, model.StateGatewayPending, st.State)
}

func TestSubmit_AgentSettlesDirectly(t *testing.T) {
	api := &stubAPI{numbers: []string{"BK-100"}}
	f := newFixture(api)

	st, err := f.orch.Submit(context.Background(), agentDraft())
	require.NoError(t, err)

	assert.Equal(t, model.StateDirectSuccess, st.State)
	assert.Equal(t, "BK-100", st.BookingNumber)
	require.Len(t, api.submitted, 1)

	sub := api.submitted[0]
	assert.Equal(t, "BK-100", sub.BookingNumber)
	assert.Equal(t, "AG1", sub.AgentCode)
	assert.Equal(t, model.ChannelBank, sub.Method)
	assert.Len(t, sub.Payments, 2)
	assert.Equal(t, []string{"Ann"}, sub.Lines[0].Participants)
	assert.Equal(t, "2026-05-02", sub.BookingDate)

	stored, err := f.ledger.Get(context.Background(), st.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDirectSuccess, stored.State)
	assert.True(t, stored.NetAmount.Equal(idr(500000)))
}

func TestSubmit_LocalGatewayCallback(t *testing.T) {
	api := &stubAPI{numbers: []string{"BK-7"}, token: "snap-token"}
	f := newFixture(api)
	ctx := context.Background()

	st, err := f.orch.Submit(ctx, validDraft())
	require.NoError(t, err)
	assert.Equal(t, model.StateGatewayPending, st.State)
	assert.Equal(t, "snap-token", st.PaymentToken)
	assert.True(t, f.orch.Locked())

	stored, err := f.ledger.Get(ctx, st.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, "snap-token", stored.PaymentRef)

	st, err = f.orch.HandleCallback(ctx, Callback{AttemptID: st.AttemptID, Outcome: OutcomeSuccess})
	require.NoError(t, err)
	assert.Equal(t, model.StateGatewaySuccess, st.State)
	assert.Empty(t, api.executeCalls)

	_, err = f.orch.Retry(ctx)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
}

func TestSubmit_InternationalUsesFreshNumberOnConfirm(t *testing.T) {
	api := &stubAPI{
		numbers:    []string{"BK-1", "BK-2"},
		payment:    &bookingapi.GatewayPayment{PaymentID: "PAY-9", ApprovalURL: "https://gateway.example/approve"},
		execResult: &bookingapi.ExecuteResult{Success: true},
	}
	f := newFixture(api)
	ctx := context.Background()

	d := validDraft()
	d.Currency = "USD"
	d.Method = model.ChannelInternationalGateway

	st, err := f.orch.Submit(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingConfirmation, st.State)
	assert.Equal(t, "BK-1", st.BookingNumber)
	first := st.AttemptID

	st, err = f.orch.Confirm(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, model.StateGatewayPending, st.State)
	assert.Equal(t, "BK-2", st.BookingNumber)
	assert.NotEqual(t, first, st.AttemptID)
	assert.Equal(t, "https://gateway.example/approve", st.ApprovalURL)
	require.Len(t, api.gatewaySubs, 1)
	assert.Equal(t, "BK-2", api.gatewaySubs[0].BookingNumber)

	superseded, err := f.ledger.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, superseded.State)

	_, err = f.orch.HandleCallback(ctx, Callback{AttemptID: first, Outcome: OutcomeSuccess})
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))

	st, err = f.orch.HandleCallback(ctx, Callback{Outcome: OutcomeSuccess, PaymentID: "PAY-9", PayerID: "PAYER-1"})
	require.NoError(t, err)
	assert.Equal(t, model.StateGatewaySuccess, st.State)
	assert.Equal(t, []string{"PAY-9/PAYER-1/BK-2"}, api.executeCalls)
}

func TestSubmit_NoBookingNumber(t *testing.T) {
	api := &stubAPI{numberErr: &bookingapi.NetworkError{Kind: bookingapi.FailureServer, StatusCode: 502, Op: "generate booking number"}}
	f := newFixture(api)
	ctx := context.Background()

	st, err := f.orch.Submit(ctx, agentDraft())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrBookingNumberUnavailable))
	assert.Equal(t, model.StateSubmissionFailed, st.State)
	assert.NotEmpty(t, st.Message)
	assert.Empty(t, api.submitted)

	st, err = f.orch.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, st.State)
	assert.Empty(t, st.Message)
}

func TestSubmit_ReusedNumberRefused(t *testing.T) {
	api := &stubAPI{numbers: []string{"BK-5"}, token: "snap"}
	f := newFixture(api)
	ctx := context.Background()

	_, err := f.orch.Submit(ctx, validDraft())
	require.NoError(t, err)
	_, err = f.orch.Cancel(ctx)
	require.NoError(t, err)
	_, err = f.orch.Retry(ctx)
	require.NoError(t, err)

	st, err := f.orch.Submit(ctx, validDraft())
	assert.True(t, errors.Is(err, model.ErrBookingNumberReused))
	assert.Equal(t, model.StateSubmissionFailed, st.State)
	assert.Len(t, api.submitted, 1)
}

func TestSubmit_ServerRejection(t *testing.T) {
	api := &stubAPI{numbers: []string{"BK-3"}, submitErr: errors.WithHint(errors.Mark(errors.New("booking BK-3 rejected"), model.ErrSubmissionRejected), "Agent balance is frozen")}
	f := newFixture(api)

	st, err := f.orch.Submit(context.Background(), agentDraft())
	assert.True(t, errors.Is(err, model.ErrSubmissionRejected))
	assert.Equal(t, model.StateSubmissionFailed, st.State)
	assert.Equal(t, "Agent balance is frozen", st.Message)
}

func TestGatewayOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    model.CheckoutState
	}{
		{name: "failure", outcome: OutcomeFailure, want: model.StateGatewayFailure},
		{name: "denied", outcome: OutcomeDenied, want: model.StateGatewayFailure},
		{name: "expired", outcome: OutcomeExpired, want: model.StateGatewayExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(&stubAPI{numbers: []string{"BK-" + tt.name}, token: "snap"})
			ctx := context.Background()

			_, err := f.orch.Submit(ctx, validDraft())
			require.NoError(t, err)

			st, err := f.orch.HandleCallback(ctx, Callback{Outcome: tt.outcome})
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.State)
			assert.NotEmpty(t, st.Message)
			assert.False(t, f.orch.Locked())

			st, err = f.orch.Retry(ctx)
			require.NoError(t, err)
			assert.Equal(t, model.StateIdle, st.State)
		})
	}
}

func TestExpire(t *testing.T) {
	f := newFixture(&stubAPI{numbers: []string{"BK-9"}, token: "snap"})
	ctx := context.Background()

	st, err := f.orch.Submit(ctx, validDraft())
	require.NoError(t, err)

	f.clock = f.clock.Add(14 * time.Minute)
	assert.False(t, f.orch.Expire(ctx, f.clock))
	assert.Equal(t, model.StateGatewayPending, f.orch.State())

	f.clock = f.clock.Add(time.Minute)
	assert.True(t, f.orch.Expire(ctx, f.clock))
	assert.Equal(t, model.StateGatewayTimeout, f.orch.State())

	stored, err := f.ledger.Get(ctx, st.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, model.StateGatewayTimeout, stored.State)

	_, err = f.orch.HandleCallback(ctx, Callback{Outcome: OutcomeSuccess})
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
}

func TestCancel_OnlyWhilePaymentOpen(t *testing.T) {
	f := newFixture(&stubAPI{})

	_, err := f.orch.Cancel(context.Background())
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
	assert.Equal(t, model.StateIdle, f.orch.State())
}

func TestValidate_IneligibleSelection(t *testing.T) {
	f := newFixture(&stubAPI{})

	d := validDraft()
	d.Ineligible = []model.SelectionKey{d.Selections[0].Key}

	errs, err := f.orch.Validate(context.Background(), d)
	require.NoError(t, err)

	require.True(t, errs.Has(RuleSelectionIneligible))
	assert.Equal(t, "selections."+string(d.Selections[0].Key), errs[0].Field)
	assert.Equal(t, model.StateRejected, f.orch.State())
}
