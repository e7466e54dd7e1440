// Package service реализует сессии формы бронирования поверх доменных компонентов.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"
	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/surfbooking/internal/bookingapi"
	"github.com/mmeshcher/surfbooking/internal/catalog"
	"github.com/mmeshcher/surfbooking/internal/checkout"
	"github.com/mmeshcher/surfbooking/internal/currency"
	"github.com/mmeshcher/surfbooking/internal/eligibility"
	"github.com/mmeshcher/surfbooking/internal/model"
	"github.com/mmeshcher/surfbooking/internal/participant"
	"github.com/mmeshcher/surfbooking/internal/payment"
	"github.com/mmeshcher/surfbooking/internal/pricing"
	"github.com/mmeshcher/surfbooking/internal/selection"
	"github.com/mmeshcher/surfbooking/internal/validation"
)

// Repository описывает журнал попыток отправки, используемый сервисом.
type Repository interface {
	Close() error
	Reserve(ctx context.Context, a model.Attempt) error
	UpdateState(ctx context.Context, id string, state model.CheckoutState) error
	SetPaymentRef(ctx context.Context, id, ref string) error
	Get(ctx context.Context, id string) (*model.Attempt, error)
	ListPending(ctx context.Context, before time.Time) ([]model.Attempt, error)
}

// BookingAPI описывает внешний API бронирования.
type BookingAPI interface {
	checkout.BookingAPI
	GetMasterData(ctx context.Context) (*catalog.MasterData, error)
	GetSchedules(ctx context.Context) ([]model.Schedule, error)
	GetCountries(ctx context.Context) []bookingapi.Country
	ApplyVoucher(ctx context.Context, code string, gross decimal.Decimal) (*model.VoucherResult, error)
}

// Options параметры сервиса.
type Options struct {
	BaseCurrency   string
	Rates          map[string]decimal.Decimal
	SessionTTL     time.Duration
	MasterDataTTL  time.Duration
	GatewayTimeout time.Duration
	SweepInterval  time.Duration
	RenamePolicy   participant.RenamePolicy
}

// Service хранит сессии формы бронирования.
type Service struct {
	repo      Repository
	api       BookingAPI
	store     *catalog.Store
	converter *currency.Converter
	resolver  *payment.Resolver
	validator *validation.Validator
	sessions  *gocache.Cache
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewService создаёт сервис с указанным журналом попыток и клиентом API бронирования.
func NewService(repo Repository, api BookingAPI, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	if opts.MasterDataTTL <= 0 {
		opts.MasterDataTTL = 30 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}

	s := &Service{
		repo:      repo,
		api:       api,
		store:     catalog.NewStore(api, opts.MasterDataTTL),
		converter: currency.NewConverter(opts.BaseCurrency, opts.Rates),
		resolver:  payment.NewResolver(opts.BaseCurrency),
		validator: validation.New(),
		sessions:  gocache.New(opts.SessionTTL, opts.SessionTTL/2),
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
	s.sessions.OnEvicted(func(id string, _ interface{}) {
		s.logger.Debug("session expired", zap.String("session", id))
	})
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Session состояние формы одного посетителя. Все поля защищены mu.
type Session struct {
	ID string

	mu          sync.Mutex
	snapshot    *catalog.Snapshot
	roster      *participant.Roster
	selections  *selection.Reconciler
	calc        *pricing.Calculator
	checkout    *checkout.Orchestrator
	currency    string
	agent       *model.Agent
	method      model.Channel
	split       []model.SplitPayment
	customer    model.Customer
	activities  []model.ActivityType
	bookingDate time.Time
}

// NewSession открывает сессию на текущем снимке справочных данных.
func (s *Service) NewSession(ctx context.Context) (string, error) {
	snap, err := s.store.Current(ctx)
	if err != nil {
		return "", err
	}

	sess := &Session{
		ID:         "ses_" + ulid.Make().String(),
		snapshot:   snap,
		roster:     participant.NewRoster(s.opts.RenamePolicy),
		selections: selection.NewReconciler(),
		currency:   s.converter.Base(),
		activities: []model.ActivityType{model.ActivityLesson},
	}
	sess.calc = pricing.NewCalculator(sess.selections, s.api)
	sess.checkout = checkout.NewOrchestrator(sess.ID, checkout.Deps{
		API:            s.api,
		Ledger:         s.repo,
		Validator:      s.validator,
		Resolver:       s.resolver,
		GatewayTimeout: s.opts.GatewayTimeout,
		Clock:          func() time.Time { return s.now() },
	}, s.logger)

	// Изменение состава сразу чистит выборы, изменение выборов сразу сбрасывает ваучер.
	sess.roster.OnChange(func() {
		sess.selections.PruneForParticipants(sess.roster.NamedIDs())
	})
	sess.selections.OnChange(sess.calc.OnSelectionsChanged)

	s.sessions.Set(sess.ID, sess, gocache.DefaultExpiration)
	s.logger.Info("session started", zap.String("session", sess.ID), zap.Time("master_data", snap.FetchedAt()))
	return sess.ID, nil
}

// withSession выполняет fn под блокировкой сессии и продлевает её время жизни.
func (s *Service) withSession(id string, fn func(*Session) error) error {
	v, ok := s.sessions.Get(id)
	if !ok {
		return errors.WithHint(
			errors.Mark(errors.Wrapf(model.ErrNotFound, "session %s", id), model.ErrSessionNotFound),
			"Your booking session has expired. Please start again.",
		)
	}
	sess := v.(*Session)
	s.sessions.Set(id, sess, gocache.DefaultExpiration)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess)
}

// editable запрещает менять форму, пока идёт оплата или после успешного бронирования.
func editable(sess *Session) error {
	state := sess.checkout.State()
	if sess.checkout.Locked() {
		return errors.WithHint(
			errors.Wrapf(model.ErrInvalidTransition, "form edit while checkout is %s", state),
			"Finish or cancel the current payment before changing the booking.",
		)
	}
	if state.Succeeded() {
		return errors.WithHint(
			errors.Wrapf(model.ErrInvalidTransition, "form edit after %s", state),
			"This booking is complete. Start a new booking to make changes.",
		)
	}
	return nil
}

// MasterData возвращает справочные данные сессии с ценами в валюте сессии.
func (s *Service) MasterData(_ context.Context, id string) (*MasterDataView, error) {
	var out *MasterDataView
	err := s.withSession(id, func(sess *Session) error {
		out = s.masterDataView(sess)
		return nil
	})
	return out, err
}

func (s *Service) masterDataView(sess *Session) *MasterDataView {
	snap := sess.snapshot
	view := &MasterDataView{
		Banks:         snap.Banks(),
		Schedules:     snap.Schedules(),
		BookingNumber: snap.BookingNumber(),
		FetchedAt:     snap.FetchedAt(),
		Currencies:    s.converter.Supported(),
	}
	for _, p := range snap.Packages() {
		view.Packages = append(view.Packages, packageView(p, s.converter, sess.currency))
	}
	for _, a := range snap.Agents() {
		view.Agents = append(view.Agents, agentView(a))
	}
	return view
}

// RefreshMasterData загружает новый снимок и закрепляет его за сессией.
// Уже сделанные выборы сохраняют пакеты, с которыми были выбраны.
func (s *Service) RefreshMasterData(ctx context.Context, id string) (*MasterDataView, error) {
	var out *MasterDataView
	err := s.withSession(id, func(sess *Session) error {
		snap, err := s.store.Refresh(ctx)
		if err != nil {
			return err
		}
		sess.snapshot = snap
		if sess.agent != nil {
			if a, ok := snap.Agent(sess.agent.Code); ok {
				sess.agent = &a
			}
		}
		out = s.masterDataView(sess)
		return nil
	})
	return out, err
}

// Schedules возвращает расписание занятий.
func (s *Service) Schedules(ctx context.Context) ([]model.Schedule, error) {
	return s.api.GetSchedules(ctx)
}

// Countries возвращает список стран. При недоступности API используется встроенный список.
func (s *Service) Countries(ctx context.Context) []bookingapi.Country {
	return s.api.GetCountries(ctx)
}

// SetParticipantCounts задаёт количество взрослых и детей.
func (s *Service) SetParticipantCounts(_ context.Context, id string, adults, children int) ([]model.Participant, error) {
	var out []model.Participant
	err := s.withSession(id, func(sess *Session) error {
		if err := editable(sess); err != nil {
			return err
		}
		if err := sess.roster.SetCounts(adults, children); err != nil {
			return errors.WithHint(errors.Mark(err, model.ErrValidation), "Participant counts cannot be negative.")
		}
		out = sess.roster.All()
		return nil
	})
	return out, err
}

// UpdateParticipant меняет данные участника.
func (s *Service) UpdateParticipant(_ context.Context, id string, pid model.ParticipantID, patch participant.Patch) (model.Participant, error) {
	var out model.Participant
	err := s.withSession(id, func(sess *Session) error {
		if err := editable(sess); err != nil {
			return err
		}
		p, err := sess.roster.Update(pid, patch)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// SetActivity задаёт виды активности и дату бронирования, по которым строятся рекомендации.
func (s *Service) SetActivity(_ context.Context, id string, activities []model.ActivityType, date time.Time) error {
	return s.withSession(id, func(sess *Session) error {
		if err := editable(sess); err != nil {
			return err
		}
		sess.activities = append([]model.ActivityType(nil), activities...)
		sess.bookingDate = date
		return nil
	})
}

// Recommendations строит рекомендации для текущего состава.
func (s *Service) Recommendations(_ context.Context, id string) (*RecommendationsView, error) {
	var out *RecommendationsView
	err := s.withSession(id, func(sess *Session) error {
		res := s.recommend(sess)
		out = &RecommendationsView{Individual: make(map[model.ParticipantID][]RecommendationView, len(res.Individual))}
		for pid, recs := range res.Individual {
			views := make([]RecommendationView, 0, len(recs))
			for _, r := range recs {
				views = append(views, recommendationView(r, s.converter, sess.currency))
			}
			out.Individual[pid] = views
		}
		for _, r := range res.Group {
			out.Group = append(out.Group, recommendationView(r, s.converter, sess.currency))
		}
		return nil
	})
	return out, err
}

func (s *Service) recommend(sess *Session) eligibility.Result {
	date := sess.bookingDate
	if date.IsZero() {
		date = s.now()
	}
	return eligibility.Build(eligibility.Request{
		Packages:     sess.snapshot.Packages(),
		Participants: sess.roster.All(),
		Activities:   sess.activities,
		BookingDate:  date,
	})
}

// Select сохраняет выбор пакета для участников.
func (s *Service) Select(_ context.Context, id, packageID string, participants []model.ParticipantID) (SelectionView, error) {
	var out SelectionView
	err := s.withSession(id, func(sess *Session) error {
		if err := editable(sess); err != nil {
			return err
		}
		pkg, ok := sess.snapshot.Package(packageID)
		if !ok {
			return errors.WithHint(
				errors.Wrapf(model.ErrNotFound, "package %s", packageID),
				"This package is no longer available.",
			)
		}
		rec := model.Recommendation{
			Package:      pkg,
			Participants: model.NewParticipantSet(participants...),
		}
		// Неизвестных и безымянных участников отклоняет сам реестр выборов с MissingParticipant.
		if allNamed(sess.roster, rec.Participants) && !s.recommend(sess).Contains(rec) {
			return errors.WithHint(
				errors.Mark(
					errors.Newf("package %s is not eligible for %s", packageID, rec.Participants.Key()),
					model.ErrValidation,
				),
				"This package is not available for the selected participants. Please choose one of the recommended packages.",
			)
		}
		sel, err := sess.selections.Select(rec, sess.roster)
		if err != nil {
			var missing *model.MissingParticipantError
			if errors.As(err, &missing) {
				return errors.WithHint(err, "Enter the participant's name before choosing a package.")
			}
			return err
		}
		out = s.selectionView(sess, sel)
		return nil
	})
	return out, err
}

func allNamed(roster *participant.Roster, set model.ParticipantSet) bool {
	return lo.EveryBy(set.IDs(), func(pid model.ParticipantID) bool {
		p, ok := roster.Lookup(pid)
		return ok && p.Named()
	})
}

// CancelSelection отменяет выбор по ключу. Отсутствующий ключ не считается ошибкой.
func (s *Service) CancelSelection(_ context.Context, id string, key model.SelectionKey) error {
	return s.withSession(id, func(sess *Session) error {
		if err := editable(sess); err != nil {
			return err
		}
		if !sess.selections.Cancel(key) {
			s.logger.Debug("selection already absent", zap.String("session", sess.ID), zap.String("key", string(key)))
		}
		return nil
	})
}

// ApplyVoucher проверяет ваучер для текущей суммы до скидки.
func (s *Service) ApplyVoucher(ctx context.Context, id, code string) (*model.VoucherResult, error) {
	var out *model.VoucherResult
	err := s.withSession(id, func(sess *Session) error {
		if err := editable(sess); err != nil {
			return err
		}
		gross := sess.calc.GrossTotal().Amount
		res, err := sess.calc.ApplyVoucher(ctx, code, gross)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// ClearVoucher снимает ваучер.
func (s *Service) ClearVoucher(_ context.Context, id string) error {
	return s.withSession(id, func(sess *Session) error {
		if err := editable(sess); err != nil {
			return err
		}
		sess.calc.ClearVoucher()
		return nil
	})
}

// PaymentInput выбор валюты, агента и способа оплаты.
type PaymentInput struct {
	Currency  string               `json:"currency"`
	AgentCode string               `json:"agent_code"`
	Method    model.Channel        `json:"method"`
	Split     []model.SplitPayment `json:"split"`
}

// SetPayment сохраняет выбор оплаты. Полная проверка выполняется при оформлении.
func (s *Service) SetPayment(_ context.Context, id string, in PaymentInput) error {
	return s.withSession(id, func(sess *Session) error {
		if err := editable(sess); err != nil {
			return err
		}
		code := sess.currency
		if in.Currency != "" {
			if _, err := s.converter.Rate(in.Currency); err != nil {
				return errors.WithHint(errors.Mark(err, model.ErrValidation), "This currency is not supported.")
			}
			code = strings.ToUpper(in.Currency)
		}

		var agent *model.Agent
		if in.AgentCode != "" {
			a, ok := sess.snapshot.Agent(in.AgentCode)
			if !ok {
				return errors.Wrapf(model.ErrNotFound, "agent %s", in.AgentCode)
			}
			agent = &a
		}

		sess.currency = code
		sess.agent = agent
		sess.method = in.Method
		sess.split = append([]model.SplitPayment(nil), in.Split...)
		return nil
	})
}

// PaymentMethods возвращает каналы, доступные для текущей валюты и агента.
func (s *Service) PaymentMethods(_ context.Context, id string) ([]model.Channel, error) {
	var out []model.Channel
	err := s.withSession(id, func(sess *Session) error {
		methods, err := s.resolver.AvailableMethods(sess.currency, sess.agent)
		out = methods
		return err
	})
	return out, err
}

// SetCustomer сохраняет контактные данные заказчика.
func (s *Service) SetCustomer(_ context.Context, id string, c model.Customer) error {
	return s.withSession(id, func(sess *Session) error {
		if err := editable(sess); err != nil {
			return err
		}
		sess.customer = c
		return nil
	})
}

// Summary возвращает состояние формы целиком.
func (s *Service) Summary(_ context.Context, id string) (*Summary, error) {
	var out *Summary
	err := s.withSession(id, func(sess *Session) error {
		out = s.summary(sess)
		return nil
	})
	return out, err
}

func (s *Service) summary(sess *Session) *Summary {
	total := sess.calc.GrossTotal()
	discount := sess.calc.Discount()
	net := sess.calc.NetPayable()

	sum := &Summary{
		SessionID:       sess.ID,
		Currency:        sess.currency,
		Activities:      sess.activities,
		Participants:    sess.roster.All(),
		Unpriced:        total.Unpriced,
		Ineligible:      s.recommend(sess).Ineligible(sess.selections.Selections()),
		Gross:           total.Amount,
		Discount:        discount,
		Net:             net,
		GrossDisplay:    s.converter.Display(decimal.NewNullDecimal(total.Amount), sess.currency),
		DiscountDisplay: s.converter.Display(decimal.NewNullDecimal(discount), sess.currency),
		NetDisplay:      s.converter.Display(decimal.NewNullDecimal(net), sess.currency),
		Voucher:         sess.calc.Voucher(),
		Method:          sess.method,
		Split:           sess.split,
		Customer:        sess.customer,
		Checkout:        sess.checkout.Status(),
		Uncovered:       []model.ParticipantID{},
	}
	if !sess.bookingDate.IsZero() {
		sum.BookingDate = sess.bookingDate.Format("2006-01-02")
	}
	if sess.agent != nil {
		sum.AgentCode = sess.agent.Code
	}
	for _, sel := range sess.selections.Selections() {
		sum.Selections = append(sum.Selections, s.selectionView(sess, sel))
	}
	for _, p := range sess.selections.Uncovered(sess.roster.Named()) {
		sum.Uncovered = append(sum.Uncovered, p.ID)
	}
	return sum
}

func (s *Service) selectionView(sess *Session, sel model.Selection) SelectionView {
	v := SelectionView{
		Key:          sel.Key,
		Group:        sel.Group(),
		Package:      packageView(sel.Package, s.converter, sess.currency),
		Participants: sel.Participants.IDs(),
	}
	for _, pid := range v.Participants {
		if p, ok := sess.roster.Lookup(pid); ok {
			v.Names = append(v.Names, p.Name)
		}
	}
	return v
}

func (s *Service) draft(sess *Session) checkout.Draft {
	total := sess.calc.GrossTotal()
	return checkout.Draft{
		SessionID:    sess.ID,
		Participants: sess.roster.All(),
		Selections:   sess.selections.Selections(),
		Uncovered:    sess.selections.Uncovered(sess.roster.Named()),
		Unpriced:     total.Unpriced,
		Ineligible:   s.recommend(sess).Ineligible(sess.selections.Selections()),
		Currency:     sess.currency,
		Agent:        sess.agent,
		Method:       sess.method,
		Split:        sess.split,
		Gross:        total.Amount,
		Discount:     sess.calc.Discount(),
		Net:          sess.calc.NetPayable(),
		Voucher:      sess.calc.Voucher(),
		Customer:     sess.customer,
		BookingDate:  sess.bookingDate,
	}
}

// Checkout проверяет форму и отправляет бронирование.
func (s *Service) Checkout(ctx context.Context, id string) (checkout.Status, error) {
	return s.checkoutOp(id, func(sess *Session) (checkout.Status, error) {
		return sess.checkout.Submit(ctx, s.draft(sess))
	})
}

// ConfirmCheckout подтверждает оплату через международный шлюз.
func (s *Service) ConfirmCheckout(ctx context.Context, id string) (checkout.Status, error) {
	return s.checkoutOp(id, func(sess *Session) (checkout.Status, error) {
		return sess.checkout.Confirm(ctx, s.draft(sess))
	})
}

// GatewayCallback передаёт результат оплаты из шлюза.
func (s *Service) GatewayCallback(ctx context.Context, id string, cb checkout.Callback) (checkout.Status, error) {
	return s.checkoutOp(id, func(sess *Session) (checkout.Status, error) {
		return sess.checkout.HandleCallback(ctx, cb)
	})
}

// CancelCheckout закрывает окно оплаты.
func (s *Service) CancelCheckout(ctx context.Context, id string) (checkout.Status, error) {
	return s.checkoutOp(id, func(sess *Session) (checkout.Status, error) {
		return sess.checkout.Cancel(ctx)
	})
}

// RetryCheckout возвращает оформление к форме после неудачи.
func (s *Service) RetryCheckout(ctx context.Context, id string) (checkout.Status, error) {
	return s.checkoutOp(id, func(sess *Session) (checkout.Status, error) {
		return sess.checkout.Retry(ctx)
	})
}

// CheckoutStatus возвращает состояние оформления.
func (s *Service) CheckoutStatus(_ context.Context, id string) (checkout.Status, error) {
	return s.checkoutOp(id, func(sess *Session) (checkout.Status, error) {
		return sess.checkout.Status(), nil
	})
}

func (s *Service) checkoutOp(id string, fn func(*Session) (checkout.Status, error)) (checkout.Status, error) {
	var (
		st    checkout.Status
		opErr error
	)
	err := s.withSession(id, func(sess *Session) error {
		st, opErr = fn(sess)
		return nil
	})
	if err != nil {
		return st, err
	}
	return st, opErr
}

// StartGatewaySweeper запускает фоновый перевод зависших оплат в GatewayTimeout.
func (s *Service) StartGatewaySweeper(ctx context.Context) {
	if s.opts.GatewayTimeout <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.opts.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepGateways(ctx)
			}
		}
	}()
}

func (s *Service) sweepGateways(ctx context.Context) {
	now := s.now()

	for id, item := range s.sessions.Items() {
		sess, ok := item.Object.(*Session)
		if !ok {
			continue
		}
		sess.mu.Lock()
		expired := sess.checkout.Expire(ctx, now)
		sess.mu.Unlock()
		if expired {
			s.logger.Info("gateway payment timed out", zap.String("session", id))
		}
	}

	// Попытки сессий, которые уже истекли, закрываются только в журнале.
	orphans, err := s.repo.ListPending(ctx, now.Add(-s.opts.GatewayTimeout))
	if err != nil {
		s.logger.Warn("failed to list pending attempts", zap.Error(err))
		return
	}
	for _, a := range orphans {
		if err := s.repo.UpdateState(ctx, a.ID, model.StateGatewayTimeout); err != nil {
			s.logger.Warn("failed to time out attempt", zap.String("attempt", a.ID), zap.Error(err))
			continue
		}
		s.logger.Info("orphaned attempt timed out",
			zap.String("attempt", a.ID),
			zap.String("session", a.SessionID),
			zap.String("booking_number", a.BookingNumber),
		)
	}
}

// Attempt возвращает попытку отправки из журнала.
func (s *Service) Attempt(ctx context.Context, attemptID string) (*model.Attempt, error) {
	a, err := s.repo.Get(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}
