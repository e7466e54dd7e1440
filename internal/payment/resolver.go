// Package payment определяет допустимые способы оплаты и проверяет распределение суммы по каналам.
package payment

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/surfbooking/internal/model"
)

// Правила проверки оплаты.
const (
	RuleMethodRequired    = "method_required"
	RuleMethodNotAllowed  = "method_not_allowed"
	RuleAgentCurrency     = "agent_currency"
	RuleSplitEmpty        = "split_empty"
	RuleAmountMismatch    = "amount_mismatch"
	RuleBalanceExceeded   = "balance_exceeded"
	RuleChannelNotAllowed = "channel_not_allowed"
	RuleAmountNotPositive = "amount_not_positive"
)

// Intent выбор оплаты в форме.
type Intent struct {
	Currency   string
	Agent      *model.Agent
	Method     model.Channel
	Split      []model.SplitPayment
	NetPayable decimal.Decimal
}

// Resolver правила оплаты относительно базовой валюты.
type Resolver struct {
	baseCurrency string
}

// NewResolver создаёт резолвер для указанной базовой валюты.
func NewResolver(baseCurrency string) *Resolver {
	return &Resolver{baseCurrency: strings.ToUpper(baseCurrency)}
}

func (r *Resolver) isBase(currency string) bool {
	return strings.EqualFold(currency, r.baseCurrency)
}

// AvailableMethods возвращает допустимые каналы. Оплата через агента возможна
// только в базовой валюте: для другой валюты с агентом возвращается пустой список и ErrAgentCurrency.
func (r *Resolver) AvailableMethods(currency string, agent *model.Agent) ([]model.Channel, error) {
	if !r.isBase(currency) {
		if agent != nil {
			return []model.Channel{}, errors.WithHintf(
				errors.Mark(errors.Newf("agent %s selected with currency %s", agent.Code, currency), model.ErrAgentCurrency),
				"Agent payments are available in %s only.", r.baseCurrency,
			)
		}
		return []model.Channel{model.ChannelInternationalGateway}, nil
	}

	if agent == nil {
		return []model.Channel{model.ChannelLocalGateway}, nil
	}
	return lo.Filter(model.AgentChannels, func(ch model.Channel, _ int) bool {
		return agent.Allows(ch)
	}), nil
}

// ValidateSubmission проверяет оплату и возвращает все нарушенные правила сразу.
// Без агента нужен ровно один допустимый способ оплаты, сумма подразумевается полной.
// С агентом сумма частей должна точно совпадать с суммой к оплате,
// а часть на канале balance не может превышать доступный остаток агента.
func (r *Resolver) ValidateSubmission(in Intent) model.ValidationErrors {
	var errs model.ValidationErrors

	available, err := r.AvailableMethods(in.Currency, in.Agent)
	if err != nil {
		errs = append(errs, model.ValidationError{
			Field:   "agent",
			Rule:    RuleAgentCurrency,
			Message: fmt.Sprintf("agent payments are available in %s only", r.baseCurrency),
		})
	}

	if in.Agent == nil {
		switch {
		case in.Method == "":
			errs = append(errs, model.ValidationError{Field: "method", Rule: RuleMethodRequired, Message: "choose a payment method"})
		case !lo.Contains(available, in.Method):
			errs = append(errs, model.ValidationError{
				Field:   "method",
				Rule:    RuleMethodNotAllowed,
				Message: fmt.Sprintf("payment method %s is not available for %s", in.Method, strings.ToUpper(in.Currency)),
			})
		}
		return errs
	}

	return append(errs, r.validateSplit(in)...)
}

func (r *Resolver) validateSplit(in Intent) model.ValidationErrors {
	var errs model.ValidationErrors

	if len(in.Split) == 0 {
		return append(errs, model.ValidationError{Field: "payments", Rule: RuleSplitEmpty, Message: "enter at least one payment"})
	}

	sum := decimal.Zero
	balance := decimal.Zero
	for i, p := range in.Split {
		field := fmt.Sprintf("payments[%d]", i)
		if !in.Agent.Allows(p.Channel) {
			errs = append(errs, model.ValidationError{
				Field:   field,
				Rule:    RuleChannelNotAllowed,
				Message: fmt.Sprintf("agent %s does not accept %s payments", in.Agent.Code, p.Channel),
			})
		}
		if !p.Amount.IsPositive() {
			errs = append(errs, model.ValidationError{Field: field, Rule: RuleAmountNotPositive, Message: "amount must be positive"})
		}
		sum = sum.Add(p.Amount)
		if p.Channel == model.ChannelBalance {
			balance = balance.Add(p.Amount)
		}
	}

	if !sum.Equal(in.NetPayable) {
		errs = append(errs, model.ValidationError{
			Field:   "payments",
			Rule:    RuleAmountMismatch,
			Message: fmt.Sprintf("payments total %s does not match amount due %s", sum, in.NetPayable),
		})
	}

	if balance.IsPositive() {
		ceiling := decimal.Zero
		if in.Agent.BalanceCeiling.Valid {
			ceiling = in.Agent.BalanceCeiling.Decimal
		}
		if balance.GreaterThan(ceiling) {
			errs = append(errs, model.ValidationError{
				Field:   "payments",
				Rule:    RuleBalanceExceeded,
				Message: fmt.Sprintf("balance payment %s exceeds agent balance limit %s", balance, ceiling),
			})
		}
	}

	return errs
}

// PaidAmounts возвращает суммы по каналам для итогового запроса:
// части оплаты агента или полную сумму на выбранном канале.
func PaidAmounts(in Intent) []model.SplitPayment {
	if in.Agent != nil {
		return append([]model.SplitPayment(nil), in.Split...)
	}
	if in.Method == "" {
		return nil
	}
	return []model.SplitPayment{{Channel: in.Method, Amount: in.NetPayable}}
}

// PrimaryChannel канал, определяющий путь отправки бронирования.
func PrimaryChannel(in Intent) model.Channel {
	if in.Agent != nil {
		if len(in.Split) > 0 {
			return in.Split[0].Channel
		}
		return ""
	}
	return in.Method
}
