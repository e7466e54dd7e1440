package bookingapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/surfbooking/internal/catalog"
	"github.com/mmeshcher/surfbooking/internal/model"
)

type packageDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ActivityType string          `json:"activity_type"`
	Level        string          `json:"level"`
	AgeBracket   string          `json:"age_bracket"`
	AgeAgnostic  bool            `json:"age_agnostic"`
	MinGroupSize int             `json:"min_group_size"`
	Price        json.RawMessage `json:"price"`
	IsActive     bool            `json:"is_active"`
	ActiveFrom   string          `json:"active_from"`
	ActiveTo     string          `json:"active_to"`
}

type agentDTO struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Bank          bool            `json:"bank"`
	Credit        bool            `json:"credit"`
	Onsite        bool            `json:"onsite"`
	Balance       bool            `json:"balance"`
	BalanceAmount json.RawMessage `json:"balance_amount"`
}

type masterDataDTO struct {
	Packages      []packageDTO     `json:"packages"`
	Agents        []agentDTO       `json:"agents"`
	Banks         []model.Bank     `json:"banks"`
	Schedules     []model.Schedule `json:"schedules"`
	BookingNumber string           `json:"booking_number"`
}

// parseAmount разбирает число или строку с числом. Пустое или нечисловое значение невалидно.
func parseAmount(raw json.RawMessage) decimal.NullDecimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.NullDecimal{}
	}
	s := string(raw)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.NullDecimal{}
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (d packageDTO) toModel() model.Package {
	return model.Package{
		ID:           d.ID,
		Name:         d.Name,
		Activity:     model.ActivityType(strings.ToLower(d.ActivityType)),
		Level:        model.Level(strings.ToLower(d.Level)),
		AgeBracket:   model.AgeBracket(strings.ToLower(d.AgeBracket)),
		AgeAgnostic:  d.AgeAgnostic,
		MinGroupSize: d.MinGroupSize,
		Price:        parseAmount(d.Price),
		Active:       d.IsActive,
		ActiveFrom:   parseDate(d.ActiveFrom),
		ActiveTo:     parseDate(d.ActiveTo),
	}
}

func (d agentDTO) toModel() model.Agent {
	a := model.Agent{Code: d.Code, Name: d.Name, BalanceCeiling: parseAmount(d.BalanceAmount)}
	flags := []struct {
		on bool
		ch model.Channel
	}{
		{d.Bank, model.ChannelBank},
		{d.Credit, model.ChannelCredit},
		{d.Onsite, model.ChannelOnsite},
		{d.Balance, model.ChannelBalance},
	}
	for _, f := range flags {
		if f.on {
			a.Channels = append(a.Channels, f.ch)
		}
	}
	return a
}

func (d masterDataDTO) toModel() *catalog.MasterData {
	out := &catalog.MasterData{
		Banks:         d.Banks,
		Schedules:     d.Schedules,
		BookingNumber: d.BookingNumber,
	}
	for _, p := range d.Packages {
		out.Packages = append(out.Packages, p.toModel())
	}
	for _, a := range d.Agents {
		out.Agents = append(out.Agents, a.toModel())
	}
	return out
}

type applyVoucherRequest struct {
	VoucherCode string          `json:"voucher_code"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

type applyVoucherResponse struct {
	Success        bool            `json:"success"`
	DiscountType   string          `json:"discount_type"`
	DiscountValue  json.RawMessage `json:"discount_value"`
	DiscountAmount json.RawMessage `json:"discount_amount"`
	NetAmount      json.RawMessage `json:"net_amount"`
	PromoNo        string          `json:"promo_no"`
	Message        string          `json:"message"`
}

type generateNumberResponse struct {
	BookingNumber string `json:"booking_number"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

// GatewayPayment ответ шлюза на создание платежа.
type GatewayPayment struct {
	PaymentID   string `json:"payment_id"`
	ApprovalURL string `json:"approval_url"`
}

type executePaymentRequest struct {
	PaymentID     string `json:"paymentId"`
	PayerID       string `json:"payerId"`
	BookingNumber string `json:"booking_no"`
}

// ExecuteResult результат завершения платежа после возврата со страницы шлюза.
type ExecuteResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type countryDTO struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
