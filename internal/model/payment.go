package model

import (
	"github.com/shopspring/decimal"
)

// Channel способ расчёта за бронирование.
type Channel string

const (
	ChannelBank                 Channel = "bank"
	ChannelCredit               Channel = "credit"
	ChannelOnsite               Channel = "onsite"
	ChannelBalance              Channel = "balance"
	ChannelLocalGateway         Channel = "local_gateway"
	ChannelInternationalGateway Channel = "international_gateway"
)

// AgentChannels перечисляет каналы, доступные только при выбранном агенте.
var AgentChannels = []Channel{ChannelBank, ChannelCredit, ChannelOnsite, ChannelBalance}

// IsGateway сообщает, ведёт ли канал на внешний платёжный шлюз.
func (c Channel) IsGateway() bool {
	return c == ChannelLocalGateway || c == ChannelInternationalGateway
}

// SplitPayment часть оплаты, приходящаяся на один канал.
type SplitPayment struct {
	Channel Channel         `json:"channel"`
	Amount  decimal.Decimal `json:"amount"`
}

// DiscountType тип скидки ваучера.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// VoucherResult результат проверки ваучера внешним API.
// Действителен только для суммы GrossAmount, по которой был рассчитан.
type VoucherResult struct {
	Code           string          `json:"code"`
	PromoNo        string          `json:"promo_no"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
}

// BookingPerson участник в итоговом запросе бронирования.
type BookingPerson struct {
	ID         ParticipantID       `json:"id"`
	Name       string              `json:"name"`
	Category   ParticipantCategory `json:"category"`
	Level      Level               `json:"level"`
	AgeBracket AgeBracket          `json:"age_bracket"`
	Medical    Medical             `json:"medical"`
}

// BookingLine позиция бронирования, полученная из выбранного пакета.
type BookingLine struct {
	PackageID    string          `json:"package_id"`
	PackageName  string          `json:"package_name"`
	Activity     ActivityType    `json:"activity"`
	Participants []string        `json:"participants"`
	Price        decimal.Decimal `json:"price"`
}

// BookingSubmission собранный запрос бронирования. После отправки не изменяется.
type BookingSubmission struct {
	BookingNumber  string          `json:"booking_no"`
	BookingDate    string          `json:"booking_date,omitempty"`
	Currency       string          `json:"currency"`
	People         []BookingPerson `json:"people"`
	Lines          []BookingLine   `json:"lines"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	VoucherCode    string          `json:"voucher_code,omitempty"`
	PromoNo        string          `json:"promo_no,omitempty"`
	AgentCode      string          `json:"agent_code,omitempty"`
	Method         Channel         `json:"payment_method,omitempty"`
	Payments       []SplitPayment  `json:"payments"`
	Customer       Customer        `json:"customer"`
}
