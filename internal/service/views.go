package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/surfbooking/internal/checkout"
	"github.com/mmeshcher/surfbooking/internal/currency"
	"github.com/mmeshcher/surfbooking/internal/model"
)

// PackageView пакет с ценой в валюте сессии.
type PackageView struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Activity     model.ActivityType `json:"activity"`
	Level        model.Level        `json:"level"`
	AgeBracket   model.AgeBracket   `json:"age_bracket,omitempty"`
	AgeAgnostic  bool               `json:"age_agnostic"`
	MinGroupSize int                `json:"min_group_size"`
	Price        *decimal.Decimal   `json:"price"`
	DisplayPrice string             `json:"display_price"`
}

// AgentView агент с разрешёнными каналами.
type AgentView struct {
	Code           string           `json:"code"`
	Name           string           `json:"name"`
	Channels       []model.Channel  `json:"channels"`
	BalanceCeiling *decimal.Decimal `json:"balance_ceiling,omitempty"`
}

// MasterDataView справочные данные, закреплённые за сессией.
type MasterDataView struct {
	Packages      []PackageView    `json:"packages"`
	Agents        []AgentView      `json:"agents"`
	Banks         []model.Bank     `json:"banks"`
	Schedules     []model.Schedule `json:"schedules"`
	BookingNumber string           `json:"booking_number"`
	FetchedAt     time.Time        `json:"fetched_at"`
	Currencies    []string         `json:"currencies"`
}

// RecommendationView рекомендация, которую клиент передаёт обратно при выборе.
type RecommendationView struct {
	Key          model.SelectionKey    `json:"key"`
	Group        bool                  `json:"group"`
	Package      PackageView           `json:"package"`
	Participants []model.ParticipantID `json:"participants"`
}

// RecommendationsView рекомендации по участникам и группам.
type RecommendationsView struct {
	Individual map[model.ParticipantID][]RecommendationView `json:"individual"`
	Group      []RecommendationView                         `json:"group"`
}

// SelectionView выбранный пакет с именами участников.
type SelectionView struct {
	Key          model.SelectionKey    `json:"key"`
	Group        bool                  `json:"group"`
	Package      PackageView           `json:"package"`
	Participants []model.ParticipantID `json:"participants"`
	Names        []string              `json:"names"`
}

// Summary состояние формы целиком.
type Summary struct {
	SessionID    string                `json:"session_id"`
	Currency     string                `json:"currency"`
	BookingDate  string                `json:"booking_date,omitempty"`
	Activities   []model.ActivityType  `json:"activities"`
	Participants []model.Participant   `json:"participants"`
	Selections   []SelectionView       `json:"selections"`
	Uncovered    []model.ParticipantID `json:"uncovered"`
	Unpriced     []model.SelectionKey  `json:"unpriced,omitempty"`
	Ineligible   []model.SelectionKey  `json:"ineligible,omitempty"`

	Gross           decimal.Decimal      `json:"gross"`
	Discount        decimal.Decimal      `json:"discount"`
	Net             decimal.Decimal      `json:"net"`
	GrossDisplay    string               `json:"gross_display"`
	DiscountDisplay string               `json:"discount_display"`
	NetDisplay      string               `json:"net_display"`
	Voucher         *model.VoucherResult `json:"voucher,omitempty"`

	AgentCode string               `json:"agent_code,omitempty"`
	Method    model.Channel        `json:"method,omitempty"`
	Split     []model.SplitPayment `json:"split,omitempty"`
	Customer  model.Customer       `json:"customer"`
	Checkout  checkout.Status      `json:"checkout"`
}

func packageView(p model.Package, conv *currency.Converter, code string) PackageView {
	v := PackageView{
		ID:           p.ID,
		Name:         p.Name,
		Activity:     p.Activity,
		Level:        p.Level,
		AgeBracket:   p.AgeBracket,
		AgeAgnostic:  p.AgeAgnostic,
		MinGroupSize: p.MinGroupSize,
		DisplayPrice: conv.Display(p.Price, code),
	}
	if p.Price.Valid {
		price := p.Price.Decimal
		v.Price = &price
	}
	return v
}

func agentView(a model.Agent) AgentView {
	v := AgentView{Code: a.Code, Name: a.Name, Channels: a.Channels}
	if a.BalanceCeiling.Valid {
		ceiling := a.BalanceCeiling.Decimal
		v.BalanceCeiling = &ceiling
	}
	return v
}

func recommendationView(r model.Recommendation, conv *currency.Converter, code string) RecommendationView {
	return RecommendationView{
		Key:          r.Participants.Key(),
		Group:        r.Group(),
		Package:      packageView(r.Package, conv, code),
		Participants: r.Participants.IDs(),
	}
}
