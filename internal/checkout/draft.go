package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/surfbooking/internal/model"
	"github.com/mmeshcher/surfbooking/internal/payment"
)

// Draft снимок формы на момент проверки или отправки.
type Draft struct {
	SessionID    string
	Participants []model.Participant
	Selections   []model.Selection
	// Uncovered именованные участники без выбранного пакета.
	Uncovered   []model.Participant
	Unpriced    []model.SelectionKey
	// Ineligible выборы, которые перестали подходить участникам после правок формы.
	Ineligible  []model.SelectionKey
	Currency    string
	Agent       *model.Agent
	Method      model.Channel
	Split       []model.SplitPayment
	Gross       decimal.Decimal
	Discount    decimal.Decimal
	Net         decimal.Decimal
	Voucher     *model.VoucherResult
	Customer    model.Customer
	BookingDate time.Time
}

// Intent выбор оплаты из формы.
func (d Draft) Intent() payment.Intent {
	return payment.Intent{
		Currency:   d.Currency,
		Agent:      d.Agent,
		Method:     d.Method,
		Split:      d.Split,
		NetPayable: d.Net,
	}
}

// Submission собирает запрос бронирования под указанным номером.
func (d Draft) Submission(bookingNumber string) *model.BookingSubmission {
	names := make(map[model.ParticipantID]string, len(d.Participants))
	sub := &model.BookingSubmission{
		BookingNumber:  bookingNumber,
		Currency:       d.Currency,
		GrossAmount:    d.Gross,
		DiscountAmount: d.Discount,
		NetAmount:      d.Net,
		Method:         payment.PrimaryChannel(d.Intent()),
		Payments:       payment.PaidAmounts(d.Intent()),
		Customer:       d.Customer,
	}
	if !d.BookingDate.IsZero() {
		sub.BookingDate = d.BookingDate.Format("2006-01-02")
	}
	if d.Agent != nil {
		sub.AgentCode = d.Agent.Code
	}
	if d.Voucher != nil {
		sub.VoucherCode = d.Voucher.Code
		sub.PromoNo = d.Voucher.PromoNo
	}

	for _, p := range d.Participants {
		if !p.Named() {
			continue
		}
		names[p.ID] = p.Name
		sub.People = append(sub.People, model.BookingPerson{
			ID:         p.ID,
			Name:       p.Name,
			Category:   p.Category,
			Level:      p.Level,
			AgeBracket: p.AgeBracket,
			Medical:    p.Medical,
		})
	}

	for _, sel := range d.Selections {
		line := model.BookingLine{
			PackageID:   sel.Package.ID,
			PackageName: sel.Package.Name,
			Activity:    sel.Package.Activity,
			Price:       sel.Package.PriceOrZero(),
		}
		for _, id := range sel.Participants.IDs() {
			line.Participants = append(line.Participants, names[id])
		}
		sub.Lines = append(sub.Lines, line)
	}
	return sub
}
