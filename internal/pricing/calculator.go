// Package pricing считает сумму выбранных пакетов и применяет ваучер.
package pricing

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/surfbooking/internal/model"
)

// SelectionSource отдаёт текущие выборы.
type SelectionSource interface {
	Selections() []model.Selection
}

// VoucherValidator проверяет ваучер во внешнем API.
type VoucherValidator interface {
	ApplyVoucher(ctx context.Context, code string, gross decimal.Decimal) (*model.VoucherResult, error)
}

// Total сумма выборов до скидки.
type Total struct {
	Amount decimal.Decimal
	// Unpriced ключи выборов, у пакетов которых нет цены. В сумму они входят как ноль.
	Unpriced []model.SelectionKey
}

// Calculator хранит результат применения ваучера и сбрасывает его при изменении выборов.
// Не потокобезопасен.
type Calculator struct {
	source    SelectionSource
	validator VoucherValidator
	voucher   *model.VoucherResult
}

// NewCalculator создаёт калькулятор поверх источника выборов.
func NewCalculator(source SelectionSource, validator VoucherValidator) *Calculator {
	return &Calculator{source: source, validator: validator}
}

// GrossTotal суммирует цены пакетов всех выборов.
func (c *Calculator) GrossTotal() Total {
	total := Total{Amount: decimal.Zero}
	for _, sel := range c.source.Selections() {
		if !sel.Package.Price.Valid {
			total.Unpriced = append(total.Unpriced, sel.Key)
			continue
		}
		total.Amount = total.Amount.Add(sel.Package.Price.Decimal)
	}
	return total
}

// ApplyVoucher проверяет ваучер для суммы gross. При отказе прежний ваучер сбрасывается,
// а сообщение API передаётся как подсказка для пользователя.
// Ответ, полученный для суммы, отличной от текущей, отбрасывается.
func (c *Calculator) ApplyVoucher(ctx context.Context, code string, gross decimal.Decimal) (*model.VoucherResult, error) {
	c.voucher = nil

	res, err := c.validator.ApplyVoucher(ctx, code, gross)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.Mark(errors.New("empty voucher response"), model.ErrVoucherRejected)
	}

	current := c.GrossTotal().Amount
	if !gross.Equal(current) {
		return nil, errors.WithHint(
			errors.Mark(errors.Newf("voucher %s computed for %s, current gross is %s", code, gross, current), model.ErrStaleVoucher),
			"The order changed while the voucher was checked. Please apply it again.",
		)
	}

	res.GrossAmount = gross
	c.voucher = res
	return res, nil
}

// OnSelectionsChanged сбрасывает ваучер. Вызывается синхронно при любом изменении выборов.
func (c *Calculator) OnSelectionsChanged() {
	c.voucher = nil
}

// ClearVoucher снимает применённый ваучер.
func (c *Calculator) ClearVoucher() {
	c.voucher = nil
}

// Voucher возвращает применённый ваучер или nil.
func (c *Calculator) Voucher() *model.VoucherResult {
	if c.voucher == nil {
		return nil
	}
	v := *c.voucher
	return &v
}

// Discount возвращает сумму скидки действующего ваучера.
func (c *Calculator) Discount() decimal.Decimal {
	if c.voucher == nil {
		return decimal.Zero
	}
	return c.voucher.DiscountAmount
}

// NetPayable сумма к оплате: сумма после ваучера или полная сумма без него.
func (c *Calculator) NetPayable() decimal.Decimal {
	if c.voucher != nil {
		return c.voucher.NetAmount
	}
	return c.GrossTotal().Amount
}
