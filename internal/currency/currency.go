// Package currency пересчитывает суммы из базовой валюты в валюту отображения.
package currency

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Placeholder выводится вместо суммы, которую невозможно посчитать.
const Placeholder = "-"

// ErrUnknownCurrency возвращается для валюты, которой нет в таблице курсов.
var ErrUnknownCurrency = errors.New("unknown currency")

var printer = message.NewPrinter(language.English)

// DisplayPrice умножает сумму на курс, округляет до целых единиц и форматирует
// с разделителями тысяч и кодом валюты впереди.
func DisplayPrice(amount decimal.NullDecimal, code string, rate decimal.Decimal) string {
	if !amount.Valid {
		return Placeholder
	}
	converted := amount.Decimal.Mul(rate).Round(0)
	return strings.ToUpper(code) + " " + printer.Sprintf("%d", converted.IntPart())
}

// DisplayRaw форматирует сумму, пришедшую строкой. Нечисловая строка выводится как прочерк.
func DisplayRaw(raw string, code string, rate decimal.Decimal) string {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Placeholder
	}
	return DisplayPrice(decimal.NewNullDecimal(d), code, rate)
}

// Converter хранит фиксированную таблицу курсов относительно базовой валюты.
type Converter struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewConverter создаёт конвертер. Курс базовой валюты всегда равен единице.
func NewConverter(base string, rates map[string]decimal.Decimal) *Converter {
	c := &Converter{
		base:  strings.ToUpper(base),
		rates: make(map[string]decimal.Decimal, len(rates)+1),
	}
	for code, r := range rates {
		c.rates[strings.ToUpper(code)] = r
	}
	c.rates[c.base] = decimal.NewFromInt(1)
	return c
}

// Base возвращает код базовой валюты.
func (c *Converter) Base() string { return c.base }

// IsBase сообщает, совпадает ли валюта с базовой.
func (c *Converter) IsBase(code string) bool {
	return strings.EqualFold(code, c.base)
}

// Rate возвращает курс валюты.
func (c *Converter) Rate(code string) (decimal.Decimal, error) {
	r, ok := c.rates[strings.ToUpper(code)]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrUnknownCurrency, "currency %s", code)
	}
	return r, nil
}

// Supported возвращает отсортированный список поддерживаемых валют.
func (c *Converter) Supported() []string {
	out := make([]string, 0, len(c.rates))
	for code := range c.rates {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Convert пересчитывает сумму в указанную валюту без округления.
func (c *Converter) Convert(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	r, err := c.Rate(code)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(r), nil
}

// Display форматирует сумму в указанной валюте. Неизвестная валюта выводится как прочерк.
func (c *Converter) Display(amount decimal.NullDecimal, code string) string {
	r, err := c.Rate(code)
	if err != nil {
		return Placeholder
	}
	return DisplayPrice(amount, code, r)
}
