package bookingapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Country элемент списка стран для формы.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// DefaultCountries используется, когда список стран получить не удалось.
var DefaultCountries = []Country{
	{Code: "AU", Name: "Australia"},
	{Code: "DE", Name: "Germany"},
	{Code: "FR", Name: "France"},
	{Code: "GB", Name: "United Kingdom"},
	{Code: "ID", Name: "Indonesia"},
	{Code: "JP", Name: "Japan"},
	{Code: "NL", Name: "Netherlands"},
	{Code: "SG", Name: "Singapore"},
	{Code: "US", Name: "United States"},
}

// GetCountries возвращает список стран. Любая ошибка не блокирует форму:
// она записывается в лог, а вызывающий получает встроенный список.
func (c *Client) GetCountries(ctx context.Context) []Country {
	var out []countryDTO
	if err := c.do(ctx, "get countries", http.MethodGet, "/countries", nil, &out); err != nil || len(out) == 0 {
		c.logger.Warn("countries unavailable, using default list", zap.Error(err))
		return append([]Country(nil), DefaultCountries...)
	}
	res := make([]Country, 0, len(out))
	for _, ct := range out {
		res = append(res, Country(ct))
	}
	return res
}
