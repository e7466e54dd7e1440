// Package model содержит доменные сущности формы бронирования серф-школы.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityType описывает вид активности пакета.
type ActivityType string

const (
	ActivityLesson ActivityType = "lesson"
	ActivityTour   ActivityType = "tour"
)

// Level описывает уровень подготовки участника или пакета.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Valid сообщает, является ли уровень одним из известных значений.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// AgeBracket описывает возрастную категорию.
type AgeBracket string

const (
	AgeAdult AgeBracket = "adult"
	AgeTeen  AgeBracket = "teen"
	AgeChild AgeBracket = "child"
	AgeKid   AgeBracket = "kid"

	// AgeMixed используется в критериях группы с разными возрастными категориями.
	AgeMixed AgeBracket = "mixed"
)

// IsChildVariant сообщает, относится ли категория к детским.
func (a AgeBracket) IsChildVariant() bool {
	switch a {
	case AgeTeen, AgeChild, AgeKid:
		return true
	}
	return false
}

// Package описывает бронируемый продукт из каталога.
type Package struct {
	ID           string
	Name         string
	Activity     ActivityType
	Level        Level
	AgeBracket   AgeBracket
	AgeAgnostic  bool
	MinGroupSize int
	// Price невалиден, если каталог вернул пустую или нечисловую цену.
	Price      decimal.NullDecimal
	Active     bool
	ActiveFrom time.Time
	ActiveTo   time.Time
}

// ActiveOn сообщает, попадает ли дата в окно действия пакета включительно.
// Нулевая граница окна считается открытой.
func (p Package) ActiveOn(date time.Time) bool {
	day := truncateDay(date)
	if !p.ActiveFrom.IsZero() && day.Before(truncateDay(p.ActiveFrom)) {
		return false
	}
	if !p.ActiveTo.IsZero() && day.After(truncateDay(p.ActiveTo)) {
		return false
	}
	return true
}

// PriceOrZero возвращает цену пакета или ноль для пакета без цены.
func (p Package) PriceOrZero() decimal.Decimal {
	if !p.Price.Valid {
		return decimal.Zero
	}
	return p.Price.Decimal
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Agent описывает агента, оплачивающего бронирование.
type Agent struct {
	Code     string
	Name     string
	Channels []Channel
	// BalanceCeiling задаёт доступный остаток для канала balance.
	BalanceCeiling decimal.NullDecimal
}

// Allows сообщает, разрешён ли агенту указанный канал оплаты.
func (a Agent) Allows(ch Channel) bool {
	for _, c := range a.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Bank описывает банковские реквизиты для оплаты переводом.
type Bank struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

// Schedule описывает расписание на дату.
type Schedule struct {
	Date       string `json:"date"`
	FirstSlot  string `json:"time_slot_1"`
	SecondSlot string `json:"time_slot_2"`
}

// Customer содержит контактные данные заказчика и сведения об отеле.
type Customer struct {
	Name       string `json:"name" validate:"notblank"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,min=6"`
	Country    string `json:"country" validate:"required"`
	Hotel      string `json:"hotel"`
	RoomNumber string `json:"room_number"`
	Notes      string `json:"notes"`
}
