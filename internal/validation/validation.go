// Package validation содержит проверки данных формы бронирования.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/mmeshcher/surfbooking/internal/model"
)

// Правила, которые попадают в model.ValidationError.Rule.
const (
	RuleRequired      = "required"
	RuleInvalidEmail  = "email"
	RuleInvalid       = "invalid"
	RuleTooShort      = "too_short"
	RuleAgeBracket    = "age_bracket_mismatch"
	RuleDuplicateName = "duplicate_name"
)

// Validator проверяет участников и контактные данные по тегам validate.
type Validator struct {
	v *validator.Validate
}

// New создаёт валидатор с зарегистрированными пользовательскими правилами.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Регистрация падает только на пустом имени тега.
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("age_bracket", ageBracketMatchesCategory)
	return &Validator{v: v}
}

// ageBracketMatchesCategory: у взрослого категория adult, у ребёнка одна из детских.
func ageBracketMatchesCategory(fl validator.FieldLevel) bool {
	bracket := model.AgeBracket(fl.Field().String())
	parent := fl.Parent()
	if parent.Kind() == reflect.Ptr {
		parent = parent.Elem()
	}
	category := parent.FieldByName("Category")
	if !category.IsValid() {
		return false
	}
	switch model.ParticipantCategory(category.String()) {
	case model.CategoryAdult:
		return bracket == model.AgeAdult
	case model.CategoryChild:
		return bracket.IsChildVariant()
	}
	return false
}

// Participants проверяет всех участников и возвращает все нарушения сразу.
func (v *Validator) Participants(people []model.Participant) model.ValidationErrors {
	var out model.ValidationErrors
	seen := make(map[string]model.ParticipantID, len(people))

	for i, p := range people {
		prefix := "participants." + string(p.ID)
		label := participantLabel(i, p)

		out = append(out, v.translate(v.v.Struct(p), prefix, label)...)

		if !p.Named() {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if _, dup := seen[key]; dup {
			out = append(out, model.ValidationError{
				Field:   prefix + ".name",
				Rule:    RuleDuplicateName,
				Message: fmt.Sprintf("%s: another participant already uses this name", label),
			})
			continue
		}
		seen[key] = p.ID
	}
	return out
}

// Customer проверяет контактные данные заказчика.
func (v *Validator) Customer(c model.Customer) model.ValidationErrors {
	return v.translate(v.v.Struct(c), "customer", "Contact details")
}

func (v *Validator) translate(err error, prefix, label string) model.ValidationErrors {
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return model.ValidationErrors{{Field: prefix, Rule: RuleInvalid, Message: err.Error()}}
	}

	out := make(model.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule, msg := describe(fe)
		out = append(out, model.ValidationError{
			Field:   prefix + "." + fe.Field(),
			Rule:    rule,
			Message: fmt.Sprintf("%s: %s", label, msg),
		})
	}
	return out
}

func describe(fe validator.FieldError) (string, string) {
	switch fe.Tag() {
	case "required", "notblank":
		return RuleRequired, fe.Field() + " is required"
	case "email":
		return RuleInvalidEmail, "email address is not valid"
	case "min":
		return RuleTooShort, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "age_bracket":
		return RuleAgeBracket, "age bracket does not match the participant category"
	}
	return RuleInvalid, fmt.Sprintf("%s has an invalid value", fe.Field())
}

func participantLabel(i int, p model.Participant) string {
	if p.Named() {
		return strings.TrimSpace(p.Name)
	}
	return fmt.Sprintf("Participant %d", i+1)
}
