package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"blackhub/internal/subscription"
	"blackhub/internal/types"
)

// Validator wraps go-playground/validator with BlackHub's domain tags:
//
//	plan           starter | pro
//	currency       NGN | USD
//	interval       monthly | yearly
//	role           buyer | seller
//	country        NG | INT
//	push_platform  web | expo_ios | expo_android
//
// Field names in errors are the JSON names.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "plan", func(fl validator.FieldLevel) bool {
		_, ok := subscription.LookupPlan(types.PlanTier(fl.Field().String()))
		return ok
	})
	mustRegister(v, "currency", oneOf(string(types.CurrencyNGN), string(types.CurrencyUSD)))
	mustRegister(v, "interval", oneOf(string(types.IntervalMonthly), string(types.IntervalYearly)))
	mustRegister(v, "role", oneOf(string(types.RoleBuyer), string(types.RoleSeller)))
	mustRegister(v, "country", oneOf(string(types.CountryNG), string(types.CountryINT)))
	mustRegister(v, "push_platform", oneOf(
		string(types.PushPlatformWeb),
		string(types.PushPlatformExpoIOS),
		string(types.PushPlatformExpoAndroid),
	))

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("core: register validation " + tag + ": " + err.Error())
	}
}

func oneOf(allowed ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, a := range allowed {
			if s == a {
				return true
			}
		}
		return false
	}
}

// ValidateStruct returns nil or an AppError with ErrCodeValidationInvalidInput
// whose details map each failing JSON field to the rule it broke. A missing
// required field is reported as ErrCodeValidationMissingField.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	code := types.ErrCodeValidationInvalidInput
	fields := make(map[string]any, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
		names = append(names, fe.Field())
		if fe.Tag() == "required" {
			code = types.ErrCodeValidationMissingField
		}
	}
	return types.NewAppErrorWithDetails(code, "invalid fields: "+strings.Join(names, ", "), err,
		map[string]any{"fields": fields})
}
