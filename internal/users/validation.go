package users

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/taskmanager/internal/shared"
)

// fieldRules lists the validator tags applied to each profile field.
var fieldRules = map[string]string{
	"name":     "required",
	"email":    "required,email",
	"password": "required,min=6,max=72,nopassword",
	"age":      "gte=0",
}

var ruleMessages = map[string]string{
	"required":   "is required",
	"email":      "is invalid",
	"min":        "must be at least 6 characters",
	"max":        "must be at most 72 characters",
	"nopassword": `cannot contain "password"`,
	"gte":        "must be a positive number",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("nopassword", func(fl validator.FieldLevel) bool {
		return !strings.Contains(strings.ToLower(fl.Field().String()), "password")
	})
	return v
}

// checkField validates value against the rules for field and records the
// first failing rule in verr.
func checkField(v *validator.Validate, verr *shared.ValidationError, field string, value any) {
	err := v.Var(value, fieldRules[field])
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		if msg, ok := ruleMessages[fieldErrs[0].Tag()]; ok {
			verr.Add(field, msg)
			return
		}
	}
	verr.Add(field, "is invalid")
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
