package validator

import (
	"regexp"
	"strings"

	"teamchat-backend/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// channel names are slug-like: letters, digits, single - or _ separators
var slugRegex = regexp.MustCompile(`^[A-Za-z0-9]+(?:[-_][A-Za-z0-9]+)*$`)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	err := validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}

	err = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	if err != nil {
		panic(err)
	}
}

type CreateChannelRequest struct {
	Name        string `json:"name" validate:"required,max=32,slug"`
	Description string `json:"description" validate:"max=256"`
}

type SendMessageRequest struct {
	Target string `json:"target" validate:"required"`
	Body   string `json:"body" validate:"required,notblank,max=4000"`
}

var reasons = map[string]string{
	"required": "missing",
	"notblank": "blank",
	"max":      "too_long",
	"slug":     "bad_format",
}

// Struct validates a request struct and converts the first violation
// into a ValidationError the handlers can surface inline.
func Struct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return apperr.Validation("request", "invalid")
	}

	first := verrs[0]
	reason, ok := reasons[first.Tag()]
	if !ok {
		reason = "invalid"
	}

	return apperr.Validation(strings.ToLower(first.Field()), reason)
}
