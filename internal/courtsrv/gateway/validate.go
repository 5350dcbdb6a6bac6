package gateway

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/courtcheck/courtcheck/internal/courtsrv/timeslot"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("ddmmyyyy", func(fl validator.FieldLevel) bool {
		_, err := timeslot.ParseDate(fl.Field().String(), nil)
		return err == nil
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != 5 {
			return false
		}
		m, err := timeslot.ParseClock(s)
		return err == nil && m < 24*60
	})
	return v
}

// validateRequest runs the struct rules on req. Missing fields are reported
// together as ErrMissingParams, malformed ones as ErrInvalidParams.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrInvalidParams.Err(err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fieldPath(fe))
	}
	if len(missing) > 0 {
		return ErrMissingParams.Msg("Missing required parameters: " + strings.Join(missing, ", "))
	}
	return ErrInvalidParams.Msg("Invalid parameters: " + strings.Join(invalid, ", "))
}

// fieldPath drops the struct name from a namespace like "searchReq.timeSlots[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}
