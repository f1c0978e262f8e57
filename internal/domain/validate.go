package domain

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "aura.dev/aura/internal/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func eventValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks an event for missing fields, negative quantities and
// unknown enum values. The returned error is a MALFORMED_EVENT AppError
// listing every rejected field.
func (e Event) Validate() error {
	var fields []apperrors.FieldError

	if err := eventValidator().Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperrors.ErrMalformedEventf(e.EventID, []apperrors.FieldError{{
				Field:   "event",
				Code:    "invalid",
				Message: err.Error(),
			}})
		}
		for _, fe := range verrs {
			fields = append(fields, apperrors.FieldError{
				Field:   fe.Field(),
				Code:    fe.Tag(),
				Message: fe.Error(),
			})
		}
	}
	if e.EventTimestamp.IsZero() {
		fields = append(fields, apperrors.FieldError{Field: "EventTimestamp", Code: "required"})
	}

	if len(fields) > 0 {
		return apperrors.ErrMalformedEventf(e.EventID, fields)
	}
	return nil
}
