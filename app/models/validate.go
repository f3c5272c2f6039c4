package models

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance used for records and request bodies.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateRecord checks a decoded record against its validate tags.
func ValidateRecord(v interface{}) error {
	return Validator().Struct(v)
}

// ValidateRecordFields checks only the named fields of a decoded record.
func ValidateRecordFields(v interface{}, fields ...string) error {
	return Validator().StructPartial(v, fields...)
}
