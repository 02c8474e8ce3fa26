// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/quizsync/internal/models"
)

// CodeValidation is the APIError code for every validation failure.
const CodeValidation = "VALIDATION_ERROR"

// gameIDPattern accepts ids that are safe as a URL path segment, a NATS
// subject token and a realtime topic suffix.
var gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError is a single field failure.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   any
	message string
}

// Field returns the struct field name that failed validation.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "100" for "max=100".
func (e *ValidationError) Param() string { return e.param }

// Value returns the value that failed validation.
func (e *ValidationError) Value() any { return e.value }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every field failure of one request.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the field failures.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for _, err := range ve.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ToAPIError converts the failures into the relay's error body.
func (ve *RequestValidationError) ToAPIError() *models.APIError {
	switch len(ve.errors) {
	case 0:
		return &models.APIError{Code: CodeValidation, Message: "Validation failed"}
	case 1:
		err := ve.errors[0]
		return &models.APIError{
			Code:    CodeValidation,
			Message: err.message,
			Details: map[string]any{"field": err.field, "tag": err.tag},
		}
	}

	fields := make([]map[string]any, len(ve.errors))
	messages := make([]string, len(ve.errors))
	for i, err := range ve.errors {
		fields[i] = map[string]any{"field": err.field, "tag": err.tag, "message": err.message}
		messages[i] = err.message
	}
	return &models.APIError{
		Code:    CodeValidation,
		Message: strings.Join(messages, "; "),
		Details: map[string]any{"fields": fields},
	}
}

// GetValidator returns the shared validator with the custom tags registered:
//   - gameid: 1-64 of [A-Za-z0-9_-]
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("gameid", func(fl validator.FieldLevel) bool {
			return IsGameID(fl.Field().String())
		})
	})
	return validate
}

// IsGameID reports whether id is an acceptable game id.
func IsGameID(id string) bool {
	return gameIDPattern.MatchString(id)
}

// ValidateStruct validates s with the shared validator. It returns nil when
// s is valid.
func ValidateStruct(s any) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{errors: []ValidationError{{field: "unknown", tag: "unknown", message: err.Error()}}}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translateError(fe),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

// ValidateGameID checks a game id taken from a path or query parameter.
func ValidateGameID(field, id string) *RequestValidationError {
	if IsGameID(id) {
		return nil
	}
	tag := "gameid"
	if id == "" {
		tag = "required"
	}
	return &RequestValidationError{errors: []ValidationError{{
		field:   field,
		tag:     tag,
		value:   id,
		message: messageFor(field, tag, ""),
	}}}
}

var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"gameid":   "%s must be 1-64 letters, digits, '-' or '_'",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
}

func translateError(fe validator.FieldError) string {
	return messageFor(fe.Field(), fe.Tag(), fe.Param())
}

func messageFor(field, tag, param string) string {
	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}
	return fmt.Sprintf("%s failed %s validation", field, tag)
}
