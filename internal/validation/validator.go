// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// singleton validator instance; caches struct metadata across calls
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the singleton go-playground validator used for
// tagged DTO structs. Field names resolve through json tags so error
// paths match the wire format.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateStruct validates a request DTO against its validate tags.
// Returns nil when the struct passes; otherwise one ValidationError
// per failed field, with paths prefixed "body." to match the gate's
// addressing.
func ValidateStruct(s any) []ValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{
			Path:     "body",
			Message:  "request body could not be validated",
			Severity: SeverityError,
		}}
	}

	out := make([]ValidationError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = ValidationError{
			Path:     childPath("body", fe.Field()),
			Message:  translateError(fe),
			Severity: SeverityError,
		}
	}
	return out
}

// translateError renders a validator.FieldError in the API's wording.
// Tags the request DTOs use are spelled out; anything new falls
// through to a generic message until it earns wording of its own.
func translateError(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch tag := fe.Tag(); tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "url":
		return field + " must be a valid URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, lengthUnit(fe))
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, lengthUnit(fe))
	default:
		return fmt.Sprintf("%s does not satisfy the %s rule", field, tag)
	}
}

// lengthUnit distinguishes string length bounds from numeric ones in
// min/max messages.
func lengthUnit(fe validator.FieldError) string {
	if fe.Kind() == reflect.String {
		return " characters"
	}
	return ""
}
