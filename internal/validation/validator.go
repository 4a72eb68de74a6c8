package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// StructValidator is shared; validator caches struct metadata.
var StructValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report form/json names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

// ErrorResponse describes one failed field.
type ErrorResponse struct {
	FailedField string `json:"failed_field"`
	Tag         string `json:"tag"`
	Value       string `json:"value"`
	Message     string `json:"message"`
}

// ValidateStruct returns nil when payload is valid.
func ValidateStruct(payload interface{}) []*ErrorResponse {
	err := StructValidator.Struct(payload)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []*ErrorResponse{{Tag: "invalid", Message: err.Error()}}
	}

	responses := make([]*ErrorResponse, 0, len(validationErrors))
	for _, fe := range validationErrors {
		responses = append(responses, &ErrorResponse{
			FailedField: fe.Field(),
			Tag:         fe.Tag(),
			Value:       fmt.Sprintf("%v", fe.Value()),
			Message:     message(fe),
		})
	}
	return responses
}

// Messages flattens responses for the "messages" field of a 400 body.
func Messages(responses []*ErrorResponse) []string {
	messages := make([]string, len(responses))
	for i, r := range responses {
		messages[i] = r.Message
	}
	return messages
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "required_without":
		return fmt.Sprintf("The %s field is required when %s is not provided.", field, param)
	case "numeric", "number":
		return fmt.Sprintf("The %s field must be a number.", field)
	case "datetime":
		return fmt.Sprintf("The %s field must be an RFC 3339 timestamp.", field)
	case "oneof":
		return fmt.Sprintf("The %s field must be one of: %s.", field, param)
	case "gte":
		return fmt.Sprintf("The %s field must be at least %s.", field, param)
	case "max":
		switch fe.Kind() {
		case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
			return fmt.Sprintf("The %s field must have at most %s characters.", field, param)
		default:
			return fmt.Sprintf("The %s field must be at most %s.", field, param)
		}
	default:
		return fmt.Sprintf("The %s field is not valid (tag: %s).", field, fe.Tag())
	}
}
