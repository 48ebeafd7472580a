// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var (
	entityIDPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	amountPattern   = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("hedera_id", validateHederaID)
	validate.RegisterValidation("amount", validateAmount)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// validateHederaID accepts "shard.realm.num" account, contract and topic
// ids.
func validateHederaID(fl validator.FieldLevel) bool {
	return entityIDPattern.MatchString(fl.Field().String())
}

// validateAmount accepts non-negative decimal strings, the wire format for
// all monetary values.
func validateAmount(fl validator.FieldLevel) bool {
	return amountPattern.MatchString(fl.Field().String())
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param() + " characters"
	case "max":
		return e.Field() + " must be at most " + e.Param() + " characters"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "hedera_id":
		return e.Field() + " must be a shard.realm.num entity id"
	case "amount":
		return e.Field() + " must be a non-negative decimal amount"
	default:
		return e.Field() + " is invalid"
	}
}
