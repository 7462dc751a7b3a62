package article

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var requestValidate = validator.New()

func init() {
	requestValidate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate 在调用 Gateway 之前校验请求；字段会先去除空白再检查。
func (r UpsertRequest) Validate() error {
	return validateStruct(r.Trimmed())
}

type openRequest struct {
	URL string `json:"url" validate:"required"`
}

// ValidateURL checks that a url argument is non-empty after trimming. Well-formedness
// is left to the backend.
func ValidateURL(raw string) error {
	return validateStruct(openRequest{URL: strings.TrimSpace(raw)})
}

func validateStruct(v any) error {
	err := requestValidate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return &ValidationError{Field: first.Field(), Reason: reasonFor(first.Tag())}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}

func reasonFor(tag string) string {
	switch tag {
	case "required":
		return "must not be empty"
	default:
		return "failed " + tag + " check"
	}
}
