package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// RequestValidator plugs go-playground/validator into echo.Context.Validate.
// Field names in errors are the JSON names of the request body.
type RequestValidator struct {
	v *validator.Validate
}

func NewValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// FieldError is one entry of a 400 response body.
type FieldError struct {
	Message string `json:"message"`
	Field   string `json:"field"`
}

// ErrorsResponse is the 400 response body.
type ErrorsResponse struct {
	ErrorsMessages []FieldError `json:"errorsMessages"`
}

func badRequest(c echo.Context, errs ...FieldError) error {
	return c.JSON(http.StatusBadRequest, ErrorsResponse{ErrorsMessages: errs})
}

// bindAndValidate decodes the body into req and validates it. On failure
// it has already written the 400 response and returns false.
func bindAndValidate(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, badRequest(c, bindError(err))
	}
	if err := c.Validate(req); err != nil {
		return false, badRequest(c, fieldErrors(err)...)
	}
	return true, nil
}

// bindError names the offending field when a value has the wrong JSON
// type. echo keeps the decoder error as the HTTPError's internal error.
func bindError(err error) FieldError {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) && ute.Field != "" {
		return FieldError{Message: fmt.Sprintf("%s must not be a %s", ute.Field, ute.Value), Field: ute.Field}
	}
	return FieldError{Message: "malformed request body", Field: ""}
}

func fieldErrors(err error) []FieldError {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []FieldError{{Message: err.Error(), Field: ""}}
	}
	out := make([]FieldError, 0, len(ves))
	seen := map[string]bool{}
	for _, fe := range ves {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		out = append(out, FieldError{Message: describe(fe), Field: fe.Field()})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
