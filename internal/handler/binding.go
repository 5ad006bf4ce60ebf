package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

var requestValidator = newRequestValidator()

// fieldLabels names request fields in validation messages.
var fieldLabels = map[string]string{
	"reason":        "Rejection reason",
	"pickup_date":   "Pickup date",
	"document_type": "Document type",
	"purpose":       "Purpose",
	"signature":     "Signature",
	"documents":     "Documents",
	"purposes":      "Purposes",
	"page":          "Page",
	"page_size":     "Page size",
}

func newRequestValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		}
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindJSON decodes the body into dst and checks its validate tags.
func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "Request body must be valid JSON")
	}
	return validateRequest(dst)
}

// bindOptionalJSON is bindJSON for endpoints that accept an empty body.
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody || c.Request.ContentLength == 0 {
		return validateRequest(dst)
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return validateRequest(dst)
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "Request body must be valid JSON")
	}
	return validateRequest(dst)
}

func bindQuery(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindQuery(dst); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "Invalid query parameters")
	}
	return validateRequest(dst)
}

// validateRequest reports the first failing field as the message and every
// failing field in Details.
func validateRequest(dst interface{}) error {
	err := requestValidator.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "Invalid request")
	}
	out := appErrors.Clone(appErrors.ErrValidation, fieldMessage(fieldErrs[0]))
	out.Details = make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out.Details[fe.Field()] = fe.Tag()
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required", "notblank":
		return label + " is required"
	case "datetime":
		return label + " must be formatted YYYY-MM-DD"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", label, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	default:
		return label + " is invalid"
	}
}
