package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
)

// uploadForm is the multipart body of an upload.
type uploadForm struct {
	File  *multipart.FileHeader `form:"file" validate:"required"`
	Name  string                `form:"name" validate:"required,max=200"`
	Email string                `form:"email" validate:"required,email,max=320"`
	Title string                `form:"title" validate:"max=200"`
}

func (f *uploadForm) normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Title = strings.TrimSpace(f.Title)
}

// ValidationError lists per-field messages, keyed by form field name.
type ValidationError struct {
	Fields map[string]string
}

// Error renders "field: message" pairs sorted by field and joined by "; ".
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return common.ErrorValidation }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts validator output into a ValidationError.
func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}

	fields := make(map[string]string, len(ves))
	for _, fe := range ves {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	label := titleCase(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return label + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", label, fe.Tag())
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
