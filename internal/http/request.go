package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"monthbook/internal/core"
)

const maxRequestBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// capitalRequest is the body of POST /api/capital. Amount stays untyped so
// numbers and numeric strings are both accepted.
type capitalRequest struct {
	Month  string `json:"month" validate:"required,max=32"`
	Amount any    `json:"amount"`
}

func (c *capitalRequest) sanitize() {
	c.Month = sanitizeInput(c.Month)
}

// expenseRequest is the body of POST /api/expenses.
type expenseRequest struct {
	Month    string `json:"month" validate:"required,max=32"`
	Date     string `json:"date" validate:"required,max=32"`
	Category string `json:"category" validate:"required,max=100"`
	Amount   any    `json:"amount"`
	Note     string `json:"note" validate:"max=500"`
}

func (e *expenseRequest) sanitize() {
	e.Month = sanitizeInput(e.Month)
	e.Date = sanitizeInput(e.Date)
	e.Category = sanitizeInput(e.Category)
	e.Note = sanitizeInput(e.Note)
}

func (e *expenseRequest) toNewExpense() core.NewExpense {
	return core.NewExpense{
		Date:     e.Date,
		Category: e.Category,
		Amount:   e.Amount,
		Note:     e.Note,
	}
}

// errMalformedBody is reported as a 400 with a generic message.
var errMalformedBody = errors.New("malformed request body")

// decodeRequest fills dst from a JSON body, or from form values when the
// request is form encoded. Form fields map by their json tag name; an
// absent form amount stays nil.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return errMalformedBody
		}
		return decodeForm(r, dst)
	default:
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(dst); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errMalformedBody
		}
		return nil
	}
}

func decodeForm(r *http.Request, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("decode form into %T: want pointer to struct", dst)
	}
	v = v.Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" || !r.Form.Has(name) {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(r.Form.Get(name))
		case reflect.Interface:
			field.Set(reflect.ValueOf(r.Form.Get(name)))
		}
	}
	return nil
}

// validateRequest runs the struct tags and converts the first failure into
// a core.ValidationError.
func validateRequest(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &core.ValidationError{Field: fe.Field(), Err: fieldError(fe)}
}

func fieldError(fe validator.FieldError) error {
	if fe.Tag() == "required" {
		switch fe.Field() {
		case "month":
			return core.ErrMissingMonth
		case "date":
			return core.ErrMissingDate
		case "category":
			return core.ErrMissingCategory
		}
		return fmt.Errorf("%s is required", fe.Field())
	}
	if fe.Tag() == "max" {
		return fmt.Errorf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Errorf("%s is invalid", fe.Field())
}

// bindRequest decodes, sanitizes and validates a request DTO.
func bindRequest[T interface{ sanitize() }](w http.ResponseWriter, r *http.Request, dst T) error {
	if err := decodeRequest(w, r, dst); err != nil {
		return err
	}
	dst.sanitize()
	return validateRequest(dst)
}
