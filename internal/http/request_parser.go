package http

// This file decodes and validates JSON request bodies and path parameters.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"orderlens/internal/core"
	"orderlens/internal/filter"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// maxJSONBody bounds filter and view request bodies.
const maxJSONBody = 1 << 20

// RequestError is a client mistake. Field names the offending JSON field
// when there is one.
type RequestError struct {
	Status  int
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// validatorSvc holds the shared validator and its English translator.
type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	validatorOnce sync.Once
	validatorInst *validatorSvc
)

// getValidator builds the validator on first use. Messages use JSON field
// names.
func getValidator() *validatorSvc {
	validatorOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)
		registerShort(v, trans, "min", "{0} must be at least {1}")
		registerShort(v, trans, "max", "{0} must be at most {1}")

		validatorInst = &validatorSvc{validate: v, translator: trans}
	})
	return validatorInst
}

func registerShort(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field(), fe.Param())
			return msg
		},
	)
}

// validationError converts the first validator failure into a RequestError.
func validationError(err error) *RequestError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &RequestError{
			Status:  http.StatusBadRequest,
			Field:   fe.Field(),
			Message: fe.Translate(getValidator().translator),
		}
	}
	return badRequest("%v", err)
}

// jsonOptions controls decodeJSON.
type jsonOptions struct {
	AllowEmptyBody bool
}

// decodeJSON reads one JSON object into T, rejecting unknown fields and
// trailing data, then validates it.
func decodeJSON[T any](r *http.Request, opts ...jsonOptions) (T, error) {
	var zero T
	var o jsonOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
	if err != nil {
		return zero, badRequest("read body: %v", err)
	}
	if len(raw) > maxJSONBody {
		return zero, &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
	}

	var dst T
	if len(bytes.TrimSpace(raw)) == 0 {
		if !o.AllowEmptyBody {
			return zero, badRequest("empty body")
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&dst); err != nil {
			return zero, badRequest("invalid JSON: %v", err)
		}
		if dec.More() {
			return zero, badRequest("unexpected trailing data")
		}
	}

	if err := getValidator().validate.Struct(dst); err != nil {
		var inv *validator.InvalidValidationError
		if errors.As(err, &inv) {
			return zero, fmt.Errorf("validate request: %w", err)
		}
		return zero, validationError(err)
	}
	return dst, nil
}

// columnParam reads the {column} path segment. Column names may contain
// spaces and slashes, so the segment arrives percent-encoded.
func columnParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "column")
	column, err := url.PathUnescape(raw)
	if err != nil {
		return "", &RequestError{Status: http.StatusBadRequest, Field: "column", Message: "column is not valid percent-encoding"}
	}
	if strings.TrimSpace(column) == "" {
		return "", &RequestError{Status: http.StatusBadRequest, Field: "column", Message: "column is required"}
	}
	return column, nil
}

// Request bodies.

type dateRangeRequest struct {
	Start *string `json:"start" validate:"omitempty,max=64"`
	End   *string `json:"end" validate:"omitempty,max=64"`
}

type metricRequest struct {
	Metric string `json:"metric" validate:"required,oneof=amount quantity"`
}

type presetRequest struct {
	Preset string `json:"preset" validate:"required,oneof=last_year ytd last_month past_6_months"`
}

type valueRequest struct {
	Value *string `json:"value" validate:"required,max=1024"`
}

type excludeAllRequest struct {
	Values []string `json:"values" validate:"omitempty,max=100000,dive,max=1024"`
}

type viewRequest struct {
	Granularity     *string `json:"granularity" validate:"omitempty,oneof=day week month quarter year"`
	BreakdownColumn *string `json:"breakdown_column" validate:"omitempty,max=256"`
	TopN            *int    `json:"top_n" validate:"omitempty,min=1,max=50"`
}

// dateOnlyLayout marks bounds given without a time of day.
const dateOnlyLayout = "2006-01-02"

// parseBounds converts the request strings into range bounds in loc. A
// date-only end bound covers that whole day. Blank strings clear a bound.
func (req dateRangeRequest) parseBounds(loc *time.Location) (start, end *time.Time, err error) {
	if start, err = parseBound(req.Start, "start", loc); err != nil {
		return nil, nil, err
	}
	if end, err = parseBound(req.End, "end", loc); err != nil {
		return nil, nil, err
	}
	if end != nil && isDateOnly(*req.End) {
		e := filter.EndOfDay(*end)
		end = &e
	}
	return start, end, nil
}

func parseBound(s *string, field string, loc *time.Location) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := core.ParseOrderDate(*s, loc)
	if err != nil {
		return nil, &RequestError{Status: http.StatusBadRequest, Field: field, Message: field + " must be an ISO 8601 date or date-time"}
	}
	return &t, nil
}

func isDateOnly(s string) bool {
	_, err := time.Parse(dateOnlyLayout, strings.TrimSpace(s))
	return err == nil
}
