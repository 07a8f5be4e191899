package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/infra/logging"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxBodySize = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names in validation messages
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// decode reads a JSON body into dst and runs struct validation.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// decodeOptional is decode for endpoints where every field has a default.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, io.EOF) && allowEmpty:
		case errors.Is(err, io.EOF):
			return &domain.ValidationError{Field: "body", Msg: "request body is empty"}
		default:
			return &domain.ValidationError{Field: "body", Msg: "invalid request body: " + err.Error()}
		}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ValidationError{
				Field: fe.Field(),
				Msg:   fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()),
			}
		}
		return &domain.ValidationError{Field: "body", Msg: err.Error()}
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnknownCycleKind):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusForbidden:
		// identical body for missing and foreign rows
		msg = domain.ErrAccessDenied.Error()
	case http.StatusNotFound:
		msg = domain.ErrNotFound.Error()
	case http.StatusInternalServerError:
		l := logging.With(r.Context(), logger)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: msg})
}
