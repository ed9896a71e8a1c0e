// Package httpapi exposes the management API over HTTP and routes
// streamable MCP traffic to mounted sub-servers.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"swaggerd/internal/domain"
)

var validate *validator.Validate

// A single validator instance is used, because it caches struct parsing.
func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Response is the generic error body.
type Response struct {
	Message string `json:"message"`
}

// WriteJSON outputs a standardized format to an HTTP response body.
func WriteJSON(rw http.ResponseWriter, status int, response any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(response); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
	}
}

// ReadJSON decodes JSON from the request into value and validates it.
// It writes the error response itself and reports whether the caller
// should continue.
func ReadJSON(rw http.ResponseWriter, r *http.Request, value any) bool {
	if err := json.NewDecoder(r.Body).Decode(value); err != nil {
		WriteJSON(rw, http.StatusBadRequest, Response{
			Message: fmt.Sprintf("read body: %s", err.Error()),
		})
		return false
	}
	err := validate.Struct(value)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]string, 0, len(validationErrors))
		for _, validationError := range validationErrors {
			fields = append(fields, validationError.Field())
		}
		WriteJSON(rw, http.StatusBadRequest, Response{
			Message: fmt.Sprintf("invalid request: %s", strings.Join(fields, ", ")),
		})
		return false
	}
	if err != nil {
		WriteJSON(rw, http.StatusInternalServerError, Response{
			Message: fmt.Sprintf("validation: %s", err.Error()),
		})
		return false
	}
	return true
}

// WriteError maps a domain error code onto an HTTP status with the
// error's message as detail.
func WriteError(rw http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if code, ok := domain.CodeFrom(err); ok {
		switch code {
		case domain.CodeInvalidArgument, domain.CodeAlreadyExists:
			status = http.StatusBadRequest
		case domain.CodeNotFound:
			status = http.StatusNotFound
		case domain.CodeUnavailable:
			status = http.StatusServiceUnavailable
		}
	}
	message := err.Error()
	var domainErr *domain.Error
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		message = domainErr.Message
	}
	WriteJSON(rw, status, Response{Message: message})
}
