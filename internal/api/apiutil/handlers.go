package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/authz"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

func (e FieldError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Field  string `json:"field"`
		Reason string `json:"reason"`
	}{e.Field, e.Reason})
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("missing request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteError writes a JSON error body. A FieldError is reported under fields.
func WriteError(w http.ResponseWriter, status int, err error) {
	body := ErrorResponse{Error: http.StatusText(status)}
	var herr HandlerError
	var ferr FieldError
	switch {
	case errors.As(err, &ferr):
		body.Error = ferr.Error()
		body.Fields = []FieldError{ferr}
	case errors.As(err, &herr):
		body.Error = herr.Message
	case err != nil && status < http.StatusInternalServerError:
		body.Error = err.Error()
	}
	if werr := WriteJSON(w, status, body); werr != nil {
		log.Error().Err(werr).Int("status", status).Msg("Failed to write error response")
	}
}

// RequireUser writes 401 and returns nil when the request carries no identity.
func RequireUser(w http.ResponseWriter, r *http.Request) *authz.AuthUser {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Warn().Str("path", r.URL.Path).Msg("Request denied: unauthenticated")
		WriteError(w, http.StatusUnauthorized, HandlerError{Status: http.StatusUnauthorized, Message: "Unauthorized", Err: err})
		return nil
	}
	return user
}
