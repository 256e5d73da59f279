// internal/api/errors.go
//
// Error responses.
//
// Context
// -------
// statusOf maps the apperr taxonomy and claim sentinels onto HTTP status
// codes.  Unexpected errors answer 500 with a generic body and are logged
// with the chi request id.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/claim"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error    string              `json:"error"`
	Fields   []apperr.FieldError `json:"fields,omitempty"`
	Subjects []string            `json:"subjects,omitempty"`
}

// statusOf maps the error taxonomy onto HTTP.
func statusOf(err error) int {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		pe *apperr.PermissionError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &pe):
		return http.StatusForbidden
	case errors.Is(err, claim.ErrStale), errors.Is(err, claim.ErrDecided):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}

	var (
		ve *apperr.ValidationError
		pe *apperr.PermissionError
	)
	switch {
	case errors.As(err, &ve):
		body.Fields = ve.Fields
	case errors.As(err, &pe):
		body.Subjects = pe.Subjects
	}

	if status == http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
