// internal/api/handlers.go
//
// Route handlers.
//
// Context
// -------
// Each handler decodes the path and body, calls one collaborator, and
// writes JSON.  Bodies are capped at maxBody and checked with validate
// tags reported by JSON name.
//
// Notes
// -----
//   - Claim values are stored as JSON text and echoed raw.
//   - A stale approval answers 409 with the updated request.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/auth"
	"github.com/yanizio/uniprofile/internal/claim"
	"github.com/yanizio/uniprofile/internal/content"
	"github.com/yanizio/uniprofile/internal/registry"
)

var validate = newValidate()

// newValidate reports fields by their JSON names.
func newValidate() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

/*──────────────────────────── reads ───────────────────────────────────────*/

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Content.GetMergedProfile(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) getPartition(w http.ResponseWriter, r *http.Request) {
	tag := registry.Tag(chi.URLParam(r, "tag"))
	p, err := h.Content.GetPartition(r.Context(), chi.URLParam(r, "slug"), tag)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

/*──────────────────────────── blocks ──────────────────────────────────────*/

func (h *handler) submitBlock(w http.ResponseWriter, r *http.Request) {
	var sub content.Submission
	if err := decodeBody(r, &sub); err != nil {
		h.fail(w, r, err)
		return
	}
	ed, _ := auth.EditorFrom(r.Context())

	out, err := h.Content.SubmitBlock(r.Context(), ed, sub)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if sub.ExistingID == nil && out.Canonical == nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

type duplicateRequest struct {
	TargetUniversityIDs []uint64 `json:"targetUniversityIds" validate:"required,min=1"`
}

func (h *handler) duplicateBlock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req duplicateRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	copies, err := h.Content.DuplicateBlock(r.Context(), id, req.TargetUniversityIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"blocks": copies})
}

type bulkDeleteRequest struct {
	IDs []uint64 `json:"ids" validate:"required,min=1"`
}

func (h *handler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.Content.BulkDeleteBlocks(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

/*──────────────────────────── claims ──────────────────────────────────────*/

// claimView adds the stored JSON values to a Request.
type claimView struct {
	*claim.Request
	OldValue json.RawMessage `json:"oldValue"`
	NewValue json.RawMessage `json:"newValue"`
}

func viewOf(req *claim.Request) claimView {
	v := claimView{Request: req, OldValue: json.RawMessage("null"), NewValue: json.RawMessage(req.NewValue)}
	if req.OldValue.Valid {
		v.OldValue = json.RawMessage(req.OldValue.String)
	}
	return v
}

func (h *handler) pendingClaims(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reqs, err := h.Queue.Pending(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]claimView, len(reqs))
	for i := range reqs {
		out[i] = viewOf(&reqs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *handler) approveClaim(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Reviewer.Approve)
}

func (h *handler) rejectClaim(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Reviewer.Reject)
}

type decision func(ctx context.Context, id uint64, by int64) (*claim.Request, error)

func (h *handler) decide(w http.ResponseWriter, r *http.Request, fn decision) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ed, _ := auth.EditorFrom(r.Context())

	req, err := fn(r.Context(), id, ed.ID)
	if err != nil {
		if req != nil {
			writeJSON(w, statusOf(err), map[string]any{"error": err.Error(), "request": viewOf(req)})
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(req))
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

// decodeBody reads one JSON object into dst and runs its validate tags.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("body", "malformed JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return bindError(err)
	}
	return nil
}

func bindError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperr.Invalid("body", err.Error())
	}
	ve := &apperr.ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, apperr.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag()})
	}
	return ve
}
