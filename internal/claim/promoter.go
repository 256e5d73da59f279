// internal/claim/promoter.go
//
// Approval and rejection of staged values.
//
// Context
// -------
// The OldValue on a request was captured when the draft was written.  By
// the time a reviewer acts, another editor may have changed the live
// column or staged a newer draft.  Approve therefore re-reads the row and
// promotes only when
//
//   - the live value still equals the recorded OldValue, and
//   - the draft column still holds the recorded NewValue.
//
// Otherwise the request is marked stale and nothing is promoted.  A
// successful promotion invalidates the partition of the promoted field.
//
// Notes
// -----
//   - The status transition runs first and is conditional, so a request is
//     decided exactly once even under concurrent reviewers.
//   - Reject clears the draft only when it still belongs to this request.
package claim

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/registry"
	"github.com/yanizio/uniprofile/internal/university"
)

// ErrStale is returned by Approve when live state moved since the request
// was recorded.
var ErrStale = errors.New("change request is stale")

// Universities is the slice of the university store the promoter needs.
type Universities interface {
	ByID(ctx context.Context, id uint64) (*university.Record, error)
	PromoteDraft(ctx context.Context, id uint64, fs registry.FieldSpec) error
	ClearDraft(ctx context.Context, id uint64, fs registry.FieldSpec) error
}

// Requests is the slice of Store the promoter needs.
type Requests interface {
	ByID(ctx context.Context, id uint64) (*Request, error)
	Transition(ctx context.Context, id uint64, from, to string, by int64) error
}

// Invalidator drops profile cache partitions.
type Invalidator interface {
	Invalidate(ctx context.Context, slug string, changed []registry.Field) []registry.Tag
}

// Promoter decides change requests.
type Promoter struct {
	reg   *registry.Registry
	reqs  Requests
	unis  Universities
	cache Invalidator
	log   *zap.Logger
}

// NewPromoter wires a Promoter.
func NewPromoter(reg *registry.Registry, reqs Requests, unis Universities, cache Invalidator, log *zap.Logger) *Promoter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Promoter{reg: reg, reqs: reqs, unis: unis, cache: cache, log: log}
}

// Approve promotes the request's draft into the live column.
func (p *Promoter) Approve(ctx context.Context, id uint64, approver int64) (*Request, error) {
	req, fs, rec, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !p.current(req, fs, rec) {
		if err := p.reqs.Transition(ctx, id, StatusPending, StatusStale, approver); err != nil {
			return nil, err
		}
		req.Status = StatusStale
		p.log.Info("change request stale",
			zap.Uint64("request_id", id), zap.String("field", req.Field))
		return req, ErrStale
	}

	if err := p.reqs.Transition(ctx, id, StatusPending, StatusApproved, approver); err != nil {
		return nil, err
	}
	if err := p.unis.PromoteDraft(ctx, rec.ID, fs); err != nil {
		if rerr := p.reqs.Transition(ctx, id, StatusApproved, StatusPending, approver); rerr != nil {
			p.log.Error("reopen change request failed", zap.Uint64("request_id", id), zap.Error(rerr))
		}
		return nil, err
	}
	req.Status = StatusApproved

	tags := p.cache.Invalidate(ctx, rec.Slug, []registry.Field{fs.Name})
	p.log.Info("change request approved",
		zap.Uint64("request_id", id),
		zap.String("university", rec.Slug),
		zap.String("field", req.Field),
		zap.Any("tags", tags))
	return req, nil
}

// Reject discards the request's draft.
func (p *Promoter) Reject(ctx context.Context, id uint64, reviewer int64) (*Request, error) {
	req, fs, rec, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.reqs.Transition(ctx, id, StatusPending, StatusRejected, reviewer); err != nil {
		return nil, err
	}
	req.Status = StatusRejected

	if p.draftMatches(req, fs, rec) {
		if err := p.unis.ClearDraft(ctx, rec.ID, fs); err != nil {
			return nil, err
		}
	}
	p.log.Info("change request rejected",
		zap.Uint64("request_id", id), zap.String("field", req.Field))
	return req, nil
}

func (p *Promoter) load(ctx context.Context, id uint64) (*Request, registry.FieldSpec, *university.Record, error) {
	req, err := p.reqs.ByID(ctx, id)
	if err != nil {
		return nil, registry.FieldSpec{}, nil, err
	}
	if req.Status != StatusPending {
		return nil, registry.FieldSpec{}, nil, ErrDecided
	}
	fs, ok := p.reg.Spec(registry.Field(req.Field))
	if !ok || !fs.Staged {
		return nil, registry.FieldSpec{}, nil, fmt.Errorf("change request %d names unstaged field %q", id, req.Field)
	}
	rec, err := p.unis.ByID(ctx, req.UniversityID)
	if err != nil {
		return nil, registry.FieldSpec{}, nil, err
	}
	return req, fs, rec, nil
}

// current reports whether live and draft still match what the request saw.
func (p *Promoter) current(req *Request, fs registry.FieldSpec, rec *university.Record) bool {
	live, hasLive := rec.Live(fs)
	old, hasOld := decodeValue(req.OldValue.String, fs.Kind)
	if !req.OldValue.Valid {
		hasOld = false
	}
	if hasLive != hasOld || (hasLive && !live.Equal(old)) {
		return false
	}
	return p.draftMatches(req, fs, rec)
}

func (p *Promoter) draftMatches(req *Request, fs registry.FieldSpec, rec *university.Record) bool {
	draft, ok := rec.Draft(fs)
	if !ok {
		return false
	}
	want, ok := decodeValue(req.NewValue, fs.Kind)
	return ok && draft.Equal(want)
}
