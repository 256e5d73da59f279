// internal/dualwrite/coordinator.go
//
// Dual-Write Coordinator.
//
// Context
// -------
// A canonical block save turns a validated payload into scalar writes on
// the university row.  Each derived field is classified on its own:
//
//	NotApplicable  field is outside the block type's writable set
//	LiveWrite      editor is privileged, or the field is not staged
//	DraftWrite     non-privileged editor and a staged field
//
// Draft writes are diffed against the live value read once at the start of
// the save.  A difference yields a ChangeRecord; an identical value is
// still written to the draft column but produces no review noise.
//
// Order of effects for one save:
//
//  1. derive, then reject any field the block type may not write
//  2. read the university row
//  3. one batched UPDATE for every live and draft column
//  4. persist the canonical block's raw payload
//  5. hand change records to the claim sink (errors logged only)
//  6. invalidate the partitions of the fields written live
//
// Notes
// -----
//   - Draft-only saves change no public scalar, so no scalar partition is
//     dropped.  The block payload did change, so microcontent and canonical
//     go.
//   - Concurrent saves to the same field are last-write-wins.  The review
//     step re-validates OldValue before promotion.
package dualwrite

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/auth"
	"github.com/yanizio/uniprofile/internal/block"
	"github.com/yanizio/uniprofile/internal/claim"
	"github.com/yanizio/uniprofile/internal/metrics"
	"github.com/yanizio/uniprofile/internal/payload"
	"github.com/yanizio/uniprofile/internal/registry"
	"github.com/yanizio/uniprofile/internal/university"
)

// State is the routing decision for one derived field.
type State int

const (
	NotApplicable State = iota
	LiveWrite
	DraftWrite
)

func (s State) String() string {
	switch s {
	case LiveWrite:
		return "live"
	case DraftWrite:
		return "draft"
	default:
		return "not_applicable"
	}
}

// Classify routes field f of a blockType save.
func Classify(reg *registry.Registry, blockType string, f registry.Field, privileged bool) State {
	if !reg.CanWrite(blockType, f) {
		return NotApplicable
	}
	if privileged || !reg.RequiresStaging(f) {
		return LiveWrite
	}
	return DraftWrite
}

/*──────────────────────────── collaborators ───────────────────────────────*/

// Deriver computes canonical values from a payload.
type Deriver interface {
	Derive(ctx context.Context, p payload.Payload) (registry.Values, error)
}

// Universities is the slice of the university store the coordinator uses.
type Universities interface {
	ByID(ctx context.Context, id uint64) (*university.Record, error)
	ApplyWrite(ctx context.Context, id uint64, w university.Write) error
}

// Blocks persists the canonical block record.
type Blocks interface {
	UpsertCanonical(ctx context.Context, b block.Block) (*block.Block, error)
}

// Invalidator drops profile cache partitions.
type Invalidator interface {
	Invalidate(ctx context.Context, slug string, changed []registry.Field) []registry.Tag
}

/*──────────────────────────── coordinator ─────────────────────────────────*/

// Submission is one canonical block save.
type Submission struct {
	UniversityID uint64
	BlockType    string
	Title        string
	Priority     int
	RawData      json.RawMessage
	Payload      payload.Payload
}

// Result reports what a save did.
type Result struct {
	Block       *block.Block         `json:"block"`
	LiveFields  []registry.Field     `json:"liveFields"`
	DraftFields []registry.Field     `json:"draftFields"`
	Changes     []claim.ChangeRecord `json:"changes"`
	Invalidated []registry.Tag       `json:"invalidated"`
}

// Coordinator runs canonical saves.
type Coordinator struct {
	reg    *registry.Registry
	derive Deriver
	unis   Universities
	blocks Blocks
	sink   claim.Sink
	cache  Invalidator
	log    *zap.Logger
}

// New wires a Coordinator.
func New(reg *registry.Registry, d Deriver, unis Universities, blocks Blocks,
	sink claim.Sink, cache Invalidator, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{reg: reg, derive: d, unis: unis, blocks: blocks, sink: sink, cache: cache, log: log}
}

// Submit performs one canonical save for ed.
func (c *Coordinator) Submit(ctx context.Context, ed auth.Editor, sub Submission) (*Result, error) {
	if _, ok := c.reg.Block(sub.BlockType); !ok {
		return nil, apperr.Invalid("blockType", "not a canonical block type")
	}
	if sub.Payload == nil || sub.Payload.BlockType() != sub.BlockType {
		return nil, apperr.Invalid("rawData", "payload does not match block type")
	}

	values, err := c.derive.Derive(ctx, sub.Payload)
	if err != nil {
		return nil, err
	}
	fields := values.Fields()
	var foreign []string
	for _, f := range fields {
		if Classify(c.reg, sub.BlockType, f, ed.Privileged) == NotApplicable {
			foreign = append(foreign, string(f))
		}
	}
	if len(foreign) > 0 {
		return nil, &apperr.PermissionError{
			Op:       "canonical write",
			Reason:   "derived fields are not writable by " + sub.BlockType,
			Subjects: foreign,
		}
	}

	rec, err := c.unis.ByID(ctx, sub.UniversityID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		LiveFields:  []registry.Field{},
		DraftFields: []registry.Field{},
		Changes:     []claim.ChangeRecord{},
	}
	w := university.Write{}
	for _, f := range fields {
		fs, _ := c.reg.Spec(f)
		v := values[f]

		switch Classify(c.reg, sub.BlockType, f, ed.Privileged) {
		case LiveWrite:
			w[fs.Column] = v
			res.LiveFields = append(res.LiveFields, f)
		case DraftWrite:
			w[fs.DraftColumn] = v
			res.DraftFields = append(res.DraftFields, f)
			if cr, changed := diff(rec, fs, v); changed {
				res.Changes = append(res.Changes, cr)
			}
		}
	}

	if err := c.unis.ApplyWrite(ctx, rec.ID, w); err != nil {
		return nil, err
	}
	countWrites(w)

	title := sub.Title
	if title == "" {
		title = sub.BlockType
	}
	raw := sub.RawData
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	b, err := c.blocks.UpsertCanonical(ctx, block.Block{
		UniversityID: rec.ID,
		BlockType:    sub.BlockType,
		Title:        title,
		RawData:      raw,
		Priority:     sub.Priority,
	})
	if err != nil {
		return nil, err
	}
	res.Block = b

	if len(res.Changes) > 0 {
		msg := claim.NewMessage(ed, rec.ID, title, res.Changes)
		// A full queue is logged by the dispatcher itself.
		if err := c.sink.Submit(ctx, msg); err != nil && !errors.Is(err, claim.ErrQueueFull) {
			c.log.Warn("claim submission failed; block save kept",
				zap.String("message_id", msg.ID),
				zap.Uint64("university_id", rec.ID),
				zap.Error(err))
		}
	}

	res.Invalidated = c.cache.Invalidate(ctx, rec.Slug, res.LiveFields)

	c.log.Info("canonical block saved",
		zap.String("university", rec.Slug),
		zap.String("block_type", sub.BlockType),
		zap.Int64("editor_id", ed.ID),
		zap.Bool("privileged", ed.Privileged),
		zap.Int("live", len(res.LiveFields)),
		zap.Int("draft", len(res.DraftFields)),
		zap.Int("changes", len(res.Changes)))
	return res, nil
}

// diff compares a proposed draft value with the current live value.
func diff(rec *university.Record, fs registry.FieldSpec, proposed registry.Value) (claim.ChangeRecord, bool) {
	cur, ok := rec.Live(fs)
	if ok && cur.Equal(proposed) {
		return claim.ChangeRecord{}, false
	}
	cr := claim.ChangeRecord{Field: fs.Name, NewValue: proposed}
	if ok {
		cr.OldValue = &cur
	}
	return cr, true
}

func countWrites(w university.Write) {
	for col := range w {
		metrics.FieldWrites.WithLabelValues(col).Inc()
	}
}
