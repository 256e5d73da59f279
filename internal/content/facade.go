// internal/content/facade.go
//
// Caller facade over the profile engine.
//
// Context
// -------
// One entry point per editor or reader action.  SubmitBlock validates the
// raw payload against its block type's schema, then routes:
//
//	hard (canonical) types  → dualwrite.Coordinator
//	soft types              → block.Store
//
// Template-seeded creates without an explicit type go straight to the
// block store, which resolves the template and applies the same hard-type
// guard.
//
// Notes
// -----
//   - The facade holds no state; every rule lives in the component it calls.
package content

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/auth"
	"github.com/yanizio/uniprofile/internal/block"
	"github.com/yanizio/uniprofile/internal/dualwrite"
	"github.com/yanizio/uniprofile/internal/payload"
	"github.com/yanizio/uniprofile/internal/profile"
	"github.com/yanizio/uniprofile/internal/registry"
)

/*──────────────────────────── collaborators ───────────────────────────────*/

type Decoder interface {
	Decode(blockType string, raw json.RawMessage) (payload.Payload, error)
}

type Canonical interface {
	Submit(ctx context.Context, ed auth.Editor, sub dualwrite.Submission) (*dualwrite.Result, error)
}

type Blocks interface {
	Upsert(ctx context.Context, in block.UpsertInput) (*block.Block, error)
	DuplicateToUniversities(ctx context.Context, sourceID uint64, targets []uint64) ([]block.Block, error)
	BulkDelete(ctx context.Context, ids []uint64) (int64, error)
}

type Profiles interface {
	GetProfile(ctx context.Context, slug string) (*profile.Profile, error)
	GetPartition(ctx context.Context, slug string, tag registry.Tag) (*profile.Partition, error)
}

/*──────────────────────────── facade ──────────────────────────────────────*/

// Submission is one block save as received from an editor.
type Submission struct {
	UniversityID uint64          `json:"universityId" validate:"required"`
	BlockType    string          `json:"blockType"`
	Title        string          `json:"title"        validate:"max=255"`
	RawData      json.RawMessage `json:"rawData"`
	Priority     int             `json:"priority"`
	Active       *bool           `json:"isActive,omitempty"`
	ExistingID   *uint64         `json:"existingId,omitempty"`
	TemplateID   *uint64         `json:"templateId,omitempty"`
}

// Outcome is the result of SubmitBlock.  Canonical is set for hard types.
type Outcome struct {
	Block     *block.Block      `json:"block"`
	Canonical *dualwrite.Result `json:"canonical,omitempty"`
}

// Facade wires the engine's components behind caller-level operations.
type Facade struct {
	reg      *registry.Registry
	decode   Decoder
	coord    Canonical
	blocks   Blocks
	profiles Profiles
	log      *zap.Logger
}

// New returns a Facade.
func New(reg *registry.Registry, d Decoder, coord Canonical, blocks Blocks, profiles Profiles, log *zap.Logger) *Facade {
	if log == nil {
		log = zap.NewNop()
	}
	return &Facade{reg: reg, decode: d, coord: coord, blocks: blocks, profiles: profiles, log: log}
}

// SubmitBlock validates and saves one block for ed.
func (f *Facade) SubmitBlock(ctx context.Context, ed auth.Editor, sub Submission) (*Outcome, error) {
	if sub.BlockType == "" && sub.TemplateID != nil {
		return f.soft(ctx, sub)
	}

	p, err := f.decode.Decode(sub.BlockType, sub.RawData)
	if err != nil {
		return nil, err
	}

	if !f.reg.IsHardBlockType(sub.BlockType) {
		return f.soft(ctx, sub)
	}

	res, err := f.coord.Submit(ctx, ed, dualwrite.Submission{
		UniversityID: sub.UniversityID,
		BlockType:    sub.BlockType,
		Title:        sub.Title,
		Priority:     sub.Priority,
		RawData:      sub.RawData,
		Payload:      p,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Block: res.Block, Canonical: res}, nil
}

func (f *Facade) soft(ctx context.Context, sub Submission) (*Outcome, error) {
	b, err := f.blocks.Upsert(ctx, block.UpsertInput{
		BlockType:    sub.BlockType,
		UniversityID: sub.UniversityID,
		Title:        sub.Title,
		RawData:      sub.RawData,
		Priority:     sub.Priority,
		Active:       sub.Active,
		ExistingID:   sub.ExistingID,
		TemplateID:   sub.TemplateID,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Block: b}, nil
}

// GetMergedProfile returns the assembled profile of slug.
func (f *Facade) GetMergedProfile(ctx context.Context, slug string) (*profile.Profile, error) {
	return f.profiles.GetProfile(ctx, slug)
}

// GetPartition returns one cache partition of slug.
func (f *Facade) GetPartition(ctx context.Context, slug string, tag registry.Tag) (*profile.Partition, error) {
	return f.profiles.GetPartition(ctx, slug, tag)
}

// DuplicateBlock copies a soft block onto each target university.
func (f *Facade) DuplicateBlock(ctx context.Context, sourceID uint64, targets []uint64) ([]block.Block, error) {
	copies, err := f.blocks.DuplicateToUniversities(ctx, sourceID, targets)
	if err != nil {
		return nil, err
	}
	f.log.Info("block duplicated",
		zap.Uint64("source_id", sourceID), zap.Int("copies", len(copies)))
	return copies, nil
}

// BulkDeleteBlocks removes every listed block or none.
func (f *Facade) BulkDeleteBlocks(ctx context.Context, ids []uint64) (int64, error) {
	n, err := f.blocks.BulkDelete(ctx, ids)
	if err != nil {
		return 0, err
	}
	f.log.Info("blocks deleted", zap.Int64("count", n))
	return n, nil
}
