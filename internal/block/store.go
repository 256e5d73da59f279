// internal/block/store.go
//
// Block Store.
//
// Context
// -------
// CRUD over visual content blocks with the registry's integrity rules in
// front of every mutation:
//
//   - Upsert           – soft blocks only; hard types must go through the
//     canonical write path.  Optional template seeding.
//   - Duplicate        – soft blocks only; copies sort last.
//   - BulkDelete       – all or nothing; one hard block rejects the batch.
//
// Every check runs before the first write, so a rejected call leaves the
// database untouched.  Successful mutations invalidate the microcontent
// partition (plus the assembled profile) of each affected university.
//
// Notes
// -----
//   - Invalidation is best effort.  The cache layer logs its own failures.
package block

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/registry"
)

// Invalidator drops profile cache partitions.  An empty changed list means
// only soft content moved.
type Invalidator interface {
	Invalidate(ctx context.Context, slug string, changed []registry.Field) []registry.Tag
}

// SlugLookup maps university ids to slugs.
type SlugLookup interface {
	SlugsByIDs(ctx context.Context, ids []uint64) (map[uint64]string, error)
}

// Store applies block-level rules on top of Repository.
type Store struct {
	repo  *Repository
	reg   *registry.Registry
	unis  SlugLookup
	cache Invalidator
	media MediaResolver
	log   *zap.Logger
}

// NewStore wires a Store.  media may be nil.
func NewStore(repo *Repository, reg *registry.Registry, unis SlugLookup,
	cache Invalidator, media MediaResolver, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{repo: repo, reg: reg, unis: unis, cache: cache, media: media, log: log}
}

// Repo exposes the underlying repository for read paths.
func (s *Store) Repo() *Repository { return s.repo }

// UpsertInput is one soft-block save.
type UpsertInput struct {
	BlockType    string
	UniversityID uint64
	Title        string
	RawData      json.RawMessage
	Priority     int
	Active       *bool   // nil keeps the current state; new blocks default to active
	ExistingID   *uint64 // nil creates a new block
	TemplateID   *uint64 // honoured on create only
}

/*──────────────────────────── upsert ──────────────────────────────────────*/

// Upsert creates or updates a soft block.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (*Block, error) {
	var tmpl *Template
	if in.ExistingID == nil && in.TemplateID != nil {
		t, err := s.repo.TemplateByID(ctx, *in.TemplateID)
		if err != nil {
			return nil, err
		}
		tmpl = t
		if in.BlockType == "" {
			in.BlockType = t.BlockType
		}
		if in.BlockType != t.BlockType {
			return nil, apperr.Invalid("blockType",
				fmt.Sprintf("template %d is a %s block", t.ID, t.BlockType))
		}
	}

	if in.BlockType == "" {
		return nil, apperr.Invalid("blockType", "required")
	}
	if s.reg.IsHardBlockType(in.BlockType) {
		return nil, &apperr.PermissionError{
			Op:       "upsert block",
			Reason:   "canonical block types are saved through the canonical write path",
			Subjects: []string{in.BlockType},
		}
	}
	if len(in.RawData) > 0 && !json.Valid(in.RawData) {
		return nil, apperr.Invalid("rawData", "not valid JSON")
	}

	var (
		b   *Block
		err error
	)
	if in.ExistingID != nil {
		b, err = s.update(ctx, in)
	} else {
		b, err = s.create(ctx, in, tmpl)
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, []uint64{b.UniversityID})
	return b, nil
}

func (s *Store) create(ctx context.Context, in UpsertInput, tmpl *Template) (*Block, error) {
	b := &Block{
		UniversityID: in.UniversityID,
		BlockType:    in.BlockType,
		Title:        in.Title,
		RawData:      in.RawData,
		Priority:     in.Priority,
		IsActive:     in.Active == nil || *in.Active,
	}
	if tmpl != nil {
		b.TemplateID = &tmpl.ID
		b.RawData = overlay(tmpl.Data, in.RawData)
		if strings.TrimSpace(in.Title) == "" {
			b.Title = tmpl.Name
		}
	}
	if len(b.RawData) == 0 {
		b.RawData = json.RawMessage(`{}`)
	}
	b.RawData = resolveMedia(ctx, s.media, s.log, b.RawData)

	if err := s.repo.Insert(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) update(ctx context.Context, in UpsertInput) (*Block, error) {
	b, err := s.repo.ByID(ctx, *in.ExistingID)
	if err != nil {
		return nil, err
	}
	if b.IsCanonical || s.reg.IsHardBlockType(b.BlockType) {
		return nil, &apperr.PermissionError{
			Op:       "upsert block",
			Reason:   "canonical blocks are saved through the canonical write path",
			Subjects: []string{strconv.FormatUint(b.ID, 10)},
		}
	}
	if b.UniversityID != in.UniversityID || b.BlockType != in.BlockType {
		return nil, apperr.Invalid("existingId",
			fmt.Sprintf("block %d belongs to another university or type", b.ID))
	}

	if strings.TrimSpace(in.Title) != "" {
		b.Title = in.Title
	}
	if len(in.RawData) > 0 {
		b.RawData = resolveMedia(ctx, s.media, s.log, in.RawData)
	}
	b.Priority = in.Priority
	if in.Active != nil {
		b.IsActive = *in.Active
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// overlay returns base with every top-level key of top written over it.
func overlay(base, top json.RawMessage) json.RawMessage {
	if len(base) == 0 || !gjson.ValidBytes(base) {
		return top
	}
	if len(top) == 0 || !gjson.ValidBytes(top) || !gjson.ParseBytes(top).IsObject() {
		return base
	}
	out := append([]byte(nil), base...)
	gjson.ParseBytes(top).ForEach(func(k, v gjson.Result) bool {
		if next, err := sjson.SetRawBytes(out, escapePath(k.String()), []byte(v.Raw)); err == nil {
			out = next
		}
		return true
	})
	return out
}

var pathEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

func escapePath(key string) string { return pathEscaper.Replace(key) }

/*──────────────────────────── duplicate ───────────────────────────────────*/

// DuplicateToUniversities copies a soft block to every target university.
func (s *Store) DuplicateToUniversities(ctx context.Context, sourceID uint64, targets []uint64) ([]Block, error) {
	src, err := s.repo.ByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src.IsCanonical || s.reg.IsHardBlockType(src.BlockType) {
		return nil, &apperr.PermissionError{
			Op:       "duplicate block",
			Reason:   "canonical blocks cannot be duplicated",
			Subjects: []string{strconv.FormatUint(src.ID, 10)},
		}
	}

	targets = dedupe(targets)
	if len(targets) == 0 {
		return []Block{}, nil
	}
	slugs, err := s.unis.SlugsByIDs(ctx, targets)
	if err != nil {
		return nil, err
	}
	for _, id := range targets {
		if _, ok := slugs[id]; !ok {
			return nil, apperr.NotFound("university", id)
		}
	}

	copies := make([]Block, 0, len(targets))
	for _, uid := range targets {
		copies = append(copies, Block{
			UniversityID: uid,
			BlockType:    src.BlockType,
			Title:        CopyPrefix + src.Title,
			RawData:      append(json.RawMessage(nil), src.RawData...),
			Priority:     CopyPriority,
			IsActive:     src.IsActive,
			TemplateID:   src.TemplateID,
		})
	}
	if err := s.repo.InsertMany(ctx, copies); err != nil {
		return nil, err
	}

	for _, uid := range targets {
		s.cache.Invalidate(ctx, slugs[uid], nil)
	}
	s.log.Info("block duplicated",
		zap.Uint64("source", src.ID), zap.Int("copies", len(copies)))
	return copies, nil
}

/*──────────────────────────── delete ──────────────────────────────────────*/

// BulkDelete removes every listed block or none of them.
func (s *Store) BulkDelete(ctx context.Context, ids []uint64) (int64, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	rows, err := s.repo.ByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	found := make(map[uint64]Block, len(rows))
	for _, b := range rows {
		found[b.ID] = b
	}
	var hard []string
	for _, id := range ids {
		b, ok := found[id]
		if !ok {
			return 0, apperr.NotFound("block", id)
		}
		if b.IsCanonical || s.reg.IsHardBlockType(b.BlockType) {
			hard = append(hard, strconv.FormatUint(id, 10))
		}
	}
	if len(hard) > 0 {
		return 0, &apperr.PermissionError{
			Op:       "bulk delete",
			Reason:   "batch contains canonical blocks",
			Subjects: hard,
		}
	}

	n, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	owners := make([]uint64, 0, len(rows))
	for _, b := range rows {
		owners = append(owners, b.UniversityID)
	}
	s.invalidate(ctx, dedupe(owners))
	return n, nil
}

func (s *Store) invalidate(ctx context.Context, universityIDs []uint64) {
	slugs, err := s.unis.SlugsByIDs(ctx, universityIDs)
	if err != nil {
		s.log.Warn("slug lookup for invalidation failed",
			zap.Uint64s("universities", universityIDs), zap.Error(err))
		return
	}
	for _, id := range universityIDs {
		if slug, ok := slugs[id]; ok {
			s.cache.Invalidate(ctx, slug, nil)
		}
	}
}

// dedupe returns ids sorted with duplicates removed.
func dedupe(ids []uint64) []uint64 {
	if len(ids) == 0 {
		return ids
	}
	out := append([]uint64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
