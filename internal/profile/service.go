// internal/profile/service.go
//
// Merged-Profile Cache.
//
// Context
// -------
// A profile is cached as one entry per (slug, tag):
//
//	profile:<slug>:identity      … scalar partitions, one per registry tag
//	profile:<slug>:microcontent  … ordered active soft blocks
//	profile:<slug>:canonical     … the assembled Profile
//
// GetProfile serves the canonical entry when present.  On a miss it loads
// the university row and its blocks in parallel, assembles, and refreshes
// every partition.  GetPartition serves a single tag and rebuilds only
// that tag when cold.  Concurrent misses for the same key share one load
// through singleflight.
//
// Invalidate maps changed fields to tags through the registry and deletes
// exactly those keys plus canonical.  A cost edit leaves the admissions
// partition warm for readers still being served from it.
//
// Each slug carries a generation that every invalidation bumps.  A load
// that started under an older generation does not write its result back,
// and a write that raced an invalidation is deleted again.
//
// Notes
// -----
//   - Generations are per process.  With a shared Redis, another node's
//     in-flight rebuild is bounded by the TTL.
//   - Backend errors degrade to a miss.  The request is recomputed from the
//     database and the failure is logged and counted, never returned.
//   - A university missing at the source is a NotFoundError, distinct from a
//     miss that resolves.  Malformed slugs are NotFound without touching
//     the cache.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/block"
	"github.com/yanizio/uniprofile/internal/metrics"
	"github.com/yanizio/uniprofile/internal/registry"
	"github.com/yanizio/uniprofile/internal/university"
)

// DefaultTTL bounds how long a cached partition may be served.
const DefaultTTL = 10 * time.Minute

// UniversitySource loads the university row.
type UniversitySource interface {
	BySlug(ctx context.Context, slug string) (*university.Record, error)
}

// BlockSource loads the ordered active blocks of a university.
type BlockSource interface {
	ActiveByUniversitySlug(ctx context.Context, slug string) ([]block.Block, error)
}

// Service is the profile cache.
type Service struct {
	reg    *registry.Registry
	kv     KVStore
	unis   UniversitySource
	blocks BlockSource
	ttl    time.Duration
	log    *zap.Logger
	sfg    singleflight.Group
	gens   sync.Map // slug → *atomic.Uint64
}

// NewService wires a Service.  ttl ≤ 0 selects DefaultTTL.
func NewService(reg *registry.Registry, kv KVStore, unis UniversitySource, blocks BlockSource,
	ttl time.Duration, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{reg: reg, kv: kv, unis: unis, blocks: blocks, ttl: ttl, log: log}
}

// Key returns the cache key of one partition.
func Key(slug string, tag registry.Tag) string {
	return "profile:" + slug + ":" + string(tag)
}

// TagsFor returns the tags a write of changed live fields must drop:
// each field's tag, always canonical, and microcontent when nothing
// canonical changed.
func TagsFor(reg *registry.Registry, changed []registry.Field) []registry.Tag {
	seen := map[registry.Tag]bool{}
	var out []registry.Tag
	add := func(t registry.Tag) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, f := range changed {
		if t, ok := reg.CacheTag(f); ok {
			add(t)
		}
	}
	if len(changed) == 0 {
		add(registry.TagMicrocontent)
	}
	add(registry.TagCanonical)
	return out
}

/*──────────────────────────── reads ───────────────────────────────────────*/

// GetProfile returns the merged profile for slug.
func (s *Service) GetProfile(ctx context.Context, slug string) (*Profile, error) {
	if !university.ValidSlug(slug) {
		return nil, apperr.NotFound("university", slug)
	}
	if raw, ok := s.get(ctx, slug, registry.TagCanonical); ok {
		if p, err := decodeProfile(s.reg, raw); err == nil {
			return p, nil
		}
		s.log.Warn("discarding undecodable profile", zap.String("slug", slug))
	}

	v, err, _ := s.sfg.Do(slug, func() (any, error) {
		return s.rebuild(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}

// GetPartition returns one tag's slice of the profile.  The canonical tag
// is served by GetProfile.
func (s *Service) GetPartition(ctx context.Context, slug string, tag registry.Tag) (*Partition, error) {
	if tag == registry.TagCanonical {
		p, err := s.GetProfile(ctx, slug)
		if err != nil {
			return nil, err
		}
		return &Partition{Tag: tag, Meta: &p.University.Meta, Fields: p.University.Fields, Blocks: p.Blocks}, nil
	}
	if !knownTag(tag) {
		return nil, apperr.Invalid("tag", fmt.Sprintf("unknown partition %q", tag))
	}
	if !university.ValidSlug(slug) {
		return nil, apperr.NotFound("university", slug)
	}

	if raw, ok := s.get(ctx, slug, tag); ok {
		if p, err := decodePartition(s.reg, raw); err == nil {
			return p, nil
		}
	}

	v, err, _ := s.sfg.Do(slug+"|"+string(tag), func() (any, error) {
		gen := s.generation(slug)
		rec, blocks, err := s.load(ctx, slug, tag == registry.TagMicrocontent)
		if err != nil {
			return nil, err
		}
		part := partitionOf(s.reg, assemble(s.reg, rec, blocks), tag)
		s.put(ctx, slug, tag, part, gen)
		return part, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Partition), nil
}

// rebuild loads the profile from the database, refreshes every partition,
// and caches the assembled result.
func (s *Service) rebuild(ctx context.Context, slug string) (*Profile, error) {
	gen := s.generation(slug)
	rec, blocks, err := s.load(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	p := assemble(s.reg, rec, blocks)

	for _, tag := range registry.AllTags() {
		if tag == registry.TagCanonical {
			continue
		}
		s.put(ctx, slug, tag, partitionOf(s.reg, p, tag), gen)
	}
	s.put(ctx, slug, registry.TagCanonical, p, gen)
	return p, nil
}

// load reads the university row and, when withBlocks, its active blocks in
// parallel.
func (s *Service) load(ctx context.Context, slug string, withBlocks bool) (*university.Record, []block.Block, error) {
	var (
		rec    *university.Record
		blocks []block.Block
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rec, err = s.unis.BySlug(gctx, slug)
		return err
	})
	if withBlocks {
		g.Go(func() error {
			var err error
			blocks, err = s.blocks.ActiveByUniversitySlug(gctx, slug)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return rec, blocks, nil
}

/*──────────────────────────── invalidation ────────────────────────────────*/

// Invalidate drops the partitions implicated by changed and returns the
// tags it targeted.
func (s *Service) Invalidate(ctx context.Context, slug string, changed []registry.Field) []registry.Tag {
	tags := TagsFor(s.reg, changed)
	s.drop(ctx, slug, tags)
	return tags
}

// InvalidateMany drops every partition of each slug.
func (s *Service) InvalidateMany(ctx context.Context, slugs []string) {
	for _, slug := range slugs {
		s.drop(ctx, slug, registry.AllTags())
	}
}

func (s *Service) drop(ctx context.Context, slug string, tags []registry.Tag) {
	s.counter(slug).Add(1)
	keys := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = Key(slug, t)
	}
	if err := s.kv.Del(ctx, keys...); err != nil {
		s.degraded("del", slug, err)
		return
	}
	for _, t := range tags {
		metrics.PartitionsInvalidated.WithLabelValues(string(t)).Inc()
	}
	s.log.Debug("profile partitions invalidated",
		zap.String("slug", slug), zap.Strings("keys", keys))
}

/*──────────────────────────── backend ─────────────────────────────────────*/

func (s *Service) get(ctx context.Context, slug string, tag registry.Tag) ([]byte, bool) {
	raw, err := s.kv.Get(ctx, Key(slug, tag))
	switch {
	case err == nil:
		metrics.ProfileCacheHits.WithLabelValues(string(tag)).Inc()
		return raw, true
	case !errors.Is(err, ErrCacheMiss):
		s.degraded("get", slug, err)
	}
	metrics.ProfileCacheMisses.WithLabelValues(string(tag)).Inc()
	return nil, false
}

// put stores v unless slug was invalidated after gen was read.
func (s *Service) put(ctx context.Context, slug string, tag registry.Tag, v any, gen uint64) {
	if s.generation(slug) != gen {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Error("profile encode failed", zap.String("slug", slug), zap.Error(err))
		return
	}
	key := Key(slug, tag)
	if err := s.kv.Set(ctx, key, raw, s.ttl); err != nil {
		s.degraded("set", slug, err)
		return
	}
	if s.generation(slug) != gen {
		if err := s.kv.Del(ctx, key); err != nil {
			s.degraded("del", slug, err)
		}
	}
}

func (s *Service) counter(slug string) *atomic.Uint64 {
	c, _ := s.gens.LoadOrStore(slug, new(atomic.Uint64))
	return c.(*atomic.Uint64)
}

func (s *Service) generation(slug string) uint64 { return s.counter(slug).Load() }

func (s *Service) degraded(op, slug string, err error) {
	metrics.CacheBackendErrors.WithLabelValues(op).Inc()
	s.log.Warn("profile cache degraded, treating as miss",
		zap.String("op", op), zap.String("slug", slug),
		zap.Error(apperr.Degraded("profile cache", err)))
}

func knownTag(t registry.Tag) bool {
	for _, k := range registry.AllTags() {
		if k == t {
			return true
		}
	}
	return false
}
