package profile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/block"
	"github.com/yanizio/uniprofile/internal/registry"
	"github.com/yanizio/uniprofile/internal/university"
)

/*──────────────────────────── fakes ───────────────────────────────────────*/

type fakeSource struct {
	mu         sync.Mutex
	rec        *university.Record
	blocks     []block.Block
	uniLoads   atomic.Int32
	blockLoads atomic.Int32
	afterRead  func() // runs once, after BySlug has read the row
}

func (f *fakeSource) BySlug(_ context.Context, slug string) (*university.Record, error) {
	f.uniLoads.Add(1)
	f.mu.Lock()
	if f.rec == nil || f.rec.Slug != slug {
		f.mu.Unlock()
		return nil, apperr.NotFound("university", slug)
	}
	cp := *f.rec
	hook := f.afterRead
	f.afterRead = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return &cp, nil
}

func (f *fakeSource) ActiveByUniversitySlug(_ context.Context, slug string) ([]block.Block, error) {
	f.blockLoads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]block.Block(nil), f.blocks...), nil
}

func (f *fakeSource) setBlocks(bs ...block.Block) {
	f.mu.Lock()
	f.blocks = bs
	f.mu.Unlock()
}

func (f *fakeSource) setTuition(v int64) {
	f.mu.Lock()
	f.rec.TuitionOutState = &v
	f.mu.Unlock()
}

type brokenKV struct{}

var errDown = errors.New("connection refused")

func (brokenKV) Get(context.Context, string) ([]byte, error)              { return nil, errDown }
func (brokenKV) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (brokenKV) Del(context.Context, ...string) error                     { return errDown }

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func newFixture(t *testing.T) (*Service, *fakeSource, *MemoryStore) {
	t.Helper()
	src := &fakeSource{
		rec: &university.Record{
			ID: 1, Slug: "rice", Name: "Rice University",
			AcceptanceRate: f64(0.09), AvgSatScore: i64(1540),
			TuitionOutState: i64(58000), Region: strPtr("TX"),
		},
		blocks: []block.Block{
			{ID: 10, UniversityID: 1, BlockType: "rich_text", Title: "Intro", RawData: []byte(`{"body":"hi"}`), Priority: 1, IsActive: true},
		},
	}
	kv := NewMemoryStore(100, time.Hour)
	t.Cleanup(kv.Close)
	return NewService(registry.MustDefault(), kv, src, src, time.Minute, nil), src, kv
}

func strPtr(s string) *string { return &s }

func present(t *testing.T, kv KVStore, key string) bool {
	t.Helper()
	_, err := kv.Get(context.Background(), key)
	if errors.Is(err, ErrCacheMiss) {
		return false
	}
	require.NoError(t, err)
	return true
}

/*──────────────────────────── tags ────────────────────────────────────────*/

func TestTagsFor(t *testing.T) {
	reg := registry.MustDefault()

	assert.Equal(t,
		[]registry.Tag{registry.TagMicrocontent, registry.TagCanonical},
		TagsFor(reg, nil))

	assert.Equal(t,
		[]registry.Tag{registry.TagAdmissions, registry.TagCanonical},
		TagsFor(reg, []registry.Field{registry.FieldAcceptanceRate, registry.FieldAvgSatScore}))

	assert.ElementsMatch(t,
		[]registry.Tag{registry.TagCost, registry.TagLocation, registry.TagCanonical},
		TagsFor(reg, []registry.Field{registry.FieldTuitionOutState, registry.FieldLatitude}))
}

/*──────────────────────────── reads ───────────────────────────────────────*/

func TestGetProfileCachesAssembledProfile(t *testing.T) {
	svc, src, _ := newFixture(t)
	ctx := context.Background()

	p, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, "rice", p.University.Slug)
	assert.Equal(t, int64(58000), p.University.Fields[registry.FieldTuitionOutState].Any())
	assert.Equal(t, "Rice University", p.University.Fields[registry.FieldName].Str)
	require.Len(t, p.Blocks, 1)

	again, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, p.University.Fields, again.University.Fields)
	assert.Equal(t, int32(1), src.uniLoads.Load())
	assert.Equal(t, int32(1), src.blockLoads.Load())
}

func TestCostWriteLeavesAdmissionsWarm(t *testing.T) {
	svc, _, kv := newFixture(t)
	ctx := context.Background()

	_, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)
	require.True(t, present(t, kv, Key("rice", registry.TagAdmissions)))

	tags := svc.Invalidate(ctx, "rice", []registry.Field{registry.FieldTuitionOutState})
	assert.Equal(t, []registry.Tag{registry.TagCost, registry.TagCanonical}, tags)

	assert.False(t, present(t, kv, Key("rice", registry.TagCost)))
	assert.False(t, present(t, kv, Key("rice", registry.TagCanonical)))
	for _, warm := range []registry.Tag{
		registry.TagAdmissions, registry.TagIdentity, registry.TagLocation,
		registry.TagOutcomes, registry.TagResearch, registry.TagMicrocontent,
	} {
		assert.True(t, present(t, kv, Key("rice", warm)), "%s should stay warm", warm)
	}

	part, err := svc.GetPartition(ctx, "rice", registry.TagAdmissions)
	require.NoError(t, err)
	assert.Equal(t, 0.09, part.Fields[registry.FieldAcceptanceRate].Num)
	assert.Equal(t, int64(1540), part.Fields[registry.FieldAvgSatScore].Any())
}

func TestSoftChangeInvalidatesMicrocontentOnly(t *testing.T) {
	svc, _, kv := newFixture(t)
	ctx := context.Background()
	_, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)

	svc.Invalidate(ctx, "rice", nil)
	assert.False(t, present(t, kv, Key("rice", registry.TagMicrocontent)))
	assert.False(t, present(t, kv, Key("rice", registry.TagCanonical)))
	assert.True(t, present(t, kv, Key("rice", registry.TagCost)))
}

func TestLiveWriteVisibleOnNextRead(t *testing.T) {
	svc, src, _ := newFixture(t)
	ctx := context.Background()

	before, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)

	src.setTuition(61000)
	svc.Invalidate(ctx, "rice", []registry.Field{registry.FieldTuitionOutState})

	after, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, int64(58000), before.University.Fields[registry.FieldTuitionOutState].Any())
	assert.Equal(t, int64(61000), after.University.Fields[registry.FieldTuitionOutState].Any())
}

func TestColdPartitionRebuildsAlone(t *testing.T) {
	svc, src, kv := newFixture(t)
	ctx := context.Background()

	part, err := svc.GetPartition(ctx, "rice", registry.TagLocation)
	require.NoError(t, err)
	assert.Equal(t, "TX", part.Fields[registry.FieldRegion].Str)
	assert.Equal(t, int32(1), src.uniLoads.Load())
	assert.Equal(t, int32(0), src.blockLoads.Load(), "scalar partitions never read blocks")

	assert.True(t, present(t, kv, Key("rice", registry.TagLocation)))
	assert.False(t, present(t, kv, Key("rice", registry.TagCanonical)))

	ident, err := svc.GetPartition(ctx, "rice", registry.TagIdentity)
	require.NoError(t, err)
	require.NotNil(t, ident.Meta)
	assert.Equal(t, uint64(1), ident.Meta.ID)
	assert.False(t, ident.Meta.Claimed)
}

func TestUnknownSlugIsNotFound(t *testing.T) {
	svc, _, kv := newFixture(t)

	_, err := svc.GetProfile(context.Background(), "nowhere")
	assert.True(t, apperr.IsNotFound(err))
	assert.False(t, present(t, kv, Key("nowhere", registry.TagCanonical)))
}

func TestMalformedSlugNeverLoads(t *testing.T) {
	svc, src, _ := newFixture(t)

	_, err := svc.GetProfile(context.Background(), "rice:canonical")
	assert.True(t, apperr.IsNotFound(err))
	_, err = svc.GetPartition(context.Background(), "Rice", registry.TagCost)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, int32(0), src.uniLoads.Load())
}

func TestBackendOutageDegradesToMiss(t *testing.T) {
	_, src, _ := newFixture(t)
	svc := NewService(registry.MustDefault(), brokenKV{}, src, src, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		p, err := svc.GetProfile(ctx, "rice")
		require.NoError(t, err)
		assert.Equal(t, "rice", p.University.Slug)
	}
	assert.Equal(t, int32(2), src.uniLoads.Load())

	tags := svc.Invalidate(ctx, "rice", []registry.Field{registry.FieldRegion})
	assert.Equal(t, []registry.Tag{registry.TagLocation, registry.TagCanonical}, tags)
}

func TestInvalidateManyDropsEverything(t *testing.T) {
	svc, _, kv := newFixture(t)
	ctx := context.Background()
	_, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)

	svc.InvalidateMany(ctx, []string{"rice"})
	for _, tag := range registry.AllTags() {
		assert.False(t, present(t, kv, Key("rice", tag)))
	}
}

func TestGetPartitionMicrocontentAndUnknownTag(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	part, err := svc.GetPartition(ctx, "rice", registry.TagMicrocontent)
	require.NoError(t, err)
	require.Len(t, part.Blocks, 1)
	assert.Equal(t, "Intro", part.Blocks[0].Title)

	_, err = svc.GetPartition(ctx, "rice", registry.Tag("bogus"))
	assert.True(t, apperr.IsValidation(err))
}

func TestMicrocontentHoldsSoftBlocksOnly(t *testing.T) {
	svc, src, _ := newFixture(t)
	ctx := context.Background()
	intro := src.blocks[0]
	costs := block.Block{ID: 11, UniversityID: 1, BlockType: "cost_breakdown", RawData: []byte(`{"fees":1}`),
		IsCanonical: true, IsActive: true}
	src.setBlocks(intro, costs)

	_, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)

	costs.RawData = []byte(`{"fees":2}`)
	src.setBlocks(intro, costs)
	src.setTuition(61000)
	svc.Invalidate(ctx, "rice", []registry.Field{registry.FieldTuitionOutState})

	part, err := svc.GetPartition(ctx, "rice", registry.TagMicrocontent)
	require.NoError(t, err)
	require.Len(t, part.Blocks, 1)
	assert.Equal(t, uint64(10), part.Blocks[0].ID)

	p, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)
	require.Len(t, p.Blocks, 2)
	assert.JSONEq(t, `{"fees":2}`, string(p.Blocks[1].RawData))
}

func TestInvalidationDuringRebuildIsNotCached(t *testing.T) {
	svc, src, kv := newFixture(t)
	ctx := context.Background()

	src.afterRead = func() {
		src.setTuition(61000)
		svc.Invalidate(ctx, "rice", []registry.Field{registry.FieldTuitionOutState})
	}
	stale, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, int64(58000), stale.University.Fields[registry.FieldTuitionOutState].Any())
	assert.False(t, present(t, kv, Key("rice", registry.TagCanonical)))
	assert.False(t, present(t, kv, Key("rice", registry.TagCost)))

	fresh, err := svc.GetProfile(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, int64(61000), fresh.University.Fields[registry.FieldTuitionOutState].Any())
	assert.True(t, present(t, kv, Key("rice", registry.TagCanonical)))
}

/*──────────────────────────── backends ────────────────────────────────────*/

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	_, err := kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, kv.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, kv.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, kv.Del(ctx, "a", "missing"))
	assert.False(t, mr.Exists("a"))
	require.NoError(t, kv.Del(ctx))
}

func TestMemoryStoreSweep(t *testing.T) {
	kv := NewMemoryStore(10, time.Hour)
	defer kv.Close()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "short", []byte("x"), time.Millisecond))
	require.NoError(t, kv.Set(ctx, "long", []byte("y"), time.Hour))

	assert.Equal(t, 1, kv.sweep(time.Now().Add(time.Second)))
	_, err := kv.Get(ctx, "long")
	assert.NoError(t, err)
}
