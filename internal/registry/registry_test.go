package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/uniprofile/internal/apperr"
)

func TestDefaultRegistryIsComplete(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	for _, bt := range r.HardBlockTypes() {
		fields := r.WritableFields(bt)
		require.NotEmpty(t, fields, bt)
		for _, f := range fields {
			tag, ok := r.CacheTag(f)
			assert.True(t, ok, "field %s has no tag", f)
			assert.NotEqual(t, TagCanonical, tag)
			assert.NotEqual(t, TagMicrocontent, tag)
		}
	}
}

func TestLookups(t *testing.T) {
	r := MustDefault()

	assert.True(t, r.IsHardBlockType(BlockCost))
	assert.False(t, r.IsHardBlockType("rich_text"))
	assert.Empty(t, r.WritableFields("rich_text"))

	assert.True(t, r.RequiresStaging(FieldAcceptanceRate))
	assert.False(t, r.RequiresStaging(FieldRoomAndBoard))
	assert.False(t, r.RequiresStaging(FieldLatitude))

	tag, ok := r.CacheTag(FieldTuitionOutState)
	require.True(t, ok)
	assert.Equal(t, TagCost, tag)

	_, ok = r.CacheTag("notAField")
	assert.False(t, ok)

	spec, ok := r.Spec(FieldAcceptanceRate)
	require.True(t, ok)
	assert.Equal(t, "acceptance_rate", spec.Column)
	assert.Equal(t, "acceptance_rate_draft", spec.DraftColumn)

	assert.True(t, r.CanWrite(BlockAdmissions, FieldAvgSatScore))
	assert.False(t, r.CanWrite(BlockAdmissions, FieldTuitionInState))
	assert.Equal(t, []Field{FieldResearchExpenditure, FieldResearchRank}, r.FieldsByTag(TagResearch))
}

func TestNewRejectsUntaggedField(t *testing.T) {
	def := Definition{
		Fields: []FieldSpec{
			{Name: "tuition", Column: "tuition", Tag: TagCost, Kind: KindInt},
			{Name: "orphan", Column: "orphan", Kind: KindInt},
		},
		Blocks: []BlockSpec{
			{Type: "cost", Domain: DomainFinancials, Fields: []Field{"tuition", "orphan", "ghost"}},
		},
	}

	_, err := New(def)
	require.Error(t, err)

	var ce *apperr.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Len(t, ce.Problems, 3)
	assert.Contains(t, err.Error(), "orphan")
	assert.Contains(t, err.Error(), "ghost")
}

func TestNewRejectsStagedFieldWithoutDraftColumn(t *testing.T) {
	_, err := New(Definition{Fields: []FieldSpec{
		{Name: "rate", Column: "rate", Tag: TagAdmissions, Staged: true},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draft column")
}

func TestNewRejectsUnknownTag(t *testing.T) {
	_, err := New(Definition{Fields: []FieldSpec{
		{Name: "x", Column: "x", Tag: TagCanonical},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tag")
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Float(0.15).Equal(Float(0.15)))
	assert.True(t, Int(12000).Equal(Float(12000)))
	assert.False(t, Int(12000).Equal(Int(12001)))
	assert.True(t, String("warm").Equal(String("warm")))
	assert.False(t, String("1").Equal(Int(1)))
	assert.Equal(t, int64(45500), Int(45500).Any())
	assert.Equal(t, "0.15", Float(0.15).String())
}
