// internal/block/store_test.go
//
// Block store rules against a sqlmock database.
//
// Run: go test ./internal/block -v

package block

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/registry"
)

/*──────────────────────────── fakes ───────────────────────────────────────*/

type fakeCache struct {
	mu    sync.Mutex
	slugs []string
}

func (f *fakeCache) Invalidate(_ context.Context, slug string, changed []registry.Field) []registry.Tag {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slugs = append(f.slugs, slug)
	return []registry.Tag{registry.TagMicrocontent, registry.TagCanonical}
}

type fakeSlugs map[uint64]string

func (f fakeSlugs) SlugsByIDs(_ context.Context, ids []uint64) (map[uint64]string, error) {
	out := map[uint64]string{}
	for _, id := range ids {
		if s, ok := f[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeMedia map[string]string

func (f fakeMedia) URLFor(_ context.Context, id string) (string, bool, error) {
	if id == "broken" {
		return "", false, errors.New("storage offline")
	}
	u, ok := f[id]
	return u, ok, nil
}

// jsonArg matches a raw_data argument whose gjson path equals want.
type jsonArg struct{ path, want string }

func (a jsonArg) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	return ok && gjson.GetBytes(b, a.path).String() == a.want
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

var cols = []string{
	"id", "university_id", "block_type", "title", "raw_data", "priority",
	"is_active", "is_canonical", "canonical_mapping", "template_id",
	"created_at", "updated_at",
}

func row(rows *sqlmock.Rows, id, uni uint64, typ string, canonical bool) *sqlmock.Rows {
	var mapping any
	if canonical {
		mapping = typ
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return rows.AddRow(id, uni, typ, "Block "+typ, []byte(`{"body":"hello"}`), 10,
		true, canonical, mapping, nil, now, now)
}

func newStore(t *testing.T, media MediaResolver) (*Store, sqlmock.Sqlmock, *fakeCache) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cache := &fakeCache{}
	unis := fakeSlugs{1: "mit", 2: "yale", 3: "rice"}
	s := NewStore(NewRepository(sqlx.NewDb(db, "mysql")), registry.MustDefault(), unis, cache, media, nil)
	return s, mock, cache
}

/*──────────────────────────── upsert ──────────────────────────────────────*/

func TestUpsertRejectsHardType(t *testing.T) {
	s, mock, cache := newStore(t, nil)

	_, err := s.Upsert(context.Background(), UpsertInput{
		BlockType: registry.BlockCost, UniversityID: 1, RawData: json.RawMessage(`{}`),
	})
	var pe *apperr.PermissionError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, cache.slugs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSeedsFromTemplate(t *testing.T) {
	s, mock, cache := newStore(t, fakeMedia{"m-1": "https://cdn.example/m-1.jpg"})

	mock.ExpectQuery(regexp.QuoteMeta(`FROM block_template WHERE id = ?`)).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "block_type", "data"}).
			AddRow(4, "Campus photo", "image", []byte(`{"caption":"Default","mediaId":"m-1"}`)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO content_block`)).
		WithArgs(uint64(1), "image", "Campus photo",
			jsonArg{"caption", "Spring quad"}, 0, true, false, nil, uint64(4)).
		WillReturnResult(sqlmock.NewResult(41, 1))

	tmpl := uint64(4)
	b, err := s.Upsert(context.Background(), UpsertInput{
		UniversityID: 1,
		RawData:      json.RawMessage(`{"caption":"Spring quad"}`),
		TemplateID:   &tmpl,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(41), b.ID)
	assert.Equal(t, "image", b.BlockType)
	assert.Equal(t, "Campus photo", b.Title)
	assert.Equal(t, "https://cdn.example/m-1.jpg", gjson.GetBytes(b.RawData, "mediaUrl").String())
	assert.Equal(t, "Spring quad", gjson.GetBytes(b.RawData, "caption").String())
	assert.Equal(t, []string{"mit"}, cache.slugs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUpdatesExistingSoftBlock(t *testing.T) {
	s, mock, cache := newStore(t, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM content_block WHERE id = ? LIMIT 1`)).
		WithArgs(uint64(9)).
		WillReturnRows(row(sqlmock.NewRows(cols), 9, 2, "rich_text", false))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE content_block SET title = ?, raw_data = ?, priority = ?, is_active = ?`)).
		WithArgs("Block rich_text", jsonArg{"body", "updated"}, 3, false, uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, off := uint64(9), false
	b, err := s.Upsert(context.Background(), UpsertInput{
		BlockType: "rich_text", UniversityID: 2, Priority: 3,
		RawData: json.RawMessage(`{"body":"updated"}`), ExistingID: &id, Active: &off,
	})
	require.NoError(t, err)
	assert.False(t, b.IsActive)
	assert.Equal(t, []string{"yale"}, cache.slugs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*──────────────────────────── duplicate ───────────────────────────────────*/

func TestDuplicateRejectsCanonicalSource(t *testing.T) {
	s, mock, cache := newStore(t, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM content_block WHERE id = ? LIMIT 1`)).
		WithArgs(uint64(5)).
		WillReturnRows(row(sqlmock.NewRows(cols), 5, 1, registry.BlockAdmissions, true))

	_, err := s.DuplicateToUniversities(context.Background(), 5, []uint64{2, 3})
	assert.True(t, apperr.IsPermission(err))
	assert.Empty(t, cache.slugs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateCopiesSortLast(t *testing.T) {
	s, mock, cache := newStore(t, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM content_block WHERE id = ? LIMIT 1`)).
		WithArgs(uint64(6)).
		WillReturnRows(row(sqlmock.NewRows(cols), 6, 1, "rich_text", false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO content_block`)).
		WithArgs(uint64(2), "rich_text", "Copy of Block rich_text", sqlmock.AnyArg(),
			CopyPriority, true, false, nil, nil).
		WillReturnResult(sqlmock.NewResult(70, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO content_block`)).
		WithArgs(uint64(3), "rich_text", "Copy of Block rich_text", sqlmock.AnyArg(),
			CopyPriority, true, false, nil, nil).
		WillReturnResult(sqlmock.NewResult(71, 1))
	mock.ExpectCommit()

	out, err := s.DuplicateToUniversities(context.Background(), 6, []uint64{3, 2, 3})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(70), out[0].ID)
	assert.Equal(t, CopyPriority, out[1].Priority)
	assert.ElementsMatch(t, []string{"yale", "rice"}, cache.slugs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateUnknownTargetWritesNothing(t *testing.T) {
	s, mock, _ := newStore(t, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM content_block WHERE id = ? LIMIT 1`)).
		WithArgs(uint64(6)).
		WillReturnRows(row(sqlmock.NewRows(cols), 6, 1, "rich_text", false))

	_, err := s.DuplicateToUniversities(context.Background(), 6, []uint64{2, 404})
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*──────────────────────────── delete ──────────────────────────────────────*/

func TestBulkDeleteRejectsWholeBatch(t *testing.T) {
	s, mock, cache := newStore(t, nil)

	rows := sqlmock.NewRows(cols)
	row(rows, 10, 1, "rich_text", false)
	row(rows, 11, 1, registry.BlockOutcomes, true)
	row(rows, 12, 2, "video", false)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM content_block WHERE id IN (?, ?, ?)`)).
		WithArgs(uint64(10), uint64(11), uint64(12)).
		WillReturnRows(rows)

	n, err := s.BulkDelete(context.Background(), []uint64{12, 11, 10})
	var pe *apperr.PermissionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{"11"}, pe.Subjects)
	assert.Zero(t, n)
	assert.Empty(t, cache.slugs)
	// No DELETE expectation was registered; reaching one would fail here.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkDeleteInvalidatesOwners(t *testing.T) {
	s, mock, cache := newStore(t, nil)

	rows := sqlmock.NewRows(cols)
	row(rows, 10, 1, "rich_text", false)
	row(rows, 12, 2, "video", false)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM content_block WHERE id IN (?, ?)`)).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM content_block WHERE id IN (?, ?)`)).
		WithArgs(uint64(10), uint64(12)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.BulkDelete(context.Background(), []uint64{10, 12})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.ElementsMatch(t, []string{"mit", "yale"}, cache.slugs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*──────────────────────────── media ───────────────────────────────────────*/

func TestResolveMediaGallery(t *testing.T) {
	raw := []byte(`{"items":[{"mediaId":"a"},{"mediaId":"gone","mediaUrl":"stale"},{"mediaId":"broken"},{"caption":"x"}]}`)
	out := resolveMedia(context.Background(), fakeMedia{"a": "https://cdn/a.png"}, zap.NewNop(), raw)

	assert.Equal(t, "https://cdn/a.png", gjson.GetBytes(out, "items.0.mediaUrl").String())
	assert.False(t, gjson.GetBytes(out, "items.1.mediaUrl").Exists())
	assert.False(t, gjson.GetBytes(out, "items.2.mediaUrl").Exists())
	assert.Equal(t, "x", gjson.GetBytes(out, "items.3.caption").String())
}

func TestOverlayKeepsTemplateKeys(t *testing.T) {
	out := overlay(json.RawMessage(`{"a":1,"b.c":2}`), json.RawMessage(`{"b.c":3,"d":[1]}`))
	assert.JSONEq(t, `{"a":1,"b.c":3,"d":[1]}`, string(out))
}
