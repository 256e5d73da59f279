// internal/university/store_test.go
//
// Unit-tests for the university store using sqlmock.
//
// Run: go test ./internal/university -v

package university

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/registry"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "mysql")), mock
}

func TestBySlugScansNullableColumns(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM university WHERE slug = ? LIMIT 1`)).
		WithArgs("mit").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "slug", "name", "acceptance_rate", "acceptance_rate_draft", "tuition_in_state",
		}).AddRow(7, "mit", "Massachusetts Institute of Technology", 0.04, nil, 60000))

	rec, err := s.BySlug(context.Background(), "mit")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.ID)

	reg := registry.MustDefault()
	acc, _ := reg.Spec(registry.FieldAcceptanceRate)
	v, ok := rec.Live(acc)
	require.True(t, ok)
	assert.Equal(t, 0.04, v.Num)

	_, ok = rec.Draft(acc)
	assert.False(t, ok, "NULL draft column must read as absent")

	snap := rec.Snapshot(reg)
	assert.Equal(t, int64(60000), snap[registry.FieldTuitionInState].Any())
	assert.Equal(t, "Massachusetts Institute of Technology", snap[registry.FieldName].Str)
	assert.NotContains(t, snap, registry.FieldGraduationRate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestByIDNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM university WHERE id = ? LIMIT 1`)).
		WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.ByID(context.Background(), 99)
	assert.True(t, apperr.IsNotFound(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyWriteIsOneStatement(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE university SET acceptance_rate_draft = ?, avg_sat_score = ?, gpa_25 = ?, ` +
			`updated_at = CURRENT_TIMESTAMP WHERE id = ?`)).
		WithArgs(0.15, int64(1400), 3.7, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.ApplyWrite(context.Background(), 7, Write{
		"gpa_25":                registry.Float(3.7),
		"acceptance_rate_draft": registry.Float(0.15),
		"avg_sat_score":         registry.Int(1400),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyWriteEmptyIsNoop(t *testing.T) {
	s, mock := newMock(t)
	require.NoError(t, s.ApplyWrite(context.Background(), 7, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyWriteUnchangedRowSucceeds(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE university SET acceptance_rate_draft = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)).
		WithArgs(0.15, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.ApplyWrite(context.Background(), 7, Write{"acceptance_rate_draft": registry.Float(0.15)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoteAndClearDraft(t *testing.T) {
	s, mock := newMock(t)
	reg := registry.MustDefault()
	fs, _ := reg.Spec(registry.FieldTuitionOutState)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE university SET tuition_out_state = tuition_out_state_draft, ` +
			`tuition_out_state_draft = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)).
		WithArgs(uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE university SET tuition_out_state_draft = NULL WHERE id = ?`)).
		WithArgs(uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.PromoteDraft(context.Background(), 3, fs))
	require.NoError(t, s.ClearDraft(context.Background(), 3, fs))

	live, _ := reg.Spec(registry.FieldRegion)
	assert.Error(t, s.PromoteDraft(context.Background(), 3, live))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlugsByIDs(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, slug FROM university WHERE id IN (?, ?)`)).
		WithArgs(uint64(1), uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug"}).AddRow(1, "mit").AddRow(2, "yale"))

	got, err := s.SlugsByIDs(context.Background(), []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]string{1: "mit", 2: "yale"}, got)
}
