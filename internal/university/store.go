// internal/university/store.go
//
// University persistence.
//
// Context
// -------
// The coordinator needs exactly two round trips per canonical block save:
// one read of the current row and one batched UPDATE covering every live
// and draft column the save touched.  The approval workflow adds two more
// single-statement helpers: promote a draft into its live column and clear
// a rejected draft.
//
// Notes
// -----
//   - Column names come from the Field Registry, never from request input.
//   - ApplyWrite sorts its SET list so the generated SQL is stable.
//   - sql.ErrNoRows is translated into *apperr.NotFoundError.
package university

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/registry"
)

const columns = `
        id, slug, name, short_name, website, city, state, country,
        owner_id, claimed_at, updated_at,
        acceptance_rate, acceptance_rate_draft,
        avg_sat_score, avg_sat_score_draft, avg_act_score, avg_act_score_draft,
        gpa_25, gpa_75, sat_percentile_25, sat_percentile_75,
        tuition_in_state, tuition_in_state_draft,
        tuition_out_state, tuition_out_state_draft,
        tuition_international, tuition_international_draft,
        room_and_board, cost_of_living, cost_of_living_draft,
        latitude, longitude, climate_zone, nearest_airport, region,
        graduation_rate, graduation_rate_draft, retention_rate,
        employment_rate, employment_rate_draft,
        avg_starting_salary, avg_starting_salary_draft, roi,
        research_expenditure, research_rank`

// Store reads and writes the `university` table.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open handle.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// ByID fetches one university by primary key.
func (s *Store) ByID(ctx context.Context, id uint64) (*Record, error) {
	q := `SELECT ` + columns + ` FROM university WHERE id = ? LIMIT 1`
	var rec Record
	if err := s.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("university", id)
		}
		return nil, fmt.Errorf("university by id: %w", err)
	}
	return &rec, nil
}

// BySlug fetches one university by its public slug.
func (s *Store) BySlug(ctx context.Context, slug string) (*Record, error) {
	q := `SELECT ` + columns + ` FROM university WHERE slug = ? LIMIT 1`
	var rec Record
	if err := s.db.GetContext(ctx, &rec, q, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("university", slug)
		}
		return nil, fmt.Errorf("university by slug: %w", err)
	}
	return &rec, nil
}

// SlugsByIDs maps university ids to slugs.  Unknown ids are absent from
// the result.
func (s *Store) SlugsByIDs(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT id, slug FROM university WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID   uint64 `db:"id"`
		Slug string `db:"slug"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("university slugs: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r.Slug
	}
	return out, nil
}

// Write is one batched column update keyed by column name.
type Write map[string]registry.Value

// ApplyWrite issues a single UPDATE for every column in w.  An empty write
// is a no-op.  The caller has already resolved the row, so an unchanged row
// is success.
func (s *Store) ApplyWrite(ctx context.Context, id uint64, w Write) error {
	if len(w) == 0 {
		return nil
	}
	cols := make([]string, 0, len(w))
	for c := range w {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
		args = append(args, w[c].Any())
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	q := `UPDATE university SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	// Zero affected rows means the values were already stored.
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("university write: %w", err)
	}
	return nil
}

// PromoteDraft copies a staged field's draft into its live column and
// clears the draft, in one statement.
func (s *Store) PromoteDraft(ctx context.Context, id uint64, fs registry.FieldSpec) error {
	if !fs.Staged {
		return fmt.Errorf("field %s is not staged", fs.Name)
	}
	q := `UPDATE university SET ` + fs.Column + ` = ` + fs.DraftColumn + `, ` +
		fs.DraftColumn + ` = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("promote %s: %w", fs.Name, err)
	}
	return nil
}

// ClearDraft discards a staged field's pending value.
func (s *Store) ClearDraft(ctx context.Context, id uint64, fs registry.FieldSpec) error {
	if !fs.Staged {
		return fmt.Errorf("field %s is not staged", fs.Name)
	}
	q := `UPDATE university SET ` + fs.DraftColumn + ` = NULL WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("clear draft %s: %w", fs.Name, err)
	}
	return nil
}
