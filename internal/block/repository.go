// internal/block/repository.go
//
// SQL helpers for `content_block` and `block_template`.
//
// Context
// -------
//	content_block  (id PK, university_id, block_type, title, raw_data JSON,
//	                priority, is_active, is_canonical, canonical_mapping NULL,
//	                template_id NULL, created_at, updated_at,
//	                UNIQUE (university_id, canonical_mapping))
//	block_template (id PK, name, block_type, data JSON)
//
// The unique key lets a canonical save be a single INSERT … ON DUPLICATE
// KEY UPDATE; soft blocks keep canonical_mapping NULL so the key never
// collides for them.
//
// Notes
// -----
//   - Multi-row inserts run in one transaction; either every copy lands or
//     none does.
//   - IN lists are expanded with sqlx.In.
package block

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/uniprofile/internal/apperr"
)

const blockColumns = `id, university_id, block_type, title, raw_data, priority,
        is_active, is_canonical, canonical_mapping, template_id,
        created_at, updated_at`

const insertBlock = `
        INSERT INTO content_block
               (university_id, block_type, title, raw_data, priority,
                is_active, is_canonical, canonical_mapping, template_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Repository is the thin SQL layer under Store.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps an open handle.
func NewRepository(db *sqlx.DB) *Repository { return &Repository{db: db} }

// ByID fetches one block.
func (r *Repository) ByID(ctx context.Context, id uint64) (*Block, error) {
	q := `SELECT ` + blockColumns + ` FROM content_block WHERE id = ? LIMIT 1`
	var b Block
	if err := r.db.GetContext(ctx, &b, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("block", id)
		}
		return nil, fmt.Errorf("block by id: %w", err)
	}
	return &b, nil
}

// ByIDs fetches every listed block that exists.
func (r *Repository) ByIDs(ctx context.Context, ids []uint64) ([]Block, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT `+blockColumns+` FROM content_block WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []Block
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("blocks by id: %w", err)
	}
	return rows, nil
}

// ActiveByUniversity returns the display-ordered active blocks of one
// university.
func (r *Repository) ActiveByUniversity(ctx context.Context, universityID uint64) ([]Block, error) {
	q := `SELECT ` + blockColumns + `
        FROM   content_block
        WHERE  university_id = ? AND is_active = TRUE
        ORDER  BY priority ASC, id ASC`
	rows := []Block{}
	if err := r.db.SelectContext(ctx, &rows, q, universityID); err != nil {
		return nil, fmt.Errorf("active blocks: %w", err)
	}
	return rows, nil
}

// ActiveByUniversitySlug is ActiveByUniversity keyed by slug, so it can run
// alongside the university lookup.
func (r *Repository) ActiveByUniversitySlug(ctx context.Context, slug string) ([]Block, error) {
	const q = `
        SELECT cb.id, cb.university_id, cb.block_type, cb.title, cb.raw_data,
               cb.priority, cb.is_active, cb.is_canonical, cb.canonical_mapping,
               cb.template_id, cb.created_at, cb.updated_at
        FROM   content_block cb
        JOIN   university u ON u.id = cb.university_id
        WHERE  u.slug = ? AND cb.is_active = TRUE
        ORDER  BY cb.priority ASC, cb.id ASC`
	rows := []Block{}
	if err := r.db.SelectContext(ctx, &rows, q, slug); err != nil {
		return nil, fmt.Errorf("active blocks of %s: %w", slug, err)
	}
	return rows, nil
}

// Insert stores b and fills in its id and timestamps.
func (r *Repository) Insert(ctx context.Context, b *Block) error {
	res, err := r.db.ExecContext(ctx, insertBlock, insertArgs(b)...)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return stamp(b, res)
}

// Update rewrites the mutable columns of a soft block.
func (r *Repository) Update(ctx context.Context, b *Block) error {
	const q = `
        UPDATE content_block
           SET title = ?, raw_data = ?, priority = ?, is_active = ?,
               updated_at = CURRENT_TIMESTAMP
         WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, q, b.Title, []byte(b.RawData), b.Priority, b.IsActive, b.ID); err != nil {
		return fmt.Errorf("update block %d: %w", b.ID, err)
	}
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// UpsertCanonical saves the one canonical block of b.BlockType for
// b.UniversityID and returns the stored row.
func (r *Repository) UpsertCanonical(ctx context.Context, b Block) (*Block, error) {
	const q = `
        INSERT INTO content_block
               (university_id, block_type, title, raw_data, priority,
                is_active, is_canonical, canonical_mapping, template_id)
        VALUES (?, ?, ?, ?, ?, TRUE, TRUE, ?, NULL)
        ON DUPLICATE KEY UPDATE
               title = VALUES(title), raw_data = VALUES(raw_data),
               priority = VALUES(priority), is_active = TRUE,
               updated_at = CURRENT_TIMESTAMP`
	if _, err := r.db.ExecContext(ctx, q,
		b.UniversityID, b.BlockType, b.Title, []byte(b.RawData), b.Priority, b.BlockType); err != nil {
		return nil, fmt.Errorf("upsert canonical %s: %w", b.BlockType, err)
	}

	sel := `SELECT ` + blockColumns + `
        FROM content_block
        WHERE university_id = ? AND canonical_mapping = ? LIMIT 1`
	var out Block
	if err := r.db.GetContext(ctx, &out, sel, b.UniversityID, b.BlockType); err != nil {
		return nil, fmt.Errorf("reload canonical %s: %w", b.BlockType, err)
	}
	return &out, nil
}

// InsertMany stores every block in one transaction.
func (r *Repository) InsertMany(ctx context.Context, blocks []Block) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i := range blocks {
		res, err := tx.ExecContext(ctx, insertBlock, insertArgs(&blocks[i])...)
		if err != nil {
			return fmt.Errorf("insert copy %d: %w", i, err)
		}
		if err := stamp(&blocks[i], res); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteByIDs removes the listed rows in one statement.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`DELETE FROM content_block WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("delete blocks: %w", err)
	}
	return res.RowsAffected()
}

// TemplateByID fetches one block template.
func (r *Repository) TemplateByID(ctx context.Context, id uint64) (*Template, error) {
	const q = `SELECT id, name, block_type, data FROM block_template WHERE id = ? LIMIT 1`
	var t Template
	if err := r.db.GetContext(ctx, &t, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("template", id)
		}
		return nil, fmt.Errorf("template by id: %w", err)
	}
	return &t, nil
}

func insertArgs(b *Block) []any {
	return []any{
		b.UniversityID, b.BlockType, b.Title, []byte(b.RawData), b.Priority,
		b.IsActive, b.IsCanonical, b.CanonicalMapping, b.TemplateID,
	}
}

func stamp(b *Block, res sql.Result) error {
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	b.ID = uint64(id)
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}
