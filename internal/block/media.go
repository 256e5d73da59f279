// internal/block/media.go
//
// Media reference resolution.
//
// Context
// -------
// Image, video, and gallery blocks may reference an uploaded asset by
// `mediaId` instead of embedding a URL.  Before a block is stored the
// resolver looks each id up and writes the public URL next to it as
// `mediaUrl`.  The payload is edited in place with gjson/sjson so unknown
// keys survive untouched.
//
// Notes
// -----
//   - Checked paths: top-level `mediaId` and `items.#.mediaId`.
//   - An unknown id or a lookup failure removes `mediaUrl` for that entry
//     and never fails the write.
package block

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// MediaResolver maps an uploaded asset id to its public URL.  ok is false
// when the asset does not exist.
type MediaResolver interface {
	URLFor(ctx context.Context, mediaID string) (url string, ok bool, err error)
}

// SQLMedia resolves ids against the `media_asset` table.
type SQLMedia struct {
	db *sqlx.DB
}

// NewSQLMedia wraps an open handle.
func NewSQLMedia(db *sqlx.DB) *SQLMedia { return &SQLMedia{db: db} }

func (m *SQLMedia) URLFor(ctx context.Context, mediaID string) (string, bool, error) {
	const q = `SELECT url FROM media_asset WHERE id = ? AND deleted_at IS NULL LIMIT 1`
	var url string
	err := m.db.GetContext(ctx, &url, q, mediaID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return url, true, nil
}

// resolveMedia returns raw with every media reference resolved.
func resolveMedia(ctx context.Context, m MediaResolver, log *zap.Logger, raw []byte) []byte {
	if m == nil || len(raw) == 0 || !gjson.ValidBytes(raw) {
		return raw
	}

	out := raw
	if id := gjson.GetBytes(out, "mediaId"); id.Exists() {
		out = setURL(ctx, m, log, out, "", id.String())
	}
	items := gjson.GetBytes(out, "items")
	if items.IsArray() {
		i := 0
		items.ForEach(func(_, item gjson.Result) bool {
			if id := item.Get("mediaId"); id.Exists() {
				out = setURL(ctx, m, log, out, fmt.Sprintf("items.%d.", i), id.String())
			}
			i++
			return true
		})
	}
	return out
}

func setURL(ctx context.Context, m MediaResolver, log *zap.Logger, raw []byte, prefix, id string) []byte {
	path := prefix + "mediaUrl"

	url, ok, err := m.URLFor(ctx, id)
	if err != nil {
		log.Warn("media lookup failed", zap.String("media_id", id), zap.Error(err))
	}
	if err != nil || !ok {
		if cleared, derr := sjson.DeleteBytes(raw, path); derr == nil {
			return cleared
		}
		return raw
	}

	updated, err := sjson.SetBytes(raw, path, url)
	if err != nil {
		return raw
	}
	return updated
}
