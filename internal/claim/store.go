// internal/claim/store.go
//
// SQL-backed review queue.
//
// Context
// -------
// Each ChangeRecord becomes one row in `field_change_request`:
//
//	field_change_request (id PK, message_id CHAR(36), editor_id,
//	                      university_id, field, old_value JSON NULL,
//	                      new_value JSON, source_title, origin JSON,
//	                      status, decided_by NULL, decided_at NULL,
//	                      created_at)
//
// A whole Message is inserted in one transaction.  Status moves out of
// `pending` exactly once; Transition is a conditional UPDATE, so two
// reviewers racing on the same row cannot both win.
//
// Notes
// -----
//   - Store satisfies Sink and is normally wrapped by a Dispatcher.
package claim

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/uniprofile/internal/apperr"
)

// Request status values.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusStale    = "stale"
)

// ErrDecided is returned when a request has already left pending.
var ErrDecided = errors.New("change request already decided")

// Request mirrors one row in `field_change_request`.
type Request struct {
	ID           uint64         `db:"id"            json:"id"`
	MessageID    string         `db:"message_id"    json:"messageId"`
	EditorID     int64          `db:"editor_id"     json:"editorId"`
	UniversityID uint64         `db:"university_id" json:"universityId"`
	Field        string         `db:"field"         json:"field"`
	OldValue     sql.NullString `db:"old_value"     json:"-"`
	NewValue     string         `db:"new_value"     json:"-"`
	SourceTitle  string         `db:"source_title"  json:"sourceTitle"`
	Status       string         `db:"status"        json:"status"`
	DecidedBy    *int64         `db:"decided_by"    json:"decidedBy,omitempty"`
	DecidedAt    *time.Time     `db:"decided_at"    json:"decidedAt,omitempty"`
	CreatedAt    time.Time      `db:"created_at"    json:"createdAt"`
}

// Store reads and writes the review queue.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open handle.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Submit inserts every record of msg in one transaction.
func (s *Store) Submit(ctx context.Context, msg Message) error {
	if len(msg.Records) == 0 {
		return nil
	}
	origin, err := json.Marshal(msg.Origin)
	if err != nil {
		return err
	}

	const q = `
        INSERT INTO field_change_request
               (message_id, editor_id, university_id, field, old_value,
                new_value, source_title, origin, status)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending')`

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range msg.Records {
		if _, err := tx.ExecContext(ctx, q,
			msg.ID, msg.EditorID, msg.UniversityID, string(rec.Field),
			encodeValue(rec.OldValue), encodeValue(&rec.NewValue),
			msg.SourceTitle, string(origin)); err != nil {
			return fmt.Errorf("insert change request %s: %w", rec.Field, err)
		}
	}
	return tx.Commit()
}

// ByID fetches one request.
func (s *Store) ByID(ctx context.Context, id uint64) (*Request, error) {
	const q = `
        SELECT id, message_id, editor_id, university_id, field, old_value,
               new_value, source_title, status, decided_by, decided_at, created_at
        FROM   field_change_request
        WHERE  id = ?
        LIMIT  1`
	var r Request
	if err := s.db.GetContext(ctx, &r, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("change request", id)
		}
		return nil, fmt.Errorf("change request by id: %w", err)
	}
	return &r, nil
}

// Pending lists undecided requests for one university, oldest first.
func (s *Store) Pending(ctx context.Context, universityID uint64) ([]Request, error) {
	const q = `
        SELECT id, message_id, editor_id, university_id, field, old_value,
               new_value, source_title, status, decided_by, decided_at, created_at
        FROM   field_change_request
        WHERE  university_id = ? AND status = 'pending'
        ORDER  BY id`
	rows := []Request{}
	if err := s.db.SelectContext(ctx, &rows, q, universityID); err != nil {
		return nil, fmt.Errorf("pending change requests: %w", err)
	}
	return rows, nil
}

// Transition moves a request from one status to another.  ErrDecided is
// returned when the row is no longer in from.
func (s *Store) Transition(ctx context.Context, id uint64, from, to string, by int64) error {
	const q = `
        UPDATE field_change_request
           SET status = ?, decided_by = ?, decided_at = CURRENT_TIMESTAMP
         WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, q, to, by, id, from)
	if err != nil {
		return fmt.Errorf("transition change request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDecided
	}
	return nil
}
