// internal/claim/record.go
//
// Change records and the outbound claim message.
//
// Context
// -------
// When a non-privileged editor stages a value that differs from the live
// column, the dual-write coordinator emits one ChangeRecord per differing
// field.  The whole batch for one block save travels as a single Message
// to a Sink.  Delivery is fire-and-forget from the writer's side; the
// block save has already committed by the time the message leaves.
//
// Notes
// -----
//   - OldValue is nil when the live column was NULL.
//   - Values are stored as JSON scalars and decoded against the field's
//     registered kind, so 1400 reads back as an int and 0.15 as a float.
package claim

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/yanizio/uniprofile/internal/auth"
	"github.com/yanizio/uniprofile/internal/registry"
)

// ChangeRecord is one proposed field change.
type ChangeRecord struct {
	Field    registry.Field  `json:"field"`
	OldValue *registry.Value `json:"oldValue"`
	NewValue registry.Value  `json:"newValue"`
}

// Message is one batch of change records from a single block save.
type Message struct {
	ID           string         `json:"id"`
	EditorID     int64          `json:"editorId"`
	UniversityID uint64         `json:"universityId"`
	SourceTitle  string         `json:"sourceTitle"`
	Records      []ChangeRecord `json:"records"`
	Origin       auth.Origin    `json:"origin"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// NewMessage stamps a fresh id and timestamp.
func NewMessage(ed auth.Editor, universityID uint64, title string, recs []ChangeRecord) Message {
	return Message{
		ID:           uuid.NewString(),
		EditorID:     ed.ID,
		UniversityID: universityID,
		SourceTitle:  title,
		Records:      recs,
		Origin:       ed.Origin,
		CreatedAt:    time.Now().UTC(),
	}
}

// Sink receives change-record batches for human review.
type Sink interface {
	Submit(ctx context.Context, msg Message) error
}

// encodeValue renders v as a JSON scalar.  nil encodes as "null".
func encodeValue(v *registry.Value) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v.Any())
	if err != nil {
		return "null"
	}
	return string(b)
}

// decodeValue parses a stored JSON scalar back into a Value of kind k.
func decodeValue(raw string, k registry.Kind) (registry.Value, bool) {
	res := gjson.Parse(raw)
	switch res.Type {
	case gjson.Number:
		if k == registry.KindInt {
			return registry.Int(res.Int()), true
		}
		return registry.Float(res.Float()), true
	case gjson.String:
		return registry.String(res.String()), true
	default:
		return registry.Value{}, false
	}
}
