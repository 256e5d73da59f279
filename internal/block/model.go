// internal/block/model.go
//
// `content_block` and `block_template` row models.
package block

import (
	"encoding/json"
	"time"
)

// Block mirrors one row in the `content_block` table.  Canonical blocks
// carry their block type in CanonicalMapping for audit; soft blocks leave
// it NULL.
type Block struct {
	ID               uint64          `db:"id"                json:"id"`
	UniversityID     uint64          `db:"university_id"     json:"universityId"`
	BlockType        string          `db:"block_type"        json:"blockType"`
	Title            string          `db:"title"             json:"title"`
	RawData          json.RawMessage `db:"raw_data"          json:"rawData"`
	Priority         int             `db:"priority"          json:"priority"`
	IsActive         bool            `db:"is_active"         json:"isActive"`
	IsCanonical      bool            `db:"is_canonical"      json:"isCanonical"`
	CanonicalMapping *string         `db:"canonical_mapping" json:"canonicalMapping,omitempty"`
	TemplateID       *uint64         `db:"template_id"       json:"templateId,omitempty"`
	CreatedAt        time.Time       `db:"created_at"        json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at"        json:"updatedAt"`
}

// Template mirrors one row in the `block_template` table.
type Template struct {
	ID        uint64          `db:"id"`
	Name      string          `db:"name"`
	BlockType string          `db:"block_type"`
	Data      json.RawMessage `db:"data"`
}

// CopyPriority is assigned to duplicated blocks so they sort after every
// hand-placed block.
const CopyPriority = 9999

// CopyPrefix marks the title of a duplicated block.
const CopyPrefix = "Copy of "
