// internal/profile/profile.go
//
// Profile and partition shapes.
//
// Context
// -------
// A Profile is the live scalar snapshot of one university plus its ordered
// active blocks.  partitionOf slices it per tag: scalar tags keep that
// tag's fields, identity also keeps Meta, and microcontent keeps the soft
// blocks.
//
// Notes
// -----
//   - Cached JSON carries no kinds, so decoding goes through the registry.
package profile

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/yanizio/uniprofile/internal/block"
	"github.com/yanizio/uniprofile/internal/registry"
	"github.com/yanizio/uniprofile/internal/university"
)

// Meta is the identity and ownership header of a profile.
type Meta struct {
	ID        uint64     `json:"id"`
	Slug      string     `json:"slug"`
	Claimed   bool       `json:"claimed"`
	OwnerID   *int64     `json:"ownerId,omitempty"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Snapshot is the live scalar view of one university.
type Snapshot struct {
	Meta
	Fields registry.Values `json:"fields"`
}

// Profile is the assembled, cacheable view of one university.
type Profile struct {
	University Snapshot      `json:"university"`
	Blocks     []block.Block `json:"blocks"`
}

// Partition is one tag's slice of a profile.  Scalar tags fill Fields;
// the identity tag also carries Meta; microcontent fills Blocks with the
// soft blocks only.
type Partition struct {
	Tag    registry.Tag    `json:"tag"`
	Meta   *Meta           `json:"meta,omitempty"`
	Fields registry.Values `json:"fields,omitempty"`
	Blocks []block.Block   `json:"blocks,omitempty"`
}

func metaOf(rec *university.Record) Meta {
	return Meta{
		ID:        rec.ID,
		Slug:      rec.Slug,
		Claimed:   rec.Claimed(),
		OwnerID:   rec.OwnerID,
		ClaimedAt: rec.ClaimedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func assemble(reg *registry.Registry, rec *university.Record, blocks []block.Block) *Profile {
	if blocks == nil {
		blocks = []block.Block{}
	}
	return &Profile{
		University: Snapshot{Meta: metaOf(rec), Fields: rec.Snapshot(reg)},
		Blocks:     blocks,
	}
}

// partitionOf slices p down to tag.
func partitionOf(reg *registry.Registry, p *Profile, tag registry.Tag) *Partition {
	part := &Partition{Tag: tag}
	switch tag {
	case registry.TagMicrocontent:
		part.Blocks = softBlocks(p.Blocks)
		return part
	case registry.TagIdentity:
		m := p.University.Meta
		part.Meta = &m
	}
	part.Fields = registry.Values{}
	for _, f := range reg.FieldsByTag(tag) {
		if v, ok := p.University.Fields[f]; ok {
			part.Fields[f] = v
		}
	}
	return part
}

// softBlocks drops canonical blocks.  Their payloads change with live
// writes, which never invalidate microcontent.
func softBlocks(all []block.Block) []block.Block {
	out := make([]block.Block, 0, len(all))
	for _, b := range all {
		if !b.IsCanonical {
			out = append(out, b)
		}
	}
	return out
}

/*──────────────────────────── decoding ────────────────────────────────────*/

// Values carry no kind on the wire; the registry restores it.

type wireSnapshot struct {
	Meta
	Fields map[registry.Field]json.RawMessage `json:"fields"`
}

type wireProfile struct {
	University wireSnapshot  `json:"university"`
	Blocks     []block.Block `json:"blocks"`
}

type wirePartition struct {
	Tag    registry.Tag                       `json:"tag"`
	Meta   *Meta                              `json:"meta,omitempty"`
	Fields map[registry.Field]json.RawMessage `json:"fields,omitempty"`
	Blocks []block.Block                      `json:"blocks,omitempty"`
}

func decodeProfile(reg *registry.Registry, b []byte) (*Profile, error) {
	var w wireProfile
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	if w.Blocks == nil {
		w.Blocks = []block.Block{}
	}
	return &Profile{
		University: Snapshot{Meta: w.University.Meta, Fields: decodeFields(reg, w.University.Fields)},
		Blocks:     w.Blocks,
	}, nil
}

func decodePartition(reg *registry.Registry, b []byte) (*Partition, error) {
	var w wirePartition
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	p := &Partition{Tag: w.Tag, Meta: w.Meta, Blocks: w.Blocks}
	if w.Tag != registry.TagMicrocontent {
		p.Fields = decodeFields(reg, w.Fields)
	} else if p.Blocks == nil {
		p.Blocks = []block.Block{}
	}
	return p, nil
}

func decodeFields(reg *registry.Registry, raw map[registry.Field]json.RawMessage) registry.Values {
	out := make(registry.Values, len(raw))
	for f, r := range raw {
		fs, ok := reg.Spec(f)
		if !ok {
			continue
		}
		res := gjson.ParseBytes(r)
		switch {
		case res.Type == gjson.String:
			out[f] = registry.String(res.String())
		case res.Type == gjson.Number && fs.Kind == registry.KindInt:
			out[f] = registry.Int(res.Int())
		case res.Type == gjson.Number:
			out[f] = registry.Float(res.Float())
		}
	}
	return out
}
