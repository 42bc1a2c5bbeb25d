// Package catalog holds the live item and trigger collections received from the
// Item Service, along with the on-disk snapshots of what was last published to
// the Control Host.
package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind names one of the two collections.
type Kind string

const (
	KindItems    Kind = "items"
	KindTriggers Kind = "triggers"
)

// Kinds lists every collection in publish order.
var Kinds = []Kind{KindItems, KindTriggers}

// Group is the Control Host state group that the collection's states live in.
func (k Kind) Group() string {
	if k == KindTriggers {
		return "Triggers"
	}
	return "Throwables"
}

// ChoiceID is the id of the Control Host choice list filled from the collection.
func (k Kind) ChoiceID() string {
	if k == KindTriggers {
		return "trigger"
	}
	return "item"
}

// SnapshotFile is the file name of the collection's durable snapshot.
func (k Kind) SnapshotFile() string {
	return string(k) + "_list.txt"
}

// Record field names used by the Item Service. Records are loosely shaped:
// the same value shows up under different names depending on the collection
// and the service version.
const (
	FieldName        = "name"
	FieldItemName    = "itemName"
	FieldDisplayName = "displayName"
	FieldID          = "id"
	FieldUpperID     = "ID"
)

// accessors lists, per collection, the ordered field paths tried for each
// derived property. The first non-empty field wins.
type accessors struct {
	label      []string // choice list entry
	state      []string // state token source, snapshot name, state description
	identifier []string // value sent back to the Item Service
	aliases    []string // fields a lookup token is matched against
}

var kindAccessors = map[Kind]accessors{
	KindItems: {
		label:      []string{FieldItemName, FieldName, FieldID},
		state:      []string{FieldItemName, FieldName, FieldID},
		identifier: []string{FieldUpperID, FieldID},
		aliases:    []string{FieldName, FieldItemName, FieldID, FieldUpperID},
	},
	KindTriggers: {
		label:      []string{FieldDisplayName, FieldName, FieldID},
		state:      []string{FieldName, FieldDisplayName, FieldID},
		identifier: []string{FieldID, FieldUpperID},
		aliases:    []string{FieldName, FieldDisplayName, FieldID, FieldUpperID},
	},
}

// Entity is one throwable item or trigger. It is immutable once built.
type Entity struct {
	kind   Kind
	fields map[string]string
}

// NewEntity builds an entity from already-stringified record fields.
func NewEntity(kind Kind, fields map[string]string) Entity {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Entity{kind: kind, fields: cp}
}

func (e Entity) Kind() Kind { return e.kind }

// Field returns the raw value of a record field, or "" when absent.
func (e Entity) Field(name string) string { return e.fields[name] }

// Label is the name shown in the Control Host choice list.
func (e Entity) Label() string { return e.first(kindAccessors[e.kind].label) }

// StateName is the name states and snapshot lines are keyed on.
func (e Entity) StateName() string { return e.first(kindAccessors[e.kind].state) }

// Token is the sanitized state identifier derived from StateName.
func (e Entity) Token() string { return Sanitize(e.StateName()) }

// Identifier is the Item Service's own id for the entity.
func (e Entity) Identifier() string { return e.first(kindAccessors[e.kind].identifier) }

// Matches reports whether token equals any of the entity's alias fields.
func (e Entity) Matches(token string) bool {
	if token == "" {
		return false
	}
	for _, f := range kindAccessors[e.kind].aliases {
		if v, ok := e.fields[f]; ok && v == token {
			return true
		}
	}
	return false
}

func (e Entity) first(paths []string) string {
	for _, p := range paths {
		if v := e.fields[p]; v != "" {
			return v
		}
	}
	return ""
}

// ParseEntities decodes a JSON array of Item Service records. Elements that are
// not objects are skipped; only the known alias fields are kept.
func ParseEntities(kind Kind, raw json.RawMessage) ([]Entity, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}

	out := make([]Entity, 0, len(records))
	for _, rec := range records {
		var obj map[string]any
		if err := json.Unmarshal(rec, &obj); err != nil || obj == nil {
			continue
		}
		fields := make(map[string]string, 4)
		for _, f := range []string{FieldName, FieldItemName, FieldDisplayName, FieldID, FieldUpperID} {
			if s, ok := stringify(obj[f]); ok {
				fields[f] = s
			}
		}
		out = append(out, Entity{kind: kind, fields: fields})
	}
	return out, nil
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
