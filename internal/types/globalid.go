package types

import "fmt"

// IDKind discriminates the GlobalId namespace.
type IDKind int

const (
	IDUser IDKind = iota
	IDSystem
	IDTransient
)

// GlobalId is an opaque catalog/dataflow identifier. Transient ids are
// allocated from a disjoint, coordinator-local namespace so they can never
// collide with a user or system id (spec.md §9).
type GlobalId struct {
	Kind  IDKind
	Value uint64
}

func UserID(v uint64) GlobalId      { return GlobalId{Kind: IDUser, Value: v} }
func SystemID(v uint64) GlobalId    { return GlobalId{Kind: IDSystem, Value: v} }
func TransientID(v uint64) GlobalId { return GlobalId{Kind: IDTransient, Value: v} }

// String renders e.g. "u42", "s7", "t3".
func (id GlobalId) String() string {
	switch id.Kind {
	case IDUser:
		return fmt.Sprintf("u%d", id.Value)
	case IDSystem:
		return fmt.Sprintf("s%d", id.Value)
	case IDTransient:
		return fmt.Sprintf("t%d", id.Value)
	default:
		return fmt.Sprintf("?%d", id.Value)
	}
}

// ParseGlobalId parses the String() form back into a GlobalId, the
// round-trip the rpc wire protocol relies on to carry ids as plain strings.
func ParseGlobalId(s string) (GlobalId, error) {
	var kind byte
	var value uint64
	if _, err := fmt.Sscanf(s, "%c%d", &kind, &value); err != nil {
		return GlobalId{}, fmt.Errorf("parse global id %q: %w", s, err)
	}
	switch kind {
	case 'u':
		return UserID(value), nil
	case 's':
		return SystemID(value), nil
	case 't':
		return TransientID(value), nil
	default:
		return GlobalId{}, fmt.Errorf("parse global id %q: unknown kind %q", s, kind)
	}
}
