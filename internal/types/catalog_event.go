package types

// CatalogEventKind discriminates the events emitted by the catalog on
// every transact (spec.md §3).
type CatalogEventKind int

const (
	EventCreatedDatabase CatalogEventKind = iota
	EventCreatedSchema
	EventCreatedItem
	EventUpdatedItem
	EventDroppedDatabase
	EventDroppedSchema
	EventDroppedIndex
	EventDroppedItem
)

// CatalogEvent is one entry in the event list returned by a transact call.
type CatalogEvent struct {
	Kind CatalogEventKind

	DatabaseName string
	SchemaName   string

	// CreatedItem / DroppedItem
	Item *CatalogItem

	// UpdatedItem (rename): OldName/NewName identify the rename; Item is
	// the post-rename item.
	OldName QualifiedName
	NewName QualifiedName

	// DroppedIndex carries a nullability snapshot taken while the index
	// still existed (spec.md §3), used by planners that need to know
	// whether dropping this index changes NOT NULL inference. Stored
	// opaquely here since column nullability derivation is a planner
	// concern (out of scope, spec.md §1).
	IndexNullability []bool
}
