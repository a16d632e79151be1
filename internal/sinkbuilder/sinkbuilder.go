// Package sinkbuilder implements the sink builder collaborator named in
// spec.md §6: given a CatalogItem's pending SinkConnectorBuilder recipe, it
// constructs the external sink and returns the ready SinkConnector. The
// default FileBuilder stands in for a real external system the way the
// teacher's own integration points (e.g. its git-backed sync layer) wrap
// an external collaborator behind a narrow Go interface.
package sinkbuilder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coordinatordb/coord/internal/types"
)

// Builder constructs the external side of a sink from its durable recipe.
// Implementations must be idempotent on retry (spec.md §6): building the
// same id twice must not fail or duplicate external state.
type Builder interface {
	Build(id types.GlobalId, spec types.SinkConnectorBuilder) (types.SinkConnector, error)
}

// FileBuilder creates a placeholder file under Dir/<id> standing in for a
// real external sink (message bus, object store, etc). It is idempotent:
// building the same id again just reopens the existing file.
type FileBuilder struct {
	Dir string
}

// Build implements Builder.
func (b FileBuilder) Build(id types.GlobalId, spec types.SinkConnectorBuilder) (types.SinkConnector, error) {
	if err := os.MkdirAll(b.Dir, 0o750); err != nil {
		return types.SinkConnector{}, fmt.Errorf("create sink dir: %w", err)
	}

	path := filepath.Join(b.Dir, id.String())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return types.SinkConnector{}, fmt.Errorf("create sink file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return types.SinkConnector{}, fmt.Errorf("close sink file %s: %w", path, err)
	}

	return types.SinkConnector{ConnectorType: spec.ConnectorType, ExternalID: path}, nil
}
