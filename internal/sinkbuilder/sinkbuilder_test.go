package sinkbuilder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coordinatordb/coord/internal/types"
)

func TestFileBuilderCreatesFile(t *testing.T) {
	dir := t.TempDir()
	b := FileBuilder{Dir: dir}

	id := types.UserID(7)
	connector, err := b.Build(id, types.SinkConnectorBuilder{ConnectorType: "kafka", Config: map[string]string{"topic": "orders"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if connector.ConnectorType != "kafka" {
		t.Errorf("connector type = %q, want kafka", connector.ConnectorType)
	}
	if _, err := os.Stat(connector.ExternalID); err != nil {
		t.Errorf("expected sink file at %s: %v", connector.ExternalID, err)
	}
	if filepath.Dir(connector.ExternalID) != dir {
		t.Errorf("sink file not under %s: %s", dir, connector.ExternalID)
	}
}

func TestFileBuilderIdempotent(t *testing.T) {
	dir := t.TempDir()
	b := FileBuilder{Dir: dir}
	id := types.UserID(1)

	if _, err := b.Build(id, types.SinkConnectorBuilder{ConnectorType: "file"}); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := b.Build(id, types.SinkConnectorBuilder{ConnectorType: "file"}); err != nil {
		t.Fatalf("second build (retry) should not fail: %v", err)
	}
}
