package cacher

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coordinatordb/coord/internal/types"
)

func newTestCacher(t *testing.T) (*DirCacher, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c, err := NewDirCacher(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("NewDirCacher: %v", err)
	}
	return c, &buf
}

func TestDirCacherAddSourceTracksExpectation(t *testing.T) {
	c, _ := newTestCacher(t)
	id := types.UserID(1)

	if err := c.AddSource(id, "kafka"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	c.mu.Lock()
	_, ok := c.expected[id.String()]
	c.mu.Unlock()
	if !ok {
		t.Error("expected id tracked after AddSource")
	}

	if err := c.DropSource(id); err != nil {
		t.Fatalf("DropSource: %v", err)
	}
	c.mu.Lock()
	_, ok = c.expected[id.String()]
	c.mu.Unlock()
	if ok {
		t.Error("id still tracked after DropSource")
	}
}

func TestReconcileWarnsOnMissingFile(t *testing.T) {
	c, buf := newTestCacher(t)
	id := types.UserID(2)
	_ = c.AddSource(id, "kafka")

	c.reconcile()

	if !bytes.Contains(buf.Bytes(), []byte("expected cache file missing")) {
		t.Errorf("expected a missing-file warning, got log: %s", buf.String())
	}
}

func TestReconcileWarnsOnUnexpectedFile(t *testing.T) {
	c, buf := newTestCacher(t)

	if err := os.WriteFile(filepath.Join(c.Dir, "u99"), []byte{}, 0o640); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	c.reconcile()

	if !bytes.Contains(buf.Bytes(), []byte("unexpected cache file present")) {
		t.Errorf("expected an unexpected-file warning, got log: %s", buf.String())
	}
}

func TestReconcileQuietWhenInSync(t *testing.T) {
	c, buf := newTestCacher(t)
	id := types.UserID(3)
	_ = c.AddSource(id, "file")

	if err := os.WriteFile(filepath.Join(c.Dir, id.String()), []byte{}, 0o640); err != nil {
		t.Fatalf("write cache file: %v", err)
	}

	c.reconcile()

	if buf.Len() != 0 {
		t.Errorf("expected no warnings when in sync, got: %s", buf.String())
	}
}

func TestStartFallsBackAndReconciles(t *testing.T) {
	c, _ := newTestCacher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
}
