package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mute/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) { //nolint:cyclop
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "survival_probabilities/test.txt", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/plain", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "survival_probabilities/test.txt" || info.Size != 5 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "survival_probabilities/test.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate failure")
	}
	h, err := store.Head(ctx, "survival_probabilities/test.txt")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	g, rc, err := store.Get(ctx, "survival_probabilities/test.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(b) != "hello" || g.ETag != h.ETag || g.Metadata["k"] != "v" {
		t.Fatalf("unexpected get artifacts")
	}
	list, err := store.List(ctx, "survival_probabilities/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "survival_probabilities/test.txt" {
		t.Fatalf("unexpected list %+v", list)
	}
	url, err := store.PresignURL(ctx, "survival_probabilities/test.txt", core.SignedURLOptions{})
	if err != nil || !strings.HasPrefix(url, "file://") {
		t.Fatalf("presign url: %v %s", err, url)
	}
	if _, err := store.PresignURL(ctx, "x", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
	ok, err := store.Delete(ctx, "survival_probabilities/test.txt")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "survival_probabilities/test.txt")
	if err != nil || ok {
		t.Fatalf("second delete should be false")
	}
}

func TestStore_PathTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"../escape.txt", "/abs.txt", " "} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestStore_MissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, _, err := store.Get(ctx, "nope.txt"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := store.Head(ctx, "nope.txt"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
}

func TestStore_ForeignFileWithoutSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	dir := filepath.Join(store.Root(), "underground_energies")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "shard.txt"), []byte("[]\n[1.0]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, rc, err := store.Get(ctx, "underground_energies/shard.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = rc.Close()
	if info.Size != 9 {
		t.Fatalf("unexpected size %d", info.Size)
	}
	list, err := store.List(ctx, "underground_energies/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
}

func TestStore_CreateStreamsAndReplaces(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	key := "underground_energies/rock_2.65_10_Underground_Energies_0.txt"
	for _, content := range []string{"[1.0]\n[2.0]\n", "[]\n"} {
		w, err := store.Create(ctx, key, core.PutOptions{ContentType: "text/plain"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := io.WriteString(w, content[:3]); err != nil {
			t.Fatalf("write: %v", err)
		}
		// partial content is visible before close
		b, err := os.ReadFile(filepath.Join(store.Root(), filepath.FromSlash(key)))
		if err != nil || string(b) != content[:3] {
			t.Fatalf("partial read %q %v", b, err)
		}
		if _, err := io.WriteString(w, content[3:]); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("second close: %v", err)
		}
		info, err := store.Head(ctx, key)
		if err != nil || info.Size != int64(len(content)) || info.ETag == "" || info.ContentType != "text/plain" {
			t.Fatalf("head after create: %+v %v", info, err)
		}
	}
}

func TestStore_Prefixes(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	ok, err := store.PrefixExists(ctx, "survival_probabilities")
	if err != nil || ok {
		t.Fatalf("expected missing prefix: %v %v", ok, err)
	}
	if err := store.EnsurePrefix(ctx, "survival_probabilities"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	ok, err = store.PrefixExists(ctx, "survival_probabilities")
	if err != nil || !ok {
		t.Fatalf("expected prefix: %v %v", ok, err)
	}
	if _, err := store.PrefixExists(ctx, "../up"); err == nil {
		t.Fatalf("expected traversal error")
	}
}

func TestStore_CorruptSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "a.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "a.txt.meta"), []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Head(ctx, "a.txt"); err == nil {
		t.Fatalf("expected sidecar error")
	}
	if _, _, err := store.Get(ctx, "a.txt"); err == nil {
		t.Fatalf("expected sidecar error")
	}
}

func TestRootCreatedByFirstWrite(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "data")
	store, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat(root); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("root created before any write: %v", err)
	}
	infos, err := store.List(ctx, "")
	if err != nil || len(infos) != 0 {
		t.Fatalf("List on missing root: %v %v", infos, err)
	}
	if _, err := store.Head(ctx, "survival_probabilities/x.txt"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Head on missing root: %v", err)
	}
	if _, err := store.Put(ctx, "survival_probabilities/x.txt", strings.NewReader("1 2 3 4\n"), core.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		t.Fatalf("root after write: %v", err)
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(file); err == nil {
		t.Fatalf("expected error for a file root")
	}
}

func TestNewDefaultsRootAndDriver(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(wd) }()
	store, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Driver() != core.DriverFilesystem || store.Root() != "./data" {
		t.Fatalf("unexpected store %v %s", store.Driver(), store.Root())
	}
}
