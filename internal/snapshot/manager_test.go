package snapshot

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// --- Helpers ---

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// newTestManager returns a manager whose root lives inside a fresh
// workspace, plus the resolved workspace path.
func newTestManager(t *testing.T, opts ...Option) (*Manager, string) {
	t.Helper()
	ws, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	m, err := NewManager(filepath.Join(ws, DirName), opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, ws
}

// --- Create ---

func TestCreate_FileAndDirectory(t *testing.T) {
	m, ws := newTestManager(t)
	cfg := filepath.Join(ws, "config.yaml")
	writeFile(t, cfg, "ttl: 30")
	writeFile(t, filepath.Join(ws, "prompts", "system.md"), "be nice")
	writeFile(t, filepath.Join(ws, "prompts", "nested", "tool.md"), "use tools")

	snap, err := m.Create("pre", "before tuning", []string{cfg, filepath.Join(ws, "prompts")}, nil, map[string]any{"proposal": "p1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(snap.FilesBackedUp) != 2 {
		t.Fatalf("FilesBackedUp = %v, want 2 entries", snap.FilesBackedUp)
	}
	if snap.FilesBackedUp[0] != cfg {
		t.Errorf("FilesBackedUp[0] = %s, want %s", snap.FilesBackedUp[0], cfg)
	}

	backupDir := filepath.Join(m.Root(), snap.ID, snap.Manifest[filepath.Join(ws, "prompts")])
	if got := readFile(t, filepath.Join(backupDir, "nested", "tool.md")); got != "use tools" {
		t.Errorf("nested backup = %q", got)
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
}

func TestCreate_MissingPathsSkipped(t *testing.T) {
	m, ws := newTestManager(t)
	snap, err := m.Create("pre", "", []string{filepath.Join(ws, "nope.txt")}, []string{filepath.Join(ws, "nope.db")}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(snap.FilesBackedUp) != 0 {
		t.Errorf("FilesBackedUp = %v, want empty", snap.FilesBackedUp)
	}
	if snap.DatabaseBackup != "" {
		t.Errorf("DatabaseBackup = %q, want empty", snap.DatabaseBackup)
	}
}

func TestCreate_NeverRecordsStoreRoot(t *testing.T) {
	m, ws := newTestManager(t)
	writeFile(t, filepath.Join(ws, "keep.txt"), "keep")
	// Seed the store with a first snapshot so the root has content.
	if _, err := m.Create("seed", "", []string{filepath.Join(ws, "keep.txt")}, nil, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	snap, err := m.Create("self", "", []string{m.Root(), filepath.Join(m.Root(), IndexFile)}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(snap.FilesBackedUp) != 0 {
		t.Errorf("FilesBackedUp = %v, store root must never be recorded", snap.FilesBackedUp)
	}
}

func TestCreate_ParentOfRootExcludesRoot(t *testing.T) {
	m, ws := newTestManager(t)
	writeFile(t, filepath.Join(ws, "a.txt"), "a")
	writeFile(t, filepath.Join(m.Root(), "marker"), "x")
	// A store root not named DirName: only the structural guard applies.
	other, err := NewManager(filepath.Join(ws, "backups"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	snap, err := other.Create("ws", "", []string{ws}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	backup := filepath.Join(other.Root(), snap.ID, snap.Manifest[ws])
	if _, err := os.Stat(filepath.Join(backup, "a.txt")); err != nil {
		t.Errorf("a.txt should be backed up: %v", err)
	}
	if _, err := os.Stat(filepath.Join(backup, "backups")); !os.IsNotExist(err) {
		t.Error("the store root must not be copied into its own snapshot")
	}
	if _, err := os.Stat(filepath.Join(backup, DirName)); !os.IsNotExist(err) {
		t.Errorf("%s directories must be skipped by name", DirName)
	}
}

func TestCreate_ExcludePatterns(t *testing.T) {
	m, ws := newTestManager(t, WithExclude("**/node_modules", "*.log"))
	src := filepath.Join(ws, "app")
	writeFile(t, filepath.Join(src, "main.go"), "package main")
	writeFile(t, filepath.Join(src, "debug.log"), "noise")
	writeFile(t, filepath.Join(src, "web", "node_modules", "x.js"), "x")

	snap, err := m.Create("pre", "", []string{src}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	backup := filepath.Join(m.Root(), snap.ID, snap.Manifest[src])
	if _, err := os.Stat(filepath.Join(backup, "main.go")); err != nil {
		t.Errorf("main.go missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(backup, "debug.log")); !os.IsNotExist(err) {
		t.Error("*.log should be excluded")
	}
	if _, err := os.Stat(filepath.Join(backup, "web", "node_modules")); !os.IsNotExist(err) {
		t.Error("node_modules should be excluded")
	}
}

func TestCreate_PartialFailure(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	m, ws := newTestManager(t)
	ok := filepath.Join(ws, "ok.txt")
	locked := filepath.Join(ws, "locked.txt")
	writeFile(t, ok, "ok")
	writeFile(t, locked, "secret")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	snap, err := m.Create("pre", "", []string{ok, locked}, nil, nil)
	if !errors.Is(err, ErrPartialCopy) {
		t.Fatalf("error = %v, want ErrPartialCopy", err)
	}
	if snap == nil {
		t.Fatal("partial snapshot must still be returned")
	}
	if len(snap.FilesBackedUp) != 1 || snap.FilesBackedUp[0] != ok {
		t.Errorf("FilesBackedUp = %v, want only ok.txt", snap.FilesBackedUp)
	}
	if len(snap.Failures) != 1 || snap.Failures[0].Path != locked {
		t.Errorf("Failures = %+v, want locked.txt", snap.Failures)
	}
	if _, err := m.Get(snap.ID); err != nil {
		t.Errorf("partial snapshot should be indexed: %v", err)
	}
}

func TestCreate_DatabaseBackup(t *testing.T) {
	m, ws := newTestManager(t)
	db := filepath.Join(ws, "data", "memory.db")
	writeFile(t, db, "sqlite bytes")

	snap, err := m.Create("pre", "", nil, []string{db}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if snap.DatabaseBackup == "" {
		t.Fatal("DatabaseBackup should be set")
	}
	rel, ok := snap.Databases[db]
	if !ok {
		t.Fatalf("Databases = %v, want entry for %s", snap.Databases, db)
	}
	if got := readFile(t, filepath.Join(m.Root(), snap.ID, rel)); got != "sqlite bytes" {
		t.Errorf("database copy = %q", got)
	}
	if filepath.Dir(filepath.Join(m.Root(), snap.ID, rel)) != snap.DatabaseBackup {
		t.Errorf("copy %s is outside DatabaseBackup %s", rel, snap.DatabaseBackup)
	}
	if len(snap.FilesBackedUp) != 0 {
		t.Error("database files are not listed in FilesBackedUp")
	}
}

func TestCreate_DatabasesWithSameBasename(t *testing.T) {
	m, ws := newTestManager(t)
	a := filepath.Join(ws, "a", "state.db")
	b := filepath.Join(ws, "b", "state.db")
	writeFile(t, a, "A")
	writeFile(t, b, "B")

	snap, err := m.Create("pre", "", nil, []string{a, b}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(snap.Databases) != 2 {
		t.Fatalf("Databases = %v, want 2 entries", snap.Databases)
	}
	if got := readFile(t, filepath.Join(m.Root(), snap.ID, snap.Databases[a])); got != "A" {
		t.Errorf("copy of a/state.db = %q, want A", got)
	}
	if got := readFile(t, filepath.Join(m.Root(), snap.ID, snap.Databases[b])); got != "B" {
		t.Errorf("copy of b/state.db = %q, want B", got)
	}
}

func TestCreate_ResolvesSymlinkedDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	m, ws := newTestManager(t)
	realDir := filepath.Join(ws, "real")
	link := filepath.Join(ws, "app")
	settings := filepath.Join(realDir, "settings.yaml")
	writeFile(t, settings, "ttl: 60\n")
	if err := os.Symlink(realDir, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	snap, err := m.Create("pre", "", []string{link}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(snap.FilesBackedUp) != 1 || snap.FilesBackedUp[0] != realDir {
		t.Errorf("FilesBackedUp = %v, want the link target %s", snap.FilesBackedUp, realDir)
	}

	writeFile(t, settings, "ttl: 999\n")
	if _, err := m.Restore(snap.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := readFile(t, settings); got != "ttl: 60\n" {
		t.Errorf("settings after restore = %q, want original", got)
	}
	if target, err := os.Readlink(link); err != nil || target != realDir {
		t.Errorf("link = %q (%v), want it left pointing at %s", target, err, realDir)
	}
}

func TestCreate_IndexWriteFailureRemovesDirectory(t *testing.T) {
	m, ws := newTestManager(t)
	f := filepath.Join(ws, "f.txt")
	writeFile(t, f, "f")
	// A directory in place of the temp index makes the index write fail.
	if err := os.Mkdir(filepath.Join(m.Root(), IndexFile+".tmp"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, err := m.Create("pre", "", []string{f}, nil, nil); err == nil {
		t.Fatal("expected index write error")
	}
	entries, err := os.ReadDir(m.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != IndexFile+".tmp" {
			t.Errorf("leftover entry %s in store root", e.Name())
		}
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
}

// --- Delete ---

func TestDelete(t *testing.T) {
	m, ws := newTestManager(t)
	f := filepath.Join(ws, "f.txt")
	writeFile(t, f, "f")
	snap, err := m.Create("pre", "", []string{f}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Delete(snap.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(snap.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(m.Root(), snap.ID)); !os.IsNotExist(err) {
		t.Errorf("snapshot directory still present: %v", err)
	}
	reopened, err := NewManager(m.Root())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if reopened.Count() != 0 {
		t.Errorf("reopened Count = %d, want 0", reopened.Count())
	}
	if err := m.Delete(snap.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

// --- Restore ---

func TestRestore_RoundTrip(t *testing.T) {
	m, ws := newTestManager(t)
	cfg := filepath.Join(ws, "config.yaml")
	dir := filepath.Join(ws, "prompts")
	writeFile(t, cfg, "ttl: 30")
	writeFile(t, filepath.Join(dir, "system.md"), "v1")

	snap, err := m.Create("pre", "", []string{cfg, dir}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	writeFile(t, cfg, "ttl: 5")
	writeFile(t, filepath.Join(dir, "system.md"), "v2")
	if err := os.Remove(cfg); err != nil {
		t.Fatalf("remove: %v", err)
	}

	res, err := m.Restore(snap.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(res.Restored) != 2 {
		t.Errorf("Restored = %v, want 2 paths", res.Restored)
	}
	if got := readFile(t, cfg); got != "ttl: 30" {
		t.Errorf("config = %q, want original", got)
	}
	if got := readFile(t, filepath.Join(dir, "system.md")); got != "v1" {
		t.Errorf("system.md = %q, want v1", got)
	}
}

func TestRestore_SameBasenameUsesManifest(t *testing.T) {
	m, ws := newTestManager(t)
	a := filepath.Join(ws, "a", "settings.json")
	b := filepath.Join(ws, "b", "settings.json")
	writeFile(t, a, "A")
	writeFile(t, b, "B")

	snap, err := m.Create("pre", "", []string{a, b}, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	writeFile(t, a, "changed")
	writeFile(t, b, "changed")

	if _, err := m.Restore(snap.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := readFile(t, a); got != "A" {
		t.Errorf("a/settings.json = %q, want A", got)
	}
	if got := readFile(t, b); got != "B" {
		t.Errorf("b/settings.json = %q, want B", got)
	}
}

func TestRestore_LegacyEntryByFilename(t *testing.T) {
	m, ws := newTestManager(t)
	target := filepath.Join(ws, "restored", "notes.txt")

	// Hand-write an index entry without a manifest, as older stores did.
	id := "snap-legacy"
	writeFile(t, filepath.Join(m.Root(), id, filesDir, "notes.txt"), "old notes")
	idx := index{Snapshots: []Snapshot{{ID: id, Name: "legacy", FilesBackedUp: []string{target}}}}
	data, _ := json.Marshal(idx)
	writeFile(t, filepath.Join(m.Root(), IndexFile), string(data))

	reopened, err := NewManager(m.Root())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := reopened.Restore(id); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := readFile(t, target); got != "old notes" {
		t.Errorf("restored = %q", got)
	}
}

func TestRestore_DatabaseReportedNotRestored(t *testing.T) {
	m, ws := newTestManager(t)
	db := filepath.Join(ws, "memory.db")
	writeFile(t, db, "v1")
	snap, _ := m.Create("pre", "", nil, []string{db}, nil)
	writeFile(t, db, "v2")

	res, err := m.Restore(snap.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.DatabaseBackup != snap.DatabaseBackup {
		t.Errorf("DatabaseBackup = %q, want %q", res.DatabaseBackup, snap.DatabaseBackup)
	}
	if res.Databases[db] != snap.Databases[db] || res.Databases[db] == "" {
		t.Errorf("Databases = %v, want copy location of %s", res.Databases, db)
	}
	if got := readFile(t, db); got != "v2" {
		t.Errorf("database was restored (%q); it must be left to the caller", got)
	}
}

func TestRestore_UnknownID(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Restore("snap-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestRestore_MissingBackupIsPartial(t *testing.T) {
	m, ws := newTestManager(t)
	f := filepath.Join(ws, "f.txt")
	writeFile(t, f, "f")
	snap, _ := m.Create("pre", "", []string{f}, nil, nil)
	if err := os.RemoveAll(filepath.Join(m.Root(), snap.ID)); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	res, err := m.Restore(snap.ID)
	if !errors.Is(err, ErrPartialCopy) {
		t.Fatalf("error = %v, want ErrPartialCopy", err)
	}
	if len(res.Failures) != 1 {
		t.Errorf("Failures = %+v, want 1", res.Failures)
	}
}

// --- Index ---

func TestIndex_PersistsAcrossManagers(t *testing.T) {
	base := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	tick := 0
	timeNow = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	t.Cleanup(func() { timeNow = time.Now })

	m, ws := newTestManager(t)
	f := filepath.Join(ws, "f.txt")
	writeFile(t, f, "f")
	first, _ := m.Create("one", "", []string{f}, nil, nil)
	second, _ := m.Create("two", "", []string{f}, nil, nil)

	reopened, err := NewManager(m.Root())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	list := reopened.List()
	if len(list) != 2 {
		t.Fatalf("List = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("List order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}
	got, err := reopened.Get(first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "one" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestWithin(t *testing.T) {
	root := filepath.FromSlash("/data/.snapshots")
	tests := []struct {
		path string
		want bool
	}{
		{"/data/.snapshots", true},
		{"/data/.snapshots/snap-1/files", true},
		{"/data/.snapshots-old", false},
		{"/data", false},
		{"/elsewhere", false},
	}
	for _, tt := range tests {
		if got := within(root, filepath.FromSlash(tt.path)); got != tt.want {
			t.Errorf("within(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
