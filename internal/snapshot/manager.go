// Package snapshot creates and restores point-in-time backups of files and
// directories so that an implemented proposal can be undone.
//
// Layout under the store root:
//
//	index.json                      every known snapshot
//	<id>/files/<nnn>_<basename>     one backup per requested path
//	<id>/databases/<nnn>_<basename> database copies (never restored here)
//
// Database backups are copied but restoration only reports where they
// live; putting them back is the caller's job.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DirName is the conventional name of a snapshot store directory.
	// Directories with this name are never copied into a snapshot.
	DirName = ".snapshots"
	// IndexFile lists every snapshot held by the store.
	IndexFile = "index.json"

	filesDir     = "files"
	databasesDir = "databases"
)

var (
	// ErrNotFound is returned for an unknown snapshot id.
	ErrNotFound = errors.New("snapshot not found")
	// ErrPartialCopy marks a create or restore in which some paths failed.
	// The accompanying result still describes what succeeded.
	ErrPartialCopy = errors.New("partial copy")
)

// timeNow is replaced in tests.
var timeNow = time.Now

// Failure records a path that could not be copied.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Snapshot describes one backup.
type Snapshot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// FilesBackedUp lists the absolute source paths actually copied.
	FilesBackedUp []string `json:"files_backed_up"`
	// Manifest maps each entry of FilesBackedUp to its backup location,
	// relative to the snapshot directory. Older index entries may lack it.
	Manifest map[string]string `json:"manifest,omitempty"`
	// DatabaseBackup is the directory holding database copies, if any.
	DatabaseBackup string `json:"database_backup,omitempty"`
	// Databases maps each backed-up database to its copy, relative to the
	// snapshot directory.
	Databases map[string]string `json:"databases,omitempty"`
	Failures  []Failure         `json:"failures,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}

// Partial reports whether some requested paths failed to copy.
func (s *Snapshot) Partial() bool {
	return len(s.Failures) > 0
}

// RestoreResult describes the outcome of a restore.
type RestoreResult struct {
	SnapshotID string    `json:"snapshot_id"`
	Restored   []string  `json:"restored"`
	Failures   []Failure `json:"failures,omitempty"`
	// DatabaseBackup and Databases are reported, not restored.
	DatabaseBackup string            `json:"database_backup,omitempty"`
	Databases      map[string]string `json:"databases,omitempty"`
}

type index struct {
	Snapshots []Snapshot `json:"snapshots"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithExclude skips directory entries matching any doublestar pattern,
// e.g. "**/node_modules" or "*.log".
func WithExclude(patterns ...string) Option {
	return func(m *Manager) {
		m.exclude = append(m.exclude, patterns...)
	}
}

// Manager owns a snapshot store root and its index.
// All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	root    string
	exclude []string
	index   index
}

// NewManager opens (creating if needed) the snapshot store at root and
// loads its index.
func NewManager(root string, opts ...Option) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	m := &Manager{root: abs}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Root returns the resolved store root.
func (m *Manager) Root() string {
	return m.root
}

// Create backs up the given paths and database files.
//
// Paths that do not exist are skipped silently, as is any path inside the
// store root. A symlinked path is resolved and its target is backed up and
// recorded. When some copies fail the snapshot is still recorded and
// returned together with an error wrapping ErrPartialCopy.
func (m *Manager) Create(name, description string, paths, dbPaths []string, metadata map[string]any) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := timeNow().UTC()
	snap := Snapshot{
		ID:            newID(now),
		Name:          name,
		Description:   description,
		CreatedAt:     now,
		FilesBackedUp: []string{},
		Manifest:      map[string]string{},
		Metadata:      metadata,
	}
	dir := filepath.Join(m.root, snap.ID)
	if err := os.MkdirAll(filepath.Join(dir, filesDir), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create directory: %w", err)
	}

	g := guard{root: m.root, exclude: m.exclude}
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			snap.Failures = append(snap.Failures, Failure{Path: p, Reason: err.Error()})
			continue
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		if seen[abs] || within(m.root, abs) {
			continue
		}
		seen[abs] = true

		rel := filepath.Join(filesDir, fmt.Sprintf("%03d_%s", len(snap.FilesBackedUp), filepath.Base(abs)))
		if err := copyPath(abs, filepath.Join(dir, rel), g); err != nil {
			snap.Failures = append(snap.Failures, Failure{Path: abs, Reason: err.Error()})
			continue
		}
		snap.FilesBackedUp = append(snap.FilesBackedUp, abs)
		snap.Manifest[abs] = rel
	}

	for _, p := range dbPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			snap.Failures = append(snap.Failures, Failure{Path: p, Reason: err.Error()})
			continue
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			continue
		}
		if _, dup := snap.Databases[abs]; dup {
			continue
		}
		rel := filepath.Join(databasesDir, fmt.Sprintf("%03d_%s", len(snap.Databases), filepath.Base(abs)))
		if err := copyFile(abs, filepath.Join(dir, rel)); err != nil {
			snap.Failures = append(snap.Failures, Failure{Path: abs, Reason: err.Error()})
			continue
		}
		if snap.Databases == nil {
			snap.Databases = map[string]string{}
		}
		snap.Databases[abs] = rel
		snap.DatabaseBackup = filepath.Join(dir, databasesDir)
	}

	m.index.Snapshots = append(m.index.Snapshots, snap)
	if err := m.save(); err != nil {
		m.index.Snapshots = m.index.Snapshots[:len(m.index.Snapshots)-1]
		_ = os.RemoveAll(dir)
		return nil, err
	}

	out := snap
	if snap.Partial() {
		return &out, fmt.Errorf("snapshot %s: %w: %d path(s) failed", snap.ID, ErrPartialCopy, len(snap.Failures))
	}
	return &out, nil
}

// Restore copies every recorded path back to its original location,
// creating parent directories as needed. Directory backups are overlaid:
// files added after the snapshot are not removed. Database backups are
// not restored; their location is reported in the result.
func (m *Manager) Restore(id string) (*RestoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.find(id)
	if !ok {
		return nil, fmt.Errorf("snapshot %q: %w", id, ErrNotFound)
	}

	dir := filepath.Join(m.root, snap.ID)
	res := &RestoreResult{
		SnapshotID:     snap.ID,
		Restored:       []string{},
		DatabaseBackup: snap.DatabaseBackup,
		Databases:      snap.Databases,
	}
	for _, original := range snap.FilesBackedUp {
		backup, err := m.backupFor(dir, snap, original)
		if err != nil {
			res.Failures = append(res.Failures, Failure{Path: original, Reason: err.Error()})
			continue
		}
		if err := os.MkdirAll(filepath.Dir(original), 0o755); err != nil {
			res.Failures = append(res.Failures, Failure{Path: original, Reason: err.Error()})
			continue
		}
		if err := copyPath(backup, original, guard{}); err != nil {
			res.Failures = append(res.Failures, Failure{Path: original, Reason: err.Error()})
			continue
		}
		res.Restored = append(res.Restored, original)
	}

	if len(res.Failures) > 0 {
		return res, fmt.Errorf("snapshot %s: %w: %d path(s) not restored", snap.ID, ErrPartialCopy, len(res.Failures))
	}
	return res, nil
}

// backupFor locates the backup of an original path. The manifest is
// authoritative; entries without one fall back to a filename lookup,
// which is ambiguous when two sources share a basename.
func (m *Manager) backupFor(dir string, snap Snapshot, original string) (string, error) {
	if rel, ok := snap.Manifest[original]; ok {
		return filepath.Join(dir, rel), nil
	}

	byName := filepath.Join(dir, filesDir, filepath.Base(original))
	if _, err := os.Stat(byName); err == nil {
		return byName, nil
	}
	entries, err := os.ReadDir(filepath.Join(dir, filesDir))
	if err != nil {
		return "", fmt.Errorf("reading backup files: %w", err)
	}
	for _, e := range entries {
		if _, name, ok := strings.Cut(e.Name(), "_"); ok && name == filepath.Base(original) {
			return filepath.Join(dir, filesDir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no backup found for %s", original)
}

// Delete drops a snapshot from the index and removes its directory.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.index.Snapshots
	idx := slices.IndexFunc(prev, func(s Snapshot) bool { return s.ID == id })
	if idx < 0 {
		return fmt.Errorf("snapshot %q: %w", id, ErrNotFound)
	}
	m.index.Snapshots = slices.Delete(slices.Clone(prev), idx, idx+1)
	if err := m.save(); err != nil {
		m.index.Snapshots = prev
		return err
	}
	if err := os.RemoveAll(filepath.Join(m.root, id)); err != nil {
		return fmt.Errorf("snapshot: remove %s: %w", id, err)
	}
	return nil
}

// Get returns a snapshot by id.
func (m *Manager) Get(id string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.find(id)
	if !ok {
		return nil, fmt.Errorf("snapshot %q: %w", id, ErrNotFound)
	}
	return &snap, nil
}

// List returns every snapshot, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, len(m.index.Snapshots))
	copy(out, m.index.Snapshots)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID > out[j].ID
	})
	return out
}

// Count returns the number of known snapshots.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.index.Snapshots)
}

func (m *Manager) find(id string) (Snapshot, bool) {
	for _, s := range m.index.Snapshots {
		if s.ID == id {
			return s, true
		}
	}
	return Snapshot{}, false
}

func (m *Manager) load() error {
	data, err := os.ReadFile(filepath.Join(m.root, IndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			m.index = index{Snapshots: []Snapshot{}}
			return nil
		}
		return fmt.Errorf("snapshot: read index: %w", err)
	}
	if err := json.Unmarshal(data, &m.index); err != nil {
		return fmt.Errorf("snapshot: parse index: %w", err)
	}
	return nil
}

func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.index, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal index: %w", err)
	}
	path := filepath.Join(m.root, IndexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: replace index: %w", err)
	}
	return nil
}

// newID returns "snap-<utc timestamp>-<random>", sortable by creation time.
func newID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "snap-" + t.Format("20060102T150405.000000000Z") + "-" + suffix
}
