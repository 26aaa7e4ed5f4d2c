package proposals

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// ProposalsDir is the subdirectory under the data dir where records live.
	ProposalsDir = "proposals"
	// recordExt is the extension of each proposal record file.
	recordExt = ".json"
)

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status   Status
	Category Category
}

// Store defines the persistence interface for proposal records.
// Update always rewrites the entire record.
type Store interface {
	Create(p *Proposal) error
	Get(id string) (*Proposal, error)
	List(f Filter) ([]Proposal, error)
	Update(p *Proposal) error
}

// FileStore implements Store with one indented JSON file per proposal.
type FileStore struct {
	root string
}

// NewFileStore creates a filesystem-backed proposal store rooted at
// <dataDir>/proposals.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{root: filepath.Join(dataDir, ProposalsDir)}
}

// Root returns the directory holding the proposal records.
func (fs *FileStore) Root() string {
	return fs.root
}

// RecordPath returns the path of a proposal's record file.
func (fs *FileStore) RecordPath(id string) string {
	return filepath.Join(fs.root, id+recordExt)
}

// Create persists a new proposal. It refuses to overwrite an existing id.
func (fs *FileStore) Create(p *Proposal) error {
	if !validID(p.ID) {
		return fmt.Errorf("invalid proposal id %q", p.ID)
	}
	if err := os.MkdirAll(fs.root, 0o755); err != nil {
		return fmt.Errorf("creating proposals directory: %w", err)
	}
	if _, err := os.Stat(fs.RecordPath(p.ID)); err == nil {
		return fmt.Errorf("proposal %q already exists", p.ID)
	}
	return fs.write(p)
}

// Get reads a proposal by id.
func (fs *FileStore) Get(id string) (*Proposal, error) {
	if !validID(id) {
		return nil, fmt.Errorf("proposal %q: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(fs.RecordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("proposal %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("reading proposal record: %w", err)
	}

	var p Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing record for %q: %w", id, err)
	}
	if err := ValidateStatus(p.Status); err != nil {
		return nil, fmt.Errorf("record for %q: %w", id, err)
	}
	return &p, nil
}

// List returns the proposals matching the filter, newest first.
// Unreadable records are skipped.
func (fs *FileStore) List(f Filter) ([]Proposal, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Proposal{}, nil
		}
		return nil, fmt.Errorf("reading proposals directory: %w", err)
	}

	result := []Proposal{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}
		p, err := fs.Get(strings.TrimSuffix(entry.Name(), recordExt))
		if err != nil {
			continue // skip unreadable records
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		result = append(result, *p)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// Update rewrites an existing proposal record in full.
func (fs *FileStore) Update(p *Proposal) error {
	if !validID(p.ID) {
		return fmt.Errorf("proposal %q: %w", p.ID, ErrNotFound)
	}
	if _, err := os.Stat(fs.RecordPath(p.ID)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("proposal %q: %w", p.ID, ErrNotFound)
		}
		return fmt.Errorf("checking proposal record: %w", err)
	}
	return fs.write(p)
}

// write marshals a proposal and replaces its record atomically
// (temp file + rename) so a crash never leaves a truncated record.
func (fs *FileStore) write(p *Proposal) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling proposal: %w", err)
	}

	path := fs.RecordPath(p.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing proposal record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing proposal record: %w", err)
	}
	return nil
}
