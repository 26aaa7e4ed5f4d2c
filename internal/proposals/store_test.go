package proposals

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- NewID ---

func TestNewID_SortableAndUnique(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Nanosecond)

	a, b := NewID(t1), NewID(t2)
	if !(a < b) {
		t.Errorf("NewID not sortable: %s >= %s", a, b)
	}

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := NewID(t1)
		if seen[id] {
			t.Fatalf("duplicate id %s for identical timestamps", id)
		}
		seen[id] = true
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		if validID(id) {
			t.Errorf("validID(%q) = true, want false", id)
		}
	}
	if !validID(NewID(frozenNow)) {
		t.Error("generated id should be valid")
	}
}

// --- Create / Get ---

func TestFileStore_CreateWritesJSON(t *testing.T) {
	store := NewFileStore(t.TempDir())
	p := testProposal(t)

	if err := store.Create(p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	data, err := os.ReadFile(store.RecordPath(p.ID))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var parsed Proposal
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("record is not valid JSON: %v", err)
	}
	if parsed.Title != "Tune cache eviction" {
		t.Errorf("Title = %q", parsed.Title)
	}
	if !strings.Contains(string(data), "\n  \"") {
		t.Error("record should be indented for diffability")
	}
}

func TestFileStore_CreateRefusesDuplicate(t *testing.T) {
	store := NewFileStore(t.TempDir())
	p := testProposal(t)
	if err := store.Create(p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(p); err == nil {
		t.Fatal("second Create with the same id should fail")
	}
}

func TestFileStore_GetNotFound(t *testing.T) {
	store := NewFileStore(t.TempDir())
	for _, id := range []string{"missing", "../escape"} {
		_, err := store.Get(id)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestFileStore_GetRejectsUnknownStatus(t *testing.T) {
	store := NewFileStore(t.TempDir())
	p := testProposal(t)
	p.Status = Status("haunted")
	if err := store.Create(p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Get(p.ID); err == nil {
		t.Fatal("Get should reject a record with an unknown status")
	}
}

// --- Update ---

func TestFileStore_UpdateRewritesWholeRecord(t *testing.T) {
	store := NewFileStore(t.TempDir())
	p := testProposal(t)
	_ = store.Create(p)

	if err := Submit(p); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// In-memory and durable views diverge until Update is called.
	stale, _ := store.Get(p.ID)
	if stale.Status != StatusDraft {
		t.Fatalf("durable status = %s before Update, want draft", stale.Status)
	}

	if err := store.Update(p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := store.Get(p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPendingReview {
		t.Errorf("durable status = %s, want pending_review", got.Status)
	}
	if len(got.ExecutionLog) != len(p.ExecutionLog) {
		t.Errorf("ExecutionLog = %d entries, want %d", len(got.ExecutionLog), len(p.ExecutionLog))
	}

	if _, err := os.Stat(store.RecordPath(p.ID) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not be left behind")
	}
}

func TestFileStore_UpdateMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	p := testProposal(t)
	if err := store.Update(p); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update error = %v, want ErrNotFound", err)
	}
}

// --- List ---

func TestFileStore_ListNewestFirstWithFilters(t *testing.T) {
	store := NewFileStore(t.TempDir())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mk := func(offset time.Duration, cat Category, status Status) *Proposal {
		p := testProposal(t)
		p.ID = NewID(base.Add(offset))
		p.CreatedAt = base.Add(offset)
		p.Category = cat
		p.Status = status
		if err := store.Create(p); err != nil {
			t.Fatalf("Create: %v", err)
		}
		return p
	}
	oldest := mk(0, CategoryPerformance, StatusDraft)
	middle := mk(time.Hour, CategorySafety, StatusApproved)
	newest := mk(2*time.Hour, CategoryPerformance, StatusApproved)

	all, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	wantOrder := []string{newest.ID, middle.ID, oldest.ID}
	if len(all) != 3 {
		t.Fatalf("List = %d, want 3", len(all))
	}
	for i, id := range wantOrder {
		if all[i].ID != id {
			t.Errorf("List[%d] = %s, want %s", i, all[i].ID, id)
		}
	}

	approved, _ := store.List(Filter{Status: StatusApproved})
	if len(approved) != 2 {
		t.Errorf("approved = %d, want 2", len(approved))
	}
	perfApproved, _ := store.List(Filter{Status: StatusApproved, Category: CategoryPerformance})
	if len(perfApproved) != 1 || perfApproved[0].ID != newest.ID {
		t.Errorf("performance+approved = %+v, want only newest", perfApproved)
	}
}

func TestFileStore_ListEmptyDir(t *testing.T) {
	store := NewFileStore(t.TempDir())
	got, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List = %v, want empty non-nil slice", got)
	}
}

func TestFileStore_ConcurrentCreate(t *testing.T) {
	store := NewFileStore(t.TempDir())
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := New("concurrent", CategoryTooling, "", nil)
			if err != nil {
				errs <- err
				return
			}
			errs <- store.Create(p)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Create: %v", err)
		}
	}
	all, _ := store.List(Filter{})
	if len(all) != 20 {
		t.Errorf("List = %d, want 20", len(all))
	}
}
