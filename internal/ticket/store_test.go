package ticket

import (
	"errors"
	"sort"
	"sync"
	"testing"
)

func mustDraft(t *testing.T, title, description string) Draft {
	t.Helper()
	tt, err := NewTitle(title)
	if err != nil {
		t.Fatalf("title %q: %v", title, err)
	}
	d, err := NewDescription(description)
	if err != nil {
		t.Fatalf("description %q: %v", description, err)
	}
	return Draft{Title: tt, Description: d}
}

// storeFactories lists every backend the contract tests run against.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return newTestSQLiteStore(t) },
	}
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestAddAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		draft := mustDraft(t, "Fix bug", "NPE on login")

		created, err := s.Add(draft)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if created.ID != 0 {
			t.Errorf("first id = %d, want 0", created.ID)
		}

		got, err := s.Get(created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		want := Ticket{ID: 0, Title: draft.Title, Description: draft.Description, Status: StatusToDo}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})
}

func TestAdd_SequentialIDs(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		for i := 0; i < 20; i++ {
			created, err := s.Add(mustDraft(t, "t", "d"))
			if err != nil {
				t.Fatalf("add %d: %v", i, err)
			}
			if created.ID != ID(i) {
				t.Fatalf("add %d returned id %d", i, created.ID)
			}
		}
	})
}

func TestAdd_RejectsZeroValues(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		if _, err := s.Add(Draft{}); !errors.Is(err, ErrInvalidDraft) {
			t.Fatalf("err = %v, want ErrInvalidDraft", err)
		}
		// A rejected draft must not consume an id.
		created, err := s.Add(mustDraft(t, "t", "d"))
		if err != nil {
			t.Fatal(err)
		}
		if created.ID != 0 {
			t.Errorf("id = %d, want 0", created.ID)
		}
	})
}

func TestGetNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		if _, err := s.Get(999); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		s.Add(mustDraft(t, "t", "d"))
		if _, err := s.Get(1); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound for next unissued id", err)
		}
	})
}

func TestUpdate_StatusOnly(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		draft := mustDraft(t, "Fix bug", "NPE on login")
		created, _ := s.Add(draft)

		status := StatusInProgress
		got, err := s.Update(created.ID, Patch{Status: &status})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Status != StatusInProgress {
			t.Errorf("status = %v", got.Status)
		}
		if got.Title != draft.Title || got.Description != draft.Description {
			t.Errorf("title/description changed: %+v", got)
		}

		stored, _ := s.Get(created.ID)
		if stored != got {
			t.Errorf("stored %+v != returned %+v", stored, got)
		}
	})
}

func TestUpdate_TitleOnly(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		draft := mustDraft(t, "Old", "Keep me")
		created, _ := s.Add(draft)
		done := StatusDone
		s.Update(created.ID, Patch{Status: &done})

		title, _ := NewTitle("New")
		got, err := s.Update(created.ID, Patch{Title: &title})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Title.String() != "New" {
			t.Errorf("title = %q", got.Title)
		}
		if got.Description != draft.Description || got.Status != StatusDone {
			t.Errorf("other fields changed: %+v", got)
		}
	})
}

func TestUpdate_AllFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		created, _ := s.Add(mustDraft(t, "a", "b"))

		title, _ := NewTitle("c")
		desc, _ := NewDescription("d")
		status := StatusDone
		got, err := s.Update(created.ID, Patch{Title: &title, Description: &desc, Status: &status})
		if err != nil {
			t.Fatal(err)
		}
		want := Ticket{ID: created.ID, Title: title, Description: desc, Status: StatusDone}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})
}

func TestUpdate_EmptyPatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		created, _ := s.Add(mustDraft(t, "a", "b"))
		got, err := s.Update(created.ID, Patch{})
		if err != nil {
			t.Fatal(err)
		}
		if got != created {
			t.Errorf("empty patch changed ticket: %+v", got)
		}
	})
}

func TestUpdate_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		status := StatusDone
		if _, err := s.Update(3, Patch{Status: &status}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestUpdate_InvalidPatchLeavesTicket(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		created, _ := s.Add(mustDraft(t, "a", "b"))

		var zero Title
		status := StatusDone
		if _, err := s.Update(created.ID, Patch{Title: &zero, Status: &status}); !errors.Is(err, ErrInvalidDraft) {
			t.Fatalf("err = %v, want ErrInvalidDraft", err)
		}
		got, _ := s.Get(created.ID)
		if got != created {
			t.Errorf("ticket changed after rejected patch: %+v", got)
		}
	})
}

func TestStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		st, err := s.Stats()
		if err != nil {
			t.Fatal(err)
		}
		if st.Tickets != 0 || st.NextID != 0 {
			t.Errorf("empty stats = %+v", st)
		}

		for i := 0; i < 3; i++ {
			s.Add(mustDraft(t, "t", "d"))
		}
		done := StatusDone
		s.Update(1, Patch{Status: &done})

		st, err = s.Stats()
		if err != nil {
			t.Fatal(err)
		}
		if st.Tickets != 3 || st.NextID != 3 {
			t.Errorf("stats = %+v", st)
		}
		if st.ByStatus[StatusToDo] != 2 || st.ByStatus[StatusDone] != 1 || st.ByStatus[StatusInProgress] != 0 {
			t.Errorf("by status = %v", st.ByStatus)
		}
		if _, ok := st.ByStatus[StatusInProgress]; !ok {
			t.Error("statuses with no tickets should still be listed")
		}
	})
}

func TestConcurrentAdd(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		const workers, perWorker = 8, 25
		draft := mustDraft(t, "t", "d")

		var (
			mu  sync.Mutex
			ids []int
			wg  sync.WaitGroup
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					created, err := s.Add(draft)
					if err != nil {
						t.Errorf("add: %v", err)
						return
					}
					mu.Lock()
					ids = append(ids, int(created.ID))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		sort.Ints(ids)
		if len(ids) != workers*perWorker {
			t.Fatalf("got %d ids", len(ids))
		}
		for i, id := range ids {
			if id != i {
				t.Fatalf("ids not gapless: position %d holds %d", i, id)
			}
		}
	})
}

func TestSnapshotIsCopy(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		created, _ := s.Add(mustDraft(t, "a", "b"))
		snap, _ := s.Get(created.ID)
		snap.Status = StatusDone

		again, _ := s.Get(created.ID)
		if again.Status != StatusToDo {
			t.Error("mutating a snapshot changed the stored ticket")
		}
	})
}
