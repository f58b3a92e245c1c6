package ticket

import "errors"

var (
	// ErrNotFound is returned when no ticket has the requested id.
	ErrNotFound = errors.New("ticket not found")
	// ErrInvalidDraft is returned when a draft or patch carries a zero
	// Title or Description that did not come from a constructor.
	ErrInvalidDraft = errors.New("ticket: draft holds an unvalidated field")
)

// Draft is the input used to create a ticket.
type Draft struct {
	Title       Title
	Description Description
}

// Ticket is a stored ticket record. ID is assigned by the store.
type Ticket struct {
	ID          ID
	Title       Title
	Description Description
	Status      Status
}

// Patch lists replacement values for a ticket. Nil fields are left unchanged.
type Patch struct {
	Title       *Title
	Description *Description
	Status      *Status
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil
}

func (p Patch) check() error {
	if p.Title != nil && p.Title.IsZero() {
		return ErrInvalidDraft
	}
	if p.Description != nil && p.Description.IsZero() {
		return ErrInvalidDraft
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrUnknownStatus
	}
	return nil
}

func (p Patch) apply(t *Ticket) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}

func (d Draft) check() error {
	if d.Title.IsZero() || d.Description.IsZero() {
		return ErrInvalidDraft
	}
	return nil
}

// Stats summarizes a store's contents.
type Stats struct {
	Tickets  int
	NextID   ID
	ByStatus map[Status]int
}

// Store owns all tickets and id allocation. Implementations serialize
// every call behind a single exclusive lock and hand out copies only.
type Store interface {
	// Add allocates the next id and stores a new ToDo ticket built from d.
	Add(d Draft) (Ticket, error)
	// Get returns a snapshot of the ticket, or ErrNotFound.
	Get(id ID) (Ticket, error)
	// Update applies p to the ticket atomically and returns the result,
	// or ErrNotFound.
	Update(id ID, p Patch) (Ticket, error)
	// Stats reports counts for health checks and reporting.
	Stats() (Stats, error)
}
