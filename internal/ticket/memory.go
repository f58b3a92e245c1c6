package ticket

import "sync"

// MemoryStore implements Store with a mutex-guarded map.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[ID]Ticket
	next    ID
}

// NewMemoryStore returns an empty store whose first id is 0.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[ID]Ticket)}
}

func (s *MemoryStore) Add(d Draft) (Ticket, error) {
	if err := d.check(); err != nil {
		return Ticket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := Ticket{
		ID:          s.next,
		Title:       d.Title,
		Description: d.Description,
		Status:      StatusToDo,
	}
	s.next++
	s.tickets[t.ID] = t
	return t, nil
}

func (s *MemoryStore) Get(id ID) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Update(id ID, p Patch) (Ticket, error) {
	if err := p.check(); err != nil {
		return Ticket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	p.apply(&t)
	s.tickets[id] = t
	return t, nil
}

func (s *MemoryStore) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Tickets:  len(s.tickets),
		NextID:   s.next,
		ByStatus: make(map[Status]int, len(statusNames)),
	}
	for _, status := range Statuses() {
		st.ByStatus[status] = 0
	}
	for _, t := range s.tickets {
		st.ByStatus[t.Status]++
	}
	return st, nil
}
