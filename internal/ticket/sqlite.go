package ticket

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a private in-memory SQLite database.
// Nothing is written to disk; the data lives as long as the store.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens an in-memory database identified by name and
// creates the schema. Stores opened with different names never share data.
func NewSQLiteStore(name string) (*SQLiteStore, error) {
	if name == "" {
		name = "tickets"
	}
	dsn := fmt.Sprintf("file:%s?mode=memory", url.PathEscape(name))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	// The database disappears with its last connection, so pin exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id          INTEGER PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'ToDo'
		);

		CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			next INTEGER NOT NULL
		);

		INSERT OR IGNORE INTO counters (name, next) VALUES ('tickets', 0);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Add(d Draft) (Ticket, error) {
	if err := d.check(); err != nil {
		return Ticket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket store: add: %w", err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRow(`SELECT next FROM counters WHERE name = 'tickets'`).Scan(&next); err != nil {
		return Ticket{}, fmt.Errorf("ticket store: add: read counter: %w", err)
	}
	if _, err := tx.Exec(`UPDATE counters SET next = next + 1 WHERE name = 'tickets'`); err != nil {
		return Ticket{}, fmt.Errorf("ticket store: add: bump counter: %w", err)
	}

	t := Ticket{
		ID:          ID(next),
		Title:       d.Title,
		Description: d.Description,
		Status:      StatusToDo,
	}
	_, err = tx.Exec(`INSERT INTO tickets (id, title, description, status) VALUES (?, ?, ?, ?)`,
		next, t.Title.String(), t.Description.String(), t.Status.String())
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket store: add: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Ticket{}, fmt.Errorf("ticket store: add: commit: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Get(id ID) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := scanTicket(s.db.QueryRow(`SELECT id, title, description, status FROM tickets WHERE id = ?`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket store: get %d: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) Update(id ID, p Patch) (Ticket, error) {
	if err := p.check(); err != nil {
		return Ticket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket store: update: %w", err)
	}
	defer tx.Rollback()

	t, err := scanTicket(tx.QueryRow(`SELECT id, title, description, status FROM tickets WHERE id = ?`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket store: update %d: %w", id, err)
	}
	if p.Empty() {
		return t, nil
	}

	p.apply(&t)
	_, err = tx.Exec(`UPDATE tickets SET title = ?, description = ?, status = ? WHERE id = ?`,
		t.Title.String(), t.Description.String(), t.Status.String(), int64(id))
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket store: update %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Ticket{}, fmt.Errorf("ticket store: update %d: commit: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{ByStatus: make(map[Status]int, len(statusNames))}
	for _, status := range Statuses() {
		st.ByStatus[status] = 0
	}

	var next int64
	if err := s.db.QueryRow(`SELECT next FROM counters WHERE name = 'tickets'`).Scan(&next); err != nil {
		return Stats{}, fmt.Errorf("ticket store: stats: %w", err)
	}
	st.NextID = ID(next)

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("ticket store: stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return Stats{}, fmt.Errorf("ticket store: stats scan: %w", err)
		}
		status, err := ParseStatus(name)
		if err != nil {
			return Stats{}, fmt.Errorf("ticket store: stats: %w", err)
		}
		st.ByStatus[status] = n
		st.Tickets += n
	}
	return st, rows.Err()
}

// Close releases the database. The stored tickets are discarded.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

// scanTicket rebuilds a ticket from a row. Rows are only ever written from
// validated values, so the constructors are bypassed here.
func scanTicket(row scannable) (Ticket, error) {
	var (
		id                         int64
		title, description, status string
	)
	if err := row.Scan(&id, &title, &description, &status); err != nil {
		return Ticket{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{
		ID:          ID(id),
		Title:       Title{s: title},
		Description: Description{s: description},
		Status:      st,
	}, nil
}
