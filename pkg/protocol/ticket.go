package protocol

// Status names as they appear on the wire.
const (
	StatusToDo       = "ToDo"
	StatusInProgress = "InProgress"
	StatusDone       = "Done"
)

// Ticket is the serialized form of a stored ticket.
type Ticket struct {
	ID          uint64 `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// CreateTicketRequest is the body of POST /tickets.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PatchTicketRequest is the body of PATCH /tickets/{id}. Nil fields are
// left unchanged; an explicit JSON null is treated the same as absence.
type PatchTicketRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// Health is the body of GET /health.
type Health struct {
	Status   string         `json:"status"`
	Tickets  int            `json:"tickets"`
	NextID   uint64         `json:"next_id"`
	ByStatus map[string]int `json:"by_status"`
}
