package ticket

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Length limits in bytes.
const (
	MaxTitleLen       = 50
	MaxDescriptionLen = 500
)

var (
	ErrTitleEmpty         = errors.New("the title cannot be empty")
	ErrTitleTooLong       = fmt.Errorf("the title cannot be longer than %d bytes", MaxTitleLen)
	ErrDescriptionEmpty   = errors.New("the description cannot be empty")
	ErrDescriptionTooLong = fmt.Errorf("the description cannot be longer than %d bytes", MaxDescriptionLen)
	ErrUnknownStatus      = errors.New("unknown status")
)

// ID identifies a ticket within a store.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a base-10 ticket id.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ticket id %q: %w", s, err)
	}
	return ID(n), nil
}

// Title is a validated ticket title. The zero value is not a valid title;
// use NewTitle.
type Title struct {
	s string
}

// NewTitle validates raw and wraps it unchanged.
func NewTitle(raw string) (Title, error) {
	switch {
	case len(raw) == 0:
		return Title{}, ErrTitleEmpty
	case len(raw) > MaxTitleLen:
		return Title{}, ErrTitleTooLong
	}
	return Title{s: raw}, nil
}

func (t Title) String() string { return t.s }

// Compare orders titles by their underlying bytes.
func (t Title) Compare(o Title) int { return strings.Compare(t.s, o.s) }

func (t Title) IsZero() bool { return t.s == "" }

func (t Title) MarshalText() ([]byte, error) { return []byte(t.s), nil }

func (t *Title) UnmarshalText(b []byte) error {
	v, err := NewTitle(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Description is a validated ticket description. The zero value is not a
// valid description; use NewDescription.
type Description struct {
	s string
}

// NewDescription validates raw and wraps it unchanged.
func NewDescription(raw string) (Description, error) {
	switch {
	case len(raw) == 0:
		return Description{}, ErrDescriptionEmpty
	case len(raw) > MaxDescriptionLen:
		return Description{}, ErrDescriptionTooLong
	}
	return Description{s: raw}, nil
}

func (d Description) String() string { return d.s }

func (d Description) Compare(o Description) int { return strings.Compare(d.s, o.s) }

func (d Description) IsZero() bool { return d.s == "" }

func (d Description) MarshalText() ([]byte, error) { return []byte(d.s), nil }

func (d *Description) UnmarshalText(b []byte) error {
	v, err := NewDescription(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Status is the workflow state of a ticket. Any status may move to any other.
type Status uint8

const (
	StatusToDo Status = iota
	StatusInProgress
	StatusDone
)

var statusNames = [...]string{
	StatusToDo:       "ToDo",
	StatusInProgress: "InProgress",
	StatusDone:       "Done",
}

// Statuses lists every status in declaration order.
func Statuses() []Status {
	return []Status{StatusToDo, StatusInProgress, StatusDone}
}

// ParseStatus accepts the exact names "ToDo", "InProgress" and "Done".
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if s == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q (want ToDo, InProgress or Done)", ErrUnknownStatus, s)
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

func (s Status) Valid() bool { return int(s) < len(statusNames) }

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w %d", ErrUnknownStatus, s)
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
