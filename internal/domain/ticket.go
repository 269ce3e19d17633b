package domain

import "time"

type TicketType string

const (
	TicketStandard TicketType = "standard"
	TicketVIP      TicketType = "vip"
)

// Expiry reasons recorded on unfinalised or purged tickets.
const (
	ExpiresNotFinalised = "not-finalised"
	ExpiresNotPaid      = "not-paid"
)

// Ticket is a row in the tickets table. Nullable timestamps double as state:
// a ticket is finalised iff Finalised is non-nil, paid iff Paid is non-nil,
// and holds inventory while Expires is nil or in the future.
type Ticket struct {
	ID          int64
	UserID      int64
	VIP         bool
	WaitingList bool
	QuotaExempt bool
	Price       int // pence
	Created     time.Time

	Expires       *time.Time
	ExpiresReason *string
	Finalised     *time.Time
	Paid          *time.Time

	Notes string

	PersonType        *string
	Surname           *string
	Othernames        *string
	CollegeID         *int
	MatriculationYear *int
}

func (t Ticket) Type() TicketType {
	if t.VIP {
		return TicketVIP
	}
	return TicketStandard
}

// Expired reports whether the ticket's soft lease has lapsed at now.
func (t Ticket) Expired(now time.Time) bool {
	return t.Expires != nil && !t.Expires.After(now)
}

// PersonalDetails are the only fields finalisation may set.
type PersonalDetails struct {
	PersonType        string
	Surname           string
	Othernames        string
	CollegeID         *int
	MatriculationYear *int
}

// TicketInsertion describes a batch of identical reservation rows created
// by one accepted buy.
type TicketInsertion struct {
	UserID      int64
	VIP         bool
	WaitingList bool
	QuotaExempt bool
	Price       int
	Count       int
	Created     time.Time
	Expires     time.Time
}

// TicketFilter selects tickets by their nullable-timestamp and flag columns.
// A nil field means "don't care".
type TicketFilter struct {
	VIP         *bool
	WaitingList *bool
	QuotaExempt *bool
	Finalised   *bool
	Paid        *bool
	Expired     *bool
}

func BoolPtr(v bool) *bool { return &v }
