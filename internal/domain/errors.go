package domain

import (
	"errors"
	"fmt"
)

// Buy refusals. The wrapping chains mirror the reason taxonomy: every
// refusal matches ErrBuyFailed with errors.Is; the form-race reasons (the
// caller acted on a stale view of availability and should simply re-render)
// additionally match ErrFormRace, and ErrWaitingQuotaMet matches ErrQuotaMet.
var (
	ErrBuyFailed = errors.New("buy failed")

	ErrInsufficientSpare = fmt.Errorf("%w: insufficient spare tickets", ErrBuyFailed)
	ErrQPPAnyMet         = fmt.Errorf("%w: per-person limit met", ErrBuyFailed)
	ErrQPPTypeMet        = fmt.Errorf("%w: per-person limit met for this ticket type", ErrBuyFailed)

	ErrFormRace      = fmt.Errorf("%w: availability changed", ErrBuyFailed)
	ErrIncorrectMode = fmt.Errorf("%w: tickets are not available", ErrFormRace)
	ErrQuotaMet      = fmt.Errorf("%w: the quota has been met", ErrFormRace)
	ErrQuotaNotMet   = fmt.Errorf("%w: the quota has not been met", ErrFormRace)

	ErrWaitingQuotaMet = fmt.Errorf("%w (waiting list)", ErrQuotaMet)
)

var (
	ErrInvalidCount   = errors.New("ticket count must be at least one")
	ErrTicketNotFound = errors.New("ticket does not exist")
	ErrUserNotFound   = errors.New("no such user")
	ErrScopeNotFound  = errors.New("no settings row for scope")
	ErrNotFinalised   = errors.New("ticket is not finalised")
)

// ErrRowCount marks an update that touched a different number of rows than
// its preconditions guarantee. It is an invariant violation: the enclosing
// transaction must roll back.
var ErrRowCount = errors.New("unexpected affected row count")

// AlreadyFinalisedError reports that a ticket was finalised by someone else
// first. It carries the row as it now exists so the caller can discard its
// stale copy and redisplay.
type AlreadyFinalisedError struct {
	Ticket Ticket
}

func (e *AlreadyFinalisedError) Error() string {
	return fmt.Sprintf("ticket %d is already finalised", e.Ticket.ID)
}
