package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danielrichman/snowball-ticketing/internal/clock"
	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

type FinalizeRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	AcquireUserLock(ctx context.Context, userID int64) error
	Finalise(ctx context.Context, ticketID int64, now time.Time, d domain.PersonalDetails) (*domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error)
}

type FinalizeService struct {
	repo   FinalizeRepository
	clock  clock.Clock
	logger *logrus.Logger
}

func NewFinalizeService(repo FinalizeRepository, clk clock.Clock, logger *logrus.Logger) *FinalizeService {
	return &FinalizeService{repo: repo, clock: clk, logger: logger}
}

// Finalize commits the buyer's personal details to a reserved ticket,
// clearing its expiry. The conditional update only matches while finalised
// is still null, so losing a race yields AlreadyFinalisedError carrying the
// row as the winner left it, and a vanished ticket yields ErrTicketNotFound.
func (s *FinalizeService) Finalize(ctx context.Context, ticket domain.Ticket, d domain.PersonalDetails) (domain.Ticket, error) {
	if ticket.Finalised != nil {
		// Stale caller state: same answer as losing the race.
		return domain.Ticket{}, &domain.AlreadyFinalisedError{Ticket: ticket}
	}

	now := s.clock.Now()
	var out domain.Ticket

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.AcquireUserLock(txCtx, ticket.UserID); err != nil {
			return err
		}

		updated, err := s.repo.Finalise(txCtx, ticket.ID, now, d)
		if err != nil {
			return err
		}
		if updated != nil {
			out = *updated
			return nil
		}

		// Zero rows matched: someone else finalised it, or it is gone.
		current, err := s.repo.GetTicket(txCtx, ticket.ID)
		if err != nil {
			return err
		}
		if current != nil {
			return &domain.AlreadyFinalisedError{Ticket: *current}
		}
		return domain.ErrTicketNotFound
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"ticket_id": out.ID,
		"user_id":   out.UserID,
	}).Info("ticket finalised")
	return out, nil
}
