package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danielrichman/snowball-ticketing/internal/clock"
	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

type fakeFinalizeRepo struct {
	tickets   map[int64]domain.Ticket
	userLocks []int64
}

func newFakeFinalizeRepo(tickets ...domain.Ticket) *fakeFinalizeRepo {
	m := make(map[int64]domain.Ticket, len(tickets))
	for _, t := range tickets {
		m[t.ID] = t
	}
	return &fakeFinalizeRepo{tickets: m}
}

func (f *fakeFinalizeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeFinalizeRepo) AcquireUserLock(ctx context.Context, userID int64) error {
	f.userLocks = append(f.userLocks, userID)
	return nil
}

func (f *fakeFinalizeRepo) Finalise(ctx context.Context, ticketID int64, now time.Time, d domain.PersonalDetails) (*domain.Ticket, error) {
	t, ok := f.tickets[ticketID]
	if !ok || t.Finalised != nil {
		// conditional update matched zero rows
		return nil, nil
	}
	t.Finalised = &now
	t.Expires = nil
	t.ExpiresReason = nil
	t.PersonType = &d.PersonType
	t.Surname = &d.Surname
	t.Othernames = &d.Othernames
	t.CollegeID = d.CollegeID
	t.MatriculationYear = d.MatriculationYear
	f.tickets[ticketID] = t
	return &t, nil
}

func (f *fakeFinalizeRepo) GetTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	t, ok := f.tickets[ticketID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func TestFinalizeService_Finalize(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(10 * time.Minute)
	reason := domain.ExpiresNotFinalised

	reserved := domain.Ticket{
		ID: 7, UserID: 3, Price: 6900, Created: now.Add(-time.Minute),
		Expires: &expires, ExpiresReason: &reason,
	}
	details := domain.PersonalDetails{PersonType: "undergraduate", Surname: "Richman", Othernames: "Daniel"}

	t.Run("finalises a reserved ticket", func(t *testing.T) {
		repo := newFakeFinalizeRepo(reserved)
		svc := NewFinalizeService(repo, clock.NewFixed(now), testLogger())

		out, err := svc.Finalize(context.Background(), reserved, details)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Finalised == nil || !out.Finalised.Equal(now) {
			t.Fatalf("expected finalised at %v, got %v", now, out.Finalised)
		}
		if out.Expires != nil || out.ExpiresReason != nil {
			t.Fatalf("expected expiry cleared, got %v (%v)", out.Expires, out.ExpiresReason)
		}
		if out.Surname == nil || *out.Surname != "Richman" {
			t.Fatalf("expected surname applied, got %v", out.Surname)
		}
		if len(repo.userLocks) != 1 || repo.userLocks[0] != 3 {
			t.Fatalf("expected user lock on 3, got %v", repo.userLocks)
		}
	})

	t.Run("losing the race reports the winner's row", func(t *testing.T) {
		winner := reserved
		finalisedAt := now.Add(-time.Second)
		winner.Finalised = &finalisedAt
		winner.Expires = nil
		winner.ExpiresReason = nil
		repo := newFakeFinalizeRepo(winner)
		svc := NewFinalizeService(repo, clock.NewFixed(now), testLogger())

		// The caller still holds the unfinalised view.
		_, err := svc.Finalize(context.Background(), reserved, details)

		var already *domain.AlreadyFinalisedError
		if !errors.As(err, &already) {
			t.Fatalf("expected AlreadyFinalisedError, got %v", err)
		}
		if already.Ticket.Finalised == nil || !already.Ticket.Finalised.Equal(finalisedAt) {
			t.Fatalf("expected the committed row, got %+v", already.Ticket)
		}
	})

	t.Run("vanished ticket", func(t *testing.T) {
		repo := newFakeFinalizeRepo()
		svc := NewFinalizeService(repo, clock.NewFixed(now), testLogger())

		_, err := svc.Finalize(context.Background(), reserved, details)
		if !errors.Is(err, domain.ErrTicketNotFound) {
			t.Fatalf("expected ErrTicketNotFound, got %v", err)
		}
	})

	t.Run("stale caller copy already finalised", func(t *testing.T) {
		stale := reserved
		finalisedAt := now.Add(-time.Hour)
		stale.Finalised = &finalisedAt

		repo := newFakeFinalizeRepo(stale)
		svc := NewFinalizeService(repo, clock.NewFixed(now), testLogger())

		_, err := svc.Finalize(context.Background(), stale, details)
		var already *domain.AlreadyFinalisedError
		if !errors.As(err, &already) {
			t.Fatalf("expected AlreadyFinalisedError, got %v", err)
		}
	})
}
