package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danielrichman/snowball-ticketing/internal/clock"
	"github.com/danielrichman/snowball-ticketing/internal/notify"
)

type ReleaseRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	AcquireUserLock(ctx context.Context, userID int64) error
	ReleaseWaiting(ctx context.Context, userID int64, ticketIDs []int64, note string) error
}

type ReleaseService struct {
	repo         ReleaseRepository
	clock        clock.Clock
	notifier     notify.Notifier
	logger       *logrus.Logger
	askPayWithin int // days
}

const defaultAskPayWithin = 7

func NewReleaseService(repo ReleaseRepository, clk clock.Clock, notifier notify.Notifier, logger *logrus.Logger, opts ...ReleaseServiceOption) *ReleaseService {
	svc := &ReleaseService{
		repo:         repo,
		clock:        clk,
		notifier:     notifier,
		logger:       logger,
		askPayWithin: defaultAskPayWithin,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReleaseServiceOption func(*ReleaseService)

// WithAskPayWithin sets the payment deadline (days) quoted in the release
// notification.
func WithAskPayWithin(days int) ReleaseServiceOption {
	return func(s *ReleaseService) {
		if days > 0 {
			s.askPayWithin = days
		}
	}
}

// Release promotes the given waiting-list tickets to active. Every target
// must be finalised and flagged waiting; a mismatch rolls the whole update
// back. The notification fires only after the transaction commits, so the
// user lock is never held across the notifier.
func (s *ReleaseService) Release(ctx context.Context, userID int64, ticketIDs []int64) error {
	now := s.clock.Now()
	note := fmt.Sprintf("Released from waiting list on %s\n", now.UTC().Format(time.RFC3339))

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.AcquireUserLock(txCtx, userID); err != nil {
			return err
		}
		return s.repo.ReleaseWaiting(txCtx, userID, ticketIDs, note)
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"ticket_ids": ticketIDs,
	}).Info("tickets released from waiting list")

	s.notifier.Notify(ctx, notify.Message{
		Template: "waiting-release",
		UserID:   userID,
		Vars: map[string]any{
			"ticket_ids":     ticketIDs,
			"ask_pay_within": s.askPayWithin,
		},
	})
	return nil
}
