package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danielrichman/snowball-ticketing/internal/clock"
	"github.com/danielrichman/snowball-ticketing/internal/domain"
	"github.com/danielrichman/snowball-ticketing/internal/monitoring"
)

// TicketStore is the slice of the ticket repository the allocation engine
// needs. All methods run against the context transaction when one is open.
type TicketStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	AcquireAllocationLock(ctx context.Context) error
	AcquireUserLock(ctx context.Context, userID int64) error
	Counts(ctx context.Context, now time.Time) (domain.Counts, error)
	UserTickets(ctx context.Context, userID int64, filter domain.TicketFilter, now time.Time) ([]domain.Ticket, error)
	InsertTickets(ctx context.Context, p domain.TicketInsertion) ([]int64, error)
}

type SettingsStore interface {
	Settings(ctx context.Context) (domain.Settings, error)
	LatchQuotaMet(ctx context.Context, scopes []domain.ScopeKey) error
	LatchWaitingQuotaMet(ctx context.Context, scopes []domain.ScopeKey) error
}

type AllocationService struct {
	tickets        TicketStore
	settings       SettingsStore
	clock          clock.Clock
	logger         *logrus.Logger
	reservationTTL time.Duration
}

// A fresh reservation is a soft lease: it holds inventory until the buyer
// finalises it or the expiry passes and count queries stop seeing it.
const defaultReservationTTL = 10 * time.Minute

func NewAllocationService(tickets TicketStore, settings SettingsStore, clk clock.Clock, logger *logrus.Logger, opts ...AllocationServiceOption) *AllocationService {
	svc := &AllocationService{
		tickets:        tickets,
		settings:       settings,
		clock:          clk,
		logger:         logger,
		reservationTTL: defaultReservationTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type AllocationServiceOption func(*AllocationService)

// WithReservationTTL overrides the default soft-lease duration.
func WithReservationTTL(d time.Duration) AllocationServiceOption {
	return func(s *AllocationService) {
		if d > 0 {
			s.reservationTTL = d
		}
	}
}

// policySnapshot is the explicit per-operation cache of settings and fresh
// counts. It is loaded at most once per transaction, after the locks are
// held, and never outlives it.
type policySnapshot struct {
	settings domain.Settings
	counts   domain.Counts
}

func (s *AllocationService) loadSnapshot(ctx context.Context, now time.Time) (policySnapshot, error) {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return policySnapshot{}, err
	}
	counts, err := s.tickets.Counts(ctx, now)
	if err != nil {
		return policySnapshot{}, err
	}
	return policySnapshot{settings: settings, counts: counts}, nil
}

type BuyInput struct {
	User        domain.User
	Type        domain.TicketType
	Count       int
	WaitingList bool
	QuotaExempt bool
}

// Buy reserves in.Count tickets for the user, or refuses with one of the
// domain buy errors. The whole decision runs in one transaction under the
// global allocation lock and the user's lock; counts are re-read fresh
// after the locks are held, never trusted from an earlier view.
func (s *AllocationService) Buy(ctx context.Context, in BuyInput) ([]int64, error) {
	if in.Count < 1 {
		return nil, domain.ErrInvalidCount
	}

	log := s.logger.WithFields(logrus.Fields{
		"user_id":      in.User.ID,
		"group":        in.User.Group,
		"type":         in.Type,
		"count":        in.Count,
		"waiting_list": in.WaitingList,
	})

	now := s.clock.Now()
	var ids []int64

	err := s.tickets.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.tickets.AcquireAllocationLock(txCtx); err != nil {
			return err
		}
		if err := s.tickets.AcquireUserLock(txCtx, in.User.ID); err != nil {
			return err
		}

		snap, err := s.loadSnapshot(txCtx, now)
		if err != nil {
			return err
		}

		if !in.QuotaExempt {
			if err := s.checkQuotas(txCtx, log, snap, in, now); err != nil {
				return err
			}
		}

		prices, err := pricesFrom(snap.settings, in.User.Group)
		if err != nil {
			return err
		}

		ids, err = s.tickets.InsertTickets(txCtx, domain.TicketInsertion{
			UserID:      in.User.ID,
			VIP:         in.Type == domain.TicketVIP,
			WaitingList: in.WaitingList,
			QuotaExempt: in.QuotaExempt,
			Price:       prices[in.Type],
			Count:       in.Count,
			Created:     now,
			Expires:     now.Add(s.reservationTTL),
		})
		return err
	})
	if err != nil {
		monitoring.RecordBuy(in.Type, in.WaitingList, monitoring.BuyOutcome(err))
		return nil, err
	}

	monitoring.RecordBuy(in.Type, in.WaitingList, "accepted")
	log.WithField("ticket_ids", ids).Info("tickets reserved")
	return ids, nil
}

// checkQuotas applies the per-person caps and the quota state machine. It
// must run with both locks held and a snapshot loaded after them.
func (s *AllocationService) checkQuotas(ctx context.Context, log *logrus.Entry, snap policySnapshot, in BuyInput, now time.Time) error {
	avail := s.availabilityFrom(log, snap, in.User.Group, in.Type)

	held, err := s.tickets.UserTickets(ctx, in.User.ID, domain.TicketFilter{
		QuotaExempt: domain.BoolPtr(false),
		Expired:     domain.BoolPtr(false),
	}, now)
	if err != nil {
		return err
	}

	heldAny, heldType := 0, 0
	for _, t := range held {
		heldAny++
		if t.Type() == in.Type {
			heldType++
		}
	}

	if avail.QPPAny != nil && *avail.QPPAny < heldAny+in.Count {
		return domain.ErrQPPAnyMet
	}
	if avail.QPPType != nil && *avail.QPPType < heldType+in.Count {
		return domain.ErrQPPTypeMet
	}

	if avail.Mode != domain.ModeAvailable {
		log.Info("refused: not available (form race)")
		return domain.ErrIncorrectMode
	}

	// The waiting list only opens once the regular quota is exhausted.
	if in.WaitingList && !avail.QuotaMet {
		log.Info("refused: waiting list requested but quota not met (form race)")
		return domain.ErrQuotaNotMet
	}

	quotaMet := avail.QuotaMet
	spare := avail.Spare
	if in.WaitingList {
		quotaMet = avail.WaitingQuotaMet
		spare = avail.WaitingSpare
	}

	if quotaMet {
		log.Info("refused: quota met (form race)")
		if in.WaitingList {
			return domain.ErrWaitingQuotaMet
		}
		return domain.ErrQuotaMet
	}

	if spare != nil && *spare < in.Count {
		// The failed attempt still revealed that the boundary has been
		// reached; latch before refusing so nobody buys ahead of the queue.
		log.WithField("spare", *spare).Info("refused: insufficient spare")
		if err := s.detectQuotaMet(ctx, log, snap, in); err != nil {
			return err
		}
		return domain.ErrInsufficientSpare
	}

	if spare != nil && *spare == in.Count {
		// Hitting the boundary exactly counts: the latch flips now so the
		// next buyer is sent to the waiting list rather than jumping ahead
		// of it when this reservation expires.
		log.Info("exactly met quota")
		if err := s.detectQuotaMet(ctx, log, snap, in); err != nil {
			return err
		}
	}

	return nil
}

// detectQuotaMet latches quota_met on every scope this purchase fills, and
// waiting_quota_met where the waiting quota is (or instantly becomes) full.
// Latches persist in one batched update per flag.
func (s *AllocationService) detectQuotaMet(ctx context.Context, log *logrus.Entry, snap policySnapshot, in BuyInput) error {
	var quotaScopes, waitingScopes []domain.ScopeKey

	for _, key := range domain.ScopeKeysFor(in.User.Group, in.Type) {
		row := snap.settings.Get(key)
		justLatched := false

		if !in.WaitingList {
			count := snap.counts[domain.CountKey{Scope: key}]
			if row.Quota != nil && !row.QuotaMet && count+in.Count >= *row.Quota {
				log.WithField("scope", key.String()).Warn("quota met")
				quotaScopes = append(quotaScopes, key)
				monitoring.RecordQuotaLatch(key, "quota")
				// The waiting quota can be met at the same instant, so
				// re-check it below even for a regular purchase.
				justLatched = true
			}
		}

		if in.WaitingList || justLatched {
			// A regular purchase consumes no waiting slots.
			added := in.Count
			if justLatched {
				added = 0
			}
			waitingCount := snap.counts[domain.CountKey{Waiting: true, Scope: key}]
			if row.WaitingQuota != nil && !row.WaitingQuotaMet && waitingCount+added >= *row.WaitingQuota {
				log.WithField("scope", key.String()).Warn("waiting quota met")
				waitingScopes = append(waitingScopes, key)
				monitoring.RecordQuotaLatch(key, "waiting_quota")
			}
		}
	}

	if err := s.settings.LatchQuotaMet(ctx, quotaScopes); err != nil {
		return err
	}
	return s.settings.LatchWaitingQuotaMet(ctx, waitingScopes)
}

// Available reports the merged availability for one (type, group) pair.
// It is a pure read: no locks, suitable for rendering buy forms. Decisions
// must not be made from its result; Buy re-derives everything under lock.
func (s *AllocationService) Available(ctx context.Context, tt domain.TicketType, group domain.UserGroup) (domain.Availability, error) {
	now := s.clock.Now()
	var avail domain.Availability

	err := s.tickets.WithTx(ctx, func(txCtx context.Context) error {
		snap, err := s.loadSnapshot(txCtx, now)
		if err != nil {
			return err
		}
		avail = s.availabilityFrom(s.logger.WithField("group", group), snap, group, tt)
		return nil
	})
	if err != nil {
		return domain.Availability{}, err
	}
	return avail, nil
}

func (s *AllocationService) availabilityFrom(log *logrus.Entry, snap policySnapshot, group domain.UserGroup, tt domain.TicketType) domain.Availability {
	avail, repairs := domain.ComputeAvailability(snap.settings, snap.counts, group, tt)
	for _, rep := range repairs {
		flag := "quota_met"
		if rep.Waiting {
			flag = "waiting_quota_met"
		}
		log.WithField("scope", rep.Scope.String()).Warnf("%s should be set", flag)
	}
	return avail
}

// Counts returns a fresh snapshot of every inventory bucket.
func (s *AllocationService) Counts(ctx context.Context) (domain.Counts, error) {
	return s.tickets.Counts(ctx, s.clock.Now())
}

// Prices returns the ticket prices that apply to group.
func (s *AllocationService) Prices(ctx context.Context, group domain.UserGroup) (map[domain.TicketType]int, error) {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return pricesFrom(settings, group)
}

// pricesFrom resolves the price for each concrete ticket type: the first
// non-null price across (group,type), (all,type), (group,any), (all,any).
func pricesFrom(s domain.Settings, group domain.UserGroup) (map[domain.TicketType]int, error) {
	out := make(map[domain.TicketType]int, 2)
	for _, tt := range []domain.TicketType{domain.TicketStandard, domain.TicketVIP} {
		keys := []domain.ScopeKey{
			{Group: group, Type: tt},
			{Group: domain.ScopeAllGroups, Type: tt},
			{Group: group, Type: domain.ScopeAnyType},
			{Group: domain.ScopeAllGroups, Type: domain.ScopeAnyType},
		}
		found := false
		for _, key := range keys {
			if p := s.Get(key).Price; p != nil {
				out[tt] = *p
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no price configured for (%s, %s)", group, tt)
		}
	}
	return out, nil
}
