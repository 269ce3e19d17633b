package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/danielrichman/snowball-ticketing/internal/bank"
	"github.com/danielrichman/snowball-ticketing/internal/clock"
	"github.com/danielrichman/snowball-ticketing/internal/domain"
	"github.com/danielrichman/snowball-ticketing/internal/monitoring"
)

type PaymentRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	AcquireUserLock(ctx context.Context, userID int64) error
	UserTickets(ctx context.Context, userID int64, filter domain.TicketFilter, now time.Time) ([]domain.Ticket, error)
	MarkPaid(ctx context.Context, ticketIDs []int64, now time.Time, note string) error
	PurgeUnpaid(ctx context.Context, userID, ticketID int64, now time.Time) error
}

type UserStore interface {
	GetUser(ctx context.Context, userID int64) (domain.User, error)
}

type PaymentService struct {
	repo          PaymentRepository
	users         UserStore
	clock         clock.Clock
	logger        *logrus.Logger
	sortCode      string
	accountNumber string
}

func NewPaymentService(repo PaymentRepository, users UserStore, clk clock.Clock, logger *logrus.Logger, sortCode, accountNumber string) *PaymentService {
	return &PaymentService{
		repo:          repo,
		users:         users,
		clock:         clk,
		logger:        logger,
		sortCode:      sortCode,
		accountNumber: accountNumber,
	}
}

// errDryRun forces the reconciliation transaction to roll back after all
// checks have run.
var errDryRun = errors.New("dry run")

// OutstandingBalance sums the prices of the user's finalised, unpaid,
// non-waiting tickets, returning the ticket ids alongside.
func (s *PaymentService) OutstandingBalance(ctx context.Context, userID int64) (int, []int64, error) {
	return s.outstanding(ctx, userID, s.clock.Now())
}

func (s *PaymentService) outstanding(ctx context.Context, userID int64, now time.Time) (int, []int64, error) {
	tickets, err := s.repo.UserTickets(ctx, userID, domain.TicketFilter{
		Finalised:   domain.BoolPtr(true),
		Paid:        domain.BoolPtr(false),
		WaitingList: domain.BoolPtr(false),
	}, now)
	if err != nil {
		return 0, nil, err
	}

	balance := 0
	ids := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		balance += t.Price
		ids = append(ids, t.ID)
	}
	return balance, ids, nil
}

// IdentifyUser resolves a statement reference to a user. The trailing
// digits are the user id; the whole reference must then match that user's
// canonical payment reference, case-insensitively.
func (s *PaymentService) IdentifyUser(ctx context.Context, reference string) (domain.User, error) {
	_, idPart, ok := strings.Cut(reference, "/")
	if !ok {
		return domain.User{}, bank.Reject("reference", reference, "")
	}

	userID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return domain.User{}, bank.Reject("reference", reference, "")
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, bank.Reject("user id", idPart, "")
		}
		return domain.User{}, err
	}

	expected := user.PaymentReference()
	if !strings.EqualFold(reference, expected) {
		return domain.User{}, bank.Reject("reference", reference, expected)
	}
	return user, nil
}

// ProcessPayment marks the user's outstanding tickets paid, provided the
// credited amount equals the freshly recomputed balance exactly. Partial
// payments are rejected: with several unpaid tickets a partial match would
// be ambiguous. When dryRun is set every check runs but the transaction
// rolls back.
func (s *PaymentService) ProcessPayment(ctx context.Context, user domain.User, p bank.Payment, dryRun bool) error {
	now := s.clock.Now()

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.AcquireUserLock(txCtx, user.ID); err != nil {
			return err
		}

		balance, ids, err := s.outstanding(txCtx, user.ID, now)
		if err != nil {
			return err
		}
		if balance != p.AmountPence {
			return bank.Reject("amount",
				strconv.Itoa(p.AmountPence), strconv.Itoa(balance))
		}

		s.logger.WithFields(logrus.Fields{
			"user_id":    user.ID,
			"amount":     p.AmountPence,
			"ticket_ids": ids,
		}).Info("payment matched")

		note := fmt.Sprintf("paid:\n"+
			"    processed on %s\n"+
			"    bank date: %s\n"+
			"    amount: %d\n"+
			"    tickets: %v\n"+
			"    description %q\n",
			now.UTC().Format(time.RFC3339), p.Date.Format("2006-01-02"),
			p.AmountPence, ids, p.Description)

		if dryRun {
			return errDryRun
		}
		return s.repo.MarkPaid(txCtx, ids, now, note)
	})
	if errors.Is(err, errDryRun) {
		return nil
	}
	return err
}

// PurgeUnpaid revokes a ticket whose payment deadline has passed: the row
// is un-finalised and its expiry clock restarts with reason not-paid, so
// the inventory it held returns to the pool at once. The ticket must be
// finalised, unpaid and not on the waiting list.
func (s *PaymentService) PurgeUnpaid(ctx context.Context, userID, ticketID int64) error {
	now := s.clock.Now()

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.AcquireUserLock(txCtx, userID); err != nil {
			return err
		}
		return s.repo.PurgeUnpaid(txCtx, userID, ticketID, now)
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"ticket_id": ticketID,
	}).Info("unpaid ticket purged")
	return nil
}

// StatementSummary counts line outcomes for one batch. Every input row
// lands in exactly one bucket.
type StatementSummary struct {
	Processed int
	Rejected  int
	Skipped   int
}

// ProcessStatement reconciles a whole statement. Each line runs in its own
// transaction; rejected and uninteresting lines go to the rejects stream
// with their original columns, and only infrastructure failures abort the
// batch.
func (s *PaymentService) ProcessStatement(ctx context.Context, statement io.Reader, rejects io.Writer, dryRun bool) (StatementSummary, error) {
	reader, err := bank.NewReader(statement, s.sortCode, s.accountNumber)
	if err != nil {
		return StatementSummary{}, err
	}
	rejectsOut, err := bank.NewRejectsWriter(rejects)
	if err != nil {
		return StatementSummary{}, err
	}

	var summary StatementSummary
	for {
		payment, raw, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err == nil {
			err = s.reconcileLine(ctx, payment, dryRun)
		}

		var rejectErr *bank.RejectError
		switch {
		case err == nil:
			summary.Processed++
			monitoring.RecordStatementLine("processed")
			s.logger.WithField("reference", payment.Reference).Debug("statement line processed")

		case errors.Is(err, bank.ErrUninteresting):
			summary.Skipped++
			monitoring.RecordStatementLine("skipped")
			if werr := rejectsOut.Write(raw, "uninterested"); werr != nil {
				return summary, werr
			}

		case errors.As(err, &rejectErr):
			summary.Rejected++
			monitoring.RecordStatementLine("rejected")
			s.logger.WithField("row", raw).WithError(rejectErr).Debug("statement line rejected")
			if werr := rejectsOut.Write(raw, rejectErr.Error()); werr != nil {
				return summary, werr
			}

		default:
			return summary, err
		}
	}

	if err := rejectsOut.Flush(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *PaymentService) reconcileLine(ctx context.Context, p bank.Payment, dryRun bool) error {
	user, err := s.IdentifyUser(ctx, p.Reference)
	if err != nil {
		return err
	}
	return s.ProcessPayment(ctx, user, p, dryRun)
}
