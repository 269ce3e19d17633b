package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

type TicketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func (r *TicketRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const ticketColumns = `ticket_id, user_id, vip, waiting_list, quota_exempt, price, created,
expires, expires_reason, finalised, paid, notes,
person_type, surname, othernames, college_id, matriculation_year`

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(
		&t.ID, &t.UserID, &t.VIP, &t.WaitingList, &t.QuotaExempt, &t.Price, &t.Created,
		&t.Expires, &t.ExpiresReason, &t.Finalised, &t.Paid, &t.Notes,
		&t.PersonType, &t.Surname, &t.Othernames, &t.CollegeID, &t.MatriculationYear,
	)
	return t, err
}

// Counts returns a fresh snapshot of unexpired ticket counts for every
// bucket, wildcard aggregates included. now bounds the expiry filter so one
// operation sees one consistent instant.
func (r *TicketRepository) Counts(ctx context.Context, now time.Time) (domain.Counts, error) {
	const query = `
SELECT u.user_group, t.vip, t.waiting_list, COUNT(*)
FROM tickets t
JOIN users u ON u.user_id = t.user_id
WHERE t.expires IS NULL OR t.expires > $1
GROUP BY u.user_group, t.vip, t.waiting_list`

	counts := make(domain.Counts)
	for _, key := range domain.AllCountKeys() {
		counts[key] = 0
	}

	rows, err := r.query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			group   domain.UserGroup
			vip     bool
			waiting bool
			n       int
		)
		if err := rows.Scan(&group, &vip, &waiting, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		tt := domain.TicketStandard
		if vip {
			tt = domain.TicketVIP
		}
		for _, g := range []domain.UserGroup{group, domain.ScopeAllGroups} {
			for _, t := range []domain.TicketType{tt, domain.ScopeAnyType} {
				counts[domain.CountKey{Waiting: waiting, Scope: domain.ScopeKey{Group: g, Type: t}}] += n
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	return counts, nil
}

// UserTickets returns one user's tickets with nullable-timestamp and flag
// filtering. now is used for the expiry predicate when filter.Expired is set.
func (r *TicketRepository) UserTickets(ctx context.Context, userID int64, filter domain.TicketFilter, now time.Time) ([]domain.Ticket, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}

	booly := func(name string, v *bool) {
		if v == nil {
			return
		}
		if *v {
			conds = append(conds, name)
		} else {
			conds = append(conds, "NOT "+name)
		}
	}
	nully := func(name string, v *bool) {
		if v == nil {
			return
		}
		if *v {
			conds = append(conds, name+" IS NOT NULL")
		} else {
			conds = append(conds, name+" IS NULL")
		}
	}

	booly("vip", filter.VIP)
	booly("waiting_list", filter.WaitingList)
	booly("quota_exempt", filter.QuotaExempt)
	nully("finalised", filter.Finalised)
	nully("paid", filter.Paid)

	if filter.Expired != nil {
		args = append(args, now)
		p := fmt.Sprintf("$%d", len(args))
		if *filter.Expired {
			conds = append(conds, "(expires IS NOT NULL AND expires <= "+p+")")
		} else {
			conds = append(conds, "(expires IS NULL OR expires > "+p+")")
		}
	}

	query := "SELECT " + ticketColumns + " FROM tickets WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY ticket_id"

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	return out, nil
}

// InsertTickets creates p.Count reservation rows and returns their ids.
// Each row starts unfinalised with the short-lived expiry set.
func (r *TicketRepository) InsertTickets(ctx context.Context, p domain.TicketInsertion) ([]int64, error) {
	const query = `
INSERT INTO tickets (user_id, vip, waiting_list, quota_exempt, price, created, expires, expires_reason)
SELECT $1, $2, $3, $4, $5, $6, $7, $8 FROM generate_series(1, $9)
RETURNING ticket_id`

	rows, err := r.query(ctx, query,
		p.UserID, p.VIP, p.WaitingList, p.QuotaExempt, p.Price,
		p.Created, p.Expires, domain.ExpiresNotFinalised, p.Count,
	)
	if err != nil {
		return nil, fmt.Errorf("insert tickets: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, p.Count)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ticket id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("insert tickets: %w", err)
	}
	if len(ids) != p.Count {
		return nil, fmt.Errorf("%w: inserted %d of %d tickets", domain.ErrRowCount, len(ids), p.Count)
	}
	return ids, nil
}

func (r *TicketRepository) GetTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM tickets WHERE ticket_id = $1"
	t, err := scanTicket(r.queryRow(ctx, query, ticketID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &t, nil
}

// Finalise performs the conditional finalisation update: it only matches
// while finalised is still null, so a concurrent finaliser cannot overwrite
// an earlier one. Returns nil with no error when zero rows matched; the
// caller re-queries to tell "already finalised" from "deleted".
func (r *TicketRepository) Finalise(ctx context.Context, ticketID int64, now time.Time, d domain.PersonalDetails) (*domain.Ticket, error) {
	query := `
UPDATE tickets
SET finalised = $2, expires = NULL, expires_reason = NULL,
    person_type = $3, surname = $4, othernames = $5, college_id = $6, matriculation_year = $7
WHERE ticket_id = $1 AND finalised IS NULL
RETURNING ` + ticketColumns

	t, err := scanTicket(r.queryRow(ctx, query,
		ticketID, now, d.PersonType, d.Surname, d.Othernames, d.CollegeID, d.MatriculationYear,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("finalise ticket: %w", err)
	}
	return &t, nil
}

// MarkPaid stamps every listed ticket paid and appends note to its audit
// notes. All tickets must currently be unpaid.
func (r *TicketRepository) MarkPaid(ctx context.Context, ticketIDs []int64, now time.Time, note string) error {
	const query = `
UPDATE tickets
SET paid = $2, notes = notes || $3
WHERE ticket_id = ANY($1) AND paid IS NULL`

	tag, err := r.exec(ctx, query, ticketIDs, now, note)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	if int(tag.RowsAffected()) != len(ticketIDs) {
		return fmt.Errorf("%w: marked %d of %d tickets paid",
			domain.ErrRowCount, tag.RowsAffected(), len(ticketIDs))
	}
	return nil
}

// ReleaseWaiting clears the waiting-list flag on exactly the given tickets.
// Every target must be finalised, on the waiting list, and owned by userID;
// any mismatch is an invariant violation and fails the whole update.
func (r *TicketRepository) ReleaseWaiting(ctx context.Context, userID int64, ticketIDs []int64, note string) error {
	const query = `
UPDATE tickets
SET waiting_list = FALSE, notes = notes || $3
WHERE finalised IS NOT NULL AND waiting_list AND ticket_id = ANY($1) AND user_id = $2`

	tag, err := r.exec(ctx, query, ticketIDs, userID, note)
	if err != nil {
		return fmt.Errorf("release waiting: %w", err)
	}
	if int(tag.RowsAffected()) != len(ticketIDs) {
		return fmt.Errorf("%w: released %d of %d tickets",
			domain.ErrRowCount, tag.RowsAffected(), len(ticketIDs))
	}
	return nil
}

// PurgeUnpaid un-finalises an unpaid non-waiting ticket, restarting its
// expiry clock with reason not-paid. The user id must match the row.
func (r *TicketRepository) PurgeUnpaid(ctx context.Context, userID, ticketID int64, now time.Time) error {
	const query = `
UPDATE tickets
SET finalised = NULL, expires = $3, expires_reason = $4
WHERE finalised IS NOT NULL AND paid IS NULL AND NOT waiting_list
  AND user_id = $1 AND ticket_id = $2`

	tag, err := r.exec(ctx, query, userID, ticketID, now, domain.ExpiresNotPaid)
	if err != nil {
		return fmt.Errorf("purge unpaid: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: purge matched %d rows", domain.ErrRowCount, tag.RowsAffected())
	}
	return nil
}

func (r *TicketRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *TicketRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *TicketRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
