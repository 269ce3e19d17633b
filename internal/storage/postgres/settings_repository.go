package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const settingsColumns = `user_group, ticket_type, quota, quota_met, waiting_quota,
waiting_quota_met, waiting_smallquota, quota_per_person, mode, price`

func scanSetting(row pgx.Row) (domain.QuotaSetting, error) {
	var s domain.QuotaSetting
	err := row.Scan(
		&s.Scope.Group, &s.Scope.Type, &s.Quota, &s.QuotaMet, &s.WaitingQuota,
		&s.WaitingQuotaMet, &s.WaitingSmallQuota, &s.QuotaPerPerson, &s.Mode, &s.Price,
	)
	return s, err
}

// Settings loads every quota settings row.
func (r *SettingsRepository) Settings(ctx context.Context) (domain.Settings, error) {
	query := "SELECT " + settingsColumns + " FROM ticket_settings"

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	settings := make(domain.Settings)
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settings row: %w", err)
		}
		settings[s.Scope] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	return settings, nil
}

// LatchQuotaMet sets quota_met on all given scopes in one batched update.
// The latch is one-way: nothing in the engine clears it.
func (r *SettingsRepository) LatchQuotaMet(ctx context.Context, scopes []domain.ScopeKey) error {
	return r.latch(ctx, "quota_met", scopes)
}

// LatchWaitingQuotaMet sets waiting_quota_met on all given scopes.
func (r *SettingsRepository) LatchWaitingQuotaMet(ctx context.Context, scopes []domain.ScopeKey) error {
	return r.latch(ctx, "waiting_quota_met", scopes)
}

func (r *SettingsRepository) latch(ctx context.Context, column string, scopes []domain.ScopeKey) error {
	if len(scopes) == 0 {
		return nil
	}

	groups := make([]string, len(scopes))
	types := make([]string, len(scopes))
	for i, k := range scopes {
		groups[i] = string(k.Group)
		types[i] = string(k.Type)
	}

	query := `
UPDATE ticket_settings SET ` + column + ` = TRUE
WHERE (user_group, ticket_type) IN (SELECT * FROM unnest($1::text[], $2::text[]))`

	tag, err := r.exec(ctx, query, groups, types)
	if err != nil {
		return fmt.Errorf("latch %s: %w", column, err)
	}
	if int(tag.RowsAffected()) != len(scopes) {
		return fmt.Errorf("%w: latched %s on %d of %d scopes",
			domain.ErrRowCount, column, tag.RowsAffected(), len(scopes))
	}
	return nil
}

// UpdateSetting replaces the mutable columns of one settings row. The
// quota-met latches are deliberately not writable here.
func (r *SettingsRepository) UpdateSetting(ctx context.Context, s domain.QuotaSetting) error {
	const query = `
UPDATE ticket_settings
SET quota = $3, waiting_quota = $4, waiting_smallquota = $5,
    quota_per_person = $6, mode = $7, price = $8
WHERE user_group = $1 AND ticket_type = $2`

	tag, err := r.exec(ctx, query,
		string(s.Scope.Group), string(s.Scope.Type),
		s.Quota, s.WaitingQuota, s.WaitingSmallQuota, s.QuotaPerPerson, s.Mode, s.Price,
	)
	if err != nil {
		return fmt.Errorf("update settings row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScopeNotFound
	}
	return nil
}

func (r *SettingsRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *SettingsRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
