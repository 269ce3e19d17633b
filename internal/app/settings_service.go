package app

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

type SettingsAdminRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	AcquireAllocationLock(ctx context.Context) error
	Settings(ctx context.Context) (domain.Settings, error)
	UpdateSetting(ctx context.Context, s domain.QuotaSetting) error
}

// SettingsService backs the operator settings API: listing quota scopes and
// adjusting their limits, modes and prices. The quota-met latches are not
// writable through it.
type SettingsService struct {
	repo   SettingsAdminRepository
	logger *logrus.Logger
}

func NewSettingsService(repo SettingsAdminRepository, logger *logrus.Logger) *SettingsService {
	return &SettingsService{repo: repo, logger: logger}
}

func (s *SettingsService) List(ctx context.Context) ([]domain.QuotaSetting, error) {
	settings, err := s.repo.Settings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuotaSetting, 0, len(settings))
	for _, row := range settings {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Scope, out[j].Scope
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Type < b.Type
	})
	return out, nil
}

type UpdateScopeInput struct {
	Scope             domain.ScopeKey
	Quota             *int
	WaitingQuota      *int
	WaitingSmallQuota *int
	QuotaPerPerson    *int
	Mode              domain.Mode
	Price             *int
}

var errInvalidMode = errors.New("invalid mode")

// UpdateScope replaces the mutable columns of one settings row. It takes
// the allocation lock: policy changes race against capacity decisions the
// same way purchases race against each other.
func (s *SettingsService) UpdateScope(ctx context.Context, in UpdateScopeInput) (domain.QuotaSetting, error) {
	switch in.Mode {
	case domain.ModeNotYetOpen, domain.ModeAvailable, domain.ModeClosed:
	default:
		return domain.QuotaSetting{}, errInvalidMode
	}

	var out domain.QuotaSetting
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.AcquireAllocationLock(txCtx); err != nil {
			return err
		}

		settings, err := s.repo.Settings(txCtx)
		if err != nil {
			return err
		}
		row, ok := settings[in.Scope]
		if !ok {
			return domain.ErrScopeNotFound
		}

		row.Quota = in.Quota
		row.WaitingQuota = in.WaitingQuota
		row.WaitingSmallQuota = in.WaitingSmallQuota
		row.QuotaPerPerson = in.QuotaPerPerson
		row.Mode = in.Mode
		row.Price = in.Price

		if err := s.repo.UpdateSetting(txCtx, row); err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return domain.QuotaSetting{}, err
	}

	s.logger.WithField("scope", in.Scope.String()).Info("quota settings updated")
	return out, nil
}
