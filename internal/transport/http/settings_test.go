package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielrichman/snowball-ticketing/internal/app"
	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

func TestHandleAdminSettings(t *testing.T) {
	t.Parallel()

	quota := 6900
	row := domain.QuotaSetting{
		Scope: domain.ScopeKey{Group: domain.ScopeAllGroups, Type: domain.TicketStandard},
		Quota: &quota,
		Mode:  domain.ModeAvailable,
	}

	t.Run("lists scopes", func(t *testing.T) {
		t.Parallel()
		svc := &stubSettingsService{rows: []domain.QuotaSetting{row}}
		req := httptest.NewRequest(http.MethodGet, "/admin/settings", nil)
		rec := httptest.NewRecorder()

		HandleAdminSettings(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, `"group":"all"`) || !strings.Contains(body, `"quota":6900`) {
			t.Fatalf("unexpected body %q", body)
		}
	})

	t.Run("updates a scope", func(t *testing.T) {
		t.Parallel()
		svc := &stubSettingsService{updated: row}
		req := httptest.NewRequest(http.MethodPatch, "/admin/settings/all/standard",
			bytes.NewBufferString(`{"quota":6900,"mode":"available","price_pence":7500}`))
		rec := httptest.NewRecorder()

		HandleAdminSettings(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		in := svc.in
		if in.Scope.Group != domain.ScopeAllGroups || in.Scope.Type != domain.TicketStandard {
			t.Fatalf("expected scope from path, got %+v", in.Scope)
		}
		if in.Price == nil || *in.Price != 7500 {
			t.Fatalf("expected price forwarded, got %+v", in.Price)
		}
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPatch, "/admin/settings/all/standard",
			bytes.NewBufferString(`{"mode":"paused"}`))
		rec := httptest.NewRecorder()

		HandleAdminSettings(&stubSettingsService{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("unknown scope row", func(t *testing.T) {
		t.Parallel()
		svc := &stubSettingsService{err: domain.ErrScopeNotFound}
		req := httptest.NewRequest(http.MethodPatch, "/admin/settings/members/vip",
			bytes.NewBufferString(`{"mode":"closed"}`))
		rec := httptest.NewRecorder()

		HandleAdminSettings(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("bad scope path", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPatch, "/admin/settings/staff/standard",
			bytes.NewBufferString(`{"mode":"closed"}`))
		rec := httptest.NewRecorder()

		HandleAdminSettings(&stubSettingsService{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})
}

type stubSettingsService struct {
	rows    []domain.QuotaSetting
	updated domain.QuotaSetting
	err     error
	in      app.UpdateScopeInput
}

func (s *stubSettingsService) List(_ context.Context) ([]domain.QuotaSetting, error) {
	return s.rows, s.err
}

func (s *stubSettingsService) UpdateScope(_ context.Context, in app.UpdateScopeInput) (domain.QuotaSetting, error) {
	s.in = in
	if s.err != nil {
		return domain.QuotaSetting{}, s.err
	}
	return s.updated, nil
}
