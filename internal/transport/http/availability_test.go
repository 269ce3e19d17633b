package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

func TestHandleAvailability(t *testing.T) {
	t.Parallel()

	t.Run("returns the snapshot", func(t *testing.T) {
		t.Parallel()
		spare := 12
		svc := &stubAvailabilityService{avail: domain.Availability{
			Mode:  domain.ModeAvailable,
			Spare: &spare,
		}}
		req := httptest.NewRequest(http.MethodGet, "/availability?type=standard&group=members", nil)
		rec := httptest.NewRecorder()

		HandleAvailability(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, `"mode":"available"`) || !strings.Contains(body, `"spare":12`) {
			t.Fatalf("unexpected body %q", body)
		}
		if svc.group != domain.GroupMembers || svc.ticketType != domain.TicketStandard {
			t.Fatalf("expected query forwarded, got %q %q", svc.group, svc.ticketType)
		}
	})

	t.Run("unlimited spare serialises as null", func(t *testing.T) {
		t.Parallel()
		svc := &stubAvailabilityService{avail: domain.Availability{Mode: domain.ModeAvailable}}
		req := httptest.NewRequest(http.MethodGet, "/availability?type=vip&group=alumni", nil)
		rec := httptest.NewRecorder()

		HandleAvailability(svc).ServeHTTP(rec, req)

		if !strings.Contains(rec.Body.String(), `"spare":null`) {
			t.Fatalf("expected null spare, got %q", rec.Body.String())
		}
	})

	t.Run("rejects unknown group", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/availability?type=standard&group=staff", nil)
		rec := httptest.NewRecorder()

		HandleAvailability(&stubAvailabilityService{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandleCounts(t *testing.T) {
	t.Parallel()

	svc := &stubCountsService{counts: domain.Counts{
		{Scope: domain.ScopeKey{Group: domain.ScopeAllGroups, Type: domain.ScopeAnyType}}: 41,
	}}
	req := httptest.NewRequest(http.MethodGet, "/counts", nil)
	rec := httptest.NewRecorder()

	HandleCounts(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"count":41`) {
		t.Fatalf("expected bucket count, got %q", rec.Body.String())
	}
}

func TestHandlePrices(t *testing.T) {
	t.Parallel()

	svc := &stubPricesService{prices: map[domain.TicketType]int{
		domain.TicketStandard: 6900,
		domain.TicketVIP:      9500,
	}}
	req := httptest.NewRequest(http.MethodGet, "/prices?group=members", nil)
	rec := httptest.NewRecorder()

	HandlePrices(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"standard":6900`) || !strings.Contains(body, `"vip":9500`) {
		t.Fatalf("unexpected body %q", body)
	}
}

type stubAvailabilityService struct {
	avail      domain.Availability
	err        error
	ticketType domain.TicketType
	group      domain.UserGroup
}

func (s *stubAvailabilityService) Available(_ context.Context, tt domain.TicketType, group domain.UserGroup) (domain.Availability, error) {
	s.ticketType = tt
	s.group = group
	return s.avail, s.err
}

type stubCountsService struct {
	counts domain.Counts
}

func (s *stubCountsService) Counts(_ context.Context) (domain.Counts, error) {
	return s.counts, nil
}

type stubPricesService struct {
	prices map[domain.TicketType]int
}

func (s *stubPricesService) Prices(_ context.Context, _ domain.UserGroup) (map[domain.TicketType]int, error) {
	return s.prices, nil
}
