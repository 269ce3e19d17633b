package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

func TestHandleUserBalance(t *testing.T) {
	t.Parallel()

	svc := &stubBalanceService{balance: 13800, ids: []int64{4, 5}}
	req := httptest.NewRequest(http.MethodGet, "/users/3/balance", nil)
	rec := httptest.NewRecorder()

	HandleUserBalance(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"balance_pence":13800`) || !strings.Contains(body, `"ticket_ids":[4,5]`) {
		t.Fatalf("unexpected body %q", body)
	}
	if svc.userID != 3 {
		t.Fatalf("expected user id 3, got %d", svc.userID)
	}
}

func TestHandleReleaseTickets(t *testing.T) {
	t.Parallel()

	t.Run("releases", func(t *testing.T) {
		t.Parallel()
		svc := &stubReleaseService{}
		req := httptest.NewRequest(http.MethodPost, "/users/3/release",
			bytes.NewBufferString(`{"ticket_ids":[4,5]}`))
		rec := httptest.NewRecorder()

		HandleReleaseTickets(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d: %s", rec.Code, rec.Body.String())
		}
		if svc.userID != 3 || len(svc.ids) != 2 {
			t.Fatalf("expected release forwarded, got user %d ids %v", svc.userID, svc.ids)
		}
	})

	t.Run("empty ticket list", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/users/3/release",
			bytes.NewBufferString(`{"ticket_ids":[]}`))
		rec := httptest.NewRecorder()

		HandleReleaseTickets(&stubReleaseService{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("precondition mismatch", func(t *testing.T) {
		t.Parallel()
		svc := &stubReleaseService{err: domain.ErrRowCount}
		req := httptest.NewRequest(http.MethodPost, "/users/3/release",
			bytes.NewBufferString(`{"ticket_ids":[4]}`))
		rec := httptest.NewRecorder()

		HandleReleaseTickets(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), codeReleaseConflict) {
			t.Fatalf("expected release_conflict code, got %q", rec.Body.String())
		}
	})
}

type stubBalanceService struct {
	balance int
	ids     []int64
	userID  int64
}

func (s *stubBalanceService) OutstandingBalance(_ context.Context, userID int64) (int, []int64, error) {
	s.userID = userID
	return s.balance, s.ids, nil
}

type stubReleaseService struct {
	err    error
	userID int64
	ids    []int64
}

func (s *stubReleaseService) Release(_ context.Context, userID int64, ticketIDs []int64) error {
	s.userID = userID
	s.ids = ticketIDs
	return s.err
}
