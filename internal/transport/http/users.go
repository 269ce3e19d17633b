package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

// BalanceReader is the minimal interface needed for the balance endpoint.
type BalanceReader interface {
	OutstandingBalance(ctx context.Context, userID int64) (int, []int64, error)
}

// TicketReleaser is the minimal interface needed to release waiting-list
// tickets.
type TicketReleaser interface {
	Release(ctx context.Context, userID int64, ticketIDs []int64) error
}

// HandleUserBalance returns an HTTP handler for a user's outstanding
// balance: the sum owed across their finalised, unpaid, non-waiting
// tickets.
func HandleUserBalance(svc BalanceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		userID, ok := parseUserPath(r.URL.Path, "balance")
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		balance, ids, err := svc.OutstandingBalance(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(balanceResponse{
			BalancePence: balance,
			TicketIDs:    ids,
		})
	}
}

type balanceResponse struct {
	BalancePence int     `json:"balance_pence"`
	TicketIDs    []int64 `json:"ticket_ids"`
}

// HandleReleaseTickets returns an HTTP handler for promoting a user's
// waiting-list tickets to active.
func HandleReleaseTickets(svc TicketReleaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		userID, ok := parseUserPath(r.URL.Path, "release")
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req releaseRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if len(req.TicketIDs) == 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "ticket_ids is required")
			return
		}

		if err := svc.Release(r.Context(), userID, req.TicketIDs); err != nil {
			if errors.Is(err, domain.ErrRowCount) {
				writeError(w, http.StatusConflict, codeReleaseConflict,
					"some tickets are not finalised waiting-list tickets of this user")
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type releaseRequest struct {
	TicketIDs []int64 `json:"ticket_ids"`
}

func parseUserPath(path, action string) (int64, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return 0, false
	}
	if parts[0] != "users" || parts[2] != action {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
