package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/danielrichman/snowball-ticketing/internal/app"
	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

// TicketBuyer is the minimal interface needed to reserve tickets.
type TicketBuyer interface {
	Buy(ctx context.Context, in app.BuyInput) ([]int64, error)
}

// UserGetter resolves the purchasing user.
type UserGetter interface {
	GetUser(ctx context.Context, userID int64) (domain.User, error)
}

// HandleBuyTickets returns an HTTP handler for reserving tickets.
func HandleBuyTickets(svc TicketBuyer, users UserGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req buyRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		ticketType, ok := parseTicketType(req.Type)
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidTicketType, "unknown ticket type")
			return
		}
		if req.Count < 1 {
			writeError(w, http.StatusBadRequest, codeInvalidCount, domain.ErrInvalidCount.Error())
			return
		}

		user, err := users.GetUser(r.Context(), req.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, codeUserNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		ids, err := svc.Buy(r.Context(), app.BuyInput{
			User:        user,
			Type:        ticketType,
			Count:       req.Count,
			WaitingList: req.WaitingList,
			QuotaExempt: req.QuotaExempt,
		})
		if err != nil {
			writeBuyError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(buyResponse{TicketIDs: ids})
	}
}

// TicketPurger is the minimal interface needed to purge an unpaid ticket.
type TicketPurger interface {
	PurgeUnpaid(ctx context.Context, userID, ticketID int64) error
}

// HandlePurgeTicket returns an HTTP handler for revoking a finalised,
// unpaid ticket whose payment deadline has passed.
func HandlePurgeTicket(svc TicketPurger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		ticketID, ok := parseTicketActionPath(r.URL.Path, "purge")
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req purgeRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil || req.UserID < 1 {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		if err := svc.PurgeUnpaid(r.Context(), req.UserID, ticketID); err != nil {
			if errors.Is(err, domain.ErrRowCount) {
				writeError(w, http.StatusConflict, codePurgeConflict,
					"ticket is not a finalised unpaid ticket of this user")
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type purgeRequest struct {
	UserID int64 `json:"user_id"`
}

type buyRequest struct {
	UserID      int64  `json:"user_id"`
	Type        string `json:"type"`
	Count       int    `json:"count"`
	WaitingList bool   `json:"waiting_list"`
	QuotaExempt bool   `json:"quota_exempt"`
}

type buyResponse struct {
	TicketIDs []int64 `json:"ticket_ids"`
}

func parseTicketType(s string) (domain.TicketType, bool) {
	switch domain.TicketType(s) {
	case domain.TicketStandard, domain.TicketVIP:
		return domain.TicketType(s), true
	}
	return "", false
}

func parseGroup(s string) (domain.UserGroup, bool) {
	switch domain.UserGroup(s) {
	case domain.GroupMembers, domain.GroupAlumni:
		return domain.UserGroup(s), true
	}
	return "", false
}

// ticketResponse is the wire shape of a ticket row.
type ticketResponse struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Type        string     `json:"type"`
	WaitingList bool       `json:"waiting_list"`
	Price       int        `json:"price_pence"`
	Created     time.Time  `json:"created"`
	Expires     *time.Time `json:"expires,omitempty"`
	Finalised   *time.Time `json:"finalised,omitempty"`
	Paid        *time.Time `json:"paid,omitempty"`
}

func ticketToResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		Type:        string(t.Type()),
		WaitingList: t.WaitingList,
		Price:       t.Price,
		Created:     t.Created,
		Expires:     t.Expires,
		Finalised:   t.Finalised,
		Paid:        t.Paid,
	}
}
