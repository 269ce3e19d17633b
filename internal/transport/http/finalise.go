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

// TicketFinaliser is the minimal interface needed to finalise a ticket.
type TicketFinaliser interface {
	Finalize(ctx context.Context, ticket domain.Ticket, d domain.PersonalDetails) (domain.Ticket, error)
}

// TicketGetter loads the caller's view of the ticket before finalising.
type TicketGetter interface {
	GetTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error)
}

// HandleFinaliseTicket returns an HTTP handler for committing personal
// details to a reserved ticket. Losing the finalise race returns 409 with
// the row as the winner left it.
func HandleFinaliseTicket(svc TicketFinaliser, tickets TicketGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		ticketID, ok := parseTicketActionPath(r.URL.Path, "finalise")
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req finaliseRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.PersonType == "" || req.Surname == "" || req.Othernames == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody,
				"person_type, surname and othernames are required")
			return
		}

		ticket, err := tickets.GetTicket(r.Context(), ticketID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		if ticket == nil {
			writeError(w, http.StatusNotFound, codeTicketNotFound, domain.ErrTicketNotFound.Error())
			return
		}

		out, err := svc.Finalize(r.Context(), *ticket, domain.PersonalDetails{
			PersonType:        req.PersonType,
			Surname:           req.Surname,
			Othernames:        req.Othernames,
			CollegeID:         req.CollegeID,
			MatriculationYear: req.MatriculationYear,
		})
		if err != nil {
			var already *domain.AlreadyFinalisedError
			switch {
			case errors.As(err, &already):
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(finaliseConflictResponse{
					Error:  already.Error(),
					Code:   codeAlreadyFinalised,
					Ticket: ticketToResponse(already.Ticket),
				})
			case errors.Is(err, domain.ErrTicketNotFound):
				writeError(w, http.StatusNotFound, codeTicketNotFound, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ticketToResponse(out))
	}
}

func parseTicketActionPath(path, action string) (int64, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return 0, false
	}
	if parts[0] != "tickets" || parts[2] != action {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

type finaliseRequest struct {
	PersonType        string `json:"person_type"`
	Surname           string `json:"surname"`
	Othernames        string `json:"othernames"`
	CollegeID         *int   `json:"college_id,omitempty"`
	MatriculationYear *int   `json:"matriculation_year,omitempty"`
}

type finaliseConflictResponse struct {
	Error  string         `json:"error"`
	Code   string         `json:"code"`
	Ticket ticketResponse `json:"ticket"`
}
