package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

// AvailabilityReader is the minimal interface needed for the read-only
// policy endpoints.
type AvailabilityReader interface {
	Available(ctx context.Context, tt domain.TicketType, group domain.UserGroup) (domain.Availability, error)
}

type CountsReader interface {
	Counts(ctx context.Context) (domain.Counts, error)
}

type PricesReader interface {
	Prices(ctx context.Context, group domain.UserGroup) (map[domain.TicketType]int, error)
}

// HandleAvailability returns an HTTP handler for the availability snapshot.
// The snapshot is advisory: it is computed without the allocation lock, and
// a buy submitted on its basis may still be refused.
func HandleAvailability(svc AvailabilityReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		ticketType, ok := parseTicketType(r.URL.Query().Get("type"))
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidTicketType, "unknown ticket type")
			return
		}
		group, ok := parseGroup(r.URL.Query().Get("group"))
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidGroup, "unknown user group")
			return
		}

		avail, err := svc.Available(r.Context(), ticketType, group)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(availabilityResponse{
			Mode:            string(avail.Mode),
			Spare:           avail.Spare,
			QuotaMet:        avail.QuotaMet,
			WaitingSpare:    avail.WaitingSpare,
			WaitingQuotaMet: avail.WaitingQuotaMet,
			WaitingSmall:    avail.WaitingSmall,
			PerPersonAny:    avail.QPPAny,
			PerPersonType:   avail.QPPType,
		})
	}
}

type availabilityResponse struct {
	Mode            string `json:"mode"`
	Spare           *int   `json:"spare"`
	QuotaMet        bool   `json:"quota_met"`
	WaitingSpare    *int   `json:"waiting_spare"`
	WaitingQuotaMet bool   `json:"waiting_quota_met"`
	WaitingSmall    *bool  `json:"waiting_small"`
	PerPersonAny    *int   `json:"per_person_limit"`
	PerPersonType   *int   `json:"per_person_type_limit"`
}

// HandleCounts returns an HTTP handler exposing the fresh count buckets.
func HandleCounts(svc CountsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		counts, err := svc.Counts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		resp := make([]countResponse, 0, len(counts))
		for _, key := range domain.AllCountKeys() {
			resp = append(resp, countResponse{
				Group:   string(key.Scope.Group),
				Type:    string(key.Scope.Type),
				Waiting: key.Waiting,
				Count:   counts[key],
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type countResponse struct {
	Group   string `json:"group"`
	Type    string `json:"type"`
	Waiting bool   `json:"waiting"`
	Count   int    `json:"count"`
}

// HandlePrices returns an HTTP handler for per-group ticket prices.
func HandlePrices(svc PricesReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		group, ok := parseGroup(r.URL.Query().Get("group"))
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidGroup, "unknown user group")
			return
		}

		prices, err := svc.Prices(r.Context(), group)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		resp := make(map[string]int, len(prices))
		for tt, pence := range prices {
			resp[string(tt)] = pence
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
