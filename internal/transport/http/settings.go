package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danielrichman/snowball-ticketing/internal/app"
	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

// SettingsAdmin is the minimal interface needed for the operator settings
// endpoints.
type SettingsAdmin interface {
	List(ctx context.Context) ([]domain.QuotaSetting, error)
	UpdateScope(ctx context.Context, in app.UpdateScopeInput) (domain.QuotaSetting, error)
}

// HandleAdminSettings returns an HTTP handler for listing quota scopes and
// replacing the mutable columns of one scope. The quota-met latches are
// read-only here: the engine sets them and nothing resets them.
func HandleAdminSettings(svc SettingsAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if strings.Trim(r.URL.Path, "/") != "admin/settings" {
				writeError(w, http.StatusNotFound, codeNotFound, "not found")
				return
			}

			rows, err := svc.List(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
			resp := make([]settingResponse, 0, len(rows))
			for _, row := range rows {
				resp = append(resp, settingToResponse(row))
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)

		case http.MethodPatch:
			scope, ok := parseSettingsPath(r.URL.Path)
			if !ok {
				writeError(w, http.StatusNotFound, codeNotFound, "not found")
				return
			}

			var req updateSettingRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			mode := domain.Mode(req.Mode)
			switch mode {
			case domain.ModeNotYetOpen, domain.ModeAvailable, domain.ModeClosed:
			default:
				writeError(w, http.StatusBadRequest, codeInvalidMode, "unknown mode")
				return
			}

			row, err := svc.UpdateScope(r.Context(), app.UpdateScopeInput{
				Scope:             scope,
				Quota:             req.Quota,
				WaitingQuota:      req.WaitingQuota,
				WaitingSmallQuota: req.WaitingSmallQuota,
				QuotaPerPerson:    req.QuotaPerPerson,
				Mode:              mode,
				Price:             req.Price,
			})
			if err != nil {
				if errors.Is(err, domain.ErrScopeNotFound) {
					writeError(w, http.StatusNotFound, codeScopeNotFound, err.Error())
					return
				}
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(settingToResponse(row))

		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// parseSettingsPath extracts the scope key from
// /admin/settings/{group}/{type}. Wildcard segments use the scope
// spellings "all" and "any".
func parseSettingsPath(path string) (domain.ScopeKey, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return domain.ScopeKey{}, false
	}
	if parts[0] != "admin" || parts[1] != "settings" {
		return domain.ScopeKey{}, false
	}

	group := domain.UserGroup(parts[2])
	switch group {
	case domain.ScopeAllGroups, domain.GroupMembers, domain.GroupAlumni:
	default:
		return domain.ScopeKey{}, false
	}
	ticketType := domain.TicketType(parts[3])
	switch ticketType {
	case domain.ScopeAnyType, domain.TicketStandard, domain.TicketVIP:
	default:
		return domain.ScopeKey{}, false
	}

	return domain.ScopeKey{Group: group, Type: ticketType}, true
}

type updateSettingRequest struct {
	Quota             *int   `json:"quota"`
	WaitingQuota      *int   `json:"waiting_quota"`
	WaitingSmallQuota *int   `json:"waiting_small_quota"`
	QuotaPerPerson    *int   `json:"quota_per_person"`
	Mode              string `json:"mode"`
	Price             *int   `json:"price_pence"`
}

type settingResponse struct {
	Group             string `json:"group"`
	Type              string `json:"type"`
	Quota             *int   `json:"quota"`
	QuotaMet          bool   `json:"quota_met"`
	WaitingQuota      *int   `json:"waiting_quota"`
	WaitingQuotaMet   bool   `json:"waiting_quota_met"`
	WaitingSmallQuota *int   `json:"waiting_small_quota"`
	QuotaPerPerson    *int   `json:"quota_per_person"`
	Mode              string `json:"mode"`
	Price             *int   `json:"price_pence"`
}

func settingToResponse(s domain.QuotaSetting) settingResponse {
	return settingResponse{
		Group:             string(s.Scope.Group),
		Type:              string(s.Scope.Type),
		Quota:             s.Quota,
		QuotaMet:          s.QuotaMet,
		WaitingQuota:      s.WaitingQuota,
		WaitingQuotaMet:   s.WaitingQuotaMet,
		WaitingSmallQuota: s.WaitingSmallQuota,
		QuotaPerPerson:    s.QuotaPerPerson,
		Mode:              string(s.Mode),
		Price:             s.Price,
	}
}
