package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"moatgate.org/internal/audit"
	"moatgate.org/internal/auth"
)

type auditEventsResponse struct {
	Events []audit.Event `json:"events"`
	Count  int           `json:"count"`
	Offset int           `json:"offset"`
}

// handleAuditEvents serves the trail back to its subjects: everyone may read
// their own events, only admins may read across actors.
func (a *API) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	isAdmin := principal.Role == "admin"

	params := r.URL.Query()
	filter := audit.Filter{
		Actor: strings.TrimSpace(params.Get("actor")),
		Type:  strings.TrimSpace(params.Get("type")),
	}

	if !isAdmin {
		if filter.Actor != "" && filter.Actor != principal.Subject {
			a.audit.Record(audit.Event{
				Type:    audit.EventUnauthorized,
				Actor:   principal.Subject,
				Origin:  clientIP(r),
				Action:  "audit_query",
				Success: false,
				Error:   "cross-actor audit query requires admin",
			})
			writeError(w, http.StatusForbidden, kindBlocked, "cross-actor audit queries require admin role")
			return
		}
		filter.Actor = principal.Subject
	}

	var err error
	if filter.Since, err = parseTimeParam(params.Get("since")); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "since must be RFC 3339")
		return
	}
	if filter.Until, err = parseTimeParam(params.Get("until")); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "until must be RFC 3339")
		return
	}
	if filter.Limit, err = parseIntParam(params.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "limit must be a positive integer")
		return
	}
	if filter.Offset, err = parseIntParam(params.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "offset must be a positive integer")
		return
	}

	events, err := a.audit.Query(filter)
	if err != nil {
		a.log.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
		return
	}

	a.audit.Record(audit.Event{
		Type:   audit.EventAuditQueried,
		Actor:  principal.Subject,
		Origin: clientIP(r),
		Details: map[string]any{
			"filter_actor": filter.Actor,
			"filter_type":  filter.Type,
			"returned":     len(events),
		},
		Success: true,
	})
	writeJSON(w, http.StatusOK, auditEventsResponse{
		Events: events,
		Count:  len(events),
		Offset: filter.Offset,
	})
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseIntParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
