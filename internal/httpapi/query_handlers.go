package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"moatgate.org/internal/audit"
	"moatgate.org/internal/auth"
	"moatgate.org/internal/guard"
	"moatgate.org/internal/moat"
)

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	Columns  []string         `json:"columns"`
	Records  []map[string]any `json:"records"`
	RowCount int              `json:"row_count"`
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "sql is required")
		return
	}

	result, err := a.executor.Execute(r.Context(), req.SQL)
	if err != nil {
		a.handleQueryError(w, r, principal, req.SQL, err)
		return
	}

	a.audit.Record(audit.Event{
		Type:     audit.EventQueryExecuted,
		Actor:    principal.Subject,
		Origin:   clientIP(r),
		Resource: req.SQL,
		Details:  map[string]any{"row_count": len(result.Rows)},
		Success:  true,
	})
	writeJSON(w, http.StatusOK, queryResponse{
		Columns:  result.Columns,
		Records:  result.Records(),
		RowCount: len(result.Rows),
	})
}

func (a *API) handleQueryError(w http.ResponseWriter, r *http.Request, principal auth.Principal, sqlText string, err error) {
	origin := clientIP(r)
	var guardrail *guard.GuardrailError

	switch {
	case errors.Is(err, guard.ErrReadOnlyViolation):
		a.metrics.QueriesBlocked.Inc()
		a.audit.Record(audit.Event{
			Type:     audit.EventQueryBlocked,
			Actor:    principal.Subject,
			Origin:   origin,
			Resource: sqlText,
			Success:  false,
			Error:    err.Error(),
		})
		writeError(w, http.StatusForbidden, kindBlocked, err.Error())

	case errors.As(err, &guardrail):
		a.metrics.GuardrailBreaches.WithLabelValues(guardrail.Reason).Inc()
		a.audit.Record(audit.Event{
			Type:     audit.EventQueryExecuted,
			Actor:    principal.Subject,
			Origin:   origin,
			Resource: sqlText,
			Success:  false,
			Error:    guardrail.Error(),
		})
		writeError(w, http.StatusUnprocessableEntity, kindGuardrail, guardrail.Error())

	case errors.Is(err, guard.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, kindNotConnected, "database not connected")

	default:
		// Driver errors can embed fragments of the statement or schema; the
		// detail stays in the server log.
		a.log.Error().Err(err).Str("actor", principal.Subject).Msg("query execution failed")
		a.audit.Record(audit.Event{
			Type:     audit.EventQueryExecuted,
			Actor:    principal.Subject,
			Origin:   origin,
			Resource: sqlText,
			Success:  false,
			Error:    "execution failed",
		})
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
	}
}

type searchResponse struct {
	Query   string           `json:"query"`
	Results []moat.Candidate `json:"results"`
	Count   int              `json:"count"`
}

func (a *API) handleSchemaSearch(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "q is required")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			writeError(w, http.StatusBadRequest, kindValidation, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	candidates, err := a.searcher.Search(r.Context(), query, limit)
	if err != nil {
		a.log.Error().Err(err).Str("query", query).Msg("schema search failed")
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
		return
	}
	filtered := a.filter.Apply(candidates, principal.Role)

	a.audit.Record(audit.Event{
		Type:     audit.EventSchemaAccessed,
		Actor:    principal.Subject,
		Origin:   clientIP(r),
		Resource: query,
		Action:   "search",
		Details:  map[string]any{"matched": len(candidates), "visible": len(filtered)},
		Success:  true,
	})
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: filtered, Count: len(filtered)})
}

func (a *API) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "table name is required")
		return
	}

	// The table's classification gates the metadata exactly like its rows.
	level := a.filter.Classify(moat.Candidate{Name: name})
	if level > moat.ClearanceFor(principal.Role) {
		a.audit.Record(audit.Event{
			Type:     audit.EventUnauthorized,
			Actor:    principal.Subject,
			Origin:   clientIP(r),
			Resource: name,
			Action:   "table_schema",
			Success:  false,
			Error:    "insufficient clearance",
		})
		writeError(w, http.StatusForbidden, kindBlocked, "insufficient clearance for table")
		return
	}

	columns, err := a.executor.TableColumns(r.Context(), name)
	if err != nil {
		a.handleQueryError(w, r, principal, "table schema: "+name, err)
		return
	}
	if len(columns) == 0 {
		writeError(w, http.StatusNotFound, kindValidation, "table not found")
		return
	}

	a.audit.Record(audit.Event{
		Type:     audit.EventSchemaAccessed,
		Actor:    principal.Subject,
		Origin:   clientIP(r),
		Resource: name,
		Action:   "table_schema",
		Success:  true,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"table":   name,
		"columns": columns,
	})
}
