package httpapi

import "net/http"

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "moatgate",
		"version": a.version,
	})
}

// handleReadyz pings the guarded database; the gateway cannot serve its
// purpose without it.
func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.executor.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
