package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"moatgate.org/internal/audit"
	"moatgate.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "email is required")
		return
	}
	if len(req.Password) < 8 || len(req.Password) > 128 {
		writeError(w, http.StatusBadRequest, kindValidation, "password must be between 8 and 128 characters")
		return
	}

	session, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.audit.Record(audit.Event{
			Type:    audit.EventLoginFailure,
			Actor:   req.Email,
			Origin:  clientIP(r),
			Success: false,
			Error:   loginFailureReason(err),
		})
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountDisabled):
			// Same response for both; account state is not probeable.
			writeError(w, http.StatusUnauthorized, kindAuth, "invalid credentials")
		default:
			a.log.Error().Err(err).Msg("login failed")
			writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
		}
		return
	}

	a.audit.Record(audit.Event{
		Type:    audit.EventLoginSuccess,
		Actor:   session.User.ID,
		Origin:  clientIP(r),
		Details: map[string]any{"email": session.User.Email, "role": session.User.Role},
		Success: true,
	})
	writeJSON(w, http.StatusOK, session)
}

func loginFailureReason(err error) string {
	if errors.Is(err, auth.ErrAccountDisabled) {
		return "account disabled"
	}
	return "invalid credentials"
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, kindAuth, err.Error())
		return
	}
	principal, err := a.auth.Logout(r.Context(), token)
	if err != nil {
		a.rejectToken(w, r, err)
		return
	}
	a.audit.Record(audit.Event{
		Type:    audit.EventLogout,
		Actor:   principal.Subject,
		Origin:  clientIP(r),
		Success: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, kindAuth, err.Error())
		return
	}
	session, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountDisabled):
			writeError(w, http.StatusUnauthorized, kindAuth, "account no longer eligible")
		default:
			a.rejectToken(w, r, err)
		}
		return
	}
	a.audit.Record(audit.Event{
		Type:    audit.EventTokenRefresh,
		Actor:   session.User.ID,
		Origin:  clientIP(r),
		Success: true,
	})
	writeJSON(w, http.StatusOK, session)
}

// decodeJSON enforces strict bodies: unknown fields and trailing garbage are
// validation errors, not silently ignored input.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
