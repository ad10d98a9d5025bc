package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"moatgate.org/internal/audit"
	"moatgate.org/internal/auth"
)

const bearerPrefix = "Bearer "

// requireAuth rejects requests without a verifiable, unrevoked token.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, kindAuth, err.Error())
			return
		}
		principal, err := a.auth.Verify(r.Context(), token)
		if err != nil {
			a.rejectToken(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// optionalAuth attaches a principal when a valid token is presented and maps
// missing or unusable tokens to an anonymous caller. Downstream, anonymous
// resolves to no clearance, so this never widens access.
func (a *API) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := a.auth.Verify(r.Context(), token)
		if err != nil {
			a.auditTokenRejection(r, err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (a *API) rejectToken(w http.ResponseWriter, r *http.Request, err error) {
	a.auditTokenRejection(r, err)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, kindAuth, "token expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, kindAuth, "token revoked")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, kindAuth, "invalid token")
	default:
		a.log.Error().Err(err).Msg("token verification failed")
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
	}
}

func (a *API) auditTokenRejection(r *http.Request, err error) {
	if !errors.Is(err, auth.ErrInvalidToken) &&
		!errors.Is(err, auth.ErrTokenExpired) &&
		!errors.Is(err, auth.ErrTokenRevoked) {
		return
	}
	a.audit.Record(audit.Event{
		Type:   audit.EventInvalidToken,
		Origin: clientIP(r),
		Action: r.Method + " " + r.URL.Path,
		Error:  err.Error(),
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
