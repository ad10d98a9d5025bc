// Package auth issues, verifies, and revokes the bearer tokens that gate
// every protected gateway endpoint.
package auth

import (
	"context"
	"fmt"
	"time"

	"moatgate.org/internal/store"
)

// Service combines credential checks, token issuance, and revocation.
type Service struct {
	users   UserStore
	tokens  *TokenIssuer
	revoked store.RevocationStore
	now     func() time.Time

	// dummyHash absorbs a full argon2 derivation when the email is unknown,
	// so login latency does not reveal which accounts exist.
	dummyHash string
}

// Session is the result of a successful login or refresh.
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

func NewService(users UserStore, tokens *TokenIssuer, revoked store.RevocationStore) (*Service, error) {
	if users == nil || tokens == nil || revoked == nil {
		return nil, fmt.Errorf("auth: users, tokens and revocation store are all required")
	}
	dummy, err := HashPassword("moatgate-decoy-credential")
	if err != nil {
		return nil, fmt.Errorf("auth: prepare decoy hash: %w", err)
	}
	return &Service{
		users:     users,
		tokens:    tokens,
		revoked:   revoked,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Login checks credentials and returns a fresh session. Unknown emails, bad
// passwords and disabled accounts are indistinguishable to the caller except
// for the disabled case, which is reported explicitly once the password
// matched.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, found := s.users.FindByEmail(ctx, email)
	if !found {
		// Burn the same work as a real verification.
		_ = VerifyPassword(s.dummyHash, password)
		return Session{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if user.Status != StatusActive {
		return Session{}, ErrAccountDisabled
	}
	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}

// Verify validates the token and checks it against the revocation store.
func (s *Service) Verify(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("auth: revocation check: %w", err)
	}
	if revoked {
		return Principal{}, ErrTokenRevoked
	}
	return Principal{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
		TokenID: claims.ID,
	}, nil
}

// Logout revokes the token for the remainder of its validity. Expired or
// malformed tokens are already unusable and surface their verification error.
func (s *Service) Logout(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.revoked.Revoke(ctx, claims.ID, ttl); err != nil {
		return Principal{}, fmt.Errorf("auth: revoke token: %w", err)
	}
	return Principal{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
		TokenID: claims.ID,
	}, nil
}

// Refresh rotates a still-valid token: the old jti is revoked and a new
// session is issued for the same account. The account is re-resolved so a
// role change or deactivation takes effect at refresh time.
func (s *Service) Refresh(ctx context.Context, token string) (Session, error) {
	principal, err := s.Verify(ctx, token)
	if err != nil {
		return Session{}, err
	}
	user, found := s.users.FindByEmail(ctx, principal.Email)
	if !found {
		return Session{}, ErrInvalidCredentials
	}
	if user.Status != StatusActive {
		return Session{}, ErrAccountDisabled
	}
	if _, err := s.Logout(ctx, token); err != nil {
		return Session{}, err
	}
	fresh, claims, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     fresh,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}
