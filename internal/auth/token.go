package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/hotelportal/account-recovery/internal/domain"
)

// ErrInvalidSession wraps every reason a bearer token is refused.
var ErrInvalidSession = errors.New("invalid session token")

// SessionClaims is the payload of a portal session. The account id travels in
// the registered "sub" claim.
type SessionClaims struct {
	Kind domain.SubjectType `json:"kind"`
	Role domain.AccountRole `json:"role"`
	jwt.RegisteredClaims
}

// AccountID returns the account the session was issued to.
func (c *SessionClaims) AccountID() string {
	return c.RegisteredClaims.Subject
}

// Session is a signed token and the instant it stops being accepted.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// SessionIssuer signs and verifies HS256 session tokens for one issuer.
type SessionIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewSessionIssuer returns an issuer whose sessions last ttl. Zero or negative
// ttl falls back to one hour.
func NewSessionIssuer(secret, issuer string, ttl time.Duration) *SessionIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &SessionIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// Issue signs a session for account carrying its current role.
func (s *SessionIssuer) Issue(account *domain.Account) (Session, error) {
	if account == nil || account.ID == "" {
		return Session{}, errors.New("issue session: account required")
	}
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl)
	claims := &SessionClaims{
		Kind: domain.SubjectTypeAccount,
		Role: account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
func (s *SessionIssuer) Verify(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.AccountID() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return claims, nil
}
