// Package auth issues and checks wallet session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/idudko/fhe-telemetry/internal/model"
)

const (
	issuer     = "fhe-telemetry"
	DefaultTTL = 12 * time.Hour

	// ChallengeTTL bounds how long a wallet has to sign a challenge.
	ChallengeTTL = 5 * time.Minute

	audienceSession   = "session"
	audienceChallenge = "challenge"
)

// Issuer signs HS256 tokens whose subject is the wallet address. Challenge
// and session tokens carry different audiences so one is never accepted as
// the other.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// IssueToken returns a signed session token for addr and its expiry. Callers
// must have verified that the requester controls addr; Authenticate does.
func (i *Issuer) IssueToken(addr model.Address) (string, time.Time, error) {
	return i.sign(addr, audienceSession, i.ttl)
}

// IssueChallenge returns a short lived nonce token for addr. The wallet
// signs it and hands it back to Authenticate.
func (i *Issuer) IssueChallenge(addr model.Address) (string, time.Time, error) {
	return i.sign(addr, audienceChallenge, ChallengeTTL)
}

// Authenticate checks a signed challenge and opens a session for the
// address it was issued to. Any failure is ErrVerificationFailed.
func (i *Issuer) Authenticate(challenge string, pubDER, sig []byte) (string, model.Address, time.Time, error) {
	addr, err := i.parse(challenge, audienceChallenge)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: challenge: %v", model.ErrVerificationFailed, err)
	}
	if err := verifyWallet(addr, pubDER, sig, challenge); err != nil {
		return "", "", time.Time{}, err
	}
	token, exp, err := i.IssueToken(addr)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, addr, exp, nil
}

// ParseToken validates a session token and returns the address it was
// issued to. Any failure is ErrUnauthorized.
func (i *Issuer) ParseToken(token string) (model.Address, error) {
	addr, err := i.parse(token, audienceSession)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}
	return addr, nil
}

func (i *Issuer) sign(addr model.Address, audience string, ttl time.Duration) (string, time.Time, error) {
	if addr == "" {
		return "", time.Time{}, fmt.Errorf("%w: address is required", model.ErrInvalidInput)
	}
	now := i.now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   string(addr),
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, exp, nil
}

func (i *Issuer) parse(token, audience string) (model.Address, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return model.Address(claims.Subject), nil
}

type callerKey struct{}

// WithCaller stores the authenticated wallet address in ctx.
func WithCaller(ctx context.Context, addr model.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// CallerFromContext returns the address stored by WithCaller.
func CallerFromContext(ctx context.Context) (model.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(model.Address)
	return addr, ok && addr != ""
}
