// Package token mints and verifies the stateless credentials embedded in
// offer links. A token is HMAC-signed so a holder cannot swap the unit,
// candidate or action it was issued for.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/securecookie"

	"offer-dispatch/internal/apperr"
	"offer-dispatch/internal/domain"
)

const codecName = "offer"

// Claims is the signed payload of an offer token.
type Claims struct {
	UnitID          int64           `json:"u"`
	CandidateID     int64           `json:"c"`
	UnitType        domain.UnitType `json:"t"`
	Action          domain.Action   `json:"a"`
	ScheduleVersion int64           `json:"v"`
	IssuedAt        time.Time       `json:"iat"`
	ExpiresAt       time.Time       `json:"exp"`
}

// TTL holds the per-unit-type token lifetimes.
type TTL struct {
	Task  time.Duration
	Route time.Duration
}

// For returns the lifetime for a unit type.
func (t TTL) For(ut domain.UnitType) time.Duration {
	if ut == domain.UnitRoute {
		return t.Route
	}
	return t.Task
}

// Codec signs and verifies offer tokens.
type Codec struct {
	sc  *securecookie.SecureCookie
	ttl TTL
	now func() time.Time
}

// NewCodec creates a Codec. The secret must be at least 32 bytes.
func NewCodec(secret []byte, ttl TTL) (*Codec, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl.Task <= 0 || ttl.Route <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	sc := securecookie.New(secret, nil)
	sc.SetSerializer(securecookie.JSONEncoder{})
	// expiry is checked against the embedded claims, not the cookie timestamp
	sc.MaxAge(0)
	sc.MaxLength(2048)
	return &Codec{
		sc:  sc,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the time source (tests).
func (c *Codec) WithClock(now func() time.Time) *Codec {
	if now != nil {
		c.now = now
	}
	return c
}

// Mint issues a token for one action on the unit's live offer. The token
// never outlives the offer itself.
func (c *Codec) Mint(u *domain.OfferUnit, action domain.Action) (string, Claims, error) {
	if u.CandidateID == nil || !u.Status.Outstanding() {
		return "", Claims{}, fmt.Errorf("%w: unit %d has no live offer", apperr.ErrValidation, u.ID)
	}
	if !action.Valid() {
		return "", Claims{}, fmt.Errorf("%w: unknown action %q", apperr.ErrValidation, action)
	}
	issued := c.now()
	if u.NotifiedAt != nil {
		issued = *u.NotifiedAt
	}
	exp := issued.Add(c.ttl.For(u.Type))
	if u.ExpiresAt != nil && u.ExpiresAt.Before(exp) {
		exp = *u.ExpiresAt
	}
	claims := Claims{
		UnitID:          u.ID,
		CandidateID:     *u.CandidateID,
		UnitType:        u.Type,
		Action:          action,
		ScheduleVersion: u.ScheduleVersion,
		IssuedAt:        issued,
		ExpiresAt:       exp,
	}
	s, err := c.sc.Encode(codecName, claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("encode token: %w", err)
	}
	return s, claims, nil
}

// Parse verifies the signature and the embedded expiry. It does not look at
// the current unit row; callers must do that.
func (c *Codec) Parse(raw string) (Claims, error) {
	var claims Claims
	if raw == "" {
		return Claims{}, apperr.ErrInvalidToken
	}
	if err := c.sc.Decode(codecName, raw, &claims); err != nil {
		var scErr securecookie.Error
		if errors.As(err, &scErr) && scErr.IsUsage() {
			return Claims{}, fmt.Errorf("decode token: %w", err)
		}
		return Claims{}, fmt.Errorf("%w: %v", apperr.ErrInvalidToken, err)
	}
	if claims.UnitID <= 0 || claims.CandidateID <= 0 || !claims.Action.Valid() || !claims.UnitType.Valid() {
		return Claims{}, fmt.Errorf("%w: incomplete claims", apperr.ErrInvalidToken)
	}
	if !c.now().Before(claims.ExpiresAt) {
		return claims, fmt.Errorf("%w: token expired at %s", apperr.ErrExpired, claims.ExpiresAt.Format(time.RFC3339))
	}
	return claims, nil
}
