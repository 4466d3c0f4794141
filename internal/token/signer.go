// Package token issues and verifies the integrity token the storefront widget
// sends with every quote request.
package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultAudience is the action name quote tokens are scoped to.
const DefaultAudience = "get_dynamic_price"

// ErrInvalidToken is returned by Parse for any token that fails verification.
var ErrInvalidToken = errors.New("token: invalid")

// Signer issues short lived HS256 tokens.
type Signer struct {
	Secret   []byte
	TTL      time.Duration
	Audience string
	Issuer   string

	now func() time.Time
}

// NewSigner constructs a Signer with the default audience.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{Secret: []byte(secret), TTL: ttl, Audience: DefaultAudience, Issuer: "tierprice"}
}

// WithClock returns a copy of s that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	clone := *s
	clone.now = now
	return &clone
}

func (s *Signer) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Issue returns a signed token for the widget rendered on productID's page.
func (s *Signer) Issue(productID int64) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("token: secret is empty")
	}
	now := s.clock()
	tok, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(strconv.FormatInt(productID, 10)).
		Issuer(s.Issuer).
		Audience([]string{s.Audience}).
		IssuedAt(now).
		Expiration(now.Add(s.TTL)).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.Secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Parse verifies signature, expiry and audience and returns the token.
func (s *Signer) Parse(raw string) (jwt.Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(s.Secret) == 0 {
		return nil, ErrInvalidToken
	}
	tok, err := jwt.ParseString(raw,
		jwt.WithKey(jwa.HS256, s.Secret),
		jwt.WithValidate(true),
		jwt.WithAudience(s.Audience),
		jwt.WithClock(jwt.ClockFunc(s.clock)),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return tok, nil
}

// Verify reports whether raw is a valid token.
func (s *Signer) Verify(raw string) bool {
	_, err := s.Parse(raw)
	return err == nil
}

// VerifyProduct reports whether raw is valid and was issued for productID.
func (s *Signer) VerifyProduct(raw string, productID int64) bool {
	tok, err := s.Parse(raw)
	if err != nil {
		return false
	}
	return tok.Subject() == strconv.FormatInt(productID, 10)
}
