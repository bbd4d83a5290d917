// Package auth implements LSNP capability tokens: self-describing strings
// of the form "identity|expiry|scope" that accompany every message type
// with side effects. The Authority validates inbound tokens, mints outbound
// ones, and tracks revocations.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lsnp-net/lsnp/wire"
)

var (
	// ErrMalformedToken indicates a token that does not split into
	// identity|expiry|scope with an integer expiry.
	ErrMalformedToken = errors.New("malformed token")
)

// Token is one parsed capability token.
type Token struct {
	Identity string
	Expiry   int64
	Scope    wire.Scope
}

// ParseToken splits a raw token string. Exactly three non-empty segments
// are required and the middle one must be an integer Unix timestamp.
func ParseToken(raw string) (Token, error) {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	if len(parts) != 3 {
		return Token{}, fmt.Errorf("%w: %d segments", ErrMalformedToken, len(parts))
	}
	identity, expiryRaw, scope := parts[0], parts[1], parts[2]
	if identity == "" || expiryRaw == "" || scope == "" {
		return Token{}, fmt.Errorf("%w: empty segment", ErrMalformedToken)
	}
	expiry, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: expiry %q", ErrMalformedToken, expiryRaw)
	}
	return Token{
		Identity: identity,
		Expiry:   expiry,
		Scope:    wire.Scope(scope),
	}, nil
}

// String reassembles the wire form.
func (t Token) String() string {
	return fmt.Sprintf("%s|%d|%s", t.Identity, t.Expiry, string(t.Scope))
}
