package auth

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/wire"
)

// Reason classifies why a token failed validation. The reasons are mutually
// exclusive: validation stops at the first failing check, in the fixed order
// malformed, expired, scope mismatch, revoked.
type Reason string

const (
	// ReasonNone means the token passed every check.
	ReasonNone Reason = ""
	// ReasonMalformed means the token did not parse.
	ReasonMalformed Reason = "malformed"
	// ReasonExpired means the expiry timestamp is in the past.
	ReasonExpired Reason = "expired"
	// ReasonScopeMismatch means the token names a different capability.
	ReasonScopeMismatch Reason = "scope_mismatch"
	// ReasonRevoked means the issuer withdrew the token.
	ReasonRevoked Reason = "revoked"
)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Authority validates inbound tokens and mints outbound ones. Revocations
// are keyed by the literal token string and kept only until the token would
// have expired anyway; after that the ordinary expiry check subsumes them.
type Authority struct {
	mu           sync.Mutex
	revoked      map[string]int64 // token string -> its expiry
	issued       map[string]int64 // tokens we minted, for revoke-on-exit
	timeProvider TimeProvider
}

// NewAuthority creates an Authority using wall-clock time.
func NewAuthority() *Authority {
	return &Authority{
		revoked:      make(map[string]int64),
		issued:       make(map[string]int64),
		timeProvider: DefaultTimeProvider{},
	}
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (a *Authority) SetTimeProvider(tp TimeProvider) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tp != nil {
		a.timeProvider = tp
	}
}

// Mint issues a fresh token for our identity with the given scope and
// lifetime, remembering it so it can be revoked on shutdown.
func (a *Authority) Mint(identity string, scope wire.Scope, ttl time.Duration) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	expiry := a.timeProvider.Now().Add(ttl).Unix()
	token := Token{Identity: identity, Expiry: expiry, Scope: scope}.String()
	a.issued[token] = expiry

	logrus.WithFields(logrus.Fields{
		"function": "Mint",
		"identity": identity,
		"scope":    string(scope),
		"expiry":   expiry,
	}).Debug("Minted capability token")
	return token
}

// Validate runs the full check ladder against raw. ok is true exactly when
// reason is ReasonNone.
func (a *Authority) Validate(raw string, expected wire.Scope) (ok bool, reason Reason) {
	token, err := ParseToken(raw)
	if err != nil {
		return false, ReasonMalformed
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()

	if a.timeProvider.Now().Unix() > token.Expiry {
		return false, ReasonExpired
	}
	if token.Scope != expected {
		return false, ReasonScopeMismatch
	}
	if _, isRevoked := a.revoked[raw]; isRevoked {
		return false, ReasonRevoked
	}
	return true, ReasonNone
}

// Revoke records a revocation for raw. Revocation is monotonic: once
// recorded, the token stays invalid for its remaining lifetime, and
// revoking again is a no-op. Unparsable tokens are rejected since their
// expiry, needed for cleanup, cannot be known.
func (a *Authority) Revoke(raw string) error {
	token, err := ParseToken(raw)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()

	if _, exists := a.revoked[raw]; exists {
		return nil
	}
	a.revoked[raw] = token.Expiry

	logrus.WithFields(logrus.Fields{
		"function": "Revoke",
		"identity": token.Identity,
		"scope":    string(token.Scope),
	}).Info("Token revoked")
	return nil
}

// IsRevoked reports whether raw has a live revocation record.
func (a *Authority) IsRevoked(raw string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()
	_, ok := a.revoked[raw]
	return ok
}

// Issued returns the still-valid tokens this authority has minted. Used on
// shutdown to broadcast REVOKE for everything we handed out.
func (a *Authority) Issued() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()

	tokens := make([]string, 0, len(a.issued))
	for token := range a.issued {
		tokens = append(tokens, token)
	}
	return tokens
}

// pruneLocked drops revocation and issuance records whose tokens have
// expired; the expiry check makes them redundant. Caller must hold a.mu.
func (a *Authority) pruneLocked() {
	now := a.timeProvider.Now().Unix()
	for token, expiry := range a.revoked {
		if now > expiry {
			delete(a.revoked, token)
		}
	}
	for token, expiry := range a.issued {
		if now > expiry {
			delete(a.issued, token)
		}
	}
}
