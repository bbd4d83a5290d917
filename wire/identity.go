package wire

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// Identities look like "alice@192.168.1.10": a username joined to the IPv4
// address the peer claims to listen on. The address part is what unicast
// replies are sent to when the peer is not yet in the directory.

// SplitIdentity separates an identity into its username and address parts.
// ok is false when there is no "@" or either side is empty.
func SplitIdentity(identity string) (username, host string, ok bool) {
	i := strings.LastIndex(identity, "@")
	if i <= 0 || i == len(identity)-1 {
		return "", "", false
	}
	return identity[:i], identity[i+1:], true
}

// Username returns the part before the "@", or the whole string when the
// identity carries no address.
func Username(identity string) string {
	if name, _, ok := SplitIdentity(identity); ok {
		return name
	}
	return identity
}

// IdentityIP returns the IPv4 address embedded in an identity, or nil when
// the identity has no parseable IPv4 part.
func IdentityIP(identity string) net.IP {
	_, host, ok := SplitIdentity(identity)
	if !ok {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	return ip.To4()
}

// NewIdentity builds the canonical identity string for a username listening
// on the given address.
func NewIdentity(username string, ip net.IP) string {
	return fmt.Sprintf("%s@%s", username, ip.String())
}

// NewMessageID returns a fresh 8-hex-character message ID. Short IDs keep
// frames compact; the dedup window is far smaller than the collision space.
func NewMessageID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

// NewFileID returns a fresh transfer identifier, same shape as message IDs.
func NewFileID() string {
	return NewMessageID()
}
