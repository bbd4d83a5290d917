package auth

import (
	"net"

	"github.com/lsnp-net/lsnp/wire"
)

// ConsistentSource reports whether the IPv4 address embedded in a declared
// identity matches the datagram's source address. Identities without a
// parseable IPv4 part have nothing to check and pass.
//
// Callers enforce the result only for token-bearing message types; for
// exempt types a mismatch is advisory and merely logged, since presence
// beacons routinely traverse NAT-style rewrites on odd LANs.
func ConsistentSource(identity string, src net.IP) bool {
	declared := wire.IdentityIP(identity)
	if declared == nil || src == nil {
		return true
	}
	src4 := src.To4()
	if src4 == nil {
		return true
	}
	return declared.Equal(src4)
}
