package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MessageType identifies an LSNP message by its TYPE field value.
type MessageType string

const (
	TypePing         MessageType = "PING"
	TypeProfile      MessageType = "PROFILE"
	TypePost         MessageType = "POST"
	TypeLike         MessageType = "LIKE"
	TypeFollow       MessageType = "FOLLOW"
	TypeUnfollow     MessageType = "UNFOLLOW"
	TypeDM           MessageType = "DM"
	TypeAck          MessageType = "ACK"
	TypeRevoke       MessageType = "REVOKE"
	TypeFileOffer    MessageType = "FILE_OFFER"
	TypeFileAccept   MessageType = "FILE_ACCEPT"
	TypeFileReject   MessageType = "FILE_REJECT"
	TypeFileChunk    MessageType = "FILE_CHUNK"
	TypeFileReceived MessageType = "FILE_RECEIVED"
	TypeGroupCreate  MessageType = "GROUP_CREATE"
	TypeGroupUpdate  MessageType = "GROUP_UPDATE"
	TypeGroupMessage MessageType = "GROUP_MESSAGE"
	TypeGameInvite   MessageType = "TICTACTOE_INVITE"
	TypeGameMove     MessageType = "TICTACTOE_MOVE"
	TypeGameResult   MessageType = "TICTACTOE_RESULT"
)

// Scope is the capability class named in the third segment of a token.
type Scope string

const (
	ScopeChat      Scope = "chat"
	ScopeBroadcast Scope = "broadcast"
	ScopeFollow    Scope = "follow"
	ScopeFile      Scope = "file"
	ScopeGame      Scope = "game"
	ScopeGroup     Scope = "group"
)

// Well-known field keys shared across message types.
const (
	KeyType      = "TYPE"
	KeyMessageID = "MESSAGE_ID"
	KeyToken     = "TOKEN"
	KeyFrom      = "FROM"
	KeyTo        = "TO"
	KeyUserID    = "USER_ID"
	KeyTimestamp = "TIMESTAMP"
)

// terminator separates the parsed header from anything that follows it. A
// datagram without it is treated as truncated and discarded whole.
const terminator = "\n\n"

var (
	// ErrUnterminated indicates a datagram without a blank-line terminator.
	ErrUnterminated = errors.New("unterminated message")

	// ErrUnknownType indicates a TYPE value this implementation does not handle.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMissingField indicates a required field was absent or empty.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidField indicates a field value that could not be parsed.
	ErrInvalidField = errors.New("invalid field value")
)

// Message is one decoded LSNP message. Concrete types carry the fields of
// their TYPE; Encode renders the full key-value frame including terminator.
type Message interface {
	Type() MessageType
	Encode() []byte
}

// Fields holds the raw key-value pairs of one parsed frame before typed
// decoding.
type Fields map[string]string

// Type returns the TYPE field, or the empty string when absent.
func (f Fields) Type() MessageType {
	return MessageType(f[KeyType])
}

// MessageID returns the MESSAGE_ID field, or the empty string when absent.
func (f Fields) MessageID() string {
	return f[KeyMessageID]
}

// Token returns the TOKEN field, or the empty string when absent.
func (f Fields) Token() string {
	return f[KeyToken]
}

// Sender returns the declared sender identity using the field appropriate
// for the message type: USER_ID for presence and posts, FROM for directed
// messages, empty for types that carry no identity of their own.
func (f Fields) Sender() string {
	key := SenderKey(f.Type())
	if key == "" {
		return ""
	}
	return f[key]
}

func (f Fields) require(key string) (string, error) {
	v := f[key]
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return v, nil
}

func (f Fields) requireInt(key string) (int, error) {
	v, err := f.require(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidField, key, v)
	}
	return n, nil
}

func (f Fields) requireInt64(key string) (int64, error) {
	v, err := f.require(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidField, key, v)
	}
	return n, nil
}

// optionalInt64 parses key when present, returning 0 for absent or
// unparsable values. Used for advisory fields like TIMESTAMP.
func (f Fields) optionalInt64(key string) int64 {
	n, err := strconv.ParseInt(f[key], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (f Fields) optionalInt(key string) int {
	n, err := strconv.Atoi(f[key])
	if err != nil {
		return 0
	}
	return n
}

// ParseFrame splits one datagram into raw fields. Only the segment before
// the first blank line is examined; bytes after it are ignored. CRLF line
// endings are tolerated. Lines without a colon are skipped, and keys and
// values are trimmed of surrounding whitespace. A frame with no terminator
// at all is rejected outright.
func ParseFrame(datagram []byte) (Fields, error) {
	text := strings.ReplaceAll(string(datagram), "\r\n", "\n")
	header, _, found := strings.Cut(text, terminator)
	if !found {
		return nil, ErrUnterminated
	}

	fields := make(Fields)
	for _, line := range strings.Split(header, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields, nil
}

// Decode converts parsed fields into the typed message for their TYPE,
// enforcing that type's required fields.
func Decode(fields Fields) (Message, error) {
	switch fields.Type() {
	case TypePing:
		return decodePing(fields)
	case TypeProfile:
		return decodeProfile(fields)
	case TypePost:
		return decodePost(fields)
	case TypeLike:
		return decodeLike(fields)
	case TypeFollow, TypeUnfollow:
		return decodeFollow(fields)
	case TypeDM:
		return decodeDM(fields)
	case TypeAck:
		return decodeAck(fields)
	case TypeRevoke:
		return decodeRevoke(fields)
	case TypeFileOffer:
		return decodeFileOffer(fields)
	case TypeFileAccept, TypeFileReject:
		return decodeFileResponse(fields)
	case TypeFileChunk:
		return decodeFileChunk(fields)
	case TypeFileReceived:
		return decodeFileReceived(fields)
	case TypeGroupCreate:
		return decodeGroupCreate(fields)
	case TypeGroupUpdate:
		return decodeGroupUpdate(fields)
	case TypeGroupMessage:
		return decodeGroupMessage(fields)
	case TypeGameInvite:
		return decodeGameInvite(fields)
	case TypeGameMove:
		return decodeGameMove(fields)
	case TypeGameResult:
		return decodeGameResult(fields)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(fields.Type()))
	}
}

// KnownType reports whether t names a message type this implementation
// handles.
func KnownType(t MessageType) bool {
	switch t {
	case TypePing, TypeProfile, TypePost, TypeLike, TypeFollow, TypeUnfollow,
		TypeDM, TypeAck, TypeRevoke,
		TypeFileOffer, TypeFileAccept, TypeFileReject, TypeFileChunk, TypeFileReceived,
		TypeGroupCreate, TypeGroupUpdate, TypeGroupMessage,
		TypeGameInvite, TypeGameMove, TypeGameResult:
		return true
	}
	return false
}

// RequiredScope returns the token scope a message type must present. The
// second result is false for the exempt types (PING, PROFILE, ACK, REVOKE,
// FILE_RECEIVED), which carry no token at all.
func RequiredScope(t MessageType) (Scope, bool) {
	switch t {
	case TypeDM:
		return ScopeChat, true
	case TypePost, TypeLike:
		return ScopeBroadcast, true
	case TypeFollow, TypeUnfollow:
		return ScopeFollow, true
	case TypeFileOffer, TypeFileAccept, TypeFileReject, TypeFileChunk:
		return ScopeFile, true
	case TypeGroupCreate, TypeGroupUpdate, TypeGroupMessage:
		return ScopeGroup, true
	case TypeGameInvite, TypeGameMove, TypeGameResult:
		return ScopeGame, true
	}
	return "", false
}

// Reliable reports whether a message type is delivered over the ack/retry
// substrate. Receivers ACK these types immediately after dedup and token
// validation, before any handler runs.
func Reliable(t MessageType) bool {
	switch t {
	case TypeDM,
		TypeFileOffer, TypeFileAccept, TypeFileReject, TypeFileChunk,
		TypeGroupCreate, TypeGroupUpdate, TypeGroupMessage,
		TypeGameInvite, TypeGameMove, TypeGameResult:
		return true
	}
	return false
}

// SenderKey returns the field naming the sender identity for a message
// type: USER_ID for PING/PROFILE/POST, empty for ACK and REVOKE, FROM for
// everything else.
func SenderKey(t MessageType) string {
	switch t {
	case TypePing, TypeProfile, TypePost:
		return KeyUserID
	case TypeAck, TypeRevoke:
		return ""
	}
	return KeyFrom
}

// field is one ordered key-value pair of an outgoing frame.
type field struct {
	key   string
	value string
}

// encodeFrame renders ordered fields as "KEY: value" lines plus the blank
// line terminator. Pairs with empty values are omitted so optional fields
// never appear as dangling keys.
func encodeFrame(fields []field) []byte {
	var buf bytes.Buffer
	for _, kv := range fields {
		if kv.value == "" {
			continue
		}
		buf.WriteString(kv.key)
		buf.WriteString(": ")
		buf.WriteString(kv.value)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}

func formatInt64(n int64) string {
	return strconv.FormatInt(n, 10)
}
