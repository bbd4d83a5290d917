package wire

// Ping is the minimal presence beacon broadcast on the discovery interval.
type Ping struct {
	UserID string
}

func (m *Ping) Type() MessageType { return TypePing }

func (m *Ping) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypePing)},
		{KeyUserID, m.UserID},
	})
}

func decodePing(f Fields) (*Ping, error) {
	userID, err := f.require(KeyUserID)
	if err != nil {
		return nil, err
	}
	return &Ping{UserID: userID}, nil
}

// Profile carries a peer's display name and status line. Broadcast alongside
// PING and replayed whenever either changes.
type Profile struct {
	UserID      string
	DisplayName string
	Status      string
}

func (m *Profile) Type() MessageType { return TypeProfile }

func (m *Profile) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeProfile)},
		{KeyUserID, m.UserID},
		{"DISPLAY_NAME", m.DisplayName},
		{"STATUS", m.Status},
	})
}

func decodeProfile(f Fields) (*Profile, error) {
	userID, err := f.require(KeyUserID)
	if err != nil {
		return nil, err
	}
	// DISPLAY_NAME and STATUS are read leniently: peers with an empty status
	// omit the line entirely and must not lose presence over it.
	return &Profile{
		UserID:      userID,
		DisplayName: f["DISPLAY_NAME"],
		Status:      f["STATUS"],
	}, nil
}

// Post is a broadcast status update with a validity period.
type Post struct {
	UserID    string
	Content   string
	TTL       int64
	Timestamp int64
	MessageID string
	Token     string
}

func (m *Post) Type() MessageType { return TypePost }

func (m *Post) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypePost)},
		{KeyUserID, m.UserID},
		{"CONTENT", m.Content},
		{"TTL", formatInt64(m.TTL)},
		{KeyTimestamp, formatInt64(m.Timestamp)},
		{KeyMessageID, m.MessageID},
		{KeyToken, m.Token},
	})
}

func decodePost(f Fields) (*Post, error) {
	userID, err := f.require(KeyUserID)
	if err != nil {
		return nil, err
	}
	content, err := f.require("CONTENT")
	if err != nil {
		return nil, err
	}
	ttl, err := f.requireInt64("TTL")
	if err != nil {
		return nil, err
	}
	ts, err := f.requireInt64(KeyTimestamp)
	if err != nil {
		return nil, err
	}
	messageID, err := f.require(KeyMessageID)
	if err != nil {
		return nil, err
	}
	token, err := f.require(KeyToken)
	if err != nil {
		return nil, err
	}
	return &Post{
		UserID:    userID,
		Content:   content,
		TTL:       ttl,
		Timestamp: ts,
		MessageID: messageID,
		Token:     token,
	}, nil
}

// Like actions applied to a post, identified by the author and the post's
// original timestamp.
const (
	ActionLike   = "LIKE"
	ActionUnlike = "UNLIKE"
)

// Like toggles a reaction on a peer's post. The post is addressed by its
// author (TO) and its TIMESTAMP value at publication.
type Like struct {
	From          string
	To            string
	PostTimestamp int64
	Action        string
	Timestamp     int64
	MessageID     string
	Token         string
}

func (m *Like) Type() MessageType { return TypeLike }

func (m *Like) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeLike)},
		{KeyFrom, m.From},
		{KeyTo, m.To},
		{"POST_TIMESTAMP", formatInt64(m.PostTimestamp)},
		{"ACTION", m.Action},
		{KeyTimestamp, formatInt64(m.Timestamp)},
		{KeyMessageID, m.MessageID},
		{KeyToken, m.Token},
	})
}

func decodeLike(f Fields) (*Like, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	postTS, err := f.requireInt64("POST_TIMESTAMP")
	if err != nil {
		return nil, err
	}
	action, err := f.require("ACTION")
	if err != nil {
		return nil, err
	}
	messageID, err := f.require(KeyMessageID)
	if err != nil {
		return nil, err
	}
	token, err := f.require(KeyToken)
	if err != nil {
		return nil, err
	}
	return &Like{
		From:          from,
		To:            to,
		PostTimestamp: postTS,
		Action:        action,
		Timestamp:     f.optionalInt64(KeyTimestamp),
		MessageID:     messageID,
		Token:         token,
	}, nil
}

// Follow subscribes the sender to the recipient's posts.
type Follow struct {
	From      string
	To        string
	Timestamp int64
	MessageID string
	Token     string
}

func (m *Follow) Type() MessageType { return TypeFollow }

func (m *Follow) Encode() []byte {
	return encodeFollowFrame(TypeFollow, m.From, m.To, m.Timestamp, m.MessageID, m.Token)
}

// Unfollow removes an existing subscription.
type Unfollow struct {
	From      string
	To        string
	Timestamp int64
	MessageID string
	Token     string
}

func (m *Unfollow) Type() MessageType { return TypeUnfollow }

func (m *Unfollow) Encode() []byte {
	return encodeFollowFrame(TypeUnfollow, m.From, m.To, m.Timestamp, m.MessageID, m.Token)
}

func encodeFollowFrame(t MessageType, from, to string, ts int64, messageID, token string) []byte {
	return encodeFrame([]field{
		{KeyType, string(t)},
		{KeyFrom, from},
		{KeyTo, to},
		{KeyTimestamp, formatInt64(ts)},
		{KeyMessageID, messageID},
		{KeyToken, token},
	})
}

func decodeFollow(f Fields) (Message, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	messageID, err := f.require(KeyMessageID)
	if err != nil {
		return nil, err
	}
	token, err := f.require(KeyToken)
	if err != nil {
		return nil, err
	}
	ts := f.optionalInt64(KeyTimestamp)
	if f.Type() == TypeUnfollow {
		return &Unfollow{From: from, To: to, Timestamp: ts, MessageID: messageID, Token: token}, nil
	}
	return &Follow{From: from, To: to, Timestamp: ts, MessageID: messageID, Token: token}, nil
}

// DM is a unicast direct message delivered over the reliable substrate.
type DM struct {
	From      string
	To        string
	Content   string
	Timestamp int64
	MessageID string
	Token     string
}

func (m *DM) Type() MessageType { return TypeDM }

func (m *DM) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeDM)},
		{KeyFrom, m.From},
		{KeyTo, m.To},
		{"CONTENT", m.Content},
		{KeyTimestamp, formatInt64(m.Timestamp)},
		{KeyMessageID, m.MessageID},
		{KeyToken, m.Token},
	})
}

func decodeDM(f Fields) (*DM, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	content, err := f.require("CONTENT")
	if err != nil {
		return nil, err
	}
	messageID, err := f.require(KeyMessageID)
	if err != nil {
		return nil, err
	}
	token, err := f.require(KeyToken)
	if err != nil {
		return nil, err
	}
	return &DM{
		From:      from,
		To:        to,
		Content:   content,
		Timestamp: f.optionalInt64(KeyTimestamp),
		MessageID: messageID,
		Token:     token,
	}, nil
}

// AckStatusReceived is the STATUS value carried by every ACK.
const AckStatusReceived = "RECEIVED"

// Ack confirms receipt of one reliable message. MESSAGE_ID names the
// message being confirmed, not the ACK itself.
type Ack struct {
	MessageID string
	Status    string
}

func (m *Ack) Type() MessageType { return TypeAck }

func (m *Ack) Encode() []byte {
	status := m.Status
	if status == "" {
		status = AckStatusReceived
	}
	return encodeFrame([]field{
		{KeyType, string(TypeAck)},
		{KeyMessageID, m.MessageID},
		{"STATUS", status},
	})
}

func decodeAck(f Fields) (*Ack, error) {
	messageID, err := f.require(KeyMessageID)
	if err != nil {
		return nil, err
	}
	return &Ack{MessageID: messageID, Status: f["STATUS"]}, nil
}

// Revoke withdraws a previously issued token. The token string itself is the
// complete payload; the issuer is named inside it.
type Revoke struct {
	Token string
}

func (m *Revoke) Type() MessageType { return TypeRevoke }

func (m *Revoke) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeRevoke)},
		{KeyToken, m.Token},
	})
}

func decodeRevoke(f Fields) (*Revoke, error) {
	token, err := f.require(KeyToken)
	if err != nil {
		return nil, err
	}
	return &Revoke{Token: token}, nil
}
