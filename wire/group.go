package wire

import "strings"

// splitMemberList parses the comma-separated member list format shared by
// GROUP_CREATE and GROUP_UPDATE. Blank entries from stray commas are
// dropped.
func splitMemberList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	members := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			members = append(members, p)
		}
	}
	return members
}

func joinMemberList(members []string) string {
	return strings.Join(members, ",")
}

// GroupCreate announces a new group to every listed member.
type GroupCreate struct {
	From      string
	GroupID   string
	GroupName string
	Members   []string
	Timestamp int64
	MessageID string
	Token     string
}

func (m *GroupCreate) Type() MessageType { return TypeGroupCreate }

func (m *GroupCreate) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeGroupCreate)},
		{KeyFrom, m.From},
		{"GROUP_ID", m.GroupID},
		{"GROUP_NAME", m.GroupName},
		{"MEMBERS", joinMemberList(m.Members)},
		{KeyTimestamp, formatInt64(m.Timestamp)},
		{KeyMessageID, m.MessageID},
		{KeyToken, m.Token},
	})
}

func decodeGroupCreate(f Fields) (*GroupCreate, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	groupID, err := f.require("GROUP_ID")
	if err != nil {
		return nil, err
	}
	groupName, err := f.require("GROUP_NAME")
	if err != nil {
		return nil, err
	}
	membersRaw, err := f.require("MEMBERS")
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
	return &GroupCreate{
		From:      from,
		GroupID:   groupID,
		GroupName: groupName,
		Members:   splitMemberList(membersRaw),
		Timestamp: f.optionalInt64(KeyTimestamp),
		MessageID: messageID,
		Token:     token,
	}, nil
}

// GroupUpdate adds and removes members. Either list may be empty; an update
// naming neither is still valid and simply confirms the group.
type GroupUpdate struct {
	From      string
	GroupID   string
	Add       []string
	Remove    []string
	Timestamp int64
	MessageID string
	Token     string
}

func (m *GroupUpdate) Type() MessageType { return TypeGroupUpdate }

func (m *GroupUpdate) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeGroupUpdate)},
		{KeyFrom, m.From},
		{"GROUP_ID", m.GroupID},
		{"ADD", joinMemberList(m.Add)},
		{"REMOVE", joinMemberList(m.Remove)},
		{KeyTimestamp, formatInt64(m.Timestamp)},
		{KeyMessageID, m.MessageID},
		{KeyToken, m.Token},
	})
}

func decodeGroupUpdate(f Fields) (*GroupUpdate, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	groupID, err := f.require("GROUP_ID")
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
	return &GroupUpdate{
		From:      from,
		GroupID:   groupID,
		Add:       splitMemberList(f["ADD"]),
		Remove:    splitMemberList(f["REMOVE"]),
		Timestamp: f.optionalInt64(KeyTimestamp),
		MessageID: messageID,
		Token:     token,
	}, nil
}

// GroupMessage is a chat line fanned out to every current member.
type GroupMessage struct {
	From      string
	GroupID   string
	Content   string
	Timestamp int64
	MessageID string
	Token     string
}

func (m *GroupMessage) Type() MessageType { return TypeGroupMessage }

func (m *GroupMessage) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeGroupMessage)},
		{KeyFrom, m.From},
		{"GROUP_ID", m.GroupID},
		{"CONTENT", m.Content},
		{KeyTimestamp, formatInt64(m.Timestamp)},
		{KeyMessageID, m.MessageID},
		{KeyToken, m.Token},
	})
}

func decodeGroupMessage(f Fields) (*GroupMessage, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	groupID, err := f.require("GROUP_ID")
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
	return &GroupMessage{
		From:      from,
		GroupID:   groupID,
		Content:   content,
		Timestamp: f.optionalInt64(KeyTimestamp),
		MessageID: messageID,
		Token:     token,
	}, nil
}
