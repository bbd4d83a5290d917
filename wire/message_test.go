package wire

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// TestParseFrame tests datagram-to-fields parsing including terminator
// enforcement and line-ending tolerance.
func TestParseFrame(t *testing.T) {
	tests := []struct {
		name     string
		datagram string
		wantErr  error
		want     Fields
	}{
		{
			name:     "valid frame",
			datagram: "TYPE: PING\nUSER_ID: alice@192.168.1.10\n\n",
			want:     Fields{"TYPE": "PING", "USER_ID": "alice@192.168.1.10"},
		},
		{
			name:     "crlf line endings",
			datagram: "TYPE: PING\r\nUSER_ID: alice@192.168.1.10\r\n\r\n",
			want:     Fields{"TYPE": "PING", "USER_ID": "alice@192.168.1.10"},
		},
		{
			name:     "no space after colon",
			datagram: "TYPE:PING\nUSER_ID:alice@192.168.1.10\n\n",
			want:     Fields{"TYPE": "PING", "USER_ID": "alice@192.168.1.10"},
		},
		{
			name:     "missing terminator",
			datagram: "TYPE: PING\nUSER_ID: alice@192.168.1.10\n",
			wantErr:  ErrUnterminated,
		},
		{
			name:     "empty datagram",
			datagram: "",
			wantErr:  ErrUnterminated,
		},
		{
			name:     "colonless line skipped",
			datagram: "TYPE: PING\ngarbage line\nUSER_ID: alice@192.168.1.10\n\n",
			want:     Fields{"TYPE": "PING", "USER_ID": "alice@192.168.1.10"},
		},
		{
			name:     "value with colons preserved",
			datagram: "TYPE: DM\nCONTENT: meet at 10:30\n\n",
			want:     Fields{"TYPE": "DM", "CONTENT": "meet at 10:30"},
		},
		{
			name:     "surrounding whitespace trimmed",
			datagram: "TYPE:   PING  \n  USER_ID  : alice@192.168.1.10\n\n",
			want:     Fields{"TYPE": "PING", "USER_ID": "alice@192.168.1.10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrame([]byte(tt.datagram))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseFrame() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFrame() unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Errorf("ParseFrame() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("ParseFrame()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

// TestParseFrameStopsAtFirstBlankLine verifies that anything after the
// terminator is ignored, including well-formed field lines.
func TestParseFrameStopsAtFirstBlankLine(t *testing.T) {
	datagram := "TYPE: PING\nUSER_ID: alice@192.168.1.10\n\nTYPE: DM\nINJECTED: yes\n\n"
	fields, err := ParseFrame([]byte(datagram))
	if err != nil {
		t.Fatalf("ParseFrame() unexpected error: %v", err)
	}
	if fields.Type() != TypePing {
		t.Errorf("Type() = %q, want PING", fields.Type())
	}
	if _, found := fields["INJECTED"]; found {
		t.Error("field after terminator was parsed")
	}
}

// TestEncodeTerminator verifies every encoded frame ends with the blank-line
// terminator and parses back to the same type.
func TestEncodeTerminator(t *testing.T) {
	messages := []Message{
		&Ping{UserID: "alice@192.168.1.10"},
		&Ack{MessageID: "aabbccdd"},
		&Revoke{Token: "alice@192.168.1.10|1754000000|chat"},
	}
	for _, msg := range messages {
		frame := msg.Encode()
		if !bytes.HasSuffix(frame, []byte("\n\n")) {
			t.Errorf("%s frame missing terminator: %q", msg.Type(), frame)
		}
		fields, err := ParseFrame(frame)
		if err != nil {
			t.Fatalf("ParseFrame(%s) error: %v", msg.Type(), err)
		}
		if fields.Type() != msg.Type() {
			t.Errorf("round-trip type = %q, want %q", fields.Type(), msg.Type())
		}
	}
}

// TestEncodeOmitsEmptyFields verifies optional fields never appear as
// dangling keys.
func TestEncodeOmitsEmptyFields(t *testing.T) {
	offer := &FileOffer{
		From:        "alice@192.168.1.10",
		To:          "bob@192.168.1.11",
		Filename:    "photo.jpg",
		Filesize:    2048,
		FileID:      "f1",
		TotalChunks: 2,
		ChunkSize:   1024,
		MessageID:   "aabbccdd",
		Token:       "alice@192.168.1.10|1754000000|file",
	}
	frame := string(offer.Encode())
	if strings.Contains(frame, "DESCRIPTION") {
		t.Errorf("empty DESCRIPTION encoded: %q", frame)
	}
	if strings.Contains(frame, "FILETYPE") {
		t.Errorf("empty FILETYPE encoded: %q", frame)
	}
}

// TestDecodeDM tests typed decoding of a direct message end to end.
func TestDecodeDM(t *testing.T) {
	frame := "TYPE: DM\nFROM: alice@192.168.1.10\nTO: bob@192.168.1.11\nCONTENT: hello bob\nTIMESTAMP: 1754000000\nMESSAGE_ID: f83d2b1c\nTOKEN: alice@192.168.1.10|1754003600|chat\n\n"
	fields, err := ParseFrame([]byte(frame))
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}
	msg, err := Decode(fields)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	dm, ok := msg.(*DM)
	if !ok {
		t.Fatalf("Decode() = %T, want *DM", msg)
	}
	if dm.From != "alice@192.168.1.10" || dm.To != "bob@192.168.1.11" {
		t.Errorf("endpoints = %q -> %q", dm.From, dm.To)
	}
	if dm.Content != "hello bob" {
		t.Errorf("Content = %q", dm.Content)
	}
	if dm.Timestamp != 1754000000 {
		t.Errorf("Timestamp = %d", dm.Timestamp)
	}
}

// TestDecodeRequiredFields tests that typed decoding rejects frames missing
// required fields or carrying unparsable numerics.
func TestDecodeRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		fields  Fields
		wantErr error
	}{
		{
			name:    "dm without content",
			fields:  Fields{"TYPE": "DM", "FROM": "a@1.2.3.4", "TO": "b@1.2.3.5", "MESSAGE_ID": "m1", "TOKEN": "t"},
			wantErr: ErrMissingField,
		},
		{
			name:    "dm without token",
			fields:  Fields{"TYPE": "DM", "FROM": "a@1.2.3.4", "TO": "b@1.2.3.5", "CONTENT": "x", "MESSAGE_ID": "m1"},
			wantErr: ErrMissingField,
		},
		{
			name: "move without position",
			fields: Fields{"TYPE": "TICTACTOE_MOVE", "FROM": "a@1.2.3.4", "TO": "b@1.2.3.5",
				"GAMEID": "g1", "SYMBOL": "X", "TURN": "1", "MESSAGE_ID": "m1", "TOKEN": "t"},
			wantErr: ErrMissingField,
		},
		{
			name: "move with unparsable turn",
			fields: Fields{"TYPE": "TICTACTOE_MOVE", "FROM": "a@1.2.3.4", "TO": "b@1.2.3.5",
				"GAMEID": "g1", "POSITION": "4", "SYMBOL": "X", "TURN": "one", "MESSAGE_ID": "m1", "TOKEN": "t"},
			wantErr: ErrInvalidField,
		},
		{
			name: "chunk without data",
			fields: Fields{"TYPE": "FILE_CHUNK", "FROM": "a@1.2.3.4", "TO": "b@1.2.3.5",
				"FILEID": "f1", "CHUNK_INDEX": "0", "TOTAL_CHUNKS": "1", "MESSAGE_ID": "m1", "TOKEN": "t"},
			wantErr: ErrMissingField,
		},
		{
			name:    "unknown type",
			fields:  Fields{"TYPE": "TELEPORT"},
			wantErr: ErrUnknownType,
		},
		{
			name:    "missing type",
			fields:  Fields{"USER_ID": "a@1.2.3.4"},
			wantErr: ErrUnknownType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.fields)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestRequiredScopeTable verifies the complete scope table, including the
// exempt types that carry no token.
func TestRequiredScopeTable(t *testing.T) {
	tests := []struct {
		msgType  MessageType
		scope    Scope
		required bool
	}{
		{TypeDM, ScopeChat, true},
		{TypePost, ScopeBroadcast, true},
		{TypeLike, ScopeBroadcast, true},
		{TypeFollow, ScopeFollow, true},
		{TypeUnfollow, ScopeFollow, true},
		{TypeFileOffer, ScopeFile, true},
		{TypeFileAccept, ScopeFile, true},
		{TypeFileReject, ScopeFile, true},
		{TypeFileChunk, ScopeFile, true},
		{TypeGroupCreate, ScopeGroup, true},
		{TypeGroupUpdate, ScopeGroup, true},
		{TypeGroupMessage, ScopeGroup, true},
		{TypeGameInvite, ScopeGame, true},
		{TypeGameMove, ScopeGame, true},
		{TypeGameResult, ScopeGame, true},
		{TypePing, "", false},
		{TypeProfile, "", false},
		{TypeAck, "", false},
		{TypeRevoke, "", false},
		{TypeFileReceived, "", false},
	}

	for _, tt := range tests {
		scope, required := RequiredScope(tt.msgType)
		if scope != tt.scope || required != tt.required {
			t.Errorf("RequiredScope(%s) = (%q, %v), want (%q, %v)",
				tt.msgType, scope, required, tt.scope, tt.required)
		}
		if !KnownType(tt.msgType) {
			t.Errorf("KnownType(%s) = false", tt.msgType)
		}
	}
}

// TestReliableSet verifies which types ride the ack/retry substrate.
func TestReliableSet(t *testing.T) {
	reliable := []MessageType{
		TypeDM, TypeFileOffer, TypeFileAccept, TypeFileReject, TypeFileChunk,
		TypeGroupCreate, TypeGroupUpdate, TypeGroupMessage,
		TypeGameInvite, TypeGameMove, TypeGameResult,
	}
	unreliable := []MessageType{
		TypePing, TypeProfile, TypePost, TypeLike, TypeFollow, TypeUnfollow,
		TypeFileReceived, TypeAck, TypeRevoke,
	}
	for _, mt := range reliable {
		if !Reliable(mt) {
			t.Errorf("Reliable(%s) = false, want true", mt)
		}
	}
	for _, mt := range unreliable {
		if Reliable(mt) {
			t.Errorf("Reliable(%s) = true, want false", mt)
		}
	}
}

// TestSenderKey verifies the sender-identity field table.
func TestSenderKey(t *testing.T) {
	tests := []struct {
		msgType MessageType
		want    string
	}{
		{TypePing, KeyUserID},
		{TypeProfile, KeyUserID},
		{TypePost, KeyUserID},
		{TypeDM, KeyFrom},
		{TypeFileChunk, KeyFrom},
		{TypeGameMove, KeyFrom},
		{TypeAck, ""},
		{TypeRevoke, ""},
	}
	for _, tt := range tests {
		if got := SenderKey(tt.msgType); got != tt.want {
			t.Errorf("SenderKey(%s) = %q, want %q", tt.msgType, got, tt.want)
		}
	}

	fields := Fields{"TYPE": "POST", "USER_ID": "alice@192.168.1.10", "FROM": "mallory@10.0.0.1"}
	if got := fields.Sender(); got != "alice@192.168.1.10" {
		t.Errorf("Sender() = %q, want USER_ID value", got)
	}
}

// TestGroupMemberListRoundTrip tests the comma-separated member list format.
func TestGroupMemberListRoundTrip(t *testing.T) {
	create := &GroupCreate{
		From:      "alice@192.168.1.10",
		GroupID:   "study-group",
		GroupName: "Study Group",
		Members:   []string{"alice@192.168.1.10", "bob@192.168.1.11", "carol@192.168.1.12"},
		MessageID: "aabbccdd",
		Token:     "alice@192.168.1.10|1754003600|group",
	}
	fields, err := ParseFrame(create.Encode())
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}
	msg, err := Decode(fields)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	got, ok := msg.(*GroupCreate)
	if !ok {
		t.Fatalf("Decode() = %T, want *GroupCreate", msg)
	}
	if len(got.Members) != 3 || got.Members[1] != "bob@192.168.1.11" {
		t.Errorf("Members = %v", got.Members)
	}

	// Stray commas and spaces must not produce phantom members.
	if got := splitMemberList(" a@1.2.3.4, ,b@1.2.3.5,"); len(got) != 2 {
		t.Errorf("splitMemberList() = %v, want 2 entries", got)
	}
}
