// Package wire implements the LSNP frame codec: plain-text key-value
// messages carried one per UDP datagram.
//
// # Frame Format
//
// A frame is a sequence of "KEY: value" lines terminated by a blank line:
//
//	TYPE: DM
//	FROM: alice@192.168.1.10
//	TO: bob@192.168.1.11
//	CONTENT: hello
//	MESSAGE_ID: f83d2b1c
//	TOKEN: alice@192.168.1.10|1754000000|chat
//
// Only the segment before the first blank line is parsed; a datagram that
// never presents a blank line is discarded whole. CRLF line endings are
// tolerated on input, and lines without a colon are skipped.
//
// # Usage
//
// Inbound datagrams pass through two stages. ParseFrame produces the raw
// Fields, which expose just enough (TYPE, MESSAGE_ID, TOKEN, sender) for
// routing decisions; Decode then builds the typed message and enforces the
// required fields of its TYPE:
//
//	fields, err := wire.ParseFrame(datagram)
//	if err != nil {
//	    return // truncated frame, nothing to do
//	}
//	msg, err := wire.Decode(fields)
//
// Outbound messages are built as typed structs and rendered with Encode:
//
//	dm := &wire.DM{From: self, To: peer, Content: "hello",
//	    MessageID: wire.NewMessageID(), Token: token}
//	frame := dm.Encode()
//
// The package also owns the per-type protocol tables: RequiredScope (which
// token scope a type must present), Reliable (which types are ACKed and
// retried), and SenderKey (which field names the sender).
package wire
