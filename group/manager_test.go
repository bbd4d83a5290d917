package group

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lsnp-net/lsnp/auth"
	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/peer"
	"github.com/lsnp-net/lsnp/reliable"
	"github.com/lsnp-net/lsnp/wire"
)

// memberRig is one simulated peer with every callback recorded.
type memberRig struct {
	id      string
	wire    *fakeWire
	manager *Manager

	mu       sync.Mutex
	created  []Group
	updated  []Group
	messages []Message
}

func newMemberRig(id string) *memberRig {
	w := newFakeWire()
	sender := reliable.NewSender(w, reliable.NewWaiters())
	sender.SetRetryPolicy(2, 50*time.Millisecond)
	w.waiters = sender.Waiters()

	rig := &memberRig{id: id, wire: w}
	rig.manager = NewManager(Config{
		SelfID:    id,
		Port:      limits.DefaultPort,
		Authority: auth.NewAuthority(),
		Peers:     peer.NewDirectory(),
		Sender:    sender,
	})
	rig.manager.OnCreated(func(g Group) {
		rig.mu.Lock()
		defer rig.mu.Unlock()
		rig.created = append(rig.created, g)
	})
	rig.manager.OnUpdated(func(g Group) {
		rig.mu.Lock()
		defer rig.mu.Unlock()
		rig.updated = append(rig.updated, g)
	})
	rig.manager.OnMessage(func(msg Message) {
		rig.mu.Lock()
		defer rig.mu.Unlock()
		rig.messages = append(rig.messages, msg)
	})
	return rig
}

func (r *memberRig) messagesSeen() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

var testSrc = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: limits.DefaultPort}

// pump delivers src's queued frames addressed to dst, dropping the rest.
// Fan-outs address each member individually, so frames for absent rigs
// are simply lost here.
func pump(t *testing.T, src, dst *memberRig) {
	t.Helper()
	dstIP := wire.IdentityIP(dst.id)
	for _, sent := range src.wire.take() {
		udp, ok := sent.addr.(*net.UDPAddr)
		if !ok || !udp.IP.Equal(dstIP) {
			continue
		}
		msg, err := wire.Decode(sent.fields)
		if err != nil {
			t.Fatalf("decode %s: %v", sent.fields.Type(), err)
		}
		switch msg.Type() {
		case wire.TypeGroupCreate:
			err = dst.manager.HandleCreate(msg, testSrc)
		case wire.TypeGroupUpdate:
			err = dst.manager.HandleUpdate(msg, testSrc)
		case wire.TypeGroupMessage:
			err = dst.manager.HandleMessage(msg, testSrc)
		default:
			t.Fatalf("unexpected frame type %s", msg.Type())
		}
		if err != nil {
			t.Fatalf("handle %s: %v", msg.Type(), err)
		}
	}
}

func TestCreateFansOutToMembers(t *testing.T) {
	alice := newMemberRig("alice@10.0.0.1")
	bob := newMemberRig("bob@10.0.0.2")

	g, err := alice.manager.Create(context.Background(), "hiking", "Hiking Crew",
		[]string{"bob@10.0.0.2", "carol@10.0.0.3"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := []string{"alice@10.0.0.1", "bob@10.0.0.2", "carol@10.0.0.3"}
	if len(g.Members) != 3 {
		t.Fatalf("members = %v, want %v", g.Members, want)
	}
	for i, member := range want {
		if g.Members[i] != member {
			t.Fatalf("members = %v, want %v", g.Members, want)
		}
	}
	if g.Creator != alice.id || !g.Has(alice.id) {
		t.Fatalf("creator not in group: %+v", g)
	}

	// One announcement per other member, each under its own message id.
	frames := alice.wire.take()
	if len(frames) != 2 {
		t.Fatalf("announcements = %d, want 2", len(frames))
	}
	if frames[0].fields.MessageID() == frames[1].fields.MessageID() {
		t.Fatalf("fan-out reused a message id")
	}
	for _, sent := range frames {
		if sent.fields["MEMBERS"] != "alice@10.0.0.1,bob@10.0.0.2,carol@10.0.0.3" {
			t.Fatalf("MEMBERS = %q", sent.fields["MEMBERS"])
		}
	}

	// Replay bob's copy into his rig.
	for _, sent := range frames {
		udp := sent.addr.(*net.UDPAddr)
		if !udp.IP.Equal(wire.IdentityIP(bob.id)) {
			continue
		}
		msg, err := wire.Decode(sent.fields)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if err := bob.manager.HandleCreate(msg, testSrc); err != nil {
			t.Fatalf("HandleCreate: %v", err)
		}
	}
	got, ok := bob.manager.Group("hiking")
	if !ok || got.Creator != alice.id || !got.Has(bob.id) {
		t.Fatalf("bob's view = %+v", got)
	}
	bob.mu.Lock()
	announced := len(bob.created)
	bob.mu.Unlock()
	if announced != 1 {
		t.Fatalf("created callback fired %d times, want 1", announced)
	}
}

func TestUpdateAddsAndRemoves(t *testing.T) {
	alice := newMemberRig("alice@10.0.0.1")
	bob := newMemberRig("bob@10.0.0.2")

	if _, err := alice.manager.Create(context.Background(), "g1", "Group One",
		[]string{bob.id}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	pump(t, alice, bob)

	g, err := alice.manager.Update(context.Background(), "g1",
		[]string{"carol@10.0.0.3"}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !g.Has("carol@10.0.0.3") {
		t.Fatalf("carol missing after add: %+v", g)
	}
	pump(t, alice, bob)

	bobView, _ := bob.manager.Group("g1")
	if !bobView.Has("carol@10.0.0.3") {
		t.Fatalf("bob's view missing carol: %+v", bobView)
	}

	// Removal: the removed member gets no notice.
	if _, err := alice.manager.Update(context.Background(), "g1", nil, []string{bob.id}); err != nil {
		t.Fatalf("Update(remove): %v", err)
	}
	for _, sent := range alice.wire.take() {
		udp := sent.addr.(*net.UDPAddr)
		if udp.IP.Equal(wire.IdentityIP(bob.id)) {
			t.Fatalf("removed member was notified: %v", sent.fields)
		}
	}
	if aliceView, _ := alice.manager.Group("g1"); aliceView.Has(bob.id) {
		t.Fatalf("bob still a member on alice's side: %+v", aliceView)
	}
}

func TestUpdateAuthorization(t *testing.T) {
	alice := newMemberRig("alice@10.0.0.1")

	if _, err := alice.manager.Update(context.Background(), "nope", []string{"x@10.0.0.9"}, nil); !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("Update(unknown) = %v, want ErrUnknownGroup", err)
	}

	if _, err := alice.manager.Create(context.Background(), "g1", "Group One",
		[]string{"bob@10.0.0.2"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Leaving the group forfeits the right to change it.
	if _, err := alice.manager.Update(context.Background(), "g1", nil, []string{alice.id}); err != nil {
		t.Fatalf("Update(leave): %v", err)
	}
	if _, err := alice.manager.Update(context.Background(), "g1", []string{"carol@10.0.0.3"}, nil); !errors.Is(err, ErrNotMember) {
		t.Fatalf("Update after leaving = %v, want ErrNotMember", err)
	}
}

func TestSendRecordsHistoryBothSides(t *testing.T) {
	alice := newMemberRig("alice@10.0.0.1")
	bob := newMemberRig("bob@10.0.0.2")

	if _, err := alice.manager.Create(context.Background(), "g1", "Group One",
		[]string{bob.id}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	pump(t, alice, bob)

	sent, err := alice.manager.Send(context.Background(), "g1", "trailhead at 8am")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.From != alice.id || sent.GroupID != "g1" {
		t.Fatalf("recorded message wrong: %+v", sent)
	}
	if history := alice.manager.Messages("g1"); len(history) != 1 {
		t.Fatalf("alice's history = %+v", history)
	}
	pump(t, alice, bob)

	history := bob.manager.Messages("g1")
	if len(history) != 1 || history[0].Content != "trailhead at 8am" {
		t.Fatalf("bob's history = %+v", history)
	}
	if history[0].DisplayName != "alice" {
		t.Fatalf("display name = %q, want username fallback", history[0].DisplayName)
	}
	if got := bob.messagesSeen(); len(got) != 1 {
		t.Fatalf("message callback fired %d times, want 1", len(got))
	}
}

func TestSendValidation(t *testing.T) {
	alice := newMemberRig("alice@10.0.0.1")

	if _, err := alice.manager.Send(context.Background(), "nope", "hi"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("Send(unknown) = %v, want ErrUnknownGroup", err)
	}
	if _, err := alice.manager.Create(context.Background(), "g1", "Group One", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := alice.manager.Send(context.Background(), "g1", ""); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("Send(empty) = %v, want ErrEmptyContent", err)
	}

	// A group we observe but do not belong to refuses our messages.
	outsider := &wire.GroupCreate{
		From:      "carol@10.0.0.3",
		GroupID:   "g2",
		GroupName: "Others",
		Members:   []string{"carol@10.0.0.3", "dave@10.0.0.4"},
		Timestamp: time.Now().Unix(),
		MessageID: wire.NewMessageID(),
		Token:     "carol@10.0.0.3|9999999999|group",
	}
	if err := alice.manager.HandleCreate(outsider, testSrc); err != nil {
		t.Fatalf("HandleCreate: %v", err)
	}
	if _, err := alice.manager.Send(context.Background(), "g2", "let me in"); !errors.Is(err, ErrNotMember) {
		t.Errorf("Send(outsider) = %v, want ErrNotMember", err)
	}

	if _, err := alice.manager.Create(context.Background(), "", "No ID", nil); !errors.Is(err, ErrInvalidGroup) {
		t.Errorf("Create(no id) = %v, want ErrInvalidGroup", err)
	}
}

func TestHandleMessageRejectsNonMember(t *testing.T) {
	bob := newMemberRig("bob@10.0.0.2")

	create := &wire.GroupCreate{
		From:      "alice@10.0.0.1",
		GroupID:   "g1",
		GroupName: "Group One",
		Members:   []string{"alice@10.0.0.1", "bob@10.0.0.2"},
		Timestamp: time.Now().Unix(),
		MessageID: wire.NewMessageID(),
		Token:     "alice@10.0.0.1|9999999999|group",
	}
	if err := bob.manager.HandleCreate(create, testSrc); err != nil {
		t.Fatalf("HandleCreate: %v", err)
	}

	intruder := &wire.GroupMessage{
		From:      "mallory@10.0.0.66",
		GroupID:   "g1",
		Content:   "hello friends",
		Timestamp: time.Now().Unix(),
		MessageID: wire.NewMessageID(),
		Token:     "mallory@10.0.0.66|9999999999|group",
	}
	if err := bob.manager.HandleMessage(intruder, testSrc); !errors.Is(err, ErrNotMember) {
		t.Fatalf("HandleMessage(intruder) = %v, want ErrNotMember", err)
	}
	if history := bob.manager.Messages("g1"); len(history) != 0 {
		t.Fatalf("intruder message recorded: %+v", history)
	}

	ghost := &wire.GroupMessage{
		From:      "alice@10.0.0.1",
		GroupID:   "phantom",
		Content:   "anyone?",
		Timestamp: time.Now().Unix(),
		MessageID: wire.NewMessageID(),
		Token:     "alice@10.0.0.1|9999999999|group",
	}
	if err := bob.manager.HandleMessage(ghost, testSrc); !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("HandleMessage(unknown group) = %v, want ErrUnknownGroup", err)
	}
}

func TestPartialDeliveryStillRecorded(t *testing.T) {
	alice := newMemberRig("alice@10.0.0.1")
	alice.wire.mute(wire.TypeGroupMessage)

	if _, err := alice.manager.Create(context.Background(), "g1", "Group One",
		[]string{"bob@10.0.0.2"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := alice.manager.Send(context.Background(), "g1", "is this thing on?")
	if !errors.Is(err, reliable.ErrNotAcknowledged) {
		t.Fatalf("Send = %v, want ErrNotAcknowledged", err)
	}
	// The attempt still enters history; the caller decides what to do.
	if history := alice.manager.Messages("g1"); len(history) != 1 {
		t.Fatalf("history = %+v, want the attempted message", history)
	}
}
