package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lsnp-net/lsnp"
	"github.com/lsnp-net/lsnp/file"
	"github.com/lsnp-net/lsnp/game"
	"github.com/lsnp-net/lsnp/group"
	"github.com/lsnp-net/lsnp/messaging"
	"github.com/lsnp-net/lsnp/peer"
	"github.com/lsnp-net/lsnp/wire"
)

// repl is the interactive command loop. Commands are thin wrappers over
// Node operations; all state lives in the node, except the numbering of
// the last feed listing, kept so "like 2" can name a post.
type repl struct {
	node    *lsnp.Node
	in      *bufio.Scanner
	out     io.Writer
	feed    []messaging.FeedPost
	verbose bool
}

func newREPL(node *lsnp.Node, in *bufio.Scanner, out io.Writer, verbose bool) *repl {
	r := &repl{node: node, in: in, out: out, verbose: verbose}

	node.OnPeer(func(identity string) {
		fmt.Fprintf(out, "\n* %s joined the network\n", identity)
	})
	node.OnPost(func(post messaging.FeedPost) {
		fmt.Fprintf(out, "\n* %s posted: %s\n", post.DisplayName, post.Content)
	})
	node.OnDM(func(msg messaging.ChatMessage) {
		fmt.Fprintf(out, "\n* DM from %s: %s\n", msg.DisplayName, msg.Content)
	})
	node.Messaging().OnLike(func(from, action string, post messaging.FeedPost) {
		verb := "liked"
		if action == wire.ActionUnlike {
			verb = "unliked"
		}
		fmt.Fprintf(out, "\n* %s %s your post %q\n", from, verb, post.Content)
	})
	node.Messaging().OnFollow(func(from string, following bool) {
		if following {
			fmt.Fprintf(out, "\n* %s now follows you\n", from)
		} else {
			fmt.Fprintf(out, "\n* %s unfollowed you\n", from)
		}
	})
	node.OnFileOffer(func(offer file.IncomingOffer) {
		fmt.Fprintf(out, "\n* %s offers %q (%d bytes): accept %s or reject %s\n",
			offer.From, offer.Filename, offer.Size, offer.FileID, offer.FileID)
	})
	node.Files().OnReceived(func(fileID, path, from string) {
		fmt.Fprintf(out, "\n* file from %s saved to %s\n", from, path)
	})
	node.Files().OnDelivered(func(fileID, status string) {
		fmt.Fprintf(out, "\n* transfer %s confirmed: %s\n", fileID, status)
	})
	node.Files().OnAborted(func(fileID, reason string) {
		fmt.Fprintf(out, "\n* transfer %s stopped: %s\n", fileID, reason)
	})
	node.OnGameInvite(func(invite game.Invite) {
		fmt.Fprintf(out, "\n* %s invites you to tic-tac-toe (game %s, they play %s): play %s <0-8>\n",
			invite.From, invite.GameID, invite.Symbol, invite.GameID)
	})
	node.Games().OnMove(func(session game.Session, mover string) {
		fmt.Fprintf(out, "\n* move by %s in game %s:\n%s", mover, session.ID, session.Render())
	})
	node.Games().OnFinished(func(session game.Session, outcome game.Outcome) {
		fmt.Fprintf(out, "\n* game %s over: %s %s\n%s",
			session.ID, outcome.Result, outcome.Symbol, session.Render())
	})
	node.OnGroupMessage(func(msg group.Message) {
		fmt.Fprintf(out, "\n* [%s] %s: %s\n", msg.GroupID, msg.DisplayName, msg.Content)
	})
	node.Groups().OnCreated(func(g group.Group) {
		fmt.Fprintf(out, "\n* you were added to group %q (%s)\n", g.Name, g.ID)
	})
	node.Groups().OnUpdated(func(g group.Group) {
		fmt.Fprintf(out, "\n* group %q membership changed: %s\n", g.Name, strings.Join(g.Members, ", "))
	})

	return r
}

func (r *repl) run() {
	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			return
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		cmd, rest := strings.ToLower(args[0]), args[1:]

		switch cmd {
		case "quit", "exit":
			return
		case "help":
			r.help()
		case "whoami":
			r.whoami()
		case "profile":
			r.profile(rest)
		case "verbose":
			r.toggleVerbose()
		case "peers":
			r.peers(rest)
		case "post":
			r.post(rest)
		case "feed":
			r.showFeed(rest)
		case "like":
			r.react(rest, true)
		case "unlike":
			r.react(rest, false)
		case "follow":
			r.follow(rest, true)
		case "unfollow":
			r.follow(rest, false)
		case "contacts":
			r.contacts()
		case "dm":
			r.dm(rest)
		case "chats":
			r.chats()
		case "history":
			r.history(rest)
		case "offer":
			r.offerFile(rest)
		case "offers":
			r.listOffers()
		case "accept":
			r.acceptFile(rest)
		case "reject":
			r.rejectFile(rest)
		case "transfers":
			r.transfers()
		case "invite":
			r.inviteGame(rest)
		case "play":
			r.playGame(rest)
		case "decline":
			r.declineGame(rest)
		case "move":
			r.moveGame(rest)
		case "games":
			r.listGames()
		case "group":
			r.groupCmd(rest)
		case "groups":
			r.listGroups()
		default:
			fmt.Fprintf(r.out, "unknown command %q, try \"help\"\n", cmd)
		}
	}
}

func (r *repl) help() {
	fmt.Fprint(r.out, `commands:
  whoami                               show your identity and profile
  profile <name> [status...]           change display name and status
  verbose                              toggle debug logging
  peers [all]                          list active (or all known) peers
  post <text...>                       publish a post
  feed [following]                     list posts, numbered
  like <n> | unlike <n>                react to post n from the last feed
  follow <identity> | unfollow <identity>
  contacts                             who you follow and who follows you
  dm <identity> <text...>              send a direct message
  chats                                conversation summary
  history <identity>                   direct message history
  offer <identity> <path> [desc...]    offer a file
  offers                               incoming offers awaiting a decision
  accept <fileID> | reject <fileID>    decide on an incoming offer
  transfers                            transfer progress, both directions
  invite <identity> [X|O]              invite to tic-tac-toe
  play <gameID> <0-8>                  join an invited game with a first move
  decline <gameID>                     turn an invitation down
  move <gameID> <0-8>                  make a move
  games                                boards and pending invitations
  group create <id> <name> [a,b,c]     create a group
  group add <id> <a,b,c>               add members
  group remove <id> <a,b,c>            remove members
  group send <id> <text...>            message a group
  group history <id>                   group chat history
  groups                               groups you know about
  quit
`)
}

func (r *repl) whoami() {
	name, status := r.node.Presence().Profile()
	fmt.Fprintf(r.out, "identity:     %s\n", r.node.SelfID())
	fmt.Fprintf(r.out, "display name: %s\n", name)
	fmt.Fprintf(r.out, "status:       %s\n", status)
	fmt.Fprintf(r.out, "listening:    %v\n", r.node.Addr())
}

func (r *repl) profile(args []string) {
	if len(args) == 0 {
		r.whoami()
		return
	}
	name := args[0]
	status := strings.Join(args[1:], " ")
	r.node.SetProfile(name, status)
	fmt.Fprintf(r.out, "profile updated\n")
}

func (r *repl) toggleVerbose() {
	r.verbose = !r.verbose
	applyLogLevel(r.verbose)
	if r.verbose {
		fmt.Fprintln(r.out, "verbose on")
	} else {
		fmt.Fprintln(r.out, "verbose off")
	}
}

func (r *repl) peers(args []string) {
	var list []peer.Peer
	if len(args) > 0 && args[0] == "all" {
		list = r.node.Peers().All()
	} else {
		list = r.node.Peers().Active(r.node.SelfID())
	}
	if len(list) == 0 {
		fmt.Fprintln(r.out, "nobody around")
		return
	}
	for _, p := range list {
		line := fmt.Sprintf("%s  %s", p.Identity, p.Name())
		if p.Status != "" {
			line += "  (" + p.Status + ")"
		}
		fmt.Fprintln(r.out, line)
	}
}

func (r *repl) post(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(r.out, "usage: post <text...>")
		return
	}
	if _, err := r.node.Messaging().Publish(strings.Join(args, " ")); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "posted")
}

func (r *repl) showFeed(args []string) {
	onlyFollowed := len(args) > 0 && args[0] == "following"
	r.feed = r.node.Messaging().Feed(onlyFollowed)
	if len(r.feed) == 0 {
		fmt.Fprintln(r.out, "feed is empty")
		return
	}
	for i, post := range r.feed {
		likes := ""
		if n := len(post.Likes); n > 0 {
			likes = fmt.Sprintf("  [%d likes]", n)
		}
		fmt.Fprintf(r.out, "%2d. %s %s: %s%s\n",
			i+1, fmtTime(post.Timestamp), post.DisplayName, post.Content, likes)
	}
}

func (r *repl) react(args []string, like bool) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: like <n> (run \"feed\" first)")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(r.feed) {
		fmt.Fprintf(r.out, "no post %q in the last feed listing\n", args[0])
		return
	}
	post := r.feed[n-1]
	if like {
		err = r.node.Messaging().Like(post.Author, post.Timestamp)
	} else {
		err = r.node.Messaging().Unlike(post.Author, post.Timestamp)
	}
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "done")
}

func (r *repl) follow(args []string, follow bool) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: follow <identity>")
		return
	}
	var err error
	if follow {
		err = r.node.Messaging().Follow(args[0])
	} else {
		err = r.node.Messaging().Unfollow(args[0])
	}
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "done")
}

func (r *repl) contacts() {
	fmt.Fprintf(r.out, "following: %s\n", joinOrNone(r.node.Messaging().Following()))
	fmt.Fprintf(r.out, "followers: %s\n", joinOrNone(r.node.Messaging().Followers()))
}

func (r *repl) dm(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(r.out, "usage: dm <identity> <text...>")
		return
	}
	to, content := args[0], strings.Join(args[1:], " ")
	if _, err := r.node.Messaging().SendDM(context.Background(), to, content); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "delivered")
}

func (r *repl) chats() {
	counts := r.node.Messaging().Conversations()
	if len(counts) == 0 {
		fmt.Fprintln(r.out, "no conversations yet")
		return
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(r.out, "%s  (%d messages)\n", id, counts[id])
	}
}

func (r *repl) history(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: history <identity>")
		return
	}
	msgs := r.node.Messaging().History(args[0])
	if len(msgs) == 0 {
		fmt.Fprintln(r.out, "no messages")
		return
	}
	for _, msg := range msgs {
		fmt.Fprintf(r.out, "%s %s: %s\n", fmtTime(msg.Timestamp), msg.DisplayName, msg.Content)
	}
}

func (r *repl) offerFile(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(r.out, "usage: offer <identity> <path> [description...]")
		return
	}
	recipient, path := args[0], args[1]
	description := strings.Join(args[2:], " ")
	fileID, err := r.node.Files().Offer(context.Background(), recipient, path, description)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "offered as %s, waiting for %s to accept\n", fileID, recipient)
}

func (r *repl) listOffers() {
	offers := r.node.Files().PendingOffers()
	if len(offers) == 0 {
		fmt.Fprintln(r.out, "no pending offers")
		return
	}
	for _, offer := range offers {
		fmt.Fprintf(r.out, "%s  %q from %s, %d bytes  %s\n",
			offer.FileID, offer.Filename, offer.From, offer.Size, offer.Description)
	}
}

func (r *repl) acceptFile(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: accept <fileID>")
		return
	}
	if err := r.node.Files().Accept(context.Background(), args[0]); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "accepted, receiving")
}

func (r *repl) rejectFile(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: reject <fileID>")
		return
	}
	if err := r.node.Files().Reject(context.Background(), args[0]); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "rejected")
}

func (r *repl) transfers() {
	outgoing := r.node.Files().OutgoingStates()
	collecting := r.node.Files().Collecting()
	if len(outgoing) == 0 && len(collecting) == 0 {
		fmt.Fprintln(r.out, "no transfers in flight")
		return
	}
	ids := make([]string, 0, len(outgoing))
	for id := range outgoing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(r.out, "out %s  %s\n", id, outgoing[id])
	}
	for _, status := range collecting {
		fmt.Fprintf(r.out, "in  %s  %q from %s, %d/%d chunks\n",
			status.FileID, status.Filename, status.From, status.Received, status.TotalChunks)
	}
}

func (r *repl) inviteGame(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(r.out, "usage: invite <identity> [X|O]")
		return
	}
	symbol := game.SymbolX
	if len(args) > 1 {
		parsed, err := game.ParseSymbol(strings.ToUpper(args[1]))
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return
		}
		symbol = parsed
	}
	gameID, err := r.node.Games().Invite(context.Background(), args[0], symbol)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "invited %s to game %s, you play %s\n", args[0], gameID, symbol)
}

func (r *repl) playGame(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(r.out, "usage: play <gameID> <0-8>")
		return
	}
	position, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(r.out, "not a board position: %q\n", args[1])
		return
	}
	if err := r.node.Games().Accept(context.Background(), args[0], position); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	r.printBoard(args[0])
}

func (r *repl) declineGame(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: decline <gameID>")
		return
	}
	if err := r.node.Games().Reject(context.Background(), args[0]); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "declined")
}

func (r *repl) moveGame(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(r.out, "usage: move <gameID> <0-8>")
		return
	}
	position, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(r.out, "not a board position: %q\n", args[1])
		return
	}
	if err := r.node.Games().Move(context.Background(), args[0], position); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	r.printBoard(args[0])
}

func (r *repl) printBoard(gameID string) {
	if session, ok := r.node.Games().Game(gameID); ok {
		fmt.Fprint(r.out, session.Render())
	}
}

func (r *repl) listGames() {
	invites := r.node.Games().Invites()
	for _, invite := range invites {
		fmt.Fprintf(r.out, "invite %s from %s, they play %s\n",
			invite.GameID, invite.From, invite.Symbol)
	}
	sessions := r.node.Games().Games()
	if len(invites) == 0 && len(sessions) == 0 {
		fmt.Fprintln(r.out, "no games")
		return
	}
	for _, session := range sessions {
		fmt.Fprintf(r.out, "game %s (%s, %s to move)\n%s",
			session.ID, session.Phase, session.Next, session.Render())
	}
}

func (r *repl) groupCmd(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(r.out, "usage: group create|add|remove|send|history ...")
		return
	}
	sub, id := strings.ToLower(args[0]), args[1]
	rest := args[2:]
	ctx := context.Background()

	switch sub {
	case "create":
		if len(rest) < 1 {
			fmt.Fprintln(r.out, "usage: group create <id> <name> [a,b,c]")
			return
		}
		var members []string
		if len(rest) > 1 {
			members = splitMembers(rest[len(rest)-1])
			rest = rest[:len(rest)-1]
		}
		name := strings.Join(rest, " ")
		g, err := r.node.Groups().Create(ctx, id, name, members)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(r.out, "created %q with %s\n", g.Name, strings.Join(g.Members, ", "))
	case "add", "remove":
		if len(rest) != 1 {
			fmt.Fprintf(r.out, "usage: group %s <id> <a,b,c>\n", sub)
			return
		}
		var add, remove []string
		if sub == "add" {
			add = splitMembers(rest[0])
		} else {
			remove = splitMembers(rest[0])
		}
		g, err := r.node.Groups().Update(ctx, id, add, remove)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(r.out, "members now: %s\n", strings.Join(g.Members, ", "))
	case "send":
		if len(rest) == 0 {
			fmt.Fprintln(r.out, "usage: group send <id> <text...>")
			return
		}
		if _, err := r.node.Groups().Send(ctx, id, strings.Join(rest, " ")); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return
		}
		fmt.Fprintln(r.out, "sent")
	case "history":
		for _, msg := range r.node.Groups().Messages(id) {
			fmt.Fprintf(r.out, "%s %s: %s\n", fmtTime(msg.Timestamp), msg.DisplayName, msg.Content)
		}
	default:
		fmt.Fprintf(r.out, "unknown group command %q\n", sub)
	}
}

func (r *repl) listGroups() {
	groups := r.node.Groups().Groups()
	if len(groups) == 0 {
		fmt.Fprintln(r.out, "no groups")
		return
	}
	for _, g := range groups {
		fmt.Fprintf(r.out, "%s  %q by %s: %s\n", g.ID, g.Name, g.Creator, strings.Join(g.Members, ", "))
	}
}

func splitMembers(raw string) []string {
	parts := strings.Split(raw, ",")
	members := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			members = append(members, trimmed)
		}
	}
	return members
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}

func fmtTime(ts int64) string {
	return time.Unix(ts, 0).Format("15:04")
}
