package group

import (
	"errors"
	"sort"
)

// ErrUnknownGroup indicates an operation on a group id this peer has never
// seen.
var ErrUnknownGroup = errors.New("unknown group")

// ErrNotMember indicates a sender or caller outside the group's membership.
var ErrNotMember = errors.New("not a group member")

// ErrInvalidGroup indicates a create call missing its id or name.
var ErrInvalidGroup = errors.New("group needs an id and a name")

// ErrEmptyContent indicates a group message with nothing to say.
var ErrEmptyContent = errors.New("empty content")

// Group is a snapshot of one group: its identity, creator, and sorted
// membership.
type Group struct {
	ID      string
	Name    string
	Creator string
	Members []string
	Created int64
}

// Has reports whether identity belongs to the group.
func (g Group) Has(identity string) bool {
	for _, member := range g.Members {
		if member == identity {
			return true
		}
	}
	return false
}

// Message is one entry in a group's chat history.
type Message struct {
	From        string
	GroupID     string
	DisplayName string
	Content     string
	Timestamp   int64
}

// groupEntry is the mutable record behind Group snapshots.
type groupEntry struct {
	id      string
	name    string
	creator string
	members map[string]struct{}
	created int64
}

func newGroupEntry(id, name, creator string, members []string, created int64) *groupEntry {
	entry := &groupEntry{
		id:      id,
		name:    name,
		creator: creator,
		members: make(map[string]struct{}, len(members)+1),
		created: created,
	}
	for _, member := range members {
		if member != "" {
			entry.members[member] = struct{}{}
		}
	}
	entry.members[creator] = struct{}{}
	return entry
}

func (e *groupEntry) has(identity string) bool {
	_, ok := e.members[identity]
	return ok
}

func (e *groupEntry) apply(add, remove []string) {
	for _, member := range add {
		if member != "" {
			e.members[member] = struct{}{}
		}
	}
	for _, member := range remove {
		delete(e.members, member)
	}
}

// others returns every member except the given identity, sorted.
func (e *groupEntry) others(identity string) []string {
	out := make([]string, 0, len(e.members))
	for member := range e.members {
		if member != identity {
			out = append(out, member)
		}
	}
	sort.Strings(out)
	return out
}

func (e *groupEntry) snapshot() Group {
	members := make([]string, 0, len(e.members))
	for member := range e.members {
		members = append(members, member)
	}
	sort.Strings(members)
	return Group{
		ID:      e.id,
		Name:    e.name,
		Creator: e.creator,
		Members: members,
		Created: e.created,
	}
}
