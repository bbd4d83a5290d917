// Package group implements named member groups with fan-out chat.
//
// # Overview
//
// A group is created by one peer and announced to every listed member as
// reliable unicasts; the creator is always part of the membership.
// Membership changes travel the same way to the post-change membership,
// so removed members simply stop hearing from the group. Chat messages
// fan out to every other member and accumulate into per-group history.
//
// Each recipient of a fan-out gets its own message id. Acknowledgement
// and duplicate suppression both key on the id, so sharing one across
// recipients would let a single member's ACK satisfy every delivery wait.
//
//	mgr := group.NewManager(group.Config{
//		SelfID:    "alice@192.168.1.10",
//		Port:      50999,
//		Authority: authority,
//		Peers:     peers,
//		Sender:    sender,
//	})
//	g, err := mgr.Create(ctx, "hiking", "Hiking Crew", []string{"bob@192.168.1.11"})
//	if err != nil {
//		log.Printf("some members unreachable: %v", err)
//	}
//	mgr.Send(ctx, g.ID, "trailhead at 8am")
//
// Messages for unknown groups, and messages from senders outside the
// membership, are dropped.
package group
