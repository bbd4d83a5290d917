// Package messaging implements the social layer: broadcast posts with
// likes, follow relationships, and reliable direct messages.
//
// # Overview
//
// Posts are broadcast datagrams carrying a validity window (TTL). Every
// peer keeps its own feed of received posts; expired entries are filtered
// from listings rather than deleted. Reactions address a post by its
// author and publication timestamp and travel unicast to the author.
// Follow and unfollow notices are unicast and maintain both directions of
// the relationship: who we follow, and who follows us. Direct messages
// ride the acknowledged-send machinery and accumulate into per-
// correspondent history.
//
//	mgr := messaging.NewManager(messaging.Config{
//		SelfID:      "alice@192.168.1.10",
//		DisplayName: "Alice",
//		Port:        50999,
//		Authority:   authority,
//		Peers:       peers,
//		Sender:      sender,
//		Transport:   udp,
//	})
//
//	mgr.Publish("Hello LAN!")
//	mgr.Follow("bob@192.168.1.11")
//	mgr.SendDM(ctx, "bob@192.168.1.11", "lunch?")
//
// Feed(true) restricts the listing to followed authors plus our own
// posts; Feed(false) returns everything still inside its window.
package messaging
