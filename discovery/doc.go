// Package discovery keeps peers finding each other on the local network.
//
// # Overview
//
// Two mechanisms run side by side. The Beacon broadcasts PING and PROFILE
// on the presence interval and records incoming beacons in the peer
// directory. MDNS additionally registers the node as an mDNS service and
// browses for other instances, which helps on networks that filter
// directed UDP broadcasts.
//
// # Usage
//
//	beacon := discovery.NewBeacon(discovery.Config{
//	    SelfID:      "alice@192.168.1.10",
//	    DisplayName: "Alice",
//	    Peers:       peers,
//	    Transport:   udp,
//	})
//	beacon.OnPeer(func(identity string) {
//	    fmt.Println("found", identity)
//	})
//	beacon.Start()
//	defer beacon.Stop()
//
// The beacon's handlers are registered on the router for PING and PROFILE;
// every other message type refreshes last-seen as a side effect of the
// receive pipeline.
package discovery
