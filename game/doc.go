// Package game implements tic-tac-toe sessions played over LSNP,
// covering invitations, turn-ordered move exchange, and result
// announcement.
//
// # Overview
//
// The game package provides two components:
//
//   - Session: one match's replicated board state with turn and
//     idempotency enforcement
//   - Manager: owns all sessions and invitations, sends moves over the
//     reliable substrate, and consumes the routed game messages
//
// # Playing
//
// Invite a peer, choosing a symbol; X always moves first:
//
//	gameID, err := mgr.Invite(ctx, "bob@192.168.1.7", game.SymbolX)
//	if err != nil {
//	    fmt.Println("invite not acknowledged")
//	}
//	err = mgr.Move(ctx, gameID, 4)
//
// The invitee answers with a move rather than a separate acceptance:
//
//	mgr.OnInvite(func(inv game.Invite) {
//	    fmt.Printf("%s invites you (game %s)\n", inv.From, inv.GameID)
//	})
//	err := mgr.Accept(ctx, gameID, 0) // our first move
//	err = mgr.Reject(ctx, gameID)     // or forfeit instead
//
// # Turn Enforcement
//
// A move applies only when its symbol holds the turn, its turn number is
// exactly the next expected one, and the target cell is free. Replayed
// turn numbers are dropped. Both boards evolve deterministically from the
// same applied moves, so the side that makes the final move announces the
// outcome and the other side verifies it locally.
//
// # Outcomes
//
//	mgr.OnFinished(func(s game.Session, o game.Outcome) {
//	    fmt.Println(s.Render())
//	    fmt.Printf("game %s: %s\n", o.GameID, o.Result)
//	})
//
// Moves that exhaust their acknowledgment budget stay applied locally and
// the failure is reported to the caller.
package game
