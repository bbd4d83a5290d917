package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/auth"
	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/peer"
	"github.com/lsnp-net/lsnp/reliable"
	"github.com/lsnp-net/lsnp/wire"
)

// ErrUnknownInvite indicates an accept or reject for a game with no pending
// invitation.
var ErrUnknownInvite = errors.New("no pending invite for game")

// Invite is a received invitation awaiting a local accept or reject.
type Invite struct {
	From      string
	GameID    string
	Symbol    Symbol // the inviter's symbol; we play the other one
	Timestamp int64
}

// Outcome describes how a session ended. Symbol is the winner for a win,
// the forfeiting side for a forfeit, and SymbolNone for a draw.
type Outcome struct {
	GameID      string
	Result      string
	Symbol      Symbol
	WinningLine []int
}

// InviteCallback observes received invitations.
type InviteCallback func(invite Invite)

// MoveCallback observes applied remote moves with the board state after
// application.
type MoveCallback func(session Session, mover string)

// FinishedCallback observes terminal outcomes, local or remote.
type FinishedCallback func(session Session, outcome Outcome)

// Config carries the manager's collaborators.
type Config struct {
	SelfID    string
	Port      int
	Authority *auth.Authority
	Peers     *peer.Directory
	Sender    *reliable.Sender
}

// Manager owns every tic-tac-toe session and pending invitation at this
// peer. All board mutation goes through it; sessions handed out are
// detached copies.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*Session
	invites  map[string]Invite

	onInvite   InviteCallback
	onMove     MoveCallback
	onFinished FinishedCallback
}

// NewManager creates a game manager.
func NewManager(cfg Config) *Manager {
	logrus.WithFields(logrus.Fields{
		"function": "NewManager",
		"self_id":  cfg.SelfID,
	}).Debug("Creating game manager")
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		invites:  make(map[string]Invite),
	}
}

// OnInvite sets the callback for received invitations.
func (m *Manager) OnInvite(cb InviteCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInvite = cb
}

// OnMove sets the callback for applied remote moves.
func (m *Manager) OnMove(cb MoveCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMove = cb
}

// OnFinished sets the callback for terminal outcomes.
func (m *Manager) OnFinished(cb FinishedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinished = cb
}

// newGameID generates a short session identifier.
func newGameID() string {
	return fmt.Sprintf("g%d", rand.Intn(256))
}

// Invite starts a new session against opponent with the chosen symbol and
// sends the invitation. The local session is kept even when the invite is
// not acknowledged, so it can be re-issued. X moves first regardless of who
// invited.
func (m *Manager) Invite(ctx context.Context, opponent string, symbol Symbol) (string, error) {
	if symbol != SymbolX && symbol != SymbolO {
		return "", fmt.Errorf("invalid symbol %q", symbol)
	}

	m.mu.Lock()
	gameID := newGameID()
	for {
		if _, exists := m.sessions[gameID]; !exists {
			break
		}
		gameID = newGameID()
	}
	playerX, playerO := m.cfg.SelfID, opponent
	if symbol == SymbolO {
		playerX, playerO = opponent, m.cfg.SelfID
	}
	m.sessions[gameID] = newSession(gameID, playerX, playerO)
	m.mu.Unlock()

	invite := &wire.GameInvite{
		From:      m.cfg.SelfID,
		To:        opponent,
		GameID:    gameID,
		Symbol:    string(symbol),
		Timestamp: time.Now().Unix(),
		MessageID: wire.NewMessageID(),
		Token:     m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeGame, limits.DefaultTokenTTL),
	}

	logrus.WithFields(logrus.Fields{
		"function": "Invite",
		"game_id":  gameID,
		"opponent": opponent,
		"symbol":   string(symbol),
	}).Info("Sending game invite")

	addr, err := m.cfg.Peers.ResolveAddr(opponent, m.cfg.Port)
	if err != nil {
		return gameID, err
	}
	if err := m.cfg.Sender.SendReliable(ctx, invite.Encode(), addr, invite.MessageID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Invite",
			"game_id":  gameID,
			"opponent": opponent,
		}).Warn("Game invite not acknowledged")
		return gameID, err
	}
	return gameID, nil
}

// Accept answers a pending invitation by making our first move; there is no
// separate acceptance message. The invitation is consumed only once the
// move actually applies, so an accept that is not yet our turn can be
// retried after the inviter's opening move arrives.
func (m *Manager) Accept(ctx context.Context, gameID string, position int) error {
	m.mu.Lock()
	invite, ok := m.invites[gameID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownInvite
	}
	if _, exists := m.sessions[gameID]; !exists {
		playerX, playerO := invite.From, m.cfg.SelfID
		if invite.Symbol == SymbolO {
			playerX, playerO = m.cfg.SelfID, invite.From
		}
		m.sessions[gameID] = newSession(gameID, playerX, playerO)
	}
	m.mu.Unlock()

	send, err := m.applyLocalMove(gameID, position)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.invites, gameID)
	m.mu.Unlock()

	return m.dispatch(ctx, send)
}

// Reject declines a pending invitation with a forfeit result. The
// invitation is kept when the forfeit is not acknowledged, so rejecting can
// be retried.
func (m *Manager) Reject(ctx context.Context, gameID string) error {
	m.mu.Lock()
	invite, ok := m.invites[gameID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownInvite
	}
	m.mu.Unlock()

	result := &wire.GameResult{
		From:      m.cfg.SelfID,
		To:        invite.From,
		GameID:    gameID,
		Result:    wire.ResultForfeit,
		Symbol:    string(invite.Symbol.Other()),
		Timestamp: time.Now().Unix(),
		MessageID: wire.NewMessageID(),
		Token:     m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeGame, limits.DefaultTokenTTL),
	}

	addr, err := m.cfg.Peers.ResolveAddr(invite.From, m.cfg.Port)
	if err != nil {
		return err
	}
	if err := m.cfg.Sender.SendReliable(ctx, result.Encode(), addr, result.MessageID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.invites, gameID)
	delete(m.sessions, gameID)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Reject",
		"game_id":  gameID,
		"inviter":  invite.From,
	}).Info("Game invite rejected")
	return nil
}

// Move applies our move locally and sends it. The local application is
// optimistic: an unacknowledged move stays on the board and the failure is
// returned to the caller instead of rolling back.
func (m *Manager) Move(ctx context.Context, gameID string, position int) error {
	send, err := m.applyLocalMove(gameID, position)
	if err != nil {
		return err
	}
	return m.dispatch(ctx, send)
}

// Game returns a copy of one session.
func (m *Manager) Game(gameID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[gameID]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Games returns copies of all live sessions, ordered by id.
func (m *Manager) Games() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Invites returns all pending invitations, ordered by game id.
func (m *Manager) Invites() []Invite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Invite, 0, len(m.invites))
	for _, inv := range m.invites {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}

// pendingSend is a locally applied move ready to go on the wire, built
// under the lock so the sends can happen outside it.
type pendingSend struct {
	opponent string
	move     *wire.GameMove
	result   *wire.GameResult
	final    Session
	outcome  *Outcome
}

// applyLocalMove validates and applies our own move, tearing the session
// down when the move is terminal. It returns the frames to send.
func (m *Manager) applyLocalMove(gameID string, position int) (*pendingSend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[gameID]
	if !ok {
		return nil, ErrUnknownGame
	}
	symbol, ok := s.PlayerSymbol(m.cfg.SelfID)
	if !ok {
		return nil, ErrNotPlayer
	}
	opponent, ok := s.Opponent(m.cfg.SelfID)
	if !ok {
		return nil, ErrNotPlayer
	}

	turn := s.Turn
	if err := s.applyMove(position, symbol, turn); err != nil {
		return nil, err
	}

	token := m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeGame, limits.DefaultTokenTTL)
	send := &pendingSend{
		opponent: opponent,
		move: &wire.GameMove{
			From:      m.cfg.SelfID,
			To:        opponent,
			GameID:    gameID,
			Position:  position,
			Symbol:    string(symbol),
			Turn:      turn,
			MessageID: wire.NewMessageID(),
			Token:     token,
		},
	}

	winner, line, won := s.Winner()
	draw := s.Draw()
	if won || draw {
		s.Phase = PhaseFinished
		verdict := wire.ResultDraw
		outcome := &Outcome{GameID: gameID, Result: wire.ResultDraw}
		lineField := ""
		if won {
			verdict = wire.ResultWin
			lineField = formatLine(line)
			outcome = &Outcome{GameID: gameID, Result: wire.ResultWin, Symbol: winner, WinningLine: line[:]}
		}
		send.result = &wire.GameResult{
			From:        m.cfg.SelfID,
			To:          opponent,
			GameID:      gameID,
			Result:      verdict,
			Symbol:      string(symbol),
			WinningLine: lineField,
			Timestamp:   time.Now().Unix(),
			MessageID:   wire.NewMessageID(),
			Token:       token,
		}
		send.outcome = outcome
		delete(m.sessions, gameID)
	}
	send.final = s.snapshot()
	return send, nil
}

// dispatch sends an applied move and, for terminal moves, the result
// announcement. The finished callback fires once the announcement is on its
// way; the receiving side verifies the same outcome from its own board and
// never re-announces.
func (m *Manager) dispatch(ctx context.Context, send *pendingSend) error {
	if send.outcome != nil {
		defer m.notifyFinished(send.final, *send.outcome)
	}

	addr, err := m.cfg.Peers.ResolveAddr(send.opponent, m.cfg.Port)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", send.opponent, err)
	}

	sendErr := m.cfg.Sender.SendReliable(ctx, send.move.Encode(), addr, send.move.MessageID)
	if sendErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"game_id":  send.move.GameID,
			"position": send.move.Position,
		}).Warn("Move not acknowledged")
	}

	if send.result != nil {
		if err := m.cfg.Sender.SendReliable(ctx, send.result.Encode(), addr, send.result.MessageID); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"game_id":  send.result.GameID,
				"result":   send.result.Result,
			}).Warn("Result not acknowledged")
			if sendErr == nil {
				sendErr = err
			}
		}
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"game_id":  send.result.GameID,
			"result":   send.result.Result,
		}).Info("Game finished")
	}
	return sendErr
}

// notifyFinished invokes the finished callback, if set.
func (m *Manager) notifyFinished(final Session, outcome Outcome) {
	m.mu.Lock()
	cb := m.onFinished
	m.mu.Unlock()
	if cb != nil {
		cb(final, outcome)
	}
}

// HandleInvite processes a received TICTACTOE_INVITE: it records the
// pending invitation and sets up the session shell so the inviter's opening
// move has somewhere to land.
func (m *Manager) HandleInvite(msg wire.Message, src *net.UDPAddr) error {
	invite, ok := msg.(*wire.GameInvite)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}
	symbol, err := ParseSymbol(invite.Symbol)
	if err != nil {
		return err
	}

	received := Invite{
		From:      invite.From,
		GameID:    invite.GameID,
		Symbol:    symbol,
		Timestamp: invite.Timestamp,
	}

	m.mu.Lock()
	m.invites[invite.GameID] = received
	if _, exists := m.sessions[invite.GameID]; !exists {
		playerX, playerO := invite.From, m.cfg.SelfID
		if symbol == SymbolO {
			playerX, playerO = m.cfg.SelfID, invite.From
		}
		m.sessions[invite.GameID] = newSession(invite.GameID, playerX, playerO)
	}
	cb := m.onInvite
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "HandleInvite",
		"game_id":  invite.GameID,
		"from":     invite.From,
		"symbol":   invite.Symbol,
	}).Info("Game invite received")

	if cb != nil {
		cb(received)
	}
	return nil
}

// HandleMove processes a received TICTACTOE_MOVE. Illegal and replayed
// moves are dropped here; the substrate has already acknowledged them, so
// the sender stops retrying without the move taking effect.
func (m *Manager) HandleMove(msg wire.Message, src *net.UDPAddr) error {
	move, ok := msg.(*wire.GameMove)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}
	symbol, err := ParseSymbol(move.Symbol)
	if err != nil {
		return err
	}

	m.mu.Lock()
	s, exists := m.sessions[move.GameID]
	if !exists {
		m.mu.Unlock()
		return ErrUnknownGame
	}
	if s.Players[symbol] != move.From {
		m.mu.Unlock()
		return ErrNotPlayer
	}
	if err := s.applyMove(move.Position, symbol, move.Turn); err != nil {
		m.mu.Unlock()
		return err
	}

	var outcome *Outcome
	winner, line, won := s.Winner()
	if won || s.Draw() {
		s.Phase = PhaseFinished
		if won {
			outcome = &Outcome{GameID: move.GameID, Result: wire.ResultWin, Symbol: winner, WinningLine: line[:]}
		} else {
			outcome = &Outcome{GameID: move.GameID, Result: wire.ResultDraw}
		}
	}
	snap := s.snapshot()
	if outcome != nil {
		delete(m.sessions, move.GameID)
		delete(m.invites, move.GameID)
	}
	onMove := m.onMove
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "HandleMove",
		"game_id":  move.GameID,
		"from":     move.From,
		"position": move.Position,
		"turn":     move.Turn,
	}).Debug("Move applied")

	if onMove != nil {
		onMove(snap, move.From)
	}
	if outcome != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleMove",
			"game_id":  move.GameID,
			"result":   outcome.Result,
		}).Info("Game finished")
		m.notifyFinished(snap, *outcome)
	}
	return nil
}

// HandleResult processes a received TICTACTOE_RESULT. When the terminal
// move already tore the session down locally, the announcement arrives for
// an unknown game and is ignored.
func (m *Manager) HandleResult(msg wire.Message, src *net.UDPAddr) error {
	result, ok := msg.(*wire.GameResult)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}

	m.mu.Lock()
	s, exists := m.sessions[result.GameID]
	delete(m.invites, result.GameID)
	if !exists {
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "HandleResult",
			"game_id":  result.GameID,
			"result":   result.Result,
		}).Debug("Result for game already finished locally")
		return nil
	}
	s.Phase = PhaseFinished
	snap := s.snapshot()
	delete(m.sessions, result.GameID)
	m.mu.Unlock()

	outcome := Outcome{
		GameID:      result.GameID,
		Result:      result.Result,
		WinningLine: parseLine(result.WinningLine),
	}
	if result.Result != wire.ResultDraw {
		if symbol, err := ParseSymbol(result.Symbol); err == nil {
			outcome.Symbol = symbol
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "HandleResult",
		"game_id":  result.GameID,
		"from":     result.From,
		"result":   result.Result,
	}).Info("Game result received")

	m.notifyFinished(snap, outcome)
	return nil
}

// parseLine parses a WINNING_LINE value such as "1,4,7". Anything that does
// not parse cleanly yields nil.
func parseLine(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	line := make([]int, 0, len(parts))
	for _, part := range parts {
		cell, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		line = append(line, cell)
	}
	return line
}
