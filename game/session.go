package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownGame indicates a move or result referenced a game this peer is
// not tracking.
var ErrUnknownGame = errors.New("unknown game")

// ErrNotPlayer indicates the acting identity is not a participant, or the
// claimed symbol is not theirs.
var ErrNotPlayer = errors.New("not a player in this game")

// ErrNotYourTurn indicates a move by the symbol that does not hold the turn.
var ErrNotYourTurn = errors.New("not your turn")

// ErrOutOfTurn indicates a move whose turn number does not match the next
// expected turn.
var ErrOutOfTurn = errors.New("move out of turn order")

// ErrTurnReplayed indicates a move whose turn number was already applied.
var ErrTurnReplayed = errors.New("turn already applied")

// ErrInvalidPosition indicates a cell index outside the board.
var ErrInvalidPosition = errors.New("position outside board")

// ErrCellOccupied indicates a move onto a non-empty cell.
var ErrCellOccupied = errors.New("cell already occupied")

// ErrGameFinished indicates a move on a session that already reached a
// terminal state.
var ErrGameFinished = errors.New("game already finished")

// Symbol is one side of a tic-tac-toe session. The empty Symbol marks an
// empty board cell.
type Symbol string

const (
	SymbolX    Symbol = "X"
	SymbolO    Symbol = "O"
	SymbolNone Symbol = ""
)

// Other returns the opposing symbol.
func (s Symbol) Other() Symbol {
	if s == SymbolX {
		return SymbolO
	}
	return SymbolX
}

// ParseSymbol validates a wire SYMBOL value.
func ParseSymbol(raw string) (Symbol, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "X":
		return SymbolX, nil
	case "O":
		return SymbolO, nil
	}
	return SymbolNone, fmt.Errorf("invalid symbol %q", raw)
}

// Phase is the lifecycle stage of a session.
type Phase uint8

const (
	// PhasePending means the invite exists but no move has been applied.
	PhasePending Phase = iota
	// PhaseActive means at least one legal move has been applied.
	PhaseActive
	// PhaseFinished means the session reached a win, draw, or forfeit.
	PhaseFinished
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

// winLines enumerates the three-in-a-row cell index triples: rows, columns,
// then diagonals.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Session is one tic-tac-toe match as replicated at this peer. Both peers
// compute identically from the same applied moves, so the board never needs
// to travel on the wire. Not safe for concurrent use; the Manager guards
// all access.
type Session struct {
	ID      string
	Board   [9]Symbol
	Players map[Symbol]string
	Next    Symbol
	Turn    int
	Phase   Phase

	seenTurns map[int]struct{}
}

// newSession creates a session with the two players fixed. X always moves
// first and turn numbering starts at 1.
func newSession(id string, playerX, playerO string) *Session {
	return &Session{
		ID:        id,
		Players:   map[Symbol]string{SymbolX: playerX, SymbolO: playerO},
		Next:      SymbolX,
		Turn:      1,
		Phase:     PhasePending,
		seenTurns: make(map[int]struct{}),
	}
}

// PlayerSymbol returns the symbol assigned to identity.
func (s *Session) PlayerSymbol(identity string) (Symbol, bool) {
	for sym, id := range s.Players {
		if id == identity && sym != SymbolNone {
			return sym, true
		}
	}
	return SymbolNone, false
}

// Opponent returns the other participant's identity.
func (s *Session) Opponent(identity string) (string, bool) {
	for _, id := range s.Players {
		if id != identity && id != "" {
			return id, true
		}
	}
	return "", false
}

// applyMove validates and applies one move. On success the cell is marked,
// the turn number is recorded, the counter advances, and the turn passes to
// the other symbol. The checks are ordered so replays are distinguishable
// from rule violations.
func (s *Session) applyMove(position int, symbol Symbol, turn int) error {
	if s.Phase == PhaseFinished {
		return ErrGameFinished
	}
	if _, replayed := s.seenTurns[turn]; replayed {
		return ErrTurnReplayed
	}
	if s.Next != symbol {
		return ErrNotYourTurn
	}
	if turn != s.Turn {
		return ErrOutOfTurn
	}
	if position < 0 || position > 8 {
		return ErrInvalidPosition
	}
	if s.Board[position] != SymbolNone {
		return ErrCellOccupied
	}

	s.Board[position] = symbol
	s.seenTurns[turn] = struct{}{}
	s.Turn++
	s.Next = symbol.Other()
	s.Phase = PhaseActive
	return nil
}

// Winner reports the winning symbol and line, if any.
func (s *Session) Winner() (Symbol, [3]int, bool) {
	for _, line := range winLines {
		first := s.Board[line[0]]
		if first != SymbolNone && s.Board[line[1]] == first && s.Board[line[2]] == first {
			return first, line, true
		}
	}
	return SymbolNone, [3]int{}, false
}

// Draw reports whether the board is full with no winner.
func (s *Session) Draw() bool {
	for _, cell := range s.Board {
		if cell == SymbolNone {
			return false
		}
	}
	_, _, won := s.Winner()
	return !won
}

// snapshot returns a detached copy safe to hand to callers and callbacks.
func (s *Session) snapshot() Session {
	cp := *s
	cp.Players = make(map[Symbol]string, len(s.Players))
	for sym, id := range s.Players {
		cp.Players[sym] = id
	}
	cp.seenTurns = nil
	return cp
}

// Render draws the board for terminal display, cells numbered 0-8 left to
// right, top to bottom.
func (s *Session) Render() string {
	cell := func(i int) string {
		if s.Board[i] == SymbolNone {
			return " "
		}
		return string(s.Board[i])
	}
	var b strings.Builder
	for row := 0; row < 3; row++ {
		fmt.Fprintf(&b, " %s | %s | %s\n", cell(row*3), cell(row*3+1), cell(row*3+2))
		if row < 2 {
			b.WriteString("-----------\n")
		}
	}
	return b.String()
}

// formatLine renders a winning line as the wire WINNING_LINE value.
func formatLine(line [3]int) string {
	parts := make([]string, 3)
	for i, cell := range line {
		parts[i] = strconv.Itoa(cell)
	}
	return strings.Join(parts, ",")
}
