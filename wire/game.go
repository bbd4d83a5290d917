package wire

// Game result verdicts carried in the RESULT field.
const (
	ResultWin     = "WIN"
	ResultLoss    = "LOSS"
	ResultDraw    = "DRAW"
	ResultForfeit = "FORFEIT"
)

// GameInvite opens a tic-tac-toe session. SYMBOL is the symbol the inviter
// will play; the invitee takes the other one.
type GameInvite struct {
	From      string
	To        string
	GameID    string
	Symbol    string
	Timestamp int64
	MessageID string
	Token     string
}

func (m *GameInvite) Type() MessageType { return TypeGameInvite }

func (m *GameInvite) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeGameInvite)},
		{KeyFrom, m.From},
		{KeyTo, m.To},
		{"GAMEID", m.GameID},
		{KeyMessageID, m.MessageID},
		{"SYMBOL", m.Symbol},
		{KeyTimestamp, formatInt64(m.Timestamp)},
		{KeyToken, m.Token},
	})
}

func decodeGameInvite(f Fields) (*GameInvite, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	gameID, err := f.require("GAMEID")
	if err != nil {
		return nil, err
	}
	symbol, err := f.require("SYMBOL")
	if err != nil {
		return nil, err
	}
	messageID, err := f.require(KeyMessageID)
	if err != nil {
		return nil, err
	}
	token, err := f.require(KeyToken)
	if err != nil {
		return nil, err
	}
	return &GameInvite{
		From:      from,
		To:        to,
		GameID:    gameID,
		Symbol:    symbol,
		Timestamp: f.optionalInt64(KeyTimestamp),
		MessageID: messageID,
		Token:     token,
	}, nil
}

// GameMove places one symbol. TURN is the mover's move counter and doubles
// as the idempotency key for duplicate suppression inside a session.
type GameMove struct {
	From      string
	To        string
	GameID    string
	Position  int
	Symbol    string
	Turn      int
	MessageID string
	Token     string
}

func (m *GameMove) Type() MessageType { return TypeGameMove }

func (m *GameMove) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeGameMove)},
		{KeyFrom, m.From},
		{KeyTo, m.To},
		{"GAMEID", m.GameID},
		{KeyMessageID, m.MessageID},
		{"POSITION", formatInt(m.Position)},
		{"SYMBOL", m.Symbol},
		{"TURN", formatInt(m.Turn)},
		{KeyToken, m.Token},
	})
}

func decodeGameMove(f Fields) (*GameMove, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	gameID, err := f.require("GAMEID")
	if err != nil {
		return nil, err
	}
	position, err := f.requireInt("POSITION")
	if err != nil {
		return nil, err
	}
	symbol, err := f.require("SYMBOL")
	if err != nil {
		return nil, err
	}
	turn, err := f.requireInt("TURN")
	if err != nil {
		return nil, err
	}
	messageID, err := f.require(KeyMessageID)
	if err != nil {
		return nil, err
	}
	token, err := f.require(KeyToken)
	if err != nil {
		return nil, err
	}
	return &GameMove{
		From:      from,
		To:        to,
		GameID:    gameID,
		Position:  position,
		Symbol:    symbol,
		Turn:      turn,
		MessageID: messageID,
		Token:     token,
	}, nil
}

// GameResult announces the outcome from the winner's (or forfeiter's) side.
// WINNING_LINE lists the three winning cell indices and is empty for draws
// and forfeits.
type GameResult struct {
	From        string
	To          string
	GameID      string
	Result      string
	Symbol      string
	WinningLine string
	Timestamp   int64
	MessageID   string
	Token       string
}

func (m *GameResult) Type() MessageType { return TypeGameResult }

func (m *GameResult) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeGameResult)},
		{KeyFrom, m.From},
		{KeyTo, m.To},
		{"GAMEID", m.GameID},
		{KeyMessageID, m.MessageID},
		{"RESULT", m.Result},
		{"SYMBOL", m.Symbol},
		{"WINNING_LINE", m.WinningLine},
		{KeyTimestamp, formatInt64(m.Timestamp)},
		{KeyToken, m.Token},
	})
}

func decodeGameResult(f Fields) (*GameResult, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	gameID, err := f.require("GAMEID")
	if err != nil {
		return nil, err
	}
	result, err := f.require("RESULT")
	if err != nil {
		return nil, err
	}
	symbol, err := f.require("SYMBOL")
	if err != nil {
		return nil, err
	}
	messageID, err := f.require(KeyMessageID)
	if err != nil {
		return nil, err
	}
	token, err := f.require(KeyToken)
	if err != nil {
		return nil, err
	}
	return &GameResult{
		From:        from,
		To:          to,
		GameID:      gameID,
		Result:      result,
		Symbol:      symbol,
		WinningLine: f["WINNING_LINE"],
		Timestamp:   f.optionalInt64(KeyTimestamp),
		MessageID:   messageID,
		Token:       token,
	}, nil
}
