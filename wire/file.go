package wire

// FileOffer proposes a transfer. TOTAL_CHUNKS and CHUNK_SIZE fix the
// chunking arithmetic up front so both sides agree on completion.
type FileOffer struct {
	From        string
	To          string
	Filename    string
	Filesize    int64
	Filetype    string
	FileID      string
	TotalChunks int
	ChunkSize   int
	Description string
	Timestamp   int64
	MessageID   string
	Token       string
}

func (m *FileOffer) Type() MessageType { return TypeFileOffer }

func (m *FileOffer) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeFileOffer)},
		{KeyFrom, m.From},
		{KeyTo, m.To},
		{"FILENAME", m.Filename},
		{"FILESIZE", formatInt64(m.Filesize)},
		{"FILETYPE", m.Filetype},
		{"FILEID", m.FileID},
		{"TOTAL_CHUNKS", formatInt(m.TotalChunks)},
		{"CHUNK_SIZE", formatInt(m.ChunkSize)},
		{"DESCRIPTION", m.Description},
		{KeyTimestamp, formatInt64(m.Timestamp)},
		{KeyMessageID, m.MessageID},
		{KeyToken, m.Token},
	})
}

func decodeFileOffer(f Fields) (*FileOffer, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	filename, err := f.require("FILENAME")
	if err != nil {
		return nil, err
	}
	filesize, err := f.requireInt64("FILESIZE")
	if err != nil {
		return nil, err
	}
	fileID, err := f.require("FILEID")
	if err != nil {
		return nil, err
	}
	totalChunks, err := f.requireInt("TOTAL_CHUNKS")
	if err != nil {
		return nil, err
	}
	chunkSize, err := f.requireInt("CHUNK_SIZE")
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
	return &FileOffer{
		From:        from,
		To:          to,
		Filename:    filename,
		Filesize:    filesize,
		Filetype:    f["FILETYPE"],
		FileID:      fileID,
		TotalChunks: totalChunks,
		ChunkSize:   chunkSize,
		Description: f["DESCRIPTION"],
		Timestamp:   f.optionalInt64(KeyTimestamp),
		MessageID:   messageID,
		Token:       token,
	}, nil
}

// FileAccept tells the offering side to start sending chunks.
type FileAccept struct {
	From      string
	To        string
	FileID    string
	Timestamp int64
	MessageID string
	Token     string
}

func (m *FileAccept) Type() MessageType { return TypeFileAccept }

func (m *FileAccept) Encode() []byte {
	return encodeFileResponseFrame(TypeFileAccept, m.From, m.To, m.FileID, m.Timestamp, m.MessageID, m.Token)
}

// FileReject declines an offer and discards the sender's transfer record.
type FileReject struct {
	From      string
	To        string
	FileID    string
	Timestamp int64
	MessageID string
	Token     string
}

func (m *FileReject) Type() MessageType { return TypeFileReject }

func (m *FileReject) Encode() []byte {
	return encodeFileResponseFrame(TypeFileReject, m.From, m.To, m.FileID, m.Timestamp, m.MessageID, m.Token)
}

func encodeFileResponseFrame(t MessageType, from, to, fileID string, ts int64, messageID, token string) []byte {
	return encodeFrame([]field{
		{KeyType, string(t)},
		{KeyFrom, from},
		{KeyTo, to},
		{"FILEID", fileID},
		{KeyTimestamp, formatInt64(ts)},
		{KeyMessageID, messageID},
		{KeyToken, token},
	})
}

func decodeFileResponse(f Fields) (Message, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	fileID, err := f.require("FILEID")
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
	ts := f.optionalInt64(KeyTimestamp)
	if f.Type() == TypeFileReject {
		return &FileReject{From: from, To: to, FileID: fileID, Timestamp: ts, MessageID: messageID, Token: token}, nil
	}
	return &FileAccept{From: from, To: to, FileID: fileID, Timestamp: ts, MessageID: messageID, Token: token}, nil
}

// FileChunk carries one base64-encoded slice of the file. CHUNK_SIZE is the
// raw byte count of this slice before encoding, which is smaller than the
// fixed chunking size only for the final chunk.
type FileChunk struct {
	From        string
	To          string
	FileID      string
	ChunkIndex  int
	TotalChunks int
	ChunkSize   int
	Data        string
	MessageID   string
	Token       string
}

func (m *FileChunk) Type() MessageType { return TypeFileChunk }

func (m *FileChunk) Encode() []byte {
	return encodeFrame([]field{
		{KeyType, string(TypeFileChunk)},
		{KeyFrom, m.From},
		{KeyTo, m.To},
		{"FILEID", m.FileID},
		{"CHUNK_INDEX", formatInt(m.ChunkIndex)},
		{"TOTAL_CHUNKS", formatInt(m.TotalChunks)},
		{"CHUNK_SIZE", formatInt(m.ChunkSize)},
		{"DATA", m.Data},
		{KeyMessageID, m.MessageID},
		{KeyToken, m.Token},
	})
}

func decodeFileChunk(f Fields) (*FileChunk, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	fileID, err := f.require("FILEID")
	if err != nil {
		return nil, err
	}
	chunkIndex, err := f.requireInt("CHUNK_INDEX")
	if err != nil {
		return nil, err
	}
	totalChunks, err := f.requireInt("TOTAL_CHUNKS")
	if err != nil {
		return nil, err
	}
	data, err := f.require("DATA")
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
	return &FileChunk{
		From:        from,
		To:          to,
		FileID:      fileID,
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		ChunkSize:   f.optionalInt("CHUNK_SIZE"),
		Data:        data,
		MessageID:   messageID,
		Token:       token,
	}, nil
}

// FileStatusComplete is the STATUS carried by FILE_RECEIVED.
const FileStatusComplete = "COMPLETE"

// FileReceived is the recipient's confirmation that assembly finished. It is
// informational, carries no token, and is not retried.
type FileReceived struct {
	From      string
	To        string
	FileID    string
	Status    string
	Timestamp int64
}

func (m *FileReceived) Type() MessageType { return TypeFileReceived }

func (m *FileReceived) Encode() []byte {
	status := m.Status
	if status == "" {
		status = FileStatusComplete
	}
	return encodeFrame([]field{
		{KeyType, string(TypeFileReceived)},
		{KeyFrom, m.From},
		{KeyTo, m.To},
		{"FILEID", m.FileID},
		{"STATUS", status},
		{KeyTimestamp, formatInt64(m.Timestamp)},
	})
}

func decodeFileReceived(f Fields) (*FileReceived, error) {
	from, err := f.require(KeyFrom)
	if err != nil {
		return nil, err
	}
	to, err := f.require(KeyTo)
	if err != nil {
		return nil, err
	}
	fileID, err := f.require("FILEID")
	if err != nil {
		return nil, err
	}
	return &FileReceived{
		From:      from,
		To:        to,
		FileID:    fileID,
		Status:    f["STATUS"],
		Timestamp: f.optionalInt64(KeyTimestamp),
	}, nil
}
