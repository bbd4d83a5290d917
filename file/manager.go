package file

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/auth"
	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/peer"
	"github.com/lsnp-net/lsnp/reliable"
	"github.com/lsnp-net/lsnp/transport"
	"github.com/lsnp-net/lsnp/wire"
)

// ErrChunkTooLarge indicates a chunk carrying more raw bytes than the
// protocol allows per message.
var ErrChunkTooLarge = errors.New("chunk exceeds maximum size")

// OfferCallback observes received file offers.
type OfferCallback func(offer IncomingOffer)

// ReceivedCallback observes completed incoming transfers with the path the
// assembled file was written to.
type ReceivedCallback func(fileID, path, from string)

// DeliveredCallback observes the recipient's completion message for a file
// we sent.
type DeliveredCallback func(fileID, status string)

// AbortedCallback observes outgoing transfers that ended without delivery.
type AbortedCallback func(fileID, reason string)

// IncomingStatus is a point-in-time view of one collecting transfer.
type IncomingStatus struct {
	FileID      string
	From        string
	Filename    string
	TotalChunks int
	Received    int
}

// Config carries the manager's collaborators.
type Config struct {
	SelfID string
	Port   int

	// DownloadDir is where assembled files land; "downloads" when empty.
	DownloadDir string

	Authority *auth.Authority
	Peers     *peer.Directory
	Sender    *reliable.Sender
	Transport transport.Transport
}

// Manager owns both directions of file transfer: offers we made and their
// chunk streams, and offers made to us with their collecting buffers.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	outgoing map[string]*OutgoingTransfer
	offers   map[string]IncomingOffer
	active   map[string]*IncomingTransfer

	onOffer     OfferCallback
	onReceived  ReceivedCallback
	onDelivered DeliveredCallback
	onAborted   AbortedCallback

	acceptTimeout   time.Duration
	sentTTL         time.Duration
	chunkRetryDelay time.Duration
	interChunkDelay time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewManager creates a file transfer manager.
func NewManager(cfg Config) *Manager {
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "downloads"
	}
	logrus.WithFields(logrus.Fields{
		"function":     "NewManager",
		"self_id":      cfg.SelfID,
		"download_dir": cfg.DownloadDir,
	}).Debug("Creating file transfer manager")

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:             cfg,
		outgoing:        make(map[string]*OutgoingTransfer),
		offers:          make(map[string]IncomingOffer),
		active:          make(map[string]*IncomingTransfer),
		acceptTimeout:   limits.OfferAcceptTimeout,
		sentTTL:         limits.SentTransferTTL,
		chunkRetryDelay: limits.ChunkRetryDelay,
		interChunkDelay: limits.InterChunkDelay,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Close stops every watcher and chunk stream.
func (m *Manager) Close() {
	m.closeOnce.Do(m.cancel)
}

// OnOffer sets the callback for received offers.
func (m *Manager) OnOffer(cb OfferCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffer = cb
}

// OnReceived sets the callback for completed incoming transfers.
func (m *Manager) OnReceived(cb ReceivedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReceived = cb
}

// OnDelivered sets the callback for confirmed outgoing transfers.
func (m *Manager) OnDelivered(cb DeliveredCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDelivered = cb
}

// OnAborted sets the callback for outgoing transfers that died.
func (m *Manager) OnAborted(cb AbortedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAborted = cb
}

// Offer sends a file offer and starts the background watcher that waits
// for the recipient's decision. Chunks flow only after an accept; with no
// decision inside the offer window the transfer is discarded.
func (m *Manager) Offer(ctx context.Context, recipient, path, description string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("offer %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("offer %s: is a directory", path)
	}
	if info.Size() == 0 {
		return "", ErrEmptyFile
	}

	size := info.Size()
	filename := filepath.Base(path)
	totalChunks := int((size + limits.ChunkDataSize - 1) / limits.ChunkDataSize)
	fileID := wire.NewFileID()

	filetype := mime.TypeByExtension(filepath.Ext(filename))
	if filetype == "" {
		filetype = "application/octet-stream"
	}

	offer := &wire.FileOffer{
		From:        m.cfg.SelfID,
		To:          recipient,
		Filename:    filename,
		Filesize:    size,
		Filetype:    filetype,
		FileID:      fileID,
		TotalChunks: totalChunks,
		ChunkSize:   limits.ChunkDataSize,
		Description: description,
		Timestamp:   time.Now().Unix(),
		MessageID:   wire.NewMessageID(),
		Token:       m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeFile, limits.DefaultTokenTTL),
	}

	addr, err := m.cfg.Peers.ResolveAddr(recipient, m.cfg.Port)
	if err != nil {
		return "", err
	}

	rec := &OutgoingTransfer{
		FileID:      fileID,
		Recipient:   recipient,
		Path:        path,
		Filename:    filename,
		Size:        size,
		TotalChunks: totalChunks,
		Token:       offer.Token,
		State:       TransferOffered,
		OfferedAt:   time.Now(),
		decision:    make(chan bool, 1),
		completed:   make(chan struct{}),
	}

	// Recorded before the send so an instant accept cannot slip past the
	// lookup in HandleAccept.
	m.mu.Lock()
	m.outgoing[fileID] = rec
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "Offer",
		"file_id":      fileID,
		"recipient":    recipient,
		"filename":     filename,
		"size":         size,
		"total_chunks": totalChunks,
	}).Info("Offering file")

	if err := m.cfg.Sender.SendReliable(ctx, offer.Encode(), addr, offer.MessageID); err != nil {
		m.mu.Lock()
		delete(m.outgoing, fileID)
		m.mu.Unlock()
		return "", err
	}

	go m.watchAccept(rec, addr)
	return fileID, nil
}

// watchAccept waits for the recipient's decision and hands an accepted
// transfer over to the chunk stream.
func (m *Manager) watchAccept(rec *OutgoingTransfer, addr net.Addr) {
	timer := time.NewTimer(m.acceptTimeout)
	defer timer.Stop()

	select {
	case accepted := <-rec.decision:
		if !accepted {
			m.mu.Lock()
			delete(m.outgoing, rec.FileID)
			m.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function": "watchAccept",
				"file_id":  rec.FileID,
			}).Info("File offer rejected by recipient")
			m.notifyAborted(rec.FileID, "rejected by recipient")
			return
		}
		m.mu.Lock()
		rec.State = TransferAccepted
		m.mu.Unlock()
		m.sendChunks(rec, addr)
	case <-timer.C:
		m.mu.Lock()
		rec.State = TransferTimedOut
		delete(m.outgoing, rec.FileID)
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "watchAccept",
			"file_id":  rec.FileID,
		}).Warn("File offer timed out with no decision")
		m.notifyAborted(rec.FileID, "offer timed out")
	case <-m.ctx.Done():
	}
}

// sendChunks streams the file. Each chunk rides the reliable substrate; a
// chunk that exhausts its budget gets exactly one more try after a short
// delay and is then abandoned, leaving loss detection to reassembly on the
// far side. After the last chunk the record lingers in the sent state
// until the completion message or the reaper removes it.
func (m *Manager) sendChunks(rec *OutgoingTransfer, addr net.Addr) {
	f, err := os.Open(rec.Path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendChunks",
			"file_id":  rec.FileID,
			"path":     rec.Path,
			"error":    err,
		}).Warn("Cannot open offered file")
		m.mu.Lock()
		delete(m.outgoing, rec.FileID)
		m.mu.Unlock()
		m.notifyAborted(rec.FileID, "local file unreadable")
		return
	}
	defer f.Close()

	m.mu.Lock()
	rec.State = TransferSending
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "sendChunks",
		"file_id":      rec.FileID,
		"recipient":    rec.Recipient,
		"total_chunks": rec.TotalChunks,
	}).Info("Streaming file chunks")

	buf := make([]byte, limits.ChunkDataSize)
	for index := 0; index < rec.TotalChunks; index++ {
		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			logrus.WithFields(logrus.Fields{
				"function": "sendChunks",
				"file_id":  rec.FileID,
				"index":    index,
				"error":    err,
			}).Warn("Chunk read failed; aborting transfer")
			m.mu.Lock()
			delete(m.outgoing, rec.FileID)
			m.mu.Unlock()
			m.notifyAborted(rec.FileID, "local file unreadable")
			return
		}

		chunk := &wire.FileChunk{
			From:        m.cfg.SelfID,
			To:          rec.Recipient,
			FileID:      rec.FileID,
			ChunkIndex:  index,
			TotalChunks: rec.TotalChunks,
			ChunkSize:   n,
			Data:        base64.StdEncoding.EncodeToString(buf[:n]),
			MessageID:   wire.NewMessageID(),
			Token:       rec.Token,
		}
		frame := chunk.Encode()

		if err := m.cfg.Sender.SendReliable(m.ctx, frame, addr, chunk.MessageID); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "sendChunks",
				"file_id":  rec.FileID,
				"index":    index,
			}).Debug("Chunk not acknowledged, retrying once")
			select {
			case <-time.After(m.chunkRetryDelay):
			case <-m.ctx.Done():
				return
			}
			if err := m.cfg.Sender.SendReliable(m.ctx, frame, addr, chunk.MessageID); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "sendChunks",
					"file_id":  rec.FileID,
					"index":    index,
				}).Debug("Chunk abandoned; reassembly will detect the gap")
			}
		}

		select {
		case <-time.After(m.interChunkDelay):
		case <-m.ctx.Done():
			return
		}
	}

	m.mu.Lock()
	rec.State = TransferSent
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "sendChunks",
		"file_id":  rec.FileID,
	}).Info("All chunks sent, awaiting completion message")

	reaper := time.NewTimer(m.sentTTL)
	defer reaper.Stop()
	select {
	case <-rec.completed:
	case <-reaper.C:
		m.mu.Lock()
		delete(m.outgoing, rec.FileID)
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "sendChunks",
			"file_id":  rec.FileID,
		}).Warn("No completion message; discarding transfer record")
		m.notifyAborted(rec.FileID, "no completion message")
	case <-m.ctx.Done():
	}
}

// Accept answers a pending offer and opens the collecting buffer. The
// offer survives a failed accept so it can be retried.
func (m *Manager) Accept(ctx context.Context, fileID string) error {
	m.mu.Lock()
	offer, ok := m.offers[fileID]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownOffer
	}

	accept := &wire.FileAccept{
		From:      m.cfg.SelfID,
		To:        offer.From,
		FileID:    fileID,
		Timestamp: time.Now().Unix(),
		MessageID: wire.NewMessageID(),
		Token:     m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeFile, limits.DefaultTokenTTL),
	}
	addr, err := m.cfg.Peers.ResolveAddr(offer.From, m.cfg.Port)
	if err != nil {
		return err
	}
	if err := m.cfg.Sender.SendReliable(ctx, accept.Encode(), addr, accept.MessageID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.offers, fileID)
	m.active[fileID] = &IncomingTransfer{
		FileID:      fileID,
		From:        offer.From,
		Filename:    offer.Filename,
		Size:        offer.Size,
		TotalChunks: offer.TotalChunks,
		AcceptedAt:  time.Now(),
		chunks:      make(map[int][]byte),
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Accept",
		"file_id":  fileID,
		"from":     offer.From,
		"filename": offer.Filename,
	}).Info("File offer accepted")
	return nil
}

// Reject declines a pending offer. The offer is consumed either way; a
// lost reject only costs the sender its offer window.
func (m *Manager) Reject(ctx context.Context, fileID string) error {
	m.mu.Lock()
	offer, ok := m.offers[fileID]
	delete(m.offers, fileID)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownOffer
	}

	reject := &wire.FileReject{
		From:      m.cfg.SelfID,
		To:        offer.From,
		FileID:    fileID,
		Timestamp: time.Now().Unix(),
		MessageID: wire.NewMessageID(),
		Token:     m.cfg.Authority.Mint(m.cfg.SelfID, wire.ScopeFile, limits.DefaultTokenTTL),
	}
	addr, err := m.cfg.Peers.ResolveAddr(offer.From, m.cfg.Port)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Reject",
		"file_id":  fileID,
		"from":     offer.From,
	}).Info("File offer rejected")
	return m.cfg.Sender.SendReliable(ctx, reject.Encode(), addr, reject.MessageID)
}

// PendingOffers returns the offers awaiting a local decision, ordered by
// file id.
func (m *Manager) PendingOffers() []IncomingOffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]IncomingOffer, 0, len(m.offers))
	for _, offer := range m.offers {
		out = append(out, offer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out
}

// OutgoingStates maps file id to lifecycle state for every live outgoing
// transfer.
func (m *Manager) OutgoingStates() map[string]TransferState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]TransferState, len(m.outgoing))
	for id, rec := range m.outgoing {
		out[id] = rec.State
	}
	return out
}

// Collecting returns a view of every incoming transfer still gathering
// chunks, ordered by file id.
func (m *Manager) Collecting() []IncomingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]IncomingStatus, 0, len(m.active))
	for _, rec := range m.active {
		out = append(out, IncomingStatus{
			FileID:      rec.FileID,
			From:        rec.From,
			Filename:    rec.Filename,
			TotalChunks: rec.TotalChunks,
			Received:    rec.Received(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out
}

// HandleOffer processes a received FILE_OFFER.
func (m *Manager) HandleOffer(msg wire.Message, src *net.UDPAddr) error {
	offer, ok := msg.(*wire.FileOffer)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}
	if offer.TotalChunks <= 0 || offer.ChunkSize <= 0 || offer.ChunkSize > limits.ChunkDataSize {
		return fmt.Errorf("%w: total_chunks=%d chunk_size=%d",
			ErrOfferInvalid, offer.TotalChunks, offer.ChunkSize)
	}

	incoming := IncomingOffer{
		FileID:      offer.FileID,
		From:        offer.From,
		Filename:    offer.Filename,
		Size:        offer.Filesize,
		Filetype:    offer.Filetype,
		Description: offer.Description,
		TotalChunks: offer.TotalChunks,
		ChunkSize:   offer.ChunkSize,
		ReceivedAt:  time.Now(),
	}

	m.mu.Lock()
	m.offers[offer.FileID] = incoming
	cb := m.onOffer
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "HandleOffer",
		"file_id":  offer.FileID,
		"from":     offer.From,
		"filename": offer.Filename,
		"size":     offer.Filesize,
	}).Info("File offer received")

	if cb != nil {
		cb(incoming)
	}
	return nil
}

// HandleAccept signals the offer watcher for a transfer we offered.
func (m *Manager) HandleAccept(msg wire.Message, src *net.UDPAddr) error {
	accept, ok := msg.(*wire.FileAccept)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}
	return m.signalDecision(accept.FileID, true)
}

// HandleReject signals the offer watcher that the recipient declined.
func (m *Manager) HandleReject(msg wire.Message, src *net.UDPAddr) error {
	reject, ok := msg.(*wire.FileReject)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}
	return m.signalDecision(reject.FileID, false)
}

func (m *Manager) signalDecision(fileID string, accepted bool) error {
	m.mu.Lock()
	rec, exists := m.outgoing[fileID]
	m.mu.Unlock()
	if !exists {
		return ErrUnknownTransfer
	}
	// Buffered; a re-sent decision is dropped here.
	select {
	case rec.decision <- accepted:
	default:
	}
	return nil
}

// HandleChunk stores one chunk of an accepted transfer, assembling the
// file the moment the last distinct index arrives. Chunks for transfers we
// never accepted are dropped.
func (m *Manager) HandleChunk(msg wire.Message, src *net.UDPAddr) error {
	chunk, ok := msg.(*wire.FileChunk)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}
	if err := limits.ValidateChunkData([]byte(chunk.Data)); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChunkCorrupt, err)
	}
	if len(raw) > limits.ChunkDataSize {
		return fmt.Errorf("%w: %d bytes", ErrChunkTooLarge, len(raw))
	}

	m.mu.Lock()
	rec, exists := m.active[chunk.FileID]
	if !exists {
		m.mu.Unlock()
		return ErrUnknownTransfer
	}
	if chunk.ChunkIndex < 0 || chunk.ChunkIndex >= rec.TotalChunks {
		m.mu.Unlock()
		return fmt.Errorf("%w: index %d of %d",
			ErrChunkOutOfRange, chunk.ChunkIndex, rec.TotalChunks)
	}
	rec.chunks[chunk.ChunkIndex] = raw
	complete := len(rec.chunks) == rec.TotalChunks
	if complete {
		delete(m.active, chunk.FileID)
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "HandleChunk",
		"file_id":  chunk.FileID,
		"index":    chunk.ChunkIndex,
		"total":    rec.TotalChunks,
	}).Debug("Chunk stored")

	if complete {
		return m.assemble(rec)
	}
	return nil
}

// HandleReceived finalizes a transfer we sent. Arriving twice is harmless:
// the second lookup misses.
func (m *Manager) HandleReceived(msg wire.Message, src *net.UDPAddr) error {
	received, ok := msg.(*wire.FileReceived)
	if !ok {
		return fmt.Errorf("unexpected payload %T", msg)
	}

	m.mu.Lock()
	rec, exists := m.outgoing[received.FileID]
	if exists {
		delete(m.outgoing, received.FileID)
	}
	cb := m.onDelivered
	m.mu.Unlock()
	if !exists {
		return ErrUnknownTransfer
	}
	close(rec.completed)

	logrus.WithFields(logrus.Fields{
		"function": "HandleReceived",
		"file_id":  received.FileID,
		"status":   received.Status,
	}).Info("Transfer confirmed by recipient")

	if cb != nil {
		cb(received.FileID, received.Status)
	}
	return nil
}

// assemble writes the completed file into the download directory and sends
// the completion message back. The filename is flattened to its base so a
// hostile offer cannot write outside the directory.
func (m *Manager) assemble(rec *IncomingTransfer) error {
	if err := os.MkdirAll(m.cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	name := filepath.Base(rec.Filename)
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		name = "download"
	}
	outPath := filepath.Join(m.cfg.DownloadDir, fmt.Sprintf("%d_%s", time.Now().Unix(), name))

	var buf bytes.Buffer
	buf.Grow(int(rec.Size))
	for i := 0; i < rec.TotalChunks; i++ {
		buf.Write(rec.chunks[i])
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "assemble",
		"file_id":  rec.FileID,
		"path":     outPath,
		"size":     buf.Len(),
	}).Info("File assembled")

	confirmation := &wire.FileReceived{
		From:      m.cfg.SelfID,
		To:        rec.From,
		FileID:    rec.FileID,
		Status:    wire.FileStatusComplete,
		Timestamp: time.Now().Unix(),
	}
	if addr, err := m.cfg.Peers.ResolveAddr(rec.From, m.cfg.Port); err == nil {
		if err := m.cfg.Transport.Send(confirmation.Encode(), addr); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "assemble",
				"file_id":  rec.FileID,
				"error":    err,
			}).Debug("Failed to send completion message")
		}
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "assemble",
			"file_id":  rec.FileID,
			"from":     rec.From,
		}).Warn("Cannot resolve sender for completion message")
	}

	m.mu.Lock()
	cb := m.onReceived
	m.mu.Unlock()
	if cb != nil {
		cb(rec.FileID, outPath, rec.From)
	}
	return nil
}

// notifyAborted invokes the aborted callback, if set.
func (m *Manager) notifyAborted(fileID, reason string) {
	m.mu.Lock()
	cb := m.onAborted
	m.mu.Unlock()
	if cb != nil {
		cb(fileID, reason)
	}
}
