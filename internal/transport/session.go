package transport

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgelabs/ecsframe/internal/transport/packet"
	"go.uber.org/zap"
)

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; ECS state is accessed only from the game loop, the
// same split the teacher's Session enforces between readLoop/writeLoop and
// the game-loop-owned outBuf.
//
// Grounded on the teacher's Session (internal/net/session.go), generalized
// from the Lineage client handshake (a fixed 11-byte fingerprint plus a
// 300-opcode table) to a minimal seed-plus-credential handshake any client
// speaking this wire format can complete.
type Session struct {
	ID   uint64
	conn net.Conn

	cipher *Cipher
	state  atomic.Int32
	mu     sync.Mutex // protects conn writes during the handshake

	InQueue  chan []byte // game loop reads packets from here
	OutQueue chan []byte // writer goroutine reads from here

	IP          string
	AccountName string

	outBuf [][]byte // buffered packets, flushed by the game loop once per tick

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	creds *CredentialStore

	// Per-second packet rate limiter (readLoop goroutine only, no lock needed)
	pktPerSec  int
	pktCount   int
	pktResetAt int64

	onClose func(id uint64)

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, inSize, outSize, pktPerSec int, creds *CredentialStore, log *zap.Logger) *Session {
	s := &Session{
		ID:        id,
		conn:      conn,
		InQueue:   make(chan []byte, inSize),
		OutQueue:  make(chan []byte, outSize),
		IP:        conn.RemoteAddr().String(),
		closeCh:   make(chan struct{}),
		creds:     creds,
		pktPerSec: pktPerSec,
		log:       log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(StateHandshake))
	return s
}

// OnClose registers fn to run exactly once, when the session closes —
// Server.AcceptLoop wires this to Server.NotifyDead so a dropped
// connection actually reaches DeadSessions.
func (s *Session) OnClose(fn func(id uint64)) {
	s.onClose = fn
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) SetState(st SessionState) {
	s.state.Store(int32(st))
}

// Start sends the plaintext handshake packet, initializes the cipher, and
// launches the reader and writer goroutines.
func (s *Session) Start() {
	seed := rand.Int31n(0x7FFFFFFE) + 1 // positive non-zero int32

	// [2B LE length=7][1B opcode][4B LE seed]
	buf := make([]byte, 7)
	binary.LittleEndian.PutUint16(buf[0:2], 7)
	buf[2] = OpcodeInit
	binary.LittleEndian.PutUint32(buf[3:7], uint32(seed))

	s.mu.Lock()
	_, err := s.conn.Write(buf)
	s.mu.Unlock()
	if err != nil {
		s.log.Error("handshake send failed", zap.Error(err))
		s.Close()
		return
	}

	s.cipher = NewCipher(seed)
	s.SetState(StateAuthenticating)

	go s.readLoop()
	go s.writeLoop()
	go s.authLoop()
}

// authLoop drains InQueue and hands each frame to Authenticate while
// the session is still in StateAuthenticating — without it, InQueue fills
// and no client can ever complete the handshake, since Authenticate is
// otherwise only exercised directly by tests. Once the session leaves
// StateAuthenticating (success or failure), authLoop keeps draining so
// InQueue never backs up and blocks readLoop, but stops interpreting
// frames: this demo host speaks no in-game opcodes beyond auth.
func (s *Session) authLoop() {
	for {
		select {
		case payload := <-s.InQueue:
			if s.State() == StateAuthenticating {
				s.Authenticate(payload)
			}
		case <-s.closeCh:
			return
		}
	}
}

// Authenticate handles one OpcodeAuth frame: "account\x00password\x00".
// Called from authLoop, the session's own goroutine, for each frame
// InQueue yields while the session is in StateAuthenticating. On success the session moves to StateActive;
// on failure it sends OpcodeAuthFail and closes.
func (s *Session) Authenticate(payload []byte) bool {
	r := packet.NewReader(payload)
	if r.Opcode() != OpcodeAuth {
		return false
	}
	account := r.ReadS()
	password := r.ReadS()

	if !s.creds.Verify(account, password) {
		s.Send(packet.NewWriterWithOpcode(OpcodeAuthFail).Bytes())
		s.FlushOutput()
		s.Close()
		return false
	}

	s.AccountName = account
	s.SetState(StateActive)
	s.Send(packet.NewWriterWithOpcode(OpcodeAuthOK).Bytes())
	return true
}

// Send buffers a packet for sending. The packet is not written to TCP
// until FlushOutput is called by the game loop once per tick.
// Called from one goroutine at a time — authLoop (via Authenticate) while
// the session is authenticating, the game loop after that — so outBuf
// takes no lock.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writer
// goroutine. Non-blocking: if OutQueue is full, the session is
// disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow connection")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close gracefully shuts down the session and, if OnClose was called,
// reports the session dead exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s.ID)
		}
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads frames from the TCP
// connection, decrypts them, and pushes them onto InQueue for the game
// loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}

		decrypted := s.cipher.Decrypt(payload)

		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("packet rate exceeded, disconnecting", zap.Int("pps", s.pktCount))
				return
			}
		}

		select {
		case s.InQueue <- decrypted:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It reads packets from OutQueue,
// encrypts them, and writes them as framed data to the TCP connection,
// with a 1ms pacing gap between queued packets so a burst of broadcast
// traffic doesn't land on the client in one write.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOnePacket(data) {
				return
			}
			for len(s.OutQueue) > 0 {
				select {
				case more := <-s.OutQueue:
					time.Sleep(time.Millisecond)
					if !s.writeOnePacket(more) {
						return
					}
				case <-s.closeCh:
					return
				}
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOnePacket(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("tx",
			zap.String("op", fmt.Sprintf("0x%02X(%d)", data[0], data[0])),
			zap.Int("len", len(data)),
		)
	}

	encrypted := make([]byte, len(data))
	copy(encrypted, data)
	s.cipher.Encrypt(encrypted)

	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := WriteFrame(s.conn, encrypted); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
