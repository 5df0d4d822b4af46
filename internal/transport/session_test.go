package transport

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/forgelabs/ecsframe/internal/transport/packet"
	"go.uber.org/zap"
)

func authPayload(account, password string) []byte {
	w := packet.NewWriterWithOpcode(OpcodeAuth)
	w.WriteS(account)
	w.WriteS(password)
	return w.Bytes()
}

func TestSessionAuthenticateSucceedsAndFailsInIsolation(t *testing.T) {
	creds := NewCredentialStore()
	if err := creds.SetPassword("alice", "s3cret"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	conn, peer := net.Pipe()
	defer peer.Close()
	s := NewSession(conn, 1, 4, 4, 0, creds, zap.NewNop())
	s.SetState(StateAuthenticating)

	if ok := s.Authenticate(authPayload("alice", "wrong")); ok {
		t.Fatalf("expected a wrong password to fail")
	}
	if !s.IsClosed() {
		t.Fatalf("expected a failed auth to close the session")
	}

	conn2, peer2 := net.Pipe()
	defer peer2.Close()
	s2 := NewSession(conn2, 2, 4, 4, 0, creds, zap.NewNop())
	s2.SetState(StateAuthenticating)
	if ok := s2.Authenticate(authPayload("alice", "s3cret")); !ok {
		t.Fatalf("expected the correct password to succeed")
	}
	if s2.State() != StateActive {
		t.Fatalf("expected a successful auth to move the session to StateActive")
	}
}

// readHandshakeSeed drains the plaintext [len][opcode][seed] frame Start
// writes directly to conn, and returns the seed so a test can build a
// Cipher matching the session's.
func readHandshakeSeed(t *testing.T, peer net.Conn) int32 {
	t.Helper()
	payload, err := ReadFrame(peer)
	if err != nil {
		t.Fatalf("read handshake frame: %v", err)
	}
	if len(payload) != 5 || payload[0] != OpcodeInit {
		t.Fatalf("unexpected handshake payload: %v", payload)
	}
	return int32(binary.LittleEndian.Uint32(payload[1:5]))
}

func TestSessionAuthLoopDrainsInQueueDuringHandshake(t *testing.T) {
	creds := NewCredentialStore()
	if err := creds.SetPassword("bob", "hunter2"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	conn, peer := net.Pipe()
	defer peer.Close()

	s := NewSession(conn, 7, 4, 4, 0, creds, zap.NewNop())
	go s.Start()
	defer s.Close()

	seed := readHandshakeSeed(t, peer)
	enc := NewCipher(seed)

	payload := authPayload("bob", "hunter2")
	buf := append([]byte(nil), payload...)
	enc.Encrypt(buf)
	if err := WriteFrame(peer, buf); err != nil {
		t.Fatalf("write auth frame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == StateActive {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected authLoop to drain InQueue and authenticate the session, got state %v", s.State())
}

func TestSessionOnCloseFiresExactlyOnce(t *testing.T) {
	creds := NewCredentialStore()
	conn, peer := net.Pipe()
	defer peer.Close()

	s := NewSession(conn, 9, 4, 4, 0, creds, zap.NewNop())
	var mu sync.Mutex
	calls := 0
	var gotID uint64
	s.OnClose(func(id uint64) {
		mu.Lock()
		calls++
		gotID = id
		mu.Unlock()
	})

	s.Close()
	s.Close() // closeOnce must suppress the second call

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected OnClose to fire exactly once, got %d", calls)
	}
	if gotID != 9 {
		t.Fatalf("expected OnClose to report session ID 9, got %d", gotID)
	}
}

func TestServerWiresNotifyDeadToSessionClose(t *testing.T) {
	server, err := NewServer("127.0.0.1:0", 4, 4, 0, NewCredentialStore(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer server.Shutdown()
	go server.AcceptLoop()

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var sess *Session
	select {
	case sess = <-server.NewSessions():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the accepted session")
	}

	conn.Close()

	select {
	case id := <-server.DeadSessions():
		if id != sess.ID {
			t.Fatalf("expected dead session ID %d, got %d", sess.ID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for NotifyDead to report the dropped connection")
	}
}
