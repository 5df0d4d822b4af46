package transport

// SessionState is a connection's position in the handshake/auth/active
// lifecycle. Grounded on the teacher's packet.SessionState
// (internal/net/packet, deleted alongside the Lineage opcode table —
// SPEC_FULL.md §4.10 needs the state machine, not the 300-opcode registry
// it used to key off of).
type SessionState int32

const (
	StateHandshake SessionState = iota
	StateAuthenticating
	StateActive
	StateDisconnecting
)

// Opcodes for the demo host's minimal wire protocol: a handshake carrying
// the cipher seed, a credential exchange, and the two outcomes.
const (
	OpcodeInit     byte = 0x01
	OpcodeAuth     byte = 0x02
	OpcodeAuthOK   byte = 0x03
	OpcodeAuthFail byte = 0x04
)
