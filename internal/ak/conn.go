package ak

// Conn is the slice of a peer connection the kernel needs:
// a fire-and-forget datagram write.
//
// The write must not block on the remote;
// a slow peer may have payloads silently dropped or queued by the
// underlying transport, invisible to this layer.
type Conn interface {
	SendDatagram([]byte) error
}

// Peer is one live overlay connection tracked by the kernel.
type Peer struct {
	Conn Conn

	// ID is the peer's identity string
	// (in practice, a certificate fingerprint).
	// It may be empty: not all peers resolve identity metadata.
	ID string

	// Addr is the remote endpoint, for diagnostics.
	Addr string

	// LocalID is a node-local handle for this connection,
	// unique even when two connections resolve the same peer ID.
	LocalID string
}

// Identity returns the string reported for this peer on the
// control surface: the peer ID when resolved,
// otherwise the remote address.
func (p Peer) Identity() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Addr
}

// ConnChange is sent to the kernel when a connection is
// established or goes away.
// Connections are never reused after removal.
type ConnChange struct {
	Peer Peer

	// If true, the connection joins the broadcast set.
	// Otherwise it is removed.
	Adding bool
}

// PeerMessage is one raw payload received from a peer connection.
type PeerMessage struct {
	From Peer
	Raw  []byte
}
