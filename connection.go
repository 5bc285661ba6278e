package auctionnet

import (
	"github.com/cjmont/p2p-auction-th/internal/acert"
	"github.com/cjmont/p2p-auction-th/internal/ak"
	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
)

// peerForConn builds the kernel's view of a newly established
// connection.
//
// The peer identity is the fingerprint of the leaf certificate the
// remote presented during the handshake.
// Not every peer presents one; the ID is then left empty and callers
// fall back to the remote address for diagnostics.
func peerForConn(qc quic.Connection) ak.Peer {
	p := ak.Peer{
		Conn: qc,
		Addr: qc.RemoteAddr().String(),

		// Connections are never reused,
		// so a fresh handle per connection is enough
		// to tell two sessions with the same peer apart.
		LocalID: uuid.NewString(),
	}

	if certs := qc.ConnectionState().TLS.PeerCertificates; len(certs) > 0 {
		p.ID = acert.Fingerprint(certs[0])
	}

	return p
}
