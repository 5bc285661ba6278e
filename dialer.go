package auctionnet

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/quic-go/quic-go"
)

// dialer handles establishing QUIC connections to remote peers.
type dialer struct {
	BaseTLSConf *tls.Config

	QUICTransport *quic.Transport
	QUICConfig    *quic.Config
}

// Dial opens a QUIC connection to the given address.
// The topic's ALPN protocol is carried by the base TLS config,
// so a peer joined to a different topic fails the handshake here.
func (d dialer) Dial(ctx context.Context, addr net.Addr) (quic.Connection, error) {
	qc, err := d.QUICTransport.Dial(ctx, addr, d.BaseTLSConf.Clone(), d.QUICConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial peer at %s: %w", addr, err)
	}

	return qc, nil
}
