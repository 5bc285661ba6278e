package auctionnet

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cjmont/p2p-auction-th/astate"
	"github.com/cjmont/p2p-auction-th/internal/ak"
	"github.com/quic-go/quic-go"
)

// Node is one participant in the auction network.
// It contains a QUIC listener, a number of live connections to peers
// sharing the rendezvous topic, and the kernel that owns this node's
// auction state.
type Node struct {
	log *slog.Logger

	// Lifecycle context captured at construction.
	// Connection loops are bound to it,
	// not to the context of whichever call dialed the peer.
	ctx context.Context

	k *ak.Kernel

	wg sync.WaitGroup

	quicConf      *quic.Config
	quicTransport *quic.Transport
	quicListener  *quic.Listener

	// This is a modified version of the TLS config provided via the
	// Node config. We clone it again whenever we need TLS config.
	baseTLSConf *tls.Config

	dialer dialer

	seeds []string

	joinOnce sync.Once
}

// NodeConfig is the configuration for a [Node].
type NodeConfig struct {
	UDPConn *net.UDPConn
	QUIC    *quic.Config

	// The base TLS configuration to use.
	// It must carry the node's identity certificate.
	// The Node will clone it and modify the clone.
	TLS *tls.Config

	// Topic is the rendezvous string shared by all nodes
	// that should discover each other.
	// It is mapped onto the connection's ALPN protocol,
	// so peers joined to a different topic never complete a
	// handshake with this node.
	Topic string

	// ClientID identifies this node as the opener or bidder
	// on every event it originates.
	ClientID string

	// Seeds are addresses of known peers dialed on [Node.Join].
	// The overlay performs no other discovery.
	Seeds []string
}

// validate panics if there are any illegal settings in the configuration.
func (c NodeConfig) validate() {
	// If there are multiple reasons we could panic,
	// collect them all in one go
	// so we can give a maximally helpful error.
	var panicErrs error

	if c.UDPConn == nil {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("NodeConfig.UDPConn must not be nil"),
		)
	}

	if c.QUIC == nil || !c.QUIC.EnableDatagrams {
		// Datagrams carry the gossip payloads;
		// without them nothing can be broadcast.
		panicErrs = errors.Join(
			panicErrs,
			errors.New("QUIC datagrams must be enabled; set NodeConfig.QUIC.EnableDatagrams=true"),
		)
	}

	if c.TLS == nil || len(c.TLS.Certificates) == 0 {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("NodeConfig.TLS must carry an identity certificate"),
		)
	}

	if c.Topic == "" {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("NodeConfig.Topic must not be empty"),
		)
	}

	if c.ClientID == "" {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("NodeConfig.ClientID must not be empty"),
		)
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

// alpnProtocol derives the ALPN string for a rendezvous topic.
func alpnProtocol(topic string) string {
	return "auctionnet/" + topic
}

func (c NodeConfig) customizedTLSConfig() *tls.Config {
	// Assume we can't take ownership of the input TLS config,
	// given that we are intending to modify it.
	conf := c.TLS.Clone()

	conf.NextProtos = []string{alpnProtocol(c.Topic)}

	// The overlay is a capability-free trust domain:
	// certificates carry identity fingerprints,
	// nothing authenticates who issued them.
	// Clients are asked for a certificate but peers without one
	// are still admitted; their identity is simply unresolved.
	conf.InsecureSkipVerify = true
	conf.ClientAuth = tls.RequestClientCert

	return conf
}

// DefaultTopic is the rendezvous topic used when none is configured.
const DefaultTopic = "auction-network"

// DefaultQUICConfig is the default QUIC configuration for a [NodeConfig].
func DefaultQUICConfig() *quic.Config {
	return &quic.Config{
		// Defaults to 5s otherwise, which is far higher latency
		// than we need between cooperating nodes.
		HandshakeIdleTimeout: 2 * time.Second,

		// Events are small; these windows only matter for streams,
		// which this application does not open.
		InitialStreamReceiveWindow:     32 * 1024,
		MaxStreamReceiveWindow:         1024 * 1024,
		InitialConnectionReceiveWindow: 4 * 32 * 1024,
		MaxConnectionReceiveWindow:     4 * 1024 * 1024,

		MaxIncomingStreams:    2,
		MaxIncomingUniStreams: 2,

		// Gossip without keepalives tends to hit the 30s idle
		// timeout between auction events.
		KeepAlivePeriod: 10 * time.Second,

		// Datagrams are practically the whole point of using QUIC here:
		// one datagram carries exactly one encoded event,
		// fire and forget.
		EnableDatagrams: true,
	}
}

// NewNode returns a new Node with the given configuration.
// The ctx parameter controls the lifecycle of the Node;
// cancel the context to stop the node,
// and then use [(*Node).Wait] to block until all background work has
// completed.
//
// NewNode returns runtime errors that happen during initialization.
// Configuration errors cause a panic.
func NewNode(ctx context.Context, log *slog.Logger, cfg NodeConfig) (*Node, error) {
	cfg.validate()

	// We are using a quic Transport directly here in order to have
	// finer control over connection behavior than a simple call to
	// quic.Listen.
	qt := &quic.Transport{
		Conn: cfg.UDPConn,

		// Contexts associated with the underlying connections
		// are derived from the node's lifecycle context.
		ConnContext: func(context.Context) context.Context {
			return ctx
		},
	}

	k := ak.NewKernel(ctx, log.With("node_sys", "kernel"), ak.KernelConfig{
		ClientID: cfg.ClientID,
	})

	baseTLSConf := cfg.customizedTLSConfig()

	n := &Node{
		log: log,

		ctx: ctx,

		k: k,

		quicTransport: qt,
		quicConf:      cfg.QUIC,

		baseTLSConf: baseTLSConf,

		dialer: dialer{
			BaseTLSConf: baseTLSConf,

			QUICTransport: qt,
			QUICConfig:    cfg.QUIC,
		},

		seeds: cfg.Seeds,
	}

	if err := n.startListener(); err != nil {
		// Assume error already wrapped.
		return nil, err
	}

	n.wg.Add(1)
	go n.acceptConnections(ctx)

	return n, nil
}

// startListener starts the QUIC listener
// and assigns the listener to n.quicListener.
func (n *Node) startListener() error {
	ql, err := n.quicTransport.Listen(n.baseTLSConf.Clone(), n.quicConf)
	if err != nil {
		return fmt.Errorf("failed to set up QUIC listener: %w", err)
	}

	n.quicListener = ql
	return nil
}

// Wait blocks until the node has finished all background work.
func (n *Node) Wait() {
	n.wg.Wait()
	n.k.Wait()
}

// Join begins participating in the rendezvous topic by dialing every
// configured seed address.
// Join is idempotent; repeated calls do nothing.
//
// Individual dial failures are reported through connection-error
// logging and are never fatal: a node with unreachable seeds still
// accepts incoming connections.
func (n *Node) Join(ctx context.Context) {
	n.joinOnce.Do(func() {
		for _, seed := range n.seeds {
			if err := n.DialPeer(ctx, seed); err != nil {
				n.log.Warn(
					"Failed to reach seed peer",
					"addr", seed,
					"err", err,
				)
			}
		}
	})
}

// DialPeer establishes an outgoing connection to the peer at addr
// and adds it to the broadcast set.
func (n *Node) DialPeer(ctx context.Context, addr string) error {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("DialPeer: failed to resolve %q: %w", addr, err)
	}

	qc, err := n.dialer.Dial(ctx, ua)
	if err != nil {
		return fmt.Errorf("DialPeer: dial failed: %w", err)
	}

	// The dial context only bounds the handshake;
	// the established connection lives on the node's context.
	return n.admitConn(n.ctx, qc)
}

// acceptConnections accepts incoming connections,
// and hands each admitted connection to the kernel.
func (n *Node) acceptConnections(ctx context.Context) {
	defer n.wg.Done()

	for {
		qc, err := n.quicListener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				n.log.Info(
					"Accept loop quitting due to context cancellation",
					"cause", context.Cause(ctx),
				)
				return
			}

			// Debug-level because this could be spammy
			// if we are getting a lot of garbage connections.
			n.log.Debug(
				"Failed to accept incoming connection",
				"err", err,
			)
			continue
		}

		if err := n.admitConn(ctx, qc); err != nil {
			n.log.Info(
				"Accept loop quitting during connection admission",
				"cause", err,
			)
			return
		}
	}
}

// admitConn registers qc with the kernel and starts its receive loop.
// It only returns an error on context cancellation.
func (n *Node) admitConn(ctx context.Context, qc quic.Connection) error {
	peer := peerForConn(qc)

	if peer.ID != "" {
		n.log.Info(
			"Established a connection with peer",
			"peer_id", peer.ID,
			"remote_addr", peer.Addr,
		)
	} else {
		n.log.Info(
			"Established a connection, but peer info is not available",
			"remote_addr", peer.Addr,
		)
	}

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case n.k.ConnChanges <- ak.ConnChange{Peer: peer, Adding: true}:
		// Okay.
	}

	n.wg.Add(1)
	go n.receiveLoop(ctx, qc, peer)

	return nil
}

// receiveLoop reads datagrams from a single connection and forwards
// them to the kernel, until the connection closes or errors.
// Either way the connection is removed from the broadcast set and
// never reused; there is no automatic reconnect.
func (n *Node) receiveLoop(ctx context.Context, qc quic.Connection, peer ak.Peer) {
	defer n.wg.Done()

	for {
		data, err := qc.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() == nil {
				n.log.Info(
					"Peer connection closed",
					"peer_id", peer.ID,
					"remote_addr", peer.Addr,
					"err", err,
				)
			}

			select {
			case <-ctx.Done():
				// Node shutting down; the kernel is quitting too.
			case n.k.ConnChanges <- ak.ConnChange{Peer: peer, Adding: false}:
				// Okay.
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case n.k.PeerMessages <- ak.PeerMessage{From: peer, Raw: data}:
			// Okay.
		}
	}
}

// OpenAuction creates (or overwrites) the auction for itemID at the
// given starting price, owned by this node, and announces it to every
// connected peer.
// Opening always succeeds.
func (n *Node) OpenAuction(ctx context.Context, itemID string, price float64) error {
	resp := make(chan ak.OpenResponse, 1)
	req := ak.OpenRequest{ItemID: itemID, Price: price, Resp: resp}

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case n.k.OpenRequests <- req:
		// Okay.
	}

	var r ak.OpenResponse
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case r = <-resp:
		// Okay.
	}

	n.warnIncompleteDelivery("auction", itemID, r.Delivery)
	return nil
}

// warnIncompleteDelivery logs when a broadcast missed some peers.
// Gossip is fire-and-forget, so a partial broadcast is not an error
// to the caller, but it does mean some peers permanently missed the
// event: nothing relays it to them later.
func (n *Node) warnIncompleteDelivery(kind, itemID string, d ak.Delivery) {
	if d.Complete() {
		return
	}

	n.log.Warn(
		"Event did not reach every peer",
		"kind", kind,
		"item", itemID,
		"n_peers", d.Attempted,
		"n_delivered", d.SentCount(),
	)
}

// MakeBid offers a bid from this node on the auction for itemID.
//
// A bid on an unknown item returns [AuctionNotFoundError];
// a bid at or below the current price returns [InvalidBidError].
// Only an accepted bid mutates state and reaches the network.
func (n *Node) MakeBid(ctx context.Context, itemID string, amount float64) error {
	respCh := make(chan ak.BidResponse, 1)
	req := ak.BidRequest{ItemID: itemID, Amount: amount, Resp: respCh}

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case n.k.BidRequests <- req:
		// Okay.
	}

	var resp ak.BidResponse
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case resp = <-respCh:
		// Okay.
	}

	switch resp.Outcome {
	case ak.BidAccepted:
		n.warnIncompleteDelivery("bid", itemID, resp.Delivery)
		return nil
	case ak.BidAuctionNotFound:
		return AuctionNotFoundError{ItemID: itemID}
	case ak.BidTooLow:
		return InvalidBidError{ItemID: itemID, Amount: amount}
	default:
		panic(fmt.Errorf(
			"BUG: kernel returned invalid bid outcome %d", resp.Outcome,
		))
	}
}

// CloseAuction closes the auction for itemID,
// announcing the closure with the winning bid snapshot to every
// connected peer, and removes the auction and its bid locally.
//
// The returned bid is nil when the auction closed without any
// accepted bid.
// Closing an unknown item returns [AuctionNotFoundError].
func (n *Node) CloseAuction(ctx context.Context, itemID string) (*astate.Bid, error) {
	respCh := make(chan ak.CloseResponse, 1)
	req := ak.CloseRequest{ItemID: itemID, Resp: respCh}

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case n.k.CloseRequests <- req:
		// Okay.
	}

	var resp ak.CloseResponse
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case resp = <-respCh:
		// Okay.
	}

	if !resp.Found {
		return nil, AuctionNotFoundError{ItemID: itemID}
	}

	n.warnIncompleteDelivery("close", itemID, resp.Delivery)

	if !resp.HasWinner {
		return nil, nil
	}

	winner := resp.Winner
	return &winner, nil
}

// ListConnections returns the identities of all currently-open peer
// connections, in the order they were established.
func (n *Node) ListConnections(ctx context.Context) ([]string, error) {
	resp := make(chan []string, 1)
	req := ak.ListConnsRequest{Resp: resp}

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case n.k.ListConnsRequests <- req:
		// Okay.
	}

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case ids := <-resp:
		return ids, nil
	}
}

// GetAuction returns a snapshot of the live auction for itemID, if any.
func (n *Node) GetAuction(ctx context.Context, itemID string) (astate.Auction, bool, error) {
	resp := make(chan ak.AuctionSnapshot, 1)
	q := ak.AuctionQuery{ItemID: itemID, Resp: resp}

	select {
	case <-ctx.Done():
		return astate.Auction{}, false, context.Cause(ctx)
	case n.k.AuctionQueries <- q:
		// Okay.
	}

	select {
	case <-ctx.Done():
		return astate.Auction{}, false, context.Cause(ctx)
	case snap := <-resp:
		return snap.Auction, snap.Found, nil
	}
}

// ListenAddr returns the address the node's QUIC listener is bound to.
func (n *Node) ListenAddr() net.Addr {
	return n.quicListener.Addr()
}
