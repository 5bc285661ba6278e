// Package ak contains the auction kernel:
// the single goroutine that owns one node's auction state and its
// set of live peer connections.
//
// Inbound peer payloads, control-surface requests, and connection
// lifecycle changes all funnel into the kernel's main loop over
// channels, so no two events mutate state concurrently and the
// state store needs no locking.
package ak

import (
	"context"
	"log/slog"

	"github.com/bits-and-blooms/bitset"
	"github.com/cjmont/p2p-auction-th/astate"
	"github.com/cjmont/p2p-auction-th/awire"
)

type Kernel struct {
	log *slog.Logger

	clientID string

	ConnChanges  chan ConnChange
	PeerMessages chan PeerMessage

	OpenRequests      chan OpenRequest
	BidRequests       chan BidRequest
	CloseRequests     chan CloseRequest
	ListConnsRequests chan ListConnsRequest
	AuctionQueries    chan AuctionQuery

	store *astate.Store

	// Live connections in insertion order.
	// Broadcast order follows this slice.
	peers []Peer

	done chan struct{}
}

type KernelConfig struct {
	// ClientID is stamped on every locally-originated event,
	// identifying this node as opener or bidder.
	ClientID string
}

func NewKernel(ctx context.Context, log *slog.Logger, cfg KernelConfig) *Kernel {
	k := &Kernel{
		log: log,

		clientID: cfg.ClientID,

		ConnChanges:  make(chan ConnChange),
		PeerMessages: make(chan PeerMessage),

		OpenRequests:      make(chan OpenRequest),
		BidRequests:       make(chan BidRequest),
		CloseRequests:     make(chan CloseRequest),
		ListConnsRequests: make(chan ListConnsRequest),
		AuctionQueries:    make(chan AuctionQuery),

		store: astate.NewStore(),

		done: make(chan struct{}),
	}

	go k.mainLoop(ctx)

	return k
}

func (k *Kernel) Wait() {
	<-k.done
}

func (k *Kernel) mainLoop(ctx context.Context) {
	defer close(k.done)

	for {
		select {
		case <-ctx.Done():
			k.log.Info(
				"Stopping due to context cancellation",
				"cause", context.Cause(ctx),
			)
			return

		case c := <-k.ConnChanges:
			k.handleConnChange(c)

		case m := <-k.PeerMessages:
			k.handlePeerMessage(m)

		case req := <-k.OpenRequests:
			k.handleOpen(req)

		case req := <-k.BidRequests:
			k.handleBid(req)

		case req := <-k.CloseRequests:
			k.handleClose(req)

		case req := <-k.ListConnsRequests:
			k.handleListConns(req)

		case q := <-k.AuctionQueries:
			k.handleAuctionQuery(q)
		}
	}
}

func (k *Kernel) handleConnChange(c ConnChange) {
	if c.Adding {
		k.peers = append(k.peers, c.Peer)
		k.log.Info(
			"Peer connection added",
			"peer_id", c.Peer.ID,
			"remote_addr", c.Peer.Addr,
			"conn_id", c.Peer.LocalID,
			"n_peers", len(k.peers),
		)
		return
	}

	for i, p := range k.peers {
		if p.LocalID == c.Peer.LocalID {
			k.peers = append(k.peers[:i], k.peers[i+1:]...)
			break
		}
	}
	k.log.Info(
		"Peer connection removed",
		"peer_id", c.Peer.ID,
		"remote_addr", c.Peer.Addr,
		"conn_id", c.Peer.LocalID,
		"n_peers", len(k.peers),
	)
}

// handlePeerMessage decodes and applies one remote event.
//
// Remote events go through the same store rules as local ones,
// and they are never re-broadcast:
// relaying is intentionally absent, so reachability is determined
// by the connection topology alone.
func (k *Kernel) handlePeerMessage(pm PeerMessage) {
	m, err := awire.Decode(pm.Raw)
	if err != nil {
		// Per-message failure only.
		// The payload is dropped and the connection stays up.
		k.log.Warn(
			"Discarding undecodable peer payload",
			"remote_addr", pm.From.Addr,
			"err", err,
		)
		return
	}

	switch m.Type {
	case awire.KindAuction:
		k.store.ApplyOpen(m.ItemID, m.Price, m.ClientID)
		k.log.Info(
			"Received new auction",
			"item", m.ItemID,
			"price", m.Price,
			"opened_by", m.ClientID,
		)

	case awire.KindBid:
		accepted, found := k.store.ApplyBid(m.ItemID, m.BidPrice, m.ClientID)
		if accepted {
			k.log.Info(
				"Received valid bid",
				"item", m.ItemID,
				"bid_price", m.BidPrice,
				"bidder", m.ClientID,
			)
		} else {
			// Either we never saw the auction,
			// or the remote bid lost a race against a higher one.
			// No state changed in both cases.
			k.log.Debug(
				"Ignoring remote bid",
				"item", m.ItemID,
				"bid_price", m.BidPrice,
				"bidder", m.ClientID,
				"auction_known", found,
			)
		}

	case awire.KindClose:
		_, _, found := k.store.ApplyClose(m.ItemID)
		attrs := []any{"item", m.ItemID, "was_live", found}
		if m.Winner != nil {
			attrs = append(attrs,
				"winner", m.Winner.ClientID,
				"winning_bid", m.Winner.BidPrice,
			)
		}
		k.log.Info("Received auction closure", attrs...)
	}
}

func (k *Kernel) handleOpen(req OpenRequest) {
	k.store.ApplyOpen(req.ItemID, req.Price, k.clientID)
	k.log.Info(
		"Opened auction",
		"item", req.ItemID,
		"price", req.Price,
	)

	d := k.broadcast(awire.Message{
		Type:     awire.KindAuction,
		ItemID:   req.ItemID,
		Price:    req.Price,
		ClientID: k.clientID,
	})

	// Assume the response channel is buffered.
	req.Resp <- OpenResponse{Delivery: d}
}

func (k *Kernel) handleBid(req BidRequest) {
	accepted, found := k.store.ApplyBid(req.ItemID, req.Amount, k.clientID)

	var out BidOutcome
	var d Delivery
	switch {
	case !found:
		out = BidAuctionNotFound
		k.log.Info(
			"Attempted to bid on non-existent auction",
			"item", req.ItemID,
		)

	case !accepted:
		out = BidTooLow
		a, _ := k.store.Get(req.ItemID)
		k.log.Info(
			"Made an invalid bid",
			"item", req.ItemID,
			"bid_price", req.Amount,
			"current_price", a.Price,
		)

	default:
		out = BidAccepted
		k.log.Info(
			"Made a valid bid",
			"item", req.ItemID,
			"bid_price", req.Amount,
		)

		// Only an accepted bid reaches the network.
		d = k.broadcast(awire.Message{
			Type:     awire.KindBid,
			ItemID:   req.ItemID,
			BidPrice: req.Amount,
			ClientID: k.clientID,
		})
	}

	// Assume the response channel is buffered.
	req.Resp <- BidResponse{Outcome: out, Delivery: d}
}

func (k *Kernel) handleClose(req CloseRequest) {
	if _, ok := k.store.Get(req.ItemID); !ok {
		k.log.Info(
			"Attempted to close non-existent auction",
			"item", req.ItemID,
		)

		// Assume the response channel is buffered.
		req.Resp <- CloseResponse{Found: false}
		return
	}

	// Snapshot the winner before removal;
	// the broadcast carries the snapshot,
	// and a close without any accepted bid carries no winner.
	winner, hadBid := k.store.HighestBid(req.ItemID)

	msg := awire.Message{
		Type:   awire.KindClose,
		ItemID: req.ItemID,
	}
	if hadBid {
		msg.Winner = &awire.WinningBid{
			ClientID: winner.BidderID,
			BidPrice: winner.Amount,
		}
	}
	d := k.broadcast(msg)

	k.store.ApplyClose(req.ItemID)
	attrs := []any{"item", req.ItemID}
	if hadBid {
		attrs = append(attrs, "winner", winner.BidderID, "winning_bid", winner.Amount)
	}
	k.log.Info("Closed auction", attrs...)

	// Assume the response channel is buffered.
	req.Resp <- CloseResponse{
		Found:     true,
		HasWinner: hadBid,
		Winner:    winner,
		Delivery:  d,
	}
}

func (k *Kernel) handleListConns(req ListConnsRequest) {
	ids := make([]string, len(k.peers))
	for i, p := range k.peers {
		ids[i] = p.Identity()
	}

	// Assume the response channel is buffered.
	req.Resp <- ids
}

func (k *Kernel) handleAuctionQuery(q AuctionQuery) {
	a, ok := k.store.Get(q.ItemID)

	// Assume the response channel is buffered.
	q.Resp <- AuctionSnapshot{Auction: a, Found: ok}
}

// broadcast writes the encoded form of m to every live connection,
// in insertion order, and reports which peers took the write.
// A failed write on one connection never prevents delivery attempts
// to the others.
func (k *Kernel) broadcast(m awire.Message) Delivery {
	if len(k.peers) == 0 {
		return Delivery{}
	}

	b, err := awire.Encode(m)
	if err != nil {
		k.log.Error(
			"Failed to encode outgoing event; not broadcasting",
			"kind", m.Type,
			"item", m.ItemID,
			"err", err,
		)
		return Delivery{}
	}

	sent := bitset.New(uint(len(k.peers)))
	for i, p := range k.peers {
		if err := p.Conn.SendDatagram(b); err != nil {
			k.log.Warn(
				"Failed to send event to peer",
				"kind", m.Type,
				"item", m.ItemID,
				"peer_id", p.ID,
				"remote_addr", p.Addr,
				"err", err,
			)
			continue
		}
		sent.Set(uint(i))
	}

	k.log.Debug(
		"Broadcast event",
		"kind", m.Type,
		"item", m.ItemID,
		"n_peers", len(k.peers),
		"n_delivered", sent.Count(),
	)

	return Delivery{Attempted: len(k.peers), Sent: sent}
}
