package ak

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/cjmont/p2p-auction-th/astate"
)

// Delivery records the per-peer outcome of one broadcast.
//
// Bit i of Sent corresponds to the peer at insertion-order position i
// at the time of the broadcast; a set bit means the write to that peer
// succeeded.
// The zero Delivery means nothing was broadcast,
// which counts as complete.
type Delivery struct {
	// Attempted is the number of peers the event was offered to.
	Attempted int

	// Sent marks which of those peers took the write.
	// Nil when Attempted is zero.
	Sent *bitset.BitSet
}

// Complete reports whether every attempted peer took the write.
func (d Delivery) Complete() bool {
	if d.Attempted == 0 {
		return true
	}
	return d.Sent != nil && d.Sent.Count() == uint(d.Attempted)
}

// SentCount is the number of peers that took the write.
func (d Delivery) SentCount() uint {
	if d.Sent == nil {
		return 0
	}
	return d.Sent.Count()
}

// OpenRequest is sent from the control surface to the [Kernel]
// to open (or overwrite) an auction owned by this node.
//
// Opening always succeeds from the caller's point of view.
type OpenRequest struct {
	ItemID string
	Price  float64

	Resp chan OpenResponse
}

// OpenResponse carries the broadcast outcome of the open event.
type OpenResponse struct {
	Delivery Delivery
}

// BidRequest is sent from the control surface to the [Kernel]
// to offer a bid from this node.
type BidRequest struct {
	ItemID string
	Amount float64

	Resp chan BidResponse
}

// BidResponse reports the outcome of a local bid.
//
// Delivery is the zero value unless the bid was accepted;
// rejected bids never reach the network.
type BidResponse struct {
	Outcome BidOutcome

	Delivery Delivery
}

// BidOutcome is the tri-state result of offering a bid.
type BidOutcome uint8

const (
	// The bid was accepted, the price raised, and the event broadcast.
	BidAccepted BidOutcome = iota

	// No live auction exists for the item; nothing changed.
	BidAuctionNotFound

	// The bid did not exceed the current price; nothing changed.
	BidTooLow
)

// CloseRequest is sent from the control surface to the [Kernel]
// to close an auction and announce its winner.
type CloseRequest struct {
	ItemID string

	Resp chan CloseResponse
}

// CloseResponse reports the result of closing an auction.
//
// If Found is false, no auction was live for the item and
// nothing changed.
// HasWinner is false when the auction closed without any accepted
// bid; Winner is only meaningful when HasWinner is true.
type CloseResponse struct {
	Found bool

	HasWinner bool
	Winner    astate.Bid

	// Delivery is the zero value when Found is false.
	Delivery Delivery
}

// ListConnsRequest asks the [Kernel] for the identities of all
// currently-open peer connections, in connection-insertion order.
type ListConnsRequest struct {
	Resp chan []string
}

// AuctionQuery asks the [Kernel] for a snapshot of one auction.
type AuctionQuery struct {
	ItemID string

	Resp chan AuctionSnapshot
}

type AuctionSnapshot struct {
	Auction astate.Auction
	Found   bool
}
