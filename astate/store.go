// Package astate holds one node's local view of live auctions,
// and the reconciliation rules that apply events to that view.
//
// The same rules are applied whether an event originated from the
// local control surface or arrived from a peer, so two nodes fed the
// same event make the same accept/reject decision.
//
// A Store has no internal locking.
// It is owned by a single event-processing goroutine;
// see the ak package for the ownership model.
package astate

// Auction is one live item listing.
type Auction struct {
	// Price is the current price of the item:
	// the opening price if no bid has been accepted,
	// otherwise the amount of the last accepted bid.
	// It never decreases while the auction is live.
	Price float64

	// OwnerID identifies the node that opened the auction.
	OwnerID string
}

// Bid is the current highest accepted offer for a live auction.
// Bid history is not retained; an accepted bid replaces its predecessor.
type Bid struct {
	BidderID string
	Amount   float64
}

// Store is the authoritative in-memory auction table for one node.
type Store struct {
	auctions map[string]Auction
	bids     map[string]Bid
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		auctions: make(map[string]Auction),
		bids:     make(map[string]Bid),
	}
}

// ApplyOpen creates the auction for itemID,
// or unconditionally overwrites an existing one.
//
// Overwriting is deliberate: concurrent opens for the same item
// from different nodes resolve as last writer wins,
// with no ordering check between them.
func (s *Store) ApplyOpen(itemID string, price float64, ownerID string) {
	s.auctions[itemID] = Auction{
		Price:   price,
		OwnerID: ownerID,
	}
}

// ApplyBid offers a bid against the auction for itemID.
//
// The bid is accepted iff the auction is live and amount is strictly
// greater than the auction's current price.
// On acceptance the auction price is raised to amount and the retained
// bid is replaced; on rejection nothing changes.
//
// The second return distinguishes a rejection from a missing auction.
func (s *Store) ApplyBid(itemID string, amount float64, bidderID string) (accepted, found bool) {
	a, ok := s.auctions[itemID]
	if !ok {
		return false, false
	}

	if amount <= a.Price {
		return false, true
	}

	a.Price = amount
	s.auctions[itemID] = a
	s.bids[itemID] = Bid{
		BidderID: bidderID,
		Amount:   amount,
	}
	return true, true
}

// ApplyClose removes the auction for itemID together with its bid.
//
// The returned bid is the winning bid at close time;
// hadBid is false when the auction closed without any accepted bid,
// which is a valid close with no winner.
// found is false when no such auction was live, in which case
// nothing changed.
func (s *Store) ApplyClose(itemID string) (winner Bid, hadBid, found bool) {
	if _, ok := s.auctions[itemID]; !ok {
		return Bid{}, false, false
	}

	winner, hadBid = s.bids[itemID]
	delete(s.auctions, itemID)
	delete(s.bids, itemID)
	return winner, hadBid, true
}

// Get returns the live auction for itemID, if any.
func (s *Store) Get(itemID string) (Auction, bool) {
	a, ok := s.auctions[itemID]
	return a, ok
}

// HighestBid returns the retained bid for itemID, if any.
func (s *Store) HighestBid(itemID string) (Bid, bool) {
	b, ok := s.bids[itemID]
	return b, ok
}

// Len reports the number of live auctions.
func (s *Store) Len() int {
	return len(s.auctions)
}
