package auctionnet

import "strconv"

// AuctionNotFoundError is returned from [*Node.MakeBid] and
// [*Node.CloseAuction] when no live auction exists for the item.
type AuctionNotFoundError struct {
	ItemID string
}

func (e AuctionNotFoundError) Error() string {
	return "no live auction for item " + e.ItemID
}

// InvalidBidError is returned from [*Node.MakeBid] when the offered
// amount does not exceed the auction's current price.
// The bid caused no state change and was not broadcast.
type InvalidBidError struct {
	ItemID string
	Amount float64
}

func (e InvalidBidError) Error() string {
	return "bid of " + strconv.FormatFloat(e.Amount, 'f', -1, 64) +
		" on item " + e.ItemID + " does not exceed the current price"
}
