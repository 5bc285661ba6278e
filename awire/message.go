package awire

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the message variants on the wire.
type Kind string

const (
	// A node opened a new auction at a starting price.
	KindAuction Kind = "auction"

	// A node accepted a bid, raising the price of a live auction.
	KindBid Kind = "bid"

	// A node closed an auction, announcing its winner if any.
	KindClose Kind = "close"
)

// WinningBid is the snapshot of the highest accepted bid
// carried inside a close message.
type WinningBid struct {
	ClientID string  `json:"clientId"`
	BidPrice float64 `json:"bidPrice"`
}

// Message is one gossip event.
// Which fields are meaningful depends on Type:
//
//   - KindAuction: ItemID, Price, ClientID (the opener).
//   - KindBid: ItemID, BidPrice, ClientID (the bidder).
//   - KindClose: ItemID, and Winner if any bid was accepted
//     before the auction closed.
type Message struct {
	Type Kind `json:"type"`

	ItemID string `json:"picId"`

	Price    float64 `json:"price,omitempty"`
	BidPrice float64 `json:"bidPrice,omitempty"`

	ClientID string `json:"clientId,omitempty"`

	// Winner is only set on close messages,
	// and is absent when the auction closed without bids.
	Winner *WinningBid `json:"winningBid,omitempty"`
}

// DecodeError indicates a payload that could not be interpreted
// as a wire message.
//
// Receiving a DecodeError is a per-message failure:
// the payload is discarded and the connection remains usable.
type DecodeError struct {
	Reason string
}

func (e DecodeError) Error() string {
	return "undecodable wire message: " + e.Reason
}

// Encode serializes m for transmission.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", m.Type, err)
	}
	return b, nil
}

// Decode parses a received payload into a Message.
//
// A payload that is not valid JSON, is missing an item ID,
// or declares an unknown type results in a [DecodeError].
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, DecodeError{Reason: err.Error()}
	}

	switch m.Type {
	case KindAuction, KindBid, KindClose:
		// Known variant.
	default:
		return Message{}, DecodeError{
			Reason: fmt.Sprintf("unknown message type %q", m.Type),
		}
	}

	if m.ItemID == "" {
		return Message{}, DecodeError{
			Reason: fmt.Sprintf("%s message missing item ID", m.Type),
		}
	}

	return m, nil
}
