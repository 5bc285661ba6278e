package actl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	auctionnet "github.com/cjmont/p2p-auction-th"
	"github.com/cjmont/p2p-auction-th/astate"
	"github.com/go-chi/chi/v5"
)

// Backend is the slice of a node the control surface drives.
// [*auctionnet.Node] satisfies it.
type Backend interface {
	OpenAuction(ctx context.Context, itemID string, price float64) error
	MakeBid(ctx context.Context, itemID string, amount float64) error
	CloseAuction(ctx context.Context, itemID string) (*astate.Bid, error)
	ListConnections(ctx context.Context) ([]string, error)
}

// AuctionHandler registers the auction operation routes.
type AuctionHandler struct {
	Backend Backend

	Log *slog.Logger
}

func (h *AuctionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/open-auction", h.openAuction)
	r.Post("/make-bid", h.makeBid)
	r.Post("/close-auction", h.closeAuction)
	r.Get("/active-connections", h.activeConnections)
}

type openAuctionRequest struct {
	ItemID string  `json:"picId"`
	Price  float64 `json:"price"`
}

func (h *AuctionHandler) openAuction(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req openAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if req.ItemID == "" {
		http.Error(w, "Missing picId", http.StatusBadRequest)
		return
	}

	if err := h.Backend.OpenAuction(r.Context(), req.ItemID, req.Price); err != nil {
		http.Error(w, fmt.Sprintf("Failed to open auction: %v", err), http.StatusInternalServerError)
		return
	}

	fmt.Fprint(w, "Auction opened!")
}

type makeBidRequest struct {
	ItemID   string  `json:"picId"`
	BidPrice float64 `json:"bidPrice"`
}

func (h *AuctionHandler) makeBid(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req makeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if req.ItemID == "" {
		http.Error(w, "Missing picId", http.StatusBadRequest)
		return
	}

	err := h.Backend.MakeBid(r.Context(), req.ItemID, req.BidPrice)
	switch {
	case err == nil:
		fmt.Fprint(w, "Bid made!")

	case errors.As(err, &auctionnet.AuctionNotFoundError{}):
		http.Error(w, "Auction not found.", http.StatusNotFound)

	case errors.As(err, &auctionnet.InvalidBidError{}):
		http.Error(w, "Invalid bid.", http.StatusBadRequest)

	default:
		http.Error(w, fmt.Sprintf("Failed to make bid: %v", err), http.StatusInternalServerError)
	}
}

type closeAuctionRequest struct {
	ItemID string `json:"picId"`
}

func (h *AuctionHandler) closeAuction(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req closeAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if req.ItemID == "" {
		http.Error(w, "Missing picId", http.StatusBadRequest)
		return
	}

	winner, err := h.Backend.CloseAuction(r.Context(), req.ItemID)
	switch {
	case errors.As(err, &auctionnet.AuctionNotFoundError{}):
		http.Error(w, "Auction not found.", http.StatusNotFound)

	case err != nil:
		http.Error(w, fmt.Sprintf("Failed to close auction: %v", err), http.StatusInternalServerError)

	case winner == nil:
		// A close with no accepted bids is valid;
		// there is simply no winner to report.
		fmt.Fprint(w, "Auction closed! No bids were placed.")

	default:
		fmt.Fprintf(w, "Auction closed! Winner: Client#%s with %v USDt",
			winner.BidderID, winner.Amount)
	}
}

func (h *AuctionHandler) activeConnections(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Backend.ListConnections(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list connections: %v", err), http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ids); err != nil {
		h.Log.Warn("Failed to write connection list", "err", err)
	}
}
