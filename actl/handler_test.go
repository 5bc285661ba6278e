package actl_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	auctionnet "github.com/cjmont/p2p-auction-th"
	"github.com/cjmont/p2p-auction-th/actl"
	"github.com/cjmont/p2p-auction-th/astate"
	"github.com/cjmont/p2p-auction-th/internal/atest"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// fakeBackend implements actl.Backend over plain maps,
// with no gossip involved.
type fakeBackend struct {
	auctions map[string]astate.Auction
	bids     map[string]astate.Bid
	conns    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		auctions: make(map[string]astate.Auction),
		bids:     make(map[string]astate.Bid),
	}
}

func (b *fakeBackend) OpenAuction(_ context.Context, itemID string, price float64) error {
	b.auctions[itemID] = astate.Auction{Price: price, OwnerID: "test"}
	return nil
}

func (b *fakeBackend) MakeBid(_ context.Context, itemID string, amount float64) error {
	a, ok := b.auctions[itemID]
	if !ok {
		return auctionnet.AuctionNotFoundError{ItemID: itemID}
	}
	if amount <= a.Price {
		return auctionnet.InvalidBidError{ItemID: itemID, Amount: amount}
	}
	a.Price = amount
	b.auctions[itemID] = a
	b.bids[itemID] = astate.Bid{BidderID: "test", Amount: amount}
	return nil
}

func (b *fakeBackend) CloseAuction(_ context.Context, itemID string) (*astate.Bid, error) {
	if _, ok := b.auctions[itemID]; !ok {
		return nil, auctionnet.AuctionNotFoundError{ItemID: itemID}
	}
	delete(b.auctions, itemID)

	bid, ok := b.bids[itemID]
	delete(b.bids, itemID)
	if !ok {
		return nil, nil
	}
	return &bid, nil
}

func (b *fakeBackend) ListConnections(context.Context) ([]string, error) {
	return b.conns, nil
}

func newTestServer(t *testing.T, b actl.Backend) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	h := &actl.AuctionHandler{Backend: b, Log: atest.NewLogger(t)}
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, string) {
	t.Helper()

	resp, err := srv.Client().Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(b))
}

func TestHandler_openAuction(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	srv := newTestServer(t, b)

	code, body := post(t, srv, "/open-auction", `{"picId":"pic1","price":100}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Auction opened!", body)
	require.Equal(t, 100.0, b.auctions["pic1"].Price)
}

func TestHandler_openAuction_badRequest(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeBackend())

	code, _ := post(t, srv, "/open-auction", `{"price":`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = post(t, srv, "/open-auction", `{"price":100}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_makeBid(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	srv := newTestServer(t, b)

	_, _ = post(t, srv, "/open-auction", `{"picId":"pic1","price":100}`)

	code, body := post(t, srv, "/make-bid", `{"picId":"pic1","bidPrice":150}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Bid made!", body)

	code, body = post(t, srv, "/make-bid", `{"picId":"pic1","bidPrice":120}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Invalid bid.", body)

	code, body = post(t, srv, "/make-bid", `{"picId":"nope","bidPrice":120}`)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "Auction not found.", body)
}

func TestHandler_closeAuction(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	srv := newTestServer(t, b)

	_, _ = post(t, srv, "/open-auction", `{"picId":"pic1","price":100}`)
	_, _ = post(t, srv, "/make-bid", `{"picId":"pic1","bidPrice":150}`)

	code, body := post(t, srv, "/close-auction", `{"picId":"pic1"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Auction closed! Winner: Client#test with 150 USDt", body)

	// Closed means gone.
	code, _ = post(t, srv, "/close-auction", `{"picId":"pic1"}`)
	require.Equal(t, http.StatusNotFound, code)
}

func TestHandler_closeAuction_noBids(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	srv := newTestServer(t, b)

	_, _ = post(t, srv, "/open-auction", `{"picId":"pic1","price":100}`)

	code, body := post(t, srv, "/close-auction", `{"picId":"pic1"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Auction closed! No bids were placed.", body)
}

func TestHandler_activeConnections(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	srv := newTestServer(t, b)

	resp, err := srv.Client().Get(srv.URL + "/active-connections")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	// No peers yet: an empty JSON array, not null.
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `[]`, string(body))

	b.conns = []string{"aa11", "bb22"}

	resp, err = srv.Client().Get(srv.URL + "/active-connections")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	require.JSONEq(t, `["aa11","bb22"]`, string(body))
}
