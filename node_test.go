package auctionnet_test

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	auctionnet "github.com/cjmont/p2p-auction-th"
	"github.com/cjmont/p2p-auction-th/auctiontest"
	"github.com/cjmont/p2p-auction-th/internal/acert"
	"github.com/cjmont/p2p-auction-th/internal/atest"
	"github.com/stretchr/testify/require"
)

const (
	eventuallyWait = 5 * time.Second
	eventuallyTick = 50 * time.Millisecond
)

func TestNode_peersSeeEachOther(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nw := auctiontest.NewNetwork(t, ctx, 2)
	nw.Mesh(t, ctx)

	a, b := nw.Nodes[0].Node, nw.Nodes[1].Node

	// The dialing side registers the connection synchronously.
	conns, err := a.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	// Peer identity is a hex SHA-256 certificate fingerprint.
	require.Len(t, conns[0], 64)

	// The accepting side registers it from its accept loop.
	require.Eventually(t, func() bool {
		conns, err := b.ListConnections(ctx)
		return err == nil && len(conns) == 1
	}, eventuallyWait, eventuallyTick)
}

// The full lifecycle across two directly connected nodes:
// A opens, B observes and bids, A observes the raised price
// without issuing any bid of its own, then A closes with B as winner.
func TestNode_gossipLifecycleAcrossTwoNodes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nw := auctiontest.NewNetwork(t, ctx, 2)
	nw.Mesh(t, ctx)

	a, b := nw.Nodes[0].Node, nw.Nodes[1].Node

	require.NoError(t, a.OpenAuction(ctx, "pic2", 50))

	auction, found, err := a.GetAuction(ctx, "pic2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 50.0, auction.Price)

	// B learns of the auction from the gossiped announce.
	require.Eventually(t, func() bool {
		auction, found, err := b.GetAuction(ctx, "pic2")
		return err == nil && found && auction.Price == 50 && auction.OwnerID == "1"
	}, eventuallyWait, eventuallyTick)

	require.NoError(t, b.MakeBid(ctx, "pic2", 75))

	// A observes the raised price from B's bid event.
	require.Eventually(t, func() bool {
		auction, found, err := a.GetAuction(ctx, "pic2")
		return err == nil && found && auction.Price == 75
	}, eventuallyWait, eventuallyTick)

	winner, err := a.CloseAuction(ctx, "pic2")
	require.NoError(t, err)
	require.NotNil(t, winner)
	require.Equal(t, "2", winner.BidderID)
	require.Equal(t, 75.0, winner.Amount)

	// The closure propagates; the auction is gone on B too.
	require.Eventually(t, func() bool {
		_, found, err := b.GetAuction(ctx, "pic2")
		return err == nil && !found
	}, eventuallyWait, eventuallyTick)

	err = b.MakeBid(ctx, "pic2", 100)
	require.ErrorAs(t, err, &auctionnet.AuctionNotFoundError{})
}

func TestNode_threeNodeMeshSeesEveryEvent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nw := auctiontest.NewNetwork(t, ctx, 3)
	nw.Mesh(t, ctx)

	require.NoError(t, nw.Nodes[2].Node.OpenAuction(ctx, "pic7", 10))

	// Events reach only direct connections and are not relayed,
	// so the full mesh is what gives all three nodes visibility.
	for i := range nw.Nodes {
		node := nw.Nodes[i].Node
		require.Eventually(t, func() bool {
			a, found, err := node.GetAuction(ctx, "pic7")
			return err == nil && found && a.Price == 10 && a.OwnerID == "3"
		}, eventuallyWait, eventuallyTick)
	}
}

func TestNode_localBidRulesWithoutPeers(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nw := auctiontest.NewNetwork(t, ctx, 1)
	node := nw.Nodes[0].Node

	err := node.MakeBid(ctx, "pic1", 100)
	require.ErrorAs(t, err, &auctionnet.AuctionNotFoundError{})

	require.NoError(t, node.OpenAuction(ctx, "pic1", 100))
	require.NoError(t, node.MakeBid(ctx, "pic1", 150))

	err = node.MakeBid(ctx, "pic1", 150)
	require.ErrorAs(t, err, &auctionnet.InvalidBidError{})

	_, err = node.CloseAuction(ctx, "nope")
	require.ErrorAs(t, err, &auctionnet.AuctionNotFoundError{})

	winner, err := node.CloseAuction(ctx, "pic1")
	require.NoError(t, err)
	require.NotNil(t, winner)
	require.Equal(t, "1", winner.BidderID)
}

func TestNode_closeWithoutBidsReportsNoWinner(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nw := auctiontest.NewNetwork(t, ctx, 1)
	node := nw.Nodes[0].Node

	require.NoError(t, node.OpenAuction(ctx, "pic1", 100))

	winner, err := node.CloseAuction(ctx, "pic1")
	require.NoError(t, err)
	require.Nil(t, winner)
}

// A stopped peer is removed from the survivor's broadcast set,
// and is never redialed.
func TestNode_disconnectRemovesConnection(t *testing.T) {
	t.Parallel()

	survivorCtx, cancelSurvivor := context.WithCancel(context.Background())
	defer cancelSurvivor()
	doomedCtx, cancelDoomed := context.WithCancel(context.Background())
	defer cancelDoomed()

	log := atest.NewLogger(t)

	newNode := func(ctx context.Context, clientID string) *auctionnet.Node {
		uc, err := net.ListenUDP("udp", &net.UDPAddr{
			IP:   net.IPv4(127, 0, 0, 1),
			Port: 0,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = uc.Close() })

		cert, err := acert.NewEphemeralIdentity("node-" + clientID)
		require.NoError(t, err)

		node, err := auctionnet.NewNode(ctx, log.With("client", clientID), auctionnet.NodeConfig{
			UDPConn:  uc,
			QUIC:     auctionnet.DefaultQUICConfig(),
			TLS:      &tls.Config{Certificates: []tls.Certificate{cert}},
			Topic:    "test-" + t.Name(),
			ClientID: clientID,
		})
		require.NoError(t, err)
		t.Cleanup(node.Wait)
		return node
	}

	survivor := newNode(survivorCtx, "1")
	doomed := newNode(doomedCtx, "2")

	require.NoError(t, survivor.DialPeer(survivorCtx, doomed.ListenAddr().String()))

	conns, err := survivor.ListConnections(survivorCtx)
	require.NoError(t, err)
	require.Len(t, conns, 1)

	cancelDoomed()

	require.Eventually(t, func() bool {
		conns, err := survivor.ListConnections(survivorCtx)
		return err == nil && len(conns) == 0
	}, eventuallyWait, eventuallyTick)
}
