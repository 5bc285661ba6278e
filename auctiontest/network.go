// Package auctiontest simplifies tests that require several
// in-process auction nodes connected over real QUIC sockets.
package auctiontest

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	auctionnet "github.com/cjmont/p2p-auction-th"
	"github.com/cjmont/p2p-auction-th/internal/acert"
	"github.com/cjmont/p2p-auction-th/internal/atest"
	"github.com/stretchr/testify/require"
)

// Network contains a collection of nodes on loopback sockets,
// to simplify tests that require multiple nodes.
type Network struct {
	Log *slog.Logger

	Nodes []NetworkNode
}

// NetworkNode contains the details for a node in this test network.
type NetworkNode struct {
	Node *auctionnet.Node

	UDP *net.UDPConn
}

// NewNetwork returns a Network of n nodes sharing one rendezvous
// topic, each listening on its own loopback UDP socket.
// The nodes are created but not connected;
// use [Network.Mesh] or dial peers directly.
//
// If any error occurs while creating the network, t.Fatal is called.
// t.Cleanup is used extensively to ensure resources are cleaned up;
// the given context must be canceled before the end of the test.
func NewNetwork(t *testing.T, ctx context.Context, n int) *Network {
	t.Helper()

	log := atest.NewLogger(t)
	topic := "test-" + t.Name()

	nodes := make([]NetworkNode, n)
	for i := range nodes {
		uc, err := net.ListenUDP("udp", &net.UDPAddr{
			IP:   net.IPv4(127, 0, 0, 1),
			Port: 0,
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := uc.Close(); err != nil {
				t.Logf("Error closing UDP listener: %v", err)
			}
		})

		clientID := strconv.Itoa(i + 1)

		cert, err := acert.NewEphemeralIdentity("node-" + clientID)
		require.NoError(t, err)

		node, err := auctionnet.NewNode(ctx, log.With("node", i), auctionnet.NodeConfig{
			UDPConn: uc,
			QUIC:    auctionnet.DefaultQUICConfig(),
			TLS: &tls.Config{
				Certificates: []tls.Certificate{cert},
			},
			Topic:    topic,
			ClientID: clientID,
		})
		require.NoError(t, err)

		// This cleanup call necessitates that the context is
		// cancelled before the end of the test.
		t.Cleanup(node.Wait)

		nodes[i] = NetworkNode{
			Node: node,
			UDP:  uc,
		}
	}

	return &Network{
		Log:   log,
		Nodes: nodes,
	}
}

// Mesh connects every pair of nodes directly and waits until every
// node has the full broadcast set.
// Gossip is not relayed, so full visibility in tests requires the
// complete topology this provides.
func (n *Network) Mesh(t *testing.T, ctx context.Context) {
	t.Helper()

	for i := range n.Nodes {
		for j := i + 1; j < len(n.Nodes); j++ {
			addr := n.Nodes[j].Node.ListenAddr().String()
			require.NoError(t, n.Nodes[i].Node.DialPeer(ctx, addr))
		}
	}

	// Only the dialing side registers a connection synchronously;
	// the accepting side admits it from its accept loop.
	// An event broadcast before admission would silently miss that
	// peer, with no relay to make up for it later,
	// so don't hand the network to the test until every node
	// reports the complete set.
	want := len(n.Nodes) - 1
	for i := range n.Nodes {
		node := n.Nodes[i].Node
		require.Eventually(t, func() bool {
			conns, err := node.ListConnections(ctx)
			return err == nil && len(conns) == want
		}, 5*time.Second, 20*time.Millisecond,
			"node %d never saw all %d peers", i, want)
	}
}
