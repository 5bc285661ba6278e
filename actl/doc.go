// Package actl exposes a node's control surface:
// a small HTTP API through which an operator opens auctions,
// places bids, closes auctions, and inspects peer connections
// on behalf of that node.
//
// The control surface is a thin facade.
// All auction semantics live behind the [Backend] interface;
// handlers only translate requests and map outcomes to responses.
package actl
