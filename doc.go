// Package auctionnet contains the core APIs for running a node in a
// peer-to-peer sealed-item auction network.
//
// Each node joins a rendezvous topic over a QUIC overlay,
// gossips auction lifecycle events (open, bid, close) to every
// directly-connected peer, and reconciles events it receives into a
// local auction table using the same rules it applies to its own
// operations.
//
// Gossip is best effort: events are not relayed beyond the first hop,
// there is no delivery or ordering guarantee across nodes,
// and any peer on the shared topic is equally trusted.
package auctionnet
