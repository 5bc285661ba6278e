// Package awire defines the messages exchanged between auction nodes,
// and their JSON wire encoding.
//
// Every message is a single self-describing record;
// one datagram on the overlay carries exactly one encoded message.
package awire
