package awire_test

import (
	"testing"

	"github.com/cjmont/p2p-auction-th/awire"
	"github.com/stretchr/testify/require"
)

func TestDecode_roundTripsEachKind(t *testing.T) {
	t.Parallel()

	msgs := []awire.Message{
		{Type: awire.KindAuction, ItemID: "pic1", Price: 100, ClientID: "1"},
		{Type: awire.KindBid, ItemID: "pic1", BidPrice: 150, ClientID: "2"},
		{
			Type: awire.KindClose, ItemID: "pic1",
			Winner: &awire.WinningBid{ClientID: "2", BidPrice: 150},
		},
	}

	for _, want := range msgs {
		b, err := awire.Encode(want)
		require.NoError(t, err)

		got, err := awire.Decode(b)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDecode_closeWithoutWinner(t *testing.T) {
	t.Parallel()

	// An auction closed before any bid was accepted
	// carries no winningBid on the wire.
	b, err := awire.Encode(awire.Message{
		Type:   awire.KindClose,
		ItemID: "pic1",
	})
	require.NoError(t, err)
	require.NotContains(t, string(b), "winningBid")

	got, err := awire.Decode(b)
	require.NoError(t, err)
	require.Nil(t, got.Winner)
}

func TestDecode_rejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	for _, payload := range [][]byte{
		nil,
		[]byte(""),
		[]byte("not json at all"),
		[]byte(`{"type":"auction"}`),                // missing item ID
		[]byte(`{"type":"shutdown","picId":"x"}`),   // unknown kind
		[]byte(`{"type":"bid","picId":"x","bidPrice":"high"}`), // wrong field type
	} {
		_, err := awire.Decode(payload)
		require.Error(t, err)

		var de awire.DecodeError
		require.ErrorAs(t, err, &de)
	}
}

func TestDecode_acceptsForeignFields(t *testing.T) {
	t.Parallel()

	// Peers on the shared topic are not version-negotiated;
	// unknown fields from newer or foreign peers are ignored.
	got, err := awire.Decode([]byte(
		`{"type":"auction","picId":"pic9","price":42,"clientId":"7","hmac":"zzz"}`,
	))
	require.NoError(t, err)
	require.Equal(t, "pic9", got.ItemID)
	require.Equal(t, 42.0, got.Price)
}
