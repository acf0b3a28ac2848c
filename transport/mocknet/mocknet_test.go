package mocknet_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andrebq/spdz-mpc/transport"
	"github.com/andrebq/spdz-mpc/transport/mocknet"
)

func TestSendToAndRecvAny(t *testing.T) {
	meshes := mocknet.New([]transport.PartyID{1, 2})
	require.NoError(t, meshes[1].SendTo(2, []byte("hello")))

	peer, payload, err := meshes[2].RecvAny(time.Second)
	require.NoError(t, err)
	require.Equal(t, transport.PartyID(1), peer)
	require.Equal(t, "hello", string(payload))
}

func TestRecvAnyTimesOutWithNoTraffic(t *testing.T) {
	meshes := mocknet.New([]transport.PartyID{1, 2})
	peer, payload, err := meshes[1].RecvAny(10 * time.Millisecond)
	require.NoError(t, err)
	require.Zero(t, peer)
	require.Nil(t, payload)
}

func TestBroadcastReachesEveryOtherParty(t *testing.T) {
	meshes := mocknet.New([]transport.PartyID{1, 2, 3})
	require.NoError(t, meshes[1].Broadcast([]byte("hi")))

	for _, id := range []transport.PartyID{2, 3} {
		peer, payload, err := meshes[id].RecvAny(time.Second)
		require.NoError(t, err)
		require.Equal(t, transport.PartyID(1), peer)
		require.Equal(t, "hi", string(payload))
	}
}

func TestReplyGoesBackToLastSender(t *testing.T) {
	meshes := mocknet.New([]transport.PartyID{1, 2})
	require.NoError(t, meshes[1].SendTo(2, []byte("ping")))
	_, _, err := meshes[2].RecvAny(time.Second)
	require.NoError(t, err)
	require.NoError(t, meshes[2].Reply([]byte("pong")))

	peer, payload, err := meshes[1].RecvAny(time.Second)
	require.NoError(t, err)
	require.Equal(t, transport.PartyID(2), peer)
	require.Equal(t, "pong", string(payload))
}

func TestRecvFromBuffersUnrelatedSenders(t *testing.T) {
	meshes := mocknet.New([]transport.PartyID{1, 2, 3})
	require.NoError(t, meshes[2].SendTo(1, []byte("from2")))
	require.NoError(t, meshes[3].SendTo(1, []byte("from3")))

	got, err := meshes[1].RecvFrom(3, time.Second)
	require.NoError(t, err)
	require.Equal(t, "from3", string(got))

	got, err = meshes[1].RecvFrom(2, time.Second)
	require.NoError(t, err)
	require.Equal(t, "from2", string(got))
}

func TestSendToClosedMeshFails(t *testing.T) {
	meshes := mocknet.New([]transport.PartyID{1, 2})
	require.NoError(t, meshes[2].Close())
	err := meshes[1].SendTo(2, []byte("x"))
	require.ErrorIs(t, err, transport.ErrClosed)
}

func TestSendToUnknownPeerFails(t *testing.T) {
	meshes := mocknet.New([]transport.PartyID{1, 2})
	err := meshes[1].SendTo(99, []byte("x"))
	require.ErrorIs(t, err, transport.ErrUnknownPeer)
}
