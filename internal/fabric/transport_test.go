package fabric

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(conn net.Conn, msg Message) *Message {
	switch msg.Tag {
	case TagQuery:
		reply := Message{Tag: TagAck, From: -1, Payload: EncodeAck(AckPayload{CommandID: string(msg.Payload)})}
		return &reply
	default:
		reply := Message{Tag: TagNack, From: -1, Payload: EncodeNack(NackPayload{CommandID: "?", Err: "unhandled tag"})}
		return &reply
	}
}

func TestServerClientRoundTrip(t *testing.T) {
	srv := NewServer("127.0.0.1:0", echoHandler)
	addr, err := srv.Start()
	require.NoError(t, err)
	defer srv.Stop()

	client := NewClient(addr, 2*time.Second)
	defer client.Close()

	reply, err := client.Send(Message{Tag: TagQuery, From: 1, Payload: []byte("q-42")})
	require.NoError(t, err)
	require.Equal(t, TagAck, reply.Tag)

	ack, err := DecodeAck(reply.Payload)
	require.NoError(t, err)
	assert.Equal(t, "q-42", ack.CommandID)
}

func TestFabricBroadcastGathersEveryPeer(t *testing.T) {
	const n = 3
	var servers []*Server
	peers := make([]Peer, n)
	for i := 0; i < n; i++ {
		srv := NewServer("127.0.0.1:0", echoHandler)
		addr, err := srv.Start()
		require.NoError(t, err)
		servers = append(servers, srv)
		peers[i] = Peer{Rank: int32(i), Addr: addr}
	}
	defer func() {
		for _, s := range servers {
			s.Stop()
		}
	}()

	f := NewFabric(peers)
	defer f.Close()

	replies := f.Broadcast(func(rank int32) Message {
		return Message{Tag: TagQuery, From: -1, Payload: []byte("cfg")}
	})
	require.Len(t, replies, n)
	for _, r := range replies {
		require.NoError(t, r.Err)
		assert.Equal(t, TagAck, r.Reply.Tag)
	}
	assert.NoError(t, FirstError(replies))
}

func TestFabricScatterDistinctPayloadPerPeer(t *testing.T) {
	srv1 := NewServer("127.0.0.1:0", echoHandler)
	addr1, err := srv1.Start()
	require.NoError(t, err)
	defer srv1.Stop()

	srv2 := NewServer("127.0.0.1:0", echoHandler)
	addr2, err := srv2.Start()
	require.NoError(t, err)
	defer srv2.Stop()

	f := NewFabric([]Peer{{Rank: 0, Addr: addr1}, {Rank: 1, Addr: addr2}})
	defer f.Close()

	replies := f.Scatter(map[int32]Message{
		0: {Tag: TagQuery, Payload: []byte("part-0")},
		1: {Tag: TagQuery, Payload: []byte("part-1")},
	})
	require.Len(t, replies, 2)
	seen := map[string]bool{}
	for _, r := range replies {
		require.NoError(t, r.Err)
		ack, err := DecodeAck(r.Reply.Payload)
		require.NoError(t, err)
		seen[ack.CommandID] = true
	}
	assert.Equal(t, map[string]bool{"part-0": true, "part-1": true}, seen)
}

func TestFirstErrorReportsPeerNack(t *testing.T) {
	srv := NewServer("127.0.0.1:0", echoHandler)
	addr, err := srv.Start()
	require.NoError(t, err)
	defer srv.Stop()

	f := NewFabric([]Peer{{Rank: 0, Addr: addr}})
	defer f.Close()

	replies := f.Broadcast(func(rank int32) Message {
		return Message{Tag: TagLoadDataset} // echoHandler NACKs any non-Query tag
	})
	assert.Error(t, FirstError(replies))
}
