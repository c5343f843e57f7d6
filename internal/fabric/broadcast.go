package fabric

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/metrics"
)

// Peer is one addressable cluster member from the host controller's
// point of view: a worker's controller listens on Addr for commands,
// including the distance-join traffic phase's batches relayed by the host.
type Peer struct {
	Rank   int32
	Addr   string
	client *Client
}

// Fabric owns one Client per peer and drives the host controller's
// broadcast (same message, every peer), scatter (distinct message per
// peer), and gather (collect one reply per peer) primitives.
type Fabric struct {
	peers []*Peer
}

// NewFabric wires a Client to every peer. Connections are dialed lazily
// on first use.
func NewFabric(peers []Peer) *Fabric {
	f := &Fabric{peers: make([]*Peer, len(peers))}
	for i := range peers {
		p := peers[i]
		p.client = NewClient(p.Addr, 0)
		f.peers[i] = &p
	}
	return f
}

// Close releases every peer connection.
func (f *Fabric) Close() {
	for _, p := range f.peers {
		p.client.Close()
	}
}

// PeerRanks returns every peer's rank, in the order NewFabric received
// them.
func (f *Fabric) PeerRanks() []int32 {
	ranks := make([]int32, len(f.peers))
	for i, p := range f.peers {
		ranks[i] = p.Rank
	}
	return ranks
}

// GatheredReply pairs a peer's rank with the reply it returned, so a
// gather caller can attribute failures and merge results per origin.
type GatheredReply struct {
	Rank  int32
	Reply Message
	Err   error
}

// Broadcast sends the same message to every peer concurrently and waits
// for all replies. It never aborts early on a single peer error — the
// cluster's "gather" phase needs every peer's outcome, including NACKs,
// to decide whether a command as a whole succeeded (controller state
// machine's Busy->Ready transition waits on the full set).
func (f *Fabric) Broadcast(buildMessage func(rank int32) Message) []GatheredReply {
	start := time.Now()
	out := make([]GatheredReply, len(f.peers))
	var g errgroup.Group
	for i, p := range f.peers {
		i, p := i, p
		g.Go(func() error {
			msg := buildMessage(p.Rank)
			reply, err := p.client.Send(msg)
			if err != nil {
				out[i] = GatheredReply{Rank: p.Rank, Err: err}
				return nil // collected in out, not propagated: see doc comment
			}
			out[i] = GatheredReply{Rank: p.Rank, Reply: *reply}
			return nil
		})
	}
	_ = g.Wait() // every Go func above always returns nil; errors ride in out
	if metrics.Default != nil {
		metrics.ObserveDuration(metrics.Default.BroadcastLatency, start)
	}
	return out
}

// Scatter sends a distinct message per peer (e.g. each worker's own
// partition assignment) concurrently and waits for all replies.
func (f *Fabric) Scatter(messages map[int32]Message) []GatheredReply {
	start := time.Now()
	out := make([]GatheredReply, 0, len(messages))
	results := make(chan GatheredReply, len(messages))
	var g errgroup.Group
	for _, p := range f.peers {
		msg, ok := messages[p.Rank]
		if !ok {
			continue
		}
		p := p
		msg := msg
		g.Go(func() error {
			reply, err := p.client.Send(msg)
			if err != nil {
				results <- GatheredReply{Rank: p.Rank, Err: err}
				return nil
			}
			results <- GatheredReply{Rank: p.Rank, Reply: *reply}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for r := range results {
		out = append(out, r)
	}
	if metrics.Default != nil {
		metrics.ObserveDuration(metrics.Default.GatherLatency, start)
	}
	return out
}

// FirstError returns the first non-nil error among replies, or a
// synthesized DBERR_COMMUNICATION error if any reply's tag is TagNack,
// or nil if every peer acknowledged.
func FirstError(replies []GatheredReply) error {
	for _, r := range replies {
		if r.Err != nil {
			return r.Err
		}
		if r.Reply.Tag == TagNack {
			nack, err := DecodeNack(r.Reply.Payload)
			if err != nil {
				return dberr.New(dberr.CodeCommunication, "peer NACK (undecodable)")
			}
			return dberr.New(dberr.CodeCommunication, "peer "+nack.CommandID+" failed: "+nack.Err)
		}
	}
	return nil
}
