package controller

import (
	"context"
	"fmt"

	"github.com/arxgeo/geodist/internal/agent"
	"github.com/arxgeo/geodist/internal/cache"
	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/fabric"
	"github.com/arxgeo/geodist/internal/logger"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/query"
	"github.com/arxgeo/geodist/internal/shape"
	"github.com/arxgeo/geodist/internal/storage"
)

// HostController drives the cluster: it owns rank 0's own Agent (the
// host participates in the dataset just like every worker) plus a
// Fabric connection to every worker's controller, and
// turns each driver-facing operation into a broadcast/scatter/gather
// round.
type HostController struct {
	stateMachine

	cfg *config.Config
	ag  *agent.Agent
	log *logger.Logger
	fab *fabric.Fabric

	methods map[string]*partitioning.Method
	cache   *cache.ResultCache
}

// NewHostController builds a host controller with its own local agent
// (rank 0) and a Fabric already wired to peers (worker ranks 1..N).
func NewHostController(cfg *config.Config, peers []fabric.Peer) *HostController {
	resultCache, err := cache.New(cfg.CacheAddr)
	if err != nil {
		// A cache that fails to construct degrades to "always miss", not
		// a fatal startup error: query evaluation is correct either way.
		logger.Error("host: result cache disabled: %v", err)
	}

	h := &HostController{
		cfg:     cfg,
		ag:      agent.New(0),
		log:     logger.New("host", logger.INFO),
		fab:     fabric.NewFabric(peers),
		methods: make(map[string]*partitioning.Method),
		cache:   resultCache,
	}
	h.initialize()
	go h.ag.Run()
	h.markReady()
	return h
}

// Close tears down every peer connection and retires the local agent.
func (h *HostController) Close() {
	h.terminate()
	h.fab.Close()
	if h.cache != nil {
		h.cache.Close()
	}
	reply := make(chan agent.Result, 1)
	h.ag.Inbox() <- agent.Command{Kind: agent.CmdShutdown, Reply: reply}
	<-reply
}

// BroadcastConfig sends the process configuration to every worker
//. Every worker must ACK before the cluster
// is considered Ready.
func (h *HostController) BroadcastConfig() error {
	if err := h.enterBusy(SubNone); err != nil {
		return err
	}
	defer h.leaveBusy()

	payload := EncodeConfig(ConfigPayload{
		Partitioning: h.cfg.Partitioning,
		WorldSize:    int32(len(h.fab.PeerRanks())) + 1,
		MaxThreads:   h.cfg.MaxThreads,
		PersistPath:  h.cfg.Partitioning.Path,
	})
	replies := h.fab.Broadcast(func(rank int32) fabric.Message {
		return fabric.Message{Tag: fabric.TagBroadcastConfig, From: 0, Payload: payload}
	})
	return fabric.FirstError(replies)
}

// AssignPartitions tells every worker (and builds locally) the
// partitioning.Method for datasetID over dataspace, the grid scheme
// every subsequent LoadDataset batch for that dataset must be assigned
// against.
func (h *HostController) AssignPartitions(datasetID string, dataspace shape.MBR) error {
	if err := h.enterBusy(SubPartitioning); err != nil {
		return err
	}
	defer h.leaveBusy()

	worldSize := int32(len(h.fab.PeerRanks())) + 1
	method, err := partitioning.New(h.cfg.Partitioning, worldSize, dataspace)
	if err != nil {
		return err
	}
	h.methods[datasetID] = method

	payload := EncodeAssignPartitions(AssignPartitionsPayload{
		DatasetID:    datasetID,
		Dataspace:    dataspace,
		Partitioning: h.cfg.Partitioning,
		WorldSize:    worldSize,
	})
	replies := h.fab.Broadcast(func(rank int32) fabric.Message {
		return fabric.Message{Tag: fabric.TagAssignPartitions, From: 0, Payload: payload}
	})
	return fabric.FirstError(replies)
}

// LoadDataset routes each shape in shapes to every rank owning one of
// its assigned fine partitions, scattering one LoadDataset batch per worker and loading
// the host's own share directly into its local agent.
func (h *HostController) LoadDataset(datasetID string, dataType dataset.Type, shapes []*shape.Shape) error {
	if err := h.enterBusy(SubLoading); err != nil {
		return err
	}
	defer h.leaveBusy()

	method, ok := h.methods[datasetID]
	if !ok {
		return dberr.New(dberr.CodeConfig, "host: dataset "+datasetID+" has no partitioning assignment")
	}

	byRank := make(map[int32][]*shape.Shape)
	for _, s := range shapes {
		if err := method.AssignShape(s); err != nil {
			h.log.Warn("host: malformed shape %d skipped: %v", s.RecID, err)
			continue
		}
		seen := make(map[int32]bool)
		for _, pa := range s.Partitions {
			rank := method.NodeForFinePartition(pa.PartitionID)
			if seen[rank] {
				continue
			}
			seen[rank] = true
			byRank[rank] = append(byRank[rank], s)
		}
	}

	messages := make(map[int32]fabric.Message)
	for _, rank := range h.fab.PeerRanks() {
		payload, err := EncodeLoadDataset(LoadDatasetPayload{
			DatasetID: datasetID,
			DataType:  dataType,
			Dataspace: method.Dataspace,
			Shapes:    byRank[rank],
		})
		if err != nil {
			return err
		}
		messages[rank] = fabric.Message{Tag: fabric.TagLoadDataset, From: 0, Payload: payload}
	}
	replies := h.fab.Scatter(messages)
	if err := fabric.FirstError(replies); err != nil {
		return err
	}

	reply := make(chan agent.Result, 1)
	h.ag.Inbox() <- agent.Command{
		Kind:      agent.CmdLoadBatch,
		DatasetID: datasetID,
		DataType:  dataType,
		Shapes:    byRank[0],
		Reply:     reply,
	}
	res := <-reply
	if res.Err != nil {
		return res.Err
	}

	if h.cfg.Partitioning.Path != "" {
		if err := h.persistShare(datasetID, dataType, method.Dataspace, 0, byRank[0]); err != nil {
			return err
		}
	}
	return nil
}

// persistShare writes one rank's share of a just-loaded batch to the
// configured partition-file backend, guarded by Partitioning.Path being
// set. The host only ever persists its own rank-0 share here; each
// worker persists its own share independently in handleLoadDataset.
func (h *HostController) persistShare(datasetID string, dataType dataset.Type, dataspace shape.MBR, rank int32, shapes []*shape.Shape) error {
	backend, err := storage.NewLocalBackend(h.cfg.Partitioning.Path)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s/rank-%d.part", datasetID, rank)
	meta := dataset.Metadata{
		InternalID: datasetID,
		DataType:   dataType,
		FileType:   dataset.FileTypeBinary,
		Path:       key,
		Persist:    true,
		HaveBounds: true,
		Dataspace:  dataspace,
	}
	return storage.WritePartitionFile(context.Background(), backend, key, meta, shapes)
}

// BuildIndex tells every worker and the local agent to build both the
// two-layer MBR index and the uniform grid index for datasetID.
func (h *HostController) BuildIndex(datasetID string) error {
	if err := h.enterBusy(SubIndexing); err != nil {
		return err
	}
	defer h.leaveBusy()

	for _, kind := range []agent.CommandKind{agent.CmdBuildTwoLayerIndex, agent.CmdBuildUniformIndex} {
		reply := make(chan agent.Result, 1)
		h.ag.Inbox() <- agent.Command{Kind: kind, DatasetID: datasetID, Reply: reply}
		if res := <-reply; res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// RunQuery broadcasts q to every worker, evaluates it locally, and
// merges every partial Result into one cluster-wide answer. localNode
// identifies the host's own rank for a distance join's local pass
// (always 0, since the host's agent is always constructed with rank 0);
// each worker supplies its own rank independently rather than trusting
// a value carried over the wire.
func (h *HostController) RunQuery(q query.Query, localNode int32, threads int) (query.Result, error) {
	if err := h.enterBusy(SubEvaluating); err != nil {
		return nil, err
	}
	defer h.leaveBusy()

	ctx := context.Background()
	cacheKey := cache.QueryCacheKey(q)
	if h.cache != nil {
		if cached, found := h.cache.Get(ctx, cacheKey); found {
			return query.Deserialize(cached)
		}
	}

	var merged query.Result
	var err error
	if q.Type() == query.TypeDistanceJoin {
		merged, err = h.runDistanceJoin(q, localNode, threads)
	} else {
		merged, err = h.runSimpleQuery(q, localNode, threads)
	}
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if mergedBytes, err := merged.Serialize(); err == nil {
			h.cache.Set(ctx, cacheKey, mergedBytes)
		}
	}
	return merged, nil
}

// runSimpleQuery handles every query type except distance join: a plain
// broadcast/evaluate-locally/gather round, no traffic phase needed
// because range, kNN, and topology-relation joins only ever consult a
// node's own locally loaded partitions.
func (h *HostController) runSimpleQuery(q query.Query, localNode int32, threads int) (query.Result, error) {
	qBytes, err := q.Serialize()
	if err != nil {
		return nil, err
	}
	payload := EncodeQuery(QueryPayload{Query: qBytes, Threads: threads})

	replies := h.fab.Broadcast(func(rank int32) fabric.Message {
		return fabric.Message{Tag: fabric.TagQuery, From: 0, Payload: payload}
	})
	if err := fabric.FirstError(replies); err != nil {
		return nil, err
	}

	var method *partitioning.Method
	if m, ok := h.methods[q.DatasetR()]; ok {
		method = m
	}
	reply := make(chan agent.Result, 1)
	h.ag.Inbox() <- agent.Command{
		Kind:           agent.CmdEvaluate,
		DatasetID:      q.DatasetR(),
		OtherDatasetID: q.DatasetS(),
		Method:         method,
		Query:          q,
		LocalNode:      localNode,
		Threads:        threads,
		Reply:          reply,
	}
	res := <-reply
	if res.Err != nil {
		return nil, res.Err
	}

	merged := res.QueryResult
	for _, r := range replies {
		partial, err := query.Deserialize(r.Reply.Payload)
		if err != nil {
			return nil, err
		}
		if err := merged.Merge(partial); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// runDistanceJoin drives the full two-phase distance join: every node
// (host included) runs its local pass and reports the border shapes its
// scan found reaching a remote-owned cell; the host merges those
// borders per destination rank and ships each rank exactly the foreign
// shapes it needs to finish the join against its own local partitions.
// Without this traffic phase, any (r,s) pair within the join distance
// but straddling two nodes' partitions is never evaluated by either
// side and silently missed.
func (h *HostController) runDistanceJoin(q query.Query, localNode int32, threads int) (query.Result, error) {
	qBytes, err := q.Serialize()
	if err != nil {
		return nil, err
	}
	payload := EncodeQuery(QueryPayload{Query: qBytes, Threads: threads})

	replies := h.fab.Broadcast(func(rank int32) fabric.Message {
		return fabric.Message{Tag: fabric.TagQuery, From: 0, Payload: payload}
	})
	if err := fabric.FirstError(replies); err != nil {
		return nil, err
	}

	var method *partitioning.Method
	if m, ok := h.methods[q.DatasetR()]; ok {
		method = m
	}
	localReply := make(chan agent.Result, 1)
	h.ag.Inbox() <- agent.Command{
		Kind:           agent.CmdEvaluateDistanceJoinLocal,
		DatasetID:      q.DatasetR(),
		OtherDatasetID: q.DatasetS(),
		Method:         method,
		Query:          q,
		LocalNode:      localNode,
		Threads:        threads,
		Reply:          localReply,
	}
	hostRes := <-localReply
	if hostRes.Err != nil {
		return nil, hostRes.Err
	}

	merged := hostRes.QueryResult
	foreignR := make(map[int32]map[int64]*shape.Shape)
	foreignS := make(map[int32]map[int64]*shape.Shape)
	mergeBorderInto(foreignR, hostRes.BorderR)
	mergeBorderInto(foreignS, hostRes.BorderS)

	for _, r := range replies {
		djr, err := DecodeDJLocalResult(r.Reply.Payload)
		if err != nil {
			return nil, err
		}
		partial, err := query.Deserialize(djr.Pairs)
		if err != nil {
			return nil, err
		}
		if err := merged.Merge(partial); err != nil {
			return nil, err
		}
		mergeBorderInto(foreignR, djr.BorderR)
		mergeBorderInto(foreignS, djr.BorderS)
	}

	destRanks := make(map[int32]bool)
	for rank := range foreignR {
		destRanks[rank] = true
	}
	for rank := range foreignS {
		destRanks[rank] = true
	}

	batchMsgs := make(map[int32]fabric.Message)
	for rank := range destRanks {
		if rank == localNode {
			continue // the host's own batch is evaluated in-process below
		}
		batchPayload, err := EncodeBatch(BatchPayload{
			Query:    qBytes,
			DatasetR: q.DatasetR(),
			DatasetS: q.DatasetS(),
			ForeignR: foreignR[rank],
			ForeignS: foreignS[rank],
		})
		if err != nil {
			return nil, err
		}
		batchMsgs[rank] = fabric.Message{Tag: fabric.TagDistanceJoinBatch, From: 0, Payload: batchPayload}
	}
	if len(batchMsgs) > 0 {
		batchReplies := h.fab.Scatter(batchMsgs)
		if err := fabric.FirstError(batchReplies); err != nil {
			return nil, err
		}
		for _, r := range batchReplies {
			partial, err := query.Deserialize(r.Reply.Payload)
			if err != nil {
				return nil, err
			}
			if err := merged.Merge(partial); err != nil {
				return nil, err
			}
		}
	}

	if len(foreignR[localNode]) > 0 || len(foreignS[localNode]) > 0 {
		batchReply := make(chan agent.Result, 1)
		h.ag.Inbox() <- agent.Command{
			Kind:           agent.CmdEvaluateDistanceJoinBatch,
			DatasetID:      q.DatasetR(),
			OtherDatasetID: q.DatasetS(),
			Query:          q,
			ForeignR:       foreignR[localNode],
			ForeignS:       foreignS[localNode],
			Reply:          batchReply,
		}
		res := <-batchReply
		if res.Err != nil {
			return nil, res.Err
		}
		if err := merged.Merge(res.QueryResult); err != nil {
			return nil, err
		}
	}

	return merged, nil
}

// mergeBorderInto folds src's per-rank shape sets into dst, keyed by
// recID so the same shape reported by more than one origin collapses
// to one entry.
func mergeBorderInto(dst, src map[int32]map[int64]*shape.Shape) {
	for rank, shapes := range src {
		m, ok := dst[rank]
		if !ok {
			m = make(map[int64]*shape.Shape, len(shapes))
			dst[rank] = m
		}
		for recID, s := range shapes {
			m[recID] = s
		}
	}
}

// Terminate sends TagShutdown to every worker and closes the host.
func (h *HostController) Terminate() error {
	replies := h.fab.Broadcast(func(rank int32) fabric.Message {
		return fabric.Message{Tag: fabric.TagShutdown, From: 0}
	})
	err := fabric.FirstError(replies)
	h.Close()
	return err
}
