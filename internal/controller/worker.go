package controller

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/arxgeo/geodist/internal/agent"
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/fabric"
	"github.com/arxgeo/geodist/internal/logger"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/query"
	"github.com/arxgeo/geodist/internal/shape"
	"github.com/arxgeo/geodist/internal/storage"
)

// WorkerController owns one node's Agent and the fabric.Server that
// accepts the host's commands for it. Every inbound Message is turned
// into exactly one agent.Command, and the agent.Result that comes back
// becomes exactly one reply Message.
type WorkerController struct {
	stateMachine

	rank int32
	ag   *agent.Agent
	log  *logger.Logger
	srv  *fabric.Server
	done chan struct{}
	stop sync.Once // guards Shutdown's teardown

	methods     map[string]*partitioning.Method // per-dataset, from the most recent AssignPartitions
	persistPath string                          // set by BroadcastConfig; empty means no partition-file persistence
}

// NewWorkerController builds a controller for rank, with its own Agent
// already running in the background.
func NewWorkerController(rank int32) *WorkerController {
	w := &WorkerController{
		rank:    rank,
		ag:      agent.New(rank),
		log:     logger.New("worker", logger.INFO),
		done:    make(chan struct{}),
		methods: make(map[string]*partitioning.Method),
	}
	w.initialize()
	go w.ag.Run()
	return w
}

// Done returns a channel closed once Shutdown has finished tearing down
// the server and the agent, letting a standalone process block until a
// remote TagShutdown (or a local call) has fully retired the worker.
func (w *WorkerController) Done() <-chan struct{} {
	return w.done
}

// Listen starts the fabric server on addr ("" or ":0" for an ephemeral
// port) and returns the address actually bound.
func (w *WorkerController) Listen(addr string) (string, error) {
	w.srv = fabric.NewServer(addr, w.dispatch)
	bound, err := w.srv.Start()
	if err != nil {
		return "", err
	}
	w.markReady()
	return bound, nil
}

// Shutdown stops accepting connections and retires the agent. Safe to
// call more than once; only the first call closes Done.
func (w *WorkerController) Shutdown() {
	w.stop.Do(func() {
		w.terminate()
		if w.srv != nil {
			w.srv.Stop()
		}
		reply := make(chan agent.Result, 1)
		w.ag.Inbox() <- agent.Command{Kind: agent.CmdShutdown, Reply: reply}
		<-reply
		close(w.done)
	})
}

func (w *WorkerController) dispatch(_ net.Conn, msg fabric.Message) *fabric.Message {
	reply, err := w.handleMessage(msg)
	if err != nil {
		return nackFor(msg, err)
	}
	return reply
}

func (w *WorkerController) handleMessage(msg fabric.Message) (*fabric.Message, error) {
	switch msg.Tag {
	case fabric.TagBroadcastConfig:
		return w.handleBroadcastConfig(msg)
	case fabric.TagAssignPartitions:
		return w.handleAssignPartitions(msg)
	case fabric.TagLoadDataset:
		return w.handleLoadDataset(msg)
	case fabric.TagUnloadDataset:
		return w.handleUnloadDataset(msg)
	case fabric.TagQuery:
		return w.handleQuery(msg)
	case fabric.TagDistanceJoinBatch:
		return w.handleDistanceJoinBatch(msg)
	case fabric.TagShutdown:
		go w.Shutdown() // respond with the ack before tearing the server down under itself
		return ackFor(msg), nil
	case fabric.TagHeartbeat:
		return nil, nil // fire-and-forget: Client.Send reads no reply for it
	default:
		return nil, dberr.New(dberr.CodeCommunication, "worker: unrecognized tag "+msg.Tag.String())
	}
}

func (w *WorkerController) handleBroadcastConfig(msg fabric.Message) (*fabric.Message, error) {
	if err := w.enterBusy(SubNone); err != nil {
		return nil, err
	}
	defer w.leaveBusy()
	cfg, err := DecodeConfig(msg.Payload)
	if err != nil {
		return nil, err
	}
	w.persistPath = cfg.PersistPath
	return ackFor(msg), nil
}

func (w *WorkerController) handleAssignPartitions(msg fabric.Message) (*fabric.Message, error) {
	if err := w.enterBusy(SubPartitioning); err != nil {
		return nil, err
	}
	defer w.leaveBusy()

	p, err := DecodeAssignPartitions(msg.Payload)
	if err != nil {
		return nil, err
	}
	method, err := partitioning.New(p.Partitioning, p.WorldSize, p.Dataspace)
	if err != nil {
		return nil, err
	}
	w.methods[p.DatasetID] = method
	return ackFor(msg), nil
}

func (w *WorkerController) handleLoadDataset(msg fabric.Message) (*fabric.Message, error) {
	if err := w.enterBusy(SubLoading); err != nil {
		return nil, err
	}
	defer w.leaveBusy()

	p, err := DecodeLoadDataset(msg.Payload)
	if err != nil {
		return nil, err
	}
	// Shapes already carry their partition assignments from the host's
	// routing pass (Shape.Serialize round-trips Partitions); do not pass
	// a Method here or loadBatch would assign them a second time.
	reply := make(chan agent.Result, 1)
	w.ag.Inbox() <- agent.Command{
		Kind:      agent.CmdLoadBatch,
		DatasetID: p.DatasetID,
		DataType:  p.DataType,
		Shapes:    p.Shapes,
		Reply:     reply,
	}
	res := <-reply
	if res.Err != nil {
		return nil, res.Err
	}

	if w.persistPath != "" {
		if err := w.persistShare(p.DatasetID, p.DataType, p.Dataspace, p.Shapes); err != nil {
			return nil, err
		}
	}
	return ackFor(msg), nil
}

// persistShare writes this worker's own share of a just-loaded batch to
// the configured partition-file backend, guarded by persistPath being
// set from the most recent BroadcastConfig.
func (w *WorkerController) persistShare(datasetID string, dataType dataset.Type, dataspace shape.MBR, shapes []*shape.Shape) error {
	backend, err := storage.NewLocalBackend(w.persistPath)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s/rank-%d.part", datasetID, w.rank)
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

func (w *WorkerController) handleUnloadDataset(msg fabric.Message) (*fabric.Message, error) {
	if err := w.enterBusy(SubNone); err != nil {
		return nil, err
	}
	defer w.leaveBusy()

	datasetID, err := DecodeDatasetID(msg.Payload)
	if err != nil {
		return nil, err
	}
	reply := make(chan agent.Result, 1)
	w.ag.Inbox() <- agent.Command{Kind: agent.CmdUnload, DatasetID: datasetID, Reply: reply}
	res := <-reply
	delete(w.methods, datasetID)
	if res.Err != nil {
		return nil, res.Err
	}
	return ackFor(msg), nil
}

func (w *WorkerController) handleQuery(msg fabric.Message) (*fabric.Message, error) {
	if err := w.enterBusy(SubEvaluating); err != nil {
		return nil, err
	}
	defer w.leaveBusy()

	qp, err := DecodeQuery(msg.Payload)
	if err != nil {
		return nil, err
	}
	q, err := query.DeserializeQuery(qp.Query)
	if err != nil {
		return nil, err
	}

	reply := make(chan agent.Result, 1)
	cmd := agent.Command{
		DatasetID:      q.DatasetR(),
		OtherDatasetID: q.DatasetS(),
		Method:         w.methods[q.DatasetR()],
		Query:          q,
		LocalNode:      w.rank,
		Threads:        qp.Threads,
		Reply:          reply,
	}
	if q.Type() == query.TypeDistanceJoin {
		cmd.Kind = agent.CmdEvaluateDistanceJoinLocal
	} else {
		cmd.Kind = agent.CmdEvaluate
	}
	w.ag.Inbox() <- cmd
	res := <-reply
	if res.Err != nil {
		return nil, res.Err
	}

	if q.Type() == query.TypeDistanceJoin {
		pairs, err := res.QueryResult.Serialize()
		if err != nil {
			return nil, err
		}
		payload, err := EncodeDJLocalResult(DJLocalResultPayload{Pairs: pairs, BorderR: res.BorderR, BorderS: res.BorderS})
		if err != nil {
			return nil, err
		}
		return &fabric.Message{Tag: fabric.TagDistanceJoinLocalResult, From: w.rank, Payload: payload}, nil
	}

	payload, err := res.QueryResult.Serialize()
	if err != nil {
		return nil, err
	}
	return &fabric.Message{Tag: fabric.TagQueryResult, From: w.rank, Payload: payload}, nil
}

func (w *WorkerController) handleDistanceJoinBatch(msg fabric.Message) (*fabric.Message, error) {
	if err := w.enterBusy(SubEvaluating); err != nil {
		return nil, err
	}
	defer w.leaveBusy()

	batch, err := DecodeBatch(msg.Payload)
	if err != nil {
		return nil, err
	}
	q, err := query.DeserializeQuery(batch.Query)
	if err != nil {
		return nil, err
	}
	reply := make(chan agent.Result, 1)
	w.ag.Inbox() <- agent.Command{
		Kind:           agent.CmdEvaluateDistanceJoinBatch,
		DatasetID:      batch.DatasetR,
		OtherDatasetID: batch.DatasetS,
		Query:          q,
		ForeignR:       batch.ForeignR,
		ForeignS:       batch.ForeignS,
		Reply:          reply,
	}
	res := <-reply
	if res.Err != nil {
		return nil, res.Err
	}
	payload, err := res.QueryResult.Serialize()
	if err != nil {
		return nil, err
	}
	return &fabric.Message{Tag: fabric.TagQueryResult, From: w.rank, Payload: payload}, nil
}

func ackFor(msg fabric.Message) *fabric.Message {
	return &fabric.Message{Tag: fabric.TagAck, From: msg.From, Payload: fabric.EncodeAck(fabric.AckPayload{})}
}

func nackFor(msg fabric.Message, err error) *fabric.Message {
	return &fabric.Message{Tag: fabric.TagNack, From: msg.From, Payload: fabric.EncodeNack(fabric.NackPayload{Err: err.Error()})}
}
