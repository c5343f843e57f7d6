// Package agent implements the per-node Agent: the entity that owns one
// node's share of every dataset's partition data and evaluates queries
// against it. In original_source/agent.cpp and controller.cpp the agent
// is a separate OS process that talks to its controller over a
// parent-child channel, running the identical comm_worker-shaped event
// loop a worker controller does. This engine runs the agent as an
// in-process goroutine instead (see DESIGN.md's Open Question decision): its
// "parent-child channel" is a pair of Go channels rather than a second
// process and a second fabric connection, since nothing in this domain
// needs the agent to survive its controller crashing independently.
package agent

import (
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/logger"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/query"
	"github.com/arxgeo/geodist/internal/refine"
	"github.com/arxgeo/geodist/internal/shape"
	"github.com/arxgeo/geodist/internal/uniform"
)

// CommandKind tags the command variant the agent's inbox channel carries.
type CommandKind int

const (
	CmdConfigure CommandKind = iota
	CmdLoadBatch
	CmdUnload
	CmdBuildTwoLayerIndex
	CmdBuildUniformIndex
	CmdEvaluate
	CmdEvaluateDistanceJoinLocal
	CmdEvaluateDistanceJoinBatch
	CmdShutdown
)

// Command is one unit of work sent to an Agent's inbox. Only the fields
// relevant to Kind are populated; Reply always receives exactly one
// Result before the agent moves to the next command (matching the
// "write-once during partitioning/build-index, read-only during
// query" ordering — the agent is single-threaded over its own state, so
// this ordering holds without any lock).
type Command struct {
	Kind CommandKind

	DatasetID string
	DataType  dataset.Type
	Shapes    []*shape.Shape
	Method    *partitioning.Method

	Query         query.Query
	OtherDatasetID string // join/distance-join's S side

	LocalNode int32
	Threads   int
	Distance  float64
	ForeignR  map[int64]*shape.Shape
	ForeignS  map[int64]*shape.Shape

	Reply chan Result
}

// Result is what the agent sends back on Command.Reply.
type Result struct {
	Err error

	QueryResult query.Result

	BorderR, BorderS map[int32]map[int64]*shape.Shape // from a distance-join local pass, keyed by remote rank
}

// Agent owns this node's share of every dataset it has been told to
// load, plus the refiner/APRIL collaborators queries are evaluated
// against.
type Agent struct {
	rank    int32
	inbox   chan Command
	log     *logger.Logger
	refiner refine.Refiner
	april   refine.AprilFilter

	datasets map[string]*dataset.Dataset
}

// New constructs an Agent with Default refinement and no APRIL filter;
// callers needing a different Refiner/AprilFilter build one directly and
// assign the fields before calling Run (both are read-only once Run
// starts).
func New(rank int32) *Agent {
	return &Agent{
		rank:     rank,
		inbox:    make(chan Command, 32),
		log:      logger.New("agent", logger.INFO),
		refiner:  refine.Default{},
		april:    refine.Disabled{},
		datasets: make(map[string]*dataset.Dataset),
	}
}

// SetRefiner/SetAprilFilter override the default collaborators. Must be
// called before Run.
func (a *Agent) SetRefiner(r refine.Refiner)        { a.refiner = r }
func (a *Agent) SetAprilFilter(f refine.AprilFilter) { a.april = f }

// Inbox returns the channel callers send Commands on.
func (a *Agent) Inbox() chan<- Command { return a.inbox }

// Run processes commands from the inbox until a CmdShutdown arrives.
// Intended to be launched as `go agent.Run()`; every command and its
// reply are handled synchronously so dataset state never needs a lock.
func (a *Agent) Run() {
	for cmd := range a.inbox {
		if cmd.Kind == CmdShutdown {
			if cmd.Reply != nil {
				cmd.Reply <- Result{}
			}
			return
		}
		res := a.handle(cmd)
		if cmd.Reply != nil {
			cmd.Reply <- res
		}
	}
}

func (a *Agent) handle(cmd Command) Result {
	switch cmd.Kind {
	case CmdLoadBatch:
		return a.loadBatch(cmd)
	case CmdUnload:
		return a.unload(cmd)
	case CmdBuildTwoLayerIndex:
		return a.buildTwoLayerIndex(cmd)
	case CmdBuildUniformIndex:
		return a.buildUniformIndex(cmd)
	case CmdEvaluate:
		return a.evaluate(cmd)
	case CmdEvaluateDistanceJoinLocal:
		return a.evaluateDistanceJoinLocal(cmd)
	case CmdEvaluateDistanceJoinBatch:
		return a.evaluateDistanceJoinBatch(cmd)
	default:
		return Result{Err: dberr.New(dberr.CodeCommunication, "agent: unrecognized command kind")}
	}
}

func (a *Agent) datasetFor(id string) (*dataset.Dataset, error) {
	ds, ok := a.datasets[id]
	if !ok {
		return nil, dberr.New(dberr.CodeQuery, "agent: dataset "+id+" not loaded")
	}
	return ds, nil
}

func (a *Agent) loadBatch(cmd Command) Result {
	ds, ok := a.datasets[cmd.DatasetID]
	if !ok {
		ds = dataset.New(cmd.DataType, "", false)
		a.datasets[cmd.DatasetID] = ds
	}
	for _, s := range cmd.Shapes {
		if cmd.Method != nil {
			if err := cmd.Method.AssignShape(s); err != nil {
				a.log.Warn("agent: malformed shape %d skipped: %v", s.RecID, err)
				continue
			}
		}
		ds.Add(s)
	}
	return Result{}
}

func (a *Agent) unload(cmd Command) Result {
	if ds, ok := a.datasets[cmd.DatasetID]; ok {
		ds.Unload()
		delete(a.datasets, cmd.DatasetID)
	}
	return Result{}
}

func (a *Agent) buildTwoLayerIndex(cmd Command) Result {
	ds, err := a.datasetFor(cmd.DatasetID)
	if err != nil {
		return Result{Err: err}
	}
	if err := ds.BuildTwoLayerIndex(); err != nil {
		return Result{Err: err}
	}
	return Result{}
}

func (a *Agent) buildUniformIndex(cmd Command) Result {
	ds, err := a.datasetFor(cmd.DatasetID)
	if err != nil {
		return Result{Err: err}
	}
	if err := ds.BuildUniformIndex(); err != nil {
		return Result{Err: err}
	}
	return Result{}
}

func (a *Agent) evaluate(cmd Command) Result {
	r, err := a.datasetFor(cmd.DatasetID)
	if err != nil {
		return Result{Err: err}
	}

	switch cmd.Query.Type() {
	case query.TypeRange:
		res, err := query.EvaluateRange(cmd.Query, r, cmd.Method, a.refiner)
		if err != nil {
			return Result{Err: err}
		}
		return Result{QueryResult: res}
	case query.TypeKNN:
		res, err := query.EvaluateKNN(cmd.Query, r, cmd.Method)
		if err != nil {
			return Result{Err: err}
		}
		return Result{QueryResult: res}
	case query.TypeJoin:
		s, err := a.datasetFor(cmd.OtherDatasetID)
		if err != nil {
			return Result{Err: err}
		}
		res, err := query.EvaluateJoin(cmd.Query, r, s, a.refiner, a.april)
		if err != nil {
			return Result{Err: err}
		}
		return Result{QueryResult: res}
	default:
		return Result{Err: dberr.New(dberr.CodeQuery, "agent: use CmdEvaluateDistanceJoinLocal for distance joins")}
	}
}

func (a *Agent) evaluateDistanceJoinLocal(cmd Command) Result {
	r, err := a.datasetFor(cmd.DatasetID)
	if err != nil {
		return Result{Err: err}
	}
	s, err := a.datasetFor(cmd.OtherDatasetID)
	if err != nil {
		return Result{Err: err}
	}
	pairs, borderR, borderS, err := query.EvaluateDistanceJoinLocal(cmd.Query, r, s, cmd.Method, cmd.LocalNode, cmd.Threads)
	if err != nil {
		return Result{Err: err}
	}
	return Result{
		QueryResult: pairs,
		BorderR:     borderMapByRank(borderR, r),
		BorderS:     borderMapByRank(borderS, s),
	}
}

func borderMapByRank(bm uniform.BorderMap, ds *dataset.Dataset) map[int32]map[int64]*shape.Shape {
	out := make(map[int32]map[int64]*shape.Shape)
	for rank, recIDs := range bm {
		m := make(map[int64]*shape.Shape, len(recIDs))
		for _, recID := range recIDs {
			m[recID] = ds.Get(recID)
		}
		out[rank] = m
	}
	return out
}

func (a *Agent) evaluateDistanceJoinBatch(cmd Command) Result {
	r, err := a.datasetFor(cmd.DatasetID)
	if err != nil {
		return Result{Err: err}
	}
	s, err := a.datasetFor(cmd.OtherDatasetID)
	if err != nil {
		return Result{Err: err}
	}
	pairs := query.NewIdPairSet()
	query.EvaluateDistanceJoinBatch(cmd.Query, cmd.ForeignR, cmd.ForeignS, r, s, pairs)
	return Result{QueryResult: pairs}
}
