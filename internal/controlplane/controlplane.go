// Package controlplane implements the host process's driver-facing
// control surface: the init/prepare/execute/terminate lifecycle the
// driver CLI describes, translated into HostController calls. It is the
// glue between an HTTP request body and the lower internal/controller,
// internal/loader, and internal/query APIs, kept independent of the
// transport (chi router in router.go) so it can be exercised directly
// in tests without starting a server.
package controlplane

import (
	"fmt"
	"strings"
	"time"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/controller"
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/fabric"
	"github.com/arxgeo/geodist/internal/loader"
	"github.com/arxgeo/geodist/internal/logger"
	"github.com/arxgeo/geodist/internal/query"
	"github.com/arxgeo/geodist/internal/shape"
)

// datasetR and datasetS are the two fixed internal dataset ids every
// operation uses. The driver CLI never names a dataset itself (its
// flags are just file paths), so the control plane assigns the role by
// position: the left-hand/primary dataset is always "R", the
// right-hand one — present only for a spatialJoins prepare — is "S".
const (
	datasetR = "R"
	datasetS = "S"
)

// PrepareRequest mirrors the driver's `prepare` flags
// field for field; only the fields relevant to QueryType are read, the
// rest are ignored, exactly as the CLI documents.
type PrepareRequest struct {
	BatchID         string
	QueryType       string
	Dataset         string
	QueryDataset    string
	LeftDataset     string
	RightDataset    string
	SpatialDataType string
	QuerySetType    string
	KValue          int
	Predicate       string
}

type preparedBatch struct {
	queries []query.Query
}

// Server holds the one HostController a running host process manages
// across the separate init/prepare/execute/terminate OS-process
// invocations the driver CLI makes. It is safe for concurrent use,
// though the CLI model never actually issues overlapping requests.
type Server struct {
	cfg *config.Config
	log *logger.Logger
	hub *Hub

	mu       chan struct{} // 1-buffered mutex; see lock/unlock below
	host     *controller.HostController
	prepared *preparedBatch
}

// NewServer builds a Server bound to cfg. cfg.MaxThreads governs the
// thread count every RunQuery call during execute uses.
func NewServer(cfg *config.Config, hub *Hub) *Server {
	s := &Server{
		cfg: cfg,
		log: logger.New("controlplane", logger.INFO),
		hub: hub,
		mu:  make(chan struct{}, 1),
	}
	s.mu <- struct{}{}
	return s
}

func (s *Server) lock()   { <-s.mu }
func (s *Server) unlock() { s.mu <- struct{}{} }

func (s *Server) emit(stage, format string, args ...interface{}) {
	s.log.Info(stage+": "+format, args...)
	if s.hub != nil {
		s.hub.Broadcast(ProgressEvent{Stage: stage, Message: fmt.Sprintf(format, args...)})
	}
}

// Init brings up the cluster against peers (bare host names get ":1"
// appended; host:port entries are used as given, see peerAddr) and broadcasts the process
// configuration to every one of them.
func (s *Server) Init(peers []string) error {
	s.lock()
	defer s.unlock()

	if s.host != nil {
		return dberr.New(dberr.CodeConfig, "cluster already initialized; terminate first")
	}
	if len(peers) == 0 {
		return dberr.New(dberr.CodeConfig, "init requires at least one peer host")
	}

	fabricPeers := make([]fabric.Peer, len(peers))
	for i, host := range peers {
		fabricPeers[i] = fabric.Peer{Rank: int32(i + 1), Addr: peerAddr(host)}
	}

	s.emit("init", "bringing up cluster with %d peer(s)", len(peers))
	h := controller.NewHostController(s.cfg, fabricPeers)
	if err := h.BroadcastConfig(); err != nil {
		h.Close()
		return err
	}
	s.host = h
	s.emit("init", "cluster ready")
	return nil
}

// Prepare loads the dataset(s) PrepareRequest names, builds their
// indexes, and constructs the query batch that Execute will run.
func (s *Server) Prepare(req PrepareRequest) error {
	s.lock()
	defer s.unlock()

	if s.host == nil {
		return dberr.New(dberr.CodeConfig, "cluster not initialized; run init first")
	}

	idPrefix := req.BatchID
	if idPrefix == "" {
		idPrefix = "batch"
	}

	switch req.QueryType {
	case query.TypeRange.String():
		return s.prepareRange(req, idPrefix)
	case query.TypeKNN.String():
		return s.prepareKNN(req, idPrefix)
	case "spatialJoins":
		return s.prepareJoin(req, idPrefix)
	default:
		return dberr.New(dberr.CodeQuery, "unknown queryType "+req.QueryType)
	}
}

func (s *Server) prepareRange(req PrepareRequest, idPrefix string) error {
	dt, err := parseDataType(req.SpatialDataType)
	if err != nil {
		return err
	}
	if err := s.loadAndIndex(datasetR, req.Dataset, dt); err != nil {
		return err
	}

	qdt, err := parseDataType(req.QuerySetType)
	if err != nil {
		return err
	}
	windows, _, err := loader.Load(req.QueryDataset, qdt, dataset.FileTypeCSV)
	if err != nil {
		return err
	}

	batch := &preparedBatch{}
	for i, w := range windows {
		var q query.Query
		if w.Type == shape.TypePolygon || w.Type == shape.TypeLineString {
			q = query.NewRangeQueryPolygon(fmt.Sprintf("%s-%d", idPrefix, i), datasetR, w.Coordinates)
		} else {
			q = query.NewRangeQueryBox(fmt.Sprintf("%s-%d", idPrefix, i), datasetR, w.MBR)
		}
		batch.queries = append(batch.queries, q)
	}
	s.emit("prepare", "range query batch ready: %d window(s) over dataset %s", len(batch.queries), datasetR)
	s.prepared = batch
	return nil
}

func (s *Server) prepareKNN(req PrepareRequest, idPrefix string) error {
	dt, err := parseDataType(req.SpatialDataType)
	if err != nil {
		return err
	}
	if err := s.loadAndIndex(datasetR, req.Dataset, dt); err != nil {
		return err
	}

	qdt, err := parseDataType(req.QuerySetType)
	if err != nil {
		return err
	}
	points, _, err := loader.Load(req.QueryDataset, qdt, dataset.FileTypeCSV)
	if err != nil {
		return err
	}

	batch := &preparedBatch{}
	for i, p := range points {
		q, err := query.NewKNNQuery(fmt.Sprintf("%s-%d", idPrefix, i), datasetR, p.Coordinates[0], req.KValue)
		if err != nil {
			return err
		}
		batch.queries = append(batch.queries, q)
	}
	s.emit("prepare", "kNN query batch ready: %d point(s) over dataset %s, k=%d", len(batch.queries), datasetR, req.KValue)
	s.prepared = batch
	return nil
}

func (s *Server) prepareJoin(req PrepareRequest, idPrefix string) error {
	dt, err := parseDataType(req.SpatialDataType)
	if err != nil {
		return err
	}
	if err := s.loadAndIndex(datasetR, req.LeftDataset, dt); err != nil {
		return err
	}
	if err := s.loadAndIndex(datasetS, req.RightDataset, dt); err != nil {
		return err
	}

	predicate, err := parsePredicate(req.Predicate)
	if err != nil {
		return err
	}

	q := query.NewJoinQuery(idPrefix+"-0", datasetR, datasetS, predicate)
	s.emit("prepare", "spatial join ready: %s vs %s, predicate=%s", datasetR, datasetS, req.Predicate)
	s.prepared = &preparedBatch{queries: []query.Query{q}}
	return nil
}

func (s *Server) loadAndIndex(id, path string, dt dataset.Type) error {
	s.emit("prepare", "loading dataset %s from %s", id, path)
	shapes, dataspace, err := loader.Load(path, dt, dataset.FileTypeCSV)
	if err != nil {
		return err
	}
	// The loader returns the tight union of the shapes' MBRs; pad it by
	// shape.Epsilon as Dataset.Dataspace does, so shapes on the outer edge
	// still fall inside the fine grid.
	dataspace = shape.MBR{
		MinX: dataspace.MinX - shape.Epsilon, MinY: dataspace.MinY - shape.Epsilon,
		MaxX: dataspace.MaxX + shape.Epsilon, MaxY: dataspace.MaxY + shape.Epsilon,
	}
	if err := s.host.AssignPartitions(id, dataspace); err != nil {
		return err
	}
	if err := s.host.LoadDataset(id, dt, shapes); err != nil {
		return err
	}
	s.emit("prepare", "building index for dataset %s (%d shapes)", id, len(shapes))
	return s.host.BuildIndex(id)
}

// ExecuteResult is Execute's return value: the wall-clock duration and
// the number of result rows summed across the whole prepared batch.
type ExecuteResult struct {
	Duration    time.Duration
	ResultCount int
}

// Execute runs every query in the previously prepared batch against
// the cluster and returns the total wall-clock duration, matching the
// driver's "prints wall-clock duration in seconds" contract.
func (s *Server) Execute() (ExecuteResult, error) {
	s.lock()
	defer s.unlock()

	if s.host == nil {
		return ExecuteResult{}, dberr.New(dberr.CodeConfig, "cluster not initialized; run init first")
	}
	if s.prepared == nil || len(s.prepared.queries) == 0 {
		return ExecuteResult{}, dberr.New(dberr.CodeQuery, "no queries prepared; run prepare first")
	}

	s.emit("execute", "running %d prepared quer(ies)", len(s.prepared.queries))
	start := time.Now()
	var total int
	for _, q := range s.prepared.queries {
		res, err := s.host.RunQuery(q, 0, s.cfg.MaxThreads)
		if err != nil {
			return ExecuteResult{}, err
		}
		total += res.Count()
	}
	elapsed := time.Since(start)
	s.emit("execute", "finished in %s", elapsed)
	return ExecuteResult{Duration: elapsed, ResultCount: total}, nil
}

// Terminate finalizes the cluster and discards any prepared batch.
func (s *Server) Terminate() error {
	s.lock()
	defer s.unlock()

	if s.host == nil {
		return nil
	}
	s.emit("terminate", "shutting down cluster")
	err := s.host.Terminate()
	s.host = nil
	s.prepared = nil
	return err
}

// peerAddr appends the engine's fixed worker port (":1", the driver's
// "each host name is appended with :1" convention) to a bare host name. A caller
// that already supplies an explicit port (deployments that can't bind
// the privileged port 1, and tests using an ephemeral listener) is
// passed through unchanged.
func peerAddr(host string) string {
	if strings.Contains(host, ":") {
		return host
	}
	return host + ":1"
}

func parseDataType(s string) (dataset.Type, error) {
	switch strings.ToLower(s) {
	case "point":
		return dataset.TypePoint, nil
	case "linestring":
		return dataset.TypeLineString, nil
	case "polygon":
		return dataset.TypePolygon, nil
	case "box":
		return dataset.TypeBox, nil
	default:
		return 0, dberr.New(dberr.CodeConfig, "unknown spatial data type "+s)
	}
}

func parsePredicate(s string) (query.Predicate, error) {
	switch strings.ToLower(s) {
	case "", "relate", "findrelation":
		return query.PredicateFindRelation, nil
	case "intersects":
		return query.PredicateIntersects, nil
	case "equals":
		return query.PredicateEquals, nil
	case "inside":
		return query.PredicateInside, nil
	case "contains":
		return query.PredicateContains, nil
	case "covers":
		return query.PredicateCovers, nil
	case "coveredby":
		return query.PredicateCoveredBy, nil
	case "meet":
		return query.PredicateMeet, nil
	case "disjoint":
		return query.PredicateDisjoint, nil
	default:
		return 0, dberr.New(dberr.CodeQuery, "unknown predicate "+s)
	}
}
