package controlplane

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/controller"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestFullLifecycleRangeQuery(t *testing.T) {
	worker := controller.NewWorkerController(1)
	addr, err := worker.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer worker.Shutdown()

	cfg := config.Default()
	cfg.Partitioning = config.PartitioningConfig{
		Type:           config.PartitioningTwoGrid,
		PPDNum:         4,
		DGPPDNum:       2,
		AssignmentFunc: config.AssignmentStandard,
	}
	s := NewServer(cfg, NewHub())

	require.NoError(t, s.Init([]string{addr}))
	defer s.Terminate()

	datasetPath := writeTempFile(t, "dataset.csv", "0,1 1,2 2\n1,8 8,9 9\n2,1 8,2 9\n")
	queryPath := writeTempFile(t, "queries.csv", "0,0 0,10 10\n")

	err = s.Prepare(PrepareRequest{
		QueryType:       "rangeQuery",
		Dataset:         datasetPath,
		QueryDataset:    queryPath,
		SpatialDataType: "box",
		QuerySetType:    "box",
	})
	require.NoError(t, err)

	result, err := s.Execute()
	require.NoError(t, err)
	assert.Equal(t, 3, result.ResultCount)
	assert.GreaterOrEqual(t, result.Duration.Nanoseconds(), int64(0))
}

func TestPrepareBeforeInitFails(t *testing.T) {
	s := NewServer(config.Default(), NewHub())
	err := s.Prepare(PrepareRequest{QueryType: "rangeQuery"})
	assert.Error(t, err)
}

func TestExecuteBeforePrepareFails(t *testing.T) {
	worker := controller.NewWorkerController(2)
	addr, err := worker.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer worker.Shutdown()

	cfg := config.Default()
	cfg.Partitioning = config.PartitioningConfig{
		Type:           config.PartitioningTwoGrid,
		PPDNum:         4,
		DGPPDNum:       2,
		AssignmentFunc: config.AssignmentStandard,
	}
	s := NewServer(cfg, NewHub())
	require.NoError(t, s.Init([]string{addr}))
	defer s.Terminate()

	_, err = s.Execute()
	assert.Error(t, err)
}

func TestUnknownQueryTypeRejected(t *testing.T) {
	_, err := parseDataType("hexagon")
	assert.Error(t, err)

	_, err = parsePredicate("overlaps-ish")
	assert.Error(t, err)
}

func TestRouterHealthEndpoint(t *testing.T) {
	s := NewServer(config.Default(), NewHub())
	srv := httptest.NewServer(NewRouter(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
