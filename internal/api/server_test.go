package api_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/traitlab/internal/api"
	"github.com/knowledge-engine/traitlab/internal/config"
	"github.com/knowledge-engine/traitlab/internal/corpus"
	"github.com/knowledge-engine/traitlab/internal/engine"
	"github.com/knowledge-engine/traitlab/internal/storage"
	"github.com/knowledge-engine/traitlab/internal/tfidf"
)

// Mocks

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, result *storage.Result) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockStore) List(ctx context.Context, runID string) ([]storage.Result, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.Result), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func setupServer(t *testing.T, store storage.ResultStore) *api.Server {
	t.Helper()
	cfg := config.Load()
	cfg.Pipeline.VocabularyThreshold = 1
	cfg.Pipeline.Mode = "unigram"
	cfg.Storage.CacheDir = t.TempDir()
	cfg.Storage.CorpusPath = "unused.csv"
	cfg.Sweep.Features = []int{3}
	cfg.Sweep.Complexities = []float64{1}
	cfg.Sweep.Losses = []string{"l2"}
	cfg.Sweep.Epochs = 20
	cfg.Split.Ratio = 0.5

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("test", "api")

	eng, err := engine.NewEngine(cfg, entry, store)
	require.NoError(t, err)
	return api.NewServer(eng, entry)
}

func TestHandleStatus(t *testing.T) {
	server := setupServer(t, nil)

	req, _ := http.NewRequest("GET", "/api/v1/status", nil)
	rr := httptest.NewRecorder()

	server.Router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp api.StatusResponse
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.False(t, resp.Running)
	assert.Equal(t, "0s", resp.Uptime)
	assert.Empty(t, resp.RunID)
}

func TestHandleStatus_AfterRun(t *testing.T) {
	server := setupServer(t, nil)

	c, err := corpus.Load(strings.NewReader("text,Отриц.\nкот сидит,10\nсобака бежит,30\nкот бежит,50\nсобака сидит,12\n"))
	require.NoError(t, err)
	traits, err := corpus.SelectTraits(corpus.DefaultTraits(), []string{"denial"})
	require.NoError(t, err)

	_, err = server.Engine.Run(context.Background(), c, traits)
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", "/api/v1/status", nil)
	rr := httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)

	var resp api.StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Running)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 1, resp.Planned)
	assert.Equal(t, 1, resp.Completed)
}

func TestHandleVectorize(t *testing.T) {
	server := setupServer(t, nil)

	body := strings.NewReader(`{"documents": ["кот сидит на окне", "собака бежит по двору", "кот и собака друзья"], "mode": "unigram", "normalize": true}`)
	req, _ := http.NewRequest("POST", "/api/v1/vectorize", body)
	rr := httptest.NewRecorder()

	server.Router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp api.VectorizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "unigram", resp.Mode)
	require.Len(t, resp.Vectors, 3)
	for _, v := range resp.Vectors {
		assert.Len(t, v, len(resp.Vectors[0]))
	}
}

func TestHandleVectorize_DoesNotWriteCache(t *testing.T) {
	server := setupServer(t, nil)
	path := tfidf.CachePath(server.Engine.Config.Storage.CacheDir, tfidf.Unigram)

	body := strings.NewReader(`{"documents": ["foo bar", "baz"], "mode": "unigram"}`)
	req, _ := http.NewRequest("POST", "/api/v1/vectorize", body)
	rr := httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.True(t, server.Engine.Vectorizer.Index(tfidf.Unigram).Empty())
}

func TestHandleVectorize_BadRequests(t *testing.T) {
	server := setupServer(t, nil)

	tests := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{"wrong method", "GET", "", http.StatusMethodNotAllowed},
		{"invalid json", "POST", "{", http.StatusBadRequest},
		{"no documents", "POST", `{"documents": []}`, http.StatusBadRequest},
		{"unknown mode", "POST", `{"documents": ["a"], "mode": "trigram"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, "/api/v1/vectorize", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			server.Router.ServeHTTP(rr, req)
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestHandleResults(t *testing.T) {
	store := new(MockStore)
	store.On("List", mock.Anything, "run-1").Return([]storage.Result{
		{
			RunID:           "run-1",
			Trait:           "denial",
			Mode:            "unigram",
			Features:        5,
			Loss:            "l2",
			OverallAccuracy: 0.75,
			MacroPrecision:  math.NaN(),
			ClassPrecision:  [3]float64{0.5, math.NaN(), 1},
			Confusion:       [3][3]int{{5, 1, 0}, {2, 4, 1}, {0, 1, 6}},
			Percentages: [3][3]float64{
				{100, 0, 0},
				{math.NaN(), math.NaN(), math.NaN()},
				{0, 50, 50},
			},
		},
	}, nil)
	server := setupServer(t, store)

	req, _ := http.NewRequest("GET", "/api/v1/results?run=run-1", nil)
	rr := httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp api.ResultsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Results, 1)

	got := resp.Results[0]
	assert.Equal(t, "denial", got.Trait)
	require.NotNil(t, got.OverallAccuracy)
	assert.Equal(t, 0.75, *got.OverallAccuracy)
	assert.Nil(t, got.MacroPrecision)
	assert.Equal(t, [3][3]int{{5, 1, 0}, {2, 4, 1}, {0, 1, 6}}, got.Confusion)
	require.NotNil(t, got.ClassPrecision[0])
	assert.Equal(t, 0.5, *got.ClassPrecision[0])
	assert.Nil(t, got.ClassPrecision[1])
	require.NotNil(t, got.Percentages[2][1])
	assert.Equal(t, 50.0, *got.Percentages[2][1])
	assert.Nil(t, got.Percentages[1][0])

	store.AssertExpectations(t)
}

func TestHandleResults_CSV(t *testing.T) {
	store := new(MockStore)
	store.On("List", mock.Anything, "").Return([]storage.Result{
		{RunID: "a", Trait: "denial", Loss: "l1"},
		{RunID: "b", Trait: "overall", Loss: "l2"},
	}, nil)
	server := setupServer(t, store)

	req, _ := http.NewRequest("GET", "/api/v1/results?format=csv", nil)
	rr := httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))

	records, err := csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "run_id", records[0][0])
	assert.Equal(t, "b", records[2][0])
}

func TestHandleResults_Errors(t *testing.T) {
	server := setupServer(t, nil)

	req, _ := http.NewRequest("GET", "/api/v1/results", nil)
	rr := httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	req, _ = http.NewRequest("DELETE", "/api/v1/results", nil)
	rr = httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
