package engine_test

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/traitlab/internal/classifier"
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

type MockTrainer struct {
	mock.Mock
}

func (m *MockTrainer) Train(vectors [][]float64, labels []int) (classifier.Model, error) {
	args := m.Called(vectors, labels)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(classifier.Model), args.Error(1)
}

// lowModel predicts class 0 for everything
type lowModel struct{}

func (lowModel) Predict(vectors [][]float64) ([]int, error) {
	return make([]int, len(vectors)), nil
}

func (lowModel) Probabilities(vectors [][]float64) ([][]float64, error) {
	probs := make([][]float64, len(vectors))
	for i := range probs {
		probs[i] = []float64{0.5, 0.25, 0.25}
	}
	return probs, nil
}

func (lowModel) Save(string) error { return nil }

const sampleCorpus = `text,gender,Отриц.
кот сидит на окне,0,10
собака бежит по двору,1,30
кот и собака друзья,0,50
кот спит на диване,1,12
собака лает во дворе,0,33
птица поет на окне,1,47
кот ловит птицу,0,8
собака спит у двери,1,28
птица летит над двором,0,60
кот и птица соседи,1,14
`

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("test", "engine")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.Pipeline.VocabularyThreshold = 1
	cfg.Pipeline.Mode = "unigram"
	cfg.Pipeline.Workers = 2
	cfg.Pipeline.Stemming = true
	cfg.Split.Ratio = 0.6
	cfg.Split.Seed = 7
	cfg.Split.Seeded = true
	cfg.Sweep.Features = []int{4}
	cfg.Sweep.Complexities = []float64{1}
	cfg.Sweep.Losses = []string{"l1", "l2"}
	cfg.Sweep.Epochs = 50
	cfg.Storage.CacheDir = t.TempDir()
	cfg.Storage.CorpusPath = "unused.csv"
	return cfg
}

func loadCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c, err := corpus.Load(strings.NewReader(sampleCorpus))
	require.NoError(t, err)
	return c
}

func denial(t *testing.T) []corpus.Trait {
	t.Helper()
	traits, err := corpus.SelectTraits(corpus.DefaultTraits(), []string{"denial"})
	require.NoError(t, err)
	return traits
}

func TestNewEngine(t *testing.T) {
	eng, err := engine.NewEngine(testConfig(t), testLogger(), nil)
	require.NoError(t, err)
	assert.NotNil(t, eng.Vectorizer)
	assert.NotNil(t, eng.NewTrainer)
	assert.Equal(t, tfidf.Unigram, eng.Mode())
	assert.False(t, eng.IsRunning())

	cfg := testConfig(t)
	cfg.Split.Ratio = 1.5
	_, err = engine.NewEngine(cfg, testLogger(), nil)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestEngine_Run(t *testing.T) {
	store := new(MockStore)
	store.On("Save", mock.Anything, mock.AnythingOfType("*storage.Result")).Return(nil)

	trainer := new(MockTrainer)
	trainer.On("Train", mock.Anything, mock.Anything).Return(lowModel{}, nil)

	eng, err := engine.NewEngine(testConfig(t), testLogger(), store)
	require.NoError(t, err)
	eng.NewTrainer = func(float64, classifier.Loss) classifier.Trainer { return trainer }

	results, err := eng.Run(context.Background(), loadCorpus(t), denial(t))
	require.NoError(t, err)
	require.Len(t, results, 2)

	stats := eng.Stats()
	assert.Equal(t, 2, stats.Planned)
	assert.Equal(t, 2, stats.Completed)
	assert.Empty(t, stats.LastError)
	assert.False(t, eng.IsRunning())

	assert.Equal(t, "l1", results[0].Loss)
	assert.Equal(t, "l2", results[1].Loss)
	for _, r := range results {
		assert.Equal(t, stats.RunID, r.RunID)
		assert.Equal(t, "denial", r.Trait)
		assert.Equal(t, "unigram", r.Mode)
		assert.Equal(t, 4, r.Features)
		assert.Equal(t, int64(7), r.Seed)
		assert.Equal(t, 6, r.TrainSize)
		assert.Equal(t, 4, r.TestSize)

		total := 0
		low := 0
		for a := 0; a < 3; a++ {
			for p := 0; p < 3; p++ {
				total += r.Confusion[a][p]
			}
			low += r.Confusion[a][0]
		}
		assert.Equal(t, r.TestSize, total)
		assert.Equal(t, r.TestSize, low)
		assert.InDelta(t, math.Log(2)*float64(r.Confusion[0][0])/4+math.Log(4)*float64(4-r.Confusion[0][0])/4, r.CrossEntropy, 1e-9)
		assert.InDelta(t, 1-r.OverallAccuracy, r.ZeroOne, 1e-12)

		// everything is predicted low
		assert.InDelta(t, float64(r.Confusion[0][0])/4, r.ClassPrecision[0], 1e-12)
		assert.True(t, math.IsNaN(r.ClassPrecision[1]))
		assert.True(t, math.IsNaN(r.ClassPrecision[2]))
		for a := 0; a < 3; a++ {
			if r.Confusion[a][0] == 0 {
				assert.True(t, math.IsNaN(r.Percentages[a][0]))
				continue
			}
			assert.InDelta(t, 100.0, r.Percentages[a][0], 1e-12)
			if a == 0 {
				assert.InDelta(t, 1.0, r.ClassRecall[a], 1e-12)
			} else {
				assert.InDelta(t, 0.0, r.ClassRecall[a], 1e-12)
			}
		}
		assert.Empty(t, r.ModelPath)
	}

	// the same seed gives the same split for both losses
	assert.Equal(t, results[0].Confusion, results[1].Confusion)

	store.AssertNumberOfCalls(t, "Save", 2)
	trainer.AssertNumberOfCalls(t, "Train", 2)
}

func TestEngine_RunWithLinearSVM(t *testing.T) {
	eng, err := engine.NewEngine(testConfig(t), testLogger(), nil)
	require.NoError(t, err)

	results, err := eng.Run(context.Background(), loadCorpus(t), denial(t))
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		for _, v := range []float64{r.OverallAccuracy, r.MicroPrecision, r.MicroRecall, r.MicroF1, r.ZeroOne} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.Greater(t, r.CrossEntropy, 0.0)
	}

	_, err = eng.Results(context.Background(), "")
	assert.True(t, errors.Is(err, engine.ErrNoStore))
}

func TestEngine_SavesModels(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.ModelsDir = filepath.Join(t.TempDir(), "models")

	eng, err := engine.NewEngine(cfg, testLogger(), nil)
	require.NoError(t, err)

	results, err := eng.Run(context.Background(), loadCorpus(t), denial(t))
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		require.NotEmpty(t, r.ModelPath)
		assert.Equal(t, filepath.Join(cfg.Storage.ModelsDir, r.RunID), filepath.Dir(r.ModelPath))

		model, err := classifier.LoadModel(r.ModelPath)
		require.NoError(t, err)
		assert.Equal(t, r.Loss, model.Loss)
	}
	assert.NotEqual(t, results[0].ModelPath, results[1].ModelPath)
}

func TestEngine_VectorizeLeavesCache(t *testing.T) {
	cfg := testConfig(t)
	path := tfidf.CachePath(cfg.Storage.CacheDir, tfidf.Unigram)

	eng, err := engine.NewEngine(cfg, testLogger(), nil)
	require.NoError(t, err)

	// Before any sweep, ad hoc documents never produce a cache file
	_, err = eng.Vectorize([]string{"foo bar", "baz"}, tfidf.Unigram, 0, false)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = eng.Run(context.Background(), loadCorpus(t), denial(t))
	require.NoError(t, err)
	assert.Contains(t, eng.Vectorizer.Index(tfidf.Unigram).Table(), "кот")

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = eng.Vectorize([]string{"совсем другие слова"}, tfidf.Unigram, 0, true)
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_RunCancelled(t *testing.T) {
	store := new(MockStore)
	eng, err := engine.NewEngine(testConfig(t), testLogger(), store)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := eng.Run(ctx, loadCorpus(t), denial(t))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, results)
	assert.NotEmpty(t, eng.Stats().LastError)
	assert.False(t, eng.IsRunning())

	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestEngine_TrainerError(t *testing.T) {
	boom := errors.New("solver diverged")
	trainer := new(MockTrainer)
	trainer.On("Train", mock.Anything, mock.Anything).Return(nil, boom)

	eng, err := engine.NewEngine(testConfig(t), testLogger(), nil)
	require.NoError(t, err)
	eng.NewTrainer = func(float64, classifier.Loss) classifier.Trainer { return trainer }

	_, err = eng.Run(context.Background(), loadCorpus(t), denial(t))
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 0, eng.Stats().Completed)
}

func TestEngine_StoreError(t *testing.T) {
	boom := errors.New("disk full")
	store := new(MockStore)
	store.On("Save", mock.Anything, mock.Anything).Return(boom)

	eng, err := engine.NewEngine(testConfig(t), testLogger(), store)
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), loadCorpus(t), denial(t))
	assert.True(t, errors.Is(err, boom))
	store.AssertNumberOfCalls(t, "Save", 1)
}

func TestEngine_MissingTraitColumn(t *testing.T) {
	store := new(MockStore)
	eng, err := engine.NewEngine(testConfig(t), testLogger(), store)
	require.NoError(t, err)

	traits, err := corpus.SelectTraits(corpus.DefaultTraits(), []string{"projection"})
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), loadCorpus(t), traits)
	assert.True(t, errors.Is(err, corpus.ErrMissingColumn))
	assert.False(t, eng.IsRunning())
	assert.Empty(t, eng.Stats().RunID)
}

func TestEngine_Vectorize(t *testing.T) {
	eng, err := engine.NewEngine(testConfig(t), testLogger(), nil)
	require.NoError(t, err)

	docs := []string{"кот сидит на окне", "собака бежит по двору", "кот и собака друзья"}
	vectors, err := eng.Vectorize(docs, tfidf.Unigram, 0, true)
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	for _, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += x * x
		}
		if sum != 0 {
			assert.InDelta(t, 1.0, sum, 1e-9)
		}
	}

	_, err = eng.Vectorize(nil, tfidf.Unigram, 0, false)
	assert.True(t, errors.Is(err, tfidf.ErrEmptyCorpus))
}

func TestEngine_Results(t *testing.T) {
	store := new(MockStore)
	store.On("List", mock.Anything, "run-1").Return([]storage.Result{{RunID: "run-1", Trait: "denial"}}, nil)

	eng, err := engine.NewEngine(testConfig(t), testLogger(), store)
	require.NoError(t, err)

	results, err := eng.Results(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "denial", results[0].Trait)
	store.AssertExpectations(t)
}
