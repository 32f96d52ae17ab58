package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/traitlab/internal/classifier"
	"github.com/knowledge-engine/traitlab/internal/config"
	"github.com/knowledge-engine/traitlab/internal/corpus"
	"github.com/knowledge-engine/traitlab/internal/dataset"
	"github.com/knowledge-engine/traitlab/internal/evaluation"
	"github.com/knowledge-engine/traitlab/internal/storage"
	"github.com/knowledge-engine/traitlab/internal/text"
	"github.com/knowledge-engine/traitlab/internal/tfidf"
)

var (
	ErrAlreadyRunning = errors.New("a sweep is already running")
	ErrNoStore        = errors.New("no result store configured")
)

// TrainerFactory builds a trainer for one classifier setting
type TrainerFactory func(complexity float64, loss classifier.Loss) classifier.Trainer

// Engine runs experiment sweeps: vectorize the corpus once per feature count,
// then train and evaluate one classifier per trait and classifier setting.
type Engine struct {
	Config     *config.Config
	Logger     *logrus.Entry
	Vectorizer *tfidf.Vectorizer
	Store      storage.ResultStore
	NewTrainer TrainerFactory

	mode   tfidf.Mode
	losses []classifier.Loss

	// State
	isRunning bool
	mu        sync.RWMutex
	stats     EngineStats
}

// EngineStats describes the current or most recent sweep
type EngineStats struct {
	RunID      string
	Planned    int
	Completed  int
	LastError  string
	StartTime  time.Time
	FinishTime time.Time
}

// NewEngine validates cfg and wires the feature pipeline. store may be nil, in
// which case results are only returned and logged.
func NewEngine(cfg *config.Config, logger *logrus.Entry, store storage.ResultStore) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode, err := tfidf.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		return nil, err
	}
	losses := make([]classifier.Loss, 0, len(cfg.Sweep.Losses))
	for _, name := range cfg.Sweep.Losses {
		loss, err := classifier.ParseLoss(name)
		if err != nil {
			return nil, err
		}
		losses = append(losses, loss)
	}

	analyzer := text.NewAnalyzer(text.AnalyzerConfig{
		StopWords:      text.DefaultStopWords(),
		Placeholder:    cfg.Pipeline.Placeholder,
		EnableStemming: cfg.Pipeline.Stemming,
	})
	builder := tfidf.NewVocabularyBuilder(analyzer, cfg.Pipeline.VocabularyThreshold)
	vectorizer := tfidf.NewVectorizer(builder, cfg.Storage.CacheDir, cfg.Pipeline.Workers, logger)

	epochs := cfg.Sweep.Epochs
	return &Engine{
		Config:     cfg,
		Logger:     logger.WithField("component", "engine"),
		Vectorizer: vectorizer,
		Store:      store,
		NewTrainer: func(complexity float64, loss classifier.Loss) classifier.Trainer {
			svm := classifier.NewLinearSVM(complexity, loss)
			if epochs > 0 {
				svm.Epochs = epochs
			}
			return svm
		},
		mode:   mode,
		losses: losses,
	}, nil
}

// Mode returns the n-gram mode sweeps vectorize with
func (e *Engine) Mode() tfidf.Mode {
	return e.mode
}

func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}

// Stats returns a snapshot of the sweep counters
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Vectorize runs the feature pipeline on docs outside of any sweep. It reuses
// the IDF table of mode when one exists and never computes or caches one, so
// the tables sweeps depend on only ever come from a corpus.
func (e *Engine) Vectorize(docs []string, mode tfidf.Mode, featuresAmount int, normalize bool) ([][]float64, error) {
	vectors, err := e.Vectorizer.TransformReadOnly(docs, mode, featuresAmount)
	if err != nil {
		return nil, err
	}
	if normalize {
		vectors = tfidf.NormalizeAll(vectors)
	}
	return vectors, nil
}

// Results lists stored results of one run, or of every run when runID is empty
func (e *Engine) Results(ctx context.Context, runID string) ([]storage.Result, error) {
	if e.Store == nil {
		return nil, ErrNoStore
	}
	return e.Store.List(ctx, runID)
}

// Run sweeps feature count x trait x complexity x loss over c. Cancelling ctx
// stops the sweep between experiments; results finished so far are returned
// together with the context error.
func (e *Engine) Run(ctx context.Context, c *corpus.Corpus, traits []corpus.Trait) ([]storage.Result, error) {
	labels := make([][]int, len(traits))
	for i, trait := range traits {
		l, err := c.Labels(trait)
		if err != nil {
			return nil, err
		}
		labels[i] = l
	}

	runID, err := e.begin(len(e.Config.Sweep.Features) * len(traits) * len(e.Config.Sweep.Complexities) * len(e.losses))
	if err != nil {
		return nil, err
	}
	log := e.Logger.WithField("run_id", runID)
	log.WithFields(logrus.Fields{
		"documents": c.Len(),
		"traits":    len(traits),
		"mode":      e.mode.String(),
	}).Info("Starting sweep")

	var results []storage.Result
	err = e.sweep(ctx, runID, c, traits, labels, func(r storage.Result) {
		results = append(results, r)
	})
	e.finish(err)

	if err != nil {
		log.WithError(err).Error("Sweep stopped")
		return results, err
	}
	log.WithField("experiments", len(results)).Info("Sweep finished")
	return results, nil
}

func (e *Engine) sweep(ctx context.Context, runID string, c *corpus.Corpus, traits []corpus.Trait, labels [][]int, emit func(storage.Result)) error {
	for _, features := range e.Config.Sweep.Features {
		if err := ctx.Err(); err != nil {
			return err
		}

		vectors, err := e.Vectorizer.Transform(c.Documents, e.mode, features)
		if err != nil {
			return fmt.Errorf("vectorize with %d features: %w", features, err)
		}
		vectors = tfidf.NormalizeAll(vectors)

		for i, trait := range traits {
			for _, complexity := range e.Config.Sweep.Complexities {
				for _, loss := range e.losses {
					if err := ctx.Err(); err != nil {
						return err
					}

					result, model, err := e.experiment(vectors, labels[i], complexity, loss)
					if err != nil {
						return fmt.Errorf("trait %s, C=%v, loss %s: %w", trait.Name, complexity, loss, err)
					}
					result.RunID = runID
					result.Trait = trait.Name
					result.Features = features

					if err := e.saveModel(model, result); err != nil {
						return err
					}

					if e.Store != nil {
						if err := e.Store.Save(ctx, result); err != nil {
							return err
						}
					}
					e.logResult(result)
					e.completed()
					emit(*result)
				}
			}
		}
	}
	return nil
}

// experiment splits, trains and scores one classifier setting
func (e *Engine) experiment(vectors [][]float64, labels []int, complexity float64, loss classifier.Loss) (*storage.Result, classifier.Model, error) {
	seed := e.Config.Split.Seed
	if !e.Config.Split.Seeded {
		seed = time.Now().UnixNano()
	}

	split, err := dataset.ShuffleAndSplit(vectors, labels, e.Config.Split.Ratio, &seed)
	if err != nil {
		return nil, nil, err
	}

	model, err := e.NewTrainer(complexity, loss).Train(split.TrainVectors, split.TrainLabels)
	if err != nil {
		return nil, nil, fmt.Errorf("train: %w", err)
	}
	predicted, err := model.Predict(split.TestVectors)
	if err != nil {
		return nil, nil, fmt.Errorf("predict: %w", err)
	}
	probs, err := model.Probabilities(split.TestVectors)
	if err != nil {
		return nil, nil, fmt.Errorf("probabilities: %w", err)
	}

	matrix, err := evaluation.NewConfusionMatrix(split.TestLabels, predicted)
	if err != nil {
		return nil, nil, err
	}
	crossEntropy, err := evaluation.CrossEntropyLoss(split.TestLabels, probs)
	if err != nil {
		return nil, nil, err
	}
	zeroOne, err := evaluation.ZeroOneLoss(split.TestLabels, predicted)
	if err != nil {
		return nil, nil, err
	}

	m := matrix.Metrics()
	return &storage.Result{
		Mode:            e.mode.String(),
		Complexity:      complexity,
		Loss:            loss.String(),
		Seed:            seed,
		TrainSize:       len(split.TrainLabels),
		TestSize:        len(split.TestLabels),
		OverallAccuracy: m.OverallAccuracy,
		AverageAccuracy: m.AverageAccuracy,
		MicroPrecision:  m.MicroPrecision,
		MacroPrecision:  m.MacroPrecision,
		MicroRecall:     m.MicroRecall,
		MacroRecall:     m.MacroRecall,
		MicroF1:         m.MicroF1,
		MacroF1:         m.MacroF1,
		CrossEntropy:    crossEntropy,
		ZeroOne:         zeroOne,
		ClassPrecision:  m.Precision,
		ClassRecall:     m.Recall,
		Confusion:       matrix,
		Percentages:     matrix.Percentages(),
		CreatedAt:       time.Now(),
	}, model, nil
}

// saveModel writes model under ModelsDir/<run id>/ and records the path on r.
// It does nothing when ModelsDir is empty.
func (e *Engine) saveModel(model classifier.Model, r *storage.Result) error {
	dir := e.Config.Storage.ModelsDir
	if dir == "" {
		return nil
	}

	dir = filepath.Join(dir, r.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s-f%d-c%g-%s.json", r.Trait, r.Mode, r.Features, r.Complexity, r.Loss)
	path := filepath.Join(dir, name)
	if err := model.Save(path); err != nil {
		return err
	}
	r.ModelPath = path
	return nil
}

func (e *Engine) logResult(r *storage.Result) {
	e.Logger.WithFields(logrus.Fields{
		"run_id":           r.RunID,
		"trait":            r.Trait,
		"features":         r.Features,
		"complexity":       r.Complexity,
		"loss":             r.Loss,
		"overall_accuracy": r.OverallAccuracy,
		"macro_f1":         r.MacroF1,
		"cross_entropy":    r.CrossEntropy,
		"zero_one":         r.ZeroOne,
		"class_precision":  r.ClassPrecision,
		"class_recall":     r.ClassRecall,
		"confusion":        evaluation.ConfusionMatrix(r.Confusion).String(),
		"percentages":      r.Percentages,
	}).Info("Experiment finished")
}

func (e *Engine) begin(planned int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isRunning {
		return "", ErrAlreadyRunning
	}
	e.isRunning = true
	e.stats = EngineStats{
		RunID:     uuid.NewString(),
		Planned:   planned,
		StartTime: time.Now(),
	}
	return e.stats.RunID, nil
}

func (e *Engine) completed() {
	e.mu.Lock()
	e.stats.Completed++
	e.mu.Unlock()
}

func (e *Engine) finish(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.isRunning = false
	e.stats.FinishTime = time.Now()
	if err != nil {
		e.stats.LastError = err.Error()
	}
}
