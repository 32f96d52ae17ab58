package tfidf

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyCorpus is returned when Transform receives no documents
	ErrEmptyCorpus = errors.New("corpus is empty")
	// ErrNegativeFrequency signals a broken term counter. It is never caused by
	// input data.
	ErrNegativeFrequency = errors.New("negative term frequency")
)

// Vectorizer converts documents into TF-IDF vectors. It owns one IDF index per
// mode, loaded from CacheDir when present and computed otherwise.
type Vectorizer struct {
	Builder  *VocabularyBuilder
	CacheDir string
	Workers  int
	Logger   *logrus.Entry

	mu      sync.Mutex
	indexes map[Mode]*IDFIndex
}

// NewVectorizer creates a vectorizer. An empty cacheDir disables persistence;
// workers <= 0 uses one worker per CPU.
func NewVectorizer(builder *VocabularyBuilder, cacheDir string, workers int, logger *logrus.Entry) *Vectorizer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Vectorizer{
		Builder:  builder,
		CacheDir: cacheDir,
		Workers:  workers,
		Logger:   logger.WithField("component", "vectorizer"),
		indexes:  make(map[Mode]*IDFIndex),
	}
}

// Index returns the IDF index used for mode, creating an empty one if needed
func (v *Vectorizer) Index(mode Mode) *IDFIndex {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.indexLocked(mode)
}

// SetIndex installs a caller-built index for its mode
func (v *Vectorizer) SetIndex(idx *IDFIndex) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.indexes[idx.Mode()] = idx
}

func (v *Vectorizer) indexLocked(mode Mode) *IDFIndex {
	idx, ok := v.indexes[mode]
	if !ok {
		idx = NewIDFIndex(mode)
		v.indexes[mode] = idx
	}
	return idx
}

// Transform returns one vector per document, in input order. Each position holds
// tf*idf for one of the featuresAmount highest-IDF terms; featuresAmount <= 0
// keeps every term.
//
// A non-empty index is reused as is, even when docs differ from the corpus it was
// computed on.
func (v *Vectorizer) Transform(docs []string, mode Mode, featuresAmount int) ([][]float64, error) {
	return v.transform(docs, mode, featuresAmount, true)
}

// TransformReadOnly is Transform without side effects on the vectorizer's
// tables. An existing table for mode (in memory or in CacheDir) is used as is.
// Without one, the IDF is computed from docs alone and discarded afterwards, so
// neither the shared index nor the cache file changes.
func (v *Vectorizer) TransformReadOnly(docs []string, mode Mode, featuresAmount int) ([][]float64, error) {
	return v.transform(docs, mode, featuresAmount, false)
}

func (v *Vectorizer) transform(docs []string, mode Mode, featuresAmount int, shared bool) ([][]float64, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	vocab := v.Builder.Build(docs, mode)
	v.Logger.WithFields(logrus.Fields{
		"mode":  mode.String(),
		"docs":  len(docs),
		"terms": vocab.Size(),
	}).Info("Vocabulary built")

	terms, err := v.selectTerms(vocab, featuresAmount, shared)
	if err != nil {
		return nil, err
	}

	vectors, err := v.score(vocab.Docs, terms, mode)
	if err != nil {
		return nil, err
	}

	v.Logger.WithFields(logrus.Fields{
		"mode":     mode.String(),
		"vectors":  len(vectors),
		"features": len(terms),
	}).Info("TF-IDF vectors computed")
	return vectors, nil
}

// selectTerms loads or computes the index for the vocabulary's mode and
// snapshots the selected terms before any worker starts. When shared is false
// a missing table is computed into a throwaway index.
func (v *Vectorizer) selectTerms(vocab *Vocabulary, featuresAmount int, shared bool) ([]Term, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := v.indexLocked(vocab.Mode)
	log := v.Logger.WithField("mode", vocab.Mode.String())

	if idx.Empty() && v.CacheDir != "" {
		path := CachePath(v.CacheDir, vocab.Mode)
		loaded, err := idx.Load(path)
		if err != nil {
			return nil, err
		}
		if loaded {
			log.WithFields(logrus.Fields{"path": path, "terms": idx.Len()}).Info("IDF table loaded from cache")
		}
	}

	if idx.Empty() && !shared {
		scratch := NewIDFIndex(vocab.Mode)
		if err := scratch.Compute(vocab); err != nil {
			return nil, err
		}
		log.WithField("terms", scratch.Len()).Debug("Temporary IDF table computed")
		return scratch.Top(featuresAmount), nil
	}

	if idx.Empty() {
		if err := idx.Compute(vocab); err != nil {
			return nil, err
		}
		log.WithField("terms", idx.Len()).Info("IDF table computed")

		if v.CacheDir != "" {
			path := CachePath(v.CacheDir, vocab.Mode)
			if err := idx.Save(path); err != nil {
				return nil, err
			}
			log.WithField("path", path).Debug("IDF table cached")
		}
	}

	return idx.Top(featuresAmount), nil
}

// score fans the documents out over the worker pool. Workers only read docs and
// terms and write to their own slot of vectors.
func (v *Vectorizer) score(docs [][]string, terms []Term, mode Mode) ([][]float64, error) {
	vectors := make([][]float64, len(docs))
	jobs := make(chan int)
	errs := make(chan error, 1)

	workers := v.Workers
	if workers > len(docs) {
		workers = len(docs)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				vector, err := vectorize(docs[i], terms, mode)
				if err != nil {
					select {
					case errs <- fmt.Errorf("document %d: %w", i, err):
					default:
					}
					continue
				}
				vectors[i] = vector
			}
		}()
	}

	for i := range docs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}
	return vectors, nil
}

func vectorize(doc []string, terms []Term, mode Mode) ([]float64, error) {
	vector := make([]float64, len(terms))

	if mode == Bigram {
		joined := strings.Join(doc, " ")
		for j, term := range terms {
			tf := countOccurrences(joined, term.Text)
			if tf < 0 {
				return nil, fmt.Errorf("%w: %q", ErrNegativeFrequency, term.Text)
			}
			vector[j] = float64(tf) * term.IDF
		}
		return vector, nil
	}

	counts := make(map[string]int, len(doc))
	for _, token := range doc {
		counts[token]++
	}
	for j, term := range terms {
		vector[j] = float64(counts[term.Text]) * term.IDF
	}
	return vector, nil
}

// countOccurrences counts matches of term in s, overlapping ones included. The
// match is on raw substrings, so a bigram also matches inside longer tokens
// ("кот сид" occurs in "скот сидел").
func countOccurrences(s, term string) int {
	if term == "" {
		return 0
	}
	count := 0
	for {
		i := strings.Index(s, term)
		if i < 0 {
			return count
		}
		count++
		_, size := utf8.DecodeRuneInString(s[i:])
		s = s[i+size:]
	}
}
