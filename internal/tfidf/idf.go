package tfidf

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/knowledge-engine/traitlab/internal/storage"
)

// ErrModeMismatch is returned when a vocabulary of one mode is fed to an index
// of the other.
var ErrModeMismatch = errors.New("vocabulary mode does not match index mode")

// Term is a vocabulary term with its IDF weight
type Term struct {
	Text string
	IDF  float64
}

// IDFIndex holds the inverse document frequency of every vocabulary term for
// one n-gram mode. It is owned by its caller; nothing about it is global.
type IDFIndex struct {
	mode  Mode
	table map[string]float64
}

// NewIDFIndex creates an empty index for mode
func NewIDFIndex(mode Mode) *IDFIndex {
	return &IDFIndex{
		mode:  mode,
		table: make(map[string]float64),
	}
}

// CachePath returns the cache file for mode inside dir. Each mode has its own
// file so unigram and bigram tables are never conflated.
func CachePath(dir string, mode Mode) string {
	return filepath.Join(dir, "idf-"+mode.String()+".gob.gz")
}

func (x *IDFIndex) Mode() Mode {
	return x.mode
}

func (x *IDFIndex) Len() int {
	return len(x.table)
}

func (x *IDFIndex) Empty() bool {
	return len(x.table) == 0
}

// Weight returns the IDF of term and whether the term is indexed
func (x *IDFIndex) Weight(term string) (float64, bool) {
	w, ok := x.table[term]
	return w, ok
}

// Table returns a copy of the term → IDF mapping
func (x *IDFIndex) Table() map[string]float64 {
	out := make(map[string]float64, len(x.table))
	for term, w := range x.table {
		out[term] = w
	}
	return out
}

// Compute replaces the table with ln(N / (1 + df)) for every vocabulary term,
// where N is the number of documents. Unigram df counts documents whose token
// sequence contains the term; bigram df counts documents whose space-joined
// tokens contain the term as a substring. Values may be negative.
func (x *IDFIndex) Compute(vocab *Vocabulary) error {
	if vocab.Mode != x.mode {
		return fmt.Errorf("%w: %s vocabulary, %s index", ErrModeMismatch, vocab.Mode, x.mode)
	}

	postings := x.postings(vocab)
	n := float64(len(vocab.Docs))

	table := make(map[string]float64, len(vocab.Terms))
	for _, term := range vocab.Terms {
		df := float64(postings[term].GetCardinality())
		table[term] = math.Log(n / (1 + df))
	}
	x.table = table
	return nil
}

// postings maps every vocabulary term to the set of documents containing it
func (x *IDFIndex) postings(vocab *Vocabulary) map[string]*roaring.Bitmap {
	postings := make(map[string]*roaring.Bitmap, len(vocab.Terms))
	for _, term := range vocab.Terms {
		postings[term] = roaring.New()
	}

	if x.mode == Bigram {
		for i, doc := range vocab.Docs {
			joined := strings.Join(doc, " ")
			for _, term := range vocab.Terms {
				if strings.Contains(joined, term) {
					postings[term].Add(uint32(i))
				}
			}
		}
		return postings
	}

	for i, doc := range vocab.Docs {
		for _, token := range doc {
			if bm, ok := postings[token]; ok {
				bm.Add(uint32(i))
			}
		}
	}
	return postings
}

// Top returns the n terms with the highest IDF, ties broken by term so the order
// is the same for equal tables. n <= 0 or n >= Len returns every term.
func (x *IDFIndex) Top(n int) []Term {
	terms := make([]Term, 0, len(x.table))
	for text, idf := range x.table {
		terms = append(terms, Term{Text: text, IDF: idf})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].IDF != terms[j].IDF {
			return terms[i].IDF > terms[j].IDF
		}
		return terms[i].Text < terms[j].Text
	})

	if n > 0 && n < len(terms) {
		terms = terms[:n]
	}
	return terms
}

// Save writes the full table to path
func (x *IDFIndex) Save(path string) error {
	if err := storage.WriteTable(path, x.table); err != nil {
		return fmt.Errorf("failed to save %s idf table: %w", x.mode, err)
	}
	return nil
}

// Load replaces the in-memory table with the one stored at path. A missing file
// leaves the index untouched and reports false.
func (x *IDFIndex) Load(path string) (bool, error) {
	table, err := storage.ReadTable(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s idf table: %w", x.mode, err)
	}
	x.table = table
	return true, nil
}
