package tfidf

// DefaultThreshold is the minimum qualifying count a term needs to enter the
// vocabulary.
const DefaultThreshold = 2

// Tokenizer turns a raw document into normalized tokens
type Tokenizer interface {
	Analyze(doc string) []string
}

// Vocabulary is the frequency-filtered term set of a corpus together with the
// stemmed token sequence of every input document.
type Vocabulary struct {
	Mode Mode
	// Counts maps each kept term to its accumulated count: documents for
	// unigrams, raw occurrences for bigrams.
	Counts map[string]int
	// Terms lists the kept terms in first-seen order.
	Terms []string
	// Docs holds one token sequence per input document, empty ones included.
	Docs [][]string
}

// Size returns the number of terms in the vocabulary
func (v *Vocabulary) Size() int {
	return len(v.Terms)
}

// VocabularyBuilder scans corpora into vocabularies
type VocabularyBuilder struct {
	Tokenizer Tokenizer
	Threshold int
}

// NewVocabularyBuilder creates a builder. Thresholds below 1 are raised to 1.
func NewVocabularyBuilder(tokenizer Tokenizer, threshold int) *VocabularyBuilder {
	if threshold < 1 {
		threshold = 1
	}
	return &VocabularyBuilder{
		Tokenizer: tokenizer,
		Threshold: threshold,
	}
}

// Build tokenizes every document once and counts candidate terms.
//
// Unigram candidates are the distinct tokens of a document, so a unigram's count
// is its document frequency. Bigram candidates are all adjacent token pairs,
// repeats included, so a bigram's count is its raw occurrence count in the corpus.
func (b *VocabularyBuilder) Build(docs []string, mode Mode) *Vocabulary {
	counts := make(map[string]int)
	var order []string
	stemmed := make([][]string, len(docs))

	for i, doc := range docs {
		tokens := b.Tokenizer.Analyze(doc)
		stemmed[i] = tokens

		for _, term := range candidates(tokens, mode) {
			if counts[term] == 0 {
				order = append(order, term)
			}
			counts[term]++
		}
	}

	vocab := &Vocabulary{
		Mode:   mode,
		Counts: make(map[string]int),
		Terms:  make([]string, 0, len(order)),
		Docs:   stemmed,
	}
	for _, term := range order {
		if counts[term] >= b.Threshold {
			vocab.Terms = append(vocab.Terms, term)
			vocab.Counts[term] = counts[term]
		}
	}
	return vocab
}

func candidates(tokens []string, mode Mode) []string {
	if mode == Bigram {
		if len(tokens) < 2 {
			return nil
		}
		pairs := make([]string, 0, len(tokens)-1)
		for i := 1; i < len(tokens); i++ {
			pairs = append(pairs, tokens[i-1]+" "+tokens[i])
		}
		return pairs
	}

	seen := make(map[string]struct{}, len(tokens))
	distinct := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		distinct = append(distinct, token)
	}
	return distinct
}
