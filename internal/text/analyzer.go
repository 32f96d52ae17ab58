package text

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/russian"
	"golang.org/x/net/html"
)

// DefaultPlaceholder replaces @mentions so that every handle maps to one token.
const DefaultPlaceholder = "username"

// separators is the fixed punctuation set documents are split on, in addition to
// any Unicode whitespace.
const separators = "@$/#.-:&*+=[]?!(){},'\"><_;%\\"

var (
	digitPattern   = regexp.MustCompile(`[0-9]+`)
	urlPattern     = regexp.MustCompile(`(http|https)://\S*`)
	emailPattern   = regexp.MustCompile(`\S+@\S+`)
	dollarPattern  = regexp.MustCompile(`[$]+`)
	mentionPattern = regexp.MustCompile(`@\S+`)
	tagPattern     = regexp.MustCompile(`<[^<>]+>`)
)

// AnalyzerConfig holds the tunable parts of the normalization pipeline.
type AnalyzerConfig struct {
	StopWords      map[string]struct{}
	Placeholder    string
	EnableStemming bool
}

// DefaultConfig enables stemming with the built-in Russian stop words.
func DefaultConfig() AnalyzerConfig {
	return AnalyzerConfig{
		StopWords:      DefaultStopWords(),
		Placeholder:    DefaultPlaceholder,
		EnableStemming: true,
	}
}

// Analyzer turns raw text into a sequence of normalized, stemmed tokens.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	config AnalyzerConfig
}

// NewAnalyzer creates an analyzer. A nil stop-word set disables stop-word removal.
func NewAnalyzer(config AnalyzerConfig) *Analyzer {
	if config.Placeholder == "" {
		config.Placeholder = DefaultPlaceholder
	}
	return &Analyzer{config: config}
}

// Analyze normalizes a document. Token order follows the text and duplicates are
// kept, since they carry the term frequency. A document made only of stop words or
// punctuation yields an empty, non-nil slice.
func (a *Analyzer) Analyze(doc string) []string {
	doc = a.clean(doc)

	fragments := strings.FieldsFunc(doc, isSeparator)
	tokens := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		token := keepLettersAndDigits(strings.ToLower(fragment))
		if token == "" || a.isStopWord(token) {
			continue
		}
		if a.config.EnableStemming {
			token = russian.Stem(token, false)
		}
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// clean applies the document-level stripping steps in their fixed order.
func (a *Analyzer) clean(doc string) string {
	doc = stripTags(doc)
	doc = digitPattern.ReplaceAllString(doc, "")
	doc = urlPattern.ReplaceAllString(doc, "")
	doc = emailPattern.ReplaceAllString(doc, "")
	doc = dollarPattern.ReplaceAllString(doc, "")
	doc = mentionPattern.ReplaceAllLiteralString(doc, a.config.Placeholder)
	return doc
}

func (a *Analyzer) isStopWord(token string) bool {
	_, exists := a.config.StopWords[token]
	return exists
}

// stripTags drops complete tags, comments and doctypes and keeps everything else
// untouched, entities included. A "<" that is never closed by ">" is plain text.
func stripTags(doc string) string {
	if !strings.ContainsRune(doc, '<') {
		return doc
	}
	return tagPattern.ReplaceAllStringFunc(doc, func(span string) string {
		if isMarkup(span) {
			return ""
		}
		return span
	})
}

// isMarkup reports whether span lexes as exactly one markup token
func isMarkup(span string) bool {
	tokenizer := html.NewTokenizer(strings.NewReader(span))
	switch tokenizer.Next() {
	case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken,
		html.CommentToken, html.DoctypeToken:
		return len(tokenizer.Raw()) == len(span)
	}
	return false
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(separators, r)
}

// keepLettersAndDigits removes every rune outside the Latin and Cyrillic lowercase
// letter ranges and ASCII digits.
func keepLettersAndDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'а' && r <= 'я',
			r == 'ё',
			r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
