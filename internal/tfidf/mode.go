package tfidf

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned when a mode name cannot be parsed
var ErrUnknownMode = errors.New("unknown n-gram mode")

// Mode selects the kind of term a vocabulary is built from. A vocabulary never
// mixes unigrams and bigrams.
type Mode int

const (
	Unigram Mode = iota
	Bigram
)

func (m Mode) String() string {
	switch m {
	case Unigram:
		return "unigram"
	case Bigram:
		return "bigram"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "unigram"/"uni"/"1" and "bigram"/"bi"/"2", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unigram", "uni", "1":
		return Unigram, nil
	case "bigram", "bi", "2":
		return Bigram, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}
