package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	TextColumn   = "text"
	GenderColumn = "gender"

	// NoGender marks a document whose gender column is absent or blank
	NoGender = -1
)

var (
	ErrMissingText   = errors.New("corpus has no text column")
	ErrNoRows        = errors.New("corpus has no rows")
	ErrMissingColumn = errors.New("corpus has no column for trait")
	ErrInvalidValue  = errors.New("invalid numeric value")
)

// Corpus is the labelled document set. Every slice and score column is aligned
// with Documents by index.
type Corpus struct {
	Documents []string
	Genders   []int
	// Columns holds the raw cells of every other column, keyed by header
	Columns map[string][]string
}

// Len returns the number of documents
func (c *Corpus) Len() int {
	return len(c.Documents)
}

// LoadFile reads a corpus from a CSV file
func LoadFile(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a comma-separated corpus with a header row. The text column is
// required; gender and the trait score columns are optional until a trait
// needs them.
func Load(r io.Reader) (*Corpus, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to read corpus header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	textIdx, genderIdx := -1, -1
	for i, name := range header {
		switch name {
		case TextColumn:
			textIdx = i
		case GenderColumn:
			genderIdx = i
		}
	}
	if textIdx < 0 {
		return nil, ErrMissingText
	}

	c := &Corpus{Columns: make(map[string][]string)}
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus row %d: %w", row, err)
		}

		c.Documents = append(c.Documents, record[textIdx])

		gender := NoGender
		if genderIdx >= 0 && strings.TrimSpace(record[genderIdx]) != "" {
			gender, err = strconv.Atoi(strings.TrimSpace(record[genderIdx]))
			if err != nil {
				return nil, fmt.Errorf("%w: row %d, column %s: %v", ErrInvalidValue, row, GenderColumn, err)
			}
		}
		c.Genders = append(c.Genders, gender)

		for i, name := range header {
			if i == textIdx || i == genderIdx {
				continue
			}
			c.Columns[name] = append(c.Columns[name], record[i])
		}
	}

	if len(c.Documents) == 0 {
		return nil, ErrNoRows
	}
	return c, nil
}

// Labels buckets the trait's score column into classes, one per document
func (c *Corpus) Labels(trait Trait) ([]int, error) {
	cells, ok := c.Columns[trait.Column]
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrMissingColumn, trait.Name, trait.Column)
	}

	labels := make([]int, len(cells))
	for i, cell := range cells {
		score, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d, column %s: %v", ErrInvalidValue, i+1, trait.Column, err)
		}
		labels[i] = trait.Label(score, c.Genders[i])
	}
	return labels, nil
}
