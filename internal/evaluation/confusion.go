package evaluation

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Classes is the number of ordinal classes every trait is labelled with
const Classes = 3

var (
	ErrInvalidLabel   = errors.New("label outside 0..2")
	ErrLengthMismatch = errors.New("label sequences differ in length")
)

// ConfusionMatrix counts predictions indexed [actual][predicted]
type ConfusionMatrix [Classes][Classes]int

// ClassCounts is the one-vs-rest decomposition of a matrix for one class
type ClassCounts struct {
	TP, FP, FN, TN int
}

// NewConfusionMatrix tallies actual against predicted labels
func NewConfusionMatrix(actual, predicted []int) (ConfusionMatrix, error) {
	var m ConfusionMatrix
	if len(actual) != len(predicted) {
		return m, fmt.Errorf("%w: %d actual, %d predicted", ErrLengthMismatch, len(actual), len(predicted))
	}
	for i := range actual {
		a, p := actual[i], predicted[i]
		if !validLabel(a) || !validLabel(p) {
			return ConfusionMatrix{}, fmt.Errorf("%w: row %d has actual %d, predicted %d", ErrInvalidLabel, i, a, p)
		}
		m[a][p]++
	}
	return m, nil
}

func validLabel(l int) bool {
	return l >= 0 && l < Classes
}

// Total returns the number of tallied samples
func (m ConfusionMatrix) Total() int {
	total := 0
	for a := 0; a < Classes; a++ {
		total += m.RowSum(a)
	}
	return total
}

// RowSum returns how many samples actually belong to class
func (m ConfusionMatrix) RowSum(class int) int {
	sum := 0
	for p := 0; p < Classes; p++ {
		sum += m[class][p]
	}
	return sum
}

// Percentages normalizes every row to percent of its actual class. A row with
// no samples is all NaN.
func (m ConfusionMatrix) Percentages() [Classes][Classes]float64 {
	var out [Classes][Classes]float64
	for a := 0; a < Classes; a++ {
		sum := m.RowSum(a)
		for p := 0; p < Classes; p++ {
			if sum == 0 {
				out[a][p] = math.NaN()
				continue
			}
			out[a][p] = float64(m[a][p]) / float64(sum) * 100
		}
	}
	return out
}

// Counts decomposes the matrix treating class as positive and the rest as negative
func (m ConfusionMatrix) Counts(class int) ClassCounts {
	var c ClassCounts
	for a := 0; a < Classes; a++ {
		for p := 0; p < Classes; p++ {
			n := m[a][p]
			switch {
			case a == class && p == class:
				c.TP += n
			case p == class:
				c.FP += n
			case a == class:
				c.FN += n
			default:
				c.TN += n
			}
		}
	}
	return c
}

// String renders rows separated by ';', e.g. "5 1 0;2 4 1;0 1 6"
func (m ConfusionMatrix) String() string {
	rows := make([]string, Classes)
	for a := 0; a < Classes; a++ {
		rows[a] = fmt.Sprintf("%d %d %d", m[a][0], m[a][1], m[a][2])
	}
	return strings.Join(rows, ";")
}
