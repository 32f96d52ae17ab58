package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	ErrInvalidRatio   = errors.New("split ratio must be in (0, 1)")
	ErrEmptyDataset   = errors.New("dataset is empty")
	ErrLengthMismatch = errors.New("vectors and labels differ in length")
)

// Split is one shuffled train/test partition of a labelled dataset
type Split struct {
	TrainVectors [][]float64
	TrainLabels  []int
	TestVectors  [][]float64
	TestLabels   []int

	// TrainIndex and TestIndex hold the pre-shuffle position of every row
	TrainIndex []int
	TestIndex  []int
}

// ShuffleAndSplit permutes the rows and cuts them into floor(N*ratio) training
// rows and the remaining test rows. Rows are paired by position, so identical
// vectors stay separate rows. A nil seed draws one from the clock.
func ShuffleAndSplit(vectors [][]float64, labels []int, ratio float64, seed *int64) (*Split, error) {
	if math.IsNaN(ratio) || ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, ratio)
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("%w: %d vectors, %d labels", ErrLengthMismatch, len(vectors), len(labels))
	}

	s := time.Now().UnixNano()
	if seed != nil {
		s = *seed
	}
	perm := rand.New(rand.NewSource(s)).Perm(len(vectors))

	trainCount := int(math.Floor(float64(len(vectors)) * ratio))
	split := &Split{
		TrainVectors: make([][]float64, 0, trainCount),
		TrainLabels:  make([]int, 0, trainCount),
		TestVectors:  make([][]float64, 0, len(vectors)-trainCount),
		TestLabels:   make([]int, 0, len(vectors)-trainCount),
		TrainIndex:   make([]int, 0, trainCount),
		TestIndex:    make([]int, 0, len(vectors)-trainCount),
	}

	for pos, i := range perm {
		if pos < trainCount {
			split.TrainVectors = append(split.TrainVectors, vectors[i])
			split.TrainLabels = append(split.TrainLabels, labels[i])
			split.TrainIndex = append(split.TrainIndex, i)
			continue
		}
		split.TestVectors = append(split.TestVectors, vectors[i])
		split.TestLabels = append(split.TestLabels, labels[i])
		split.TestIndex = append(split.TestIndex, i)
	}
	return split, nil
}
