package classifier

import (
	"errors"
	"fmt"
	"strings"
)

// Classes is the number of ordinal classes a model separates
const Classes = 3

var (
	ErrEmptyTrainingSet  = errors.New("training set is empty")
	ErrLengthMismatch    = errors.New("vectors and labels differ in length")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidLabel      = errors.New("label outside 0..2")
	ErrInvalidComplexity = errors.New("complexity must be positive")
	ErrUnknownLoss       = errors.New("unknown loss")
)

// Trainer fits a model to labelled vectors
type Trainer interface {
	Train(vectors [][]float64, labels []int) (Model, error)
}

// Model predicts one of Classes labels for a vector
type Model interface {
	Predict(vectors [][]float64) ([]int, error)
	// Probabilities returns one distribution over the classes per vector
	Probabilities(vectors [][]float64) ([][]float64, error)
	Save(path string) error
}

// Loss selects the hinge variant a LinearSVM minimizes
type Loss int

const (
	// L1 is the standard hinge loss max(0, 1-m)
	L1 Loss = iota
	// L2 is the squared hinge loss max(0, 1-m)^2
	L2
)

func (l Loss) String() string {
	switch l {
	case L1:
		return "l1"
	case L2:
		return "l2"
	default:
		return fmt.Sprintf("loss(%d)", int(l))
	}
}

// ParseLoss accepts "l1"/"hinge" and "l2"/"squared_hinge"
func ParseLoss(s string) (Loss, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l1", "hinge":
		return L1, nil
	case "l2", "squared_hinge":
		return L2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLoss, s)
	}
}
