package evaluation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Epsilon bounds probabilities away from zero before taking the log
const Epsilon = 1e-15

var ErrNoSamples = errors.New("no samples")

// CrossEntropyLoss returns the mean of -ln p[label] over all samples, where p is
// the predicted class distribution of the sample clipped to [Epsilon, 1].
func CrossEntropyLoss(labels []int, probs [][]float64) (float64, error) {
	if len(labels) == 0 {
		return 0, ErrNoSamples
	}
	if len(labels) != len(probs) {
		return 0, fmt.Errorf("%w: %d labels, %d distributions", ErrLengthMismatch, len(labels), len(probs))
	}

	losses := make([]float64, len(labels))
	for i, label := range labels {
		if label < 0 || label >= len(probs[i]) {
			return 0, fmt.Errorf("%w: row %d has label %d for %d classes", ErrInvalidLabel, i, label, len(probs[i]))
		}
		p := math.Min(math.Max(probs[i][label], Epsilon), 1)
		losses[i] = -math.Log(p)
	}
	return floats.Sum(losses) / float64(len(losses)), nil
}

// ZeroOneLoss returns the fraction of misclassified samples
func ZeroOneLoss(labels, predicted []int) (float64, error) {
	if len(labels) == 0 {
		return 0, ErrNoSamples
	}
	if len(labels) != len(predicted) {
		return 0, fmt.Errorf("%w: %d labels, %d predicted", ErrLengthMismatch, len(labels), len(predicted))
	}

	wrong := 0
	for i := range labels {
		if labels[i] != predicted[i] {
			wrong++
		}
	}
	return float64(wrong) / float64(len(labels)), nil
}
