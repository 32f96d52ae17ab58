package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
)

const (
	DefaultEpochs       = 200
	DefaultLearningRate = 0.5
)

// LinearSVM trains one linear SVM per class against the rest with full-batch
// subgradient descent on
//
//	lambda/2 * |w|^2 + 1/n * sum(loss(y_i * (w.x_i + b)))
//
// where lambda = 1/(Complexity*n). The bias is not regularized.
type LinearSVM struct {
	Complexity   float64
	Loss         Loss
	Epochs       int
	LearningRate float64
}

// NewLinearSVM creates a trainer with the default schedule
func NewLinearSVM(complexity float64, loss Loss) *LinearSVM {
	return &LinearSVM{
		Complexity:   complexity,
		Loss:         loss,
		Epochs:       DefaultEpochs,
		LearningRate: DefaultLearningRate,
	}
}

// LinearModel holds one weight vector and bias per class
type LinearModel struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Loss       string      `json:"loss"`
	Complexity float64     `json:"complexity"`
}

func (s *LinearSVM) Train(vectors [][]float64, labels []int) (Model, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("%w: %d vectors, %d labels", ErrLengthMismatch, len(vectors), len(labels))
	}
	if !(s.Complexity > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidComplexity, s.Complexity)
	}
	if s.Loss != L1 && s.Loss != L2 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLoss, s.Loss)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		if labels[i] < 0 || labels[i] >= Classes {
			return nil, fmt.Errorf("%w: row %d has label %d", ErrInvalidLabel, i, labels[i])
		}
	}

	model := &LinearModel{
		Weights:    make([][]float64, Classes),
		Bias:       make([]float64, Classes),
		Loss:       s.Loss.String(),
		Complexity: s.Complexity,
	}
	for class := 0; class < Classes; class++ {
		model.Weights[class], model.Bias[class] = s.trainBinary(vectors, labels, class, dim)
	}
	return model, nil
}

func (s *LinearSVM) trainBinary(vectors [][]float64, labels []int, class, dim int) ([]float64, float64) {
	n := float64(len(vectors))
	lambda := 1 / (s.Complexity * n)

	epochs := s.Epochs
	if epochs <= 0 {
		epochs = DefaultEpochs
	}
	rate := s.LearningRate
	if rate <= 0 {
		rate = DefaultLearningRate
	}

	w := make([]float64, dim)
	grad := make([]float64, dim)
	var b float64

	for t := 0; t < epochs; t++ {
		floats.ScaleTo(grad, lambda, w)
		var gradB float64

		for i, x := range vectors {
			y := -1.0
			if labels[i] == class {
				y = 1
			}
			margin := y * (floats.Dot(w, x) + b)
			if margin >= 1 {
				continue
			}

			coef := y / n
			if s.Loss == L2 {
				coef *= 2 * (1 - margin)
			}
			floats.AddScaled(grad, -coef, x)
			gradB -= coef
		}

		step := rate / math.Sqrt(float64(t+1))
		floats.AddScaled(w, -step, grad)
		b -= step * gradB
	}
	return w, b
}

func (m *LinearModel) scores(v []float64) ([]float64, error) {
	out := make([]float64, len(m.Weights))
	for class, w := range m.Weights {
		if len(v) != len(w) {
			return nil, fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(v), len(w))
		}
		out[class] = floats.Dot(w, v) + m.Bias[class]
	}
	return out, nil
}

// Predict returns the class with the highest decision score for each vector
func (m *LinearModel) Predict(vectors [][]float64) ([]int, error) {
	predicted := make([]int, len(vectors))
	for i, v := range vectors {
		scores, err := m.scores(v)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		predicted[i] = floats.MaxIdx(scores)
	}
	return predicted, nil
}

// Probabilities returns the softmax of the decision scores
func (m *LinearModel) Probabilities(vectors [][]float64) ([][]float64, error) {
	probs := make([][]float64, len(vectors))
	for i, v := range vectors {
		scores, err := m.scores(v)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		probs[i] = softmax(scores)
	}
	return probs, nil
}

func softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	copy(out, scores)
	floats.AddConst(-floats.Max(out), out)
	for i := range out {
		out[i] = math.Exp(out[i])
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// Save writes the model as JSON
func (m *LinearModel) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

// LoadModel reads a model written by Save
func LoadModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if len(m.Weights) != Classes || len(m.Bias) != Classes {
		return nil, fmt.Errorf("model has %d weight vectors and %d biases, want %d", len(m.Weights), len(m.Bias), Classes)
	}
	return &m, nil
}
