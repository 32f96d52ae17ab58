package evaluation

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics is the full metric row derived from one confusion matrix. Undefined
// ratios are NaN.
type Metrics struct {
	OverallAccuracy float64 `json:"overall_accuracy"`
	AverageAccuracy float64 `json:"average_accuracy"`
	MicroPrecision  float64 `json:"micro_precision"`
	MacroPrecision  float64 `json:"macro_precision"`
	MicroRecall     float64 `json:"micro_recall"`
	MacroRecall     float64 `json:"macro_recall"`
	MicroF1         float64 `json:"micro_f1"`
	MacroF1         float64 `json:"macro_f1"`

	Precision [Classes]float64 `json:"precision"`
	Recall    [Classes]float64 `json:"recall"`
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

// Precision returns TP/(TP+FP) for class
func (m ConfusionMatrix) Precision(class int) float64 {
	c := m.Counts(class)
	return ratio(c.TP, c.TP+c.FP)
}

// Recall returns TP/(TP+FN) for class
func (m ConfusionMatrix) Recall(class int) float64 {
	c := m.Counts(class)
	return ratio(c.TP, c.TP+c.FN)
}

// F1 returns the harmonic mean of the class's precision and recall
func (m ConfusionMatrix) F1(class int) float64 {
	p, r := m.Precision(class), m.Recall(class)
	if p+r == 0 {
		return math.NaN()
	}
	return 2 * p * r / (p + r)
}

// Metrics computes every aggregate. Macro values are plain means of the
// per-class values, so one NaN class makes the macro value NaN.
func (m ConfusionMatrix) Metrics() Metrics {
	var tp, fp, fn int
	precision := make([]float64, Classes)
	recall := make([]float64, Classes)
	f1 := make([]float64, Classes)
	accuracy := make([]float64, Classes)

	for class := 0; class < Classes; class++ {
		c := m.Counts(class)
		tp += c.TP
		fp += c.FP
		fn += c.FN

		precision[class] = m.Precision(class)
		recall[class] = m.Recall(class)
		f1[class] = m.F1(class)
		accuracy[class] = ratio(c.TP+c.TN, c.TP+c.TN+c.FP+c.FN)
	}

	return Metrics{
		OverallAccuracy: ratio(tp, m.Total()),
		AverageAccuracy: stat.Mean(accuracy, nil),
		MicroPrecision:  ratio(tp, tp+fp),
		MacroPrecision:  stat.Mean(precision, nil),
		MicroRecall:     ratio(tp, tp+fn),
		MacroRecall:     stat.Mean(recall, nil),
		MicroF1:         ratio(2*tp, 2*tp+fp+fn),
		MacroF1:         stat.Mean(f1, nil),
		Precision:       [Classes]float64(precision),
		Recall:          [Classes]float64(recall),
	}
}
