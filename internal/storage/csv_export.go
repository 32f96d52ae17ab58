package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var csvHeader = []string{
	"run_id", "trait", "mode", "features", "complexity", "loss", "seed",
	"train_size", "test_size",
	"overall_accuracy", "average_accuracy",
	"micro_precision", "macro_precision",
	"micro_recall", "macro_recall",
	"micro_f1", "macro_f1",
	"cross_entropy", "zero_one",
	"class_precision", "class_recall", "percentages",
	"model_path",
	"confusion",
}

// WriteCSV writes results as comma-separated rows with a header line. NaN
// metrics are written as "NaN".
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range results {
		if err := cw.Write(csvRecord(&results[i])); err != nil {
			return fmt.Errorf("failed to write result %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRecord(r *Result) []string {
	return []string{
		r.RunID,
		r.Trait,
		r.Mode,
		strconv.Itoa(r.Features),
		formatFloat(r.Complexity),
		r.Loss,
		strconv.FormatInt(r.Seed, 10),
		strconv.Itoa(r.TrainSize),
		strconv.Itoa(r.TestSize),
		formatFloat(r.OverallAccuracy),
		formatFloat(r.AverageAccuracy),
		formatFloat(r.MicroPrecision),
		formatFloat(r.MacroPrecision),
		formatFloat(r.MicroRecall),
		formatFloat(r.MacroRecall),
		formatFloat(r.MicroF1),
		formatFloat(r.MacroF1),
		formatFloat(r.CrossEntropy),
		formatFloat(r.ZeroOne),
		formatFloats(r.ClassPrecision[:]),
		formatFloats(r.ClassRecall[:]),
		formatPercentages(r.Percentages),
		r.ModelPath,
		formatConfusion(r.Confusion),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, f := range values {
		parts[i] = formatFloat(f)
	}
	return strings.Join(parts, " ")
}

// formatPercentages renders rows like formatConfusion
func formatPercentages(m [3][3]float64) string {
	rows := make([]string, len(m))
	for i := range m {
		rows[i] = formatFloats(m[i][:])
	}
	return strings.Join(rows, ";")
}

// formatConfusion renders rows separated by ";" and cells by a space.
func formatConfusion(m [3][3]int) string {
	return fmt.Sprintf("%d %d %d;%d %d %d;%d %d %d",
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2])
}
