package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Result is one evaluated experiment: a trait, a vectorization setting and a
// classifier setting, with every metric computed on the held-out split.
type Result struct {
	RunID      string
	Trait      string
	Mode       string
	Features   int
	Complexity float64
	Loss       string
	Seed       int64
	TrainSize  int
	TestSize   int

	OverallAccuracy float64
	AverageAccuracy float64
	MicroPrecision  float64
	MacroPrecision  float64
	MicroRecall     float64
	MacroRecall     float64
	MicroF1         float64
	MacroF1         float64
	CrossEntropy    float64
	ZeroOne         float64

	// Per-class values, indexed by class
	ClassPrecision [3]float64
	ClassRecall    [3]float64

	Confusion   [3][3]int
	Percentages [3][3]float64

	// ModelPath is where the trained model was saved, empty when models are
	// not kept
	ModelPath string
	CreatedAt time.Time
}

// ResultStore defines the interface for persisting experiment results
type ResultStore interface {
	Save(ctx context.Context, result *Result) error
	List(ctx context.Context, runID string) ([]Result, error)
	Close() error
}

// resultRow is the table layout. Metrics are nullable because degenerate
// confusion matrices produce NaN, which SQLite cannot store.
type resultRow struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index"`
	Trait      string
	Mode       string
	Features   int
	Complexity float64
	Loss       string
	Seed       int64
	TrainSize  int
	TestSize   int

	OverallAccuracy *float64
	AverageAccuracy *float64
	MicroPrecision  *float64
	MacroPrecision  *float64
	MicroRecall     *float64
	MacroRecall     *float64
	MicroF1         *float64
	MacroF1         *float64
	CrossEntropy    *float64
	ZeroOne         *float64

	// JSON arrays, NaN as null
	ClassPrecision string
	ClassRecall    string
	Percentages    string

	Confusion string
	ModelPath string
	CreatedAt time.Time
}

func (resultRow) TableName() string {
	return "results"
}

// SQLiteResultStore implements ResultStore on a SQLite database file
type SQLiteResultStore struct {
	db *gorm.DB
}

// NewSQLiteResultStore opens (or creates) the database at path and migrates the
// results table. Missing parent directories are created.
func NewSQLiteResultStore(path string) (*SQLiteResultStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access results database: %w", err)
	}
	// single writer
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&resultRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate results table: %w", err)
	}

	return &SQLiteResultStore{db: db}, nil
}

// Save inserts a result row
func (s *SQLiteResultStore) Save(ctx context.Context, result *Result) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	row, err := toRow(result)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// List returns the results of one run in insertion order. An empty runID
// lists every stored result.
func (s *SQLiteResultStore) List(ctx context.Context, runID string) ([]Result, error) {
	query := s.db.WithContext(ctx).Order("id")
	if runID != "" {
		query = query.Where("run_id = ?", runID)
	}

	var rows []resultRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for i := range rows {
		result, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

// Close releases the underlying connection
func (s *SQLiteResultStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(r *Result) (*resultRow, error) {
	confusion, err := json.Marshal(r.Confusion)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal confusion matrix: %w", err)
	}
	precision, err := encodeFloats(r.ClassPrecision[:])
	if err != nil {
		return nil, fmt.Errorf("failed to marshal class precision: %w", err)
	}
	recall, err := encodeFloats(r.ClassRecall[:])
	if err != nil {
		return nil, fmt.Errorf("failed to marshal class recall: %w", err)
	}
	percentages, err := encodeFloats(flatten(r.Percentages))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal percentages: %w", err)
	}

	return &resultRow{
		RunID:           r.RunID,
		Trait:           r.Trait,
		Mode:            r.Mode,
		Features:        r.Features,
		Complexity:      r.Complexity,
		Loss:            r.Loss,
		Seed:            r.Seed,
		TrainSize:       r.TrainSize,
		TestSize:        r.TestSize,
		OverallAccuracy: nullable(r.OverallAccuracy),
		AverageAccuracy: nullable(r.AverageAccuracy),
		MicroPrecision:  nullable(r.MicroPrecision),
		MacroPrecision:  nullable(r.MacroPrecision),
		MicroRecall:     nullable(r.MicroRecall),
		MacroRecall:     nullable(r.MacroRecall),
		MicroF1:         nullable(r.MicroF1),
		MacroF1:         nullable(r.MacroF1),
		CrossEntropy:    nullable(r.CrossEntropy),
		ZeroOne:         nullable(r.ZeroOne),
		ClassPrecision:  precision,
		ClassRecall:     recall,
		Percentages:     percentages,
		Confusion:       string(confusion),
		ModelPath:       r.ModelPath,
		CreatedAt:       r.CreatedAt,
	}, nil
}

func fromRow(row *resultRow) (*Result, error) {
	result := &Result{
		RunID:           row.RunID,
		Trait:           row.Trait,
		Mode:            row.Mode,
		Features:        row.Features,
		Complexity:      row.Complexity,
		Loss:            row.Loss,
		Seed:            row.Seed,
		TrainSize:       row.TrainSize,
		TestSize:        row.TestSize,
		OverallAccuracy: value(row.OverallAccuracy),
		AverageAccuracy: value(row.AverageAccuracy),
		MicroPrecision:  value(row.MicroPrecision),
		MacroPrecision:  value(row.MacroPrecision),
		MicroRecall:     value(row.MicroRecall),
		MacroRecall:     value(row.MacroRecall),
		MicroF1:         value(row.MicroF1),
		MacroF1:         value(row.MacroF1),
		CrossEntropy:    value(row.CrossEntropy),
		ZeroOne:         value(row.ZeroOne),
		ModelPath:       row.ModelPath,
		CreatedAt:       row.CreatedAt,
	}

	if err := decodeFloats(row.ClassPrecision, result.ClassPrecision[:]); err != nil {
		return nil, fmt.Errorf("failed to unmarshal class precision: %w", err)
	}
	if err := decodeFloats(row.ClassRecall, result.ClassRecall[:]); err != nil {
		return nil, fmt.Errorf("failed to unmarshal class recall: %w", err)
	}
	var percentages [9]float64
	if err := decodeFloats(row.Percentages, percentages[:]); err != nil {
		return nil, fmt.Errorf("failed to unmarshal percentages: %w", err)
	}
	for i, p := range percentages {
		result.Percentages[i/3][i%3] = p
	}

	if row.Confusion != "" {
		if err := json.Unmarshal([]byte(row.Confusion), &result.Confusion); err != nil {
			return nil, fmt.Errorf("failed to unmarshal confusion matrix: %w", err)
		}
	}
	return result, nil
}

func nullable(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func value(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}

func flatten(m [3][3]float64) []float64 {
	out := make([]float64, 0, 9)
	for _, row := range m {
		out = append(out, row[:]...)
	}
	return out
}

func encodeFloats(values []float64) (string, error) {
	nullables := make([]*float64, len(values))
	for i, f := range values {
		nullables[i] = nullable(f)
	}
	b, err := json.Marshal(nullables)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeFloats fills out from a JSON array written by encodeFloats. Missing
// entries, and every entry of an empty column, read as NaN.
func decodeFloats(s string, out []float64) error {
	var nullables []*float64
	if s != "" {
		if err := json.Unmarshal([]byte(s), &nullables); err != nil {
			return err
		}
	}
	for i := range out {
		if i < len(nullables) {
			out[i] = value(nullables[i])
		} else {
			out[i] = math.NaN()
		}
	}
	return nil
}
