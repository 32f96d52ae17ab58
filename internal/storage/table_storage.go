package storage

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// WriteTable serializes a term weight table to path as gzip-compressed gob.
// The file is written next to its destination and renamed into place, so a
// crashed write never leaves a truncated table behind.
func WriteTable(path string, table map[string]float64) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create table directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(zw).Encode(table); err != nil {
		return fmt.Errorf("failed to encode table: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move table into place: %w", err)
	}
	return nil
}

// ReadTable restores a table written by WriteTable. A missing file is reported
// with an error matching fs.ErrNotExist.
func ReadTable(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read table header: %w", err)
	}
	defer zr.Close()

	var table map[string]float64
	if err := gob.NewDecoder(zr).Decode(&table); err != nil {
		return nil, fmt.Errorf("failed to decode table: %w", err)
	}
	if table == nil {
		table = make(map[string]float64)
	}
	return table, nil
}
