// Package pipeline buffers application records and appends them to output files.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-play/models"
)

// DualWriter appends every metadata record to metadata.csv and
// metadata.jsonl in the same shape.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter opens both metadata files for appending.
func NewDualWriter(csvFilename, jsonFilename string, shape Shape) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename, shape)
	if err != nil {
		return nil, fmt.Errorf("metadata csv: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename, shape)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("metadata jsonl: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Write appends records to the CSV file first. A record that failed there
// is not written to the JSONL file.
func (dw *DualWriter) Write(records []models.Record) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(records); err != nil {
		return fmt.Errorf("metadata csv: %w", err)
	}
	if err := dw.jsonWriter.Write(records); err != nil {
		return fmt.Errorf("metadata jsonl: %w", err)
	}
	return nil
}

// Close closes both files, even when the first one fails.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	return errors.Join(
		wrapErr("metadata csv", dw.csvWriter.Close()),
		wrapErr("metadata jsonl", dw.jsonWriter.Close()),
	)
}

// Validate reports every metadata file left without content.
func (dw *DualWriter) Validate() error {
	return errors.Join(
		wrapErr("metadata csv", dw.csvWriter.Validate()),
		wrapErr("metadata jsonl", dw.jsonWriter.Validate()),
	)
}

func wrapErr(file string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", file, err)
}
