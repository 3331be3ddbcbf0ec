package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-scrape-play/extract"
	"github.com/aluiziolira/go-scrape-play/models"
)

// Shape selects which form of an application record is written.
type Shape int

const (
	// ShapeReduced writes appId, version, timestamps and download link state.
	ShapeReduced Shape = iota
	// ShapeFull writes every field except the large ones.
	ShapeFull
)

// CSVWriter appends records to a CSV file. A header row is written only
// when the file is new, so a resumed crawl keeps appending to the same file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	shape  Shape
	header []string
	mu     sync.Mutex
}

// NewCSVWriter opens filename for appending.
func NewCSVWriter(filename string, shape Shape) (*CSVWriter, error) {
	f, size, err := openAppend(filename)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	cw := &CSVWriter{
		file:   f,
		writer: csv.NewWriter(f),
		shape:  shape,
	}

	switch {
	case shape == ShapeReduced && size == 0:
		if _, err := io.WriteString(f, models.ReducedHeader+"\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	case shape == ShapeFull && size > 0:
		header, err := readHeader(filename)
		if err != nil {
			f.Close()
			return nil, err
		}
		cw.header = header
	}
	return cw, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.shape == ShapeReduced {
		for _, rec := range records {
			if _, err := io.WriteString(cw.file, extract.Reduce(rec).Row()+"\n"); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
		return nil
	}

	for _, rec := range records {
		full := extract.Full(rec)
		if cw.header == nil {
			cw.header = full.Names()
			if err := cw.writer.Write(cw.header); err != nil {
				return fmt.Errorf("write csv header: %w", err)
			}
		}
		row := make([]string, len(cw.header))
		for i, name := range cw.header {
			v, _ := full.Get(name)
			cell, err := cellText(v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", name, err)
			}
			row[i] = cell
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// cellText renders one value of a full record. Nested values are written
// as JSON.
func cellText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readHeader(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return header, nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	shape   Shape
	mu      sync.Mutex
}

// NewJSONWriter opens filename for appending.
func NewJSONWriter(filename string, shape Shape) (*JSONWriter, error) {
	f, _, err := openAppend(filename)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
		shape:   shape,
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, rec := range records {
		var v any = extract.Full(rec)
		if jw.shape == ShapeReduced {
			v = extract.Reduce(rec)
		}
		if err := jw.encoder.Encode(v); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// NewWriter builds the metadata writer for format ("csv", "json" or
// "dual") under dir.
func NewWriter(dir, format string, shape Shape) (OutputWriter, error) {
	csvPath := filepath.Join(dir, "metadata.csv")
	jsonPath := filepath.Join(dir, "metadata.jsonl")
	switch format {
	case "", "csv":
		return NewCSVWriter(csvPath, shape)
	case "json":
		return NewJSONWriter(jsonPath, shape)
	case "dual":
		return NewDualWriter(csvPath, jsonPath, shape)
	}
	return nil, fmt.Errorf("unsupported output format %q", format)
}

func openAppend(filename string) (*os.File, int64, error) {
	if err := ensureDir(filename); err != nil {
		return nil, 0, err
	}
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
