package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// LineWriter appends whole lines to a file. Each WriteLine is flushed before
// it returns so a crash never leaves a partial line behind.
type LineWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewLineWriter opens filename for appending, creating it if needed.
func NewLineWriter(filename string) (*LineWriter, error) {
	f, _, err := openAppend(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	return &LineWriter{file: f, writer: bufio.NewWriter(f)}, nil
}

// WriteLine appends line followed by a newline. Embedded newlines are
// replaced by spaces.
func (lw *LineWriter) WriteLine(line string) error {
	line = strings.ReplaceAll(strings.TrimRight(line, "\r\n"), "\n", " ")

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, err := lw.writer.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("flush line: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (lw *LineWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("flush lines: %w", err)
	}
	return lw.file.Close()
}

// Name returns the path of the underlying file.
func (lw *LineWriter) Name() string {
	return lw.file.Name()
}
