package crawler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReadIdentifiers reads one identifier per line. Surrounding whitespace is
// trimmed; blank lines, lines starting with '#' and repeated identifiers
// are skipped. Order of first appearance is kept.
func ReadIdentifiers(r io.Reader) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read identifiers: %w", err)
	}
	return ids, nil
}

// ReadIdentifiersFile reads identifiers from path.
func ReadIdentifiersFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return ReadIdentifiers(f)
}

// ResolveInput treats a single argument naming an existing file as an
// identifier list; otherwise the arguments are the identifiers.
func ResolveInput(args []string) ([]string, error) {
	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
			return ReadIdentifiersFile(args[0])
		}
	}
	return ReadIdentifiers(strings.NewReader(strings.Join(args, "\n")))
}

// RunDir returns the output directory of a run: root/country/date. Runs
// started on the same day share a directory and therefore resume.
func RunDir(root, country string, now time.Time) string {
	if country == "" {
		country = "default"
	}
	return filepath.Join(root, country, now.Format("2006-01-02"))
}

// Output file names inside a run directory.
const (
	FinishedFile  = "finished.txt"
	FailureFile   = "failure.txt"
	TransientFile = "transient.txt"
	LogFile       = "info.log"
)

// LoadFinished returns the identifiers recorded in a resumable log.
// A missing file is an empty log.
func LoadFinished(path string) (map[string]struct{}, error) {
	return loadKeys(path, func(line string) string { return line })
}

// LoadFailed returns the identifiers recorded in a failure file, whose
// lines look like "id: message".
func LoadFailed(path string) (map[string]struct{}, error) {
	return loadKeys(path, func(line string) string {
		id, _, _ := strings.Cut(line, ":")
		return strings.TrimSpace(id)
	})
}

func loadKeys(path string, key func(string) string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ids, err := ReadIdentifiers(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	for _, line := range ids {
		if k := key(line); k != "" {
			out[k] = struct{}{}
		}
	}
	return out, nil
}
