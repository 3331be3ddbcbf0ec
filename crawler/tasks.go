package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-scrape-play/models"
)

// Detailer fetches the details record of an application.
type Detailer interface {
	Details(ctx context.Context, appID string) (models.Record, error)
}

// Sink stores extracted records, e.g. a pipeline.Pipeline. Commit returns
// once the records are durable so the finished log never runs ahead.
type Sink interface {
	Commit(records ...models.Record) error
}

// MetadataTask fetches application details and hands the record to Sink.
type MetadataTask struct {
	Scraper Detailer
	Sink    Sink
}

// Run implements Task.
func (t MetadataTask) Run(ctx context.Context, appID string) error {
	rec, err := t.Scraper.Details(ctx, appID)
	if err != nil {
		return err
	}
	if err := t.Sink.Commit(rec); err != nil {
		return fmt.Errorf("%w: write metadata: %v", ErrConfiguration, err)
	}
	slog.Info("metadata written",
		slog.String("app_id", appID),
		slog.String("site_location", rec.String("siteLocation")),
	)
	return nil
}

// CommandTask runs an external downloader once per application. The
// placeholders {app} and {dir} in Args are replaced by the identifier and
// its artifact directory under Dir. A failed run removes that directory.
type CommandTask struct {
	Path string
	Args []string
	Dir  string
}

// CommandError carries the diagnostic of a failed downloader run.
type CommandError struct {
	AppID   string
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Run implements Task.
func (t CommandTask) Run(ctx context.Context, appID string) error {
	appDir := filepath.Join(t.Dir, appID)
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrConfiguration, appDir, err)
	}

	replacer := strings.NewReplacer("{app}", appID, "{dir}", appDir)
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = replacer.Replace(a)
	}

	var stderr, stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if rmErr := os.RemoveAll(appDir); rmErr != nil {
		slog.Warn("remove partial artifacts",
			slog.String("app_id", appID),
			slog.Any("error", rmErr),
		)
	}

	msg := lastLine(stderr.String())
	if msg == "" {
		msg = lastLine(stdout.String())
	}
	if msg == "" {
		msg = err.Error()
	}
	if strings.Contains(msg, "configuration file") || strings.Contains(msg, "credentials") {
		return fmt.Errorf("%w: %s", ErrConfiguration, msg)
	}
	return &CommandError{AppID: appID, Message: msg, Err: err}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
