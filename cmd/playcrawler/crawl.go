package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-play/crawler"
	"github.com/aluiziolira/go-scrape-play/models"
	"github.com/aluiziolira/go-scrape-play/pipeline"
)

// NewMetadataCmd creates the metadata crawl command.
func NewMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata <ids-file | app-id...>",
		Short: "Crawl application details into metadata files",
		Long: `Fetch the details page of every identifier and append one record per
application to metadata.csv and/or metadata.jsonl under
<output-dir>/<country>/<date>.

Identifiers already listed in finished.txt or failure.txt of that directory
are skipped, so re-running the same command on the same day resumes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMetadataCmd,
	}
	addCrawlFlags(cmd)
	cmd.Flags().StringP("format", "f", "csv", "Output format: csv, json, or dual")
	cmd.Flags().Bool("full", false, "Write every field instead of the reduced record")
	return cmd
}

func runMetadataCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	shape := pipeline.ShapeReduced
	if a.cfg.FullMetadata {
		shape = pipeline.ShapeFull
	}

	return a.crawl(cmd, args, func(ctx context.Context, dir string) (crawler.Task, func() error, error) {
		writer, err := pipeline.NewWriter(dir, a.cfg.OutputFormat, shape)
		if err != nil {
			return nil, nil, fmt.Errorf("creating writer: %w", err)
		}

		// Records of items still in flight at shutdown must reach the writer.
		p := pipeline.NewPipeline(context.WithoutCancel(ctx), writer, a.cfg)
		p.Start(1)
		if a.cfg.Verbose {
			p.StartMetricsReporting(10 * time.Second)
		}

		// The writer outlives the pipeline: it is validated, then closed.
		finish := func() error {
			var errs []error
			if err := p.Close(); err != nil {
				errs = append(errs, fmt.Errorf("pipeline shutdown failed: %w", err))
			}
			metrics := p.GetMetrics()
			// A run where every item failed leaves a new JSONL file empty.
			if processed, _ := metrics["processed_records"].(int64); processed > 0 {
				if err := writer.Validate(); err != nil {
					errs = append(errs, fmt.Errorf("output validation failed: %w", err))
				}
			}
			if err := writer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing metadata output: %w", err))
			}
			slog.Info("metadata written",
				slog.Any("processed", metrics["processed_records"]),
				slog.Any("validation_errors", metrics["validation_errors"]),
			)
			return errors.Join(errs...)
		}
		return crawler.MetadataTask{Scraper: a.scraper, Sink: p}, finish, nil
	})
}

// NewDownloadCmd creates the download crawl command.
func NewDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download --downloader <path> <ids-file | app-id...>",
		Short: "Run an external downloader for every identifier",
		Long: `Run the downloader once per identifier. In --arg values, {app} is replaced
by the identifier and {dir} by its artifact directory under the run directory.
A failed run removes that directory; its last stderr line is classified to
decide between retrying, recording a failure and abandoning the item.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDownloadCmd,
	}
	addCrawlFlags(cmd)
	cmd.Flags().String("downloader", "", "Path of the downloader executable")
	cmd.Flags().StringArray("arg", []string{"{app}", "{dir}"}, "Downloader argument (repeatable)")
	_ = cmd.MarkFlagRequired("downloader")
	return cmd
}

func runDownloadCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("downloader")
	cmdArgs, _ := cmd.Flags().GetStringArray("arg")

	return a.crawl(cmd, args, func(_ context.Context, dir string) (crawler.Task, func() error, error) {
		task := crawler.CommandTask{Path: path, Args: cmdArgs, Dir: filepath.Join(dir, "apps")}
		return task, func() error { return nil }, nil
	})
}

type taskFactory func(ctx context.Context, dir string) (crawler.Task, func() error, error)

// crawl resolves the identifiers and the run directory, builds the task and
// runs the crawler until it drains or a signal arrives.
func (a *app) crawl(cmd *cobra.Command, args []string, build taskFactory) error {
	ids, err := crawler.ResolveInput(args)
	if err != nil {
		return err
	}
	dir := crawler.RunDir(a.cfg.OutputDir, a.cfg.Country, time.Now())

	restoreLog, err := a.logToFile(filepath.Join(dir, crawler.LogFile))
	if err != nil {
		return err
	}
	defer restoreLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	stopMetrics := a.serveMetrics(a.scraper.Metrics.Registry)
	defer stopMetrics()

	task, finish, err := build(ctx, dir)
	if err != nil {
		return err
	}

	slog.Info("starting crawl",
		slog.String("dir", dir),
		slog.Int("ids", len(ids)),
		slog.Int("workers", a.cfg.Workers),
	)

	c, err := crawler.New(a.cfg, crawler.Options{
		Task:    task,
		Dir:     dir,
		Locator: a.scraper,
		Metrics: crawler.NewMetrics(a.scraper.Metrics.Registry),
	})
	if err != nil {
		_ = finish()
		return err
	}

	result, runErr := c.Run(ctx, ids)
	if err := finish(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return fmt.Errorf("crawl failed: %w", runErr)
	}

	printSummary(cmd, result, dir)
	return nil
}

func printSummary(cmd *cobra.Command, result *models.CrawlResult, dir string) {
	out := cmd.OutOrStdout()
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Crawl complete")
	fmt.Fprintf(out, "  Input:         %d\n", result.InputCount)
	fmt.Fprintf(out, "  Skipped:       %d\n", result.SkippedCount)
	fmt.Fprintf(out, "  Finished:      %d\n", result.Finished)
	fmt.Fprintf(out, "  Failed:        %d\n", result.Failed)
	fmt.Fprintf(out, "  Abandoned:     %d\n", result.Abandoned)
	fmt.Fprintf(out, "  Aborted:       %d\n", result.Aborted)
	fmt.Fprintf(out, "  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(out, "  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Fprintf(out, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Fprintf(out, "  Output dir:    %s\n", dir)
	fmt.Fprintln(out, separator)
}
