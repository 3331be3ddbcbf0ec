package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-play/crawler"
	"github.com/aluiziolira/go-scrape-play/pipeline"
	"github.com/aluiziolira/go-scrape-play/scraper"
)

var defaultSearchTerms = []string{"vpn", "ad blocker", "privacy", "security", "crypto wallet"}

// NewAppListCmd creates the applist command.
func NewAppListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "applist",
		Short: "Build an application list from searches and category top charts",
		Long: `Build an identifier list as the union of several keyword searches and the
top collection of every category. Results go to
<output-dir>/<country>/<timestamp>/: search.txt and category.txt group the
identifiers by query, app_list.txt holds the union, one identifier per line.`,
		Args: cobra.NoArgs,
		RunE: runAppListCmd,
	}
	cmd.Flags().StringP("output-dir", "o", "out", "Root directory for the list")
	cmd.Flags().StringP("search", "s", "", "File of search terms, one per line")
	cmd.Flags().String("categories", "", "File of category identifiers, one per line")
	return cmd
}

func runAppListCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	terms := defaultSearchTerms
	if path, _ := cmd.Flags().GetString("search"); path != "" {
		if terms, err = crawler.ReadIdentifiersFile(path); err != nil {
			return err
		}
	}
	categories := scraper.Categories
	if path, _ := cmd.Flags().GetString("categories"); path != "" {
		if categories, err = crawler.ReadIdentifiersFile(path); err != nil {
			return err
		}
	}

	country := a.cfg.Country
	if country == "" {
		country = "default"
	}
	dir := filepath.Join(a.cfg.OutputDir, country, time.Now().Format("2006-01-02_15-04-05"))
	restoreLog, err := a.logToFile(filepath.Join(dir, "log.txt"))
	if err != nil {
		return err
	}
	defer restoreLog()

	ctx := cmd.Context()
	list := newAppList()

	search, err := pipeline.NewLineWriter(filepath.Join(dir, "search.txt"))
	if err != nil {
		return err
	}
	defer search.Close()
	for _, term := range terms {
		if err := list.collect(ctx, search, "search", term, func() (*scraper.Pager, error) {
			return a.scraper.Search(term)
		}); err != nil {
			return err
		}
	}

	category, err := pipeline.NewLineWriter(filepath.Join(dir, "category.txt"))
	if err != nil {
		return err
	}
	defer category.Close()
	for _, name := range categories {
		if !scraper.IsCategory(name) {
			slog.Warn("unknown category skipped", slog.String("category", name))
			continue
		}
		if err := list.collect(ctx, category, "category", name, func() (*scraper.Pager, error) {
			return a.scraper.FilteredCollection(name, "")
		}); err != nil {
			return err
		}
	}

	out, err := pipeline.NewLineWriter(filepath.Join(dir, "app_list.txt"))
	if err != nil {
		return err
	}
	defer out.Close()
	for _, id := range list.ids {
		if err := out.WriteLine(id); err != nil {
			return err
		}
	}

	slog.Info("app list done",
		slog.Int("apps", len(list.ids)),
		slog.String("file", out.Name()),
	)
	fmt.Fprintln(cmd.OutOrStdout(), out.Name())
	return nil
}

// appList is an insertion-ordered identifier set.
type appList struct {
	seen map[string]struct{}
	ids  []string
}

func newAppList() *appList {
	return &appList{seen: make(map[string]struct{})}
}

func (l *appList) add(ids []string) {
	for _, id := range ids {
		if _, ok := l.seen[id]; ok {
			continue
		}
		l.seen[id] = struct{}{}
		l.ids = append(l.ids, id)
	}
}

// collect runs one list query, records its identifiers under a "# label"
// heading in w and adds them to the list. Query failures are logged and
// skipped; only write failures are returned.
func (l *appList) collect(ctx context.Context, w *pipeline.LineWriter, kind, label string, open func() (*scraper.Pager, error)) error {
	var ids []string
	pager, err := open()
	if err == nil {
		ids, err = pager.IDs(ctx)
	}
	if err != nil {
		slog.Warn("list query failed",
			slog.String("kind", kind),
			slog.String("query", label),
			slog.Any("error", err),
		)
		return nil
	}
	slog.Info("list query done",
		slog.String("kind", kind),
		slog.String("query", label),
		slog.Int("apps", len(ids)),
	)

	if err := w.WriteLine("# " + label); err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.WriteLine(id); err != nil {
			return err
		}
	}
	l.add(ids)
	return nil
}
