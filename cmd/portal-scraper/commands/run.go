package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/dealer-portal-scraper/internal/database"
	"github.com/maltedev/dealer-portal-scraper/internal/engine"
	"github.com/maltedev/dealer-portal-scraper/internal/jobs"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/maltedev/dealer-portal-scraper/internal/storage"
	"github.com/spf13/cobra"
	"github.com/titanous/json5"
)

var runFlags struct {
	itemsFile    string
	listing      string
	missingPrice int
	cookies      bool
	strategy     string
	fileStore    bool
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.itemsFile, "items-file", "", "file with one item code per line (code[,category]) or a json5 array of items")
	f.StringVar(&runFlags.listing, "listing", "", "listing page to take items from: a saved html file, a portal path such as /catalog?category=tile, or a url on the portal")
	f.IntVar(&runFlags.missingPrice, "missing-price", 0, "process up to N catalog items that have no price yet")
	f.BoolVar(&runFlags.cookies, "cookies", false, "start from imported cookies instead of logging in")
	f.StringVar(&runFlags.strategy, "strategy", "", "force fetch or browser instead of probing")
	f.BoolVar(&runFlags.fileStore, "file-store", false, "write to the json catalog file even when a database is configured")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <portal> [item codes...]",
	Short: "Extracts dealer data for a list of items and upserts it into the catalog.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		portal := args[0]

		switch runFlags.strategy {
		case "", engine.StrategyFetch, engine.StrategyBrowser:
		default:
			return fmt.Errorf("unknown strategy %q", runFlags.strategy)
		}

		catalog, closeStore, err := openCatalog(ctx, portal)
		if err != nil {
			return err
		}
		defer closeStore()

		runner := newRunner()
		items, err := collectItems(ctx, runner, catalog, portal, args[1:])
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("no items to process: pass item codes, --items-file, --listing or --missing-price")
		}

		summary, err := runner.Extract(ctx, jobs.Request{
			Portal:     portal,
			Items:      items,
			UseCookies: runFlags.cookies,
			Strategy:   runFlags.strategy,
			Store:      catalog,
			Sink:       consoleSink{out: cmd.OutOrStdout()},
		})
		fmt.Fprintf(cmd.OutOrStdout(), "%s: processed %d, matched %d, updated %d, errors %d, re-authentications %d (%s strategy)\n",
			portal, summary.Processed, summary.Matched, summary.Updated, summary.Errors,
			summary.Reauthentications, summary.Strategy)
		if fs, ok := catalog.(*storage.FileStore); ok {
			stats := fs.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "catalog %s: %d items, %d priced\n",
				cfg.Storage.CatalogFile, stats["total"], stats["priced"])
		}
		return err
	},
}

// openCatalog picks the Postgres catalog when a database is configured and
// the json file store otherwise.
func openCatalog(ctx context.Context, portal string) (jobs.Catalog, func(), error) {
	if !cfg.Database.Enabled() || runFlags.fileStore {
		store, err := storage.NewFileStore(cfg.Storage.CatalogFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using catalog file", "path", cfg.Storage.CatalogFile)
		return store, func() {}, nil
	}

	db, err := database.New(ctx, database.Config{DSN: cfg.Database.DSN(), MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return nil, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	outbox := database.NewOutboxRepository(db, cfg.Redis.Stream)
	return database.NewCatalogStore(db, portal, outbox), db.Close, nil
}

type registrar interface {
	RegisterItems(ctx context.Context, items []models.WorkItem) (int, error)
}

func collectItems(ctx context.Context, runner *jobs.Runner, catalog jobs.Catalog, portal string, codes []string) ([]models.WorkItem, error) {
	var items []models.WorkItem
	for _, code := range codes {
		items = append(items, models.WorkItem{Code: code})
	}

	if runFlags.itemsFile != "" {
		fromFile, err := readItemsFile(runFlags.itemsFile)
		if err != nil {
			return nil, err
		}
		items = append(items, fromFile...)
	}

	if runFlags.listing != "" {
		listed, err := runner.Listing(ctx, portal, runFlags.listing, runFlags.cookies)
		if err != nil {
			return nil, err
		}
		log.Info("items found on listing page", "count", len(listed))
		if r, ok := catalog.(registrar); ok {
			if _, err := r.RegisterItems(ctx, listed); err != nil {
				log.Warn("failed to register listed items", "error", err)
			}
		}
		items = append(items, listed...)
	}

	if runFlags.missingPrice > 0 {
		missing, err := catalog.ItemsMissingPrice(ctx, runFlags.missingPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, missing...)
	}

	return dedupe(items), nil
}

func dedupe(items []models.WorkItem) []models.WorkItem {
	seen := map[string]bool{}
	out := items[:0]
	for _, item := range items {
		if item.Code == "" || seen[item.Code] {
			continue
		}
		seen[item.Code] = true
		out = append(out, item)
	}
	return out
}

func readItemsFile(path string) ([]models.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		var items []models.WorkItem
		if err := json5.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse items file: %w", err)
		}
		return items, nil
	}

	var items []models.WorkItem
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		code, category, _ := strings.Cut(line, ",")
		items = append(items, models.WorkItem{
			Code:     strings.TrimSpace(code),
			Category: strings.TrimSpace(category),
		})
	}
	return items, scanner.Err()
}
