// Package cmd implements the bookdex command line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/tkorpela/bookdex/internal/bookmeta"
	"github.com/tkorpela/bookdex/internal/catalog"
	"github.com/tkorpela/bookdex/internal/config"
	"github.com/tkorpela/bookdex/internal/errors"
	"github.com/tkorpela/bookdex/internal/fileutil"
	"github.com/tkorpela/bookdex/internal/providers"
	"github.com/tkorpela/bookdex/internal/tui"
)

// selectCandidate is swapped out in tests to avoid driving a real TUI.
var selectCandidate = tui.Select

// buildPipeline is swapped out in tests to avoid hitting real providers.
var buildPipeline = buildAggregator

// CLI represents the complete command structure for bookdex.
type CLI struct {
	// Global flags
	Verbose  bool   `help:"Enable debug logging"`
	Policy   string `help:"Path to a YAML priority policy file"`
	Parallel bool   `help:"Query providers concurrently for ISBN lookups"`

	// Cache flags
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./cache.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`

	// Catalog flags
	CatalogDBFile string `help:"Path to catalog SQLite database file" default:"./bookdex.db"`

	Identify IdentifyCmd `cmd:"" help:"Identify a book by ISBN, title text, or cover image"`
	Enrich   EnrichCmd   `cmd:"" help:"Fill missing covers for books already in the catalog"`
	Ping     PingCmd     `cmd:"" help:"Check connectivity to every configured provider"`
}

// IdentifyCmd resolves one book and prints it as JSON.
type IdentifyCmd struct {
	ISBN          string `help:"ISBN-10 or ISBN-13, hyphens allowed"`
	Query         string `short:"q" help:"Free-text title/author query"`
	Image         string `help:"Path to a cover photo"`
	Interactive   bool   `short:"i" help:"Pick interactively among text-search candidates"`
	NoEnrich      bool   `help:"Skip the field-level enrichment pass"`
	Save          bool   `help:"Persist the identified book into the catalog"`
	DownloadCover bool   `help:"Download the cover image next to the catalog"`
	CoverDir      string `help:"Directory for downloaded covers" default:"./covers"`
}

// EnrichCmd sweeps the catalog for books missing covers and runs the
// enrichment pass on each, writing results back.
type EnrichCmd struct {
	Limit int `help:"Maximum number of books to process (0 = all)"`
}

// PingCmd probes every registered provider.
type PingCmd struct{}

// Execute runs the Kong-based CLI.
func Execute() {
	var cli CLI

	kctx := kong.Parse(&cli,
		kong.Name("bookdex"),
		kong.Description("Identify books across metadata providers and enrich missing fields."),
		kong.UsageOnError(),
	)

	initLogging(cli.Verbose)
	loadConfigFile()
	applyGlobalConfig(&cli)
	config.InitConfig()

	if err := kctx.Run(&cli); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// loadConfigFile reads config.yaml from the working directory and
// enables environment variable overrides, so API keys never have to
// live on the command line.
func loadConfigFile() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	// PROVIDERS_ISBNDB_API_KEY and friends map onto the dotted keys.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Shorter aliases for the keys users set most often.
	for key, env := range map[string]string{
		"providers.isbndb.api_key":      "ISBNDB_API_KEY",
		"providers.googlebooks.api_key": "GOOGLE_BOOKS_API_KEY",
		"providers.vision.endpoint":     "VISION_ENDPOINT",
		"providers.vision.api_key":      "VISION_API_KEY",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			slog.Error("failed to bind environment variable", "key", key, "error", err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("fatal error reading config file", "error", err)
			os.Exit(1)
		}
		slog.Debug("no config file found, using defaults and environment")
	}
}

func applyGlobalConfig(cli *CLI) {
	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)
	viper.Set("catalog.dbfile", cli.CatalogDBFile)
}

// buildAggregator wires the registry, policy, and catalog store.
// The returned cleanup closes the store.
func buildAggregator(cli *CLI, withStore bool) (*bookmeta.Aggregator, *catalog.SQLiteStore, func(), error) {
	registry, err := providers.NewRegistry()
	if err != nil {
		return nil, nil, nil, err
	}

	policy := bookmeta.DefaultPolicy()
	if cli.Policy != "" {
		policy, err = bookmeta.LoadPolicy(cli.Policy)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if cli.Parallel {
		policy.Parallel = true
	}

	opts := []bookmeta.Option{bookmeta.WithPolicy(policy)}
	var store *catalog.SQLiteStore
	cleanup := func() {}
	if withStore {
		store = catalog.NewSQLiteStore(viper.GetString("catalog.dbfile"))
		if err := store.Connect(); err != nil {
			return nil, nil, nil, err
		}
		cleanup = func() { _ = store.Close() }
		opts = append(opts, bookmeta.WithStore(store))
	}

	return bookmeta.NewAggregator(registry, opts...), store, cleanup, nil
}

// Run identifies a book from the given input.
func (c *IdentifyCmd) Run(cli *CLI) error {
	if c.ISBN == "" && c.Query == "" && c.Image == "" {
		return fmt.Errorf("one of --isbn, --query, or --image is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	agg, store, cleanup, err := buildPipeline(cli, c.Save)
	if err != nil {
		return err
	}
	defer cleanup()

	book, err := c.identify(ctx, agg)
	if errors.IsStopProcessingError(err) {
		slog.Info("identification stopped")
		return nil
	}
	if err != nil {
		return err
	}
	if book == nil {
		fmt.Println("not found")
		return nil
	}

	if !c.NoEnrich {
		enriched, err := agg.EnrichMissingFields(ctx, book)
		if err != nil {
			return err
		}
		if enriched != nil {
			book = enriched
		}
	}

	if c.Save {
		saved, err := store.Save(ctx, book)
		if err != nil {
			return fmt.Errorf("saving book: %w", err)
		}
		if saved != nil {
			book = saved
		}
		slog.Info("book saved", "title", book.Title, "id", book.ID)
	}

	if c.DownloadCover && book.CoverImageURL != nil {
		result, err := fileutil.DownloadCover(ctx, fileutil.CoverDownloadOptions{
			URL:       *book.CoverImageURL,
			OutputDir: c.CoverDir,
			Filename:  fileutil.BuildCoverFilename(book.Title),
		})
		if err != nil {
			slog.Warn("cover download failed", "title", book.Title, "error", err)
		} else if result != nil && result.Downloaded {
			slog.Info("cover saved", "path", result.LocalPath)
		}
	}

	return printBook(book)
}

func (c *IdentifyCmd) identify(ctx context.Context, agg *bookmeta.Aggregator) (*bookmeta.Book, error) {
	switch {
	case c.ISBN != "":
		return agg.IdentifyByISBN(ctx, c.ISBN)
	case c.Image != "":
		return identifyByImageFile(ctx, agg, c.Image)
	case c.Interactive:
		return identifyInteractive(ctx, agg, c.Query)
	default:
		return agg.IdentifyByText(ctx, c.Query)
	}
}

// identifyByImageFile runs the vision provider over a cover photo and
// upgrades its text guess into a full record through a text search.
func identifyByImageFile(ctx context.Context, agg *bookmeta.Aggregator, path string) (*bookmeta.Book, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	guess, err := agg.IdentifyByImage(ctx, image)
	if err != nil {
		return nil, err
	}
	if guess == nil {
		return nil, nil
	}

	query := guess.Title
	if len(guess.Authors) > 0 {
		query += " " + guess.Authors[0]
	}
	resolved, err := agg.IdentifyByText(ctx, query)
	if err != nil {
		return nil, err
	}
	if resolved != nil {
		return resolved, nil
	}
	// Nothing matched the OCR text; the raw guess is still useful.
	return guess, nil
}

func identifyInteractive(ctx context.Context, agg *bookmeta.Aggregator, query string) (*bookmeta.Book, error) {
	candidates, err := agg.SearchByText(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	result, err := selectCandidate(query, candidates)
	if err != nil {
		return nil, err
	}
	switch result.Action {
	case tui.ActionSelected:
		return result.Selection, nil
	case tui.ActionStopped:
		return nil, errors.NewStopProcessingError("selection stopped")
	default:
		return nil, nil
	}
}

// Run sweeps the catalog for books missing covers.
func (c *EnrichCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	agg, store, cleanup, err := buildAggregator(cli, true)
	if err != nil {
		return err
	}
	defer cleanup()

	books, err := store.ListMissingCovers(ctx)
	if err != nil {
		return err
	}
	if c.Limit > 0 && len(books) > c.Limit {
		books = books[:c.Limit]
	}

	var filled int
	for _, book := range books {
		enriched, err := agg.EnrichMissingFields(ctx, book)
		if err != nil {
			return err
		}
		if enriched != nil && enriched.CoverImageURL != nil {
			filled++
			slog.Info("cover filled", "title", enriched.Title)
		}
	}

	slog.Info("enrichment sweep complete", "processed", len(books), "filled", filled)
	return nil
}

// Run probes each provider and reports its status.
func (c *PingCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	registry, err := providers.NewRegistry()
	if err != nil {
		return err
	}

	var failures int
	for _, p := range registry.All() {
		if err := p.Ping(ctx); err != nil {
			failures++
			slog.Error("provider unreachable", "provider", p.Name(), "error", err)
			continue
		}
		slog.Info("provider ok", "provider", p.Name())
	}
	if failures > 0 {
		return fmt.Errorf("%d provider(s) unreachable", failures)
	}
	return nil
}

func printBook(book *bookmeta.Book) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(book)
}
