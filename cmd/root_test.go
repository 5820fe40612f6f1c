package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/tkorpela/bookdex/internal/bookmeta"
	"github.com/tkorpela/bookdex/internal/catalog"
	"github.com/tkorpela/bookdex/internal/config"
	"github.com/tkorpela/bookdex/internal/errors"
	"github.com/tkorpela/bookdex/internal/tui"
)

// stubProvider is a canned-response provider for wiring tests.
type stubProvider struct {
	name       string
	caps       bookmeta.Capability
	byISBN     *bookmeta.Book
	byText     []*bookmeta.Book
	imageGuess *bookmeta.Book
}

func (s *stubProvider) Name() string                     { return s.name }
func (s *stubProvider) Capabilities() bookmeta.Capability { return s.caps }
func (s *stubProvider) Ping(context.Context) error       { return nil }

func (s *stubProvider) SearchByISBN(context.Context, string) (*bookmeta.Book, error) {
	if s.byISBN == nil {
		return nil, nil
	}
	return s.byISBN.Clone(), nil
}

func (s *stubProvider) SearchByText(context.Context, string) ([]*bookmeta.Book, error) {
	books := make([]*bookmeta.Book, len(s.byText))
	for i, b := range s.byText {
		books[i] = b.Clone()
	}
	return books, nil
}

func (s *stubProvider) IdentifyImage(context.Context, []byte) (*bookmeta.Book, error) {
	if s.imageGuess == nil {
		return nil, nil
	}
	return s.imageGuess.Clone(), nil
}

func stubAggregator(providers ...bookmeta.Provider) *bookmeta.Aggregator {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	policy := &bookmeta.Policy{LookupOrder: names, CoverOrder: names}
	return bookmeta.NewAggregator(bookmeta.NewRegistry(providers...), bookmeta.WithPolicy(policy))
}

func TestIdentifyRequiresAnInput(t *testing.T) {
	cmd := &IdentifyCmd{}
	err := cmd.Run(&CLI{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestApplyGlobalConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cli := &CLI{
		CacheDBFile:   "/tmp/c.db",
		CacheTTL:      "48h",
		CatalogDBFile: "/tmp/b.db",
	}
	applyGlobalConfig(cli)

	require.Equal(t, "/tmp/c.db", viper.GetString("cache.dbfile"))
	require.Equal(t, "48h", viper.GetString("cache.ttl"))
	require.Equal(t, "/tmp/b.db", viper.GetString("catalog.dbfile"))
}

func TestLoadConfigFileReadsConfigYAML(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	yaml := "providers:\n  isbndb:\n    api_key: file-key\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Chdir(dir)

	loadConfigFile()
	config.InitConfig()

	require.Equal(t, "file-key", config.ISBNdbAPIKey)
}

func TestLoadConfigFileEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Chdir(t.TempDir())
	t.Setenv("PROVIDERS_ISBNDB_API_KEY", "env-key")
	t.Setenv("VISION_ENDPOINT", "https://vision.example.com")

	loadConfigFile()
	config.InitConfig()

	require.Equal(t, "env-key", config.ISBNdbAPIKey)
	require.Equal(t, "https://vision.example.com", config.VisionEndpoint)
}

func TestIdentifySavePersistsToCatalog(t *testing.T) {
	isbn := "9780132350884"
	cover := "https://example.com/cover.jpg"
	agg := stubAggregator(&stubProvider{
		name:   "stub",
		caps:   bookmeta.CapISBNLookup,
		byISBN: &bookmeta.Book{Title: "Clean Code", ISBN: &isbn, CoverImageURL: &cover},
	})

	store := catalog.NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, store.Connect())
	t.Cleanup(func() { _ = store.Close() })

	original := buildPipeline
	t.Cleanup(func() { buildPipeline = original })
	buildPipeline = func(*CLI, bool) (*bookmeta.Aggregator, *catalog.SQLiteStore, func(), error) {
		return agg, store, func() {}, nil
	}

	cmd := &IdentifyCmd{ISBN: isbn, Save: true}
	require.NoError(t, cmd.Run(&CLI{}))

	// The base lookup already had a cover, so enrichment never writes;
	// the explicit save path has to.
	saved, err := store.FindByISBN(context.Background(), isbn)
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, "Clean Code", saved.Title)
	require.NotEmpty(t, saved.ID)
}

func TestIdentifyInteractiveSingleCandidateSkipsPicker(t *testing.T) {
	agg := stubAggregator(&stubProvider{
		name: "stub",
		caps: bookmeta.CapTextSearch,
		byText: []*bookmeta.Book{
			{Title: "Clean Code"},
		},
	})

	pickerRuns := 0
	original := selectCandidate
	t.Cleanup(func() { selectCandidate = original })
	selectCandidate = func(query string, candidates []*bookmeta.Book) (tui.SelectionResult, error) {
		pickerRuns++
		return tui.SelectionResult{}, nil
	}

	book, err := identifyInteractive(context.Background(), agg, "clean code")
	require.NoError(t, err)
	require.NotNil(t, book)
	require.Equal(t, "Clean Code", book.Title)
	require.Zero(t, pickerRuns, "one candidate needs no picker")
}

func TestIdentifyInteractiveUsesPickerSelection(t *testing.T) {
	agg := stubAggregator(&stubProvider{
		name: "stub",
		caps: bookmeta.CapTextSearch,
		byText: []*bookmeta.Book{
			{Title: "Clean Code"},
			{Title: "The Clean Coder"},
		},
	})

	original := selectCandidate
	t.Cleanup(func() { selectCandidate = original })
	selectCandidate = func(query string, candidates []*bookmeta.Book) (tui.SelectionResult, error) {
		require.Len(t, candidates, 2)
		return tui.SelectionResult{Action: tui.ActionSelected, Selection: candidates[1]}, nil
	}

	book, err := identifyInteractive(context.Background(), agg, "clean")
	require.NoError(t, err)
	require.Equal(t, "The Clean Coder", book.Title)
}

func TestIdentifyInteractiveSkipReturnsNothing(t *testing.T) {
	agg := stubAggregator(&stubProvider{
		name: "stub",
		caps: bookmeta.CapTextSearch,
		byText: []*bookmeta.Book{
			{Title: "A"},
			{Title: "B"},
		},
	})

	original := selectCandidate
	t.Cleanup(func() { selectCandidate = original })
	selectCandidate = func(string, []*bookmeta.Book) (tui.SelectionResult, error) {
		return tui.SelectionResult{Action: tui.ActionSkipped}, nil
	}

	book, err := identifyInteractive(context.Background(), agg, "q")
	require.NoError(t, err)
	require.Nil(t, book)
}

func TestIdentifyInteractiveStopSurfacesAsStopError(t *testing.T) {
	agg := stubAggregator(&stubProvider{
		name: "stub",
		caps: bookmeta.CapTextSearch,
		byText: []*bookmeta.Book{
			{Title: "A"},
			{Title: "B"},
		},
	})

	original := selectCandidate
	t.Cleanup(func() { selectCandidate = original })
	selectCandidate = func(string, []*bookmeta.Book) (tui.SelectionResult, error) {
		return tui.SelectionResult{Action: tui.ActionStopped}, nil
	}

	_, err := identifyInteractive(context.Background(), agg, "q")
	require.Error(t, err)
	require.True(t, errors.IsStopProcessingError(err))
}

func TestIdentifyByImageFileUpgradesGuess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cover.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake image"), 0644))

	full := &bookmeta.Book{Title: "Clean Code", Authors: []string{"Robert C. Martin"}}
	agg := stubAggregator(
		&stubProvider{
			name:       "vision",
			caps:       bookmeta.CapImageIdent,
			imageGuess: &bookmeta.Book{Title: "Clean Code", Authors: []string{"Robert C. Martin"}},
		},
		&stubProvider{
			name:   "text",
			caps:   bookmeta.CapTextSearch,
			byText: []*bookmeta.Book{full},
		},
	)

	book, err := identifyByImageFile(context.Background(), agg, path)
	require.NoError(t, err)
	require.NotNil(t, book)
	require.Equal(t, "Clean Code", book.Title)
	require.Equal(t, "text", book.Source, "OCR guess upgraded through text search")
}

func TestIdentifyByImageFileKeepsGuessWhenSearchMisses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cover.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake image"), 0644))

	agg := stubAggregator(
		&stubProvider{
			name:       "vision",
			caps:       bookmeta.CapImageIdent,
			imageGuess: &bookmeta.Book{Title: "Obscure Title"},
		},
		&stubProvider{name: "text", caps: bookmeta.CapTextSearch},
	)

	book, err := identifyByImageFile(context.Background(), agg, path)
	require.NoError(t, err)
	require.NotNil(t, book)
	require.Equal(t, "Obscure Title", book.Title)
	require.Equal(t, "vision", book.Source)
}

func TestIdentifyByImageFileMissingFile(t *testing.T) {
	agg := stubAggregator(&stubProvider{name: "vision", caps: bookmeta.CapImageIdent})

	_, err := identifyByImageFile(context.Background(), agg, filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
}
