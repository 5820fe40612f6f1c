package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tkorpela/bookdex/internal/bookmeta"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, store.Connect())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleBook() *bookmeta.Book {
	isbn := "9780132350884"
	publisher := "Prentice Hall"
	year := 2008
	return &bookmeta.Book{
		Title:       "Clean Code",
		Authors:     []string{"Robert C. Martin"},
		Publisher:   &publisher,
		PublishYear: &year,
		ISBN:        &isbn,
		Source:      "GoogleBooks",
	}
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, sampleBook())
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID, "save mints an id")

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Clean Code", got.Title)
	require.Equal(t, []string{"Robert C. Martin"}, got.Authors)
	require.Equal(t, "Prentice Hall", *got.Publisher)
	require.Equal(t, 2008, *got.PublishYear)
	require.Equal(t, "GoogleBooks", got.Source)
	require.Nil(t, got.CoverImageURL)
}

func TestSaveUpsertsById(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, sampleBook())
	require.NoError(t, err)

	cover := "https://example.com/cover.jpg"
	saved.CoverImageURL = &cover
	_, err = store.Save(ctx, saved)
	require.NoError(t, err)

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, cover, *got.CoverImageURL)

	missing, err := store.ListMissingCovers(ctx)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestSaveRejectsInvalidBooks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, nil)
	require.Error(t, err)

	_, err = store.Save(ctx, &bookmeta.Book{})
	require.Error(t, err, "title-less books never reach the catalog")
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "no-such-id")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindByISBN(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, sampleBook())
	require.NoError(t, err)

	got, err := store.FindByISBN(ctx, "978-0-13-235088-4")
	require.NoError(t, err)
	require.NotNil(t, got, "lookup normalizes the ISBN")
	require.Equal(t, "Clean Code", got.Title)

	none, err := store.FindByISBN(ctx, "9999999999999")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestListMissingCovers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bare := sampleBook()
	_, err := store.Save(ctx, bare)
	require.NoError(t, err)

	covered := sampleBook()
	cover := "https://example.com/cover.jpg"
	covered.CoverImageURL = &cover
	covered.Title = "The Pragmatic Programmer"
	_, err = store.Save(ctx, covered)
	require.NoError(t, err)

	missing, err := store.ListMissingCovers(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, "Clean Code", missing[0].Title)
}
