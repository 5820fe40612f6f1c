// Package catalog implements the persistence collaborator on SQLite.
// The pipeline only depends on the bookmeta.Store interface; this is
// the concrete store the CLI wires in.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tkorpela/bookdex/internal/bookmeta"
	_ "modernc.org/sqlite"
)

const booksSchema = `
CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY NOT NULL,
	title TEXT NOT NULL,
	authors TEXT NOT NULL DEFAULT '[]',
	publisher TEXT,
	publish_year INTEGER,
	page_count INTEGER,
	isbn TEXT,
	description TEXT,
	cover_image_url TEXT,
	source TEXT,
	external_id TEXT,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);
`

// SQLiteStore persists books in a local SQLite database. Writes are
// last-write-wins on the book id.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

var _ bookmeta.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store for the given database path.
func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{dbPath: dbPath}
}

// Connect opens the database and ensures the schema exists.
func (s *SQLiteStore) Connect() error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(booksSchema); err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			return fmt.Errorf("failed to create books table: %w (close: %v)", err, closeErr)
		}
		return fmt.Errorf("failed to create books table: %w", err)
	}
	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save upserts the book by id and returns the persisted form. Books
// without an id get one minted here.
func (s *SQLiteStore) Save(ctx context.Context, book *bookmeta.Book) (*bookmeta.Book, error) {
	if book == nil {
		return nil, fmt.Errorf("cannot save nil book")
	}
	if book.Title == "" {
		return nil, fmt.Errorf("cannot save book without title")
	}
	book.MintID()

	authors, err := json.Marshal(book.Authors)
	if err != nil {
		return nil, fmt.Errorf("encoding authors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, authors, publisher, publish_year, page_count,
			isbn, description, cover_image_url, source, external_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			authors = excluded.authors,
			publisher = excluded.publisher,
			publish_year = excluded.publish_year,
			page_count = excluded.page_count,
			isbn = excluded.isbn,
			description = excluded.description,
			cover_image_url = excluded.cover_image_url,
			source = excluded.source,
			external_id = excluded.external_id,
			updated_at = CURRENT_TIMESTAMP
	`, book.ID, book.Title, string(authors), book.Publisher, book.PublishYear,
		book.PageCount, book.ISBN, book.Description, book.CoverImageURL,
		book.Source, book.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("saving book %s: %w", book.ID, err)
	}

	return book, nil
}

// Get fetches one book by id. Returns nil, nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*bookmeta.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, authors, publisher, publish_year, page_count,
			isbn, description, cover_image_url, source, external_id
		FROM books WHERE id = ?
	`, id)
	book, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return book, err
}

// FindByISBN fetches one book by normalized ISBN. Returns nil, nil when absent.
func (s *SQLiteStore) FindByISBN(ctx context.Context, isbn string) (*bookmeta.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, authors, publisher, publish_year, page_count,
			isbn, description, cover_image_url, source, external_id
		FROM books WHERE isbn = ?
	`, bookmeta.NormalizeISBN(isbn))
	book, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return book, err
}

// ListMissingCovers returns persisted books without a cover image, the
// input set for an enrichment sweep.
func (s *SQLiteStore) ListMissingCovers(ctx context.Context) ([]*bookmeta.Book, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, authors, publisher, publish_year, page_count,
			isbn, description, cover_image_url, source, external_id
		FROM books WHERE cover_image_url IS NULL OR cover_image_url = ''
		ORDER BY updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying books missing covers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var books []*bookmeta.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*bookmeta.Book, error) {
	var book bookmeta.Book
	var authors string
	err := row.Scan(&book.ID, &book.Title, &authors, &book.Publisher,
		&book.PublishYear, &book.PageCount, &book.ISBN, &book.Description,
		&book.CoverImageURL, &book.Source, &book.ExternalID)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(authors), &book.Authors); err != nil {
		return nil, fmt.Errorf("decoding authors for %s: %w", book.ID, err)
	}
	return &book, nil
}
