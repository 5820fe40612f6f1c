package cache

// SQL schemas for the per-provider cache tables. All tables use
// "cache_key" as the primary key column.

// GoogleBooksSchema defines the Google Books response cache.
const GoogleBooksSchema = `
CREATE TABLE IF NOT EXISTS googlebooks_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_googlebooks_cached_at ON googlebooks_cache(cached_at);
`

// OpenLibrarySchema defines the Open Library response cache.
const OpenLibrarySchema = `
CREATE TABLE IF NOT EXISTS openlibrary_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_openlibrary_cached_at ON openlibrary_cache(cached_at);
`

// ISBNdbSchema defines the ISBNdb response cache.
const ISBNdbSchema = `
CREATE TABLE IF NOT EXISTS isbndb_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_isbndb_cached_at ON isbndb_cache(cached_at);
`

// WikidataSchema defines the Wikidata SPARQL response cache.
const WikidataSchema = `
CREATE TABLE IF NOT EXISTS wikidata_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_wikidata_cached_at ON wikidata_cache(cached_at);
`

// InventaireSchema defines the Inventaire response cache.
const InventaireSchema = `
CREATE TABLE IF NOT EXISTS inventaire_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_inventaire_cached_at ON inventaire_cache(cached_at);
`

// AllSchemas contains every cache table schema for initialization.
var AllSchemas = []string{
	GoogleBooksSchema,
	OpenLibrarySchema,
	ISBNdbSchema,
	WikidataSchema,
	InventaireSchema,
}

// ValidTableNames is the whitelist of allowed cache table names, used
// to prevent SQL injection when interpolating table names.
var ValidTableNames = map[string]bool{
	"googlebooks_cache": true,
	"openlibrary_cache": true,
	"isbndb_cache":      true,
	"wikidata_cache":    true,
	"inventaire_cache":  true,
}
