package bookmeta

import "errors"

var (
	// ErrInvalidISBN is returned when the ISBN is empty after normalization.
	ErrInvalidISBN = errors.New("invalid ISBN")

	// ErrEmptyQuery is returned for a blank free-text query.
	ErrEmptyQuery = errors.New("empty search query")

	// ErrNoImageProvider is returned when no registered provider can
	// identify books from images.
	ErrNoImageProvider = errors.New("no image identification provider registered")
)
