// Package collection manages named groups of documents and their
// Postgres persistence.
package collection

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a collection does not exist or is
	// not visible to the requesting owner.
	ErrNotFound = errors.New("collection not found")

	// ErrNameTaken is returned when the owner already has a live
	// collection with the same name.
	ErrNameTaken = errors.New("collection name already in use")

	// ErrEmptyName is returned when a name is blank after trimming.
	ErrEmptyName = errors.New("collection name is empty")
)

// Collection is a named group of documents belonging to one owner.
type Collection struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Name        string
	Description string
	Deleted     bool
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stats summarises a collection's documents.
type Stats struct {
	DocumentCount int
	TotalBytes    int64
	ByStatus      map[string]int
}

// WithStats pairs a collection with its document statistics for
// listing.
type WithStats struct {
	Collection
	Stats Stats
}
