// Package store persists the catalog and user activity through gorm.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when an insert lost to an existing row with the same key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store is the gorm-backed catalog store.
type Store struct {
	db *gorm.DB
}

// New creates a store over db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a store bound to a single database transaction.
// fn must only use the store it is given.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// take loads the first row matching the condition into dest.
func (s *Store) take(ctx context.Context, dest any, query string, args ...any) error {
	err := s.db.WithContext(ctx).Where(query, args...).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// insert creates value unless a row with a conflicting key exists.
// It returns ErrDuplicateKey when nothing was written.
func (s *Store) insert(ctx context.Context, value any) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// insertIgnore batch-creates rows, skipping those that already exist.
func insertIgnore[T any](ctx context.Context, db *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).
		Error
}
