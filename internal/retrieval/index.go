// Package retrieval provides a read-only reader over a pre-built symbol
// index (one SQLite file per benchmark instance, built out of process)
// for the symbol_lookup and find_references localize tools. Building the
// index is out of scope here — this package only ever SELECTs.
package retrieval

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Symbol is one row of the pre-built symbol table: a definition or
// reference site for a named symbol.
type Symbol struct {
	ID   uint `gorm:"primaryKey"`
	Name string
	Kind string // "definition" or "reference"
	Path string
	Line int
}

func (Symbol) TableName() string { return "symbols" }

// Index is a read-only handle onto one instance's retrieval index.
type Index struct {
	db *gorm.DB
}

// Open opens the SQLite file at path in read-only mode. A missing or
// unreadable index is a normal condition (index_retrieval is gated per
// variant) — callers should fall back to RETRIEVAL_INDEX_UNAVAILABLE
// rather than failing the run.
func Open(path string) (*Index, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open retrieval index %s: %w", path, err)
	}
	return &Index{db: db}, nil
}

// Hit is one lookup/reference result.
type Hit struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

// LookupSymbol returns definition sites for a symbol name.
func (idx *Index) LookupSymbol(ctx context.Context, symbol string) ([]Hit, error) {
	return idx.query(ctx, symbol, "definition")
}

// FindReferences returns reference sites for a symbol name.
func (idx *Index) FindReferences(ctx context.Context, symbol string) ([]Hit, error) {
	return idx.query(ctx, symbol, "reference")
}

func (idx *Index) query(ctx context.Context, symbol, kind string) ([]Hit, error) {
	var rows []Symbol
	err := idx.db.WithContext(ctx).
		Where("name = ? AND kind = ?", symbol, kind).
		Order("path, line").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{Path: r.Path, Line: r.Line})
	}
	return hits, nil
}

// Close releases the underlying sql.DB connection.
func (idx *Index) Close() error {
	sqlDB, err := idx.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
