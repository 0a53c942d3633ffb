package option

import (
	"fmt"

	"ticketing-commerce/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption mutates a query before it runs.
type QueryOption func(*gorm.DB) *gorm.DB

func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt != nil {
			db = opt(db)
		}
	}
	return db
}

type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

// WithSortBy orders by column; callers pass trusted column names only.
func WithSortBy(column string, dir Direction) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(fmt.Sprintf("%s %s", column, dir))
	}
}

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if p.Limit > 0 {
			db = db.Limit(p.Limit)
		}
		if p.Offset > 0 {
			db = db.Offset(p.Offset)
		}
		return db
	}
}

// ApplyOperator adds a raw condition such as ("status <> ?", "cancelled").
func ApplyOperator(query string, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	}
}

func WithIn(column string, values any) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(fmt.Sprintf("%s IN ?", column), values)
	}
}

func WithLimit(n int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(n)
	}
}
