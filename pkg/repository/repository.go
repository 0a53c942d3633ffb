package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketing-commerce/pkg/db"
	"ticketing-commerce/pkg/db/option"

	"gorm.io/gorm"
)

// ErrDuplicate is returned by Create when a unique constraint rejects the row.
var ErrDuplicate = errors.New("repository: duplicate key")

const DefaultTimeout = 3 * time.Second

// Repository is the record store every service talks to. There is deliberately no
// transaction primitive: multi-row invariants are kept with UpdateWhere guards,
// unique constraints and recompute-from-source.
type Repository[T any] interface {
	Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when no row matches.
	FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error)
	Count(ctx context.Context, filter *T, opts ...option.QueryOption) (int64, error)
	Create(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
	Update(ctx context.Context, id string, resource any) error
	// UpdateWhere applies updates to rows matching opts in one statement and reports
	// how many rows the guard let through.
	UpdateWhere(ctx context.Context, updates map[string]any, opts ...option.QueryOption) (int64, error)
}

type Option func(*store)

func WithTimeout(d time.Duration) Option {
	return func(s *store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

type store struct {
	db      *gorm.DB
	timeout time.Duration
}

type gormRepository[T any] struct {
	store
}

func ProvideStore[T any](db *gorm.DB, opts ...Option) Repository[T] {
	s := store{db: db, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&s)
	}
	return &gormRepository[T]{store: s}
}

func (r *gormRepository[T]) conn(ctx context.Context) (*gorm.DB, context.CancelFunc, error) {
	if r.db == nil {
		return nil, func() {}, gorm.ErrInvalidDB
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return r.db.WithContext(ctx), cancel, nil
}

func (r *gormRepository[T]) Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error) {
	tx, cancel, err := r.conn(ctx)
	defer cancel()
	if err != nil {
		return nil, err
	}

	var out []*T
	q := option.Apply(tx.Model(new(T)).Where(filter), opts...)
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository[T]) FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error) {
	tx, cancel, err := r.conn(ctx)
	defer cancel()
	if err != nil {
		return nil, err
	}

	var out T
	q := option.Apply(tx.Model(new(T)).Where(filter), opts...)
	if err := q.Take(&out).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *gormRepository[T]) Count(ctx context.Context, filter *T, opts ...option.QueryOption) (int64, error) {
	tx, cancel, err := r.conn(ctx)
	defer cancel()
	if err != nil {
		return 0, err
	}

	var n int64
	q := option.Apply(tx.Model(new(T)).Where(filter), opts...)
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *gormRepository[T]) Create(ctx context.Context, resource *T) error {
	tx, cancel, err := r.conn(ctx)
	defer cancel()
	if err != nil {
		return err
	}

	if err := tx.Create(resource).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (r *gormRepository[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}

	tx, cancel, err := r.conn(ctx)
	defer cancel()
	if err != nil {
		return err
	}

	if err := tx.CreateInBatches(resources, 100).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (r *gormRepository[T]) Update(ctx context.Context, id string, resource any) error {
	tx, cancel, err := r.conn(ctx)
	defer cancel()
	if err != nil {
		return err
	}

	res := tx.Model(new(T)).Where("id = ?", id).Updates(resource)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository[T]) UpdateWhere(ctx context.Context, updates map[string]any, opts ...option.QueryOption) (int64, error) {
	if len(opts) == 0 {
		return 0, gorm.ErrMissingWhereClause
	}

	tx, cancel, err := r.conn(ctx)
	defer cancel()
	if err != nil {
		return 0, err
	}

	res := option.Apply(tx.Model(new(T)), opts...).Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate) || db.IsUniqueViolation(err)
}
