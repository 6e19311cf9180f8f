package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository defines the operations the history tables need
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) (*T, error)
	Get(ctx context.Context, id int64) (*T, error)
	ListByDevice(ctx context.Context, deviceID int64, limit int) ([]*T, error)
	DeleteBefore(ctx context.Context, column string, cutoff time.Time) (int64, error)
}

// GormRepository implements Repository using Gorm. Every T carries a
// device_id column.
type GormRepository[T any] struct {
	db      *gorm.DB
	orderBy string
}

// NewGormRepository creates a repository listing rows newest first by orderBy.
func NewGormRepository[T any](db *gorm.DB, orderBy string) *GormRepository[T] {
	return &GormRepository[T]{db: db, orderBy: orderBy}
}

// DB returns the underlying database connection for specialized queries
func (repository *GormRepository[T]) DB() *gorm.DB {
	return repository.db
}

func (repository *GormRepository[T]) Create(ctx context.Context, entity *T) (*T, error) {
	result := repository.db.WithContext(ctx).Create(entity)
	if result.Error != nil {
		return nil, result.Error
	}
	return entity, nil
}

func (repository *GormRepository[T]) Get(ctx context.Context, id int64) (*T, error) {
	var entity T
	result := repository.db.WithContext(ctx).First(&entity, id)
	if result.Error != nil {
		return nil, result.Error
	}
	return &entity, nil
}

func (repository *GormRepository[T]) ListByDevice(ctx context.Context, deviceID int64, limit int) ([]*T, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var entities []*T
	result := repository.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order(repository.orderBy + " DESC").
		Limit(limit).
		Find(&entities)
	return entities, result.Error
}

func (repository *GormRepository[T]) DeleteBefore(ctx context.Context, column string, cutoff time.Time) (int64, error) {
	var entity T
	result := repository.db.WithContext(ctx).Where(fmt.Sprintf("%s < ?", column), cutoff).Delete(&entity)
	return result.RowsAffected, result.Error
}

// DefaultListLimit bounds history listings without an explicit limit.
const DefaultListLimit = 50
