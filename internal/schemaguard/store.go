package schemaguard

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the DDL surface the guard needs.
type Store interface {
	HasColumn(ctx context.Context, table, column string) (bool, error)
	AddColumn(ctx context.Context, table, column, definition string) error
	HasIndex(ctx context.Context, table, name string) (bool, error)
	CreateIndex(ctx context.Context, table, name, column string) error
	BackfillEmpty(ctx context.Context, table, column, value string) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) HasColumn(ctx context.Context, table, column string) (bool, error) {
	return s.db.WithContext(ctx).Migrator().HasColumn(table, column), nil
}

func (s *gormStore) AddColumn(ctx context.Context, table, column, definition string) error {
	return s.db.WithContext(ctx).Exec(
		"ALTER TABLE ? ADD COLUMN ? "+definition,
		clause.Table{Name: table},
		clause.Column{Name: column},
	).Error
}

func (s *gormStore) HasIndex(ctx context.Context, table, name string) (bool, error) {
	return s.db.WithContext(ctx).Migrator().HasIndex(table, name), nil
}

func (s *gormStore) CreateIndex(ctx context.Context, table, name, column string) error {
	return s.db.WithContext(ctx).Exec(
		"CREATE INDEX ? ON ? (?)",
		clause.Column{Name: name},
		clause.Table{Name: table},
		clause.Column{Name: column},
	).Error
}

func (s *gormStore) BackfillEmpty(ctx context.Context, table, column, value string) (int64, error) {
	res := s.db.WithContext(ctx).Exec(
		"UPDATE ? SET ? = ? WHERE ? IS NULL OR ? = ''",
		clause.Table{Name: table},
		clause.Column{Name: column},
		value,
		clause.Column{Name: column},
		clause.Column{Name: column},
	)
	return res.RowsAffected, res.Error
}
