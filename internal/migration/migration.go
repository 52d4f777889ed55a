package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations. The correlation
// columns are not part of them; the schema guard adds those lazily so that
// databases created before they existed keep working.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

type orderTable struct {
	ID               int64           `gorm:"primaryKey;autoIncrement:false"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0"`
	OrderStatus      string          `gorm:"size:32;not null;default:pending"`
	PaymentStatus    string          `gorm:"size:16;not null;default:pending"`
	PaymentMethod    *string         `gorm:"size:32"`
	PaymentProvider  *string         `gorm:"size:32"`
	PaymentSessionID *string         `gorm:"size:255"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

func (orderTable) TableName() string { return "orders" }

type orderStatusHistoryTable struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	OrderID   int64     `gorm:"not null;index:idx_order_status_history_order_id,priority:1"`
	Status    string    `gorm:"size:32;not null"`
	Note      *string   `gorm:"type:text"`
	ChangedBy *int64
	CreatedAt time.Time `gorm:"not null;index:idx_order_status_history_order_id,priority:2"`
}

func (orderStatusHistoryTable) TableName() string { return "order_status_history" }

// EnsureBaseTables creates the same base tables through gorm for databases
// golang-migrate is not configured for (mysql, sqlite).
func EnsureBaseTables(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.Migrator().AutoMigrate(&orderTable{}, &orderStatusHistoryTable{}); err != nil {
		return fmt.Errorf("ensure base tables: %w", err)
	}
	return nil
}
