package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	// SQLite drivers only expose the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDuplicateObjectErr reports whether DDL failed because the column or index
// it adds already exists, typically because another process won the race.
func IsDuplicateObjectErr(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42701", "42P07", "42710":
			return true
		}
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1060 || myErr.Number == 1061
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column name") ||
		(strings.Contains(msg, "index") && strings.Contains(msg, "already exists"))
}
