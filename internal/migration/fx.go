package migration

import (
	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/Mujanati13/Qabalan-sub007/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrateOnBoot {
			return nil
		}
		log = log.Named("migration")

		if cfg.DBType != db.TypePostgres {
			log.Info("ensuring base tables via gorm", zap.String("db_type", cfg.DBType))
			return EnsureBaseTables(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		log.Info("applying embedded migrations")
		return RunMigrations(sqlDB)
	}),
)
