package main

import (
	"github.com/Mujanati13/Qabalan-sub007/internal/clock"
	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/Mujanati13/Qabalan-sub007/internal/migration"
	"github.com/Mujanati13/Qabalan-sub007/internal/mpgs"
	"github.com/Mujanati13/Qabalan-sub007/internal/observability"
	"github.com/Mujanati13/Qabalan-sub007/internal/payment"
	"github.com/Mujanati13/Qabalan-sub007/internal/ratelimit"
	"github.com/Mujanati13/Qabalan-sub007/internal/schemaguard"
	"github.com/Mujanati13/Qabalan-sub007/internal/server"
	"github.com/Mujanati13/Qabalan-sub007/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Payments
		schemaguard.Module,
		mpgs.Module,
		ratelimit.Module,
		payment.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
