package schemaguard

import "go.uber.org/fx"

var Module = fx.Module("schemaguard",
	fx.Provide(NewStatus),
	fx.Provide(NewGormStore),
	fx.Provide(New),
)
