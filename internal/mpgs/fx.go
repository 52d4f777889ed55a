package mpgs

import "go.uber.org/fx"

var Module = fx.Module("mpgs",
	fx.Provide(
		fx.Annotate(NewClient, fx.As(new(Gateway))),
		NewClassifier,
		NewNegotiator,
	),
)
