package payment

import (
	"github.com/Mujanati13/Qabalan-sub007/internal/order/repository"
	"github.com/Mujanati13/Qabalan-sub007/internal/payment/events"
	paymentservice "github.com/Mujanati13/Qabalan-sub007/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(events.NewPublisher),
	fx.Provide(paymentservice.NewCheckoutService),
	fx.Provide(paymentservice.NewReconciler),
)
