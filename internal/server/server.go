package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/Mujanati13/Qabalan-sub007/internal/observability"
	obslogger "github.com/Mujanati13/Qabalan-sub007/internal/observability/logger"
	obsmetrics "github.com/Mujanati13/Qabalan-sub007/internal/observability/metrics"
	obstracing "github.com/Mujanati13/Qabalan-sub007/internal/observability/tracing"
	paymentservice "github.com/Mujanati13/Qabalan-sub007/internal/payment/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const routePrefix = "/api/payments/mpgs"

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware())
	}
	r.SetHTMLTemplate(pageTemplates)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	checkout   *paymentservice.CheckoutService
	reconciler *paymentservice.Reconciler
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Checkout   *paymentservice.CheckoutService
	Reconciler *paymentservice.Reconciler
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        log.Named("http"),
		checkout:   p.Checkout,
		reconciler: p.Reconciler,
	}

	svc.registerPaymentRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	mpgs := s.engine.Group(routePrefix)

	mpgs.GET("/payment/view", s.PaymentView)
	mpgs.GET("/payment/status", s.PaymentStatus)
	mpgs.GET("/payment/success", s.PaymentSuccess)
	mpgs.GET("/payment/cancel", s.PaymentCancel)

	mpgs.POST("/session", s.CreateSession)
	mpgs.POST("/mobile/session", s.CreateMobileSession)
	mpgs.POST("/checkout-session", s.AuthRequired(), s.CreateCheckoutSession)

	mpgs.GET("/return", s.HandleReturn)
	mpgs.GET("/order/:id", s.AuthRequired(), s.GetOrder)
}
