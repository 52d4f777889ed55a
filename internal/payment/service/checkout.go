package service

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Mujanati13/Qabalan-sub007/internal/mpgs"
	orderdomain "github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	paymentdomain "github.com/Mujanati13/Qabalan-sub007/internal/payment/domain"
	"github.com/Mujanati13/Qabalan-sub007/internal/ratelimit"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// CheckoutService creates gateway checkout sessions and records their
// correlation state on the order.
type CheckoutService struct {
	base
	negotiator *mpgs.Negotiator
	limiter    ratelimit.Limiter
}

func NewCheckoutService(p Params) *CheckoutService {
	limiter := p.Limiter
	if limiter == nil {
		limiter = ratelimit.NewNoopLimiter()
	}
	return &CheckoutService{
		base:       newBase(p, "payment.checkout"),
		negotiator: p.Negotiator,
		limiter:    limiter,
	}
}

// CreateSession negotiates a checkout session for the order and stores its
// session id and success indicator before returning. Any indicator from an
// earlier attempt stops matching.
func (s *CheckoutService) CreateSession(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSession, error) {
	id, err := parseOrderID(strings.TrimSpace(req.OrderID))
	if err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrInvalidAmount
	}
	if !s.cfg.Configured() {
		s.log.Error("mpgs credentials are not configured", zap.Int64("order_id", id))
		return paymentdomain.CheckoutSession{}, mpgs.ErrConfiguration
	}
	if !s.guard.Ensure(ctx) {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrSchemaUnavailable
	}

	order, err := s.loadOrder(ctx, s.db, id)
	if err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	if order.IsPaid() {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrAlreadyPaid
	}

	amount := order.TotalAmount
	if req.Amount != nil {
		if !req.Amount.Equal(order.TotalAmount) {
			s.log.Warn("requested amount differs from order total",
				zap.Int64("order_id", id),
				zap.String("requested", req.Amount.String()),
				zap.String("total", order.TotalAmount.String()),
			)
		}
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrInvalidAmount
	}
	currency := s.resolveCurrency(req.Currency, order.Currency)
	if !currencyPattern.MatchString(currency) {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrInvalidCurrency
	}

	orderKey := gatewayOrderID(id)
	if _, err := s.limiter.Allow(ctx, orderKey); err != nil {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrTooManyAttempts
	}
	release, err := s.limiter.Acquire(ctx, orderKey)
	if err != nil {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrSessionInProgress
	}
	defer release()

	if s.cfg.PrecreateOrder {
		if _, err := s.gateway.PutOrder(ctx, orderKey, amount, currency); err != nil {
			s.log.Warn("gateway order pre-creation failed, continuing with session",
				zap.Int64("order_id", id), zap.Error(err))
		}
	}

	session, err := s.negotiate(ctx, req, orderKey, amount, currency)
	if err != nil {
		s.log.Error("checkout session negotiation failed", zap.Int64("order_id", id), zap.Error(err))
		return paymentdomain.CheckoutSession{}, err
	}

	saved, err := s.repo.SaveCorrelation(ctx, s.db, id, orderdomain.Correlation{
		SessionID:        session.ID,
		SuccessIndicator: session.SuccessIndicator,
	}, s.now())
	if err != nil {
		s.paymentMetrics.IncPersistenceError("save_correlation", err)
		return paymentdomain.CheckoutSession{}, fmt.Errorf("%w: %v", paymentdomain.ErrCorrelationNotSaved, err)
	}
	if !saved {
		// Paid by a concurrent confirmation while negotiating.
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrAlreadyPaid
	}
	s.publish(ctx, id, order.PaymentStatus, orderdomain.PaymentStatusPending, paymentdomain.SourceSession)

	s.log.Info("checkout session created",
		zap.Int64("order_id", id),
		zap.String("session_id", session.ID),
		zap.String("attempt", session.Attempt),
		zap.Bool("hosted", req.Hosted),
	)

	return s.describe(id, session, amount, currency), nil
}

func (s *CheckoutService) negotiate(ctx context.Context, req paymentdomain.CheckoutRequest, orderKey string, amount decimal.Decimal, currency string) (mpgs.Session, error) {
	sessionReq := mpgs.SessionRequest{OrderID: orderKey, Amount: amount, Currency: currency}
	if !req.Hosted {
		return s.negotiator.Negotiate(ctx, sessionReq)
	}
	return s.negotiator.NegotiateHosted(ctx, mpgs.HostedRequest{
		SessionRequest: sessionReq,
		ReturnURL:      s.returnURL(orderKey),
		CancelURL:      s.cancelURL(orderKey),
		MerchantName:   s.cfg.MerchantName,
		Description:    "Order #" + orderKey,
		Locale:         locale(req.Lang),
	})
}

func (s *CheckoutService) resolveCurrency(requested, stored string) string {
	for _, c := range []string{requested, stored, s.cfg.DefaultCurrency} {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			return c
		}
	}
	return ""
}

func (s *CheckoutService) describe(id int64, session mpgs.Session, amount decimal.Decimal, currency string) paymentdomain.CheckoutSession {
	orderKey := gatewayOrderID(id)
	return paymentdomain.CheckoutSession{
		OrderID:          id,
		SessionID:        session.ID,
		SuccessIndicator: session.SuccessIndicator,
		Attempt:          session.Attempt,
		Amount:           amount,
		Currency:         currency,
		CheckoutURL:      s.cfg.GatewayURL + "/checkout/pay/" + url.PathEscape(session.ID),
		CheckoutScript:   s.cfg.GatewayURL + "/static/checkout/checkout.min.js",
		PaymentURL:       s.paymentURL(orderKey, session.ID),
		ReturnURL:        s.returnURL(orderKey),
		CancelURL:        s.cancelURL(orderKey),
	}
}

func (s *CheckoutService) paymentURL(orderKey, sessionID string) string {
	q := url.Values{}
	q.Set("orderId", orderKey)
	q.Set("sessionId", sessionID)
	return s.cfg.ReturnBaseURL + "/payment/view?" + q.Encode()
}

func (s *CheckoutService) returnURL(orderKey string) string {
	return s.cfg.ReturnBaseURL + "/return?orderId=" + url.QueryEscape(orderKey)
}

func (s *CheckoutService) cancelURL(orderKey string) string {
	return s.cfg.ReturnBaseURL + "/payment/cancel?orderId=" + url.QueryEscape(orderKey)
}

// ResumeSession describes the checkout session already stored on the order
// when sessionID still identifies it. It reports false when a new session is
// needed.
func (s *CheckoutService) ResumeSession(ctx context.Context, rawOrderID, sessionID string) (paymentdomain.CheckoutSession, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	id, err := parseOrderID(strings.TrimSpace(rawOrderID))
	if err != nil || sessionID == "" {
		return paymentdomain.CheckoutSession{}, false, err
	}
	s.guard.Ensure(ctx)

	order, err := s.loadOrder(ctx, s.db, id)
	if err != nil {
		return paymentdomain.CheckoutSession{}, false, err
	}
	if order.IsPaid() {
		return paymentdomain.CheckoutSession{}, false, paymentdomain.ErrAlreadyPaid
	}
	if order.PaymentSessionID != sessionID {
		return paymentdomain.CheckoutSession{}, false, nil
	}

	currency := s.resolveCurrency("", order.Currency)
	return s.describe(id, mpgs.Session{ID: sessionID}, order.TotalAmount, currency), true, nil
}

// Status reports the current payment state of an order.
func (s *CheckoutService) Status(ctx context.Context, rawOrderID string) (paymentdomain.PaymentStatus, error) {
	id, err := parseOrderID(strings.TrimSpace(rawOrderID))
	if err != nil {
		return paymentdomain.PaymentStatus{}, err
	}
	s.guard.Ensure(ctx)

	order, err := s.loadOrder(ctx, s.db, id)
	if err != nil {
		return paymentdomain.PaymentStatus{}, err
	}
	return paymentdomain.PaymentStatus{
		OrderID:         order.ID,
		PaymentStatus:   order.PaymentStatus,
		TransactionID:   order.PaymentTransactionID,
		ResultIndicator: order.PaymentResultIndicator,
	}, nil
}

// OrderView is the debugging view of an order payment.
type OrderView struct {
	Order   *orderdomain.Order          `json:"order"`
	History []orderdomain.StatusHistory `json:"history"`
	Gateway mpgs.Response               `json:"gateway,omitempty"`
}

// Lookup returns the payment fields and history of an order and, when
// withGateway is set, the order as the gateway sees it. Gateway errors are
// logged and leave Gateway empty.
func (s *CheckoutService) Lookup(ctx context.Context, rawOrderID string, withGateway bool) (OrderView, error) {
	id, err := parseOrderID(strings.TrimSpace(rawOrderID))
	if err != nil {
		return OrderView{}, err
	}
	s.guard.Ensure(ctx)

	order, err := s.loadOrder(ctx, s.db, id)
	if err != nil {
		return OrderView{}, err
	}
	history, err := s.repo.ListHistory(ctx, s.db, id)
	if err != nil {
		s.paymentMetrics.IncPersistenceError("list_history", err)
		return OrderView{}, err
	}

	view := OrderView{Order: order, History: history}
	if withGateway {
		resp, err := s.GatewayOrder(ctx, rawOrderID)
		if err != nil {
			s.log.Warn("gateway order lookup failed", zap.Int64("order_id", id), zap.Error(err))
		} else {
			view.Gateway = resp
		}
	}
	return view, nil
}

// GatewayOrder fetches the order state held by the gateway. It is never used
// to decide a payment status.
func (s *CheckoutService) GatewayOrder(ctx context.Context, rawOrderID string) (mpgs.Response, error) {
	id, err := parseOrderID(strings.TrimSpace(rawOrderID))
	if err != nil {
		return nil, err
	}
	if !s.cfg.Configured() {
		return nil, mpgs.ErrConfiguration
	}
	return s.gateway.GetOrder(ctx, gatewayOrderID(id))
}

func locale(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "ar":
		return "ar"
	case "en":
		return "en"
	default:
		return ""
	}
}
