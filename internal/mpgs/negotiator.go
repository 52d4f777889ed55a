package mpgs

import (
	"context"
	"strings"

	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/Mujanati13/Qabalan-sub007/internal/observability/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	apiOperationCreateCheckout   = "CREATE_CHECKOUT_SESSION"
	apiOperationInitiateCheckout = "INITIATE_CHECKOUT"
	interactionPurchase          = "PURCHASE"
)

// Attempt labels, one per step of the negotiation chains.
const (
	AttemptCreateMinimal         = "create_minimal"
	AttemptCreateWithAmount      = "create_with_amount"
	AttemptInitiateWithSource    = "initiate_with_source"
	AttemptInitiateWithoutSource = "initiate_without_source"
	AttemptHostedCreate          = "hosted_create"
	AttemptHostedInitiate        = "hosted_initiate"
)

// RetryClassifier decides whether a gateway explanation describes a request
// shape the merchant profile does not accept.
type RetryClassifier func(explanation string) bool

type SessionRequest struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
}

type HostedRequest struct {
	SessionRequest
	ReturnURL    string
	CancelURL    string
	MerchantName string
	Description  string
	Locale       string
}

func (r SessionRequest) validate() error {
	if strings.TrimSpace(r.OrderID) == "" || strings.TrimSpace(r.Currency) == "" {
		return ErrInvalidRequest
	}
	return nil
}

type NegotiatorParams struct {
	fx.In

	Gateway    Gateway
	Classifier RetryClassifier
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
}

// Negotiator creates checkout sessions, falling back across request shapes
// when a merchant profile rejects one.
type Negotiator struct {
	gateway    Gateway
	classifier RetryClassifier
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewNegotiator(p NegotiatorParams) *Negotiator {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	classifier := p.Classifier
	if classifier == nil {
		classifier = func(string) bool { return false }
	}
	return &Negotiator{
		gateway:    p.Gateway,
		classifier: classifier,
		log:        log.Named("mpgs.negotiator"),
		metrics:    p.Metrics,
	}
}

// NewClassifier exposes the hot-reloaded pattern list as a RetryClassifier.
func NewClassifier(holder *config.NegotiationHolder) RetryClassifier {
	return holder.IsRetryable
}

// Negotiate runs the embedded checkout chain:
//
//  1. CREATE_CHECKOUT_SESSION with no optional fields
//  2. the same with order amount and currency, unless the rejection named them
//  3. INITIATE_CHECKOUT with amount, currency and a card source of funds
//  4. INITIATE_CHECKOUT without source of funds, if step 3 was rejected for it
//
// A rejection whose explanation is not a shape problem stops the chain.
func (n *Negotiator) Negotiate(ctx context.Context, req SessionRequest) (Session, error) {
	if err := req.validate(); err != nil {
		return Session{}, err
	}

	resp, err := n.attempt(ctx, AttemptCreateMinimal, req.OrderID, minimalPayload(req))
	if err == nil {
		return n.normalize(resp, AttemptCreateMinimal)
	}
	rejected, retry := n.retryable(err)
	if !retry {
		return Session{}, err
	}

	if rejected.Mentions("order.amount") || rejected.Mentions("order.currency") {
		n.log.Debug("skipping amount variant, rejection names the amount fields",
			zap.String("order_id", req.OrderID))
	} else {
		resp, err = n.attempt(ctx, AttemptCreateWithAmount, req.OrderID, withAmountPayload(req))
		if err == nil {
			return n.normalize(resp, AttemptCreateWithAmount)
		}
		if _, retry = n.retryable(err); !retry {
			return Session{}, err
		}
	}

	resp, err = n.attempt(ctx, AttemptInitiateWithSource, req.OrderID, initiatePayload(req, true))
	if err == nil {
		return n.normalize(resp, AttemptInitiateWithSource)
	}
	// A rejection naming sourceOfFunds is a shape rejection whatever its
	// wording, so step 4 does not consult the classifier.
	rejected, _ = n.retryable(err)
	if rejected == nil || !rejected.Mentions("sourceOfFunds") {
		return Session{}, err
	}

	resp, err = n.attempt(ctx, AttemptInitiateWithoutSource, req.OrderID, initiatePayload(req, false))
	if err != nil {
		return Session{}, err
	}
	return n.normalize(resp, AttemptInitiateWithoutSource)
}

// NegotiateHosted creates a session for the gateway-hosted payment page. The
// return and cancel URLs are always sent so the gateway stores them on the
// session.
func (n *Negotiator) NegotiateHosted(ctx context.Context, req HostedRequest) (Session, error) {
	if err := req.validate(); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(req.ReturnURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		return Session{}, ErrInvalidRequest
	}

	resp, err := n.attempt(ctx, AttemptHostedCreate, req.OrderID, hostedPayload(req, apiOperationCreateCheckout))
	if err == nil {
		return n.normalize(resp, AttemptHostedCreate)
	}
	if _, retry := n.retryable(err); !retry {
		return Session{}, err
	}

	resp, err = n.attempt(ctx, AttemptHostedInitiate, req.OrderID, hostedPayload(req, apiOperationInitiateCheckout))
	if err != nil {
		return Session{}, err
	}
	return n.normalize(resp, AttemptHostedInitiate)
}

func (n *Negotiator) attempt(ctx context.Context, label, orderID string, payload map[string]interface{}) (Response, error) {
	resp, err := n.gateway.CreateSession(ctx, payload)

	outcome := "ok"
	fields := []zap.Field{
		zap.String("attempt", label),
		zap.String("order_id", orderID),
	}
	if err != nil {
		outcome = "error"
		if rejected, ok := AsRejected(err); ok {
			outcome = "rejected"
			fields = append(fields,
				zap.Int("status", rejected.StatusCode),
				zap.String("cause", rejected.Cause),
				zap.String("explanation", rejected.Explanation),
				zap.String("field", rejected.Field),
			)
		} else {
			fields = append(fields, zap.Error(err))
		}
	}
	fields = append(fields, zap.String("outcome", outcome))
	n.log.Info("mpgs session attempt", fields...)
	n.metrics.RecordSessionAttempt(ctx, label, outcome)

	return resp, err
}

// retryable reports whether err is a shape rejection worth another variant.
// Transport, protocol and configuration failures never are.
func (n *Negotiator) retryable(err error) (*RejectedError, bool) {
	rejected, ok := AsRejected(err)
	if !ok {
		return nil, false
	}
	if !n.classifier(rejected.Explanation) {
		return rejected, false
	}
	return rejected, true
}

func (n *Negotiator) normalize(resp Response, label string) (Session, error) {
	session, err := NormalizeSession(resp)
	if err != nil {
		n.log.Error("session response missing id or success indicator", zap.String("attempt", label))
		return Session{}, err
	}
	session.Attempt = label
	return session, nil
}

func minimalPayload(req SessionRequest) map[string]interface{} {
	return map[string]interface{}{
		"apiOperation": apiOperationCreateCheckout,
		"order": map[string]interface{}{
			"id": req.OrderID,
		},
		"interaction": map[string]interface{}{
			"operation": interactionPurchase,
		},
	}
}

func withAmountPayload(req SessionRequest) map[string]interface{} {
	payload := minimalPayload(req)
	payload["order"] = orderBlock(req)
	return payload
}

func initiatePayload(req SessionRequest, withSource bool) map[string]interface{} {
	payload := map[string]interface{}{
		"apiOperation": apiOperationInitiateCheckout,
		"order":        orderBlock(req),
		"interaction": map[string]interface{}{
			"operation": interactionPurchase,
		},
	}
	if withSource {
		payload["sourceOfFunds"] = map[string]interface{}{"type": "CARD"}
	}
	return payload
}

func hostedPayload(req HostedRequest, operation string) map[string]interface{} {
	order := orderBlock(req.SessionRequest)
	if req.Description != "" {
		order["description"] = req.Description
	}
	interaction := map[string]interface{}{
		"operation": interactionPurchase,
		"returnUrl": req.ReturnURL,
		"cancelUrl": req.CancelURL,
		"merchant": map[string]interface{}{
			"name": req.MerchantName,
		},
	}
	if req.Locale != "" {
		interaction["locale"] = req.Locale
	}
	return map[string]interface{}{
		"apiOperation": operation,
		"order":        order,
		"interaction":  interaction,
	}
}

func orderBlock(req SessionRequest) map[string]interface{} {
	return map[string]interface{}{
		"id":       req.OrderID,
		"amount":   FormatAmount(req.Amount, req.Currency),
		"currency": strings.ToUpper(req.Currency),
	}
}
