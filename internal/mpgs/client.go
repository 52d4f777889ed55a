package mpgs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/Mujanati13/Qabalan-sub007/internal/observability/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

// Gateway is the REST surface of the payment gateway used by the checkout
// and reconciliation flows.
type Gateway interface {
	CreateSession(ctx context.Context, payload map[string]interface{}) (Response, error)
	GetOrder(ctx context.Context, orderID string) (Response, error)
	PutOrder(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (Response, error)
	RunTransaction(ctx context.Context, orderID string, req TransactionRequest) (Response, error)
}

const (
	OperationAuthorize = "AUTHORIZE"
	OperationCapture   = "CAPTURE"
	OperationRefund    = "REFUND"
	OperationPay       = "PAY"
	OperationVoid      = "VOID"
)

// TransactionRequest submits a financial operation against a gateway order.
// TransactionID is generated when empty.
type TransactionRequest struct {
	TransactionID string
	Operation     string
	Amount        decimal.Decimal
	Currency      string
	Extra         map[string]interface{}
}

type ClientParams struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
	HTTPClient *http.Client     `name:"mpgs_http_client" optional:"true"`
}

// Client issues authenticated calls against one merchant's REST endpoint.
type Client struct {
	cfg     config.MPGSConfig
	http    *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewClient(p ClientParams) *Client {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := p.HTTPClient
	if httpClient == nil {
		timeout := p.Config.MPGS.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		cfg:     p.Config.MPGS,
		http:    httpClient,
		log:     log.Named("mpgs.client"),
		metrics: p.Metrics,
	}
}

func (c *Client) CreateSession(ctx context.Context, payload map[string]interface{}) (Response, error) {
	return c.do(ctx, "create_session", http.MethodPost, "/session", payload)
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (Response, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrInvalidRequest
	}
	return c.do(ctx, "get_order", http.MethodGet, "/order/"+url.PathEscape(orderID), nil)
}

// PutOrder creates or updates the gateway-side order. Repeating the call with
// the same values has no further effect.
func (c *Client) PutOrder(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (Response, error) {
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(currency) == "" {
		return nil, ErrInvalidRequest
	}
	payload := map[string]interface{}{
		"order": map[string]interface{}{
			"amount":   FormatAmount(amount, currency),
			"currency": strings.ToUpper(currency),
		},
	}
	return c.do(ctx, "put_order", http.MethodPut, "/order/"+url.PathEscape(orderID), payload)
}

func (c *Client) RunTransaction(ctx context.Context, orderID string, req TransactionRequest) (Response, error) {
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(req.Operation) == "" {
		return nil, ErrInvalidRequest
	}
	txnID := strings.TrimSpace(req.TransactionID)
	if txnID == "" {
		txnID = uuid.NewString()
	}

	payload := map[string]interface{}{}
	for k, v := range req.Extra {
		payload[k] = v
	}
	payload["apiOperation"] = strings.ToUpper(req.Operation)
	if req.Currency != "" {
		payload["transaction"] = map[string]interface{}{
			"amount":   FormatAmount(req.Amount, req.Currency),
			"currency": strings.ToUpper(req.Currency),
		}
	}

	path := "/order/" + url.PathEscape(orderID) + "/transaction/" + url.PathEscape(txnID)
	return c.do(ctx, "transaction_"+strings.ToLower(req.Operation), http.MethodPut, path, payload)
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("%s/api/rest/version/%s/merchant/%s",
		strings.TrimRight(c.cfg.GatewayURL, "/"),
		url.PathEscape(c.cfg.APIVersion),
		url.PathEscape(c.cfg.MerchantID),
	)
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload map[string]interface{}) (Response, error) {
	if c.cfg.MerchantID == "" || c.cfg.APIPassword == "" {
		return nil, ErrConfiguration
	}
	username := c.cfg.APIUsername
	if username == "" {
		username = "merchant." + c.cfg.MerchantID
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode payload: %v", ErrInvalidRequest, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(username, c.cfg.APIPassword)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordGatewayCall(ctx, operation, "unreachable", time.Since(start))
		c.log.Warn("gateway call failed", zap.String("operation", operation), zap.Error(err))
		return nil, &UnreachableError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordGatewayCall(ctx, operation, "unreachable", time.Since(start))
		return nil, &UnreachableError{Operation: operation, Err: err}
	}

	out, err := decodeResponse(resp.StatusCode, raw)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrGatewayRejected):
		outcome = "rejected"
	case err != nil:
		outcome = "protocol_error"
	}
	c.metrics.RecordGatewayCall(ctx, operation, outcome, time.Since(start))

	if err != nil {
		c.log.Warn("gateway call unsuccessful",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
			zap.ByteString("body", truncate(raw)),
		)
		return nil, err
	}
	return out, nil
}

type errorBody struct {
	Result string `json:"result"`
	Error  *struct {
		Cause          string `json:"cause"`
		Explanation    string `json:"explanation"`
		Field          string `json:"field"`
		ValidationType string `json:"validationType"`
	} `json:"error"`
}

func decodeResponse(status int, raw []byte) (Response, error) {
	var parsed errorBody
	parseErr := json.Unmarshal(raw, &parsed)

	if parseErr == nil && parsed.Error != nil && (status >= http.StatusBadRequest || strings.EqualFold(parsed.Result, "ERROR")) {
		return nil, &RejectedError{
			StatusCode:     status,
			Cause:          strings.TrimSpace(parsed.Error.Cause),
			Explanation:    strings.TrimSpace(parsed.Error.Explanation),
			Field:          strings.TrimSpace(parsed.Error.Field),
			ValidationType: strings.TrimSpace(parsed.Error.ValidationType),
		}
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: http %d without error body", ErrGatewayProtocol, status)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayProtocol, parseErr)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrGatewayProtocol)
	}
	return out, nil
}

func truncate(raw []byte) []byte {
	if len(raw) > maxErrorBody {
		return raw[:maxErrorBody]
	}
	return raw
}

var _ Gateway = (*Client)(nil)
