package server

import (
	"strconv"
	"strings"

	paymentdomain "github.com/Mujanati13/Qabalan-sub007/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
)

var (
	orderIDKeys  = []string{"orderId", "order_id", "orderID"}
	amountKeys   = []string{"amount", "total", "total_amount"}
	currencyKeys = []string{"currency", "currencyCode"}
)

// bindCheckoutRequest reads a session request from a JSON or form body,
// accepting the field aliases used by storefront, admin and mobile clients.
// Query parameters fill anything the body leaves out.
func bindCheckoutRequest(c *gin.Context) (paymentdomain.CheckoutRequest, error) {
	body := map[string]interface{}{}
	if c.Request.ContentLength != 0 {
		switch c.ContentType() {
		case binding.MIMEJSON:
			if err := c.ShouldBindJSON(&body); err != nil {
				return paymentdomain.CheckoutRequest{}, ErrInvalidRequest
			}
		case binding.MIMEPOSTForm, binding.MIMEMultipartPOSTForm:
			if err := c.Request.ParseForm(); err != nil {
				return paymentdomain.CheckoutRequest{}, ErrInvalidRequest
			}
			for key, values := range c.Request.PostForm {
				if len(values) > 0 {
					body[key] = values[0]
				}
			}
		}
	}

	req := paymentdomain.CheckoutRequest{
		OrderID:  lookup(c, body, orderIDKeys...),
		Currency: lookup(c, body, currencyKeys...),
		Lang:     lookup(c, body, "lang"),
	}
	if raw := lookup(c, body, amountKeys...); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return paymentdomain.CheckoutRequest{}, paymentdomain.ErrInvalidAmount
		}
		req.Amount = &amount
	}
	return req, nil
}

func lookup(c *gin.Context, body map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v := stringValue(body[key]); v != "" {
			return v
		}
	}
	return queryValue(c, keys...)
}

func queryValue(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			return v
		}
	}
	return ""
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func orderIDFromQuery(c *gin.Context) string {
	return queryValue(c, orderIDKeys...)
}

func isMobile(c *gin.Context) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query("mobile"))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
