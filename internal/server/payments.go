package server

import (
	"errors"
	"net/http"
	"net/url"

	orderdomain "github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	paymentdomain "github.com/Mujanati13/Qabalan-sub007/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentView starts the gateway-hosted payment page for an order. A
// sessionId that still matches the order is reused, and a paid order goes
// straight to the success page.
func (s *Server) PaymentView(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := orderIDFromQuery(c)
	mobile := isMobile(c)
	lang := c.Query("lang")

	session, ok, err := s.checkout.ResumeSession(ctx, orderID, c.Query("sessionId"))
	if err == nil && !ok {
		session, err = s.checkout.CreateSession(ctx, paymentdomain.CheckoutRequest{
			OrderID: orderID,
			Hosted:  true,
			Lang:    lang,
		})
	}
	if err != nil {
		if mobile {
			respondError(c, err)
			return
		}
		if errors.Is(err, paymentdomain.ErrAlreadyPaid) {
			s.redirect(c, "payment-success", orderID)
			return
		}
		s.redirectFailed(c, orderID, err)
		return
	}

	if mobile {
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"sessionId":   session.SessionID,
			"paymentUrl":  session.PaymentURL,
			"checkoutUrl": session.CheckoutURL,
		})
		return
	}

	lang, dir, text := pageLang(lang)
	c.HTML(http.StatusOK, "checkout.html", gin.H{
		"Lang":           lang,
		"Dir":            dir,
		"Title":          text.CheckoutTitle,
		"Message":        text.CheckoutMessage,
		"SessionID":      session.SessionID,
		"CheckoutScript": session.CheckoutScript,
		"CancelURL":      session.CancelURL,
		"FailedURL":      s.frontendURL("payment-failed", orderID),
	})
}

func (s *Server) PaymentStatus(c *gin.Context) {
	status, err := s.checkout.Status(c.Request.Context(), orderIDFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"orderId":         status.OrderID,
		"paymentStatus":   status.PaymentStatus,
		"transactionId":   status.TransactionID,
		"resultIndicator": status.ResultIndicator,
	})
}

// PaymentSuccess is the client-initiated success signal. It is weaker than
// the gateway return; see Reconciler.HandleSuccessCallback.
func (s *Server) PaymentSuccess(c *gin.Context) {
	orderID := orderIDFromQuery(c)
	mobile := isMobile(c)

	outcome, err := s.reconciler.HandleSuccessCallback(c.Request.Context(), orderID, c.Query("resultIndicator"))
	if err != nil {
		if mobile {
			respondError(c, err)
			return
		}
		s.redirectFailed(c, orderID, err)
		return
	}

	if mobile {
		c.JSON(http.StatusOK, gin.H{
			"success":       outcome.Succeeded(),
			"orderId":       orderID,
			"outcome":       outcome,
			"paymentStatus": paymentStatusOf(outcome),
		})
		return
	}
	if !outcome.Succeeded() {
		s.redirect(c, "payment-failed", orderID)
		return
	}

	lang, dir, text := pageLang(c.Query("lang"))
	c.HTML(http.StatusOK, "success.html", gin.H{
		"Lang":        lang,
		"Dir":         dir,
		"Title":       text.SuccessTitle,
		"Message":     text.SuccessMessage,
		"Continue":    text.Continue,
		"ContinueURL": s.frontendURL("payment-success", orderID),
	})
}

func (s *Server) PaymentCancel(c *gin.Context) {
	orderID := orderIDFromQuery(c)
	mobile := isMobile(c)

	if _, err := s.reconciler.Cancel(c.Request.Context(), orderID); err != nil {
		if mobile {
			respondError(c, err)
			return
		}
		s.redirectFailed(c, orderID, err)
		return
	}

	if mobile {
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"orderId":       orderID,
			"paymentStatus": orderdomain.PaymentStatusPending,
		})
		return
	}
	s.redirect(c, "payment-cancelled", orderID)
}

// CreateSession is the embedded checkout session endpoint used by the
// storefront and admin tools.
func (s *Server) CreateSession(c *gin.Context) {
	req, err := bindCheckoutRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	session, err := s.checkout.CreateSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"sessionId":        session.SessionID,
		"successIndicator": session.SuccessIndicator,
		"checkoutUrl":      session.CheckoutURL,
		"redirectUrl":      session.CheckoutURL,
		"paymentUrl":       session.PaymentURL,
		"returnUrl":        session.ReturnURL,
		"cancelUrl":        session.CancelURL,
	})
}

func (s *Server) CreateMobileSession(c *gin.Context) {
	req, err := bindCheckoutRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	session, err := s.checkout.CreateSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"sessionId":        session.SessionID,
		"paymentUrl":       session.PaymentURL,
		"checkoutUrl":      session.CheckoutURL,
		"successIndicator": session.SuccessIndicator,
	})
}

// CreateCheckoutSession creates a hosted checkout session for an
// authenticated caller.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	req, err := bindCheckoutRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}
	req.Hosted = true

	session, err := s.checkout.CreateSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":      session.SessionID,
		"checkoutUrl":    session.CheckoutURL,
		"checkoutScript": session.CheckoutScript,
	})
}

// HandleReturn is the gateway return target. It always redirects to the
// storefront; only an indicator matching the stored one lands on the success
// page.
func (s *Server) HandleReturn(c *gin.Context) {
	orderID := orderIDFromQuery(c)

	outcome, err := s.reconciler.HandleReturn(c.Request.Context(), orderID, c.Query("resultIndicator"))
	if err != nil {
		s.redirectFailed(c, orderID, err)
		return
	}
	if outcome.Succeeded() {
		s.redirect(c, "payment-success", orderID)
		return
	}
	s.redirect(c, "payment-failed", orderID)
}

func (s *Server) GetOrder(c *gin.Context) {
	view, err := s.checkout.Lookup(c.Request.Context(), c.Param("id"), c.Query("gateway") == "true")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   view.Order,
		"history": view.History,
		"gateway": view.Gateway,
	})
}

func (s *Server) frontendURL(page, orderID string) string {
	return s.cfg.MPGS.FrontendBaseURL + "/" + page + "?orderId=" + url.QueryEscape(orderID)
}

func (s *Server) redirect(c *gin.Context, page, orderID string) {
	c.Redirect(http.StatusFound, s.frontendURL(page, orderID))
}

func (s *Server) redirectFailed(c *gin.Context, orderID string, err error) {
	_ = c.Error(err)
	s.log.Error("payment flow failed, redirecting to failure page",
		zap.String("order_id", orderID),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	s.redirect(c, "payment-failed", orderID)
}

func paymentStatusOf(outcome paymentdomain.Outcome) orderdomain.PaymentStatus {
	switch outcome {
	case paymentdomain.OutcomePaid, paymentdomain.OutcomeAlreadyPaid:
		return orderdomain.PaymentStatusPaid
	case paymentdomain.OutcomeFailed:
		return orderdomain.PaymentStatusFailed
	default:
		return orderdomain.PaymentStatusPending
	}
}
