package mpgs

import "strings"

// Response is a decoded gateway JSON object. The gateway's response shape
// varies by API version and operation, so fields are looked up by path.
type Response map[string]interface{}

// String returns the string at a dotted path such as "session.id".
func (r Response) String(path string) string {
	var current interface{} = map[string]interface{}(r)
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = obj[key]
	}
	switch v := current.(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

func (r Response) first(paths ...string) string {
	for _, p := range paths {
		if v := r.String(p); v != "" {
			return v
		}
	}
	return ""
}

// Session is the normalized result of a session creation call.
type Session struct {
	ID               string `json:"sessionId"`
	SuccessIndicator string `json:"successIndicator"`
	Version          string `json:"sessionVersion,omitempty"`
	CheckoutJS       string `json:"checkoutJs,omitempty"`
	Attempt          string `json:"-"`
}

// NormalizeSession extracts the session id and success indicator from any of
// the known response layouts.
func NormalizeSession(resp Response) (Session, error) {
	s := Session{
		ID:               resp.first("session.id", "sessionId", "id"),
		SuccessIndicator: resp.first("successIndicator", "session.successIndicator"),
		Version:          resp.first("session.version", "sessionVersion"),
		CheckoutJS:       resp.first("checkoutJs", "session.checkoutJs"),
	}
	if s.ID == "" || s.SuccessIndicator == "" {
		return Session{}, ErrUnrecognizedResponse
	}
	return s, nil
}

// LatestTransactionID returns the id of the last transaction listed on a
// gateway order, if any.
func (r Response) LatestTransactionID() string {
	txns, ok := r["transaction"].([]interface{})
	if !ok || len(txns) == 0 {
		return ""
	}
	last, ok := txns[len(txns)-1].(map[string]interface{})
	if !ok {
		return ""
	}
	return Response(last).first("transaction.id", "id")
}
