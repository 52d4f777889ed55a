package domain

import (
	"strconv"
	"strings"
)

// ParseOrderID accepts the decimal order ids used by storefront and mobile
// clients.
func ParseOrderID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidOrder
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidOrder
	}
	return id, nil
}
