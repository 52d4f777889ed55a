package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const contextSubjectKey = "auth_subject"

// AuthRequired accepts an HS256 bearer token signed with AUTH_JWT_SECRET.
// Without a configured secret every request is rejected.
func (s *Server) AuthRequired() gin.HandlerFunc {
	secret := []byte(s.cfg.AuthJWTSecret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		if len(secret) == 0 {
			s.log.Warn("AUTH_JWT_SECRET is not set, rejecting authenticated route", zap.String("path", c.FullPath()))
			respondError(c, ErrUnauthorized)
			return
		}

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			respondError(c, ErrUnauthorized)
			return
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			respondError(c, ErrUnauthorized)
			return
		}

		if subject, err := claims.GetSubject(); err == nil && subject != "" {
			c.Set(contextSubjectKey, subject)
		} else if userID, ok := claims["user_id"]; ok {
			c.Set(contextSubjectKey, userID)
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
