package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"perpilot/internal/apperr"
)

// authMiddleware enforces a bearer JWT signed with the façade secret. The core has no notion of
// users (spec §6: "no UI coupling in the core"), so this is a gate, not a tenancy boundary —
// a valid token is sufficient, its subject claim is not consulted.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.jwtSecret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": string(apperr.UpstreamAuth), "message": "missing bearer token"})
			return
		}

		_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(s.jwtSecret), nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": string(apperr.UpstreamAuth), "message": "invalid token: " + err.Error()})
			return
		}

		c.Next()
	}
}

// statusFor maps an error Kind to its façade HTTP status (spec §7).
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.ValidationFailed:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.ConflictOrDup:
		return http.StatusConflict
	case apperr.PreconditionFail:
		return http.StatusPreconditionFailed
	case apperr.UpstreamAuth:
		return http.StatusUnauthorized
	case apperr.UpstreamTransient:
		return http.StatusServiceUnavailable
	case apperr.UpstreamPermanent, apperr.MalformedUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes the {code, message, error_reason?} body spec §7 mandates.
func respondErr(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := gin.H{"code": string(kind), "message": err.Error()}
	if reason := apperr.ReasonOf(err); reason != "" && reason != err.Error() {
		body["error_reason"] = reason
	}
	c.JSON(statusFor(kind), body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": string(apperr.ValidationFailed), "message": msg})
}
