package api

import (
	"strconv"
	"strings"
	"time"

	"commerce-service/config"
	"commerce-service/internal/apperror"
	"commerce-service/internal/auth"
	"commerce-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsKey = "claims"

// requireAuth rejects requests without a valid bearer token
func requireAuth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			abortWith(c, apperror.New(apperror.KindUnauthorized, "missing bearer token"))
			return
		}

		claims, err := auth.ParseToken(cfg, strings.TrimSpace(token))
		if err != nil {
			abortWith(c, apperror.Wrap(apperror.KindUnauthorized, err, "invalid token"))
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireAdmin must run after requireAuth
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentClaims(c).IsAdmin() {
			abortWith(c, apperror.New(apperror.KindForbidden, "admin role required"))
			return
		}
		c.Next()
	}
}

func currentClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

func currentUserID(c *gin.Context) int64 {
	if claims := currentClaims(c); claims != nil {
		return claims.UserID
	}
	return 0
}

func abortWith(c *gin.Context, err *apperror.Error) {
	c.AbortWithStatusJSON(err.Kind().HTTPStatus(), gin.H{
		"error": err.Message(),
		"code":  err.Kind(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger logs one line per request through zap
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("user_id", currentUserID(c)),
			zap.Duration("latency", time.Since(start)))
	}
}
