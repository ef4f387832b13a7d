package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mediachat/internal/redis"
)

// RequestLogger logs every request through zerolog.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", clientIP(c)).
			Msg("request")
	}
}

// IPAllowlist rejects requests from addresses outside the configured set.
func IPAllowlist(allowed []string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, ip := range allowed {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowedSet[ip] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		if _, ok := allowedSet[clientIP(c)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "ip not allowed"})
			return
		}
		c.Next()
	}
}

// RateLimit enforces a per-IP request budget per minute, backed by redis. A
// nil client disables limiting; a redis failure lets the request through.
func RateLimit(client *redis.Client, perMinute int, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || perMinute <= 0 {
			c.Next()
			return
		}
		key := fmt.Sprintf("ratelimit:%s", clientIP(c))
		count, err := client.IncrWindow(c.Request.Context(), key, time.Minute)
		if err != nil {
			log.Warn().Err(err).Msg("rate limit check failed")
			c.Next()
			return
		}
		if count > int64(perMinute) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// clientIP prefers the proxy-set headers and falls back to the socket peer.
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}
