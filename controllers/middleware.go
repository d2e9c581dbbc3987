package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"
	"github.com/blavejr/mealscout/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-ID"
	UserIDHeader    = "X-User-ID"

	requestIDKey = "request_id"
)

const quotaContent = "You've reached your daily search limit. Please come back tomorrow!"

// RequestID tags each request with an id, reusing the caller's when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger replaces gin's default logger with zap.
func RequestLogger() gin.HandlerFunc {
	log := logger.L().Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", RequestIDFrom(c)),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// UsageDay is the quota bucket for t: the UTC calendar day.
func UsageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DailyQuota limits requests per X-User-ID per UTC day. Requests without a
// user id and requests whose counter cannot be read are let through.
func DailyQuota(usage services.UsageStore, limit int, bg *services.Background) gin.HandlerFunc {
	log := logger.L().Named("quota")
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if usage == nil || limit <= 0 || userID == "" {
			c.Next()
			return
		}

		day := UsageDay(time.Now())
		count, err := usage.Count(c.Request.Context(), userID, day)
		if err != nil {
			log.Warn("usage lookup failed, allowing request", zap.String("user", userID), zap.Error(err))
			c.Next()
			return
		}
		if count >= limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "Daily search limit reached",
				Content: quotaContent,
				Meals:   []models.Meal{},
			})
			return
		}

		increment := func(ctx context.Context) error {
			return usage.Increment(ctx, userID, day)
		}
		if bg != nil {
			bg.Go("usage-increment", increment)
		} else if err := increment(c.Request.Context()); err != nil {
			log.Warn("usage increment failed", zap.String("user", userID), zap.Error(err))
		}
		c.Next()
	}
}
