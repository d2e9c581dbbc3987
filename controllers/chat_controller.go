package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"
	"github.com/blavejr/mealscout/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const searchErrorContent = "Sorry, I encountered an error while searching. Please try again."

type ChatService interface {
	Chat(ctx context.Context, in services.ChatInput) (models.ChatResponse, error)
}

type ChatController struct {
	chat ChatService
	log  *zap.Logger
}

func NewChatController(chat ChatService) *ChatController {
	return &ChatController{chat: chat, log: logger.L().Named("chat")}
}

func (cc *ChatController) Chat(c *gin.Context) {
	startTime := time.Now()

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		cc.log.Info("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: messages and userProfile are required"})
		return
	}
	if strings.TrimSpace(models.LatestContent(req.Messages)) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: last message is empty"})
		return
	}

	resp, err := cc.chat.Chat(c.Request.Context(), services.ChatInput{
		Messages:    req.Messages,
		Profile:     req.UserProfile,
		Location:    req.Location,
		RadiusMiles: req.RadiusMiles,
	})
	if err != nil {
		cc.log.Error("chat failed", zap.Error(err), zap.String("request_id", RequestIDFrom(c)))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to process chat request",
			Content: searchErrorContent,
			Meals:   []models.Meal{},
		})
		return
	}
	if resp.Meals == nil {
		resp.Meals = []models.Meal{}
	}

	cc.log.Info("chat answered",
		zap.Int("meals", len(resp.Meals)),
		zap.Duration("took", time.Since(startTime)))
	c.JSON(http.StatusOK, resp)
}
