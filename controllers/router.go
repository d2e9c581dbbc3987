package controllers

import (
	"net/http"

	"github.com/blavejr/mealscout/services"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Chat        ChatService
	Search      SearchService
	Usage       services.UsageStore
	DailyLimit  int
	Background  *services.Background
	ServiceName string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger())

	name := deps.ServiceName
	if name == "" {
		name = "mealscout"
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": name,
		})
	})

	chat := NewChatController(deps.Chat)
	search := NewSearchController(deps.Search)

	api := router.Group("/api")
	{
		api.POST("/chat", DailyQuota(deps.Usage, deps.DailyLimit, deps.Background), chat.Chat)
		api.POST("/search", search.Search)
	}
	return router
}
