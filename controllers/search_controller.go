package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"
	"github.com/blavejr/mealscout/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SearchService interface {
	Search(ctx context.Context, query string, opts services.RetrieveOptions) ([]models.Meal, error)
}

type SearchController struct {
	search SearchService
	log    *zap.Logger
}

func NewSearchController(search SearchService) *SearchController {
	return &SearchController{search: search, log: logger.L().Named("search")}
}

func (sc *SearchController) Search(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	meals, err := sc.search.Search(c.Request.Context(), strings.TrimSpace(req.Query), services.RetrieveOptions{
		RadiusMiles: req.RadiusMiles,
		Location:    req.Location,
	})
	if err != nil {
		sc.log.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search menu items"})
		return
	}
	if meals == nil {
		meals = []models.Meal{}
	}

	sc.log.Info("search answered", zap.String("query", req.Query), zap.Int("meals", len(meals)))
	c.JSON(http.StatusOK, meals)
}
