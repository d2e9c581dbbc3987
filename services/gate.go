package services

import (
	"strings"

	"github.com/blavejr/mealscout/models"
)

var generalQuestionOpeners = []string{
	"how much", "how many", "what is", "what are", "why are", "why is",
	"explain", "tell me about", "what does", "what do", "should i",
	"can you explain", "what's the difference", "how do i", "how does",
	"what should", "is it", "are they", "does it", "do they",
}

var mealSeekingKeywords = []string{
	"find", "show", "recommend", "suggest", "meal", "food", "restaurant", "dish", "item",
}

// ShouldRecommendMeals decides between meal cards and a plain answer.
// It only says no to a general nutrition question that asks for nothing to eat.
func ShouldRecommendMeals(history []models.ConversationMessage, intent models.IntentExtraction) bool {
	if intent.HasRestaurant() {
		return true
	}

	msg := strings.ToLower(strings.TrimSpace(models.LatestContent(history)))

	general := false
	for _, opener := range generalQuestionOpeners {
		if strings.HasPrefix(msg, opener) {
			general = true
			break
		}
	}
	if !general {
		return true
	}

	for _, kw := range mealSeekingKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
