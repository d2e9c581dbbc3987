package models

type ChatRequest struct {
	Messages    []ConversationMessage `json:"messages" binding:"required,min=1,dive"`
	UserProfile *UserProfile          `json:"userProfile" binding:"required"`
	Location    *Location             `json:"location,omitempty"`
	RadiusMiles *float64              `json:"radiusMiles,omitempty"`
}

// ChatResponse carries no meals exactly when the answer is conversational only.
type ChatResponse struct {
	Content string `json:"content"`
	Meals   []Meal `json:"meals"`
}

type SearchRequest struct {
	Query       string    `json:"query" binding:"required"`
	Location    *Location `json:"location,omitempty"`
	RadiusMiles *float64  `json:"radiusMiles,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Content string `json:"content,omitempty"`
	Meals   []Meal `json:"meals"`
}
