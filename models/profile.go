package models

// UserProfile is created at onboarding and only read by the pipeline.
type UserProfile struct {
	DietType            string   `json:"diet_type,omitempty"`
	DietaryOptions      []string `json:"dietary_options,omitempty"`
	TargetCalories      *float64 `json:"target_calories,omitempty"`
	TargetProteinG      *float64 `json:"target_protein_g,omitempty"`
	TargetCarbsG        *float64 `json:"target_carbs_g,omitempty"`
	TargetFatsG         *float64 `json:"target_fats_g,omitempty"`
	SearchDistanceMiles *float64 `json:"search_distance_miles,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ConversationMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content"`
}

// LatestContent returns the content of the last message, or "".
func LatestContent(history []ConversationMessage) string {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Content
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IntentExtraction is produced fresh for every user turn.
type IntentExtraction struct {
	RestaurantName  *string         `json:"restaurant_name"`
	SemanticQuery   string          `json:"semantic_query"`
	HardConstraints HardConstraints `json:"hard_constraints"`
}

// HasRestaurant reports whether a non-empty restaurant name was extracted.
func (i IntentExtraction) HasRestaurant() bool {
	return i.RestaurantName != nil && *i.RestaurantName != ""
}

type HardConstraints struct {
	MaxCalories *float64 `json:"max_calories,omitempty"`
	MinCalories *float64 `json:"min_calories,omitempty"`
	MaxProtein  *float64 `json:"max_protein,omitempty"`
	MinProtein  *float64 `json:"min_protein,omitempty"`
	MaxCarbs    *float64 `json:"max_carbs,omitempty"`
	MinCarbs    *float64 `json:"min_carbs,omitempty"`
	MaxFats     *float64 `json:"max_fats,omitempty"`
	MinFats     *float64 `json:"min_fats,omitempty"`
	Diet        *string  `json:"diet,omitempty"`
	DietaryTags []string `json:"dietary_tags,omitempty"`
}
