package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"

	"go.uber.org/zap"
)

const intentHistoryWindow = 5

// restaurantAliases maps known misspellings (lower-cased) to the catalog spelling.
var restaurantAliases = map[string]string{
	"chipolte":     "Chipotle",
	"chipotle":     "Chipotle",
	"chiptole":     "Chipotle",
	"mac donalds":  "McDonald's",
	"mcdonalds":    "McDonald's",
	"mc donalds":   "McDonald's",
	"macdonalds":   "McDonald's",
	"mcdonald's":   "McDonald's",
	"sweet green":  "Sweetgreen",
	"sweetgreen":   "Sweetgreen",
	"chick fil a":  "Chick-fil-A",
	"chickfila":    "Chick-fil-A",
	"chik fil a":   "Chick-fil-A",
	"chick-fil-a":  "Chick-fil-A",
	"cava grill":   "CAVA",
	"cava":         "CAVA",
	"panera":       "Panera Bread",
	"panera bread": "Panera Bread",
}

// CanonicalRestaurant applies the alias table; unknown names pass through trimmed.
// Null sentinels yield nil.
func CanonicalRestaurant(name *string) *string {
	if name == nil {
		return nil
	}
	n := strings.TrimSpace(*name)
	switch strings.ToLower(n) {
	case "", "null", "none", "n/a":
		return nil
	}
	if canonical, ok := restaurantAliases[strings.ToLower(n)]; ok {
		n = canonical
	}
	return &n
}

type IntentExtractor struct {
	llm     LLM
	timeout time.Duration
	log     *zap.Logger
}

func NewIntentExtractor(llm LLM, timeout time.Duration) *IntentExtractor {
	return &IntentExtractor{
		llm:     llm,
		timeout: timeout,
		log:     logger.L().Named("intent"),
	}
}

// FallbackIntent is used whenever the model cannot produce a usable extraction.
func FallbackIntent(history []models.ConversationMessage, profile *models.UserProfile) models.IntentExtraction {
	intent := models.IntentExtraction{SemanticQuery: models.LatestContent(history)}
	if profile != nil && profile.DietType != "" {
		diet := profile.DietType
		intent.HardConstraints.Diet = &diet
	}
	return intent
}

// Extract never fails; model errors degrade to FallbackIntent.
func (e *IntentExtractor) Extract(ctx context.Context, history []models.ConversationMessage, profile *models.UserProfile) models.IntentExtraction {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.llm.Complete(ctx, CompletionRequest{
		System:      intentSystemPrompt(profile),
		Messages:    []Message{{Role: models.RoleUser, Content: intentUserPrompt(history)}},
		Temperature: 0.3,
		JSON:        true,
	})
	if err != nil {
		e.log.Warn("intent extraction failed, using literal query", zap.Error(err))
		return FallbackIntent(history, profile)
	}

	intent, err := parseIntent(raw)
	if err != nil {
		e.log.Warn("intent extraction returned unusable output", zap.Error(err))
		return FallbackIntent(history, profile)
	}

	return normalizeIntent(intent, history, profile)
}

func parseIntent(raw string) (models.IntentExtraction, error) {
	var intent models.IntentExtraction
	body, err := extractJSONObject(raw)
	if err != nil {
		return intent, err
	}
	if err := json.Unmarshal([]byte(body), &intent); err != nil {
		return intent, fmt.Errorf("failed to parse intent: %w", err)
	}
	return intent, nil
}

func normalizeIntent(intent models.IntentExtraction, history []models.ConversationMessage, profile *models.UserProfile) models.IntentExtraction {
	intent.RestaurantName = CanonicalRestaurant(intent.RestaurantName)

	intent.SemanticQuery = strings.TrimSpace(intent.SemanticQuery)
	if intent.SemanticQuery == "" {
		intent.SemanticQuery = models.LatestContent(history)
	}

	hc := &intent.HardConstraints
	if hc.Diet != nil {
		switch strings.ToLower(strings.TrimSpace(*hc.Diet)) {
		case "", "null", "none":
			hc.Diet = nil
		}
	}
	// the profile diet is a floor
	if hc.Diet == nil && profile != nil && profile.DietType != "" {
		diet := profile.DietType
		hc.Diet = &diet
	}
	return intent
}

// extractJSONObject returns the text between the first "{" and the last "}".
func extractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return "", errors.New("no JSON object in model output")
	}
	return raw[start : end+1], nil
}

func formatTarget(v *float64, unit string) string {
	if v == nil || *v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%g%s", *v, unit)
}

func profileSummary(profile *models.UserProfile) string {
	p := models.UserProfile{}
	if profile != nil {
		p = *profile
	}
	diet := p.DietType
	if diet == "" {
		diet = "Regular"
	}
	options := "None"
	if len(p.DietaryOptions) > 0 {
		options = strings.Join(p.DietaryOptions, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "- Diet Type: %s\n", diet)
	fmt.Fprintf(&sb, "- Calorie Target: %s\n", formatTarget(p.TargetCalories, ""))
	fmt.Fprintf(&sb, "- Protein Target: %s\n", formatTarget(p.TargetProteinG, "g"))
	fmt.Fprintf(&sb, "- Carbs Target: %s\n", formatTarget(p.TargetCarbsG, "g"))
	fmt.Fprintf(&sb, "- Fats Target: %s\n", formatTarget(p.TargetFatsG, "g"))
	fmt.Fprintf(&sb, "- Dietary Options: %s\n", options)
	return sb.String()
}

func intentSystemPrompt(profile *models.UserProfile) string {
	var sb strings.Builder
	sb.WriteString("You are an intent extraction system. Analyze the user's message and conversation history to extract:\n")
	sb.WriteString("1. Restaurant Name: Normalize common typos (e.g., \"Chipolte\" -> \"Chipotle\", \"Mac donalds\" -> \"McDonald's\"). Return null if no restaurant is mentioned.\n")
	sb.WriteString("2. Semantic Query: The core search intent (e.g., \"high protein chicken\", \"low carb lunch\", \"vegan options\").\n")
	sb.WriteString("3. Hard Constraints: Extract numeric constraints and dietary requirements.\n\n")
	sb.WriteString("User Profile:\n")
	sb.WriteString(profileSummary(profile))
	sb.WriteString(`
Return a JSON object with this exact structure:
{
  "restaurant_name": "RestaurantName" or null,
  "semantic_query": "description of what they're looking for",
  "hard_constraints": {
    "max_calories": number or null,
    "min_calories": number or null,
    "max_protein": number or null,
    "min_protein": number or null,
    "max_carbs": number or null,
    "min_carbs": number or null,
    "max_fats": number or null,
    "min_fats": number or null,
    "diet": "Vegan" | "Vegetarian" | "Pescatarian" | "Keto" | "Low Carb" | null,
    "dietary_tags": ["tag1", "tag2"] or null
  }
}`)
	return sb.String()
}

func intentUserPrompt(history []models.ConversationMessage) string {
	window := history
	if len(window) > intentHistoryWindow {
		window = window[len(window)-intentHistoryWindow:]
	}

	var sb strings.Builder
	sb.WriteString("Conversation History:\n")
	for _, m := range window {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&sb, "\nLatest User Message: %q\n\n", models.LatestContent(history))
	sb.WriteString("Extract the intent and constraints.")
	return sb.String()
}
