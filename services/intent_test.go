package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/blavejr/mealscout/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalRestaurant(t *testing.T) {
	assert.Nil(t, CanonicalRestaurant(nil))
	assert.Nil(t, CanonicalRestaurant(ptr("null")))
	assert.Nil(t, CanonicalRestaurant(ptr("  NULL ")))
	assert.Nil(t, CanonicalRestaurant(ptr("")))
	assert.Equal(t, "Chipotle", *CanonicalRestaurant(ptr("Chipolte")))
	assert.Equal(t, "McDonald's", *CanonicalRestaurant(ptr("Mac donalds")))
	assert.Equal(t, "Tocaya", *CanonicalRestaurant(ptr(" Tocaya ")))
}

func TestExtractParsesModelOutput(t *testing.T) {
	llm := &fakeLLM{replies: map[string]string{intentPrompt: "Sure!\n```json\n" + `{
		"restaurant_name": "chipolte",
		"semantic_query": "high protein chicken",
		"hard_constraints": {"max_calories": 700, "min_protein": null, "diet": null, "dietary_tags": ["gluten-free"]}
	}` + "\n```"}}

	intent := NewIntentExtractor(llm, 0).Extract(context.Background(), userSays("chipolte high protein under 700"), nil)

	require.NotNil(t, intent.RestaurantName)
	assert.Equal(t, "Chipotle", *intent.RestaurantName)
	assert.Equal(t, "high protein chicken", intent.SemanticQuery)
	require.NotNil(t, intent.HardConstraints.MaxCalories)
	assert.Equal(t, 700.0, *intent.HardConstraints.MaxCalories)
	assert.Nil(t, intent.HardConstraints.MinProtein)
	assert.Nil(t, intent.HardConstraints.Diet)
	assert.Equal(t, []string{"gluten-free"}, intent.HardConstraints.DietaryTags)

	require.Len(t, llm.calls, 1)
	assert.InDelta(t, 0.3, llm.calls[0].Temperature, 1e-6)
	assert.True(t, llm.calls[0].JSON)
}

func TestExtractAppliesProfileDiet(t *testing.T) {
	llm := &fakeLLM{replies: map[string]string{intentPrompt: `{"restaurant_name": null, "semantic_query": "", "hard_constraints": {"diet": "none"}}`}}
	profile := &models.UserProfile{DietType: "Vegan"}

	intent := NewIntentExtractor(llm, 0).Extract(context.Background(), userSays("lunch ideas"), profile)

	assert.Nil(t, intent.RestaurantName)
	assert.Equal(t, "lunch ideas", intent.SemanticQuery)
	require.NotNil(t, intent.HardConstraints.Diet)
	assert.Equal(t, "Vegan", *intent.HardConstraints.Diet)
}

func TestExtractKeepsExplicitDiet(t *testing.T) {
	llm := &fakeLLM{replies: map[string]string{intentPrompt: `{"semantic_query": "fish tacos", "hard_constraints": {"diet": "Pescatarian"}}`}}
	profile := &models.UserProfile{DietType: "Vegetarian"}

	intent := NewIntentExtractor(llm, 0).Extract(context.Background(), userSays("fish tacos"), profile)
	require.NotNil(t, intent.HardConstraints.Diet)
	assert.Equal(t, "Pescatarian", *intent.HardConstraints.Diet)
}

func TestExtractFallsBack(t *testing.T) {
	profile := &models.UserProfile{DietType: "Keto"}
	history := userSays("hi", "steak and eggs please")

	for name, llm := range map[string]*fakeLLM{
		"model error":  {err: errFake},
		"not json":     {replies: map[string]string{intentPrompt: "I think they want steak"}},
		"broken json":  {replies: map[string]string{intentPrompt: `{"semantic_query": }`}},
		"wrong shapes": {replies: map[string]string{intentPrompt: `{"semantic_query": 42}`}},
	} {
		t.Run(name, func(t *testing.T) {
			intent := NewIntentExtractor(llm, 0).Extract(context.Background(), history, profile)
			assert.Nil(t, intent.RestaurantName)
			assert.Equal(t, "steak and eggs please", intent.SemanticQuery)
			require.NotNil(t, intent.HardConstraints.Diet)
			assert.Equal(t, "Keto", *intent.HardConstraints.Diet)
		})
	}

	intent := NewIntentExtractor(&fakeLLM{err: errFake}, 0).Extract(context.Background(), history, nil)
	assert.Nil(t, intent.HardConstraints.Diet)
}

func TestIntentUserPromptWindow(t *testing.T) {
	var history []models.ConversationMessage
	for i := 1; i <= 7; i++ {
		history = append(history, models.ConversationMessage{Role: models.RoleUser, Content: fmt.Sprintf("message-%d", i)})
	}

	prompt := intentUserPrompt(history)
	assert.NotContains(t, prompt, "message-1\n")
	assert.NotContains(t, prompt, "message-2")
	assert.Contains(t, prompt, "user: message-3\n")
	assert.True(t, strings.Contains(prompt, `Latest User Message: "message-7"`))
}

func TestIntentSystemPromptIncludesProfile(t *testing.T) {
	prompt := intentSystemPrompt(&models.UserProfile{
		DietType:       "Vegan",
		TargetProteinG: ptr(120.0),
		DietaryOptions: []string{"nut_free"},
	})
	assert.Contains(t, prompt, "- Diet Type: Vegan")
	assert.Contains(t, prompt, "- Protein Target: 120g")
	assert.Contains(t, prompt, "- Calorie Target: N/A")
	assert.Contains(t, prompt, "- Dietary Options: nut_free")
}
