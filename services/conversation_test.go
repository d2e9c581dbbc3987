package services

import (
	"context"
	"testing"

	"github.com/blavejr/mealscout/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespond(t *testing.T) {
	llm := &fakeLLM{replies: map[string]string{chatPrompt: "  Eggs have about 6g protein.  "}}
	history := []models.ConversationMessage{
		{Role: models.RoleUser, Content: "hi"},
		{Role: "system", Content: "odd role"},
		{Role: models.RoleUser, Content: "protein in eggs?"},
	}

	reply := NewResponder(llm, 0).Respond(context.Background(), history, &models.UserProfile{DietType: "Vegetarian"})
	assert.Equal(t, "Eggs have about 6g protein.", reply)

	require.Len(t, llm.calls, 1)
	req := llm.calls[0]
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.Equal(t, 500, req.MaxTokens)
	assert.False(t, req.JSON)
	assert.Contains(t, req.System, "USER IS VEGETARIAN")
	require.Len(t, req.Messages, 3)
	assert.Equal(t, models.RoleAssistant, req.Messages[1].Role)
}

func TestRespondFallbacks(t *testing.T) {
	assert.Equal(t, ConversationFallbackReply,
		NewResponder(&fakeLLM{err: errFake}, 0).Respond(context.Background(), userSays("hi"), nil))
	assert.Equal(t, conversationEmptyReply,
		NewResponder(&fakeLLM{replies: map[string]string{chatPrompt: " "}}, 0).Respond(context.Background(), userSays("hi"), nil))
}
