package services

import (
	"context"
	"strings"
	"time"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"

	"go.uber.org/zap"
)

const (
	conversationEmptyReply    = "I'm here to help with your nutrition questions!"
	ConversationFallbackReply = "I'm here to help with your nutrition questions! Feel free to ask me about macros, calories, or meal planning."
)

// Responder answers in plain text when no meal cards are shown.
type Responder struct {
	llm     LLM
	timeout time.Duration
	log     *zap.Logger
}

func NewResponder(llm LLM, timeout time.Duration) *Responder {
	return &Responder{
		llm:     llm,
		timeout: timeout,
		log:     logger.L().Named("responder"),
	}
}

func (r *Responder) Respond(ctx context.Context, history []models.ConversationMessage, profile *models.UserProfile) string {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	messages := make([]Message, 0, len(history))
	for _, m := range history {
		role := models.RoleAssistant
		if m.Role == models.RoleUser {
			role = models.RoleUser
		}
		messages = append(messages, Message{Role: role, Content: m.Content})
	}

	reply, err := r.llm.Complete(ctx, CompletionRequest{
		System:      conversationSystemPrompt(profile),
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		r.log.Warn("conversational reply failed", zap.Error(err))
		return ConversationFallbackReply
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return conversationEmptyReply
	}
	return reply
}

func conversationSystemPrompt(profile *models.UserProfile) string {
	var sb strings.Builder
	sb.WriteString("You are MealScout, a friendly and knowledgeable nutrition assistant for a meal tracking app.\n")
	sb.WriteString(BuildDietaryRules(profile))
	sb.WriteString(`

Your role is to:
- Provide helpful, accurate nutrition information
- Answer questions about macros, calories, and nutrition
- Give general nutrition advice and tips
- Be conversational, friendly, and supportive
- Keep responses concise (2-4 sentences typically, but can be longer if needed for complex topics)

User Profile:
`)
	sb.WriteString(profileSummary(profile))
	sb.WriteString("\nRemember: You're part of a meal tracking app, so you can reference that context when relevant.")
	return sb.String()
}
