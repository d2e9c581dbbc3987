package services

import (
	"context"
	"fmt"
	"time"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"

	"go.uber.org/zap"
)

type PipelineConfig struct {
	Retriever   RetrieverConfig
	LLMTimeout  time.Duration
	SearchLimit int
}

// PipelineDeps are the external collaborators. Cache and Background may be nil.
type PipelineDeps struct {
	LLM        LLM
	Embedder   Embedder
	Store      MenuStore
	Cache      QueryCache
	Background *Background
	Config     PipelineConfig
}

// Pipeline runs one chat turn: extract intent, gate, retrieve, select, assemble.
type Pipeline struct {
	extractor   *IntentExtractor
	retriever   *Retriever
	selector    *Selector
	responder   *Responder
	searchLimit int
	log         *zap.Logger
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	cfg := deps.Config
	searchLimit := cfg.SearchLimit
	if searchLimit <= 0 {
		searchLimit = 10
	}
	return &Pipeline{
		extractor:   NewIntentExtractor(deps.LLM, cfg.LLMTimeout),
		retriever:   NewRetriever(deps.Store, deps.Embedder, deps.Cache, deps.Background, cfg.Retriever),
		selector:    NewSelector(deps.LLM, cfg.LLMTimeout),
		responder:   NewResponder(deps.LLM, cfg.LLMTimeout),
		searchLimit: searchLimit,
		log:         logger.L().Named("pipeline"),
	}
}

type ChatInput struct {
	Messages    []models.ConversationMessage
	Profile     *models.UserProfile
	Location    *models.Location
	RadiusMiles *float64
}

// radius prefers the request value and falls back to the profile default.
func (in ChatInput) radius() *float64 {
	if in.RadiusMiles != nil {
		return in.RadiusMiles
	}
	if in.Profile != nil {
		return in.Profile.SearchDistanceMiles
	}
	return nil
}

// Chat only errors when ctx is done; every stage failure has a fallback.
func (p *Pipeline) Chat(ctx context.Context, in ChatInput) (models.ChatResponse, error) {
	start := time.Now()

	intent := p.extractor.Extract(ctx, in.Messages, in.Profile)
	p.log.Debug("extracted intent",
		zap.Stringp("restaurant", intent.RestaurantName),
		zap.String("query", intent.SemanticQuery),
		zap.Stringp("diet", intent.HardConstraints.Diet))

	if !ShouldRecommendMeals(in.Messages, intent) {
		return p.conversational(ctx, in)
	}

	candidates := p.retriever.Retrieve(ctx, intent, RetrieveOptions{
		RadiusMiles: in.radius(),
		Location:    in.Location,
		UserMessage: models.LatestContent(in.Messages),
	})
	if err := ctx.Err(); err != nil {
		return models.ChatResponse{}, fmt.Errorf("request cancelled: %w", err)
	}
	if len(candidates) == 0 {
		p.log.Info("no candidates, answering conversationally", zap.String("query", intent.SemanticQuery))
		return p.conversational(ctx, in)
	}

	sel := p.selector.Select(ctx, candidates, intent, in.Profile)
	if err := ctx.Err(); err != nil {
		return models.ChatResponse{}, fmt.Errorf("request cancelled: %w", err)
	}

	p.log.Info("chat turn complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(sel.Items)),
		zap.Bool("fallback", sel.Fallback),
		zap.Duration("took", time.Since(start)))

	return models.ChatResponse{
		Content: sel.Content,
		Meals:   ToMeals(sel.Items),
	}, nil
}

func (p *Pipeline) conversational(ctx context.Context, in ChatInput) (models.ChatResponse, error) {
	content := p.responder.Respond(ctx, in.Messages, in.Profile)
	if err := ctx.Err(); err != nil {
		return models.ChatResponse{}, fmt.Errorf("request cancelled: %w", err)
	}
	return models.ChatResponse{Content: content, Meals: []models.Meal{}}, nil
}

// Search runs the semantic branch only and returns meals directly.
func (p *Pipeline) Search(ctx context.Context, query string, opts RetrieveOptions) ([]models.Meal, error) {
	items, err := p.retriever.Search(ctx, query, p.searchLimit, opts)
	if err != nil {
		return nil, err
	}
	return ToMeals(items), nil
}
