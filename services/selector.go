package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"

	"go.uber.org/zap"
)

const (
	MaxSelected   = 5
	FallbackCount = 3

	NoCandidatesMessage = "I couldn't find any items matching your request. Try searching with different keywords or check back later as we add more meals."
	NoEligibleMessage   = "I found some items, but nothing matches your dietary constraints. Try relaxing a limit or searching for something else."
)

// Selection is the selector's answer. Items are the selected catalog rows in
// SelectedIDs order.
type Selection struct {
	Content     string
	SelectedIDs []string
	Items       []models.MenuItem
	Fallback    bool
}

type Selector struct {
	llm     LLM
	timeout time.Duration
	log     *zap.Logger
}

func NewSelector(llm LLM, timeout time.Duration) *Selector {
	return &Selector{
		llm:     llm,
		timeout: timeout,
		log:     logger.L().Named("selector"),
	}
}

type candidateSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Restaurant  string   `json:"restaurant"`
	Category    string   `json:"category"`
	Calories    float64  `json:"calories"`
	Protein     float64  `json:"protein"`
	Carbs       float64  `json:"carbs"`
	Fats        float64  `json:"fats"`
	DietaryTags []string `json:"dietary_tags"`
}

type rankingResponse struct {
	Content         string `json:"content"`
	SelectedItemIDs []any  `json:"selected_item_ids"`
}

// Select narrows candidates to at most MaxSelected eligible items. Returned ids
// always come from candidates, whatever the model proposes.
func (s *Selector) Select(ctx context.Context, candidates []models.MenuItem, intent models.IntentExtraction, profile *models.UserProfile) Selection {
	if len(candidates) == 0 {
		return Selection{Content: NoCandidatesMessage, SelectedIDs: []string{}}
	}

	eligible := make([]models.MenuItem, 0, len(candidates))
	for _, item := range candidates {
		if Eligible(item, intent, profile) {
			eligible = append(eligible, item)
		}
	}
	if len(eligible) == 0 {
		s.log.Info("no candidate passed the dietary constraints", zap.Int("candidates", len(candidates)))
		return Selection{Content: NoEligibleMessage, SelectedIDs: []string{}}
	}

	sel, err := s.rank(ctx, eligible, intent, profile)
	if err != nil {
		s.log.Warn("ranking failed, using first candidates", zap.Error(err))
		sel = fallbackSelection(eligible)
	}

	if note := AllergenDisclaimer(sel.Items, profile); note != "" {
		sel.Content = strings.TrimSpace(sel.Content + "\n\n" + note)
	}
	return sel
}

func (s *Selector) rank(ctx context.Context, eligible []models.MenuItem, intent models.IntentExtraction, profile *models.UserProfile) (Selection, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	userPrompt, err := rankingUserPrompt(eligible, intent, profile)
	if err != nil {
		return Selection{}, err
	}

	raw, err := s.llm.Complete(ctx, CompletionRequest{
		System:      rankingSystemPrompt(profile),
		Messages:    []Message{{Role: models.RoleUser, Content: userPrompt}},
		Temperature: 0.3,
		JSON:        true,
	})
	if err != nil {
		return Selection{}, err
	}

	body, err := extractJSONObject(raw)
	if err != nil {
		return Selection{}, err
	}
	var resp rankingResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return Selection{}, fmt.Errorf("failed to parse ranking: %w", err)
	}

	items := validateSelection(idStrings(resp.SelectedItemIDs), eligible)
	if len(items) == 0 {
		return Selection{}, fmt.Errorf("ranking selected no valid items")
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		content = fmt.Sprintf("I found %d great option%s for you!", len(items), plural(len(items)))
	}
	return Selection{Content: content, SelectedIDs: itemIDs(items), Items: items}, nil
}

// validateSelection keeps ids that name a candidate, drops repeats, and caps at MaxSelected.
func validateSelection(ids []string, candidates []models.MenuItem) []models.MenuItem {
	byID := make(map[string]models.MenuItem, len(candidates))
	for _, c := range candidates {
		if _, ok := byID[c.ID]; !ok {
			byID[c.ID] = c
		}
	}

	seen := make(map[string]bool, len(ids))
	out := make([]models.MenuItem, 0, MaxSelected)
	for _, id := range ids {
		item, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, item)
		if len(out) == MaxSelected {
			break
		}
	}
	return out
}

func fallbackSelection(eligible []models.MenuItem) Selection {
	n := min(FallbackCount, len(eligible))
	items := append([]models.MenuItem(nil), eligible[:n]...)
	return Selection{
		Content:     fmt.Sprintf("I found %d option%s for you! Tap any meal to see full details.", n, plural(n)),
		SelectedIDs: itemIDs(items),
		Items:       items,
		Fallback:    true,
	}
}

func idStrings(raw []any) []string {
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		switch id := v.(type) {
		case string:
			ids = append(ids, strings.TrimSpace(id))
		case float64:
			ids = append(ids, strconv.FormatFloat(id, 'f', -1, 64))
		}
	}
	return ids
}

func itemIDs(items []models.MenuItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// ConstraintClauses renders the numeric and dietary hard constraints as short clauses.
func ConstraintClauses(hc models.HardConstraints) []string {
	var clauses []string
	add := func(label string, v *float64, unit string) {
		if v != nil && *v > 0 {
			clauses = append(clauses, fmt.Sprintf("%s: %g%s", label, *v, unit))
		}
	}
	add("Max calories", hc.MaxCalories, "")
	add("Min calories", hc.MinCalories, "")
	add("Max protein", hc.MaxProtein, "g")
	add("Min protein", hc.MinProtein, "g")
	add("Max carbs", hc.MaxCarbs, "g")
	add("Min carbs", hc.MinCarbs, "g")
	add("Max fats", hc.MaxFats, "g")
	add("Min fats", hc.MinFats, "g")
	if hc.Diet != nil && *hc.Diet != "" {
		clauses = append(clauses, "Diet: "+*hc.Diet)
	}
	if len(hc.DietaryTags) > 0 {
		clauses = append(clauses, "Dietary tags: "+strings.Join(hc.DietaryTags, ", "))
	}
	return clauses
}

func rankingSystemPrompt(profile *models.UserProfile) string {
	var sb strings.Builder
	sb.WriteString("You are a meal recommendation assistant. Your task is to:\n")
	sb.WriteString("1. STRICTLY filter items that violate hard constraints (e.g., if user says \"Vegan\", discard all meat items).\n")
	sb.WriteString("2. Rank and select the top 3-5 items that best fit the user's goal (e.g., highest protein/calorie ratio).\n")
	sb.WriteString("3. Generate a friendly, short response explaining why these items were chosen.\n")
	sb.WriteString("4. NEVER hallucinate items. Only return items present in the provided list.\n")
	sb.WriteString(BuildDietaryRules(profile))
	sb.WriteString(`
CRITICAL RULES:
- You may ONLY recommend items that are present in the provided list below.
- Do NOT invent or suggest items that are not in the list.
- If an item violates a hard constraint OR any dietary restriction listed above, you MUST discard it immediately.
- Return your response as a JSON object with:
  - "content": A friendly explanation (2-3 sentences) of why these items were chosen
  - "selected_item_ids": Array of item IDs (strings) from the list below, ordered by relevance

Example response format:
{
  "content": "I found 3 great options for you! These items have high protein and fit your calorie goal.",
  "selected_item_ids": ["item-id-1", "item-id-2", "item-id-3"]
}`)
	return sb.String()
}

func rankingUserPrompt(items []models.MenuItem, intent models.IntentExtraction, profile *models.UserProfile) (string, error) {
	summaries := make([]candidateSummary, len(items))
	for i, item := range items {
		m := ResolveMacros(item)
		tags := item.DietaryTags
		if tags == nil {
			tags = []string{}
		}
		summaries[i] = candidateSummary{
			ID:          item.ID,
			Name:        item.DisplayName(),
			Restaurant:  item.RestaurantName,
			Category:    item.Category,
			Calories:    orZero(m.Calories),
			Protein:     orZero(m.Protein),
			Carbs:       orZero(m.Carbs),
			Fats:        orZero(m.Fats),
			DietaryTags: tags,
		}
	}
	list, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal candidates: %w", err)
	}

	constraints := strings.Join(ConstraintClauses(intent.HardConstraints), ", ")
	if constraints == "" {
		constraints = "None specified"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User Query: %q\n", intent.SemanticQuery)
	sb.WriteString("User Profile:\n")
	sb.WriteString(profileSummary(profile))
	fmt.Fprintf(&sb, "\nHard Constraints: %s\n\n", constraints)
	sb.WriteString("Available Items:\n")
	sb.Write(list)
	sb.WriteString("\n\nFilter items based on constraints, rank by relevance, and select the top 3-5 items. Return JSON with \"content\" and \"selected_item_ids\".")
	return sb.String(), nil
}
