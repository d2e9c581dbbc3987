package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blavejr/mealscout/models"
)

var separatorRun = regexp.MustCompile(`[-\s]+`)

// NormalizeTag lower-cases and collapses dashes and whitespace to "_",
// so "Gluten-Free", "gluten free" and "gluten_free" compare equal.
func NormalizeTag(s string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
}

type allergen struct {
	option string // normalized profile option
	label  string
	rule   string
}

var allergens = []allergen{
	{"gluten_free", "gluten-free", "USER REQUIRES GLUTEN-FREE. DO NOT suggest items containing: wheat, barley, rye, or any gluten-containing ingredients. If menu allergen data is missing, clearly state that gluten-free cannot be guaranteed."},
	{"dairy_free", "dairy-free", "USER REQUIRES DAIRY-FREE. DO NOT suggest items containing: milk, cheese, butter, yogurt, or any dairy products. If menu allergen data is missing, clearly state that dairy-free cannot be guaranteed."},
	{"nut_free", "nut-free", "USER HAS NUT ALLERGY. DO NOT suggest items containing: peanuts, tree nuts, or any nut-based ingredients. If menu allergen data is missing, clearly state that nut-free cannot be guaranteed."},
	{"soy_free", "soy-free", "USER REQUIRES SOY-FREE. DO NOT suggest items containing: soy, soybeans, tofu, tempeh, or any soy-based ingredients. If menu allergen data is missing, clearly state that soy-free cannot be guaranteed."},
	{"egg_free", "egg-free", "USER HAS EGG ALLERGY. DO NOT suggest items containing: eggs or egg-based ingredients. If menu allergen data is missing, clearly state that egg-free cannot be guaranteed."},
	{"shellfish_free", "shellfish-free", "USER HAS SHELLFISH ALLERGY. DO NOT suggest items containing: shrimp, crab, lobster, or any shellfish. If menu allergen data is missing, clearly state that shellfish-free cannot be guaranteed."},
}

const (
	highProteinRule = "USER PREFERS HIGH PROTEIN. PRIORITIZE items with significant protein content (preferably 20g+ per serving). Rank higher-protein meals first."
	lowSugarRule    = "USER PREFERS LOW SUGAR. Avoid desserts or obvious sugary items when possible. Rank lower-sugar options first."
)

func normalizedOptions(profile *models.UserProfile) map[string]bool {
	opts := make(map[string]bool)
	if profile == nil {
		return opts
	}
	for _, o := range profile.DietaryOptions {
		n := NormalizeTag(o)
		if n == "peanut_free" {
			n = "nut_free"
		}
		opts[n] = true
	}
	return opts
}

func dietRules(dietType string) []string {
	switch strings.ToLower(strings.TrimSpace(dietType)) {
	case "":
		return nil
	case "vegan":
		return []string{
			"USER IS VEGAN. ABSOLUTE REQUIREMENT: ONLY suggest plant-based foods.",
			"DO NOT show ANY items containing: meat, poultry, fish, seafood, eggs, dairy, honey, or any animal-derived ingredients.",
			"ONLY suggest items that are 100% plant-based. If an item contains ANY animal products, DISCARD it immediately.",
			"If no vegan items are available, clearly explain this and suggest the best plant-forward options available.",
		}
	case "vegetarian":
		return []string{
			"USER IS VEGETARIAN. DO NOT suggest items containing: meat, poultry, fish, or seafood.",
			"Eggs and dairy are acceptable. Fish and seafood are NOT acceptable.",
			"If no vegetarian items match perfectly, clearly note any limitations and suggest the closest alternatives.",
		}
	case "pescatarian":
		return []string{
			"USER IS PESCATARIAN. DO NOT suggest items containing: meat or poultry.",
			"Fish and seafood are acceptable. Meat and poultry are NOT acceptable.",
		}
	case "keto", "ketogenic":
		return []string{
			"USER IS ON KETO DIET. ABSOLUTE REQUIREMENT: ONLY suggest items that are low-carb and high-fat.",
			"DO NOT show items with more than 20g net carbs per serving unless specifically requested.",
			"PRIORITIZE items high in healthy fats and protein. Carbs should be minimal.",
			"If no strict keto items are available, clearly explain and suggest the lowest-carb options available.",
		}
	case "low_carb", "low carb", "low-carb":
		return []string{
			"USER FOLLOWS A LOW-CARB DIET. PRIORITIZE items with minimal carbohydrates.",
			"Avoid high-carb items unless specifically requested by the user.",
			"Rank items by carb content (lowest first).",
		}
	case "regular":
		return nil
	default:
		label := strings.TrimSpace(dietType)
		return []string{
			fmt.Sprintf("USER FOLLOWS A %s DIET. Respect this dietary preference when recommending meals.", strings.ToUpper(label)),
			fmt.Sprintf("DO NOT suggest items that violate %s dietary principles.", label),
			"If no items perfectly match this diet type, clearly explain the limitations and suggest the closest alternatives.",
		}
	}
}

// BuildDietaryRules renders the profile's diet and dietary options as a numbered
// block of imperative rules for model prompts. It returns "" when nothing applies.
func BuildDietaryRules(profile *models.UserProfile) string {
	if profile == nil {
		return ""
	}

	rules := dietRules(profile.DietType)

	opts := normalizedOptions(profile)
	for _, a := range allergens {
		if opts[a.option] {
			rules = append(rules, a.rule)
		}
	}
	if opts["high_protein"] {
		rules = append(rules, highProteinRule)
	}
	if opts["low_sugar"] {
		rules = append(rules, lowSugarRule)
	}

	if len(rules) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n**CRITICAL DIETARY RESTRICTIONS - MUST BE FOLLOWED STRICTLY:**\n")
	for i, rule := range rules {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, rule)
	}
	sb.WriteString("\nThese rules are ABSOLUTE. If an item violates ANY of these restrictions, you MUST discard it and NOT recommend it to the user.")
	return sb.String()
}

// restrictionTags are the requested tags enforced against item tags.
// Anything else in dietary_tags is a ranking preference.
var restrictionTags = map[string]bool{
	"vegan":          true,
	"vegetarian":     true,
	"pescatarian":    true,
	"gluten_free":    true,
	"dairy_free":     true,
	"nut_free":       true,
	"peanut_free":    true,
	"soy_free":       true,
	"egg_free":       true,
	"shellfish_free": true,
}

func itemTags(item models.MenuItem) map[string]bool {
	tags := make(map[string]bool, len(item.DietaryTags))
	for _, t := range item.DietaryTags {
		tags[NormalizeTag(t)] = true
	}
	return tags
}

func dietAllows(diet string, tags map[string]bool, carbs *float64) bool {
	switch strings.ToLower(strings.TrimSpace(diet)) {
	case "vegan":
		return tags["vegan"]
	case "vegetarian":
		return tags["vegetarian"] || tags["vegan"]
	case "pescatarian":
		return tags["pescatarian"] || tags["vegetarian"] || tags["vegan"]
	case "keto", "ketogenic":
		return carbs == nil || *carbs <= 20
	}
	return true
}

func withinBounds(value, lo, hi *float64) bool {
	if value == nil {
		return true
	}
	if lo != nil && *lo > 0 && *value < *lo {
		return false
	}
	if hi != nil && *hi > 0 && *value > *hi {
		return false
	}
	return true
}

// Eligible reports whether an item may be shown under the intent's hard
// constraints and the profile's diet. Unknown macros never disqualify.
func Eligible(item models.MenuItem, intent models.IntentExtraction, profile *models.UserProfile) bool {
	hc := intent.HardConstraints
	m := ResolveMacros(item)

	if !withinBounds(m.Calories, hc.MinCalories, hc.MaxCalories) ||
		!withinBounds(m.Protein, hc.MinProtein, hc.MaxProtein) ||
		!withinBounds(m.Carbs, hc.MinCarbs, hc.MaxCarbs) ||
		!withinBounds(m.Fats, hc.MinFats, hc.MaxFats) {
		return false
	}

	tags := itemTags(item)
	if profile != nil && !dietAllows(profile.DietType, tags, m.Carbs) {
		return false
	}
	if hc.Diet != nil && !dietAllows(*hc.Diet, tags, m.Carbs) {
		return false
	}

	for _, want := range hc.DietaryTags {
		n := NormalizeTag(want)
		if !restrictionTags[n] {
			continue
		}
		switch n {
		case "vegan", "vegetarian", "pescatarian":
			if !dietAllows(n, tags, m.Carbs) {
				return false
			}
			continue
		case "peanut_free":
			if tags["nut_free"] {
				continue
			}
		}
		if !tags[n] {
			return false
		}
	}
	return true
}

// AllergenDisclaimer names each allergen option of the profile that at least
// one of the items does not carry a matching tag for. Empty when all are covered.
func AllergenDisclaimer(items []models.MenuItem, profile *models.UserProfile) string {
	opts := normalizedOptions(profile)
	if len(opts) == 0 || len(items) == 0 {
		return ""
	}

	var missing []string
	for _, a := range allergens {
		if !opts[a.option] {
			continue
		}
		for _, item := range items {
			if !itemTags(item)[a.option] {
				missing = append(missing, a.label)
				break
			}
		}
	}
	if len(missing) == 0 {
		return ""
	}
	return fmt.Sprintf("Note: %s cannot be guaranteed for every item shown because the menu's allergen information is incomplete.",
		strings.Join(missing, ", "))
}
