package services

import (
	"regexp"
	"sort"
	"strings"

	"github.com/blavejr/mealscout/models"
)

var (
	mealWords = regexp.MustCompile(`\b(lunch|dinner|breakfast|meal|meals|bowl|bowls|entree|entrees)\b|entrée`)
	sideWords = regexp.MustCompile(`\b(side|sides|topping|toppings|sauce|sauces|dressing|dressings|condiment|condiments|add-ons?|addons?)\b`)
)

var accessoryCategories = map[string]bool{
	"side":       true,
	"sides":      true,
	"topping":    true,
	"toppings":   true,
	"sauce":      true,
	"sauces":     true,
	"dressing":   true,
	"dressings":  true,
	"condiment":  true,
	"condiments": true,
}

func isAccessory(category string) bool {
	return accessoryCategories[strings.ToLower(strings.TrimSpace(category))]
}

func isMain(category string) bool {
	c := strings.ToLower(strings.TrimSpace(category))
	return c == "entree" || c == "entrée" || c == "signature bowl"
}

// ApplyCategoryHeuristic puts full meals first when the query asks for one.
// Accessory categories are dropped unless that would leave nothing. Queries
// that mention sides, sauces and similar are left untouched.
func ApplyCategoryHeuristic(items []models.MenuItem, query string) []models.MenuItem {
	q := strings.ToLower(query)
	if !mealWords.MatchString(q) || sideWords.MatchString(q) {
		return items
	}

	kept := make([]models.MenuItem, 0, len(items))
	for _, item := range items {
		if !isAccessory(item.Category) {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, items...)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return isMain(kept[i].Category) && !isMain(kept[j].Category)
	})
	return kept
}
