package services

import (
	"math"

	"github.com/blavejr/mealscout/models"
)

// Macros holds resolved macro values; nil means the catalog row does not say.
type Macros struct {
	Calories *float64
	Protein  *float64
	Carbs    *float64
	Fats     *float64
}

func firstKnown(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// ResolveMacros is the single place that chooses between macro aliases.
//
//	calories: macros.calories, calories
//	protein:  macros.protein, protein_g, protein
//	carbs:    macros.carbs, carbs_g, carbs
//	fats:     macros.fat, macros.fats, fats_g, fat_g, fats, fat
func ResolveMacros(item models.MenuItem) Macros {
	var nested models.Macros
	if item.Macros != nil {
		nested = *item.Macros
	}
	return Macros{
		Calories: firstKnown(nested.Calories, item.Calories),
		Protein:  firstKnown(nested.Protein, item.ProteinG, item.Protein),
		Carbs:    firstKnown(nested.Carbs, item.CarbsG, item.Carbs),
		Fats:     firstKnown(nested.Fat, nested.Fats, item.FatsG, item.FatG, item.Fats, item.Fat),
	}
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func mealCategory(category string) string {
	if category == "Grocery" || category == "Hot Bar" {
		return models.MealCategoryGrocery
	}
	return models.MealCategoryRestaurant
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// ToMeal converts a catalog row into the client-facing record.
func ToMeal(item models.MenuItem) models.Meal {
	name := item.DisplayName()
	restaurant := item.RestaurantName
	if restaurant == "" {
		restaurant = "Unknown Restaurant"
	}

	m := ResolveMacros(item)

	var price *float64
	if item.Price != nil && *item.Price != 0 {
		p := *item.Price
		price = &p
	}

	var distance *float64
	if item.Distance != nil {
		d := roundTenth(*item.Distance)
		distance = &d
	}

	tags := item.DietaryTags
	if tags == nil {
		tags = []string{}
	}

	return models.Meal{
		ID:            item.ID,
		Name:          name,
		Restaurant:    restaurant,
		Calories:      orZero(m.Calories),
		Protein:       orZero(m.Protein),
		Carbs:         orZero(m.Carbs),
		Fats:          orZero(m.Fats),
		Image:         ResolveImage(name, restaurant, item.ImageURL),
		Price:         price,
		Description:   item.Description,
		Category:      mealCategory(item.Category),
		DietaryTags:   tags,
		Distance:      distance,
		DistanceLabel: FormatDistance(distance),
	}
}

func ToMeals(items []models.MenuItem) []models.Meal {
	meals := make([]models.Meal, 0, len(items))
	for _, item := range items {
		meals = append(meals, ToMeal(item))
	}
	return meals
}
