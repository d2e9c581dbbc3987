package services

import "strings"

const defaultMealImage = "/images/meals/default-meal.jpg"

type keywordImage struct {
	keyword string
	path    string
}

// checked in order; first substring hit wins
var mealImages = []keywordImage{
	{"chicken", "/images/meals/grilled-chicken-bowl.jpg"},
	{"grilled chicken", "/images/meals/grilled-chicken-bowl.jpg"},
	{"chicken bowl", "/images/meals/grilled-chicken-bowl.jpg"},
	{"chicken burrito", "/images/meals/chicken-burrito.jpg"},
	{"chicken salad", "/images/meals/chicken-salad.jpg"},
	{"salmon", "/images/meals/salmon-bowl.jpg"},
	{"beef", "/images/meals/beef-bowl.jpg"},
	{"steak", "/images/meals/beef-bowl.jpg"},
	{"beef burrito", "/images/meals/beef-burrito.jpg"},
	{"veggie", "/images/meals/veggie-bowl.jpg"},
	{"vegetable", "/images/meals/veggie-bowl.jpg"},
	{"vegan", "/images/meals/veggie-bowl.jpg"},
	{"salad", "/images/meals/salad-bowl.jpg"},
	{"caesar", "/images/meals/salad-bowl.jpg"},
	{"burrito", "/images/meals/burrito.jpg"},
	{"taco", "/images/meals/tacos.jpg"},
	{"quesadilla", "/images/meals/quesadilla.jpg"},
	{"bowl", "/images/meals/default-bowl.jpg"},
	{"teriyaki", "/images/meals/teriyaki-bowl.jpg"},
	{"korean", "/images/meals/korean-bowl.jpg"},
	{"mediterranean", "/images/meals/mediterranean-bowl.jpg"},
	{"hummus", "/images/meals/mediterranean-bowl.jpg"},
	{"falafel", "/images/meals/falafel-bowl.jpg"},
}

var restaurantImages = []struct {
	names []string
	path  string
}{
	{[]string{"chipotle", "tocaya"}, "/images/meals/default-mexican.jpg"},
	{[]string{"cava", "bolay"}, "/images/meals/default-mediterranean.jpg"},
	{[]string{"sweetgreen", "chopt", "justsalad", "saladandgo"}, "/images/meals/default-salad.jpg"},
}

func usableImageURL(url *string) bool {
	if url == nil {
		return false
	}
	u := *url
	return strings.HasPrefix(u, "http") &&
		!strings.Contains(u, "placeholder") &&
		!strings.Contains(u, "placehold.co")
}

// ResolveImage never returns "": a real URL, then a local asset by meal
// keyword, then a restaurant default, then the generic default.
func ResolveImage(mealName, restaurant string, url *string) string {
	if usableImageURL(url) {
		return *url
	}

	name := strings.ToLower(mealName)
	for _, m := range mealImages {
		if strings.Contains(name, m.keyword) {
			return m.path
		}
	}

	r := strings.ToLower(restaurant)
	for _, ri := range restaurantImages {
		for _, n := range ri.names {
			if strings.Contains(r, n) {
				return ri.path
			}
		}
	}

	return defaultMealImage
}
