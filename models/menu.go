package models

import "time"

// MenuItem is one catalog row. Several macro columns exist under historical
// names; services.ResolveMacros is the only place that decides between them.
type MenuItem struct {
	ID             string   `bson:"_id" json:"id"`
	Name           string   `bson:"name,omitempty" json:"name,omitempty"`
	ItemName       string   `bson:"item_name,omitempty" json:"item_name,omitempty"`
	RestaurantName string   `bson:"restaurant_name" json:"restaurant_name"`
	Category       string   `bson:"category,omitempty" json:"category,omitempty"`
	Macros         *Macros  `bson:"macros,omitempty" json:"macros,omitempty"`
	Calories       *float64 `bson:"calories,omitempty" json:"calories,omitempty"`
	ProteinG       *float64 `bson:"protein_g,omitempty" json:"protein_g,omitempty"`
	Protein        *float64 `bson:"protein,omitempty" json:"protein,omitempty"`
	CarbsG         *float64 `bson:"carbs_g,omitempty" json:"carbs_g,omitempty"`
	Carbs          *float64 `bson:"carbs,omitempty" json:"carbs,omitempty"`
	FatsG          *float64 `bson:"fats_g,omitempty" json:"fats_g,omitempty"`
	FatG           *float64 `bson:"fat_g,omitempty" json:"fat_g,omitempty"`
	Fats           *float64 `bson:"fats,omitempty" json:"fats,omitempty"`
	Fat            *float64 `bson:"fat,omitempty" json:"fat,omitempty"`
	DietaryTags    []string `bson:"dietary_tags,omitempty" json:"dietary_tags,omitempty"`
	Description    string   `bson:"description,omitempty" json:"description,omitempty"`
	ImageURL       *string  `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Price          *float64 `bson:"price,omitempty" json:"price,omitempty"`
	Latitude       *float64 `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude      *float64 `bson:"longitude,omitempty" json:"longitude,omitempty"`

	Embedding []float32 `bson:"embedding,omitempty" json:"-"`
	CreatedAt time.Time `bson:"created_at,omitempty" json:"-"`

	// set per request by the radius filter, never persisted
	Distance *float64 `bson:"-" json:"distance,omitempty"`
}

// Macros is the nested macro object some catalog sources carry.
type Macros struct {
	Calories *float64 `bson:"calories,omitempty" json:"calories,omitempty"`
	Protein  *float64 `bson:"protein,omitempty" json:"protein,omitempty"`
	Carbs    *float64 `bson:"carbs,omitempty" json:"carbs,omitempty"`
	Fat      *float64 `bson:"fat,omitempty" json:"fat,omitempty"`
	Fats     *float64 `bson:"fats,omitempty" json:"fats,omitempty"`
}

// DisplayName returns item_name when present, else name.
func (m MenuItem) DisplayName() string {
	if m.ItemName != "" {
		return m.ItemName
	}
	if m.Name != "" {
		return m.Name
	}
	return "Unknown Item"
}

// HasCoordinates reports whether the row can take part in distance filtering.
func (m MenuItem) HasCoordinates() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// Meal category values exposed to clients.
const (
	MealCategoryRestaurant = "restaurant"
	MealCategoryGrocery    = "grocery"
)

// Meal is the client-facing view of a MenuItem.
type Meal struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Restaurant    string   `json:"restaurant"`
	Calories      float64  `json:"calories"`
	Protein       float64  `json:"protein"`
	Carbs         float64  `json:"carbs"`
	Fats          float64  `json:"fats"`
	Image         string   `json:"image"`
	Price         *float64 `json:"price"` // nil means market price
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	DietaryTags   []string `json:"dietary_tags"`
	Distance      *float64 `json:"distance,omitempty"`
	DistanceLabel string   `json:"distance_label,omitempty"`
}
