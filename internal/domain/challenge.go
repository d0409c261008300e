package domain

// Category is the difficulty bucket a challenge belongs to.
type Category string

const (
	CategoryEasy    Category = "Easy"
	CategoryMedium  Category = "Medium"
	CategoryHard    Category = "Hard"
	CategoryExtreme Category = "Extreme"
)

// Categories lists all difficulty buckets in display order.
var Categories = []Category{CategoryEasy, CategoryMedium, CategoryHard, CategoryExtreme}

// Valid reports whether the category is one of the known buckets.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Challenge is an immutable seeded question. FlagSecret and HintText are
// never serialized; they leave the server only through the judge and the
// hint ledger respectively.
type Challenge struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Category    Category `json:"category"`
	Points      int      `json:"points"`
	Description string   `json:"description"`
	FlagSecret  string   `json:"-"`
	HintText    string   `json:"-"`
	HintCost    int      `json:"hint_cost"`
}
