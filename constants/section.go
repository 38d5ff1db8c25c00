package constants

import (
	"strings"
)

// Section is a canonical menu section.
type Section string

const (
	Breakfast Section = "Breakfast"
	Lunch     Section = "Lunch"
	Dinner    Section = "Dinner"
	Starters  Section = "Starters"
	Soups     Section = "Soups"
	Salads    Section = "Salads"
	Mains     Section = "Mains"
	Sides     Section = "Sides"
	Breads    Section = "Breads"
	Rice      Section = "Rice"
	Desserts  Section = "Desserts"
	Beverages Section = "Beverages"
	Specials  Section = "Specials"
	Combos    Section = "Combos"
)

var allSections = []Section{
	Breakfast, Lunch, Dinner, Starters, Soups, Salads, Mains,
	Sides, Breads, Rice, Desserts, Beverages, Specials, Combos,
}

// sectionSynonyms maps lowercase heading words seen on menus to a canonical section.
var sectionSynonyms = map[string]Section{
	"brunch":       Breakfast,
	"appetizer":    Starters,
	"appetizers":   Starters,
	"appetisers":   Starters,
	"small plates": Starters,
	"snacks":       Starters,
	"tandoor":      Starters,
	"chaat":        Starters,
	"soup":         Soups,
	"salad":        Salads,
	"main course":  Mains,
	"main courses": Mains,
	"entrees":      Mains,
	"entrées":      Mains,
	"curries":      Mains,
	"pizza":        Mains,
	"pizzas":       Mains,
	"pasta":        Mains,
	"burgers":      Mains,
	"sandwiches":   Mains,
	"wraps":        Mains,
	"noodles":      Mains,
	"side":         Sides,
	"extras":       Sides,
	"add ons":      Sides,
	"add-ons":      Sides,
	"rotis":        Breads,
	"roti":         Breads,
	"naan":         Breads,
	"biryani":      Rice,
	"biryanis":     Rice,
	"dessert":      Desserts,
	"sweets":       Desserts,
	"drinks":       Beverages,
	"beverage":     Beverages,
	"mocktails":    Beverages,
	"cocktails":    Beverages,
	"shakes":       Beverages,
	"juices":       Beverages,
	"coffee":       Beverages,
	"tea":          Beverages,

	"chef's special":  Specials,
	"today's special": Specials,

	"thali": Combos,
	"meals": Combos,
	"combo": Combos,
}

// SectionKeywords returns every lowercase keyword recognised as a section heading.
func SectionKeywords() []string {
	out := make([]string, 0, len(allSections)+len(sectionSynonyms))
	for _, s := range allSections {
		out = append(out, strings.ToLower(string(s)))
	}
	for k := range sectionSynonyms {
		out = append(out, k)
	}
	return out
}

// CanonicalSection maps a heading to its canonical section.
func CanonicalSection(input string) (Section, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}
	if s, ok := sectionSynonyms[normalized]; ok {
		return s, true
	}
	for _, s := range allSections {
		if normalized == strings.ToLower(string(s)) {
			return s, true
		}
	}
	return "", false
}
