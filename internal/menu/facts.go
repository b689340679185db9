package menu

import (
	"fmt"
	"strings"
)

// Facts renders items as spoken-style fact lines, one per dish: size
// variants of the same name collapse into a single line with per-size
// prices. At most maxItems items are spelled out; the rest are summarised
// in a trailing count line.
func Facts(items []Item, maxItems int) []string {
	if len(items) == 0 {
		return []string{"No menu items found matching the criteria."}
	}
	if maxItems < 1 {
		maxItems = 10
	}
	shown := items
	if len(shown) > maxItems {
		shown = shown[:maxItems]
	}

	// Group size variants, keeping first-seen order.
	var names []string
	byName := map[string][]Item{}
	for _, it := range shown {
		if _, ok := byName[it.Name]; !ok {
			names = append(names, it.Name)
		}
		byName[it.Name] = append(byName[it.Name], it)
	}

	facts := make([]string, 0, len(names)+1)
	for _, name := range names {
		facts = append(facts, dishFact(name, byName[name]))
	}
	if len(items) > maxItems {
		facts = append(facts, fmt.Sprintf("... and %d more items", len(items)-maxItems))
	}
	return facts
}

// dishFact renders one dish: a single price for a lone item, or a per-size
// price list for variants. Variants arrive in catalog order, already
// cheapest first within a name.
func dishFact(name string, variants []Item) string {
	first := variants[0]
	var fact string
	if len(variants) == 1 {
		fact = fmt.Sprintf("%s: %s - $%.2f", name, first.Description, first.Price)
	} else {
		prices := make([]string, 0, len(variants))
		for _, v := range variants {
			size := v.Size
			if size == "" {
				size = "Regular"
			}
			prices = append(prices, fmt.Sprintf("%s: $%.2f", size, v.Price))
		}
		fact = fmt.Sprintf("%s: %s - %s", name, first.Description, strings.Join(prices, ", "))
	}

	var tags []string
	if first.Vegetarian {
		tags = append(tags, "vegetarian")
	}
	if first.Vegan {
		tags = append(tags, "vegan")
	}
	if first.GlutenFree {
		tags = append(tags, "gluten-free")
	}
	if len(variants) == 1 && first.Unavailable {
		tags = append(tags, "UNAVAILABLE")
	}
	if len(tags) > 0 {
		fact += fmt.Sprintf(" (%s)", strings.Join(tags, ", "))
	}
	return fact
}

// SummaryLine renders the category overview as a single spoken fact.
func SummaryLine(cats []CategorySummary) string {
	if len(cats) == 0 {
		return "No menu categories available."
	}
	parts := make([]string, 0, len(cats))
	for _, cat := range cats {
		parts = append(parts, fmt.Sprintf("%s: %d items available", title(cat.Category), cat.Available))
	}
	return "Menu categories: " + strings.Join(parts, ", ")
}

// title upper-cases the first letter of each space-separated word. ASCII
// menu categories only; this is display sugar, not locale handling.
func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
