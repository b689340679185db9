// Package menu holds the venue's menu catalog: filtered lookups for the
// REST surface and spoken formatting for FAQ answers and agent context.
package menu

import (
	"fmt"
	"sort"
	"strings"
)

// Item is one menu entry. Size variants of the same dish are separate items
// sharing a Name, so "Margherita Pizza" may appear once per size.
type Item struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Price       float64 `yaml:"price" json:"price"`
	Category    string  `yaml:"category" json:"category"`
	Size        string  `yaml:"size,omitempty" json:"size,omitempty"`
	Vegetarian  bool    `yaml:"vegetarian,omitempty" json:"vegetarian"`
	Vegan       bool    `yaml:"vegan,omitempty" json:"vegan"`
	GlutenFree  bool    `yaml:"gluten_free,omitempty" json:"gluten_free"`

	// Unavailable marks an 86'd item. The zero value keeps config files
	// short: an item is on offer unless said otherwise.
	Unavailable bool `yaml:"unavailable,omitempty" json:"unavailable,omitempty"`
}

// Filter narrows a catalog listing. The zero value lists every item still
// on offer.
type Filter struct {
	// Category restricts to one category, matched case-insensitively.
	Category string

	// Dietary is a free-text restriction: anything mentioning "vegetarian",
	// "vegan", or "gluten" selects the matching flag.
	Dietary string

	// MaxPrice caps the price. Zero means no cap.
	MaxPrice float64

	// Size restricts to one size variant, matched case-insensitively.
	Size string

	// IncludeUnavailable also lists 86'd items.
	IncludeUnavailable bool
}

// CategorySummary is the per-category overview returned by
// [Catalog.Categories].
type CategorySummary struct {
	Category  string `json:"category"`
	Items     int    `json:"item_count"`
	Available int    `json:"available_count"`
}

// Catalog is an immutable, ordered view over the configured menu. Items are
// held sorted by category, name, and price so listings read naturally.
type Catalog struct {
	items []Item
}

// New builds a catalog from the configured items. Items without an ID get a
// positional one assigned, so config files need not number every row.
func New(items []Item) *Catalog {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	for i := range sorted {
		if sorted[i].ID == "" {
			sorted[i].ID = fmt.Sprintf("%d", i+1)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Price < b.Price
	})
	return &Catalog{items: sorted}
}

// Len returns the total number of items, available or not.
func (c *Catalog) Len() int { return len(c.items) }

// Items lists the items matching f, in catalog order.
func (c *Catalog) Items(f Filter) []Item {
	out := []Item{}
	for _, it := range c.items {
		if !matches(it, f) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Item looks one entry up by id.
func (c *Catalog) Item(id string) (Item, bool) {
	for _, it := range c.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Search lists available items whose name or description contains q,
// case-insensitively.
func (c *Catalog) Search(q string) []Item {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return []Item{}
	}
	out := []Item{}
	for _, it := range c.items {
		if it.Unavailable {
			continue
		}
		if strings.Contains(strings.ToLower(it.Name), q) ||
			strings.Contains(strings.ToLower(it.Description), q) {
			out = append(out, it)
		}
	}
	return out
}

// Variants lists the available size variants of the dish with the given
// name, cheapest first. Useful when the caller asks about one specific item.
func (c *Catalog) Variants(name string) []Item {
	name = strings.ToLower(strings.TrimSpace(name))
	out := []Item{}
	for _, it := range c.items {
		if it.Unavailable {
			continue
		}
		if strings.ToLower(it.Name) == name {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// Categories returns the per-category item counts, in catalog order.
func (c *Catalog) Categories() []CategorySummary {
	var out []CategorySummary
	index := map[string]int{}
	for _, it := range c.items {
		i, ok := index[it.Category]
		if !ok {
			i = len(out)
			index[it.Category] = i
			out = append(out, CategorySummary{Category: it.Category})
		}
		out[i].Items++
		if !it.Unavailable {
			out[i].Available++
		}
	}
	return out
}

func matches(it Item, f Filter) bool {
	if !f.IncludeUnavailable && it.Unavailable {
		return false
	}
	if f.Category != "" && !strings.EqualFold(it.Category, f.Category) {
		return false
	}
	if f.MaxPrice > 0 && it.Price > f.MaxPrice {
		return false
	}
	if f.Size != "" && !strings.EqualFold(it.Size, f.Size) {
		return false
	}
	switch dietary := strings.ToLower(f.Dietary); {
	case dietary == "":
	case strings.Contains(dietary, "vegetarian"):
		if !it.Vegetarian {
			return false
		}
	case strings.Contains(dietary, "vegan"):
		if !it.Vegan {
			return false
		}
	case strings.Contains(dietary, "gluten"):
		if !it.GlutenFree {
			return false
		}
	}
	return true
}
