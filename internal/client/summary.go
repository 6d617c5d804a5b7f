package client

import "spendbook/internal/models"

// CategoryTotal is the spending of one category within a listing.
type CategoryTotal struct {
	Category   string  `json:"category"`
	MinorUnits int64   `json:"minor_units"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Summary holds the aggregates shown next to a listing.
type Summary struct {
	TotalMinorUnits int64 `json:"total_minor_units"`
	Count           int   `json:"count"`
	// Categories lists subtotals in order of first appearance.
	Categories []CategoryTotal `json:"categories"`
	// CategoryOptions are the filter choices offered to the user. They come
	// from the current result set, so a filtered listing offers only the
	// categories it contains.
	CategoryOptions []string `json:"category_options"`
}

// Summarize computes the grand total and per-category subtotals of records.
func Summarize(records []models.Expense) Summary {
	s := Summary{
		Categories:      []CategoryTotal{},
		CategoryOptions: []string{},
	}
	index := make(map[string]int)

	for _, e := range records {
		s.TotalMinorUnits += e.AmountMinorUnits
		s.Count++

		i, ok := index[e.Category]
		if !ok {
			i = len(s.Categories)
			index[e.Category] = i
			s.Categories = append(s.Categories, CategoryTotal{Category: e.Category})
			s.CategoryOptions = append(s.CategoryOptions, e.Category)
		}
		s.Categories[i].MinorUnits += e.AmountMinorUnits
		s.Categories[i].Count++
	}

	if s.TotalMinorUnits > 0 {
		for i := range s.Categories {
			s.Categories[i].Percentage = float64(s.Categories[i].MinorUnits) / float64(s.TotalMinorUnits) * 100
		}
	}
	return s
}

// CategoryTotal returns the subtotal for category, or zero when absent.
func (s Summary) CategoryTotal(category string) int64 {
	for _, c := range s.Categories {
		if c.Category == category {
			return c.MinorUnits
		}
	}
	return 0
}
