package client

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"spendbook/internal/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultCurrencySymbol prefixes every rendered amount.
const DefaultCurrencySymbol = "₹"

// RenderOptions controls the text view.
type RenderOptions struct {
	// Language selects digit grouping. Zero value means English.
	Language language.Tag
	// Currency defaults to DefaultCurrencySymbol.
	Currency string
	// Width, when positive, truncates descriptions so record lines fit.
	Width int
	// HideRecords prints only the totals.
	HideRecords bool
}

type renderer struct {
	w        io.Writer
	p        *message.Printer
	currency string
	err      error
}

func (r *renderer) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

// amount formats minor units with grouped major digits and two decimals.
func (r *renderer) amount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%s%s.%02d", sign, r.currency, r.p.Sprint(number.Decimal(minor/100)), minor%100)
}

// Render writes the listing view: one line per record, the grand total, the
// per-category breakdown and the filter choices.
func Render(w io.Writer, records []models.Expense, s Summary, opts RenderOptions) error {
	lang := opts.Language
	if lang == language.Und {
		lang = language.English
	}
	r := &renderer{w: w, p: message.NewPrinter(lang), currency: opts.Currency}
	if r.currency == "" {
		r.currency = DefaultCurrencySymbol
	}

	if !opts.HideRecords {
		if len(records) == 0 {
			r.printf("No expenses.\n")
		}
		for _, e := range records {
			line := fmt.Sprintf("%s | %s | %s", e.Date, e.Category, r.amount(e.AmountMinorUnits))
			desc := e.Description
			if desc != "" && opts.Width > 0 {
				desc = truncate(desc, opts.Width-utf8.RuneCountInString(line)-3)
			}
			if desc != "" {
				line += " | " + desc
			}
			r.printf("%s\n", line)
		}
	}

	r.printf("Total: %s\n", r.amount(s.TotalMinorUnits))

	if len(s.Categories) > 0 {
		r.printf("\nBy category:\n")
		for _, c := range s.Categories {
			r.printf("  %s: %s (%.1f%%)\n", c.Category, r.amount(c.MinorUnits), c.Percentage)
		}
	}

	if len(s.CategoryOptions) > 0 {
		r.printf("\nCategories: %s\n", strings.Join(s.CategoryOptions, ", "))
	}
	return r.err
}

// truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}
