package client

import (
	"errors"
	"fmt"
	"io"

	"spendbook/internal/models"

	"github.com/wcharczuk/go-chart/v2"
)

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("no expenses to chart")

// RenderCategoryChart writes a PNG pie chart of the category breakdown.
func RenderCategoryChart(w io.Writer, s Summary) error {
	values := make([]chart.Value, 0, len(s.Categories))
	for _, c := range s.Categories {
		if c.MinorUnits <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s%s (%.1f%%)", c.Category, DefaultCurrencySymbol, models.FormatMinorUnits(c.MinorUnits), c.Percentage),
			Value: float64(c.MinorUnits) / 100,
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		})
	}
	if len(values) == 0 {
		return ErrNoData
	}

	pie := chart.PieChart{
		Title:  "Spending by category",
		Width:  800,
		Height: 800,
		Values: values,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
	}

	if err := pie.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render category chart: %w", err)
	}
	return nil
}
