package cli

import (
	"fmt"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/report"

	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
)

// money rounds half away from zero to cents.
func money(v float64) string {
	return decimal.NewFromFloat(v).Round(2).StringFixed(2)
}

// renderBatch draws the per-category results plus the sum of the forecasts
// that succeeded.
func renderBatch(title string, b *models.ForecastBatch) string {
	tableData := pterm.TableData{{"Category", "Forecast", "Train time", "Status"}}

	total := decimal.Zero
	for _, row := range report.Rows(b.Results) {
		forecast, trainTime, status := "-", "-", "ok"
		if row.Value != nil {
			forecast = money(*row.Value)
			total = total.Add(decimal.NewFromFloat(*row.Value))
		} else {
			status = row.Failure
			if status == "" {
				status = "no value"
			}
		}
		if row.TrainTimeSeconds != nil {
			trainTime = fmt.Sprintf("%.3fs", *row.TrainTimeSeconds)
		}
		tableData = append(tableData, []string{row.Category, forecast, trainTime, status})
	}
	tableData = append(tableData, []string{"TOTAL", total.Round(2).StringFixed(2), "", ""})

	rendered, _ := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(tableData).
		Srender()

	return pterm.DefaultBox.
		WithTitle(fmt.Sprintf("%s | %s | batch %s", title, b.Strategy, b.BatchID)).
		WithBoxStyle(pterm.NewStyle(pterm.FgCyan)).
		Sprint(rendered)
}

func renderStrategies() string {
	tableData := pterm.TableData{{"Model", "Description"}}
	for _, s := range models.Strategies() {
		tableData = append(tableData, []string{s.String(), s.Description()})
	}
	rendered, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	return rendered
}
