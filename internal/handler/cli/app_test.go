package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/forecast"
)

type lastValueEngine struct{ strategy models.Strategy }

func (e lastValueEngine) Strategy() models.Strategy { return e.strategy }

func (e lastValueEngine) FitPredict(_ context.Context, in models.EngineInput) (models.Prediction, error) {
	if in.Series.Category == "broken" {
		return models.Prediction{}, models.ErrInsufficientData
	}
	return models.Prediction{Value: in.Series.Last().Amount}, nil
}

const spending = `date,category,amount
2024-01-31,rent,1000
2024-01-31,food,200
2024-02-29,rent,1010
2024-02-29,food,220.5
2024-02-29,broken,1
`

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spending.csv")
	require.NoError(t, os.WriteFile(path, []byte(spending), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	app := NewCLIApp("test", WithEngines(forecast.NewRegistryWith(lastValueEngine{strategy: models.StrategyDecomposition})))
	var out, errOut bytes.Buffer
	root := app.Root()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := app.Execute()
	return out.String(), err
}

func TestRunPrintsOrderedJSON(t *testing.T) {
	out, err := execute(t, "run", "--model", "prophet", "--file", writeInput(t), "--json")
	require.NoError(t, err)
	assert.Equal(t, `{"rent":1010,"food":220.5,"broken":null}`+"\n", out)
}

func TestRunPrintsTable(t *testing.T) {
	out, err := execute(t, "run", "-m", "prophet", "-f", writeInput(t))
	require.NoError(t, err)

	assert.Contains(t, out, "rent")
	assert.Contains(t, out, "1010.00")
	assert.Contains(t, out, "220.50")
	assert.Contains(t, out, "insufficient data")
	assert.Contains(t, out, "1230.50")
	assert.Contains(t, out, "2 of 3 categories")
}

func TestRunRejectsUnknownModel(t *testing.T) {
	_, err := execute(t, "run", "-m", "lstm", "-f", writeInput(t))
	assert.True(t, errors.Is(err, models.ErrInvalidStrategy))
}

func TestRunMissingEngine(t *testing.T) {
	_, err := execute(t, "run", "-m", "gb", "-f", writeInput(t), "--json")
	assert.True(t, errors.Is(err, models.ErrInvalidStrategy))
}

func TestRunRequiresFlags(t *testing.T) {
	_, err := execute(t, "run", "-m", "sarima")
	assert.Error(t, err)
}

func TestStrategies(t *testing.T) {
	out, err := execute(t, "strategies")
	require.NoError(t, err)
	for _, s := range []string{"sarima", "prophet", "gb"} {
		assert.Contains(t, out, s)
	}
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "10.13", money(10.125))
	assert.Equal(t, "-3.00", money(-2.999))
	assert.Equal(t, "0.00", money(0))
}
