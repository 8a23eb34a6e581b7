package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func mapping() *models.ResultMapping {
	m := models.NewResultMapping(3)
	m.Set(models.Succeeded("zeta", models.Prediction{Value: 12.5, TrainTime: 1500 * time.Millisecond, Timed: true}))
	m.Set(models.Failed("alpha", models.ErrInsufficientData))
	m.Set(models.Succeeded("mid", models.Prediction{Value: 3, TrainTime: 250 * time.Millisecond, Timed: true}))
	return m
}

func TestRenderSeasonalKeepsOrder(t *testing.T) {
	b, err := json.Marshal(Render(models.StrategySeasonal, mapping()))
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":{"forecast":12.5,"train_time":1.5},"alpha":null,"mid":{"forecast":3,"train_time":0.25}}`, string(b))
}

func TestRenderScalarStrategies(t *testing.T) {
	m := models.NewResultMapping(2)
	m.Set(models.Succeeded("b", models.Prediction{Value: 1.25}))
	m.Set(models.Failed("a", models.ErrModelFit))

	for _, s := range []models.Strategy{models.StrategyDecomposition, models.StrategyRegression} {
		d := Render(s, m)
		b, err := json.Marshal(d)
		require.NoError(t, err)
		assert.Equal(t, `{"b":1.25,"a":null}`, string(b))
		assert.Equal(t, []string{"b", "a"}, d.Keys())

		v, ok := d.Value("b")
		require.True(t, ok)
		assert.Equal(t, 1.25, v)
	}
}

func TestRenderEmpty(t *testing.T) {
	b, err := json.Marshal(Render(models.StrategyRegression, models.NewResultMapping(0)))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))

	assert.Equal(t, 0, Render(models.StrategyRegression, nil).Len())
}

func TestRows(t *testing.T) {
	rows := Rows(mapping())
	require.Len(t, rows, 3)

	assert.Equal(t, "zeta", rows[0].Category)
	require.NotNil(t, rows[0].TrainTimeSeconds)
	assert.Equal(t, 1.5, *rows[0].TrainTimeSeconds)

	assert.Nil(t, rows[1].Value)
	assert.Equal(t, "insufficient data", rows[1].Failure)
}
