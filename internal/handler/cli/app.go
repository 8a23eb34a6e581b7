package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/forecast"
	"FinCast/internal/services/ingest"
	"FinCast/internal/services/report"
	"FinCast/internal/usecase"
	"FinCast/pkg/config"
	"FinCast/pkg/logger"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// CLIApp is the offline forecasting command line.
type CLIApp struct {
	rootCmd *cobra.Command
	version string
	engines usecase.EngineResolver // nil: built from config
}

// Option configures CLIApp.
type Option func(*CLIApp)

// WithEngines replaces the engines built from configuration.
func WithEngines(r usecase.EngineResolver) Option {
	return func(a *CLIApp) { a.engines = r }
}

func NewCLIApp(version string, opts ...Option) *CLIApp {
	app := &CLIApp{version: version}
	for _, opt := range opts {
		opt(app)
	}

	rootCmd := &cobra.Command{
		Use:           "forecast",
		Short:         "Next-period spending forecasts per category",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file (default: built-in defaults)")

	rootCmd.AddCommand(app.runCmd(), app.strategiesCmd())
	app.rootCmd = rootCmd
	return app
}

// Execute runs the CLI application.
func (app *CLIApp) Execute() error {
	return app.rootCmd.Execute()
}

// Root exposes the root command, e.g. to set arguments and writers in tests.
func (app *CLIApp) Root() *cobra.Command { return app.rootCmd }

func (app *CLIApp) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Forecast every category of a CSV or XLSX table",
		Example: "  forecast run --model sarima --file spending.csv\n" +
			"  forecast run -m gb -f spending.xlsx --lags 6 --json",
		RunE: app.runForecast,
	}
	cmd.Flags().StringP("model", "m", "", "Forecasting strategy: sarima, prophet or gb")
	cmd.Flags().StringP("file", "f", "", "Input table (date, category, amount)")
	cmd.Flags().String("format", "", "Input format override: csv or xlsx (default: from extension)")
	cmd.Flags().Int("lags", 0, "Lag features for gb (default: forecast.lag_count)")
	cmd.Flags().Int("workers", 0, "Categories fitted in parallel (default: forecast.workers)")
	cmd.Flags().Bool("json", false, "Print the raw JSON mapping instead of a table")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (app *CLIApp) strategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the available forecasting strategies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderStrategies())
			return nil
		},
	}
}

// loadConfig returns defaults when no file is given; env overrides apply either way.
func (app *CLIApp) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadWithEnv(path)
	}
	cfg := config.Default()
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (app *CLIApp) runForecast(cmd *cobra.Command, _ []string) error {
	model, _ := cmd.Flags().GetString("model")
	file, _ := cmd.Flags().GetString("file")
	formatFlag, _ := cmd.Flags().GetString("format")
	lags, _ := cmd.Flags().GetInt("lags")
	workers, _ := cmd.Flags().GetInt("workers")
	asJSON, _ := cmd.Flags().GetBool("json")

	strategy, err := models.ParseStrategy(model)
	if err != nil {
		return err
	}

	cfg, err := app.loadConfig(cmd)
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.Forecast.Workers
	}

	format, err := ingest.DetectFormat(file, formatFlag)
	if err != nil {
		return err
	}
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	ds, err := ingest.Parse(f, format, strategy)
	if err != nil {
		return err
	}

	engines := app.engines
	if engines == nil {
		logs, err := logger.OpenEngineLogs(logger.EngineLogsConfig{
			Level:  cfg.Logging.Level,
			Format: "json",
			Files:  cfg.Logging.Engines,
		})
		if err != nil {
			return err
		}
		defer logs.Close()
		engines = forecast.NewRegistry(forecast.Config{
			Seasonal:      forecast.SeasonalConfig(cfg.Forecast.Seasonal),
			Decomposition: forecast.DecompositionConfig(cfg.Forecast.Decomposition),
			Boosting:      forecast.BoostingConfig(cfg.Forecast.Boosting),
		}, logs)
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), "warn")
	forecaster := usecase.NewBatchForecaster(engines, nil, nil, log, workers, cfg.Forecast.LagCount)

	opts := usecase.RunOptions{LagCount: lags}
	var spinner *pterm.SpinnerPrinter
	if !asJSON {
		spinner, _ = pterm.DefaultSpinner.
			WithWriter(cmd.ErrOrStderr()).
			WithRemoveWhenDone(true).
			Start(fmt.Sprintf("Forecasting %d categories with %s", len(ds.Categories), strategy))
		done := 0
		opts.OnResult = func(r models.ForecastResult) {
			done++
			spinner.UpdateText(fmt.Sprintf("Forecasting %s (%d/%d)", r.Category, done, len(ds.Categories)))
		}
	}

	batch, err := forecaster.RunBatch(context.Background(), ds, strategy, opts)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		b, err := json.Marshal(report.Render(strategy, batch.Results))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
		return nil
	}

	fmt.Fprintln(out, renderBatch(filepath.Base(file), batch))
	fmt.Fprintln(out, pterm.Success.Sprintf("%d of %d categories forecast in %s",
		batch.Results.Len()-batch.Results.Failed(), batch.Results.Len(), batch.Elapsed.Round(time.Millisecond)))
	return nil
}
