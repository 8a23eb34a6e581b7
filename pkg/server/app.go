package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	jobs       pkgkafka.MessageHandler
}

// New creates a new App. consumer and jobs are optional but must be set together.
func New(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	jobs pkgkafka.MessageHandler,
) *App {
	if log == nil {
		log = logger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		consumer:   consumer,
		jobs:       jobs,
	}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if a.consumer != nil && a.jobs != nil {
		a.consumer.RegisterHandler(a.jobs)
		a.consumer.WithConsumerHook(a.jobHook())
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", logger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", logger.String("topic", a.jobs.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", logger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// jobHook carries the trace id into the handler and logs failed jobs once
// their retries are exhausted.
func (a *App) jobHook() pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		Before: pkgkafka.TraceHook().BeforeHandle,
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			a.log.Error("forecast job failed",
				logger.String("topic", topic),
				logger.Int("partition", km.Partition),
				logger.Int64("offset", km.Offset),
				logger.String("trace_id", pkgkafka.ExtractTraceID(km)),
				logger.Bool("permanent", pkgkafka.IsPermanent(err)),
				logger.Error(err),
			)
		},
	}
}

// shutdown stops intake first: HTTP, then the consumer. Clients are closed
// afterwards by the DI cleanup.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", logger.Error(err))
		firstErr = err
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.log.Info("shutdown complete")
	return firstErr
}
