package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/ledgerflow/internal/runtime"
	"github.com/drblury/ledgerflow/internal/runtime/config"
	"github.com/drblury/ledgerflow/internal/runtime/handlers"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/observer"
	"github.com/drblury/ledgerflow/source"
	"github.com/drblury/ledgerflow/source/cursor"
)

// watchState counts what the watch handlers saw.
type watchState struct {
	Events uint64
}

type subscription struct {
	emitter models.EmitterKey
	event   string
}

func watch(ctx context.Context, e env, args []string) error {
	var common commonFlags
	var emitters, events []string
	fs := newFlagSet("watch", e, &common)
	fs.StringArrayVar(&emitters, "emitter", nil, `Emitter to follow: an entity address, "method:ADDRESS" or "function:PACKAGE/BLUEPRINT"; pairs with --event`)
	fs.StringArrayVar(&events, "event", nil, "Event name to follow for the matching --emitter")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	subs, err := parseSubscriptions(emitters, events)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(common.configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(e.stdout, common.logLevel)
	if err != nil {
		return err
	}
	return runWatch(ctx, e, cfg, subs, log)
}

func runWatch(ctx context.Context, e env, cfg *config.Config, subs []subscription, log logging.ServiceLogger) error {
	store, err := openCursor(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	stream, err := source.Build(ctx, cfg, source.Deps{Logger: log, Cursor: store})
	if err != nil {
		return err
	}

	registry := handlers.NewRegistry()
	for _, sub := range subs {
		if err := handlers.RegisterFunc(registry, sub.emitter, sub.event, logEvent(log)); err != nil {
			return err
		}
	}

	processor := runtime.NewProcessor(stream, registry, watchState{}).
		WithTransactionRetryDelay(cfg.TransactionRetryDelay).
		WithEventRetryDelay(cfg.EventRetryDelay)

	observers, err := buildObservers(cfg, e.registerer, store, log)
	if err != nil {
		return err
	}
	if len(observers) == 0 {
		processor.DisableLogging()
	} else {
		processor.WithLogger(observer.Multi(observers...))
	}

	servers := runtime.NewHTTPServers(log)
	if cfg.MetricsEnabled {
		servers.Handle(cfg.MetricsPort, "/metrics", promhttp.Handler())
	}
	if cfg.StatusEnabled {
		servers.Handle(cfg.StatusPort, runtime.StatusPath, runtime.StatusHandler(processor, cfg.StatusCORSAllowedOrigins, log))
	}
	servers.Start()
	defer func() {
		if err := servers.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Error("Failed to shut down HTTP servers", err, nil)
		}
	}()

	log.Info("Watching transactions", logging.LogFields{
		"source":        cfg.SourceSystem,
		"subscriptions": len(subs),
	})
	err = exitErr(processor.Run(ctx))
	log.Info("Watch stopped", logging.LogFields{"events": processor.State().Events})
	return err
}

func buildObservers(cfg *config.Config, registerer prometheus.Registerer, store cursor.Store, log logging.ServiceLogger) ([]observer.Logger, error) {
	var observers []observer.Logger
	if !cfg.DisableLogging {
		interval := cfg.ReportInterval
		if interval == 0 {
			interval = observer.DefaultReportInterval
		}
		observers = append(observers, observer.NewDefaultLoggerWithInterval(log, interval))
	}
	if cfg.MetricsEnabled {
		metrics := observer.NewPrometheusLogger(registerer)
		if err := metrics.Register(); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		observers = append(observers, metrics)
	}
	if store != nil {
		observers = append(observers, observer.NewCheckpointer(store, log))
	}
	return observers, nil
}

func openCursor(ctx context.Context, cfg *config.Config) (cursor.Store, error) {
	if cfg.CursorStore == "" {
		return nil, nil
	}
	return cursor.Open(ctx, cfg)
}

func logEvent(log logging.ServiceLogger) func(handlers.EventContext[watchState, struct{}]) error {
	return func(ctx handlers.EventContext[watchState, struct{}]) error {
		ctx.State.Events++
		log.Info("Observed event", logging.LogFields{
			"event":         ctx.Event.Name,
			"emitter":       ctx.Event.Emitter.String(),
			"state_version": ctx.Transaction.StateVersion,
			"intent_hash":   ctx.Transaction.IntentHash,
			"data":          string(ctx.Payload()),
		})
		return nil
	}
}

func parseSubscriptions(emitters, events []string) ([]subscription, error) {
	if len(emitters) != len(events) {
		return nil, fmt.Errorf("got %d --emitter and %d --event flags, they must pair up", len(emitters), len(events))
	}
	subs := make([]subscription, 0, len(emitters))
	for i, raw := range emitters {
		key, err := parseEmitter(raw)
		if err != nil {
			return nil, err
		}
		if events[i] == "" {
			return nil, fmt.Errorf("empty --event for emitter %q", raw)
		}
		subs = append(subs, subscription{emitter: key, event: events[i]})
	}
	return subs, nil
}

// parseEmitter accepts the EmitterKey string forms. A bare address is a
// method emitter.
func parseEmitter(raw string) (models.EmitterKey, error) {
	switch {
	case strings.HasPrefix(raw, "function:"):
		pkg, blueprint, ok := strings.Cut(strings.TrimPrefix(raw, "function:"), "/")
		if !ok || pkg == "" || blueprint == "" {
			return models.EmitterKey{}, fmt.Errorf("invalid function emitter %q, want function:PACKAGE/BLUEPRINT", raw)
		}
		return models.FunctionKey(pkg, blueprint), nil
	case strings.HasPrefix(raw, "method:"):
		raw = strings.TrimPrefix(raw, "method:")
	}
	if raw == "" {
		return models.EmitterKey{}, fmt.Errorf("empty emitter address")
	}
	return models.MethodKey(raw), nil
}
