package main

import (
	"context"
	"errors"

	"github.com/drblury/ledgerflow/internal/runtime/config"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/observer"
	"github.com/drblury/ledgerflow/source"
	"github.com/drblury/ledgerflow/source/pubsub"
	"github.com/drblury/ledgerflow/transport"
)

var errRelayLoop = errors.New("relay cannot read from the pubsub source it publishes to")

func relay(ctx context.Context, e env, args []string) error {
	var common commonFlags
	var topic string
	fs := newFlagSet("relay", e, &common)
	fs.StringVarP(&topic, "topic", "t", "", "Topic to publish to, overrides the config file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := loadConfig(common.configPath)
	if err != nil {
		return err
	}
	if topic != "" {
		cfg.Topic = topic
	}
	log, err := newLogger(e.stdout, common.logLevel)
	if err != nil {
		return err
	}
	return runRelay(ctx, cfg, log)
}

func runRelay(ctx context.Context, cfg *config.Config, log logging.ServiceLogger) error {
	if cfg.SourceSystem == config.SourcePubSub {
		return errRelayLoop
	}

	store, err := openCursor(ctx, cfg)
	if err != nil {
		return err
	}
	var saver observer.CursorSaver
	if store != nil {
		defer store.Close()
		saver = store
	}

	tr, err := transport.Build(ctx, cfg, logging.NewWatermillAdapter(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Error("Failed to close transport", err, nil)
		}
	}()

	publisher, err := pubsub.NewPublisher(tr.Publisher, pubsub.PublisherConfig{
		Topic:       cfg.Topic,
		ContentType: cfg.ContentType,
		Network:     cfg.Network,
	})
	if err != nil {
		return err
	}

	stream, err := source.Build(ctx, cfg, source.Deps{Logger: log, Cursor: store})
	if err != nil {
		return err
	}

	log.Info("Relaying transactions", logging.LogFields{
		"source":        cfg.SourceSystem,
		"pubsub_system": cfg.PubSubSystem,
		"topic":         cfg.Topic,
	})
	return exitErr(pubsub.NewRelay(stream, publisher, pubsub.RelayConfig{Cursor: saver}, log).Run(ctx))
}
