package source_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/ledgerflow/internal/runtime/config"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/source"
	"github.com/drblury/ledgerflow/source/memory"
)

func TestRegistryBuild(t *testing.T) {
	reg := source.NewRegistry()
	var got source.Deps
	reg.Register("fake", func(_ context.Context, _ source.Config, deps source.Deps) (source.Stream, error) {
		got = deps
		return memory.Of(), nil
	})

	stream, err := reg.Build(context.Background(), &config.Config{SourceSystem: "fake"}, source.Deps{})
	require.NoError(t, err)
	assert.NotNil(t, stream)
	assert.NotNil(t, got.Logger)
}

func TestRegistryBuildErrors(t *testing.T) {
	reg := source.NewRegistry()
	memory.Register(reg)

	_, err := reg.Build(context.Background(), nil, source.Deps{})
	assert.EqualError(t, err, "source config is required")

	_, err = reg.Build(context.Background(), &config.Config{SourceSystem: "kinesis"}, source.Deps{Logger: logging.Discard()})
	assert.EqualError(t, err, `unknown source: "kinesis" (registered: [memory])`)
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := source.NewRegistry()
	noop := func(context.Context, source.Config, source.Deps) (source.Stream, error) { return nil, nil }
	reg.Register("pubsub", noop)
	reg.Register("gateway", noop)
	reg.Register("memory", noop)
	assert.Equal(t, []string{"gateway", "memory", "pubsub"}, reg.Names())
}
