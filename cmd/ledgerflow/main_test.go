package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/ledgerflow/internal/runtime/config"
	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/handlers"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/observer"
	"github.com/drblury/ledgerflow/source/cursor"
)

func testEnv() (env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return env{stdout: &stdout, stderr: &stderr, registerer: prometheus.NewRegistry()}, &stdout, &stderr
}

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgerflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestRunCommands(t *testing.T) {
	e, stdout, stderr := testEnv()

	assert.ErrorIs(t, run(context.Background(), e, nil), errUsage)
	assert.Contains(t, stderr.String(), "ledgerflow watch [FLAGS]")

	assert.EqualError(t, run(context.Background(), e, []string{"serve"}), `unknown command "serve"`)

	require.NoError(t, run(context.Background(), e, []string{"help"}))
	assert.Contains(t, stdout.String(), "ledgerflow relay [FLAGS]")
}

func TestCommandHelp(t *testing.T) {
	e, _, stderr := testEnv()
	assert.ErrorIs(t, run(context.Background(), e, []string{"watch", "--help"}), errUsage)
	assert.Contains(t, stderr.String(), "--emitter")

	assert.Error(t, run(context.Background(), e, []string{"relay", "extra"}))
}

func TestParseEmitter(t *testing.T) {
	tests := []struct {
		raw     string
		want    models.EmitterKey
		wantErr bool
	}{
		{raw: "account_rdx_a", want: models.MethodKey("account_rdx_a")},
		{raw: "method:component_rdx_b", want: models.MethodKey("component_rdx_b")},
		{raw: "function:package_rdx_c/Pool", want: models.FunctionKey("package_rdx_c", "Pool")},
		{raw: "function:package_rdx_c", wantErr: true},
		{raw: "function:/Pool", wantErr: true},
		{raw: "method:", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseEmitter(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSubscriptions(t *testing.T) {
	subs, err := parseSubscriptions([]string{"account_rdx_a", "function:package_rdx_b/Pool"}, []string{"DepositEvent", "SwapEvent"})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "function:package_rdx_b/Pool", subs[1].emitter.String())
	assert.Equal(t, "SwapEvent", subs[1].event)

	_, err = parseSubscriptions([]string{"account_rdx_a"}, nil)
	assert.Error(t, err)
	_, err = parseSubscriptions([]string{"account_rdx_a"}, []string{""})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn")
	require.NoError(t, err)
	log.Info("hidden", nil)
	log.Error("shown", nil, nil)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = newLogger(&buf, "loud")
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.SourceGateway, cfg.SourceSystem)
	assert.Equal(t, config.DefaultGatewayURL, cfg.GatewayURL)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildObservers(t *testing.T) {
	log := logging.Discard()

	observers, err := buildObservers(&config.Config{DisableLogging: true}, prometheus.NewRegistry(), nil, log)
	require.NoError(t, err)
	assert.Empty(t, observers)

	observers, err = buildObservers(&config.Config{MetricsEnabled: true}, prometheus.NewRegistry(), cursor.NewMemoryStore(), log)
	require.NoError(t, err)
	require.Len(t, observers, 3)
	assert.IsType(t, &observer.DefaultLogger{}, observers[0])
	assert.IsType(t, &observer.PrometheusLogger{}, observers[1])
	assert.IsType(t, &observer.Checkpointer{}, observers[2])
	assert.Equal(t, observer.DefaultReportInterval, observers[0].PeriodicReportInterval())
}

func TestWatchRunsUntilCancelled(t *testing.T) {
	path := writeConfig(t, `
source_system: memory
cursor_store: memory
report_interval: 10ms
`)
	e, stdout, _ := testEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := run(ctx, e, []string{"watch", "-c", path, "--emitter", "account_rdx_a", "--event", "DepositEvent"})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Watching transactions")
	assert.Contains(t, stdout.String(), "Watch stopped")
}

func TestLogEventCountsEvents(t *testing.T) {
	log := logging.NewRecorder()
	handler := logEvent(log)

	state := &watchState{}
	tx := &models.Transaction{StateVersion: 12, IntentHash: "txid"}
	event := &models.Event{Name: "DepositEvent", Emitter: models.MethodEmitter("account_rdx_a"), Data: []byte(`{"kind":"Tuple"}`)}
	require.NoError(t, handler(handlersContext(state, tx, event)))

	assert.Equal(t, uint64(1), state.Events)
	entry, ok := log.Find("Observed event")
	require.True(t, ok)
	assert.Equal(t, "method:account_rdx_a", entry.Fields["emitter"])
	assert.Equal(t, `{"kind":"Tuple"}`, entry.Fields["data"])
}

func TestRelayValidation(t *testing.T) {
	cfg := &config.Config{SourceSystem: config.SourcePubSub, Topic: "ledger"}
	cfg.ApplyDefaults()
	assert.ErrorIs(t, runRelay(context.Background(), cfg, logging.Discard()), errRelayLoop)

	cfg = &config.Config{SourceSystem: config.SourceMemory}
	cfg.ApplyDefaults()
	assert.ErrorIs(t, runRelay(context.Background(), cfg, logging.Discard()), errspkg.ErrTopicRequired)
}

func TestRelayRunsUntilCancelled(t *testing.T) {
	path := writeConfig(t, `
source_system: memory
pubsub_system: channel
topic: ledger.transactions
`)
	e, stdout, _ := testEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, run(ctx, e, []string{"relay", "--config", path, "--topic", "ledger.override"}))
	assert.Contains(t, stdout.String(), "ledger.override")
}

func handlersContext(state *watchState, tx *models.Transaction, event *models.Event) handlers.EventContext[watchState, struct{}] {
	return handlers.EventContext[watchState, struct{}]{
		Context:     context.Background(),
		State:       state,
		Transaction: tx,
		Event:       event,
		TxContext:   &struct{}{},
	}
}
