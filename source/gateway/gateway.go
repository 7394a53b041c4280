// Package gateway streams committed transactions from a Radix Gateway API.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/source"
	"github.com/drblury/ledgerflow/source/cursor"
)

const SourceName = "gateway"

const (
	PublicMainnetURL        = "https://mainnet.radixdlt.com"
	DefaultFromStateVersion = 1
	DefaultPageSize         = 100
	DefaultBufferCapacity   = 10000
	DefaultCaughtUpTimeout  = 500 * time.Millisecond

	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryMaxInterval     = 30 * time.Second
)

func init() {
	Register(source.DefaultRegistry)
}

// Register adds the gateway source to r.
func Register(r *source.Registry) {
	r.Register(SourceName, Build)
}

// Build creates a gateway stream from config.
func Build(_ context.Context, cfg source.Config, deps source.Deps) (source.Stream, error) {
	return New(Config{
		GatewayURL:        cfg.GetGatewayURL(),
		FromStateVersion:  cfg.GetFromStateVersion(),
		PageSize:          cfg.GetPageSize(),
		BufferCapacity:    cfg.GetBufferCapacity(),
		CaughtUpTimeout:   cfg.GetCaughtUpTimeout(),
		RequestsPerSecond: cfg.GetRequestsPerSecond(),
		Cursor:            deps.Cursor,
	}, deps.Logger), nil
}

type Config struct {
	GatewayURL string
	// FromStateVersion is the first state version to fetch, inclusive.
	FromStateVersion uint64
	PageSize         int
	// BufferCapacity bounds the channel between fetcher and processor.
	BufferCapacity int
	// CaughtUpTimeout is slept after an empty page.
	CaughtUpTimeout   time.Duration
	RequestsPerSecond float64

	// Cursor, when it holds a saved state version, overrides FromStateVersion
	// with the version after it.
	Cursor cursor.Store

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.GatewayURL == "" {
		c.GatewayURL = PublicMainnetURL
	}
	if c.FromStateVersion == 0 {
		c.FromStateVersion = DefaultFromStateVersion
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.CaughtUpTimeout <= 0 {
		c.CaughtUpTimeout = DefaultCaughtUpTimeout
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = DefaultRetryInitialInterval
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = DefaultRetryMaxInterval
	}
	return c
}

// Stream polls the Gateway from a state version onwards. Fetch failures are
// retried forever with exponential backoff.
type Stream struct {
	cfg    Config
	client *Client
	log    logging.ServiceLogger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ source.Stream = (*Stream)(nil)

func New(cfg Config, log logging.ServiceLogger) *Stream {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logging.Discard()
	}
	return &Stream{
		cfg:    cfg,
		client: NewClient(cfg.GatewayURL, cfg.HTTPClient, cfg.RequestsPerSecond),
		log:    log.With(logging.LogFields{"component": "gateway_stream", "gateway_url": cfg.GatewayURL}),
	}
}

// Start resolves the first state version and starts fetching in the
// background. The channel closes once the fetcher ends.
func (s *Stream) Start(ctx context.Context) (<-chan models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, errspkg.ErrStreamStarted
	}

	from, err := cursor.ResumeFrom(ctx, s.cfg.Cursor, s.cfg.FromStateVersion)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan models.Transaction, s.cfg.BufferCapacity)
	s.started = true
	s.cancel = cancel
	s.done = make(chan struct{})

	s.log.Info("Starting gateway stream", logging.LogFields{"from_state_version": from})
	go s.run(runCtx, from, out)
	return out, nil
}

// Stop cancels the fetcher and waits for it to exit or for ctx to end.
func (s *Stream) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Stream) run(ctx context.Context, next uint64, out chan<- models.Transaction) {
	defer close(s.done)
	defer close(out)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.cfg.RetryInitialInterval
	retry.MaxInterval = s.cfg.RetryMaxInterval

	for {
		page, err := s.client.FetchTransactions(ctx, next, s.cfg.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := retry.NextBackOff()
			s.log.Error("Error fetching transactions, trying again", err, logging.LogFields{
				"from_state_version": next,
				"retry_in":           delay.String(),
			})
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		retry.Reset()

		if len(page.Transactions) == 0 {
			s.log.Trace("Caught up with ledger", logging.LogFields{"ledger_tip": page.LedgerTip})
			if !sleep(ctx, s.cfg.CaughtUpTimeout) {
				return
			}
			continue
		}

		for _, tx := range page.Transactions {
			select {
			case out <- tx:
			case <-ctx.Done():
				return
			}
			next = tx.StateVersion + 1
		}
		s.log.Debug("Fetched transactions", logging.LogFields{
			"count":              len(page.Transactions),
			"next_state_version": next,
			"ledger_tip":         page.LedgerTip,
		})
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
