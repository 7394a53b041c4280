package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/wirecodec"
)

const testTopic = "ledger.transactions"

var errPublish = errors.New("broker unavailable")

func transaction(version uint64) models.Transaction {
	return models.Transaction{
		IntentHash:   fmt.Sprintf("txid_rdx_%d", version),
		StateVersion: version,
		ConfirmedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(version) * time.Second),
		Events: []models.Event{{
			Name:    "DepositEvent",
			Emitter: models.MethodEmitter("account_rdx_a"),
			Data:    []byte(`{"kind":"Tuple","fields":[]}`),
		}},
	}
}

func encoded(t *testing.T, contentType string, tx models.Transaction) *message.Message {
	t.Helper()
	payload, err := wirecodec.Encode(contentType, &tx)
	require.NoError(t, err)
	msg := message.NewMessage(tx.IntentHash, payload)
	if contentType != "" {
		msg.Metadata.Set("content_type", contentType)
	}
	return msg
}

// chanSubscriber hands the test's channel to the stream.
type chanSubscriber struct {
	ch  chan *message.Message
	err error
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{ch: make(chan *message.Message)}
}

func (s *chanSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ch, nil
}

func (s *chanSubscriber) Close() error { return nil }

func (s *chanSubscriber) send(t *testing.T, msg *message.Message) {
	t.Helper()
	select {
	case s.ch <- msg:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not take the message")
	}
}

func waitAcked(t *testing.T, msg *message.Message) {
	t.Helper()
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		t.Fatalf("message %s was nacked", msg.UUID)
	case <-time.After(5 * time.Second):
		t.Fatalf("message %s was not acked", msg.UUID)
	}
}

func next(t *testing.T, ch <-chan models.Transaction) models.Transaction {
	t.Helper()
	select {
	case tx, ok := <-ch:
		require.True(t, ok, "stream closed")
		return tx
	case <-time.After(5 * time.Second):
		t.Fatal("no transaction received")
		return models.Transaction{}
	}
}

// sliceStream emits fixed transactions and closes.
type sliceStream struct {
	txs       []models.Transaction
	stopped   int
	committed []uint64
}

func (s *sliceStream) Start(context.Context) (<-chan models.Transaction, error) {
	ch := make(chan models.Transaction, len(s.txs))
	for _, tx := range s.txs {
		ch <- tx
	}
	close(ch)
	return ch, nil
}

func (s *sliceStream) Stop(context.Context) { s.stopped++ }

func (s *sliceStream) Commit(_ context.Context, tx *models.Transaction) {
	s.committed = append(s.committed, tx.StateVersion)
}

// flakyPublisher fails the first failures calls.
type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	versions []string
}

func (p *flakyPublisher) Publish(_ string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errPublish
	}
	for _, msg := range msgs {
		p.versions = append(p.versions, msg.Metadata.Get("ledgerflow_state_version"))
	}
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

type savedVersions struct {
	mu       sync.Mutex
	versions []uint64
	err      error
}

func (s *savedVersions) Save(_ context.Context, v uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.versions = append(s.versions, v)
	return nil
}
