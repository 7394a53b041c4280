package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/drblury/ledgerflow/internal/runtime/jsoncodec"
	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// TransactionsPath is the Gateway API endpoint that streams committed
// transactions in ledger order.
const TransactionsPath = "/stream/transactions"

const maxErrorBody = 512

type streamRequest struct {
	FromLedgerState *ledgerStateSelector `json:"from_ledger_state,omitempty"`
	LimitPerPage    int                  `json:"limit_per_page,omitempty"`
	KindFilter      string               `json:"kind_filter,omitempty"`
	Order           string               `json:"order,omitempty"`
	OptIns          optIns               `json:"opt_ins"`
}

type ledgerStateSelector struct {
	StateVersion uint64 `json:"state_version"`
}

type optIns struct {
	ReceiptEvents bool `json:"receipt_events"`
}

type streamResponse struct {
	LedgerState ledgerState            `json:"ledger_state"`
	Items       []committedTransaction `json:"items"`
}

type ledgerState struct {
	Network                string    `json:"network"`
	StateVersion           uint64    `json:"state_version"`
	ProposerRoundTimestamp time.Time `json:"proposer_round_timestamp"`
}

type committedTransaction struct {
	StateVersion uint64    `json:"state_version"`
	IntentHash   string    `json:"intent_hash"`
	ConfirmedAt  time.Time `json:"confirmed_at"`
	Receipt      *receipt  `json:"receipt"`
}

type receipt struct {
	Events []gatewayEvent `json:"events"`
}

type gatewayEvent struct {
	Name    string          `json:"name"`
	Emitter emitter         `json:"emitter"`
	Data    json.RawMessage `json:"data"`
}

type emitter struct {
	Type           string  `json:"type"`
	Entity         *entity `json:"entity,omitempty"`
	PackageAddress string  `json:"package_address,omitempty"`
	BlueprintName  string  `json:"blueprint_name,omitempty"`
}

type entity struct {
	EntityAddress string `json:"entity_address"`
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StatusError is returned for non-2xx Gateway responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Page is one batch of committed user transactions.
type Page struct {
	Network      string
	LedgerTip    uint64
	LedgerTipAt  time.Time
	Transactions []models.Transaction
}

// Client calls the Gateway API, throttled by a token bucket.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient targets baseURL. A non-positive requestsPerSecond disables
// throttling; a nil httpClient uses one with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client, requestsPerSecond float64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
	}
}

// FetchTransactions returns up to limit user transactions starting at
// fromStateVersion (inclusive), with their receipt events.
func (c *Client) FetchTransactions(ctx context.Context, fromStateVersion uint64, limit int) (Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	body, err := jsoncodec.Marshal(streamRequest{
		FromLedgerState: &ledgerStateSelector{StateVersion: fromStateVersion},
		LimitPerPage:    limit,
		KindFilter:      "User",
		Order:           "Asc",
		OptIns:          optIns{ReceiptEvents: true},
	})
	if err != nil {
		return Page{}, fmt.Errorf("encode stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+TransactionsPath, bytes.NewReader(body))
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, statusError(resp)
	}

	var decoded streamResponse
	if err := jsoncodec.Decode(resp.Body, &decoded); err != nil {
		return Page{}, fmt.Errorf("decode stream response: %w", err)
	}

	page := Page{
		Network:      decoded.LedgerState.Network,
		LedgerTip:    decoded.LedgerState.StateVersion,
		LedgerTipAt:  decoded.LedgerState.ProposerRoundTimestamp,
		Transactions: make([]models.Transaction, 0, len(decoded.Items)),
	}
	for _, item := range decoded.Items {
		page.Transactions = append(page.Transactions, item.toModel())
	}
	return page, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var decoded apiError
	message := strings.TrimSpace(string(raw))
	if err := jsoncodec.Unmarshal(raw, &decoded); err == nil && decoded.Message != "" {
		message = decoded.Message
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: message}
}

func (t committedTransaction) toModel() models.Transaction {
	tx := models.Transaction{
		IntentHash:   t.IntentHash,
		StateVersion: t.StateVersion,
		ConfirmedAt:  t.ConfirmedAt,
	}
	if t.Receipt == nil {
		return tx
	}
	tx.Events = make([]models.Event, 0, len(t.Receipt.Events))
	for _, ev := range t.Receipt.Events {
		tx.Events = append(tx.Events, ev.toModel())
	}
	return tx
}

func (e gatewayEvent) toModel() models.Event {
	return models.Event{
		Name:    e.Name,
		Emitter: e.Emitter.toModel(),
		Data:    []byte(e.Data),
	}
}

func (e emitter) toModel() models.EventEmitter {
	if e.Type == "Function" {
		return models.FunctionEmitter(e.PackageAddress, e.BlueprintName)
	}
	var address string
	if e.Entity != nil {
		address = e.Entity.EntityAddress
	}
	return models.MethodEmitter(address)
}
