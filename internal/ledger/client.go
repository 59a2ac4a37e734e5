// Package ledger is the outbound boundary to the external token ledger.
// Balance reads are synchronous; transfer and issue commands are queued
// and dispatched best-effort in the background. The core never observes
// their outcome.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Transfer moves tokens between two accounts on a token contract.
type Transfer struct {
	ID       string          `json:"id"`
	Contract string          `json:"contract"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Quantity decimal.Decimal `json:"quantity"`
	Symbol   string          `json:"symbol"`
	Memo     string          `json:"memo"`
}

// Issue mints new supply on a token contract.
type Issue struct {
	ID       string          `json:"id"`
	Contract string          `json:"contract"`
	Quantity decimal.Decimal `json:"quantity"`
	Symbol   string          `json:"symbol"`
	Memo     string          `json:"memo"`
}

// Ledger is what the session controller needs from the token ledger.
type Ledger interface {
	BalanceOf(ctx context.Context, contract, holder, symbol string) (decimal.Decimal, error)
	Transfer(t Transfer)
	Issue(i Issue)
}

type command struct {
	path    string
	payload any
}

// Client talks to the ledger over HTTP. Commands go through a buffered
// queue drained by a single dispatcher goroutine that retries transient
// failures with exponential backoff and drops the command after the final
// attempt.
type Client struct {
	base  string
	http  *http.Client
	queue chan command
	wg    sync.WaitGroup
	log   *logrus.Entry

	once sync.Once
}

// NewClient creates a ledger client and starts its dispatcher.
func NewClient(baseURL string) *Client {
	c := &Client{
		base:  baseURL,
		http:  &http.Client{Timeout: 10 * time.Second},
		queue: make(chan command, 256),
		log:   logrus.WithField("component", "ledger"),
	}

	c.wg.Add(1)
	go c.dispatch()

	return c
}

// BalanceOf reads holder's balance of symbol on the given contract.
func (c *Client) BalanceOf(ctx context.Context, contract, holder, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v1/contracts/%s/balances/%s?symbol=%s",
		c.base, url.PathEscape(contract), url.PathEscape(holder), url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build balance request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance read failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("balance read failed: status %d", resp.StatusCode)
	}

	var body struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balance: %w", err)
	}

	return body.Balance, nil
}

// Transfer enqueues a transfer command. Never blocks the caller beyond the
// queue; a full queue drops the command with a log line.
func (c *Client) Transfer(t Transfer) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	c.enqueue(command{path: "/v1/transfers", payload: t}, t.ID)
}

// Issue enqueues an issuance command.
func (c *Client) Issue(i Issue) {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	c.enqueue(command{path: "/v1/issues", payload: i}, i.ID)
}

// Close stops accepting commands and waits for the queue to drain.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.queue)
	})
	c.wg.Wait()
}

func (c *Client) enqueue(cmd command, id string) {
	select {
	case c.queue <- cmd:
	default:
		c.log.WithField("command_id", id).Warn("ledger queue full, dropping command")
	}
}

func (c *Client) dispatch() {
	defer c.wg.Done()

	for cmd := range c.queue {
		c.send(cmd)
	}
}

func (c *Client) send(cmd command) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, err := json.Marshal(cmd.payload)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+cmd.path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("ledger returned status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("ledger rejected command: status %d", resp.StatusCode)
		}

		return nil
	})
	if err != nil {
		// Best effort only; the external ledger owns further retries.
		c.log.WithError(err).WithField("path", cmd.path).Warn("ledger command dropped")
	}
}
