// Package httpdelivery implements the delivery collaborator over HTTP JSON.
package httpdelivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/locqueue"
	"github.com/brdigitals4u/ttm-eld-mobile-sub000/pkg/id"
	logpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/pkg/log"
)

// Options configures the ingestion client.
type Options struct {
	// URL is the batch ingestion endpoint. Required.
	URL string
	// Timeout bounds one round trip. Default 15s.
	Timeout time.Duration
	// AuthToken, when set, is sent as a bearer token.
	AuthToken string
	// HTTPClient overrides the default client; Timeout is ignored then.
	HTTPClient *http.Client
	Logger     logpkg.Logger
}

// Client posts location batches to the ingestion service.
//
// Each submission carries a sortable X-Batch-Id so the server can
// deduplicate at-least-once redelivery of the same batch.
type Client struct {
	url    string
	token  string
	hc     *http.Client
	ids    *id.Generator
	logger logpkg.Logger
}

// New builds a Client. Fails when no endpoint is configured: flushes against
// an unconfigured agent must fail (and keep samples queued) rather than
// silently drop.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("httpdelivery: Options.URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("delivery"))
	}
	return &Client{
		url:    opts.URL,
		token:  opts.AuthToken,
		hc:     hc,
		ids:    id.NewGenerator(),
		logger: logger,
	}, nil
}

type submitRequest struct {
	Locations []locqueue.BatchSample `json:"locations"`
}

// SubmitBatch posts one batch and decodes the server's acknowledgement.
func (c *Client) SubmitBatch(ctx context.Context, batch []locqueue.BatchSample) (*locqueue.DeliveryResult, error) {
	body, err := json.Marshal(submitRequest{Locations: batch})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Batch-Id", c.ids.Next().String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpdelivery: submit: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("httpdelivery: submit: unexpected status %s", resp.Status)
	}

	var res locqueue.DeliveryResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("httpdelivery: decode response: %w", err)
	}
	c.logger.Debug("batch submitted",
		logpkg.Int("count", len(batch)),
		logpkg.Dur("elapsed", time.Since(start)))
	return &res, nil
}
