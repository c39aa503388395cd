// Package ofac is the client for the OFAC sanctions search API.
package ofac

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	platformprovider "idmask/internal/platform/provider"
	"idmask/internal/sanctions"
	"idmask/pkg/platform/circuit"
)

// ProviderID names this provider in errors and spans.
const ProviderID = "ofac"

// SourceSDN is the Specially Designated Nationals list.
const SourceSDN = "SDN"

const maxResponseBytes = 4 << 20

type searchRequest struct {
	APIKey   string           `json:"apiKey"`
	Source   []string         `json:"source"`
	MinScore int              `json:"minScore"`
	Cases    []sanctions.Case `json:"cases"`
}

type searchResponse struct {
	Error        bool                         `json:"error"`
	ErrorMessage string                       `json:"errorMessage"`
	Matches      map[string][]json.RawMessage `json:"matches"`
}

// Client searches one case per call. Every call is a single attempt.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	tracer     trace.Tracer
	breaker    *circuit.Breaker
}

type Option func(*Client)

// WithBreaker fails calls fast while b is open.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func New(url, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		apiKey:     apiKey,
		tracer:     otel.Tracer("idmask/sanctions/ofac"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search screens c against the SDN list at minScore.
func (c *Client) Search(ctx context.Context, minScore int, sc sanctions.Case) (*sanctions.MatchResult, error) {
	ctx, span := c.tracer.Start(ctx, "ofac.search", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("ofac.min_score", minScore))

	if c.breaker != nil && !c.breaker.Allow() {
		err := platformprovider.NewError(platformprovider.ErrorProviderOutage, ProviderID, "circuit open", nil)
		span.SetStatus(codes.Error, string(platformprovider.ErrorProviderOutage))
		return nil, err
	}

	res, err := c.search(ctx, minScore, sc)
	c.record(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(platformprovider.GetCategory(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Bool("ofac.matched", res.Matched))
	return res, nil
}

func (c *Client) search(ctx context.Context, minScore int, sc sanctions.Case) (*sanctions.MatchResult, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:   c.apiKey,
		Source:   []string{SourceSDN},
		MinScore: minScore,
		Cases:    []sanctions.Case{sc},
	})
	if err != nil {
		return nil, platformprovider.NewError(platformprovider.ErrorInternal, ProviderID, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, platformprovider.NewError(platformprovider.ErrorInternal, ProviderID, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, platformprovider.FromTransport(ProviderID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, platformprovider.FromTransport(ProviderID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, platformprovider.FromStatus(ProviderID, resp.StatusCode, platformprovider.Snippet(data))
	}

	var out searchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, platformprovider.NewError(platformprovider.ErrorBadData, ProviderID, "decode response", err)
	}
	if out.Error {
		msg := out.ErrorMessage
		if msg == "" {
			msg = "search failed"
		}
		return nil, platformprovider.NewError(platformprovider.ErrorBadData, ProviderID, msg, nil)
	}
	if len(out.Matches) == 0 {
		return nil, platformprovider.NewError(platformprovider.ErrorContractMismatch, ProviderID, "response has no case results", nil)
	}

	// One case per query, so the first key is ours whatever label the provider chose.
	var matches []json.RawMessage
	if m, ok := out.Matches[sc.Name]; ok {
		matches = m
	} else {
		for _, m := range out.Matches {
			matches = m
			break
		}
	}
	return &sanctions.MatchResult{Matched: len(matches) > 0, MetaData: json.RawMessage(data)}, nil
}

// record feeds the breaker. Only failures that say the provider is unhealthy count.
func (c *Client) record(err error) {
	if c.breaker == nil {
		return
	}
	if err == nil {
		c.breaker.RecordSuccess()
		return
	}
	switch platformprovider.GetCategory(err) {
	case platformprovider.ErrorTimeout, platformprovider.ErrorProviderOutage, platformprovider.ErrorRateLimited:
		c.breaker.RecordFailure()
	}
}
