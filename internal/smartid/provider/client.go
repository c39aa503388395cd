// Package provider is the HTTP client for the Smart-ID relying party API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	platformprovider "idmask/internal/platform/provider"
)

// ProviderID names this provider in errors and spans.
const ProviderID = "smartid"

const maxResponseBytes = 1 << 20

// Client calls the relying party API. Every call is a single attempt.
type Client struct {
	httpClient  *http.Client
	rp          RelyingPartySource
	pollTimeout time.Duration
	tracer      trace.Tracer
}

// New creates a client. httpTimeout must exceed pollTimeout so the long poll
// ends on the provider side first.
func New(rp RelyingPartySource, pollTimeout, httpTimeout time.Duration) *Client {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	if httpTimeout < pollTimeout {
		httpTimeout = pollTimeout + 5*time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: httpTimeout},
		rp:          rp,
		pollTimeout: pollTimeout,
		tracer:      otel.Tracer("idmask/smartid/provider"),
	}
}

// Initiate starts an authentication session and returns the provider session id.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (string, error) {
	ctx, span := c.tracer.Start(ctx, "smartid.initiate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	rp := c.rp.Resolve(ctx)
	span.SetAttributes(attribute.String("smartid.relying_party", rp.Name))

	body := authenticationRequest{
		RelyingPartyUUID: rp.UUID,
		RelyingPartyName: rp.Name,
		CertificateLevel: CertificateLevelQualified,
		Hash:             req.Hash,
		HashType:         HashTypeSHA512,
		AllowedInteractionsOrder: []interaction{
			{Type: InteractionDisplayPIN, DisplayText60: req.DisplayText},
		},
	}
	endpoint := joinURL(rp.BaseURL, "authentication/etsi/"+url.PathEscape(req.SemanticsIdentifier()))

	var out authenticationResponse
	if err := c.do(ctx, http.MethodPost, endpoint, body, &out); err != nil {
		recordError(span, err)
		return "", err
	}
	if out.SessionID == "" {
		err := platformprovider.NewError(platformprovider.ErrorContractMismatch, ProviderID, "response missing sessionID", nil)
		recordError(span, err)
		return "", err
	}
	return out.SessionID, nil
}

// Poll long-polls the session status once.
func (c *Client) Poll(ctx context.Context, sessionID string) (*SessionStatus, error) {
	ctx, span := c.tracer.Start(ctx, "smartid.poll", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	rp := c.rp.Resolve(ctx)
	endpoint := fmt.Sprintf("%s?timeoutMs=%d",
		joinURL(rp.BaseURL, "session/"+url.PathEscape(sessionID)),
		c.pollTimeout.Milliseconds(),
	)

	var status SessionStatus
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("smartid.session_state", status.State))
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return platformprovider.NewError(platformprovider.ErrorInternal, ProviderID, "encode request", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return platformprovider.NewError(platformprovider.ErrorInternal, ProviderID, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return platformprovider.FromTransport(ProviderID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return platformprovider.FromTransport(ProviderID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return platformprovider.FromStatus(ProviderID, resp.StatusCode, platformprovider.Snippet(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return platformprovider.NewError(platformprovider.ErrorBadData, ProviderID, "decode response", err)
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(platformprovider.GetCategory(err)))
}
