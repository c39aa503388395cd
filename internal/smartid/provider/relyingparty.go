package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RelyingParty identifies this service to the provider.
type RelyingParty struct {
	UUID    string
	Name    string
	BaseURL string
}

// DemoRelyingParty is the provider's public test environment.
var DemoRelyingParty = RelyingParty{
	UUID:    "00000000-0000-0000-0000-000000000000",
	Name:    "DEMO",
	BaseURL: "https://sid.demo.sk.ee/smart-id-rp/v2/",
}

// ProdRelyingParty returns the production relying party for uuid.
func ProdRelyingParty(uuid string) RelyingParty {
	return RelyingParty{
		UUID:    uuid,
		Name:    "id-mask",
		BaseURL: "https://rp-api.smart-id.com/v2/",
	}
}

// RelyingPartySource resolves the relying party for the next provider call.
type RelyingPartySource interface {
	Resolve(ctx context.Context) RelyingParty
}

// StaticRelyingParty always resolves to itself.
type StaticRelyingParty RelyingParty

func (s StaticRelyingParty) Resolve(context.Context) RelyingParty {
	return RelyingParty(s)
}

const relyingPartyCacheKey = "relying-party"

type remoteSwitch struct {
	Prod bool `json:"prod"`
}

// ConfigResolver reads a remote {"prod": bool} switch and picks the demo or
// production relying party. Any failure to read the switch selects demo.
type ConfigResolver struct {
	configURL string
	prod      RelyingParty
	demo      RelyingParty
	client    *http.Client
	cache     *gocache.Cache
	logger    *slog.Logger
}

// ConfigResolverOption configures a ConfigResolver.
type ConfigResolverOption func(*ConfigResolver)

// WithDemoRelyingParty overrides the demo relying party.
func WithDemoRelyingParty(rp RelyingParty) ConfigResolverOption {
	return func(r *ConfigResolver) { r.demo = rp }
}

// WithProdRelyingParty overrides the production relying party.
func WithProdRelyingParty(rp RelyingParty) ConfigResolverOption {
	return func(r *ConfigResolver) { r.prod = rp }
}

// WithHTTPClient overrides the client used to read the switch.
func WithHTTPClient(c *http.Client) ConfigResolverOption {
	return func(r *ConfigResolver) { r.client = c }
}

// NewConfigResolver creates a resolver caching its decision for ttl.
func NewConfigResolver(configURL, prodUUID string, ttl time.Duration, logger *slog.Logger, opts ...ConfigResolverOption) *ConfigResolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	r := &ConfigResolver{
		configURL: configURL,
		prod:      ProdRelyingParty(prodUUID),
		demo:      DemoRelyingParty,
		client:    &http.Client{Timeout: 5 * time.Second},
		cache:     gocache.New(ttl, 2*ttl),
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve returns the cached relying party, refreshing it when stale.
func (r *ConfigResolver) Resolve(ctx context.Context) RelyingParty {
	if v, ok := r.cache.Get(relyingPartyCacheKey); ok {
		return v.(RelyingParty)
	}
	rp := r.fetch(ctx)
	r.cache.SetDefault(relyingPartyCacheKey, rp)
	return rp
}

func (r *ConfigResolver) fetch(ctx context.Context) RelyingParty {
	if r.configURL == "" {
		return r.demo
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.configURL, nil)
	if err != nil {
		r.logger.WarnContext(ctx, "relying party switch unavailable, using demo", "error", err)
		return r.demo
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.WarnContext(ctx, "relying party switch unavailable, using demo", "error", err)
		return r.demo
	}
	defer resp.Body.Close()

	var sw remoteSwitch
	if resp.StatusCode != http.StatusOK {
		r.logger.WarnContext(ctx, "relying party switch unavailable, using demo", "status", resp.StatusCode)
		return r.demo
	}
	if err := json.NewDecoder(resp.Body).Decode(&sw); err != nil {
		r.logger.WarnContext(ctx, "relying party switch unreadable, using demo", "error", err)
		return r.demo
	}
	if sw.Prod {
		return r.prod
	}
	return r.demo
}
