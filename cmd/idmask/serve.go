package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"idmask/internal/attestation"
	"idmask/internal/audit"
	"idmask/internal/correlation"
	correlationhandler "idmask/internal/correlation/handler"
	"idmask/internal/passkeys"
	passkeyshandler "idmask/internal/passkeys/handler"
	"idmask/internal/platform/config"
	"idmask/internal/platform/httpserver"
	"idmask/internal/platform/kafka"
	"idmask/internal/platform/logger"
	"idmask/internal/platform/metrics"
	"idmask/internal/platform/postgres"
	platformredis "idmask/internal/platform/redis"
	"idmask/internal/ratelimit"
	sanctionshandler "idmask/internal/sanctions/handler"
	"idmask/internal/sanctions/ofac"
	sanctionsservice "idmask/internal/sanctions/service"
	"idmask/internal/sessionstore"
	storemetrics "idmask/internal/sessionstore/metrics"
	"idmask/internal/smartid"
	smartidhandler "idmask/internal/smartid/handler"
	smartidmetrics "idmask/internal/smartid/metrics"
	"idmask/internal/smartid/provider"
	smartidservice "idmask/internal/smartid/service"
	httptransport "idmask/internal/transport/http"
	"idmask/internal/uniqueness"
	uniquenesshandler "idmask/internal/uniqueness/handler"
	"idmask/pkg/platform/circuit"
)

const (
	auditBuffer       = 1024
	rateLimitSweepInt = time.Minute
)

func newServeCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.New(cfg.Log.Level, cfg.Log.Format))
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	return cmd
}

// app holds the long-lived resources that need closing on shutdown.
type app struct {
	redis  *goredis.Client
	pool   *pgxpool.Pool
	kafka  *kgo.Client
	audit  *audit.Publisher
	logger *slog.Logger
}

func (a *app) close() {
	if a.audit != nil {
		a.audit.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a := &app{logger: log}
	defer a.close()

	signer, err := attestation.NewSigner(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	trusted := cfg.TrustedKey
	if trusted == "" {
		trusted = signer.PublicKey()
	}
	verifier, err := attestation.NewVerifier(trusted)
	if err != nil {
		return fmt.Errorf("load trusted key: %w", err)
	}
	certs, err := loadTrustAnchors(cfg.SmartID.TrustAnchors)
	if err != nil {
		return err
	}

	if cfg.Store.Driver == config.DriverRedis {
		if a.redis, err = platformredis.New(ctx, cfg.Redis); err != nil {
			return err
		}
	}
	if cfg.Passkeys.Driver == config.DriverPostgres {
		if a.pool, err = postgres.NewPool(ctx, cfg.Database); err != nil {
			return err
		}
	}
	sink, err := a.auditSink(ctx, cfg)
	if err != nil {
		return err
	}
	a.audit = audit.NewPublisher(sink, audit.WithAsyncBuffer(auditBuffer), audit.WithLogger(log))

	identityLimits := cfg.Store.Identity.Resolve(cfg.Store)
	ownershipLimits := cfg.Store.Ownership.Resolve(cfg.Store)
	challengeLimits := cfg.Store.PasskeyChallenge.Resolve(cfg.Store)
	identityStore := newSessionStore[smartid.Session](cfg, a.redis, sessionstore.NamespaceIdentity, identityLimits)
	ownershipStore := newSessionStore[json.RawMessage](cfg, a.redis, sessionstore.NamespaceOwnership, ownershipLimits)
	challengeStore := newSessionStore[json.RawMessage](cfg, a.redis, sessionstore.NamespacePasskeyChallenge, challengeLimits)

	passkeyStore, err := a.passkeyStore(ctx)
	if err != nil {
		return err
	}

	var rp provider.RelyingPartySource = provider.StaticRelyingParty(provider.DemoRelyingParty)
	if cfg.SmartID.ConfigURL != "" {
		rp = provider.NewConfigResolver(cfg.SmartID.ConfigURL, cfg.SmartID.ProdUUID, cfg.SmartID.ConfigCacheTTL, log)
	}
	smartIDService := smartidservice.New(
		provider.New(rp, cfg.SmartID.PollTimeout, cfg.SmartID.HTTPTimeout),
		identityStore,
		signer,
		certs,
		smartidservice.WithAudit(a.audit),
		smartidservice.WithLogger(log),
		smartidservice.WithMetrics(smartidmetrics.New()),
	)

	uniquenessService, err := uniqueness.NewService(verifier, signer, cfg.UniqueHumanSalt, a.audit, log)
	if err != nil {
		return err
	}
	matcher := ofac.New(cfg.OFAC.URL, cfg.OFAC.APIKey, cfg.OFAC.Timeout,
		ofac.WithBreaker(circuit.New(ofac.ProviderID, circuit.WithSuccessThreshold(1))))
	sanctionsService := sanctionsservice.New(verifier, signer, matcher, a.audit, log)
	ownership := correlation.NewService(sessionstore.NamespaceOwnership, ownershipStore, correlation.NumericID, a.audit, log)
	challenges := correlation.NewService(sessionstore.NamespacePasskeyChallenge, challengeStore, correlation.Base36ID, a.audit, log)

	buckets := ratelimit.NewInMemoryBucketStore()
	initiateLimit := ratelimit.New(buckets, "smartid_initiate", cfg.RateLimit.InitiatePerMinute, time.Minute, log)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Logger:         log,
		Metrics:        metrics.New(),
		RequestTimeout: cfg.RequestTimeout,
		Handlers: []httptransport.Registrar{
			smartidhandler.New(smartIDService, log, initiateLimit.Handler),
			sanctionshandler.New(sanctionsService, log),
			uniquenesshandler.New(uniquenessService, log),
			correlationhandler.New(ownership, challenges, log),
			passkeyshandler.New(passkeys.NewService(passkeyStore, a.audit, log), log),
		},
	})

	storeMetrics := storemetrics.New()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, httpserver.New(cfg.Addr, router), log)
	})
	for _, sw := range []*sessionstore.Sweeper{
		sessionstore.NewSweeper(sessionstore.NamespaceIdentity, identityStore, identityLimits.SweepInterval, log, storeMetrics),
		sessionstore.NewSweeper(sessionstore.NamespaceOwnership, ownershipStore, ownershipLimits.SweepInterval, log, storeMetrics),
		sessionstore.NewSweeper(sessionstore.NamespacePasskeyChallenge, challengeStore, challengeLimits.SweepInterval, log, storeMetrics),
	} {
		g.Go(func() error { return sw.Run(ctx) })
	}
	g.Go(func() error { return sweepBuckets(ctx, buckets, log) })

	log.Info("idmask started",
		"addr", cfg.Addr,
		"store_driver", cfg.Store.Driver,
		"passkeys_driver", cfg.Passkeys.Driver,
		"kafka_audit", a.kafka != nil,
	)
	return g.Wait()
}

func newSessionStore[V any](cfg *config.Config, rc *goredis.Client, ns sessionstore.Namespace, limits config.StoreLimits) sessionstore.Store[V] {
	if rc != nil {
		return sessionstore.NewRedisStore[V](rc, cfg.Store.KeyPrefix, ns, limits.MaxSize)
	}
	return sessionstore.NewInMemoryStore[V](ns, limits.MaxSize)
}

func (a *app) passkeyStore(ctx context.Context) (passkeys.Store, error) {
	if a.pool == nil {
		return passkeys.NewInMemoryStore(), nil
	}
	store := passkeys.NewPostgresStore(a.pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) auditSink(ctx context.Context, cfg *config.Config) (audit.Sink, error) {
	logSink := audit.NewLogSink(a.logger)
	if len(cfg.Kafka.Brokers) == 0 {
		return logSink, nil
	}
	client, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 1, 1); err != nil {
		client.Close()
		return nil, err
	}
	a.kafka = client
	return audit.MultiSink{logSink, audit.NewKafkaSink(client, cfg.Kafka.AuditTopic)}, nil
}

func loadTrustAnchors(path string) (*smartid.CertificateVerifier, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust anchors: %w", err)
	}
	certs, err := smartid.NewCertificateVerifier(pem)
	if err != nil {
		return nil, fmt.Errorf("load trust anchors: %w", err)
	}
	return certs, nil
}

func sweepBuckets(ctx context.Context, store *ratelimit.InMemoryBucketStore, log *slog.Logger) error {
	ticker := time.NewTicker(rateLimitSweepInt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, _ := store.Sweep(ctx); n > 0 {
				log.Debug("rate limit buckets swept", "removed", n)
			}
		}
	}
}
