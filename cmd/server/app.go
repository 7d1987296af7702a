package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"carepilot/internal/access"
	"carepilot/internal/assistant"
	"carepilot/internal/assistant/provider"
	"carepilot/internal/dispatch"
	jwttoken "carepilot/internal/jwt_token"
	"carepilot/internal/notify"
	"carepilot/internal/platform/config"
	"carepilot/internal/platform/kafka"
	"carepilot/internal/platform/metrics"
	"carepilot/internal/platform/postgres"
	redisclient "carepilot/internal/platform/redis"
	rlmetrics "carepilot/internal/ratelimit/metrics"
	rlmiddleware "carepilot/internal/ratelimit/middleware"
	"carepilot/internal/ratelimit/store/bucket"
	"carepilot/internal/records"
	recordsmemory "carepilot/internal/records/store/memory"
	recordspostgres "carepilot/internal/records/store/postgres"
	"carepilot/internal/resolver"
	httptransport "carepilot/internal/transport/http"
	audit "carepilot/pkg/platform/audit"
	"carepilot/pkg/platform/audit/publishers/compliance"
	"carepilot/pkg/platform/audit/publishers/ops"
	"carepilot/pkg/platform/audit/publishers/security"
	auditmemory "carepilot/pkg/platform/audit/store/memory"
	auditpostgres "carepilot/pkg/platform/audit/store/postgres"
	"carepilot/pkg/platform/audit/worker"
)

type recordsBackend interface {
	records.Store
	records.TxRunner
}

type app struct {
	router  http.Handler
	relay   *worker.Worker
	storage string
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	a := &app{storage: "memory"}
	var health []httptransport.HealthCheck

	var (
		store      records.Store
		txRunner   records.TxRunner
		auditStore audit.Store
		notifier   notify.Notifier = notify.NewLogNotifier(log)
		db         *sql.DB
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		store = recordspostgres.New(db)
		txRunner = postgres.NewTxRunner(db)
		auditStore = auditpostgres.New(db)
		notifier = notify.NewPostgresNotifier(db)
		health = append(health, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
		a.storage = "postgres"
	} else {
		var mem recordsBackend = recordsmemory.New()
		store, txRunner = mem, mem
		auditStore = auditmemory.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, records and audit trail are kept in memory")
	}

	securityPublisher := security.New(auditStore, security.WithLogger(log))
	a.closers = append(a.closers, func() { _ = securityPublisher.Close() })
	compliancePublisher := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	a.closers = append(a.closers, func() { _ = compliancePublisher.Close() })
	opsPublisher := ops.New(auditStore, ops.WithLogger(log), ops.WithMetrics(ops.NewMetrics()))

	policy, err := access.LoadPolicy(cfg.MinNecessaryPolicyFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	accessService := access.New(store, compliancePublisher,
		access.WithLogger(log),
		access.WithSecuritySink(securityPublisher),
		access.WithPolicy(policy),
	)

	dispatcher, err := dispatch.New(store, txRunner, resolver.New(store, resolver.WithLogger(log)),
		accessService, compliancePublisher, opsPublisher,
		dispatch.WithLogger(log),
		dispatch.WithMetrics(dispatch.NewMetrics()),
		dispatch.WithNotifier(notifier),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	rateLimit, err := buildRateLimit(ctx, cfg, log, securityPublisher, a, &health)
	if err != nil {
		a.Close()
		return nil, err
	}

	if db != nil && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, producer.Close)
		if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure audit topic, relay will retry publishing", "error", err)
		}
		a.relay = worker.NewWorker(db, producer, worker.WithLogger(log))
		health = append(health, httptransport.HealthCheck{Name: "kafka", Check: producer.Ping})
	}

	routes := httptransport.RouterConfig{
		Logger:    log,
		Observer:  metrics.New(),
		Validator: jwttoken.New(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, jwttoken.WithLeeway(cfg.JWTLeeway)),
		RateLimit: rateLimit,
		Actions:   httptransport.NewActionsHandler(dispatcher, log),
		Health:    health,
	}

	llm, err := provider.New(provider.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	}, provider.WithLogger(log), provider.WithMetrics(provider.NewMetrics()))
	if err != nil {
		log.Warn("assistant disabled", "error", err)
	} else {
		orchestrator, err := assistant.New(llm, dispatcher,
			assistant.WithLogger(log),
			assistant.WithMetrics(assistant.NewMetrics()),
			assistant.WithTimeout(cfg.LLM.Timeout),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("build assistant: %w", err)
		}
		routes.Assistant = httptransport.NewAssistantHandler(orchestrator, log)
	}

	a.router = httptransport.NewRouter(routes)
	return a, nil
}

// buildRateLimit uses Redis when configured and the in-process counter
// otherwise. The in-process counter doubles as the fallback while Redis is down.
func buildRateLimit(ctx context.Context, cfg config.Server, log *slog.Logger, sec rlmiddleware.SecurityEmitter, a *app, health *[]httptransport.HealthCheck) (func(http.Handler) http.Handler, error) {
	local := bucket.NewInMemoryBucketStore()
	var counter rlmiddleware.Counter = local
	opts := []rlmiddleware.Option{
		rlmiddleware.WithLogger(log),
		rlmiddleware.WithMetrics(rlmetrics.New()),
		rlmiddleware.WithSecurityEmitter(sec),
		rlmiddleware.WithDisabled(cfg.RateLimit.Disabled),
	}

	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.closers = append(a.closers, func() { _ = client.Close() })
		counter = bucket.NewRedisBucketStore(client.Client)
		opts = append(opts, rlmiddleware.WithFallback(local))
		*health = append(*health, httptransport.HealthCheck{Name: "redis", Check: client.Health})
	}

	m, err := rlmiddleware.New(counter, cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Window, opts...)
	if err != nil {
		return nil, err
	}
	return m.Limit, nil
}
