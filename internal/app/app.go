// Package app wires every domain service together against a set of stores
// and external collaborators, the rule-engine's counterpart to the
// teacher's internal/app/application.go: a nil-coalescing Stores bundle, a
// functional-option Application builder, and a system.Manager-backed
// lifecycle for whatever background runners get configured.
package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/epam/rule-engine/internal/objectstore"
	"github.com/epam/rule-engine/internal/platform/config"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/platform/system"
	"github.com/epam/rule-engine/internal/services/engineclient"
	"github.com/epam/rule-engine/internal/services/eventrouter"
	"github.com/epam/rule-engine/internal/services/licenseclient"
	"github.com/epam/rule-engine/internal/services/orchestrator"
	"github.com/epam/rule-engine/internal/services/rulesourcesyncer"
	"github.com/epam/rule-engine/internal/services/scheduler"
	"github.com/epam/rule-engine/internal/services/secretstore"
	"github.com/epam/rule-engine/internal/services/siem"
	"github.com/epam/rule-engine/internal/storage"
	"github.com/epam/rule-engine/internal/storage/memory"
)

// Stores encapsulates every persistence dependency the application wires.
// Nil fields default to an in-memory implementation, letting callers (tests,
// a dev CLI, a single-tenant deployment) supply only the stores they care
// about.
type Stores struct {
	Tenant            storage.TenantStore
	Customer          storage.CustomerStore
	Rule              storage.RuleStore
	RuleSource        storage.RuleSourceStore
	Ruleset           storage.RulesetStore
	License           storage.LicenseStore
	TenantLicenseLink storage.TenantLicenseLinkStore
	Job               storage.JobStore
	BatchResult       storage.BatchResultStore
	ScheduledJob      storage.ScheduledJobStore
	ResourceException storage.ResourceExceptionStore
}

func (s *Stores) applyDefaults(mem *memory.Stores) {
	if s.Tenant == nil {
		s.Tenant = mem.Tenant
	}
	if s.Customer == nil {
		s.Customer = mem.Customer
	}
	if s.Rule == nil {
		s.Rule = mem.Rule
	}
	if s.RuleSource == nil {
		s.RuleSource = mem.RuleSource
	}
	if s.Ruleset == nil {
		s.Ruleset = mem.Ruleset
	}
	if s.License == nil {
		s.License = mem.License
	}
	if s.TenantLicenseLink == nil {
		s.TenantLicenseLink = mem.TenantLicenseLink
	}
	if s.Job == nil {
		s.Job = mem.Job
	}
	if s.BatchResult == nil {
		s.BatchResult = mem.BatchResult
	}
	if s.ScheduledJob == nil {
		s.ScheduledJob = mem.ScheduledJob
	}
	if s.ResourceException == nil {
		s.ResourceException = mem.ResourceException
	}
}

// Option configures the Application builder.
type Option func(*builderConfig)

type builderConfig struct {
	logger *logging.Logger
}

// WithLogger overrides the logger every constructed service shares. A nil
// logger keeps whatever New was already passed.
func WithLogger(logger *logging.Logger) Option {
	return func(b *builderConfig) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Application ties every constructed service together and owns the
// lifecycle of whatever background runners New wired.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Orchestrator     *orchestrator.Orchestrator
	EventRouter      *eventrouter.Router
	Scheduler        *scheduler.Scheduler
	RuleSourceSyncer *rulesourcesyncer.Syncer
	SIEM             *siem.Pusher
	LicenseClient    licenseclient.LicenseClient
	RulesetPublisher licenseclient.RulesetPublisher // nil unless the negotiated LM version is >=3.0
	ObjectStore      objectstore.Store
	Secrets          *secretstore.Store // nil when IntegrationsConfig.SecretsEnabled is false
}

// New constructs a fully wired Application. Every external collaborator
// (worker dispatch, SIEM destination, trigger mirroring, License Manager,
// AWS Secrets Manager) that IntegrationsConfig/LicenseManagerConfig leaves
// unconfigured degrades to a logging no-op rather than failing startup,
// mirroring the teacher's "HTTP-backed implementation when a URL is
// configured, otherwise a logged warning" wiring pattern.
func New(ctx context.Context, cfg *config.Config, stores Stores, log *logging.Logger, opts ...Option) (*Application, error) {
	if log == nil {
		log = logging.NewFromEnv("app")
	}
	b := &builderConfig{logger: log}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	log = b.logger

	stores.applyDefaults(memory.NewStores())
	manager := system.NewManager()

	objStore, err := buildObjectStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("app: object store: %w", err)
	}

	var secrets *secretstore.Store
	if cfg.Integrations.SecretsEnabled {
		secrets, err = secretstore.New(ctx)
		if err != nil {
			log.WithError(err).Warn("secrets manager unavailable; credential release and git-host token resolution disabled")
			secrets = nil
		}
	} else {
		log.Warn("secrets manager disabled; credential release and git-host token resolution will no-op")
	}

	lm, publisher := buildLicenseClient(ctx, cfg, log)

	lookup := licenseclient.StoreLookup{Links: stores.TenantLicenseLink, Licenses: stores.License}

	engine := buildEngine(cfg, log)
	creds := credentialReleaser{secrets: secrets, logger: log}

	orch := orchestrator.New(stores.Tenant, stores.Ruleset, stores.Job, stores.BatchResult, lookup, lm, engine, creds, log)

	mappings, err := eventrouter.LoadMappings(cfg.Integrations.EventRouterMappingsFile)
	if err != nil {
		log.WithError(err).Warn("event router mappings not loaded; inbound vendor events will match nothing")
		mappings = eventrouter.Mappings{}
	}
	router := eventrouter.New(mappings, stores.Tenant, orch, cfg.Integrations.EventRouterSelfAccount, log)

	registrar := buildRegistrar(cfg, log)
	sched := scheduler.New(stores.ScheduledJob, registrar, log)

	var tokenResolver rulesourcesyncer.SecretResolver = noopSecretResolver{logger: log}
	if secrets != nil {
		tokenResolver = secrets
	}
	syncer := rulesourcesyncer.New(
		stores.RuleSource, stores.Rule, tokenResolver,
		rulesourcesyncer.NewTarballPuller(), rulesourcesyncer.NewDispatchingBlameClient(), log,
	)

	pusher := siem.New(buildSIEMDestination(cfg, log), log, siem.WithBatchWorkers(positiveOr(cfg.Runtime.SIEMPushWorkers, 4)))

	return &Application{
		manager:          manager,
		log:              log,
		Orchestrator:     orch,
		EventRouter:      router,
		Scheduler:        sched,
		RuleSourceSyncer: syncer,
		SIEM:             pusher,
		LicenseClient:    lm,
		RulesetPublisher: publisher,
		ObjectStore:      objStore,
		Secrets:          secrets,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(svc system.Service) { a.manager.Register(svc) }

// Start begins every registered background service.
func (a *Application) Start(ctx context.Context) error { return a.manager.Start(ctx) }

// Stop stops every registered background service.
func (a *Application) Stop(ctx context.Context) error { return a.manager.Stop(ctx) }

// Descriptors returns advertised service descriptors for introspection.
func (a *Application) Descriptors() []system.Descriptor { return a.manager.Descriptors() }

func buildObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	if cfg.ObjectStore.Bucket == "" {
		return objectstore.NewMemoryStore(), nil
	}
	return objectstore.NewS3Store(ctx, cfg.ObjectStore, positiveOr(cfg.Runtime.ShardBatchWorkers, 8))
}

func buildLicenseClient(ctx context.Context, cfg *config.Config, log *logging.Logger) (licenseclient.LicenseClient, licenseclient.RulesetPublisher) {
	if cfg.LicenseManager.BaseURL == "" {
		log.Warn("license manager base url not configured; license accounting will no-op and permit all tenants")
		return licenseclient.NewNoopClient(log), nil
	}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}

	lmCfg := licenseclient.Config{
		BaseURL:        cfg.LicenseManager.BaseURL,
		SigningKey:     cfg.LicenseManager.SigningKey,
		TokenTTL:       time.Duration(cfg.LicenseManager.TokenTTLSecs) * time.Second,
		CallTimeout:    time.Duration(cfg.LicenseManager.CallTimeoutSec) * time.Second,
		MaxRetries:     cfg.LicenseManager.MaxRetries,
	}
	client, publisher, err := licenseclient.NewVersionedClient(ctx, lmCfg, redisClient, log)
	if err != nil {
		log.WithError(err).Warn("license manager version negotiation failed; falling back to a no-op client")
		return licenseclient.NewNoopClient(log), nil
	}
	return client, publisher
}

func buildEngine(cfg *config.Config, log *logging.Logger) orchestrator.Engine {
	if cfg.Integrations.EngineSubmitURL == "" {
		log.Warn("engine submit url not configured; jobs will be admitted but never dispatched to a worker runtime")
		return engineclient.NewNoopEngine(log)
	}
	eng, err := engineclient.NewHTTPEngine(engineclient.Config{
		SubmitURL:     cfg.Integrations.EngineSubmitURL,
		JobDefinition: cfg.Integrations.EngineJobDefinition,
		JobQueue:      cfg.Integrations.EngineJobQueue,
	}, log)
	if err != nil {
		log.WithError(err).Warn("engine client misconfigured; falling back to a no-op dispatcher")
		return engineclient.NewNoopEngine(log)
	}
	return eng
}

func buildRegistrar(cfg *config.Config, log *logging.Logger) scheduler.RuleRegistrar {
	if cfg.Integrations.TriggerRegistrarURL == "" {
		log.Warn("trigger registrar url not configured; scheduled jobs will not be mirrored to an external cron system")
		return scheduler.NewNoopRuleRegistrar(log)
	}
	return scheduler.NewHTTPRuleRegistrar(cfg.Integrations.TriggerRegistrarURL)
}

func buildSIEMDestination(cfg *config.Config, log *logging.Logger) siem.Destination {
	if cfg.Integrations.SIEMDestinationURL == "" {
		log.Warn("siem destination url not configured; pushed batches will be dropped")
		return siem.NewNoopDestination(log)
	}
	name := cfg.Integrations.SIEMDestinationName
	if name == "" {
		name = "default"
	}
	return siem.NewHTTPDestination(name, cfg.Integrations.SIEMDestinationURL, cfg.Integrations.SIEMBearerToken)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// credentialReleaser adapts *secretstore.Store to orchestrator.CredentialStore,
// no-op'ing (with a log line) when the secrets manager is disabled rather
// than failing the terminal-status transition that triggers it (§4.1).
type credentialReleaser struct {
	secrets *secretstore.Store
	logger  *logging.Logger
}

func (c credentialReleaser) Release(ctx context.Context, jobID string) error {
	if c.secrets == nil {
		c.logger.WithFields(map[string]interface{}{"job_id": jobID}).Warn("secrets manager disabled; credential release skipped")
		return nil
	}
	return c.secrets.Release(ctx, jobID)
}

// noopSecretResolver stands in for rulesourcesyncer.SecretResolver when the
// secrets manager is disabled; any RuleSource with a non-empty SecretName
// will fail its sync with a clear, logged cause instead of panicking on a
// nil resolver.
type noopSecretResolver struct {
	logger *logging.Logger
}

func (n noopSecretResolver) Resolve(ctx context.Context, secretName string) (string, error) {
	n.logger.WithFields(map[string]interface{}{"secret_name": secretName}).Warn("secrets manager disabled; rule source token resolution will fail")
	return "", fmt.Errorf("app: secrets manager disabled, cannot resolve secret %q", secretName)
}
