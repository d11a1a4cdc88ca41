package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"rating-service/internal/archive"
	"rating-service/internal/bucketing"
	"rating-service/internal/client"
	"rating-service/internal/config"
	"rating-service/internal/events"
	"rating-service/internal/fingerprint"
	"rating-service/internal/ratelimit"
	"rating-service/internal/repository"
	esrepo "rating-service/internal/repository/elasticsearch"
	"rating-service/internal/repository/memory"
	redisrepo "rating-service/internal/repository/redis"
	"rating-service/internal/repository/scylla"
	"rating-service/internal/secrets"
	"rating-service/internal/service"
	"rating-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	kafkaConsumer    *client.KafkaConsumer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	kmsClient        *kms.Client

	// Managers
	bucketingManager *bucketing.BucketingManager
	secretsManager   *secrets.SecretsManager
	generator        *fingerprint.Generator

	// Repositories
	ledgerStore     ratelimit.Store
	submissionStore repository.SubmissionStore
	commentStore    repository.CommentStore
	commentIndex    *esrepo.CommentIndex
	archiveStore    *archive.Store
	publisher       *events.Publisher

	ledger         *ratelimit.Ledger
	sweeper        *ratelimit.Sweeper
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
}

// NewFactory loads the configuration and initializes all application
// dependencies. In production any unreachable backend is fatal; elsewhere
// the memory stores stand in for a missing ledger or submission store.
func NewFactory(ctx context.Context) (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{config: cfg}

	if err := factory.initializeClients(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(ctx); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	factory.initializeRepositories(ctx)

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("ledger_backend", factory.ledgerStore.Name()),
		util.String("submission_store", cfg.SubmissionStore),
		util.Bool("kafka_enabled", factory.publisher != nil),
		util.Bool("search_enabled", factory.commentIndex != nil),
		util.Bool("trends_enabled", factory.archiveStore != nil),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

func (f *Factory) needsScylla() bool {
	return f.config.RateLimit.Backend == config.BackendScylla || f.config.SubmissionStore == config.BackendScylla
}

// initializeClients initializes the configured external service clients
// with health checks
func (f *Factory) initializeClients(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if f.config.RateLimit.Backend == config.BackendRedis {
		if c, err := client.NewRedisClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if f.needsScylla() {
		if c, err := scylla.NewScyllaClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = c
			if err := c.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			} else {
				util.Info("ScyllaDB client initialized and healthy")
			}
		}
	}

	// Kafka is optional in every environment
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without events", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if c, err := client.NewElasticsearchClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
			if err := c.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
			if err := c.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	// The archiver consumes what the producer writes; both need the brokers.
	if f.kafkaProducer != nil && f.clickhouseClient != nil {
		if consumer, err := client.NewKafkaConsumer(f.config, f.config.Kafka.RatingsTopic, f.config.Kafka.ArchiveGroup); err != nil {
			util.Warn("Kafka consumer initialization failed - archive disabled", util.ErrorField(err))
		} else {
			f.kafkaConsumer = consumer
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers resolves the fingerprint pepper, through KMS when
// enabled, and builds the bucketing manager
func (f *Factory) initializeManagers(ctx context.Context) error {
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	var decrypter secrets.Decrypter
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		f.kmsClient = kms.NewFromConfig(awsCfg)
		decrypter = f.kmsClient
	}

	f.secretsManager = secrets.NewSecretsManager(f.config, decrypter)
	pepper, err := f.secretsManager.FingerprintPepper(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve fingerprint pepper: %w", err)
	}
	f.generator = fingerprint.NewGenerator(pepper)

	util.Info("Managers initialized successfully",
		util.Int("ledger_buckets", f.bucketingManager.GetLedgerBuckets()),
		util.Bool("pepper_from_kms", f.config.KMS.Enabled),
	)
	return nil
}

// initializeRepositories picks the store implementations. Optional
// components whose client is missing stay nil and their features report
// unavailable.
func (f *Factory) initializeRepositories(ctx context.Context) {
	switch {
	case f.config.RateLimit.Backend == config.BackendRedis && f.redisClient != nil:
		f.ledgerStore = redisrepo.NewRateLimitCache(f.redisClient)
	case f.config.RateLimit.Backend == config.BackendScylla && f.scyllaClient != nil:
		f.ledgerStore = scylla.NewRateLimitRepository(f.scyllaClient, f.bucketingManager)
	default:
		if f.config.RateLimit.Backend != config.BackendMemory {
			util.Warn("Falling back to in-memory rate limit ledger",
				util.String("configured_backend", f.config.RateLimit.Backend))
		}
		f.ledgerStore = memory.NewLedgerStore()
	}

	if f.config.SubmissionStore == config.BackendScylla && f.scyllaClient != nil {
		f.submissionStore = scylla.NewSubmissionRepository(f.scyllaClient)
		f.commentStore = scylla.NewCommentRepository(f.scyllaClient)
	} else {
		if f.config.SubmissionStore != config.BackendMemory {
			util.Warn("Falling back to in-memory submission store",
				util.String("configured_store", f.config.SubmissionStore))
		}
		mem := memory.NewSubmissionStore()
		f.submissionStore = mem
		f.commentStore = mem
	}

	if f.esClient != nil {
		idx := esrepo.NewCommentIndex(f.esClient, f.config.Elasticsearch.CommentsIndex)
		if err := idx.EnsureIndex(ctx); err != nil {
			util.Warn("Comment index unavailable - search disabled", util.ErrorField(err))
		} else {
			f.commentIndex = idx
		}
	}

	if f.clickhouseClient != nil {
		store := archive.NewStore(f.clickhouseClient)
		if err := store.EnsureSchema(ctx); err != nil {
			util.Warn("Rating archive unavailable - trends disabled", util.ErrorField(err))
		} else {
			f.archiveStore = store
		}
	}

	if f.kafkaProducer != nil {
		f.publisher = events.NewPublisher(f.kafkaProducer, f.config.Kafka.RatingsTopic, events.DefaultBreakerConfig())
	}

	policies := ratelimit.PoliciesFromConfig(f.config.RateLimit)
	f.ledger = ratelimit.NewLedger(f.ledgerStore, policies, f.config.StoreTimeout)
	f.sweeper = ratelimit.NewSweeper(f.ledgerStore, f.config.Sweeper.RetentionMargin)
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		deps := service.Dependencies{
			Generator:    f.generator,
			Ledger:       f.ledger,
			Submissions:  f.submissionStore,
			Comments:     f.commentStore,
			StoreTimeout: f.config.StoreTimeout,
		}
		// optional collaborators are only set when present so the service
		// sees a nil interface rather than a typed nil
		if f.commentIndex != nil {
			deps.CommentIndex = f.commentIndex
		}
		if f.publisher != nil {
			deps.Publisher = f.publisher
		}
		if f.archiveStore != nil {
			deps.Trends = f.archiveStore
		}
		f.serviceFactory = service.NewServiceFactory(deps)
	}
	return f.serviceFactory
}

// Archiver returns the Kafka to ClickHouse archiver, or nil when either
// side is not configured.
func (f *Factory) Archiver() *archive.Archiver {
	if f.kafkaConsumer == nil || f.archiveStore == nil {
		return nil
	}
	return archive.NewArchiver(f.kafkaConsumer, f.archiveStore)
}

// ==============================
// Health Checks
// ==============================

// HealthCheck reports the first failure of a backend the core path depends
// on. Optional backends are logged but do not make the service unhealthy.
func (f *Factory) HealthCheck(ctx context.Context) error {
	healthErrors := f.componentHealth(ctx)
	for name, err := range healthErrors {
		switch name {
		case "kafka", "event_publisher", "elasticsearch", "clickhouse":
			util.Warn("Optional backend unhealthy", util.String("component", name), util.ErrorField(err))
		default:
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (f *Factory) componentHealth(ctx context.Context) map[string]error {
	checks := make(map[string]func(context.Context) error)
	if f.redisClient != nil {
		checks["redis"] = f.redisClient.HealthCheck
	}
	if f.scyllaClient != nil {
		checks["scylla"] = f.scyllaClient.HealthCheck
	}
	if f.submissionStore != nil {
		checks["submission_store"] = f.submissionStore.HealthCheck
	}
	if f.esClient != nil {
		checks["elasticsearch"] = f.esClient.HealthCheck
	}
	if f.clickhouseClient != nil {
		checks["clickhouse"] = f.clickhouseClient.HealthCheck
	}
	if f.kafkaProducer != nil {
		checks["kafka"] = f.kafkaProducer.HealthCheck
	}
	if f.publisher != nil {
		checks["event_publisher"] = func(context.Context) error {
			if state := f.publisher.State(); state == gobreaker.StateOpen.String() {
				return fmt.Errorf("circuit breaker %s", state)
			}
			return nil
		}
	}

	var (
		mu           sync.Mutex
		healthErrors = make(map[string]error)
		g            errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			if err := check(ctx); err != nil {
				mu.Lock()
				healthErrors[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.kafkaConsumer != nil {
			if err := f.kafkaConsumer.Close(); err != nil {
				util.Error("Failed to close Kafka consumer", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Sweeper() *ratelimit.Sweeper {
	return f.sweeper
}
