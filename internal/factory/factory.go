package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/client"
	"phone-auth-service/internal/config"
	"phone-auth-service/internal/events"
	"phone-auth-service/internal/handler"
	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/ratelimit"
	redisrepo "phone-auth-service/internal/repository/redis"
	"phone-auth-service/internal/repository/scylla"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/sms"
	"phone-auth-service/internal/store"
	"phone-auth-service/internal/token"
	"phone-auth-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient   *client.RedisClient
	scyllaClient  *scylla.ScyllaClient
	kafkaProducer *client.KafkaProducer

	// Managers
	hasher           *hashing.Hasher
	bucketingManager *bucketing.BucketingManager

	// Repositories and caches
	userRepository      scylla.UserRepository
	challengeRepository scylla.ChallengeRepository
	sessionCache        *redisrepo.SessionCache

	// Domain components
	counterStore   store.CounterStore
	limiter        *ratelimit.Limiter
	smsSender      sms.Sender
	eventPublisher events.Publisher
	tokenIssuer    *token.Issuer
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka is optional; without it SMS falls back to the console transport
	// and security events are dropped.
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing and bucketing managers
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher()
	f.bucketingManager = bucketing.NewBucketingManager(bucketing.DefaultUserBuckets)

	util.Info("Managers initialized successfully",
		util.Int("user_buckets", f.bucketingManager.UserBuckets()),
	)
}

// ==============================
// Repositories and caches
// ==============================

func (f *Factory) UserRepository() scylla.UserRepository {
	if f.userRepository == nil {
		f.userRepository = scylla.NewUserRepository(
			f.scyllaClient,
			f.bucketingManager,
			util.Get(),
		)
	}
	return f.userRepository
}

func (f *Factory) ChallengeRepository() scylla.ChallengeRepository {
	if f.challengeRepository == nil {
		f.challengeRepository = scylla.NewChallengeRepository(f.scyllaClient, util.Get())
	}
	return f.challengeRepository
}

func (f *Factory) SessionCache() *redisrepo.SessionCache {
	if f.sessionCache == nil && f.redisClient != nil {
		f.sessionCache = redisrepo.NewSessionCache(f.redisClient)
	}
	return f.sessionCache
}

// ==============================
// Domain components
// ==============================

// CounterStore returns the shared counter store backing the rate limiter.
// Redis when available, an in-process store otherwise.
func (f *Factory) CounterStore() store.CounterStore {
	if f.counterStore == nil {
		if f.redisClient != nil {
			f.counterStore = store.NewRedisCounterStore(f.redisClient)
		} else {
			util.Warn("Redis unavailable, rate limiting with in-process counter store")
			f.counterStore = store.NewMemoryCounterStore()
		}
	}
	return f.counterStore
}

func (f *Factory) RateLimiter() *ratelimit.Limiter {
	if f.limiter == nil {
		f.limiter = ratelimit.New(f.CounterStore(), f.config.RateLimit)
	}
	return f.limiter
}

func (f *Factory) SMSSender() sms.Sender {
	if f.smsSender == nil {
		if f.kafkaProducer != nil {
			f.smsSender = sms.NewKafkaSender(f.kafkaProducer, f.config.Kafka.SMSTopic)
		} else {
			f.smsSender = sms.NewConsoleSender()
		}
	}
	return f.smsSender
}

func (f *Factory) EventPublisher() events.Publisher {
	if f.eventPublisher == nil {
		if f.kafkaProducer != nil {
			f.eventPublisher = events.NewKafkaPublisher(f.kafkaProducer, f.config.Kafka.EventsTopic)
		} else {
			f.eventPublisher = events.NopPublisher{}
		}
	}
	return f.eventPublisher
}

func (f *Factory) TokenIssuer() *token.Issuer {
	if f.tokenIssuer == nil {
		f.tokenIssuer = token.NewIssuer(f.config.Auth, f.SessionCache())
	}
	return f.tokenIssuer
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.UserRepository(),
			f.ChallengeRepository(),
			f.hasher,
			f.SMSSender(),
			f.TokenIssuer(),
			f.EventPublisher(),
			f.config,
			util.Get(),
		)
	}
	return f.serviceFactory
}

func (f *Factory) AuthHandler() *handler.AuthHandler {
	return handler.NewAuthHandler(f.ServiceFactory().AuthService(), util.Get())
}

func (f *Factory) RateLimitMiddleware() *handler.RateLimitMiddleware {
	return handler.NewRateLimitMiddleware(f.RateLimiter(), f.EventPublisher(), util.Get())
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
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

		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}
