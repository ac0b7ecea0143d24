package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/auth-core/internal/core/port"
	"github.com/arklim/auth-core/internal/infra/config"
	"github.com/arklim/auth-core/internal/infra/database"
	kafkainfra "github.com/arklim/auth-core/internal/infra/kafka"
	"github.com/arklim/auth-core/internal/infra/logger"
	redisinfra "github.com/arklim/auth-core/internal/infra/redis"
	"github.com/arklim/auth-core/internal/infra/security"
	"github.com/arklim/auth-core/internal/infra/telemetry"
	postgresrepo "github.com/arklim/auth-core/internal/repository/postgres"
	redisrepo "github.com/arklim/auth-core/internal/repository/redis"
	"github.com/arklim/auth-core/internal/transport/http/routes"
	"github.com/arklim/auth-core/internal/usecase"
)

// Application owns the wired component graph and its lifecycle.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	group    sarama.ConsumerGroup
	consumer *kafkainfra.RevocationConsumer

	auth         *usecase.Authenticator
	registration *usecase.RegistrationService
	sessions     *usecase.SessionRegistry
	revocations  *usecase.RevocationRegistry
}

// New wires every component from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics := telemetry.New()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewFileKeyProvider(cfg.JWT.KeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	jwtManager := security.NewJWTManager(keyProvider, cfg.JWT.Issuer, cfg.JWT.Audience)

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	identities := postgresrepo.NewIdentityRepository(pool)
	cache := redisrepo.NewCache(redisClient.Client(), cfg.Redis.KeyPrefix)
	blacklist := redisrepo.NewBlacklistStore(redisClient.Client(), cfg.Redis.KeyPrefix)
	sessionStore := redisrepo.NewSessionStore(redisClient.Client(), cfg.Redis.KeyPrefix)

	var (
		publisher port.EventPublisher
		producer  *kafkainfra.Producer
		group     sarama.ConsumerGroup
	)
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			publisher = kafkainfra.NewStubPublisher(log)
		} else {
			publisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
		}

		groupCfg := sarama.NewConfig()
		groupCfg.Version = sarama.V3_5_0_0
		groupCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
		group, err = sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, groupCfg)
		if err != nil {
			log.Warn("failed to join consumer group, peers converge via shared store only", zap.Error(err))
			group = nil
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		publisher = kafkainfra.NewStubPublisher(log)
	}

	denylist := security.NewLocalDenylist(cfg.Denylist.MaxEntries)
	revocations := usecase.NewRevocationRegistry(blacklist, denylist, publisher, log, metrics, cfg.Denylist.NegativeTTL)

	sessions := usecase.NewSessionRegistry(sessionStore, publisher, log, metrics, cfg.Sessions.TTL, cfg.Sessions.MaxPerIdentity)

	limiter := usecase.NewRateLimiter(cache, log, metrics, cfg.RateLimit.WindowDuration, map[string]int{
		usecase.OpLogin:    cfg.RateLimit.LoginMaxAttempts,
		usecase.OpRegister: cfg.RateLimit.RegisterMaxAttempts,
		usecase.OpRefresh:  cfg.RateLimit.RefreshMaxAttempts,
	})

	tokens := usecase.NewTokenEngine(jwtManager, cfg.JWT.AccessTokenTTL)

	auth, err := usecase.NewAuthenticator(
		identities, sessions, tokens, revocations, limiter, publisher, log, metrics,
		usecase.LockoutPolicy{Threshold: cfg.Lockout.Threshold, Duration: cfg.Lockout.Duration},
		usecase.BindingPolicy{
			EnforceIP:        cfg.Sessions.EnforceIPBinding,
			EnforceUserAgent: cfg.Sessions.EnforceUABinding,
		},
	)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init authenticator: %w", err)
	}
	auth.WithRefreshGrace(cfg.JWT.RefreshGrace)

	policy := security.NewPasswordPolicy(cfg.Password.MinLength, cfg.Password.MinScore)
	registration := usecase.NewRegistrationService(identities, policy, limiter, publisher, log)

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
	})

	return &Application{
		cfg:          cfg,
		engine:       engine,
		logger:       log,
		pool:         pool,
		redis:        redisClient,
		producer:     producer,
		group:        group,
		consumer:     kafkainfra.NewRevocationConsumer(revocations, log),
		auth:         auth,
		registration: registration,
		sessions:     sessions,
		revocations:  revocations,
	}, nil
}

// Auth exposes the authenticator for embedding callers.
func (a *Application) Auth() *usecase.Authenticator {
	return a.auth
}

// Registration exposes the registration service for embedding callers.
func (a *Application) Registration() *usecase.RegistrationService {
	return a.registration
}

// Run serves the operational endpoints and the background loops until ctx is
// cancelled, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer func() {
		if a.group != nil {
			_ = a.group.Close()
		}
	}()

	go a.sessions.RunSweeper(ctx, a.cfg.Sessions.SweepInterval)
	go a.runDenylistPruner(ctx)

	if a.group != nil {
		topic := kafkainfra.TopicTokenRevoked
		if a.cfg.Kafka.TopicPrefix != "" {
			topic = fmt.Sprintf("%s.%s", a.cfg.Kafka.TopicPrefix, topic)
		}
		go func() {
			if err := kafkainfra.RunConsumerGroup(ctx, a.group, []string{topic}, a.consumer, a.logger); err != nil && ctx.Err() == nil {
				a.logger.Error("revocation consumer stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth core",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *Application) runDenylistPruner(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := a.revocations.Prune(); removed > 0 {
				a.logger.Debug("pruned local denylist", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
