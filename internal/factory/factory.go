package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cashback-service/internal/audit"
	"cashback-service/internal/bucketing"
	"cashback-service/internal/cache"
	"cashback-service/internal/client"
	"cashback-service/internal/config"
	"cashback-service/internal/db"
	"cashback-service/internal/encryption"
	"cashback-service/internal/ephemeral"
	"cashback-service/internal/hashing"
	"cashback-service/internal/identity"
	"cashback-service/internal/mailer"
	"cashback-service/internal/notify"
	"cashback-service/internal/repository"
	"cashback-service/internal/repository/postgres"
	"cashback-service/internal/repository/scylla"
	"cashback-service/internal/service"
	"cashback-service/internal/tls"
	"cashback-service/internal/token"
	"cashback-service/internal/util"
)

const (
	notifyWorkers      = 4
	notifyQueueSize    = 1024
	auditBufferSize    = 4096
	auditBatchSize     = 500
	auditFlushInterval = 2 * time.Second
	janitorInterval    = time.Minute
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	tlsManager *tls.TLSManager

	// Clients
	db               *sqlx.DB
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager
	tokenIssuer       *token.Issuer

	store          ephemeral.Store
	stopJanitor    context.CancelFunc
	mailer         mailer.Mailer
	notifier       notify.Dispatcher
	poolNotifier   *notify.PoolDispatcher
	recorder       audit.Recorder
	chRecorder     *audit.ClickHouseRecorder
	ledger         repository.LedgerRepository
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads config, connects every backend and builds the services.
// Outside production optional backends (Redis, Scylla, Kafka, ClickHouse)
// degrade to in-process stand-ins with a warning.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{
		config: cfg,
		logger: logger,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	if err := factory.initializeClients(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeDelivery()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("redis", factory.redisClient != nil),
		util.Bool("scylla", factory.scyllaClient != nil),
		util.Bool("kafka", factory.kafkaProducer != nil),
		util.Bool("clickhouse", factory.clickhouseClient != nil),
	)

	return factory, nil
}

// initializeClients connects to the backends. Postgres is always required;
// the rest are required in production only.
func (f *Factory) initializeClients() error {
	cfg := f.config

	database, err := db.Open(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	f.db = database
	util.Info("Postgres connection pool ready", util.Int("max_open_conns", cfg.Postgres.MaxOpenConns))

	var initErrors []error

	// Redis
	if cfg.Redis.URL != "" {
		if rc, err := client.NewRedisClient(cfg); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = rc
			f.store = ephemeral.NewRedisStore(rc.Client)
		}
	} else {
		initErrors = append(initErrors, errors.New("redis: REDIS_URL not set"))
	}
	if f.store == nil {
		mem := ephemeral.NewMemoryStore()
		ctx, cancel := context.WithCancel(context.Background())
		go mem.RunJanitor(ctx, janitorInterval)
		f.store, f.stopJanitor = mem, cancel
	}

	// ScyllaDB
	f.ledger = repository.DiscardLedger{}
	if len(cfg.Scylla.Nodes) > 0 {
		if sc, err := scylla.NewScyllaClient(cfg); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = sc
			f.ledger = scylla.NewLedgerRepository(sc, f.bucketingManager)
			util.Info("ScyllaDB wallet ledger enabled")
		}
	} else {
		initErrors = append(initErrors, errors.New("scylla: SCYLLA_NODES not set, wallet journal disabled"))
	}

	// Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		f.kafkaProducer = client.NewKafkaProducer(cfg)
	} else {
		initErrors = append(initErrors, errors.New("kafka: KAFKA_BROKERS not set, notifications stay in-process"))
	}

	// ClickHouse
	f.recorder = audit.LogRecorder{}
	if cfg.Clickhouse.URL != "" {
		if cc, err := client.NewClickHouseClient(cfg); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = cc
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := cc.Exec(ctx, audit.CreateSecurityEventsTable)
			cancel()
			if err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse schema: %w", err))
			} else {
				f.chRecorder = audit.NewClickHouseRecorder(cc, f.bucketingManager, auditBufferSize, auditBatchSize, auditFlushInterval)
				f.recorder = f.chRecorder
			}
		}
	} else {
		initErrors = append(initErrors, errors.New("clickhouse: CLICKHOUSE_URL not set, audit events go to the log"))
	}

	if len(initErrors) > 0 {
		if cfg.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers builds hashing, encryption, bucketing and token signing.
func (f *Factory) initializeManagers() error {
	cfg := f.config

	hasher, err := hashing.NewHasherFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("hasher: %w", err)
	}
	f.hasher = hasher
	f.bucketingManager = bucketing.NewManager(cfg)

	if cfg.Auth.PendingSignupEncryption {
		var kmsClient encryption.KMSAPI
		if cfg.KMS.Enabled {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMS.Region))
			cancel()
			if err != nil {
				return fmt.Errorf("aws config: %w", err)
			}
			kmsClient = kms.NewFromConfig(awsCfg)
		}
		em, err := encryption.NewManager(cfg, kmsClient)
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
		f.encryptionManager = em
	} else {
		util.Warn("Pending signups are stored unencrypted; set PENDING_SIGNUP_ENCRYPTION=true to seal them")
	}

	issuer, err := token.NewIssuerFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	f.tokenIssuer = issuer

	util.Info("Managers initialized successfully",
		util.Bool("encryption_initialized", f.encryptionManager != nil),
		util.Int("user_buckets", f.bucketingManager.UserBuckets()),
	)
	return nil
}

// initializeDelivery picks the mailer and the notification path.
func (f *Factory) initializeDelivery() {
	if f.config.Mail.Host != "" {
		f.mailer = mailer.NewSMTPMailer(f.config)
	} else {
		util.Warn("SMTP_HOST not set, emails are written to the log")
		f.mailer = mailer.LogMailer{}
	}

	if f.kafkaProducer != nil {
		f.notifier = notify.NewKafkaDispatcher(f.kafkaProducer, f.config.Kafka.NotificationTopic)
		return
	}
	f.poolNotifier = notify.NewPoolDispatcher(f.mailer, notifyWorkers, notifyQueueSize)
	f.notifier = f.poolNotifier
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		var sealer cache.Sealer
		if f.encryptionManager != nil {
			sealer = f.encryptionManager
		}
		auth := f.config.Auth

		f.serviceFactory = service.NewServiceFactory(service.Dependencies{
			Users:       postgres.NewUserRepository(f.db),
			Wallets:     postgres.NewWalletRepository(f.db),
			Referrals:   postgres.NewReferralRepository(f.db),
			Withdrawals: postgres.NewWithdrawalRepository(f.db),
			Ledger:      f.ledger,
			Provider:    identity.NewGoTrueClient(f.config),
			OTPs:        cache.NewOTPCache(f.store, f.hasher, auth.OTPTTL),
			Signups:     cache.NewSignupCache(f.store, sealer, auth.PendingSignupTTL),
			Sessions:    cache.NewSessionCache(f.store),
			Limiter:     cache.NewRateLimitCache(f.store),
			Tokens:      f.tokenIssuer,
			Mailer:      f.mailer,
			Notifier:    f.notifier,
			Audit:       f.recorder,
		}, service.AuthSettings{
			OTPSendLimit:    auth.OTPSendLimit,
			OTPSendWindow:   auth.OTPSendWindow,
			IdentityTimeout: f.config.Identity.Timeout,
			MailTimeout:     f.config.Mail.Timeout,
			ReferralBonus:   f.config.Wallet.ReferralBonus,
		}, f.logger)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck pings every connected backend concurrently.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var (
		mu     sync.Mutex
		result = make(map[string]error)
	)
	report := func(name string, err error) {
		if err != nil {
			mu.Lock()
			result[name] = err
			mu.Unlock()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if f.db != nil {
		g.Go(func() error { report("postgres", f.db.PingContext(gctx)); return nil })
	}
	if f.redisClient != nil {
		g.Go(func() error { report("redis", f.redisClient.HealthCheck(gctx)); return nil })
	}
	if f.scyllaClient != nil {
		g.Go(func() error { report("scylla", f.scyllaClient.HealthCheck()); return nil })
	}
	if f.clickhouseClient != nil {
		g.Go(func() error { report("clickhouse", f.clickhouseClient.HealthCheck(gctx)); return nil })
	}
	if f.kafkaProducer != nil {
		g.Go(func() error { report("kafka", f.kafkaProducer.HealthCheck(gctx)); return nil })
	}
	_ = g.Wait()

	return result
}

// IsHealthy ignores Kafka: the producer retries and the API keeps serving.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if f.poolNotifier != nil {
			if err := f.poolNotifier.Close(ctx); err != nil {
				util.Warn("Notification queue not drained", util.ErrorField(err))
			}
		}

		if f.chRecorder != nil {
			if err := f.chRecorder.Close(ctx); err != nil {
				util.Warn("Audit buffer not flushed", util.ErrorField(err))
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

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
		if f.stopJanitor != nil {
			f.stopJanitor()
		}

		if f.db != nil {
			if err := f.db.Close(); err != nil {
				util.Error("Failed to close Postgres pool", util.ErrorField(err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("Factory shutdown completed")
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

func (f *Factory) Logger() *zap.Logger {
	return f.logger
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Mailer() mailer.Mailer {
	return f.mailer
}

func (f *Factory) Tokens() *token.Issuer {
	return f.tokenIssuer
}
