package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"crawlmind/internal/ai"
	appsvc "crawlmind/internal/app"
	"crawlmind/internal/cache"
	"crawlmind/internal/config"
	"crawlmind/internal/extract"
	"crawlmind/internal/identity"
	"crawlmind/internal/knowledge"
	"crawlmind/internal/logger"
	mysqlClient "crawlmind/internal/platform/mysql"
	rabbitmqClient "crawlmind/internal/platform/rabbitmq"
	redisClient "crawlmind/internal/platform/redis"
	"crawlmind/internal/repository"
	"crawlmind/internal/retry"
	"crawlmind/internal/watch"
	"crawlmind/internal/worker"
)

type App struct {
	Config       *config.Config
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	RecordWorker *worker.IngestionRecordWorker
	Watcher      *watch.Watcher

	Store     knowledge.Store
	Verifier  identity.Verifier
	Auth      *appsvc.AuthService
	Ingestion *appsvc.IngestionService
	Query     *appsvc.QueryService
	Knowledge *appsvc.KnowledgeService
	Sessions  *appsvc.SessionService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if err := logger.Init(cfg.App.Debug); err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}
	return Build(ctx, cfg)
}

// Build wires every component described by cfg. Optional infrastructure
// (MySQL, Redis, RabbitMQ, the drop folder) is only connected when enabled.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if cfg.MySQL.Enabled {
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.Debug)
		if err != nil {
			return err
		}
		a.MySQL = db
	}

	store, err := newStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	a.Store = store

	if err := a.buildIdentity(); err != nil {
		return err
	}

	sessionStore, err := a.newSessionStore(ctx)
	if err != nil {
		return err
	}
	a.Sessions = appsvc.NewSessionService(sessionStore)

	events, err := a.newEventPublisher(ctx)
	if err != nil {
		return err
	}

	llm := ai.NewOpenAICompatibleClient(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second)
	embedder := appsvc.NewEmbeddingClient(llm, ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	})
	generator := appsvc.NewAnswerGenerator(llm, ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	})

	a.Ingestion = appsvc.NewIngestionService(newExtractor(cfg.Extract), embedder, store, events, cfg.LLM.APIKey)
	a.Query = appsvc.NewQueryService(embedder, generator, store, cfg.Store.TopK, cfg.LLM.APIKey)

	var records *repository.IngestionRecordRepository
	if a.MySQL != nil {
		records = repository.NewIngestionRecordRepository(a.MySQL)
	}
	a.Knowledge = appsvc.NewKnowledgeService(store, records)

	if cfg.Watch.Enabled {
		w, err := watch.New(cfg.Watch.Dir, cfg.Watch.Identity, time.Duration(cfg.Watch.SettleMS)*time.Millisecond, a.Ingestion)
		if err != nil {
			return err
		}
		a.Watcher = w
		w.Start(ctx)
	}
	return nil
}

func newStore(ctx context.Context, cfg config.StoreConfig) (knowledge.Store, error) {
	policy := retry.Policy{
		Attempts: cfg.ClearAttempts,
		Delay:    time.Duration(cfg.ClearBackoffM) * time.Millisecond,
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		return knowledge.NewSQLiteStore(cfg.RootPath, policy), nil
	case "milvus":
		return knowledge.NewMilvusStore(ctx, knowledge.MilvusOptions{
			Address:      cfg.Milvus.Address,
			Username:     cfg.Milvus.Username,
			Password:     cfg.Milvus.Password,
			EmbeddingDim: cfg.Milvus.EmbeddingDim,
			MaxTextBytes: cfg.Milvus.MaxTextBytes,
		}, policy)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func newExtractor(cfg config.ExtractConfig) *extract.Service {
	var primary extract.PageFetcher
	if cfg.CrawlServiceURL != "" {
		primary = extract.NewCrawlServiceFetcher(cfg.CrawlServiceURL, cfg.CrawlServiceToken, &http.Client{})
	}
	fallback := extract.NewHTTPFetcher(cfg.UserAgent, &http.Client{})
	return extract.NewService(primary, fallback, extract.Options{
		CrawlTimeout:    time.Duration(cfg.CrawlTimeoutSeconds) * time.Second,
		FetchTimeout:    time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		MinContentChars: cfg.MinContentChars,
	})
}

func (a *App) buildIdentity() error {
	cfg := a.Config.Auth
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil
	case identity.ProviderLocal:
		if a.MySQL == nil {
			return fmt.Errorf("auth provider local requires mysql")
		}
		expiration := time.Duration(cfg.JWTExpireMinute) * time.Minute
		a.Auth = appsvc.NewAuthService(repository.NewUserRepository(a.MySQL), cfg.JWTSecret, expiration)
		a.Verifier = identity.NewLocalVerifier(cfg.JWTSecret)
		return nil
	case identity.ProviderJWKS:
		if cfg.JWKSURL == "" {
			return fmt.Errorf("auth provider jwks requires jwks_url")
		}
		a.Verifier = identity.NewJWKSVerifier(identity.JWKSOptions{
			URL:      cfg.JWKSURL,
			Audience: cfg.Audience,
			Issuer:   cfg.Issuer,
			Refresh:  time.Duration(cfg.JWKSRefreshMin) * time.Minute,
		})
		return nil
	default:
		return fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

func (a *App) newSessionStore(ctx context.Context) (appsvc.SessionStore, error) {
	if strings.ToLower(a.Config.Session.Backend) != "redis" {
		return cache.NewMemorySessionStore(a.Config.SessionTTL()), nil
	}
	client, err := redisClient.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.Redis = client
	return cache.NewRedisSessionStore(client, a.Config.SessionTTL()), nil
}

// newEventPublisher returns nil when RabbitMQ is disabled; the ingestion
// service then skips publishing.
func (a *App) newEventPublisher(ctx context.Context) (appsvc.IngestionEventPublisher, error) {
	cfg := a.Config.RabbitMQ
	if !cfg.Enabled {
		return nil, nil
	}
	conn, err := rabbitmqClient.New(ctx, cfg.URL, cfg.IngestionEventQueue)
	if err != nil {
		return nil, err
	}
	a.MQConn = conn

	if a.MySQL != nil {
		a.RecordWorker = worker.NewIngestionRecordWorker(conn, repository.NewIngestionRecordRepository(a.MySQL), cfg.IngestionEventQueue)
		if err := a.RecordWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start ingestion record worker failed: %w", err)
		}
	} else {
		logger.Warnf("rabbitmq enabled without mysql: ingestion events are published but not stored")
	}
	return rabbitmqClient.NewIngestionPublisher(conn, cfg.IngestionEventQueue), nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Watcher != nil {
		if err := a.Watcher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.RecordWorker != nil {
		a.RecordWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
