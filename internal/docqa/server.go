package docqa

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/asakusa/enterprise-rag/internal/docqa/biz"
	"github.com/asakusa/enterprise-rag/internal/docqa/handler"
	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/docqa/router"
	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/pkg/infra/app"
	"github.com/asakusa/enterprise-rag/pkg/infra/middleware"
	"github.com/asakusa/enterprise-rag/pkg/infra/tracing"
)

// Server 持有 docqa 运行所需的全部依赖。
type Server struct {
	opts    *Options
	core    *biz.DocQAService
	gateway *store.GatewayClient
	redis   *goredis.Client
	tracer  *tracing.Provider
	metrics *metrics.DocQAMetrics
}

// NewServer initializes the storage, gateway and session dependencies.
func NewServer(ctx context.Context, opts *Options) (*Server, error) {
	// 1. 初始化链路追踪
	tracer, err := tracing.NewProvider(ctx, opts.Tracing, appName, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	logger.Infow("Tracing initialized", "enabled", tracer.Enabled(), "exporter", opts.Tracing.ExporterType)

	// 2. 初始化对象存储
	mc, err := opts.Minio.NewClient()
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize minio: %w", err)
	}
	objects := store.NewMinioStore(mc)
	if opts.Staging.CreateBucket {
		if err := objects.EnsureBucket(ctx, opts.Minio.Bucket, opts.Minio.Region); err != nil {
			_ = tracer.Shutdown(ctx)
			return nil, fmt.Errorf("failed to ensure bucket %s: %w", opts.Minio.Bucket, err)
		}
	}
	logger.Infow("Object store initialized", "bucket", opts.Minio.Bucket, "prefix", opts.Staging.Prefix)

	// 3. 初始化知识网关客户端
	gateway := store.NewGatewayClient(opts.Gateway)
	logger.Infow("Knowledge gateway client initialized", "base_url", opts.Gateway.BaseURL)

	// 4. 初始化会话存储（可选）
	var redisClient *goredis.Client
	var sessionStore store.SessionStore
	if opts.Redis.Enabled() {
		redisClient, err = opts.Redis.NewClient(ctx)
		if err != nil {
			logger.Warnw("failed to connect to redis, sessions will be kept in memory", "error", err.Error())
		} else {
			sessionStore = store.NewRedisSessionStore(redisClient, opts.SessionStoreConfig())
			logger.Infow("Redis session store initialized", "addr", opts.Redis.Addr(), "ttl", opts.Session.TTL)
		}
	} else {
		logger.Info("Redis is disabled, sessions are kept in memory")
	}

	// 5. 初始化 Biz 层
	m := metrics.Default()
	core := biz.NewDocQAService(gateway, objects, sessionStore, opts.ProvisionConfig(), m)
	logger.Infow("DocQA service initialized",
		"index", opts.KB.IndexName,
		"agent", opts.KB.AgentName,
		"model", opts.KB.ModelID,
	)

	return &Server{
		opts:    opts,
		core:    core,
		gateway: gateway,
		redis:   redisClient,
		tracer:  tracer,
		metrics: m,
	}, nil
}

// Core returns the service facade used by the CLI commands.
func (s *Server) Core() biz.Core {
	return s.core
}

// Close releases the external connections and flushes pending spans.
func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tracer.Shutdown(ctx); err != nil {
		logger.Warnw("failed to flush traces", "error", err.Error())
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Warnw("failed to close redis client", "error", err.Error())
		}
	}
}

// Health 根据网关熔断器与 Redis 连接构建健康检查。
func (s *Server) Health() *middleware.HealthManager {
	health := middleware.NewHealthManager(app.GetVersion())
	health.RegisterChecker("gateway", func() error {
		if state := s.gateway.BreakerState(); state == "open" {
			return fmt.Errorf("circuit breaker is %s", state)
		}
		return nil
	})
	if s.redis != nil {
		health.RegisterChecker("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return s.redis.Ping(ctx).Err()
		})
	}
	return health
}

// Serve 启动 HTTP 服务，ctx 取消后优雅退出。
func (s *Server) Serve(ctx context.Context) error {
	// 已部署的资源按名称接管，失败时保持未初始化状态
	if _, err := s.core.Attach(ctx); err != nil {
		logger.Warnw("no existing deployment attached", "error", err.Error())
	}

	evictCtx, stopEvict := context.WithCancel(ctx)
	defer stopEvict()
	go s.core.Sessions().RunEviction(evictCtx, s.opts.Session.IdleTimeout, s.opts.Session.EvictInterval)

	engine := router.NewEngine(s.opts.Server.Mode)
	h := handler.NewDocQAHandler(s.core, s.metrics, s.opts.Server.QueryTimeout, s.opts.Server.ProvisionTimeout)
	router.Register(engine, h, s.Health(), s.metrics.Handler())

	srv := &http.Server{
		Addr:              s.opts.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.opts.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}
