package docquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/docquery/handler"
	"github.com/kart-io/docquery/internal/docquery/router"
	"github.com/kart-io/docquery/pkg/app"
	"github.com/kart-io/docquery/pkg/llm"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docquery/pkg/llm/ollama"
)

// Server represents the document query server.
type Server struct {
	opts       *Options
	httpServer *http.Server
	redisClose func()
}

// NewServer initializes and returns a new Server instance.
func NewServer(opts *Options) (*Server, error) {
	// 1. 初始化日志
	opts.Log.AddInitialField("service.name", appName)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting document query service...")

	// 2. 初始化 Redis 客户端（用于查询缓存），连接失败时降级为禁用
	var queryCache *biz.QueryCache
	var redisClose func()
	if opts.Cache.Enabled && opts.Cache.Redis != nil {
		redisOpts := opts.Cache.Redis
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:         redisOpts.Addr(),
			Password:     redisOpts.Password,
			DB:           redisOpts.Database,
			MaxRetries:   redisOpts.MaxRetries,
			PoolSize:     redisOpts.PoolSize,
			MinIdleConns: redisOpts.MinIdleConns,
			DialTimeout:  redisOpts.DialTimeout,
			ReadTimeout:  redisOpts.ReadTimeout,
			WriteTimeout: redisOpts.WriteTimeout,
			PoolTimeout:  redisOpts.PoolTimeout,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
			_ = redisClient.Close()
		} else {
			queryCache = biz.NewQueryCache(redisClient, &biz.QueryCacheConfig{
				Enabled:   true,
				TTL:       opts.Cache.TTL,
				KeyPrefix: opts.Cache.KeyPrefix,
			})
			redisClose = func() { _ = redisClient.Close() }
			logger.Infow("Redis cache initialized",
				"host", redisOpts.Host,
				"port", redisOpts.Port,
				"ttl", opts.Cache.TTL,
			)
		}
	} else {
		logger.Info("Cache is disabled")
	}

	// 3. 初始化 LLM 供应商
	embedProvider, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Embedding.Provider,
		"model", opts.Embedding.Model,
	)

	generateProvider, err := llm.NewGenerationProvider(opts.Generation.Provider, opts.Generation.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation provider: %w", err)
	}
	logger.Infow("Generation provider initialized",
		"provider", opts.Generation.Provider,
		"model", opts.Generation.Model,
	)

	// 4. 初始化 Store 层
	docStore := biz.NewDocumentStore(embedProvider, &biz.DocumentStoreConfig{
		IndexPath: opts.RAG.IndexPath,
	})
	logger.Infow("Document store initialized", "index_path", opts.RAG.IndexPath)

	// 5. 初始化 Biz 层
	ragConfig := &biz.RAGConfig{
		ChunkSize:       opts.RAG.ChunkSize,
		ChunkOverlap:    opts.RAG.ChunkOverlap,
		TopK:            opts.RAG.TopK,
		GenerateTimeout: opts.RAG.GenerateTimeout,
	}
	ragService := biz.NewRAGService(docStore, generateProvider, queryCache, ragConfig)
	logger.Infow("Retrieval service initialized",
		"chunk_size", opts.RAG.ChunkSize,
		"chunk_overlap", opts.RAG.ChunkOverlap,
		"top_k", opts.RAG.TopK,
		"cache.enabled", queryCache != nil,
	)

	// 6. 初始化 Handler 层并注册路由
	docHandler := handler.NewDocQueryHandler(ragService)
	engine := router.New(docHandler)
	logger.Info("HTTP routes registered")

	httpServer := &http.Server{
		Addr:         opts.HTTP.Addr,
		Handler:      engine,
		ReadTimeout:  opts.HTTP.ReadTimeout,
		WriteTimeout: opts.HTTP.WriteTimeout,
		IdleTimeout:  opts.HTTP.IdleTimeout,
	}

	logger.Info("Document query service is ready")
	return &Server{
		opts:       opts,
		httpServer: httpServer,
		redisClose: redisClose,
	}, nil
}

// Run starts the HTTP server and blocks until a termination signal arrives.
func (s *Server) Run() error {
	defer func() {
		if s.redisClose != nil {
			s.redisClose()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down document query service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("Document query service stopped")
	return nil
}
