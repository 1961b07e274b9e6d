// Package docquery provides the document query service application.
package docquery

import (
	"fmt"
	"time"

	logopts "github.com/kart-io/docquery/pkg/options/logger"
	redisopts "github.com/kart-io/docquery/pkg/options/redis"
	httpopts "github.com/kart-io/docquery/pkg/options/server/http"
	"github.com/spf13/pflag"
)

// Options contains all document query service options.
type Options struct {
	// HTTP contains HTTP server configuration.
	HTTP *httpopts.Options `json:"http" mapstructure:"http"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Embedding contains embedding provider configuration.
	Embedding *LLMProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Generation contains answer generation provider configuration.
	Generation *LLMProviderOptions `json:"generation" mapstructure:"generation"`

	// RAG contains retrieval pipeline configuration.
	RAG *RAGOptions `json:"rag" mapstructure:"rag"`

	// Cache contains query cache configuration.
	Cache *CacheOptions `json:"cache" mapstructure:"cache"`

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// LLMProviderOptions 定义 LLM 供应商配置。
type LLMProviderOptions struct {
	// Provider 供应商名称（目前支持 ollama）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`
}

// NewLLMProviderOptions 创建默认 LLM 供应商配置。
func NewLLMProviderOptions() *LLMProviderOptions {
	return &LLMProviderOptions{
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *LLMProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":       o.BaseURL,
		"embed_model":    o.Model,
		"generate_model": o.Model,
		"timeout":        o.Timeout,
		"max_retries":    o.MaxRetries,
	}
}

// RAGOptions contains retrieval pipeline configuration.
type RAGOptions struct {
	// ChunkSize is the size of text chunks in characters.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the overlap between consecutive chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the default number of contexts retrieved per query.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// IndexPath is the file path for index persistence.
	IndexPath string `json:"index-path" mapstructure:"index-path"`

	// GenerateTimeout is the timeout for a single answer generation.
	GenerateTimeout time.Duration `json:"generate-timeout" mapstructure:"generate-timeout"`
}

// NewRAGOptions creates new RAGOptions with defaults.
func NewRAGOptions() *RAGOptions {
	return &RAGOptions{
		ChunkSize:       1000,
		ChunkOverlap:    200,
		TopK:            3,
		IndexPath:       "_output/docquery/index.bin",
		GenerateTimeout: 60 * time.Second,
	}
}

// CacheOptions 查询缓存配置。
type CacheOptions struct {
	// Enabled 是否启用缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL 缓存过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis Redis 连接配置。
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewCacheOptions 创建默认缓存配置。
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:   true,
		TTL:       1 * time.Hour,
		KeyPrefix: "docquery:query:",
		Redis:     redisopts.NewOptions(),
	}
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	embeddingOpts := NewLLMProviderOptions()
	embeddingOpts.Model = "nomic-embed-text"

	generationOpts := NewLLMProviderOptions()
	generationOpts.Model = "mistral"

	return &Options{
		HTTP:            httpopts.NewOptions(),
		Log:             logopts.NewOptions(),
		Embedding:       embeddingOpts,
		Generation:      generationOpts,
		RAG:             NewRAGOptions(),
		Cache:           NewCacheOptions(),
		ShutdownTimeout: 10 * time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.addEmbeddingFlags(fs)
	o.addGenerationFlags(fs)
	o.addRAGFlags(fs)
	o.addCacheFlags(fs)
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")
}

func (o *Options) addEmbeddingFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Embedding.Provider, "embedding.provider", o.Embedding.Provider, "Embedding provider (ollama)")
	fs.StringVar(&o.Embedding.BaseURL, "embedding.base-url", o.Embedding.BaseURL, "Embedding API base URL")
	fs.StringVar(&o.Embedding.Model, "embedding.model", o.Embedding.Model, "Embedding model name")
	fs.DurationVar(&o.Embedding.Timeout, "embedding.timeout", o.Embedding.Timeout, "Embedding request timeout")
	fs.IntVar(&o.Embedding.MaxRetries, "embedding.max-retries", o.Embedding.MaxRetries, "Embedding max retries")
}

func (o *Options) addGenerationFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Generation.Provider, "generation.provider", o.Generation.Provider, "Generation provider (ollama)")
	fs.StringVar(&o.Generation.BaseURL, "generation.base-url", o.Generation.BaseURL, "Generation API base URL")
	fs.StringVar(&o.Generation.Model, "generation.model", o.Generation.Model, "Generation model name")
	fs.DurationVar(&o.Generation.Timeout, "generation.timeout", o.Generation.Timeout, "Generation request timeout")
	fs.IntVar(&o.Generation.MaxRetries, "generation.max-retries", o.Generation.MaxRetries, "Generation max retries")
}

func (o *Options) addRAGFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.RAG.ChunkSize, "rag.chunk-size", o.RAG.ChunkSize, "Size of text chunks in characters")
	fs.IntVar(&o.RAG.ChunkOverlap, "rag.chunk-overlap", o.RAG.ChunkOverlap, "Overlap between consecutive chunks")
	fs.IntVar(&o.RAG.TopK, "rag.top-k", o.RAG.TopK, "Default number of contexts per query")
	fs.StringVar(&o.RAG.IndexPath, "rag.index-path", o.RAG.IndexPath, "File path for index persistence")
	fs.DurationVar(&o.RAG.GenerateTimeout, "rag.generate-timeout", o.RAG.GenerateTimeout, "Timeout for a single answer generation")
}

func (o *Options) addCacheFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Cache.Enabled, "cache.enabled", o.Cache.Enabled, "Enable query result cache")
	fs.DurationVar(&o.Cache.TTL, "cache.ttl", o.Cache.TTL, "Cache TTL duration")
	fs.StringVar(&o.Cache.KeyPrefix, "cache.key-prefix", o.Cache.KeyPrefix, "Cache key prefix")
	o.Cache.Redis.AddFlags(fs)
}

// Validate validates the options.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}
	if errs := o.HTTP.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if err := o.validateLLMProvider(o.Embedding, "embedding"); err != nil {
		return err
	}
	if err := o.validateLLMProvider(o.Generation, "generation"); err != nil {
		return err
	}
	if o.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk-size must be positive")
	}
	if o.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("rag.chunk-overlap cannot be negative")
	}
	if o.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top-k must be positive")
	}
	if o.RAG.IndexPath == "" {
		return fmt.Errorf("rag.index-path is required")
	}
	if o.Cache.Enabled && o.Cache.Redis != nil {
		if err := o.Cache.Redis.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) validateLLMProvider(opts *LLMProviderOptions, prefix string) error {
	if opts.Provider == "" {
		return fmt.Errorf("%s.provider is required", prefix)
	}
	if opts.BaseURL == "" {
		return fmt.Errorf("%s.base-url is required", prefix)
	}
	if opts.Model == "" {
		return fmt.Errorf("%s.model is required", prefix)
	}
	if opts.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", prefix)
	}
	return nil
}

// Complete completes the options.
func (o *Options) Complete() error {
	return o.HTTP.Complete()
}
