// Package llm 定义 LLM 供应商接口与注册表。
package llm

import (
	"context"
	"fmt"
	"sync"
)

// EmbeddingProvider 定义向量嵌入供应商接口。
type EmbeddingProvider interface {
	// Name 返回供应商名称。
	Name() string

	// Embed 为多个文本生成向量嵌入，顺序与输入一致。
	// 空输入返回空输出。超时控制由调用方通过 ctx 负责。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// GenerateOptions 文本生成采样参数。
type GenerateOptions struct {
	// Temperature 采样温度。
	Temperature float64 `json:"temperature"`
	// TopP nucleus 采样参数。
	TopP float64 `json:"top_p"`
	// NumCtx 上下文窗口大小。
	NumCtx int `json:"num_ctx"`
}

// DefaultGenerateOptions 返回默认采样参数。
func DefaultGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		Temperature: 0.7,
		TopP:        0.9,
		NumCtx:      4096,
	}
}

// GenerationProvider 定义文本生成供应商接口。
type GenerationProvider interface {
	// Name 返回供应商名称。
	Name() string

	// Generate 根据提示生成文本。opts 为 nil 时使用供应商默认参数。
	Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error)
}

// Provider 同时支持嵌入与生成的完整供应商。
type Provider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error)

	// Ping 检查供应商服务是否可用。
	Ping(ctx context.Context) error
}

// ProviderFactory 完整供应商工厂函数类型。
type ProviderFactory func(config map[string]any) (Provider, error)

// EmbeddingProviderFactory Embedding 供应商工厂函数类型。
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

// GenerationProviderFactory 生成供应商工厂函数类型。
type GenerationProviderFactory func(config map[string]any) (GenerationProvider, error)

// registry 供应商注册表。
var registry = &providerRegistry{
	providers:           make(map[string]ProviderFactory),
	embeddingProviders:  make(map[string]EmbeddingProviderFactory),
	generationProviders: make(map[string]GenerationProviderFactory),
}

type providerRegistry struct {
	mu                  sync.RWMutex
	providers           map[string]ProviderFactory
	embeddingProviders  map[string]EmbeddingProviderFactory
	generationProviders map[string]GenerationProviderFactory
}

// RegisterProvider 注册完整供应商工厂。
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// RegisterEmbeddingProvider 注册 Embedding 供应商工厂。
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.embeddingProviders[name] = factory
}

// RegisterGenerationProvider 注册生成供应商工厂。
func RegisterGenerationProvider(name string, factory GenerationProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.generationProviders[name] = factory
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
// 优先查找专用 Embedding 工厂，其次查找完整供应商工厂。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if factory, ok := registry.embeddingProviders[name]; ok {
		return factory(config)
	}

	if factory, ok := registry.providers[name]; ok {
		return factory(config)
	}

	return nil, fmt.Errorf("unknown embedding provider: %s", name)
}

// NewGenerationProvider 根据名称创建生成供应商实例。
// 优先查找专用生成工厂，其次查找完整供应商工厂。
func NewGenerationProvider(name string, config map[string]any) (GenerationProvider, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if factory, ok := registry.generationProviders[name]; ok {
		return factory(config)
	}

	if factory, ok := registry.providers[name]; ok {
		return factory(config)
	}

	return nil, fmt.Errorf("unknown generation provider: %s", name)
}

// ListProviders 列出所有已注册的供应商名称。
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string

	for name := range registry.providers {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range registry.embeddingProviders {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range registry.generationProviders {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	return names
}
