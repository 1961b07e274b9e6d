package biz

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/pkg/llm"
)

// dimensionProbe 用于惰性探测嵌入维度的固定探针文本。
const dimensionProbe = "sample text"

// DocumentStoreConfig 文档存储配置。
type DocumentStoreConfig struct {
	// IndexPath 索引文件路径，sidecar 为同路径加 ".metadata" 后缀。
	IndexPath string
}

// DocumentStore wraps an embedding provider and a vector index. The index
// dimension is discovered lazily: the first operation embeds a fixed probe
// string, builds the index, then loads any persisted state from disk.
// Initialization runs at most once per instance; a failed attempt leaves
// the store uninitialized and retryable.
type DocumentStore struct {
	embedder llm.EmbeddingProvider
	config   *DocumentStoreConfig

	initMu      sync.Mutex
	initialized bool
	index       store.VectorIndex
}

// NewDocumentStore 创建文档存储实例。
func NewDocumentStore(embedder llm.EmbeddingProvider, config *DocumentStoreConfig) *DocumentStore {
	return &DocumentStore{
		embedder: embedder,
		config:   config,
	}
}

// ensureInit initializes the index exactly once. The probe embedding fixes
// the dimension; a persisted index on disk then takes precedence over it.
func (s *DocumentStore) ensureInit(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized {
		return nil
	}

	probe, err := s.embedder.EmbedSingle(ctx, dimensionProbe)
	if err != nil {
		return fmt.Errorf("failed to probe embedding dimension: %w", err)
	}
	if len(probe) == 0 {
		return &llm.EmbeddingError{Provider: s.embedder.Name(), Message: "probe embedding is empty"}
	}

	idx := store.NewFlatIndex(len(probe))
	if err := idx.Load(s.config.IndexPath); err != nil {
		if !store.IsKind(err, store.KindNotFound) {
			return err
		}
		logger.Infow("no persisted index found, starting empty",
			"path", s.config.IndexPath, "dimension", len(probe))
	}

	s.index = idx
	s.initialized = true
	return nil
}

// loadIfPersisted loads a persisted index without the embedding probe.
// Used by Count so an unused store can answer from disk.
func (s *DocumentStore) loadIfPersisted() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized {
		return nil
	}
	if _, err := os.Stat(s.config.IndexPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	idx := store.NewFlatIndex(0)
	if err := idx.Load(s.config.IndexPath); err != nil {
		return err
	}
	s.index = idx
	s.initialized = true
	return nil
}

// AddDocuments embeds texts and appends them to the index with their
// metadata. Validation failures abort before the index is touched.
func (s *DocumentStore) AddDocuments(ctx context.Context, texts []string, metas []store.Metadata) error {
	if len(texts) == 0 {
		return nil
	}
	if metas != nil && len(metas) != len(texts) {
		return &ValidationError{
			Field:   "metadatas",
			Message: fmt.Sprintf("got %d metadata records for %d texts", len(metas), len(texts)),
		}
	}
	if metas == nil {
		metas = make([]store.Metadata, len(texts))
	}
	// 每条元数据都必须携带自己的文本
	for i := range metas {
		if metas[i].Text == "" {
			metas[i].Text = texts[i]
		}
	}

	if err := s.ensureInit(ctx); err != nil {
		return err
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return &llm.EmbeddingError{
			Provider: s.embedder.Name(),
			Message:  fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vectors)),
		}
	}
	dim := s.index.Dimension()
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return &llm.EmbeddingError{
				Provider: s.embedder.Name(),
				Message:  fmt.Sprintf("embedding %d has dimension %d, expected %d", i, len(v), dim),
			}
		}
	}

	// 摄取与查询对称归一化，使平方 L2 排序与余弦排序一致
	return s.index.AddVectors(llm.Normalize(vectors), metas)
}

// EmbedQuery embeds and normalizes a single query string.
func (s *DocumentStore) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}

	vec, err := s.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, err
	}
	return llm.NormalizeVector(vec), nil
}

// SearchVector returns the k nearest stored chunks for a prepared query
// vector.
func (s *DocumentStore) SearchVector(ctx context.Context, vec []float32, k int) ([]store.SearchResult, error) {
	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}
	return s.index.Search(vec, k)
}

// Search embeds a query and returns the k nearest stored chunks.
func (s *DocumentStore) Search(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	vec, err := s.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SearchVector(ctx, vec, k)
}

// Count returns the stored chunk count. A store never used in-process
// answers from the persisted index when one exists, and 0 otherwise.
func (s *DocumentStore) Count(_ context.Context) (int, error) {
	if err := s.loadIfPersisted(); err != nil {
		return 0, err
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()
	if !s.initialized {
		return 0, nil
	}
	return s.index.Count(), nil
}

// Metadatas returns the stored metadata, loading from disk when needed.
func (s *DocumentStore) Metadatas(_ context.Context) ([]store.Metadata, error) {
	if err := s.loadIfPersisted(); err != nil {
		return nil, err
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()
	if !s.initialized {
		return nil, nil
	}
	return s.index.Metadatas(), nil
}

// Dimension returns the index dimension, 0 before initialization.
func (s *DocumentStore) Dimension() int {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if !s.initialized {
		return 0
	}
	return s.index.Dimension()
}

// Save persists the index pair. A no-op before initialization.
func (s *DocumentStore) Save() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if !s.initialized {
		return nil
	}
	return s.index.Save(s.config.IndexPath)
}

// Clear resets the in-memory index, loading a persisted one first so a
// following Save overwrites stale disk state. Disk is untouched until Save.
func (s *DocumentStore) Clear() error {
	if err := s.loadIfPersisted(); err != nil {
		return err
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()
	if !s.initialized {
		return nil
	}
	s.index.Clear()
	return nil
}
