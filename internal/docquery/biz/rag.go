package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/pkg/extract"
	"github.com/kart-io/docquery/internal/pkg/textutil"
	"github.com/kart-io/docquery/pkg/llm"
)

const (
	// contextDelimiter 提示词中上下文片段之间的分隔符。
	contextDelimiter = "\n\n---\n"

	// promptTemplate 固定的指令模板，先填上下文再填问题。
	promptTemplate = `You are a helpful AI assistant. Answer the question based on the provided context.
If the context doesn't contain relevant information, say that you don't know the answer.
Be concise and to the point.

Context:
%s

Question: %s

Answer:`

	// apologyAnswer 生成后端失败时的固定降级回答。
	apologyAnswer = "I'm sorry, I encountered an error while generating a response. Please try again later."

	// noContextAnswer 检索不到任何上下文时的固定回答。
	noContextAnswer = "I couldn't find enough relevant information to answer your question."
)

// RAGConfig RAG 服务配置。
type RAGConfig struct {
	// ChunkSize 每个块的最大大小（Unicode 字符数）。
	ChunkSize int
	// ChunkOverlap 块之间的重叠大小。
	ChunkOverlap int
	// TopK 默认检索的上下文数量。
	TopK int
	// GenerateTimeout 生成调用的超时上限。
	GenerateTimeout time.Duration
	// Generate 生成采样参数。
	Generate *llm.GenerateOptions
}

// NewRAGConfig 返回默认配置。
func NewRAGConfig() *RAGConfig {
	return &RAGConfig{
		ChunkSize:       1000,
		ChunkOverlap:    200,
		TopK:            3,
		GenerateTimeout: 60 * time.Second,
		Generate:        llm.DefaultGenerateOptions(),
	}
}

// Service 定义文档检索服务接口。
type Service interface {
	// Ingest 提取、分块、嵌入并索引一份文档，成功前同步落盘。
	Ingest(ctx context.Context, content []byte, extHint, source string, extra map[string]string) (*IngestResult, error)
	// IngestText 索引已经是纯文本的内容。
	IngestText(ctx context.Context, text, source string, extra map[string]string) (*IngestResult, error)
	// Query 执行检索增强查询。filters 为保留参数，当前不参与匹配。
	Query(ctx context.Context, question string, topK int, filters map[string]string) (*QueryResult, error)
	// Count 返回索引中的块总数。
	Count(ctx context.Context) (int, error)
	// Documents 返回按文档聚合的索引视图。
	Documents(ctx context.Context) ([]DocumentInfo, error)
	// Stats 返回索引与缓存的统计信息。
	Stats(ctx context.Context) (map[string]any, error)
	// Clear 清空索引并立即持久化清空后的状态。
	Clear(ctx context.Context) error
}

// RAGService 组合 DocumentStore、生成供应商与查询缓存，提供完整的
// 摄取与查询管线。
type RAGService struct {
	docStore  *DocumentStore
	generator llm.GenerationProvider
	cache     *QueryCache
	config    *RAGConfig
}

var _ Service = (*RAGService)(nil)

// NewRAGService 创建 RAG 服务实例。cache 可以为 nil。
func NewRAGService(docStore *DocumentStore, generator llm.GenerationProvider, cache *QueryCache, config *RAGConfig) *RAGService {
	if config == nil {
		config = NewRAGConfig()
	}
	return &RAGService{
		docStore:  docStore,
		generator: generator,
		cache:     cache,
		config:    config,
	}
}

// Ingest 提取、分块、嵌入并索引一份文档。
func (s *RAGService) Ingest(ctx context.Context, content []byte, extHint, source string, extra map[string]string) (*IngestResult, error) {
	text, err := extract.Text(content, extHint, source)
	if err != nil {
		return nil, err
	}
	return s.IngestText(ctx, text, source, extra)
}

// IngestText 索引已经是纯文本的内容。
func (s *RAGService) IngestText(ctx context.Context, text, source string, extra map[string]string) (*IngestResult, error) {
	chunks := textutil.SplitIntoChunks(text, s.config.ChunkSize, s.config.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrNoContent
	}

	docID := textutil.DocumentID(source, strings.Join(chunks, ""))

	metas := make([]store.Metadata, len(chunks))
	for i, chunk := range chunks {
		metas[i] = store.Metadata{
			DocumentID: docID,
			ChunkID:    fmt.Sprintf("%s_chunk_%d", docID, i),
			ChunkIndex: i,
			ChunkCount: len(chunks),
			Source:     source,
			Text:       chunk,
			Extra:      copyExtra(extra),
		}
	}

	if err := s.docStore.AddDocuments(ctx, chunks, metas); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	// 成功必须意味着已经落盘
	if err := s.docStore.Save(); err != nil {
		return nil, fmt.Errorf("failed to persist index: %w", err)
	}

	logger.Infow("document ingested",
		"document_id", docID,
		"source", source,
		"chunk_count", len(chunks),
	)

	return &IngestResult{
		DocumentID: docID,
		ChunkCount: len(chunks),
		Message:    fmt.Sprintf("Successfully processed and stored document with %d chunks", len(chunks)),
	}, nil
}

// Query 执行检索增强查询。检索失败是硬错误；生成失败降级为携带
// 已检索上下文的固定道歉回答。
func (s *RAGService) Query(ctx context.Context, question string, topK int, _ map[string]string) (*QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &ValidationError{Field: "question", Message: "query text cannot be empty"}
	}
	if topK <= 0 {
		topK = s.config.TopK
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, question); err == nil && cached != nil {
			return cached, nil
		}
	}

	queryVec, err := s.docStore.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.docStore.SearchVector(ctx, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	contexts := make([]Context, len(results))
	for i, r := range results {
		contexts[i] = Context{
			Text:       r.Metadata.Text,
			Source:     r.Metadata.Source,
			DocumentID: r.Metadata.DocumentID,
			ChunkID:    r.Metadata.ChunkID,
			Score:      r.Distance,
		}
	}

	result := &QueryResult{
		Contexts:       contexts,
		QueryEmbedding: queryVec,
	}

	if len(contexts) == 0 {
		result.Answer = noContextAnswer
		return result, nil
	}

	answer, genErr := s.generate(ctx, question, contexts)
	if genErr != nil {
		logger.Warnw("generation failed, returning degraded result",
			"error", genErr.Error(),
			"context_count", len(contexts),
		)
		result.Answer = apologyAnswer
		result.Degraded = true
		return result, nil
	}
	result.Answer = answer

	if s.cache != nil {
		_ = s.cache.Set(ctx, question, result)
	}
	return result, nil
}

// generate 组装提示词并调用生成后端，超时受 GenerateTimeout 约束。
func (s *RAGService) generate(ctx context.Context, question string, contexts []Context) (string, error) {
	blocks := make([]string, len(contexts))
	for i, c := range contexts {
		source := c.Source
		if source == "" {
			source = "unknown"
		}
		blocks[i] = fmt.Sprintf("Context %d (from %s):\n%s", i+1, source, c.Text)
	}
	prompt := fmt.Sprintf(promptTemplate, strings.Join(blocks, contextDelimiter), question)

	genCtx, cancel := context.WithTimeout(ctx, s.config.GenerateTimeout)
	defer cancel()

	return s.generator.Generate(genCtx, prompt, s.config.Generate)
}

// Count 返回索引中的块总数。
func (s *RAGService) Count(ctx context.Context) (int, error) {
	return s.docStore.Count(ctx)
}

// Documents 按文档 ID 聚合元数据，返回首次出现顺序的文档列表。
func (s *RAGService) Documents(ctx context.Context) ([]DocumentInfo, error) {
	metas, err := s.docStore.Metadatas(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*DocumentInfo)
	var order []string
	for _, m := range metas {
		info, ok := byID[m.DocumentID]
		if !ok {
			info = &DocumentInfo{DocumentID: m.DocumentID, Source: m.Source}
			byID[m.DocumentID] = info
			order = append(order, m.DocumentID)
		}
		info.ChunkCount++
	}

	docs := make([]DocumentInfo, len(order))
	for i, id := range order {
		docs[i] = *byID[id]
	}
	return docs, nil
}

// Stats 返回索引与缓存的统计信息。
func (s *RAGService) Stats(ctx context.Context) (map[string]any, error) {
	count, err := s.docStore.Count(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.Documents(ctx)
	if err != nil {
		return nil, err
	}

	stats := map[string]any{
		"chunk_count":    count,
		"document_count": len(docs),
		"dimension":      s.docStore.Dimension(),
		"index_path":     s.docStore.config.IndexPath,
	}

	if s.cache != nil {
		cacheStats, err := s.cache.GetStats(ctx)
		if err != nil {
			logger.Warnw("failed to collect cache stats", "error", err.Error())
		} else {
			stats["cache"] = cacheStats
		}
	} else {
		stats["cache"] = map[string]any{"enabled": false}
	}

	return stats, nil
}

// Clear 清空索引并立即持久化清空后的状态，同时清除查询缓存。
func (s *RAGService) Clear(ctx context.Context) error {
	if err := s.docStore.Clear(); err != nil {
		return err
	}
	if err := s.docStore.Save(); err != nil {
		return fmt.Errorf("failed to persist cleared index: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			logger.Warnw("failed to clear query cache", "error", err.Error())
		}
	}
	logger.Info("index cleared")
	return nil
}

// copyExtra 复制调用方附加的元数据，避免共享可变 map。
func copyExtra(extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
