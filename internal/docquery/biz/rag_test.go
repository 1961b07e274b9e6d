package biz_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/pkg/extract"
	"github.com/kart-io/docquery/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator 记录提示词，可配置为失败。
type stubGenerator struct {
	answer  string
	failing bool
	prompts []string
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(_ context.Context, prompt string, _ *llm.GenerateOptions) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.failing {
		return "", &llm.GenerationError{Provider: "stub", Message: "model unavailable"}
	}
	return g.answer, nil
}

func newTestService(t *testing.T, config *biz.RAGConfig) (*biz.RAGService, *stubEmbedder, *stubGenerator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.bin")
	embedder := newStubEmbedder(4)
	generator := &stubGenerator{answer: "generated answer"}
	ds := biz.NewDocumentStore(embedder, &biz.DocumentStoreConfig{IndexPath: path})
	svc := biz.NewRAGService(ds, generator, nil, config)
	return svc, embedder, generator, path
}

func TestIngestShortText(t *testing.T) {
	svc, _, _, path := newTestService(t, nil)
	ctx := context.Background()

	text := strings.Repeat("a", 50)
	result, err := svc.IngestText(ctx, text, "short.txt", nil)
	require.NoError(t, err)

	// chunkSize 1000 时 50 字符文本正好 1 块
	assert.Equal(t, 1, result.ChunkCount)
	assert.Len(t, result.DocumentID, 64)

	// 成功返回前必须已落盘
	_, err = os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".metadata")
	assert.NoError(t, err)
}

func TestIngestDeterministicDocumentID(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.IngestText(ctx, "identical content", "same.txt", nil)
	require.NoError(t, err)
	second, err := svc.IngestText(ctx, "identical content", "same.txt", nil)
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)

	other, err := svc.IngestText(ctx, "identical content", "other.txt", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.DocumentID, other.DocumentID)
}

func TestIngestNoContent(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)

	_, err := svc.IngestText(context.Background(), "   \n\t ", "empty.txt", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, biz.ErrNoContent)
}

func TestIngestUnsupportedFormat(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)

	_, err := svc.Ingest(context.Background(), []byte("%PDF-1.4"), ".pdf", "doc.pdf", nil)
	require.Error(t, err)

	var exErr *extract.ExtractionError
	assert.ErrorAs(t, err, &exErr)
}

func TestIngestMultipleDocumentsCount(t *testing.T) {
	config := biz.NewRAGConfig()
	config.ChunkSize = 10
	config.ChunkOverlap = 0
	svc, _, _, _ := newTestService(t, config)
	ctx := context.Background()

	// 30 字符、chunkSize 10 -> 3 块
	first, err := svc.IngestText(ctx, strings.Repeat("x", 30), "a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, first.ChunkCount)

	// 20 字符 -> 2 块
	second, err := svc.IngestText(ctx, strings.Repeat("y", 20), "b.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ChunkCount)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestIngestCarriesExtraMetadata(t *testing.T) {
	svc, _, generator, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.IngestText(ctx, "tagged content", "tagged.txt", map[string]string{"team": "infra"})
	require.NoError(t, err)

	result, err := svc.Query(ctx, "tagged content", 1, nil)
	require.NoError(t, err)
	require.Len(t, result.Contexts, 1)
	assert.Equal(t, "tagged.txt", result.Contexts[0].Source)
	assert.NotEmpty(t, generator.prompts)
}

func TestQueryBlankQuestion(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := svc.Query(context.Background(), q, 3, nil)
		require.Error(t, err)
		assert.True(t, biz.IsValidationError(err))
	}
}

func TestQuerySuccess(t *testing.T) {
	svc, embedder, generator, _ := newTestService(t, nil)
	ctx := context.Background()

	embedder.vectors["relevant chunk"] = []float32{1, 0, 0, 0}
	embedder.vectors["unrelated chunk"] = []float32{0, 1, 0, 0}
	embedder.vectors["what is relevant?"] = []float32{1, 0, 0, 0}

	_, err := svc.IngestText(ctx, "relevant chunk", "a.txt", nil)
	require.NoError(t, err)
	_, err = svc.IngestText(ctx, "unrelated chunk", "b.txt", nil)
	require.NoError(t, err)

	result, err := svc.Query(ctx, "what is relevant?", 2, nil)
	require.NoError(t, err)

	assert.Equal(t, "generated answer", result.Answer)
	assert.False(t, result.Degraded)
	require.Len(t, result.Contexts, 2)
	assert.Equal(t, "relevant chunk", result.Contexts[0].Text)
	assert.LessOrEqual(t, result.Contexts[0].Score, result.Contexts[1].Score)
	assert.NotEmpty(t, result.QueryEmbedding)

	// 提示词包含上下文与问题
	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "relevant chunk")
	assert.Contains(t, generator.prompts[0], "Question: what is relevant?")
	assert.Contains(t, generator.prompts[0], "\n\n---\n")
}

func TestQueryDegradedOnGenerationFailure(t *testing.T) {
	svc, _, generator, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.IngestText(ctx, "some indexed content", "a.txt", nil)
	require.NoError(t, err)
	_, err = svc.IngestText(ctx, "more indexed content", "b.txt", nil)
	require.NoError(t, err)

	generator.failing = true
	result, err := svc.Query(ctx, "anything", 2, nil)

	// 生成失败是软失败：整体成功，返回降级结果
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.Answer, "I'm sorry")
	assert.LessOrEqual(t, len(result.Contexts), 2)
	assert.NotEmpty(t, result.Contexts)
}

func TestQueryEmptyIndex(t *testing.T) {
	svc, _, generator, _ := newTestService(t, nil)

	result, err := svc.Query(context.Background(), "anything", 3, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Contexts)
	assert.Contains(t, result.Answer, "couldn't find enough relevant information")
	assert.False(t, result.Degraded)
	// 没有上下文时不调用生成后端
	assert.Empty(t, generator.prompts)
}

func TestQueryTopKClamped(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.IngestText(ctx, "only one chunk", "a.txt", nil)
	require.NoError(t, err)

	result, err := svc.Query(ctx, "question", 10, nil)
	require.NoError(t, err)
	assert.Len(t, result.Contexts, 1)
}

func TestQueryDefaultTopK(t *testing.T) {
	config := biz.NewRAGConfig()
	config.TopK = 2
	svc, _, _, _ := newTestService(t, config)
	ctx := context.Background()

	for _, src := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := svc.IngestText(ctx, "content for "+src, src, nil)
		require.NoError(t, err)
	}

	result, err := svc.Query(ctx, "question", 0, nil)
	require.NoError(t, err)
	assert.Len(t, result.Contexts, 2)
}

func TestClearPersistsImmediately(t *testing.T) {
	svc, _, _, path := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.IngestText(ctx, "content to clear", "a.txt", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx))

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// 清空状态立即落盘：新实例读到的也是 0
	fresh := biz.NewDocumentStore(newStubEmbedder(4), &biz.DocumentStoreConfig{IndexPath: path})
	freshCount, err := fresh.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, freshCount)
}

func TestDocumentsGrouping(t *testing.T) {
	config := biz.NewRAGConfig()
	config.ChunkSize = 10
	config.ChunkOverlap = 0
	svc, _, _, _ := newTestService(t, config)
	ctx := context.Background()

	_, err := svc.IngestText(ctx, strings.Repeat("x", 30), "a.txt", nil)
	require.NoError(t, err)
	_, err = svc.IngestText(ctx, strings.Repeat("y", 20), "b.txt", nil)
	require.NoError(t, err)

	docs, err := svc.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].Source)
	assert.Equal(t, 3, docs[0].ChunkCount)
	assert.Equal(t, "b.txt", docs[1].Source)
	assert.Equal(t, 2, docs[1].ChunkCount)
}

func TestStats(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.IngestText(ctx, "stats content", "a.txt", nil)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["chunk_count"])
	assert.Equal(t, 1, stats["document_count"])
	assert.Equal(t, 4, stats["dimension"])

	cacheStats, ok := stats["cache"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, cacheStats["enabled"])
}
